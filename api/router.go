// Package api provides the REST API for label generation and printing.
package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"zplink/engine"
	"zplink/labeldata"
	"zplink/zpl"
)

// handlers holds the API handler functions.
type handlers struct {
	engine *engine.Engine
	hub    *eventHub
	subID  engine.SubscriberID
}

// NewRouter creates the REST API router. The returned cleanup function
// detaches the event stream from the engine and closes its clients.
func NewRouter(eng *engine.Engine) (chi.Router, func()) {
	r := chi.NewRouter()
	h := &handlers{engine: eng, hub: newEventHub()}

	r.Get("/kinds", h.handleKinds)
	r.Get("/label-sizes", h.handleLabelSizes)

	// Printers
	r.Get("/printers", h.handleListPrinters)
	r.Post("/printers", h.handleCreatePrinter)
	r.Route("/printers/{name}", func(r chi.Router) {
		r.Get("/", h.handlePrinterDetails)
		r.Put("/", h.handleUpdatePrinter)
		r.Delete("/", h.handleDeletePrinter)
		r.Get("/status", h.handlePrinterStatus)
		r.Post("/check", h.handleCheckPrinter)
		r.Post("/test-label", h.handleTestLabel)
	})

	// Templates
	r.Get("/templates", h.handleListTemplates)
	r.Post("/templates", h.handleCreateTemplate)
	r.Post("/templates/validate", h.handleValidateTemplate)
	r.Post("/templates/sanitize", h.handleSanitizeTemplate)
	r.Route("/templates/{name}", func(r chi.Router) {
		r.Get("/", h.handleTemplateDetails)
		r.Put("/", h.handleUpdateTemplate)
		r.Delete("/", h.handleDeleteTemplate)
		r.Get("/preview", h.handleTemplatePreview)
	})

	// Labels
	r.Post("/labels/generate", h.handleGenerate)
	r.Post("/labels/download", h.handleDownload)
	r.Post("/labels/preview", h.handlePreview)
	r.Post("/labels/preview-url", h.handlePreviewURL)
	r.Post("/labels/print", h.handlePrint)
	r.Post("/labels/print-batch", h.handlePrintBatch)

	// Jobs
	r.Get("/jobs", h.handleListJobs)
	r.Get("/jobs/{id}", h.handleJobDetails)
	r.Get("/batches/{id}", h.handleBatchDetails)

	// Brokers
	r.Get("/services", h.handleServices)
	r.Post("/mqtt", h.handleCreateMQTT)
	r.Put("/mqtt/{name}", h.handleUpdateMQTT)
	r.Delete("/mqtt/{name}", h.handleDeleteMQTT)
	r.Post("/mqtt/{name}/start", h.handleStartMQTT)
	r.Post("/mqtt/{name}/stop", h.handleStopMQTT)
	r.Post("/valkey", h.handleCreateValkey)
	r.Put("/valkey/{name}", h.handleUpdateValkey)
	r.Delete("/valkey/{name}", h.handleDeleteValkey)
	r.Post("/valkey/{name}/start", h.handleStartValkey)
	r.Post("/valkey/{name}/stop", h.handleStopValkey)
	r.Post("/kafka", h.handleCreateKafka)
	r.Put("/kafka/{name}", h.handleUpdateKafka)
	r.Delete("/kafka/{name}", h.handleDeleteKafka)
	r.Post("/kafka/{name}/connect", h.handleConnectKafka)
	r.Post("/kafka/{name}/disconnect", h.handleDisconnectKafka)

	// Webhooks
	r.Get("/webhooks", h.handleListWebhooks)
	r.Post("/webhooks", h.handleCreateWebhook)
	r.Put("/webhooks/{name}", h.handleUpdateWebhook)
	r.Delete("/webhooks/{name}", h.handleDeleteWebhook)
	r.Post("/webhooks/{name}/start", h.handleStartWebhook)
	r.Post("/webhooks/{name}/stop", h.handleStopWebhook)
	r.Post("/webhooks/{name}/reset", h.handleResetWebhook)
	r.Post("/webhooks/{name}/test", h.handleTestWebhook)

	// Settings
	r.Get("/settings", h.handleGetSettings)
	r.Put("/settings", h.handleUpdateSettings)

	// Event stream
	r.Get("/events/ws", h.handleEvents)

	cleanup := h.setupEvents()
	return r, cleanup
}

func (h *handlers) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (h *handlers) writeJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSONStatus(w, status, map[string]string{"error": message})
}

// nameParam returns the unescaped {name} URL parameter.
func (h *handlers) nameParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || name == "" {
		h.writeError(w, http.StatusBadRequest, "invalid name")
		return "", false
	}
	return name, true
}

func (h *handlers) handleKinds(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, labeldata.SupportedKinds())
}

// LabelSizeResponse describes one standard label stock.
type LabelSizeResponse struct {
	Code string `json:"code"`
	zpl.LabelDimensions
}

func (h *handlers) handleLabelSizes(w http.ResponseWriter, r *http.Request) {
	codes := zpl.LabelSizes()
	out := make([]LabelSizeResponse, 0, len(codes))
	for _, code := range codes {
		dims, _ := zpl.LookupLabelSize(code)
		out = append(out, LabelSizeResponse{Code: code, LabelDimensions: dims})
	}
	h.writeJSON(w, out)
}

func (h *handlers) handleListPrinters(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.engine.ListPrinters())
}

func (h *handlers) handlePrinterDetails(w http.ResponseWriter, r *http.Request) {
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	info, err := h.engine.GetPrinter(name)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, info)
}

// handlePrinterStatus queries ~HS. A printer that does not answer yields 204.
func (h *handlers) handlePrinterStatus(w http.ResponseWriter, r *http.Request) {
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	st, err := h.engine.PrinterStatus(r.Context(), name)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if st == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, st)
}

func (h *handlers) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.engine.ListTemplates())
}

func (h *handlers) handleTemplateDetails(w http.ResponseWriter, r *http.Request) {
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	t, err := h.engine.GetTemplate(name)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, t)
}

func (h *handlers) handleTemplatePreview(w http.ResponseWriter, r *http.Request) {
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	res, err := h.engine.PreviewTemplate(r.Context(), name)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeImage(w, res)
}

func (h *handlers) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	h.writeJSON(w, h.engine.RecentJobs(limit))
}

func (h *handlers) handleJobDetails(w http.ResponseWriter, r *http.Request) {
	j, err := h.engine.GetJob(chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, j)
}

func (h *handlers) handleBatchDetails(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Batch(chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, st)
}

func (h *handlers) handleServices(w http.ResponseWriter, r *http.Request) {
	services := h.engine.Services()
	if services == nil {
		services = []engine.ServiceInfo{}
	}
	h.writeJSON(w, services)
}

func (h *handlers) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.engine.ListWebhooks())
}

func (h *handlers) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.engine.GetSettings())
}
