package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"zplink/engine"
	"zplink/jobs"
	"zplink/labeldata"
	"zplink/preview"
	"zplink/printer"
	"zplink/zpl"
)

// TemplateErrorResponse is returned when a template fails validation.
type TemplateErrorResponse struct {
	Error         string   `json:"error"`
	FoundCommands []string `json:"found_commands"`
}

// writeEngineError maps engine and job errors to HTTP status codes.
func (h *handlers) writeEngineError(w http.ResponseWriter, err error) {
	var verr *zpl.ValidationError
	switch {
	case errors.As(err, &verr):
		cmds := verr.Commands
		if cmds == nil {
			cmds = []string{}
		}
		h.writeJSONStatus(w, http.StatusUnprocessableEntity, TemplateErrorResponse{Error: err.Error(), FoundCommands: cmds})
	case errors.Is(err, engine.ErrNotFound),
		errors.Is(err, jobs.ErrPrinterNotFound),
		errors.Is(err, jobs.ErrTemplateNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrAlreadyExists):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, jobs.ErrQueueFull):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, engine.ErrInvalidInput),
		errors.Is(err, jobs.ErrPrinterInactive),
		errors.Is(err, jobs.ErrInvalidQuantity),
		errors.Is(err, jobs.ErrNoObjects),
		errors.Is(err, labeldata.ErrUnsupportedObjectType):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decode reads a JSON request body into v, writing 400 on failure.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (h *handlers) writeStatus(w http.ResponseWriter, status int, word string) {
	h.writeJSONStatus(w, status, map[string]string{"status": word})
}

// writeImage sends a rendered preview, or 500 with the renderer's error.
func (h *handlers) writeImage(w http.ResponseWriter, res preview.Result) {
	if !res.Success || len(res.ImageData) == 0 {
		msg := res.Error
		if msg == "" {
			msg = "Preview generation failed"
		}
		h.writeError(w, http.StatusInternalServerError, msg)
		return
	}
	ct := res.ContentType
	if ct == "" {
		ct = "image/png"
	}
	w.Header().Set("Content-Type", ct)
	w.Write(res.ImageData)
}

// --- Printers ---

func (h *handlers) handleCreatePrinter(w http.ResponseWriter, r *http.Request) {
	var req engine.PrinterHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	pc, err := req.ToConfig()
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if err := h.engine.CreatePrinter(pc); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeStatus(w, http.StatusCreated, "created")
}

func (h *handlers) handleUpdatePrinter(w http.ResponseWriter, r *http.Request) {
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	var req engine.PrinterHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	pc, err := req.ToConfig()
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if err := h.engine.UpdatePrinter(name, pc); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeStatus(w, http.StatusOK, "updated")
}

func (h *handlers) handleDeletePrinter(w http.ResponseWriter, r *http.Request) {
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	if err := h.engine.DeletePrinter(name); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeStatus(w, http.StatusOK, "deleted")
}

// CheckResponse is the outcome of a printer connectivity check.
type CheckResponse struct {
	Name   string          `json:"name"`
	Online bool            `json:"online"`
	Error  string          `json:"error,omitempty"`
	Status *printer.Status `json:"status,omitempty"`
}

func (h *handlers) handleCheckPrinter(w http.ResponseWriter, r *http.Request) {
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	state, res, err := h.engine.CheckPrinter(r.Context(), name)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, CheckResponse{Name: name, Online: state.Online, Error: res.Error, Status: state.Status})
}

func (h *handlers) handleTestLabel(w http.ResponseWriter, r *http.Request) {
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	res, err := h.engine.PrintTestLabel(r.Context(), name)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if !res.Success {
		h.writeJSONStatus(w, http.StatusBadGateway, res)
		return
	}
	h.writeJSON(w, res)
}

// --- Templates ---

func (h *handlers) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var t zpl.TemplateDefinition
	if !h.decode(w, r, &t) {
		return
	}
	if err := h.engine.CreateTemplate(t); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeStatus(w, http.StatusCreated, "created")
}

func (h *handlers) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	var t zpl.TemplateDefinition
	if !h.decode(w, r, &t) {
		return
	}
	if err := h.engine.UpdateTemplate(name, t); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeStatus(w, http.StatusOK, "updated")
}

func (h *handlers) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	if err := h.engine.DeleteTemplate(name); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeStatus(w, http.StatusOK, "deleted")
}

// TemplateRequest carries raw ZPL for validation or sanitizing.
type TemplateRequest struct {
	Template string `json:"template"`
}

// ValidateResponse reports whether a template is free of denied commands.
// Error carries any save-time problem, structural ones included.
type ValidateResponse struct {
	Safe          bool     `json:"safe"`
	FoundCommands []string `json:"found_commands"`
	Error         string   `json:"error,omitempty"`
}

func (h *handlers) handleValidateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if !h.decode(w, r, &req) {
		return
	}
	safe, found := zpl.ValidateTemplate(req.Template)
	resp := ValidateResponse{Safe: safe, FoundCommands: found}
	if resp.FoundCommands == nil {
		resp.FoundCommands = []string{}
	}
	if err := zpl.CheckTemplate(req.Template); err != nil {
		resp.Error = err.Error()
	}
	h.writeJSON(w, resp)
}

func (h *handlers) handleSanitizeTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeJSON(w, TemplateRequest{Template: zpl.SanitizeTemplate(req.Template)})
}

// --- Labels ---

func (h *handlers) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req engine.LabelRequest
	if !h.decode(w, r, &req) {
		return
	}
	label, err := h.engine.GenerateLabel(req)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(label.ZPL))
}

func (h *handlers) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req engine.LabelRequest
	if !h.decode(w, r, &req) {
		return
	}
	label, err := h.engine.GenerateLabel(req)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+label.Filename()+`"`)
	w.Write([]byte(label.ZPL))
}

func (h *handlers) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req engine.LabelRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.PreviewLabel(r.Context(), req)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeImage(w, res)
}

func (h *handlers) handlePreviewURL(w http.ResponseWriter, r *http.Request) {
	var req engine.LabelRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.engine.PreviewURL(req)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"url": u})
}

// handlePrint returns the recorded job. A failed delivery is still a job
// and is reported with success false.
func (h *handlers) handlePrint(w http.ResponseWriter, r *http.Request) {
	var req engine.LabelRequest
	if !h.decode(w, r, &req) {
		return
	}
	job, err := h.engine.PrintLabel(r.Context(), req)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, job)
}

func (h *handlers) handlePrintBatch(w http.ResponseWriter, r *http.Request) {
	var req engine.BatchLabelRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.PrintLabels(r.Context(), req)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if res.Background != nil {
		h.writeJSONStatus(w, http.StatusAccepted, res)
		return
	}
	h.writeJSON(w, res)
}

// --- MQTT ---

func (h *handlers) handleCreateMQTT(w http.ResponseWriter, r *http.Request) {
	var req engine.MQTTHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.CreateMQTT(req.ToConfig()); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeStatus(w, http.StatusCreated, "created")
}

func (h *handlers) handleUpdateMQTT(w http.ResponseWriter, r *http.Request) {
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	var req engine.MQTTHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.UpdateMQTT(name, req.ToConfig()); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeStatus(w, http.StatusOK, "updated")
}

func (h *handlers) handleDeleteMQTT(w http.ResponseWriter, r *http.Request) {
	h.nameAction(w, r, h.engine.DeleteMQTT, "deleted")
}

func (h *handlers) handleStartMQTT(w http.ResponseWriter, r *http.Request) {
	h.nameAction(w, r, h.engine.StartMQTT, "started")
}

func (h *handlers) handleStopMQTT(w http.ResponseWriter, r *http.Request) {
	h.nameAction(w, r, h.engine.StopMQTT, "stopped")
}

// nameAction runs a by-name engine operation and reports its status word.
func (h *handlers) nameAction(w http.ResponseWriter, r *http.Request, op func(string) error, word string) {
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	if err := op(name); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeStatus(w, http.StatusOK, word)
}

// --- Valkey ---

func (h *handlers) handleCreateValkey(w http.ResponseWriter, r *http.Request) {
	var req engine.ValkeyHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	vc, err := req.ToConfig()
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if err := h.engine.CreateValkey(vc); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeStatus(w, http.StatusCreated, "created")
}

func (h *handlers) handleUpdateValkey(w http.ResponseWriter, r *http.Request) {
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	var req engine.ValkeyHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	vc, err := req.ToConfig()
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if err := h.engine.UpdateValkey(name, vc); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeStatus(w, http.StatusOK, "updated")
}

func (h *handlers) handleDeleteValkey(w http.ResponseWriter, r *http.Request) {
	h.nameAction(w, r, h.engine.DeleteValkey, "deleted")
}

func (h *handlers) handleStartValkey(w http.ResponseWriter, r *http.Request) {
	h.nameAction(w, r, h.engine.StartValkey, "started")
}

func (h *handlers) handleStopValkey(w http.ResponseWriter, r *http.Request) {
	h.nameAction(w, r, h.engine.StopValkey, "stopped")
}

// --- Kafka ---

func (h *handlers) handleCreateKafka(w http.ResponseWriter, r *http.Request) {
	var req engine.KafkaHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	kc, err := req.ToConfig()
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if err := h.engine.CreateKafka(kc); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeStatus(w, http.StatusCreated, "created")
}

func (h *handlers) handleUpdateKafka(w http.ResponseWriter, r *http.Request) {
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	var req engine.KafkaHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	kc, err := req.ToConfig()
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if err := h.engine.UpdateKafka(name, kc); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeStatus(w, http.StatusOK, "updated")
}

func (h *handlers) handleDeleteKafka(w http.ResponseWriter, r *http.Request) {
	h.nameAction(w, r, h.engine.DeleteKafka, "deleted")
}

func (h *handlers) handleConnectKafka(w http.ResponseWriter, r *http.Request) {
	h.nameAction(w, r, h.engine.ConnectKafka, "connected")
}

func (h *handlers) handleDisconnectKafka(w http.ResponseWriter, r *http.Request) {
	h.nameAction(w, r, h.engine.DisconnectKafka, "disconnected")
}

// --- Webhooks ---

func (h *handlers) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req engine.WebhookHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	wc, err := req.ToConfig()
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if err := h.engine.CreateWebhook(wc); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeStatus(w, http.StatusCreated, "created")
}

func (h *handlers) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	var req engine.WebhookHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	wc, err := req.ToConfig()
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if err := h.engine.UpdateWebhook(name, wc); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeStatus(w, http.StatusOK, "updated")
}

func (h *handlers) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	h.nameAction(w, r, h.engine.DeleteWebhook, "deleted")
}

func (h *handlers) handleStartWebhook(w http.ResponseWriter, r *http.Request) {
	h.nameAction(w, r, h.engine.StartWebhook, "started")
}

func (h *handlers) handleStopWebhook(w http.ResponseWriter, r *http.Request) {
	h.nameAction(w, r, h.engine.StopWebhook, "stopped")
}

func (h *handlers) handleResetWebhook(w http.ResponseWriter, r *http.Request) {
	h.nameAction(w, r, h.engine.ResetWebhook, "reset")
}

func (h *handlers) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	if err := h.engine.TestFireWebhook(r.Context(), name); err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			h.writeEngineError(w, err)
			return
		}
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.writeStatus(w, http.StatusOK, "sent")
}

// --- Settings ---

// SettingsRequest updates instance settings. Omitted fields are unchanged.
type SettingsRequest struct {
	Namespace       *string `json:"namespace"`
	DefaultPrinter  *string `json:"default_printer"`
	DefaultTemplate *string `json:"default_template"`
}

func (h *handlers) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Namespace != nil {
		if err := h.engine.SetNamespace(*req.Namespace); err != nil {
			h.writeEngineError(w, err)
			return
		}
	}
	if req.DefaultPrinter != nil {
		if err := h.engine.SetDefaultPrinter(*req.DefaultPrinter); err != nil {
			h.writeEngineError(w, err)
			return
		}
	}
	if req.DefaultTemplate != nil {
		if err := h.engine.SetDefaultTemplate(*req.DefaultTemplate); err != nil {
			h.writeEngineError(w, err)
			return
		}
	}
	h.writeJSON(w, h.engine.GetSettings())
}
