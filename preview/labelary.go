package preview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"zplink/logging"
)

// DefaultLabelaryURL is the public Labelary printers endpoint.
const DefaultLabelaryURL = "http://api.labelary.com/v1/printers"

// Labelary renders through the Labelary HTTP API.
type Labelary struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewLabelary creates a Labelary renderer. An empty baseURL selects
// DefaultLabelaryURL.
func NewLabelary(baseURL string, timeout time.Duration) *Labelary {
	if baseURL == "" {
		baseURL = DefaultLabelaryURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Labelary{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// URL returns the render endpoint for the first label of a document.
func (l *Labelary) URL(dpi int, widthMM, heightMM float64) string {
	return fmt.Sprintf("%s/%ddpmm/labels/%sx%s/0/",
		l.BaseURL, Dpmm(dpi),
		formatInches(MMToInches(widthMM)),
		formatInches(MMToInches(heightMM)))
}

// Render posts the document and returns the PNG.
func (l *Labelary) Render(ctx context.Context, zpl string, dpi int, widthMM, heightMM float64) Result {
	endpoint := l.URL(dpi, widthMM, heightMM)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(zpl))
	if err != nil {
		return failed(fmt.Sprintf("Labelary API request failed: %v", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", ContentTypePNG)

	logging.DebugLog("preview", "POST %s (%d bytes)", endpoint, len(zpl))
	resp, err := l.HTTPClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return failed("Labelary API timeout")
		}
		return failed(fmt.Sprintf("Labelary API request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failed(fmt.Sprintf("Labelary API request failed: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		logging.DebugLog("preview", "labelary returned %d", resp.StatusCode)
		return failed(fmt.Sprintf("Labelary API error: %d - %s", resp.StatusCode, body))
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = ContentTypePNG
	}
	return Result{Success: true, ImageData: body, ContentType: ct}
}
