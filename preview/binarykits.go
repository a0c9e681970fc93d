package preview

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"zplink/logging"
)

// DefaultBinaryKitsURL is where a local BinaryKits.Zpl container listens.
const DefaultBinaryKitsURL = "http://localhost:4040"

// BinaryKits renders through a self-hosted BinaryKits.Zpl viewer API.
type BinaryKits struct {
	BaseURL    string
	HTTPClient *http.Client
}

type binaryKitsRequest struct {
	ZPLData          string  `json:"zplData"`
	PrintDensityDpmm int     `json:"printDensityDpmm"`
	LabelWidth       float64 `json:"labelWidth"`
	LabelHeight      float64 `json:"labelHeight"`
}

type binaryKitsResponse struct {
	Labels []struct {
		ImageBase64 string `json:"imageBase64"`
	} `json:"labels"`
}

// NewBinaryKits creates a BinaryKits renderer. An empty baseURL selects
// DefaultBinaryKitsURL.
func NewBinaryKits(baseURL string, timeout time.Duration) *BinaryKits {
	if baseURL == "" {
		baseURL = DefaultBinaryKitsURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &BinaryKits{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Render posts the document as JSON and decodes the first label image.
func (b *BinaryKits) Render(ctx context.Context, zpl string, dpi int, widthMM, heightMM float64) Result {
	payload, err := json.Marshal(binaryKitsRequest{
		ZPLData:          zpl,
		PrintDensityDpmm: Dpmm(dpi),
		LabelWidth:       widthMM,
		LabelHeight:      heightMM,
	})
	if err != nil {
		return failed(fmt.Sprintf("BinaryKits API request failed: %v", err))
	}

	endpoint := b.BaseURL + "/api/v1/viewer"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return failed(fmt.Sprintf("BinaryKits API request failed: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	logging.DebugLog("preview", "POST %s (%d bytes)", endpoint, len(zpl))
	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return failed("BinaryKits API timeout")
		}
		return failed(fmt.Sprintf("BinaryKits API request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failed(fmt.Sprintf("BinaryKits API request failed: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return failed(fmt.Sprintf("BinaryKits API error: %d - %s", resp.StatusCode, body))
	}

	var out binaryKitsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return failed(fmt.Sprintf("BinaryKits API response parse error: %v", err))
	}
	if len(out.Labels) == 0 || out.Labels[0].ImageBase64 == "" {
		return failed("BinaryKits API returned no image data")
	}
	img, err := base64.StdEncoding.DecodeString(out.Labels[0].ImageBase64)
	if err != nil {
		return failed(fmt.Sprintf("BinaryKits API response parse error: %v", err))
	}
	return Result{Success: true, ImageData: img, ContentType: ContentTypePNG}
}
