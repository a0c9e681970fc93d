// Package preview renders ZPL to PNG images through an external rendering
// service (Labelary or a self-hosted BinaryKits.Zpl).
package preview

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"zplink/config"
)

// DefaultTimeout bounds one render request.
const DefaultTimeout = 30 * time.Second

// ContentTypePNG is the content type of rendered labels.
const ContentTypePNG = "image/png"

// Result is the outcome of a render. Failures are reported in Error, never
// returned as Go errors.
type Result struct {
	Success     bool   `json:"success"`
	ImageData   []byte `json:"-"`
	Error       string `json:"error,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// Renderer turns a ZPL document into an image.
type Renderer interface {
	Render(ctx context.Context, zpl string, dpi int, widthMM, heightMM float64) Result
}

func failed(msg string) Result {
	return Result{Success: false, Error: msg, ContentType: ContentTypePNG}
}

// New returns the renderer selected by cfg. Unknown or empty backends use
// Labelary.
func New(cfg config.PreviewConfig) Renderer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	switch cfg.Backend {
	case config.PreviewBinaryKits:
		return NewBinaryKits(cfg.BinaryKitsURL, timeout)
	default:
		return NewLabelary(cfg.LabelaryURL, timeout)
	}
}

// Dpmm maps a printer resolution to dots per millimetre. Unlisted
// resolutions render at 12 dpmm.
func Dpmm(dpi int) int {
	switch dpi {
	case 152:
		return 6
	case 203:
		return 8
	case 600:
		return 24
	default:
		return 12
	}
}

// MMToInches converts millimetres to inches rounded to two decimals.
func MMToInches(mm float64) float64 {
	return math.Round(mm/25.4*100) / 100
}

func formatInches(in float64) string {
	s := strconv.FormatFloat(in, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// ViewerURL returns a labelary.com viewer link with the document preloaded.
func ViewerURL(zpl string, dpi int, widthMM, heightMM float64) string {
	return fmt.Sprintf("http://labelary.com/viewer.html?dpmm=%ddpmm&w=%s&h=%s&zpl=%s",
		Dpmm(dpi),
		formatInches(MMToInches(widthMM)),
		formatInches(MMToInches(heightMM)),
		url.PathEscape(zpl))
}

// isTimeout reports whether an HTTP client error was a deadline expiry.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
