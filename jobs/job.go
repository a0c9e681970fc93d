// Package jobs runs print jobs: it renders labels for inventory objects,
// sends them to printers and keeps a record of each attempt.
package jobs

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Quantity limits for one job.
const (
	MinQuantity = 1
	MaxQuantity = 100
)

// BatchThreshold is the batch size from which printing moves to the background.
const BatchThreshold = 10

var (
	ErrPrinterNotFound  = errors.New("Printer not found")
	ErrTemplateNotFound = errors.New("Template not found")
	ErrPrinterInactive  = errors.New("printer is not active")
	ErrInvalidQuantity  = errors.New("quantity must be between 1 and 100")
	ErrNoObjects        = errors.New("no objects to print")
	ErrQueueFull        = errors.New("batch queue full, try again later")
)

// PrinterInactiveError reports a print request to a printer that is offline or
// in maintenance.
type PrinterInactiveError struct {
	Name   string
	Status string
}

func (e *PrinterInactiveError) Error() string {
	return fmt.Sprintf("Printer '%s' is not active", e.Name)
}

func (e *PrinterInactiveError) Is(target error) bool {
	return target == ErrPrinterInactive
}

// Job is the record of one label sent, or attempted, to a printer.
type Job struct {
	ID         string    `json:"id"`
	ObjectType string    `json:"object_type"`
	ObjectID   int       `json:"object_id"`
	Object     string    `json:"object"`
	Printer    string    `json:"printer"`
	Template   string    `json:"template"`
	Quantity   int       `json:"quantity"`
	ZPL        string    `json:"zpl_content"`
	Success    bool      `json:"success"`
	Error      string    `json:"error_message,omitempty"`
	BytesSent  int       `json:"bytes_sent"`
	PrintedBy  string    `json:"printed_by,omitempty"`
	BatchID    string    `json:"batch_id,omitempty"`
	Created    time.Time `json:"created"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a time-ordered unique identifier.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// ValidQuantity reports whether n copies may be requested in one job.
func ValidQuantity(n int) bool {
	return n >= MinQuantity && n <= MaxQuantity
}

// ShouldUseBackground reports whether a batch of count objects should be
// printed in the background.
func ShouldUseBackground(count int) bool {
	return count >= BatchThreshold
}
