package scanner

import (
	"fmt"
	"image"

	"github.com/MeKo-Tech/vinscan/internal/barcode"
	"github.com/MeKo-Tech/vinscan/internal/storage"
)

// Store persists cropped barcode images.
type Store interface {
	Save(img image.Image) (storage.Artifact, error)
}

// Entry is one decoded barcode together with its saved crop.
type Entry struct {
	Data   string          `json:"barcode_data"`
	Link   string          `json:"barcode_link,omitempty"`
	Format string          `json:"format"`
	Box    barcode.Box     `json:"box"`
	Crop   image.Rectangle `json:"-"`
	Name   string          `json:"-"`
}

// Result is the output of a single scan. Entries follow detector order.
type Result struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Entries  []Entry `json:"entries"`
	DecodeNs int64   `json:"decode_ns"`
	DetectNs int64   `json:"detect_ns"`
	SaveNs   int64   `json:"save_ns"`
	TotalNs  int64   `json:"total_ns"`
}

// Found reports whether at least one barcode was decoded.
func (r *Result) Found() bool { return r != nil && len(r.Entries) > 0 }

// DetectError reports a detector failure other than "no barcode present".
type DetectError struct {
	Err error
}

func (e *DetectError) Error() string { return fmt.Sprintf("barcode detection failed: %v", e.Err) }

func (e *DetectError) Unwrap() error { return e.Err }
