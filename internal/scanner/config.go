package scanner

import (
	"errors"

	"github.com/MeKo-Tech/vinscan/internal/barcode"
	"github.com/MeKo-Tech/vinscan/internal/utils"
)

// Config holds configuration for the scan pipeline.
type Config struct {
	Margin    int              // Pixels added around each barcode box before cropping
	Workers   int              // Crop/save workers per scan (1 = sequential)
	Formats   []barcode.Format // Symbologies to search (empty = all)
	TryHarder bool             // More exhaustive (slower) detection
}

// DefaultConfig returns the default scan configuration.
func DefaultConfig() Config {
	return Config{
		Margin:    utils.DefaultMargin,
		Workers:   1,
		Formats:   nil,
		TryHarder: true,
	}
}

// Builder constructs a Scanner with fluent configuration.
type Builder struct {
	cfg      Config
	detector barcode.Detector
	store    Store
}

// NewBuilder creates a new scanner builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithMargin sets the crop margin. Negative values are ignored.
func (b *Builder) WithMargin(m int) *Builder {
	if m >= 0 {
		b.cfg.Margin = m
	}
	return b
}

// WithWorkers sets the number of crop/save workers. Values below 1 are ignored.
func (b *Builder) WithWorkers(n int) *Builder {
	if n >= 1 {
		b.cfg.Workers = n
	}
	return b
}

// WithFormats restricts detection to the given symbologies.
func (b *Builder) WithFormats(formats []barcode.Format) *Builder {
	b.cfg.Formats = formats
	return b
}

// WithTryHarder toggles exhaustive detection.
func (b *Builder) WithTryHarder(v bool) *Builder {
	b.cfg.TryHarder = v
	return b
}

// WithDetector overrides the barcode detector.
func (b *Builder) WithDetector(d barcode.Detector) *Builder {
	b.detector = d
	return b
}

// WithStore sets where cropped barcodes are saved. Without a store the
// scanner only decodes.
func (b *Builder) WithStore(s Store) *Builder {
	b.store = s
	return b
}

// Config returns the current builder configuration.
func (b *Builder) Config() Config { return b.cfg }

// Build validates the configuration and returns the Scanner.
func (b *Builder) Build() (*Scanner, error) {
	if b.cfg.Margin < 0 {
		return nil, errors.New("margin must be non-negative")
	}
	if b.cfg.Workers < 1 {
		return nil, errors.New("workers must be at least 1")
	}
	det := b.detector
	if det == nil {
		det = barcode.NewDetector(barcode.Options{Formats: b.cfg.Formats, TryHarder: b.cfg.TryHarder})
	}
	return &Scanner{cfg: b.cfg, detector: det, store: b.store}, nil
}
