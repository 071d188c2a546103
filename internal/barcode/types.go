package barcode

import (
	"context"
	"image"
	"strings"
)

// Format represents a barcode symbology.
type Format int

const (
	FormatUnknown Format = iota
	FormatQR
	FormatDataMatrix
	FormatAztec
	FormatCode128
	FormatCode39
	FormatCode93
	FormatEAN8
	FormatEAN13
	FormatUPCA
	FormatUPCE
	FormatITF
	FormatCodabar
)

var formatNames = map[Format]string{
	FormatQR:         "qr",
	FormatDataMatrix: "datamatrix",
	FormatAztec:      "aztec",
	FormatCode128:    "code128",
	FormatCode39:     "code39",
	FormatCode93:     "code93",
	FormatEAN8:       "ean8",
	FormatEAN13:      "ean13",
	FormatUPCA:       "upca",
	FormatUPCE:       "upce",
	FormatITF:        "itf",
	FormatCodabar:    "codabar",
}

// AllFormats lists every symbology the default detector can search for.
func AllFormats() []Format {
	return []Format{
		FormatQR, FormatDataMatrix, FormatAztec,
		FormatCode128, FormatCode39, FormatCode93,
		FormatEAN8, FormatEAN13, FormatUPCA, FormatUPCE,
		FormatITF, FormatCodabar,
	}
}

// Linear reports whether f is a one-dimensional symbology.
func (f Format) Linear() bool {
	switch f {
	case FormatCode128, FormatCode39, FormatCode93,
		FormatEAN8, FormatEAN13, FormatUPCA, FormatUPCE,
		FormatITF, FormatCodabar:
		return true
	default:
		return false
	}
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return "unknown"
}

// ParseFormat maps a config name such as "qr", "ean-13" or "code128" to a Format.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "qr", "qrcode":
		return FormatQR, true
	case "datamatrix", "data-matrix":
		return FormatDataMatrix, true
	case "aztec":
		return FormatAztec, true
	case "code128", "code-128":
		return FormatCode128, true
	case "code39", "code-39":
		return FormatCode39, true
	case "code93", "code-93":
		return FormatCode93, true
	case "ean8", "ean-8":
		return FormatEAN8, true
	case "ean13", "ean-13":
		return FormatEAN13, true
	case "upca", "upc-a":
		return FormatUPCA, true
	case "upce", "upc-e":
		return FormatUPCE, true
	case "itf", "interleaved2of5", "i2/5":
		return FormatITF, true
	case "codabar":
		return FormatCodabar, true
	default:
		return FormatUnknown, false
	}
}

// ParseFormats converts config names to Formats, reporting the first unknown name.
func ParseFormats(names []string) ([]Format, error) {
	out := make([]Format, 0, len(names))
	for _, n := range names {
		f, ok := ParseFormat(n)
		if !ok {
			return nil, &UnknownFormatError{Name: n}
		}
		out = append(out, f)
	}
	return out, nil
}

// UnknownFormatError is returned for symbology names ParseFormat does not know.
type UnknownFormatError struct {
	Name string
}

func (e *UnknownFormatError) Error() string {
	return "barcode: unknown format " + strings.TrimSpace(e.Name)
}

// Options controls detector behavior.
type Options struct {
	// Formats constrains the set of symbologies to search. Empty means all.
	Formats []Format

	// TryHarder enables more exhaustive search (slower but more robust).
	TryHarder bool
}

// Box is an axis-aligned bounding box in pixel coordinates.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect returns the box as an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Detection is one barcode found in an image.
type Detection struct {
	Format  Format
	Payload []byte
	Box     Box
}

// Text returns the payload as UTF-8 text. See PayloadText.
func (d Detection) Text() string { return PayloadText(d.Payload) }

// Detector locates and decodes barcodes. Results are returned in detection
// order; an image without barcodes yields an empty slice and a nil error.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, img image.Image) ([]Detection, error)

// Detect calls f(ctx, img).
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	return f(ctx, img)
}
