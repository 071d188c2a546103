package barcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"unicode/utf8"

	gozxing "github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/aztec"
	"github.com/makiuchi-d/gozxing/datamatrix"
	multiqr "github.com/makiuchi-d/gozxing/multi/qrcode"
	"github.com/makiuchi-d/gozxing/oned"
	"golang.org/x/text/encoding/charmap"
)

// ZXingDetector finds barcodes with gozxing, scanning for multiple symbols
// per image. QR codes go through gozxing's multi-QR reader; every other
// symbology is searched with multiReader.
type ZXingDetector struct {
	opts    Options
	formats []Format
}

// NewDetector returns the default gozxing-backed detector.
func NewDetector(opts Options) *ZXingDetector {
	formats := opts.Formats
	if len(formats) == 0 {
		formats = AllFormats()
	}
	return &ZXingDetector{opts: opts, formats: formats}
}

// Detect implements Detector.
func (d *ZXingDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if img == nil {
		return nil, errors.New("barcode: nil image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bitmap, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("barcode: build bitmap: %w", err)
	}
	matrix, err := bitmap.GetBlackMatrix()
	if err != nil {
		return nil, fmt.Errorf("barcode: binarize: %w", err)
	}

	hints := make(map[gozxing.DecodeHintType]interface{})
	zxFormats := make([]gozxing.BarcodeFormat, 0, len(d.formats))
	for _, f := range d.formats {
		if bf, ok := mapFormatToZXing(f); ok {
			zxFormats = append(zxFormats, bf)
		}
	}
	hints[gozxing.DecodeHintType_POSSIBLE_FORMATS] = zxFormats
	if d.opts.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	var results []*gozxing.Result
	others := make([]Format, 0, len(d.formats))
	for _, f := range d.formats {
		if f != FormatQR {
			others = append(others, f)
		}
	}

	if len(others) != len(d.formats) {
		found, err := multiqr.NewQRCodeMultiReader().DecodeMultiple(bitmap, hints)
		if err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("barcode: decode qr: %w", err)
		}
		results = append(results, found...)
	}
	if len(others) > 0 {
		m := &multiReader{reader: newFormatReader(others)}
		found, err := m.decodeMultiple(ctx, bitmap, hints)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("barcode: decode: %w", err)
		}
		results = append(results, found...)
	}

	if len(results) == 0 {
		slog.Debug("No barcodes found", "width", bitmap.GetWidth(), "height", bitmap.GetHeight())
		return []Detection{}, nil
	}

	bounds := img.Bounds()
	out := make([]Detection, 0, len(results))
	for _, r := range results {
		f := mapFormatFromZXing(r.GetBarcodeFormat())
		out = append(out, Detection{
			Format:  f,
			Payload: payloadBytes(r),
			Box:     symbolBox(matrix, f, r.GetResultPoints(), bounds),
		})
	}
	return out, nil
}

func isNotFound(err error) bool {
	var re gozxing.ReaderException
	return errors.As(err, &re)
}

// payloadBytes returns the symbol's byte-mode data when the decoder kept it
// and it is the Latin-1 encoding of the decoded text. Anything else is
// returned as the UTF-8 decoded text.
func payloadBytes(r *gozxing.Result) []byte {
	text := r.GetText()
	segs, _ := r.GetResultMetadata()[gozxing.ResultMetadataType_BYTE_SEGMENTS].([][]byte)
	raw := bytes.Join(segs, nil)
	if len(raw) == 0 || utf8.Valid(raw) {
		return []byte(text)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil || string(decoded) != text {
		return []byte(text)
	}
	return raw
}

// formatReader tries each configured reader in turn and returns the first hit.
type formatReader struct {
	readers []gozxing.Reader
}

func newFormatReader(formats []Format) *formatReader {
	want := make(map[Format]bool, len(formats))
	for _, f := range formats {
		want[f] = true
	}

	var readers []gozxing.Reader
	// QR codes are handled by the multi-QR reader in Detect.
	if want[FormatDataMatrix] {
		readers = append(readers, datamatrix.NewDataMatrixReader())
	}
	if want[FormatAztec] {
		readers = append(readers, aztec.NewAztecReader())
	}
	if want[FormatCode128] {
		readers = append(readers, oned.NewCode128Reader())
	}
	if want[FormatCode39] {
		readers = append(readers, oned.NewCode39Reader())
	}
	if want[FormatCode93] {
		readers = append(readers, oned.NewCode93Reader())
	}
	if want[FormatEAN13] {
		readers = append(readers, oned.NewEAN13Reader())
	}
	if want[FormatEAN8] {
		readers = append(readers, oned.NewEAN8Reader())
	}
	if want[FormatUPCA] {
		readers = append(readers, oned.NewUPCAReader())
	}
	if want[FormatUPCE] {
		readers = append(readers, oned.NewUPCEReader())
	}
	if want[FormatITF] {
		readers = append(readers, oned.NewITFReader())
	}
	if want[FormatCodabar] {
		readers = append(readers, oned.NewCodaBarReader())
	}
	return &formatReader{readers: readers}
}

func (r *formatReader) DecodeWithoutHints(bmp *gozxing.BinaryBitmap) (*gozxing.Result, error) {
	return r.Decode(bmp, nil)
}

func (r *formatReader) Decode(bmp *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{}) (*gozxing.Result, error) {
	var lastErr error
	for _, reader := range r.readers {
		res, err := reader.Decode(bmp, hints)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = gozxing.NewNotFoundException("no readers configured")
	}
	return nil, lastErr
}

func (r *formatReader) Reset() {
	for _, reader := range r.readers {
		reader.Reset()
	}
}

func mapFormatToZXing(f Format) (gozxing.BarcodeFormat, bool) {
	switch f {
	case FormatQR:
		return gozxing.BarcodeFormat_QR_CODE, true
	case FormatDataMatrix:
		return gozxing.BarcodeFormat_DATA_MATRIX, true
	case FormatAztec:
		return gozxing.BarcodeFormat_AZTEC, true
	case FormatCode128:
		return gozxing.BarcodeFormat_CODE_128, true
	case FormatCode39:
		return gozxing.BarcodeFormat_CODE_39, true
	case FormatCode93:
		return gozxing.BarcodeFormat_CODE_93, true
	case FormatEAN8:
		return gozxing.BarcodeFormat_EAN_8, true
	case FormatEAN13:
		return gozxing.BarcodeFormat_EAN_13, true
	case FormatUPCA:
		return gozxing.BarcodeFormat_UPC_A, true
	case FormatUPCE:
		return gozxing.BarcodeFormat_UPC_E, true
	case FormatITF:
		return gozxing.BarcodeFormat_ITF, true
	case FormatCodabar:
		return gozxing.BarcodeFormat_CODABAR, true
	default:
		return 0, false
	}
}

func mapFormatFromZXing(bf gozxing.BarcodeFormat) Format {
	switch bf {
	case gozxing.BarcodeFormat_QR_CODE:
		return FormatQR
	case gozxing.BarcodeFormat_DATA_MATRIX:
		return FormatDataMatrix
	case gozxing.BarcodeFormat_AZTEC:
		return FormatAztec
	case gozxing.BarcodeFormat_CODE_128:
		return FormatCode128
	case gozxing.BarcodeFormat_CODE_39:
		return FormatCode39
	case gozxing.BarcodeFormat_CODE_93:
		return FormatCode93
	case gozxing.BarcodeFormat_EAN_8:
		return FormatEAN8
	case gozxing.BarcodeFormat_EAN_13:
		return FormatEAN13
	case gozxing.BarcodeFormat_UPC_A:
		return FormatUPCA
	case gozxing.BarcodeFormat_UPC_E:
		return FormatUPCE
	case gozxing.BarcodeFormat_ITF:
		return FormatITF
	case gozxing.BarcodeFormat_CODABAR:
		return FormatCodabar
	default:
		return FormatUnknown
	}
}

// boxFromPoints returns the bounding box of the reported result points,
// clamped to bounds and at least one pixel in each dimension.
func boxFromPoints(pts []gozxing.ResultPoint, bounds image.Rectangle) Box {
	if len(pts) == 0 {
		return Box{X: bounds.Min.X, Y: bounds.Min.Y, W: bounds.Dx(), H: bounds.Dy()}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		if p == nil {
			continue
		}
		minX = math.Min(minX, p.GetX())
		minY = math.Min(minY, p.GetY())
		maxX = math.Max(maxX, p.GetX())
		maxY = math.Max(maxY, p.GetY())
	}
	if math.IsInf(minX, 1) {
		return Box{X: bounds.Min.X, Y: bounds.Min.Y, W: bounds.Dx(), H: bounds.Dy()}
	}

	r := image.Rect(
		int(math.Floor(minX)), int(math.Floor(minY)),
		int(math.Floor(maxX))+1, int(math.Floor(maxY))+1,
	).Intersect(bounds)
	if r.Empty() {
		return Box{X: bounds.Min.X, Y: bounds.Min.Y, W: 1, H: 1}
	}
	return Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}
