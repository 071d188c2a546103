package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	gozxing "github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/require"
)

// Placement positions a rendered barcode on a canvas.
type Placement struct {
	Image image.Image
	At    image.Point
}

// QRCode renders content as a QR code of roughly size x size pixels,
// including the standard quiet zone.
func QRCode(t *testing.T, content string, size int) *image.NRGBA {
	t.Helper()

	matrix, err := qrcode.NewQRCodeWriter().Encode(content, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	require.NoError(t, err, "Failed to encode QR code")
	return renderMatrix(matrix)
}

// QRCodeWithCharset renders content as a QR code whose byte segment is
// encoded in charset, for example "ISO-8859-1".
func QRCodeWithCharset(t *testing.T, content, charset string, size int) *image.NRGBA {
	t.Helper()

	hints := map[gozxing.EncodeHintType]interface{}{gozxing.EncodeHintType_CHARACTER_SET: charset}
	matrix, err := qrcode.NewQRCodeWriter().Encode(content, gozxing.BarcodeFormat_QR_CODE, size, size, hints)
	require.NoError(t, err, "Failed to encode QR code")
	return renderMatrix(matrix)
}

// Code128 renders content as a Code 128 barcode of the given size.
func Code128(t *testing.T, content string, width, height int) *image.NRGBA {
	t.Helper()

	matrix, err := oned.NewCode128Writer().Encode(content, gozxing.BarcodeFormat_CODE_128, width, height, nil)
	require.NoError(t, err, "Failed to encode Code 128 barcode")
	return renderMatrix(matrix)
}

func renderMatrix(m *gozxing.BitMatrix) *image.NRGBA {
	w, h := m.GetWidth(), m.GetHeight()
	img := imaging.New(w, h, color.White)
	black := color.NRGBA{A: 255}
	for y := range h {
		for x := range w {
			if m.Get(x, y) {
				img.SetNRGBA(x, y, black)
			}
		}
	}
	return img
}

// Compose draws each placement onto a white canvas of the given size.
func Compose(width, height int, placements ...Placement) *image.NRGBA {
	canvas := imaging.New(width, height, color.White)
	for _, p := range placements {
		canvas = imaging.Paste(canvas, p.Image, p.At)
	}
	return canvas
}

// InkBounds returns the smallest rectangle holding every dark, opaque pixel
// of img, or an empty rectangle when there is none.
func InkBounds(img image.Image) image.Rectangle {
	var r image.Rectangle
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A < 128 || int(c.R)+int(c.G)+int(c.B) >= 3*128 {
				continue
			}
			r = r.Union(image.Rect(x, y, x+1, y+1))
		}
	}
	return r
}

// CreateTestImage creates a uniform image of the given size and color.
func CreateTestImage(width, height int, backgroundColor color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{backgroundColor}, image.Point{}, draw.Src)
	return img
}

// WithTransparentBorder returns img placed on a fully transparent canvas
// padded by border pixels on every side.
func WithTransparentBorder(img image.Image, border int) *image.NRGBA {
	b := img.Bounds()
	canvas := image.NewNRGBA(image.Rect(0, 0, b.Dx()+2*border, b.Dy()+2*border))
	draw.Draw(canvas, image.Rect(border, border, border+b.Dx(), border+b.Dy()), img, b.Min, draw.Src)
	return canvas
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img), "Failed to encode PNG image")
	return buf.Bytes()
}

// EncodeJPEG encodes img as JPEG bytes.
func EncodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)), "Failed to encode JPEG image")
	return buf.Bytes()
}

// SaveImage saves an image to the specified path as PNG.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	dir := filepath.Dir(path)
	require.NoError(t, EnsureDir(dir), "Failed to create directory %s", dir)
	require.NoError(t, os.WriteFile(path, EncodePNG(t, img), 0o600), "Failed to write %s", path)
}

// CompareImages compares two images and returns true if they are similar.
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	bounds1 := img1.Bounds()
	bounds2 := img2.Bounds()

	if bounds1.Size() != bounds2.Size() {
		return false
	}

	var totalDiff float64
	var pixelCount float64

	for y := range bounds1.Dy() {
		for x := range bounds1.Dx() {
			r1, g1, b1, a1 := img1.At(bounds1.Min.X+x, bounds1.Min.Y+y).RGBA()
			r2, g2, b2, a2 := img2.At(bounds2.Min.X+x, bounds2.Min.Y+y).RGBA()

			dr := float64(r1) - float64(r2)
			dg := float64(g1) - float64(g2)
			db := float64(b1) - float64(b2)
			da := float64(a1) - float64(a2)

			totalDiff += math.Sqrt(dr*dr + dg*dg + db*db + da*da)
			pixelCount++
		}
	}
	if pixelCount == 0 {
		return true
	}

	avgDiff := totalDiff / pixelCount
	maxDiff := math.Sqrt(4 * 65535 * 65535)

	return (avgDiff / maxDiff) <= tolerance
}
