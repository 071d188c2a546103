package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRCode(t *testing.T) {
	img := QRCode(t, "1HGCM82633A004352", 200)
	require.NotNil(t, img)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
	assert.True(t, img.Opaque())

	// The quiet zone is white, the symbol contains black modules.
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, img.NRGBAAt(0, 0))
	var black int
	for y := range 200 {
		for x := range 200 {
			if img.NRGBAAt(x, y).R == 0 {
				black++
			}
		}
	}
	assert.Positive(t, black)
}

func TestQRCodeWithCharset(t *testing.T) {
	img := QRCodeWithCharset(t, "Müller", "ISO-8859-1", 160)
	require.NotNil(t, img)
	assert.Equal(t, 160, img.Bounds().Dx())
	assert.False(t, InkBounds(img).Empty())
}

func TestInkBounds(t *testing.T) {
	block := CreateTestImage(10, 6, color.Black)
	canvas := Compose(50, 40, Placement{Image: block, At: image.Pt(7, 12)})
	assert.Equal(t, image.Rect(7, 12, 17, 18), InkBounds(canvas))

	assert.True(t, InkBounds(CreateTestImage(8, 8, color.White)).Empty())

	// Transparent pixels carry no ink even when their color is black.
	transparent := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	assert.True(t, InkBounds(transparent).Empty())

	offset := WithTransparentBorder(CreateTestImage(4, 4, color.Black), 3)
	assert.Equal(t, image.Rect(3, 3, 7, 7), InkBounds(offset))
}

func TestCode128(t *testing.T) {
	img := Code128(t, "WVWZZZ1JZXW000001", 400, 80)
	require.NotNil(t, img)
	assert.GreaterOrEqual(t, img.Bounds().Dx(), 400)
	assert.Equal(t, 80, img.Bounds().Dy())
}

func TestCompose(t *testing.T) {
	block := CreateTestImage(10, 10, color.Black)
	canvas := Compose(50, 40, Placement{Image: block, At: image.Pt(5, 5)})

	assert.Equal(t, image.Rect(0, 0, 50, 40), canvas.Bounds())
	assert.Equal(t, uint8(0), canvas.NRGBAAt(5, 5).R)
	assert.Equal(t, uint8(0), canvas.NRGBAAt(14, 14).R)
	assert.Equal(t, uint8(255), canvas.NRGBAAt(15, 15).R)
	assert.Equal(t, uint8(255), canvas.NRGBAAt(0, 0).R)
}

func TestWithTransparentBorder(t *testing.T) {
	img := WithTransparentBorder(CreateTestImage(4, 4, color.Black), 3)

	assert.Equal(t, image.Rect(0, 0, 10, 10), img.Bounds())
	assert.Equal(t, uint8(0), img.NRGBAAt(0, 0).A)
	assert.Equal(t, uint8(255), img.NRGBAAt(3, 3).A)
	assert.False(t, img.Opaque())
}

func TestEncodePNG(t *testing.T) {
	src := CreateTestImage(8, 6, color.White)
	data := EncodePNG(t, src)

	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.True(t, CompareImages(src, decoded, 0.0))
}

func TestEncodeJPEG(t *testing.T) {
	data := EncodeJPEG(t, CreateTestImage(8, 8, color.White), 90)
	require.Greater(t, len(data), 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])
}

func TestSaveImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "img.png")
	SaveImage(t, CreateTestImage(5, 5, color.Black), path)
	assert.True(t, FileExists(path))
}

func TestCompareImages(t *testing.T) {
	white := CreateTestImage(10, 10, color.White)
	black := CreateTestImage(10, 10, color.Black)

	assert.True(t, CompareImages(white, white, 0.0))
	assert.False(t, CompareImages(white, black, 0.1))
	assert.False(t, CompareImages(white, CreateTestImage(5, 5, color.White), 1.0))
}
