package support

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
	gozxing "github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

func renderMatrix(m *gozxing.BitMatrix) *image.NRGBA {
	img := imaging.New(m.GetWidth(), m.GetHeight(), color.White)
	for y := range m.GetHeight() {
		for x := range m.GetWidth() {
			if m.Get(x, y) {
				img.SetNRGBA(x, y, color.NRGBA{A: 255})
			}
		}
	}
	return img
}

func (testCtx *TestContext) setPNG(img image.Image, name string) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode test image: %w", err)
	}
	testCtx.ImageData = buf.Bytes()
	testCtx.ImageName = name
	return nil
}

func (testCtx *TestContext) anImageWithAQRCodeContaining(content string) error {
	m, err := qrcode.NewQRCodeWriter().Encode(content, gozxing.BarcodeFormat_QR_CODE, 200, 200, nil)
	if err != nil {
		return err
	}
	canvas := imaging.Paste(imaging.New(400, 300, color.White), renderMatrix(m), image.Pt(100, 50))
	return testCtx.setPNG(canvas, "label.png")
}

func (testCtx *TestContext) anImageWithTwoQRCodesContainingAnd(left, right string) error {
	canvas := imaging.New(600, 220, color.White)
	for i, content := range []string{left, right} {
		m, err := qrcode.NewQRCodeWriter().Encode(content, gozxing.BarcodeFormat_QR_CODE, 180, 180, nil)
		if err != nil {
			return err
		}
		canvas = imaging.Paste(canvas, renderMatrix(m), image.Pt(20+380*i, 20))
	}
	return testCtx.setPNG(canvas, "two-labels.png")
}

func (testCtx *TestContext) aTransparentImageWithAQRCodeContaining(content string) error {
	m, err := qrcode.NewQRCodeWriter().Encode(content, gozxing.BarcodeFormat_QR_CODE, 200, 200, nil)
	if err != nil {
		return err
	}
	canvas := image.NewNRGBA(image.Rect(0, 0, 280, 280))
	draw.Draw(canvas, image.Rect(40, 40, 240, 240), renderMatrix(m), image.Point{}, draw.Src)
	return testCtx.setPNG(canvas, "transparent.png")
}

func (testCtx *TestContext) anImageWithACode128BarcodeContaining(content string) error {
	m, err := oned.NewCode128Writer().Encode(content, gozxing.BarcodeFormat_CODE_128, 300, 80, nil)
	if err != nil {
		return err
	}
	bar := renderMatrix(m)
	canvas := imaging.Paste(imaging.New(bar.Bounds().Dx()+40, 160, color.White), bar, image.Pt(20, 40))
	return testCtx.setPNG(canvas, "code128.png")
}

func (testCtx *TestContext) aBlankImage() error {
	return testCtx.setPNG(imaging.New(320, 240, color.White), "blank.png")
}

func (testCtx *TestContext) aFileThatIsNotAnImage() error {
	testCtx.ImageData = []byte("definitely not an image")
	testCtx.ImageName = "notes.txt"
	return nil
}

func (testCtx *TestContext) aFileLargerThanMB(mb int) error {
	testCtx.ImageData = bytes.Repeat([]byte{0xFF}, mb*1024*1024+1024)
	testCtx.ImageName = "huge.jpg"
	return nil
}

// RegisterImageSteps registers the steps that prepare upload payloads.
func (testCtx *TestContext) RegisterImageSteps(sc *godog.ScenarioContext) {
	sc.Step(`^an image with a QR code containing "([^"]*)"$`, testCtx.anImageWithAQRCodeContaining)
	sc.Step(`^an image with two QR codes containing "([^"]*)" and "([^"]*)"$`, testCtx.anImageWithTwoQRCodesContainingAnd)
	sc.Step(`^a transparent image with a QR code containing "([^"]*)"$`, testCtx.aTransparentImageWithAQRCodeContaining)
	sc.Step(`^an image with a Code 128 barcode containing "([^"]*)"$`, testCtx.anImageWithACode128BarcodeContaining)
	sc.Step(`^a blank image$`, testCtx.aBlankImage)
	sc.Step(`^a file that is not an image$`, testCtx.aFileThatIsNotAnImage)
	sc.Step(`^a file larger than (\d+) MB$`, testCtx.aFileLargerThanMB)
}
