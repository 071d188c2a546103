package utils

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrInvalidImage reports input that cannot be turned into a usable image.
var ErrInvalidImage = errors.New("invalid image")

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// DecodeImage decodes raw upload bytes. The returned format is the name the
// decoder registered under ("png", "jpeg", "gif", "bmp", "tiff", "webp").
func DecodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", &ImageProcessingError{Operation: "decode", Err: fmt.Errorf("%w: empty input", ErrInvalidImage)}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &ImageProcessingError{Operation: "decode", Err: fmt.Errorf("%w: %v", ErrInvalidImage, err)}
	}

	b := img.Bounds()
	if b.Empty() {
		return nil, "", &ImageProcessingError{Operation: "decode", Err: fmt.Errorf("%w: zero-sized image", ErrInvalidImage)}
	}

	return img, format, nil
}

// EncodeJPEG writes img as a baseline JPEG at the given quality (1..100).
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if img == nil {
		return &ImageProcessingError{Operation: "encode", Err: errors.New("input image is nil")}
	}
	if quality < 1 || quality > 100 {
		return &ImageProcessingError{Operation: "encode", Err: fmt.Errorf("jpeg quality out of range: %d", quality)}
	}
	if err := imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return &ImageProcessingError{Operation: "encode", Err: err}
	}
	return nil
}
