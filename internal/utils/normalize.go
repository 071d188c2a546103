package utils

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Normalize converts img into the canonical detection/encoding form: an
// *image.NRGBA anchored at (0,0) whose pixels are all fully opaque.
//
// Images that carry an alpha channel (including paletted images with a
// transparent palette entry) are composited onto a white canvas of the same
// size using their own alpha as the mask. Everything else is converted
// directly. An image that is already canonical is returned as is.
func Normalize(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "normalize", Err: fmt.Errorf("%w: input image is nil", ErrInvalidImage)}
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, &ImageProcessingError{Operation: "normalize", Err: fmt.Errorf("%w: zero-sized image", ErrInvalidImage)}
	}

	if isCanonical(img) {
		return img, nil
	}

	if HasAlpha(img) {
		src := img
		if p, ok := img.(*image.Paletted); ok {
			// Expand palette indices to explicit per-pixel alpha first.
			src = imaging.Clone(p)
		}
		canvas := imaging.New(b.Dx(), b.Dy(), color.White)
		return imaging.Overlay(canvas, src, image.Pt(0, 0), 1.0), nil
	}

	return imaging.Clone(img), nil
}

// HasAlpha reports whether img has an alpha channel in its color model.
// Paletted images count only when at least one palette entry is not opaque.
func HasAlpha(img image.Image) bool {
	switch m := img.(type) {
	case *image.NRGBA, *image.RGBA, *image.NRGBA64, *image.RGBA64,
		*image.Alpha, *image.Alpha16, *image.NYCbCrA:
		return true
	case *image.Paletted:
		for _, c := range m.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func isCanonical(img image.Image) bool {
	n, ok := img.(*image.NRGBA)
	if !ok {
		return false
	}
	return n.Rect.Min == (image.Point{}) && n.Opaque()
}
