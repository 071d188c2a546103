package utils

import (
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

// DefaultMargin is the padding in pixels added around a detected region.
const DefaultMargin = 5

// ErrEmptyRegion is returned when a crop rectangle does not overlap the image.
var ErrEmptyRegion = errors.New("crop region is empty")

// PadBox grows the region r by margin pixels on every side. The low side is
// clamped at zero; the width and height always grow by 2*margin, so the
// returned rectangle may extend past the right or bottom edge of the image.
func PadBox(r image.Rectangle, margin int) image.Rectangle {
	if margin < 0 {
		margin = 0
	}
	x := max(r.Min.X-margin, 0)
	y := max(r.Min.Y-margin, 0)
	w := r.Dx() + 2*margin
	h := r.Dy() + 2*margin
	return image.Rect(x, y, x+w, y+h)
}

// CropRegion copies the part of img covered by rect into a new image anchored
// at (0,0). Extents past the image edges are clamped to the edge; the crop is
// never padded.
func CropRegion(img image.Image, rect image.Rectangle) (image.Image, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "crop", Err: errors.New("input image is nil")}
	}
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return nil, &ImageProcessingError{Operation: "crop", Err: ErrEmptyRegion}
	}
	return imaging.Crop(img, rect), nil
}

// ExtractRegion pads r by margin and crops the result out of img.
func ExtractRegion(img image.Image, r image.Rectangle, margin int) (image.Image, error) {
	return CropRegion(img, PadBox(r, margin))
}
