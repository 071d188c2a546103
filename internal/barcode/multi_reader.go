package barcode

import (
	"context"
	"fmt"

	gozxing "github.com/makiuchi-d/gozxing"
)

const (
	minDimensionToRecur = 100
	maxRecursionDepth   = 4
)

// multiReader finds several symbols in one bitmap. After each hit it searches
// the regions left of, above, right of and below the decoded symbol again,
// so a single-symbol reader can report every barcode in the image.
type multiReader struct {
	reader gozxing.Reader
}

func (m *multiReader) decodeMultiple(ctx context.Context, bmp *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{}) ([]*gozxing.Result, error) {
	var results []*gozxing.Result
	if err := m.decode(ctx, bmp, hints, &results, 0, 0, 0); err != nil {
		return nil, err
	}
	return results, nil
}

func (m *multiReader) decode(ctx context.Context, bmp *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{},
	results *[]*gozxing.Result, xOffset, yOffset, depth int,
) error {
	if depth > maxRecursionDepth {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	res, err := m.reader.Decode(bmp, hints)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	if !containsResult(*results, res) {
		*results = append(*results, translateResult(res, xOffset, yOffset))
	}

	pts := res.GetResultPoints()
	if len(pts) == 0 {
		return nil
	}

	width, height := bmp.GetWidth(), bmp.GetHeight()
	minX, minY := float64(width), float64(height)
	maxX, maxY := 0.0, 0.0
	for _, p := range pts {
		if p == nil {
			continue
		}
		minX = min(minX, p.GetX())
		minY = min(minY, p.GetY())
		maxX = max(maxX, p.GetX())
		maxY = max(maxY, p.GetY())
	}

	type region struct{ left, top, width, height int }
	var regions []region
	if minX > minDimensionToRecur {
		regions = append(regions, region{0, 0, int(minX), height})
	}
	if minY > minDimensionToRecur {
		regions = append(regions, region{0, 0, width, int(minY)})
	}
	if maxX < float64(width-minDimensionToRecur) {
		regions = append(regions, region{int(maxX), 0, width - int(maxX), height})
	}
	if maxY < float64(height-minDimensionToRecur) {
		regions = append(regions, region{0, int(maxY), width, height - int(maxY)})
	}

	for _, r := range regions {
		sub, err := bmp.Crop(r.left, r.top, r.width, r.height)
		if err != nil {
			return fmt.Errorf("crop %dx%d+%d+%d: %w", r.width, r.height, r.left, r.top, err)
		}
		if err := m.decode(ctx, sub, hints, results, xOffset+r.left, yOffset+r.top, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func containsResult(results []*gozxing.Result, res *gozxing.Result) bool {
	for _, r := range results {
		if r.GetBarcodeFormat() == res.GetBarcodeFormat() && r.GetText() == res.GetText() {
			return true
		}
	}
	return false
}

// translateResult moves the result points of a decode on a cropped bitmap
// back into the coordinates of the full bitmap.
func translateResult(res *gozxing.Result, xOffset, yOffset int) *gozxing.Result {
	if xOffset == 0 && yOffset == 0 {
		return res
	}
	pts := res.GetResultPoints()
	moved := make([]gozxing.ResultPoint, 0, len(pts))
	for _, p := range pts {
		if p == nil {
			continue
		}
		moved = append(moved, gozxing.NewResultPoint(p.GetX()+float64(xOffset), p.GetY()+float64(yOffset)))
	}
	out := gozxing.NewResult(res.GetText(), res.GetRawBytes(), moved, res.GetBarcodeFormat())
	out.PutAllMetadata(res.GetResultMetadata())
	return out
}
