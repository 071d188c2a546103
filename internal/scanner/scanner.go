// Package scanner runs the barcode scan pipeline: decode the upload,
// normalize it, detect barcodes, then crop and save each one.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/vinscan/internal/barcode"
	"github.com/MeKo-Tech/vinscan/internal/storage"
	"github.com/MeKo-Tech/vinscan/internal/utils"
)

// Scanner is safe for concurrent use when its detector and store are.
type Scanner struct {
	cfg      Config
	detector barcode.Detector
	store    Store
}

// Config returns the scanner configuration.
func (s *Scanner) Config() Config { return s.cfg }

// Scan decodes raw image bytes and scans the result.
//
// Undecodable input yields an error wrapping utils.ErrInvalidImage. A
// detector failure yields *DetectError and a crop or save failure
// *storage.SaveError. An image without barcodes is not an error: the
// returned Result has no entries.
func (s *Scanner) Scan(ctx context.Context, data []byte) (*Result, error) {
	start := time.Now()

	img, format, err := utils.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	slog.Debug("Image decoded", "format", format, "bytes", len(data))

	return s.scan(ctx, img, start)
}

// ScanImage scans an already decoded image.
func (s *Scanner) ScanImage(ctx context.Context, img image.Image) (*Result, error) {
	return s.scan(ctx, img, time.Now())
}

func (s *Scanner) scan(ctx context.Context, img image.Image, start time.Time) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	norm, err := utils.Normalize(img)
	if err != nil {
		return nil, err
	}
	bounds := norm.Bounds()
	res := &Result{Width: bounds.Dx(), Height: bounds.Dy()}
	res.DecodeNs = time.Since(start).Nanoseconds()

	detectStart := time.Now()
	detections, err := s.detector.Detect(ctx, norm)
	res.DetectNs = time.Since(detectStart).Nanoseconds()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &DetectError{Err: err}
	}

	if len(detections) == 0 {
		res.TotalNs = time.Since(start).Nanoseconds()
		slog.Debug("No barcodes found", "width", res.Width, "height", res.Height)
		return res, nil
	}

	saveStart := time.Now()
	entries, err := s.processDetections(ctx, norm, detections)
	res.SaveNs = time.Since(saveStart).Nanoseconds()
	if err != nil {
		slog.Warn("Scan aborted; artifacts saved before the failure remain on disk",
			"detections", len(detections), "error", err)
		return nil, err
	}
	res.Entries = entries
	res.TotalNs = time.Since(start).Nanoseconds()

	slog.Debug("Scan complete",
		"barcodes", len(entries),
		"detect_ms", float64(res.DetectNs)/1e6,
		"total_ms", float64(res.TotalNs)/1e6)
	return res, nil
}

// processDetections crops and saves every detection. Entries are returned in
// detection order regardless of the worker count.
func (s *Scanner) processDetections(ctx context.Context, img image.Image, dets []barcode.Detection) ([]Entry, error) {
	entries := make([]Entry, len(dets))

	if s.cfg.Workers <= 1 || len(dets) == 1 {
		for i, d := range dets {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			e, err := s.processOne(i, img, d)
			if err != nil {
				return nil, err
			}
			entries[i] = e
		}
		return entries, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, d := range dets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e, err := s.processOne(i, img, d)
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Scanner) processOne(i int, img image.Image, d barcode.Detection) (Entry, error) {
	e := Entry{
		Data:   d.Text(),
		Format: d.Format.String(),
		Box:    d.Box,
	}
	if s.store == nil {
		return e, nil
	}

	e.Crop = utils.PadBox(d.Box.Rect(), s.cfg.Margin).Intersect(img.Bounds())
	crop, err := utils.CropRegion(img, e.Crop)
	if err != nil {
		return Entry{}, &storage.SaveError{Err: fmt.Errorf("crop barcode %d: %w", i, err)}
	}

	art, err := s.store.Save(crop)
	if err != nil {
		var se *storage.SaveError
		if errors.As(err, &se) {
			return Entry{}, err
		}
		return Entry{}, &storage.SaveError{Err: err}
	}
	e.Link = art.Link
	e.Name = art.Name
	return e, nil
}
