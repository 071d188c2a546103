package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/vinscan/internal/scanner"
	"github.com/MeKo-Tech/vinscan/internal/storage"
	"github.com/MeKo-Tech/vinscan/internal/utils"
	"github.com/MeKo-Tech/vinscan/internal/version"
)

const (
	msgFileTooLarge  = "File too large"
	msgNoImage       = "No image file provided"
	msgInvalidImage  = "Invalid image file"
	msgNoBarcodes    = "No barcodes found"
	msgFileNotFound  = "File not found"
	msgSaveFailed    = "Failed to save image"
	msgDetectFailed  = "Barcode detection failed"
	msgInternalError = "Internal server error"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// vindataHandler scans an uploaded image for barcodes.
func (s *Server) vindataHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := s.maxUploadMB * 1024 * 1024
	if r.ContentLength > limit {
		scansTotal.WithLabelValues("too_large").Inc()
		s.writeErrorResponse(w, msgFileTooLarge, http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(strings.ToLower(err.Error()), "request body too large") {
			scansTotal.WithLabelValues("too_large").Inc()
			s.writeErrorResponse(w, msgFileTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		scansTotal.WithLabelValues("no_image").Inc()
		s.writeErrorResponse(w, msgNoImage, http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("image")
	if err != nil {
		scansTotal.WithLabelValues("no_image").Inc()
		s.writeErrorResponse(w, msgNoImage, http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	if header.Size > limit {
		scansTotal.WithLabelValues("too_large").Inc()
		s.writeErrorResponse(w, msgFileTooLarge, http.StatusRequestEntityTooLarge)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, msgNoImage, http.StatusBadRequest)
		return
	}
	uploadSizeBytes.Observe(float64(len(data)))

	ctx := r.Context()
	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	start := time.Now()
	res, err := s.scanner.Scan(ctx, data)
	scanDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.writeScanError(w, err)
		return
	}

	barcodesPerScan.Observe(float64(len(res.Entries)))
	if !res.Found() {
		scansTotal.WithLabelValues("empty").Inc()
		writeJSON(w, http.StatusOK, MessageResponse{Message: msgNoBarcodes})
		return
	}

	scansTotal.WithLabelValues("found").Inc()
	artifactsSavedTotal.Add(float64(len(res.Entries)))

	out := ScanResponse{Result: make([]ResultEntry, len(res.Entries))}
	for i, e := range res.Entries {
		out.Result[i] = ResultEntry{BarcodeData: e.Data, BarcodeLink: e.Link}
	}
	slog.Info("Scan completed", "filename", header.Filename, "barcodes", len(out.Result),
		"total_ms", float64(res.TotalNs)/1e6)
	writeJSON(w, http.StatusOK, out)
}

// writeScanError maps scan pipeline errors to HTTP responses.
func (s *Server) writeScanError(w http.ResponseWriter, err error) {
	var (
		saveErr   *storage.SaveError
		detectErr *scanner.DetectError
	)
	switch {
	case errors.Is(err, utils.ErrInvalidImage):
		scansTotal.WithLabelValues("invalid").Inc()
		s.writeErrorResponse(w, msgInvalidImage, http.StatusBadRequest)
	case errors.As(err, &saveErr):
		scansTotal.WithLabelValues("save_error").Inc()
		slog.Error("Failed to save barcode artifact", "error", err)
		s.writeErrorResponse(w, fmt.Sprintf("%s: %v", msgSaveFailed, saveErr), http.StatusInternalServerError)
	case errors.As(err, &detectErr):
		scansTotal.WithLabelValues("detect_error").Inc()
		slog.Error("Barcode detection failed", "error", err)
		s.writeErrorResponse(w, fmt.Sprintf("%s: %v", msgDetectFailed, detectErr.Err), http.StatusInternalServerError)
	default:
		scansTotal.WithLabelValues("detect_error").Inc()
		slog.Error("Scan failed", "error", err)
		s.writeErrorResponse(w, fmt.Sprintf("%s: %v", msgDetectFailed, err), http.StatusInternalServerError)
	}
}

// artifactHandler serves a saved barcode crop.
func (s *Server) artifactHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, s.urlPrefix+"/")
	f, err := s.store.Open(name)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrInvalidName) {
			slog.Error("Failed to open artifact", "name", name, "error", err)
		}
		s.writeErrorResponse(w, msgFileNotFound, http.StatusNotFound)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		s.writeErrorResponse(w, msgFileNotFound, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Log error, but can't send another response
		slog.Error("Failed to encode response", "error", err)
	}
}
