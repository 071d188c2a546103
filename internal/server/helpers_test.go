package server

import (
	"bytes"
	"context"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/vinscan/internal/barcode"
	"github.com/MeKo-Tech/vinscan/internal/scanner"
	"github.com/MeKo-Tech/vinscan/internal/storage"
)

// mockScanner returns a canned result, or panics when panicMsg is set.
type mockScanner struct {
	result   *scanner.Result
	err      error
	panicMsg string
}

func (m *mockScanner) Scan(_ context.Context, _ []byte) (*scanner.Result, error) {
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	return m.result, m.err
}

// fixedDetector always reports the given detections.
func fixedDetector(dets ...barcode.Detection) barcode.Detector {
	return barcode.DetectorFunc(func(context.Context, image.Image) ([]barcode.Detection, error) {
		return dets, nil
	})
}

func qrDetection(payload string, x, y, w, h int) barcode.Detection {
	return barcode.Detection{
		Format:  barcode.FormatQR,
		Payload: []byte(payload),
		Box:     barcode.Box{X: x, Y: y, W: w, H: h},
	}
}

// newTestStore creates an initialized store in a temporary directory.
func newTestStore(t *testing.T) *storage.LocalStore {
	t.Helper()

	store := storage.NewLocalStore(filepath.Join(t.TempDir(), "uploads", "barcodes"), storage.DefaultURLPrefix)
	require.NoError(t, store.Init())
	return store
}

// newTestServer wires a real scanner and store around det.
func newTestServer(t *testing.T, det barcode.Detector, cfg Config) (*Server, *storage.LocalStore) {
	t.Helper()

	store := newTestStore(t)

	sc, err := scanner.NewBuilder().WithDetector(det).WithStore(store).Build()
	require.NoError(t, err)

	if cfg.MaxUploadMB == 0 {
		cfg.MaxUploadMB = 32
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	return New(sc, store, cfg), store
}

// createMultipartFormRequest creates a multipart POST /vindata request
// carrying data in the given form field.
func createMultipartFormRequest(t *testing.T, field string, data []byte, filename string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/vindata", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}
