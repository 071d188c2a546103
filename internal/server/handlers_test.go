package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/vinscan/internal/barcode"
	"github.com/MeKo-Tech/vinscan/internal/scanner"
	"github.com/MeKo-Tech/vinscan/internal/testutil"
	"github.com/MeKo-Tech/vinscan/internal/utils"
)

const linkPattern = `^/uploads/barcodes/[0-9a-f]{32}\.jpg$`

func whitePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	return testutil.EncodePNG(t, imaging.New(w, h, color.White))
}

func decodeError(t *testing.T, body []byte) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Error
}

func storedFiles(t *testing.T, dir string) []string {
	t.Helper()
	names, err := testutil.ListFiles(dir)
	require.NoError(t, err)
	return names
}

func TestServer_HealthHandler(t *testing.T) {
	server := &Server{}

	tests := []struct {
		name           string
		method         string
		expectedStatus int
		checkResponse  bool
	}{
		{name: "GET request success", method: http.MethodGet, expectedStatus: http.StatusOK, checkResponse: true},
		{name: "POST request not allowed", method: http.MethodPost, expectedStatus: http.StatusMethodNotAllowed},
		{name: "PUT request not allowed", method: http.MethodPut, expectedStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()

			server.healthHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.checkResponse {
				var response HealthResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				assert.Equal(t, "healthy", response.Status)
				assert.NotEmpty(t, response.Time)
				assert.NotEmpty(t, response.Version)
				assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestVindata_NoBarcodes(t *testing.T) {
	srv, store := newTestServer(t, fixedDetector(), Config{})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, createMultipartFormRequest(t, "image", whitePNG(t, 64, 64), "blank.png"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"No barcodes found"}`, w.Body.String())
	assert.Empty(t, storedFiles(t, store.Dir()))
}

func TestVindata_EntriesInDetectorOrder(t *testing.T) {
	dets := []barcode.Detection{
		qrDetection("WVWZZZ1JZXW000001", 50, 50, 20, 20),
		qrDetection("1HGCM82633A004352", 5, 5, 20, 20),
		qrDetection("JH4KA7650MC000000", 80, 10, 15, 15),
	}
	srv, store := newTestServer(t, fixedDetector(dets...), Config{})
	handler := srv.Handler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, createMultipartFormRequest(t, "image", whitePNG(t, 100, 100), "label.png"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Result, len(dets))

	for i, d := range dets {
		entry := resp.Result[i]
		assert.Equal(t, string(d.Payload), entry.BarcodeData)
		assert.Regexp(t, linkPattern, entry.BarcodeLink)

		// Every link resolves to a JPEG.
		gw := httptest.NewRecorder()
		handler.ServeHTTP(gw, httptest.NewRequest(http.MethodGet, entry.BarcodeLink, nil))
		require.Equal(t, http.StatusOK, gw.Code)
		assert.Equal(t, "image/jpeg", gw.Header().Get("Content-Type"))
		img, format, err := utils.DecodeImage(gw.Body.Bytes())
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.Positive(t, img.Bounds().Dx())
	}
	assert.Len(t, storedFiles(t, store.Dir()), len(dets))
}

func TestVindata_RawResponseShape(t *testing.T) {
	srv, _ := newTestServer(t, fixedDetector(qrDetection("ABC", 10, 10, 10, 10)), Config{})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, createMultipartFormRequest(t, "image", whitePNG(t, 40, 40), "a.png"))
	require.Equal(t, http.StatusOK, w.Code)

	var raw map[string][]map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	require.Len(t, raw["result"], 1)
	assert.Len(t, raw["result"][0], 2)
	assert.Equal(t, "ABC", raw["result"][0]["barcode_data"])
	assert.Contains(t, raw["result"][0], "barcode_link")
}

func TestVindata_BadRequests(t *testing.T) {
	srv, store := newTestServer(t, fixedDetector(qrDetection("X", 0, 0, 5, 5)), Config{})
	handler := srv.Handler()

	tests := []struct {
		name    string
		req     func() *http.Request
		status  int
		message string
	}{
		{
			name:    "missing image field",
			req:     func() *http.Request { return createMultipartFormRequest(t, "file", whitePNG(t, 10, 10), "a.png") },
			status:  http.StatusBadRequest,
			message: "No image file provided",
		},
		{
			name: "not multipart",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/vindata", strings.NewReader(`{"image":"x"}`))
				r.Header.Set("Content-Type", "application/json")
				return r
			},
			status:  http.StatusBadRequest,
			message: "No image file provided",
		},
		{
			name:    "random bytes",
			req:     func() *http.Request { return createMultipartFormRequest(t, "image", []byte("\x00\x01garbage\xff"), "x.png") },
			status:  http.StatusBadRequest,
			message: "Invalid image file",
		},
		{
			name:    "empty file",
			req:     func() *http.Request { return createMultipartFormRequest(t, "image", nil, "empty.png") },
			status:  http.StatusBadRequest,
			message: "Invalid image file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, tt.req())

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, tt.message, decodeError(t, w.Body.Bytes()))
		})
	}
	assert.Empty(t, storedFiles(t, store.Dir()))
}

func TestVindata_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, fixedDetector(), Config{})

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(method, "/vindata", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, method)
	}
}

func TestVindata_FileTooLarge(t *testing.T) {
	srv, store := newTestServer(t, fixedDetector(), Config{MaxUploadMB: 1})
	payload := make([]byte, 2*1024*1024)

	t.Run("content length", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, createMultipartFormRequest(t, "image", payload, "big.png"))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, "File too large", decodeError(t, w.Body.Bytes()))
	})

	t.Run("unknown length", func(t *testing.T) {
		req := createMultipartFormRequest(t, "image", payload, "big.png")
		req.ContentLength = -1
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, "File too large", decodeError(t, w.Body.Bytes()))
	})

	assert.Empty(t, storedFiles(t, store.Dir()))
}

func TestVindata_DetectorFailure(t *testing.T) {
	det := barcode.DetectorFunc(func(_ context.Context, _ image.Image) ([]barcode.Detection, error) {
		return nil, errors.New("reader exploded")
	})
	srv, _ := newTestServer(t, det, Config{})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, createMultipartFormRequest(t, "image", whitePNG(t, 20, 20), "a.png"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Barcode detection failed: reader exploded", decodeError(t, w.Body.Bytes()))
}

func TestVindata_SaveFailure(t *testing.T) {
	srv, store := newTestServer(t, fixedDetector(qrDetection("X", 0, 0, 5, 5)), Config{})
	require.NoError(t, os.RemoveAll(store.Dir()))

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, createMultipartFormRequest(t, "image", whitePNG(t, 20, 20), "a.png"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, strings.HasPrefix(decodeError(t, w.Body.Bytes()), "Failed to save image: "))
}

func TestVindata_ScannerErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"invalid image", &utils.ImageProcessingError{Operation: "decode", Err: utils.ErrInvalidImage}, "Invalid image file"},
		{"detect error", &scanner.DetectError{Err: errors.New("bad")}, "Barcode detection failed: bad"},
		{"unexpected", errors.New("weird"), "Barcode detection failed: weird"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(&mockScanner{err: tt.err}, nil, Config{CORSOrigin: "*"})
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, createMultipartFormRequest(t, "image", []byte("x"), "a.png"))
			assert.Equal(t, tt.message, decodeError(t, w.Body.Bytes()))
		})
	}
}

func TestVindata_RealQRCodeWithTransparency(t *testing.T) {
	qr := testutil.QRCode(t, "1HGCM82633A004352", 200)
	upload := testutil.EncodePNG(t, testutil.WithTransparentBorder(qr, 40))

	store := newTestStore(t)
	sc, err := scanner.NewBuilder().
		WithStore(store).
		WithFormats([]barcode.Format{barcode.FormatQR}).
		Build()
	require.NoError(t, err)
	srv := New(sc, store, Config{CORSOrigin: "*"})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, createMultipartFormRequest(t, "image", upload, "vin.png"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Result, 1)
	assert.Equal(t, "1HGCM82633A004352", resp.Result[0].BarcodeData)
	assert.Regexp(t, linkPattern, resp.Result[0].BarcodeLink)

	data, err := os.ReadFile(filepath.Join(store.Dir(), path.Base(resp.Result[0].BarcodeLink)))
	require.NoError(t, err)
	crop, _, err := utils.DecodeImage(data)
	require.NoError(t, err)
	again, err := barcode.NewDetector(barcode.Options{Formats: []barcode.Format{barcode.FormatQR}, TryHarder: true}).
		Detect(context.Background(), crop)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "1HGCM82633A004352", again[0].Text())
}

func TestVindata_RealQRCodes(t *testing.T) {
	img := testutil.Compose(600, 220,
		testutil.Placement{Image: testutil.QRCode(t, "1HGCM82633A004352", 180), At: image.Pt(20, 20)},
		testutil.Placement{Image: testutil.QRCode(t, "WVWZZZ1JZXW000001", 180), At: image.Pt(400, 20)},
	)

	store := newTestStore(t)
	sc, err := scanner.NewBuilder().
		WithStore(store).
		WithFormats([]barcode.Format{barcode.FormatQR}).
		Build()
	require.NoError(t, err)
	srv := New(sc, store, Config{})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, createMultipartFormRequest(t, "image", testutil.EncodePNG(t, img), "two.png"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Result, 2)
	assert.ElementsMatch(t,
		[]string{"1HGCM82633A004352", "WVWZZZ1JZXW000001"},
		[]string{resp.Result[0].BarcodeData, resp.Result[1].BarcodeData})
	assert.Len(t, storedFiles(t, store.Dir()), 2)
}

func TestVindata_ConcurrentUploads(t *testing.T) {
	srv, store := newTestServer(t, fixedDetector(qrDetection("SAME", 10, 10, 20, 20)), Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	const k = 12

	type upload struct {
		body        []byte
		contentType string
	}
	uploads := make([]upload, k)
	for i := range k {
		req := createMultipartFormRequest(t, "image", whitePNG(t, 64, 64), "same.png")
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		uploads[i] = upload{body: body, contentType: req.Header.Get("Content-Type")}
	}

	var wg sync.WaitGroup
	links := make([]string, k)
	errs := make([]error, k)
	for i := range k {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := http.Post(ts.URL+"/vindata", uploads[i].contentType, bytes.NewReader(uploads[i].body))
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			var body ScanResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				errs[i] = err
				return
			}
			if len(body.Result) != 1 {
				errs[i] = errors.New("unexpected result count")
				return
			}
			links[i] = body.Result[0].BarcodeLink
		}(i)
	}
	wg.Wait()

	unique := make(map[string]bool)
	for i := range k {
		require.NoError(t, errs[i])
		assert.Regexp(t, linkPattern, links[i])
		unique[links[i]] = true
	}
	assert.Len(t, unique, k)
	assert.Len(t, storedFiles(t, store.Dir()), k)
}

func TestArtifactHandler(t *testing.T) {
	srv, store := newTestServer(t, fixedDetector(), Config{})
	art, err := store.Save(imaging.New(16, 16, color.Black))
	require.NoError(t, err)

	t.Run("existing artifact", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, art.Link, nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))

		want, err := os.ReadFile(art.Path)
		require.NoError(t, err)
		got, err := io.ReadAll(w.Body)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("missing artifact", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/uploads/barcodes/0123456789abcdef0123456789abcdef.jpg", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"error":"File not found"}`, w.Body.String())
	})

	for _, path := range []string{"/uploads/barcodes/", "/uploads/barcodes/.hidden", "/uploads/barcodes/a/b.jpg"} {
		t.Run("invalid "+path, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.artifactHandler(w, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Equal(t, "File not found", decodeError(t, w.Body.Bytes()))
		})
	}

	t.Run("method not allowed", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.artifactHandler(w, httptest.NewRequest(http.MethodPost, art.Link, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, fixedDetector(), Config{})
	handler := srv.Handler()

	// Produce at least one scan sample.
	handler.ServeHTTP(httptest.NewRecorder(), createMultipartFormRequest(t, "image", whitePNG(t, 8, 8), "a.png"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "vinscan_scans_total")
	assert.Contains(t, body, "vinscan_http_requests_total")
}
