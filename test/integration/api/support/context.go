package support

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/vinscan/internal/barcode"
	"github.com/MeKo-Tech/vinscan/internal/scanner"
	"github.com/MeKo-Tech/vinscan/internal/server"
	"github.com/MeKo-Tech/vinscan/internal/storage"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Test environment
	TempDir   string
	UploadDir string

	// Server under test
	HTTPServer  *httptest.Server
	MaxUploadMB int64

	// Request state
	ImageData []byte
	ImageName string

	// HTTP response state
	LastHTTPStatusCode int
	LastHTTPResponse   []byte
	LastHTTPHeaders    http.Header
}

// NewTestContext creates a fresh scenario context with its own temp directory.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "vinscan-integration-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &TestContext{
		TempDir:     tempDir,
		MaxUploadMB: 10,
	}, nil
}

// StartServer starts the service in-process against a real scanner and store.
func (testCtx *TestContext) StartServer(formatNames []string) error {
	if testCtx.HTTPServer != nil {
		testCtx.HTTPServer.Close()
	}

	formats, err := barcode.ParseFormats(formatNames)
	if err != nil {
		return err
	}

	testCtx.UploadDir = filepath.Join(testCtx.TempDir, "uploads")
	srv, err := server.NewServer(server.Config{
		CORSOrigin:  "*",
		MaxUploadMB: testCtx.MaxUploadMB,
		TimeoutSec:  30,
		UploadDir:   testCtx.UploadDir,
		URLPrefix:   storage.DefaultURLPrefix,
		JPEGQuality: storage.DefaultQuality,
		Scan: scanner.Config{
			Margin:    5,
			Workers:   2,
			Formats:   formats,
			TryHarder: true,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	testCtx.HTTPServer = httptest.NewServer(srv.Handler())
	return nil
}

// URL returns the absolute URL for path on the running server.
func (testCtx *TestContext) URL(path string) string {
	return testCtx.HTTPServer.URL + path
}

// Cleanup stops the server and removes scenario files.
func (testCtx *TestContext) Cleanup() error {
	if testCtx.HTTPServer != nil {
		testCtx.HTTPServer.Close()
		testCtx.HTTPServer = nil
	}
	return os.RemoveAll(testCtx.TempDir)
}
