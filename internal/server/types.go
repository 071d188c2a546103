package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/vinscan/internal/scanner"
	"github.com/MeKo-Tech/vinscan/internal/storage"
)

// Scanner is the part of the scan pipeline the server depends on.
type Scanner interface {
	Scan(ctx context.Context, data []byte) (*scanner.Result, error)
}

// ArtifactStore serves saved barcode crops by name.
type ArtifactStore interface {
	Open(name string) (*os.File, error)
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	scanner     Scanner
	store       ArtifactStore
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	urlPrefix   string
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	MaxUploadMB     int64
	TimeoutSec      int
	ShutdownTimeout int
	UploadDir       string
	URLPrefix       string
	JPEGQuality     int
	Scan            scanner.Config
}

// Addr returns the listen address.
func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is returned when an upload holds no barcodes.
type MessageResponse struct {
	Message string `json:"message"`
}

// ResultEntry is one decoded barcode in a scan response.
type ResultEntry struct {
	BarcodeData string `json:"barcode_data"`
	BarcodeLink string `json:"barcode_link"`
}

// ScanResponse is returned when at least one barcode was decoded.
type ScanResponse struct {
	Result []ResultEntry `json:"result"`
}

// NewServer builds the artifact store and scan pipeline from config.
func NewServer(config Config) (*Server, error) {
	quality := config.JPEGQuality
	if quality == 0 {
		quality = storage.DefaultQuality
	}
	store := storage.NewLocalStore(config.UploadDir, config.URLPrefix, storage.WithQuality(quality))
	if err := store.Init(); err != nil {
		return nil, err
	}

	sc, err := scanner.NewBuilder().WithConfig(config.Scan).WithStore(store).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build scanner: %w", err)
	}

	return New(sc, store, config), nil
}

// New wires a server around an existing scanner and store.
func New(sc Scanner, store ArtifactStore, config Config) *Server {
	maxUpload := config.MaxUploadMB
	if maxUpload <= 0 {
		maxUpload = 32
	}
	prefix := config.URLPrefix
	if prefix == "" {
		prefix = storage.DefaultURLPrefix
	}
	return &Server{
		scanner:     sc,
		store:       store,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: maxUpload,
		timeoutSec:  config.TimeoutSec,
		urlPrefix:   "/" + strings.Trim(prefix, "/"),
	}
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/vindata", s.corsMiddleware("/vindata", s.vindataHandler))
	mux.HandleFunc(s.urlPrefix+"/", s.corsMiddleware(s.urlPrefix, s.artifactHandler))
	mux.HandleFunc("/health", s.corsMiddleware("/health", s.healthHandler))
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns a ready-to-serve handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}
