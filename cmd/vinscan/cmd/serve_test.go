package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/vinscan/internal/barcode"
)

func TestServeCommand(t *testing.T) {
	assert.Equal(t, "serve", serveCmd.Use)
	assert.NotEmpty(t, serveCmd.Short)
	assert.Contains(t, serveCmd.Long, "POST /vindata")

	flags := serveCmd.Flags()
	for _, name := range []string{
		"host", "port", "cors-origin", "max-upload-size", "timeout",
		"shutdown-timeout", "upload-dir", "margin", "workers", "formats",
	} {
		assert.NotNil(t, flags.Lookup(name), "missing flag %s", name)
	}
	assert.Equal(t, "H", flags.Lookup("host").Shorthand)
	assert.Equal(t, "p", flags.Lookup("port").Shorthand)
}

func TestServerConfigFromFlagsDefaults(t *testing.T) {
	resetCommandState(t)
	t.Cleanup(func() { resetCommandState(t) })
	require.NoError(t, serveCmd.ParseFlags(nil))

	cfg, err := serverConfigFromFlags(serveCmd)
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "*", cfg.CORSOrigin)
	assert.Equal(t, int64(32), cfg.MaxUploadMB)
	assert.Equal(t, 30, cfg.TimeoutSec)
	assert.Equal(t, 10, cfg.ShutdownTimeout)
	assert.Equal(t, "uploads/barcodes", cfg.UploadDir)
	assert.Equal(t, "/uploads/barcodes", cfg.URLPrefix)
	assert.Equal(t, 5, cfg.Scan.Margin)
	assert.Equal(t, 1, cfg.Scan.Workers)
	assert.Empty(t, cfg.Scan.Formats)
}

func TestServerConfigFromFlagsOverrides(t *testing.T) {
	resetCommandState(t)
	t.Cleanup(func() { resetCommandState(t) })
	dir := t.TempDir()

	require.NoError(t, serveCmd.ParseFlags([]string{
		"--host", "0.0.0.0",
		"-p", "9090",
		"--cors-origin", "https://example.com",
		"--max-upload-size", "8",
		"--timeout", "5",
		"--shutdown-timeout", "2",
		"--upload-dir", dir,
		"--margin", "12",
		"--workers", "4",
		"--formats", "qr,code128",
	}))

	cfg, err := serverConfigFromFlags(serveCmd)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Addr())
	assert.Equal(t, "https://example.com", cfg.CORSOrigin)
	assert.Equal(t, int64(8), cfg.MaxUploadMB)
	assert.Equal(t, 5, cfg.TimeoutSec)
	assert.Equal(t, 2, cfg.ShutdownTimeout)
	assert.Equal(t, dir, cfg.UploadDir)
	assert.Equal(t, 12, cfg.Scan.Margin)
	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.Equal(t, []barcode.Format{barcode.FormatQR, barcode.FormatCode128}, cfg.Scan.Formats)
}

func TestServerConfigFromFlagsEnvironment(t *testing.T) {
	resetCommandState(t)
	t.Cleanup(func() { resetCommandState(t) })
	t.Setenv("VINSCAN_SERVER_PORT", "7070")
	require.NoError(t, serveCmd.ParseFlags(nil))

	cfg, err := serverConfigFromFlags(serveCmd)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
}

func TestServerConfigFromFlagsInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"port out of range", []string{"--port", "70000"}},
		{"zero upload size", []string{"--max-upload-size", "0"}},
		{"zero workers", []string{"--workers", "0"}},
		{"unknown format", []string{"--formats", "morse"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetCommandState(t)
			t.Cleanup(func() { resetCommandState(t) })
			require.NoError(t, serveCmd.ParseFlags(tt.args))

			_, err := serverConfigFromFlags(serveCmd)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}
