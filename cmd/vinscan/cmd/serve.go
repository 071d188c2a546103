package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/vinscan/internal/server"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the barcode API",
	Long: `Start an HTTP server that accepts image uploads and returns decoded barcodes.

The server provides the following endpoints:
  POST /vindata              - Scan an uploaded image (multipart field "image")
  GET  /uploads/barcodes/... - Download a cropped barcode image
  GET  /health               - Health check endpoint
  GET  /metrics              - Prometheus metrics

Examples:
  vinscan serve
  vinscan serve --port 8080
  vinscan serve --host 0.0.0.0 --port 3000 --upload-dir /var/lib/vinscan`,
	RunE: func(cmd *cobra.Command, args []string) error {
		serverConfig, err := serverConfigFromFlags(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		scanServer, err := server.NewServer(serverConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}

		httpServer := &http.Server{
			Addr:              serverConfig.Addr(),
			Handler:           scanServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       time.Duration(serverConfig.TimeoutSec) * time.Second,
			WriteTimeout:      time.Duration(serverConfig.TimeoutSec) * time.Second,
		}

		go func() {
			slog.Info("Starting barcode server",
				"host", serverConfig.Host,
				"port", serverConfig.Port,
				"upload_dir", serverConfig.UploadDir)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		shutdownTimeout := serverConfig.ShutdownTimeout
		slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
			return err
		}

		slog.Info("Graceful shutdown completed")
		return nil
	},
}

// serverConfigFromFlags merges the loaded configuration with any serve
// flags the user set explicitly.
func serverConfigFromFlags(cmd *cobra.Command) (server.Config, error) {
	// Get configuration from centralized system (includes config file, env vars, and defaults)
	cfg := GetConfig()

	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("cors-origin") {
		cfg.Server.CORSOrigin, _ = cmd.Flags().GetString("cors-origin")
	}
	if cmd.Flags().Changed("max-upload-size") {
		cfg.Server.MaxUploadMB, _ = cmd.Flags().GetInt("max-upload-size")
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Server.TimeoutSec, _ = cmd.Flags().GetInt("timeout")
	}
	if cmd.Flags().Changed("shutdown-timeout") {
		cfg.Server.ShutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
	}
	if cmd.Flags().Changed("upload-dir") {
		cfg.Storage.Dir, _ = cmd.Flags().GetString("upload-dir")
	}
	if cmd.Flags().Changed("margin") {
		cfg.Scan.Margin, _ = cmd.Flags().GetInt("margin")
	}
	if cmd.Flags().Changed("workers") {
		cfg.Scan.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("formats") {
		cfg.Scan.Formats, _ = cmd.Flags().GetStringSlice("formats")
	}

	if err := cfg.Validate(); err != nil {
		return server.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg.ToServerConfig()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 32, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 30, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	// Scan customization flags
	serveCmd.Flags().String("upload-dir", "uploads/barcodes", "directory for cropped barcode images")
	serveCmd.Flags().Int("margin", 5, "pixels of context kept around each barcode crop")
	serveCmd.Flags().Int("workers", 1, "parallel crop/save workers per request")
	serveCmd.Flags().StringSlice("formats", nil, "restrict detection to these symbologies (e.g. qr,datamatrix,code128)")
}
