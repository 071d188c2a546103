package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/vinscan/internal/scanner"
	"github.com/MeKo-Tech/vinscan/internal/storage"
)

// fileResult is the JSON shape of one scanned file.
type fileResult struct {
	File   string          `json:"file"`
	Result *scanner.Result `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// scanCmd scans local image files.
var scanCmd = &cobra.Command{
	Use:   "scan <image>...",
	Short: "Scan image files for barcodes",
	Long: `Detect and decode every barcode in one or more local images.

With --save, a cropped JPEG of each barcode is written to the upload directory,
exactly as the HTTP service would store it.

Examples:
  vinscan scan label.png
  vinscan scan --format json *.jpg
  vinscan scan --save --upload-dir ./crops label.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

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
		save, _ := cmd.Flags().GetBool("save")
		format, _ := cmd.Flags().GetString("format")
		if format != "text" && format != "json" {
			return fmt.Errorf("invalid output format: %s (must be text or json)", format)
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		scanCfg, err := cfg.ToScannerConfig()
		if err != nil {
			return err
		}

		builder := scanner.NewBuilder().WithConfig(scanCfg)
		if save {
			store := storage.NewLocalStore(cfg.Storage.Dir, cfg.Storage.URLPrefix,
				storage.WithQuality(cfg.Storage.JPEGQuality))
			if err := store.Init(); err != nil {
				return err
			}
			builder = builder.WithStore(store)
		}
		sc, err := builder.Build()
		if err != nil {
			return fmt.Errorf("failed to build scanner: %w", err)
		}

		results := make([]fileResult, 0, len(args))
		failed := 0
		for _, path := range args {
			res, err := scanFile(cmd.Context(), sc, path)
			fr := fileResult{File: path, Result: res}
			if err != nil {
				failed++
				fr.Error = err.Error()
				slog.Error("Scan failed", "file", path, "error", err)
			}
			results = append(results, fr)
		}

		out := cmd.OutOrStdout()
		if format == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(results); err != nil {
				return err
			}
		} else {
			writeText(out, results, cfg.Storage.Dir, save)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(args))
		}
		return nil
	},
}

func scanFile(ctx context.Context, sc *scanner.Scanner, path string) (*scanner.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: reading user-supplied image paths is the point of this command
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := sc.Scan(ctx, data)
	if err != nil {
		return nil, err
	}
	slog.Debug("Scanned file", "file", path, "barcodes", len(res.Entries), "duration", time.Since(start))
	return res, nil
}

func writeText(w io.Writer, results []fileResult, dir string, saved bool) {
	for _, fr := range results {
		switch {
		case fr.Error != "":
			_, _ = fmt.Fprintf(w, "%s: error: %s\n", fr.File, fr.Error)
		case !fr.Result.Found():
			_, _ = fmt.Fprintf(w, "%s: no barcodes found\n", fr.File)
		default:
			_, _ = fmt.Fprintf(w, "%s: %d barcode(s)\n", fr.File, len(fr.Result.Entries))
			for i, e := range fr.Result.Entries {
				_, _ = fmt.Fprintf(w, "  [%d] %s %q\n", i+1, e.Format, e.Data)
				if saved && e.Name != "" {
					_, _ = fmt.Fprintf(w, "      saved: %s\n", filepath.Join(dir, e.Name))
				}
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().String("format", "text", "output format: text or json")
	scanCmd.Flags().Bool("save", false, "save a cropped JPEG of each barcode")
	scanCmd.Flags().String("upload-dir", "uploads/barcodes", "directory for cropped barcode images (with --save)")
	scanCmd.Flags().Int("margin", 5, "pixels of context kept around each barcode crop")
	scanCmd.Flags().Int("workers", 1, "parallel crop/save workers per image")
	scanCmd.Flags().StringSlice("formats", nil, "restrict detection to these symbologies (e.g. qr,datamatrix,code128)")
}
