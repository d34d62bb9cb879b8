package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tabflow/tabflow/pkg/config"
	"github.com/tabflow/tabflow/pkg/transform"
	"github.com/tabflow/tabflow/pkg/watch"
)

var (
	watchSuffix string
	watchUpload bool
	watchPrefix string
)

var watchCmd = &cobra.Command{
	Use:   "watch <spool-dir> <output-dir>",
	Short: "Watch a spool directory and reshape payload files",
	Long: `Watch a spool directory for payload files and reshape each one to CSV.

When a file matching the suffix is created or written, its tab-delimited
content is reshaped and written to the output directory as a .csv sibling,
and optionally uploaded to the destination bucket.

Examples:
  tabflow watch ./spool ./out
  tabflow watch ./spool ./out --upload --prefix processed/`,
	Args: cobra.ExactArgs(2),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchSuffix, "suffix", ".tsv", "Payload file suffix to watch for")
	watchCmd.Flags().BoolVar(&watchUpload, "upload", false, "Upload reshaped files to the destination bucket")
	watchCmd.Flags().StringVar(&watchPrefix, "prefix", "", "Key prefix for uploaded objects")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	spoolDir, outDir := args[0], args[1]

	cfg := config.Global().Get()
	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	s, err := buildSchema(cfg)
	if err != nil {
		return err
	}

	tr, err := transform.New(s, logger)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var dest destinationPutter
	if watchUpload {
		if err := cfg.Validate(); err != nil {
			return err
		}
		client, err := newDestinationClient(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if err := client.Verify(cmd.Context()); err != nil {
			return err
		}
		dest = client
	}

	w, err := watch.NewWatcher(watchSuffix)
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w.OnChange = func(path string) error {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		out, err := tr.Reshape(raw)
		if err != nil {
			return err
		}

		name := strings.TrimSuffix(filepath.Base(path), watchSuffix) + ".csv"
		outPath := filepath.Join(outDir, name)
		if err := os.WriteFile(outPath, out, 0644); err != nil {
			return err
		}

		if dest != nil {
			if err := dest.Put(ctx, watchPrefix+name, out, "text/csv"); err != nil {
				return err
			}
		}

		logger.Info("msg", "Reshaped payload file",
			"component", "watch",
			"input", path,
			"output", outPath,
			"bytes", len(out))
		return nil
	}

	w.OnError = func(path string, err error) {
		logger.Error("msg", "Watch error",
			"component", "watch",
			"path", path,
			"error", err)
	}

	if err := w.WatchDir(spoolDir); err != nil {
		return err
	}

	logger.Info("msg", "Watching spool directory",
		"component", "watch",
		"dir", spoolDir,
		"suffix", watchSuffix)

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// destinationPutter is the upload surface the watch loop needs.
type destinationPutter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
