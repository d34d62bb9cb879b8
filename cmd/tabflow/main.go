// TabFlow - streaming record-transform stage
// Reshapes tab-delimited clickstream payloads into CSV for delivery storage.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/lixenwraith/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/tabflow/tabflow/pkg/config"
	"github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/firehose"
	"github.com/tabflow/tabflow/pkg/transform"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	inputFile    string
	outputFile   string
	eventMode    bool
	uploadKey    string
	workersFlag  int
	showProgress bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tabflow",
	Short: "TabFlow - Reshape delimited log records for delivery pipelines",
	Long: `TabFlow is a record-transformation stage for streaming delivery pipelines.

It decodes base64 record payloads, parses them as tab-delimited clickstream
text against a fixed column set, and re-encodes the valid rows as CSV, with
per-record failure isolation: one malformed record never aborts a batch.`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Reshape a payload file or a full invocation event",
	Long: `Reshape tab-delimited payload text into CSV.

By default the input is a decoded payload file. With --event the input is a
full invocation event document (JSON with base64 record payloads) and the
output is the matching response document.

Examples:
  tabflow transform -i clicks.tsv -o clicks.csv
  tabflow transform --event -i event.json -o response.json
  tabflow transform -i clicks.tsv --upload processed/clicks.csv`,
	RunE: runTransform,
}

func init() {
	cfg := config.Global().Get()

	transformCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input file (default stdin)")
	transformCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default stdout)")
	transformCmd.Flags().BoolVar(&eventMode, "event", false, "Treat input as an invocation event document")
	transformCmd.Flags().StringVar(&uploadKey, "upload", "", "Upload the output to the destination bucket under this key")
	transformCmd.Flags().IntVar(&workersFlag, "workers", cfg.Transform.Workers, "Concurrent record workers (event mode)")
	transformCmd.Flags().BoolVar(&showProgress, "progress", false, "Show per-record progress (event mode)")

	rootCmd.AddCommand(transformCmd)
}

func runTransform(cmd *cobra.Command, args []string) error {
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

	input, err := readInput(inputFile)
	if err != nil {
		return err
	}

	var output []byte
	if eventMode {
		output, err = transformEvent(cmd, cfg, tr, logger, input)
	} else {
		output, err = tr.Reshape(input)
	}
	if err != nil {
		return err
	}

	if err := writeOutput(outputFile, output); err != nil {
		return err
	}

	if uploadKey != "" {
		if err := cfg.Validate(); err != nil {
			return err
		}
		client, err := newDestinationClient(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		contentType := "text/csv"
		if eventMode {
			contentType = "application/json"
		}
		if err := client.Put(cmd.Context(), uploadKey, output, contentType); err != nil {
			return err
		}
		logger.Info("msg", "Uploaded output",
			"component", "cli",
			"bucket", client.Bucket(),
			"key", uploadKey)
	}

	return nil
}

// transformEvent runs a full invocation event through the batch handler and
// returns the response document.
func transformEvent(cmd *cobra.Command, cfg *config.Config, tr *transform.Transformer, logger *log.Logger, input []byte) ([]byte, error) {
	var event firehose.Event
	if err := json.Unmarshal(input, &event); err != nil {
		return nil, fmt.Errorf("invalid event document: %w", err)
	}

	opts := []firehose.Option{firehose.WithWorkers(workersFlag)}
	if showProgress {
		bar := progressbar.NewOptions64(int64(len(event.Records)),
			progressbar.OptionSetDescription("transforming"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
		)
		opts = append(opts, firehose.WithObserver(func(firehose.TransformedRecord) {
			bar.Add(1)
		}))
	}

	h := firehose.NewHandler(tr, cfg.Storage.Bucket, logger, opts...)
	resp, err := h.Handle(cmd.Context(), event)
	if err != nil {
		return nil, err
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to write output file")
	}
	return nil
}
