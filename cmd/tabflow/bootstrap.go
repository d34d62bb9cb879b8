package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/lixenwraith/log"

	"github.com/tabflow/tabflow/pkg/config"
	"github.com/tabflow/tabflow/pkg/schema"
	"github.com/tabflow/tabflow/pkg/storage/s3"
)

// initLogger sets up the structured logger based on configuration.
func initLogger(cfg *config.Config) (*log.Logger, error) {
	logger := log.NewLogger()

	if cfg.Logging.Quiet {
		err := logger.ApplyConfigString(
			"disable_file=true",
			"enable_console=false",
			"level=255")
		if err != nil {
			return logger, err
		}
		return logger, logger.Start()
	}

	levelValue, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	err = logger.ApplyConfigString(
		fmt.Sprintf("level=%d", levelValue),
		"disable_file=true",
		"enable_console=true",
		"console_target=stderr")
	if err != nil {
		return logger, err
	}
	return logger, logger.Start()
}

// parseLogLevel converts a level name to its numeric value.
func parseLogLevel(level string) (int, error) {
	switch strings.ToLower(level) {
	case "debug":
		return int(log.LevelDebug), nil
	case "info", "":
		return int(log.LevelInfo), nil
	case "warn", "warning":
		return int(log.LevelWarn), nil
	case "error":
		return int(log.LevelError), nil
	default:
		return 0, fmt.Errorf("invalid log level: %q", level)
	}
}

// buildSchema derives the wire schema from configuration. The clickstream
// default applies unless overridden.
func buildSchema(cfg *config.Config) (schema.Schema, error) {
	s := schema.Clickstream()

	if len(cfg.Transform.Fields) > 0 {
		s.Fields = cfg.Transform.Fields
	}
	if cfg.Transform.Delimiter != "" {
		if len(cfg.Transform.Delimiter) != 1 {
			return schema.Schema{}, fmt.Errorf("delimiter must be a single character, got %q", cfg.Transform.Delimiter)
		}
		s.Delimiter = cfg.Transform.Delimiter[0]
	}

	if err := s.Validate(); err != nil {
		return schema.Schema{}, err
	}
	return s, nil
}

// newDestinationClient creates the S3 client for the configured destination.
func newDestinationClient(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	s3cfg := s3.DefaultConfig(cfg.Storage.Bucket, cfg.Storage.Region)
	s3cfg.Endpoint = cfg.Storage.Endpoint
	s3cfg.UsePathStyle = cfg.Storage.UsePathStyle
	return s3.NewClient(ctx, s3cfg)
}
