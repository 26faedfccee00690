// Command transcriber turns live audio into newline-delimited JSON
// transcript events on stdout.
//
// Usage:
//
//	transcriber [flags]            read PCM16 mono 16 kHz from stdin
//	transcriber --device-id 3      capture from audio device 3
//	transcriber --capture          capture from the default loopback device
//	transcriber devices            list audio devices as a JSON array
//
// Logs go to stderr; stdout carries only the JSON line protocol.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/eduardohotta/cortex/internal/config"
)

const (
	serviceName    = "cortex-transcriber"
	serviceVersion = "1.0.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Fatal errors have already been reported on stdout as error lines.
		os.Exit(1)
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// stdout is reserved for the line protocol, so stderr is the default
	var output *os.File
	switch cfg.Output {
	case "stderr", "":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler).With("service", serviceName)
}
