package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// errReported is returned by commands that already printed their failure.
var errReported = errors.New("failure reported")

var (
	logFormat string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "apkharbor",
	Short: "Publish Android APKs and App Bundles to Google Play",
	Long: `apkharbor uploads APK and AAB files, their mapping and expansion files
to Google Play and assigns them to a release track. It runs as a CI step
or as a small HTTP service.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log output format (json or text)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", logLevel)
	}
	opts := &slog.HandlerOptions{Level: level}

	var log *slog.Logger
	switch strings.ToLower(logFormat) {
	case "json":
		log = slog.New(slog.NewJSONHandler(w, opts))
	case "text":
		log = slog.New(slog.NewTextHandler(w, opts))
	default:
		return nil, fmt.Errorf("invalid --log-format %q", logFormat)
	}
	slog.SetDefault(log)
	return log, nil
}

func userAgent() string {
	return "apkharbor/" + Version
}

func stderrLogger() (*slog.Logger, error) {
	return newLogger(os.Stderr)
}
