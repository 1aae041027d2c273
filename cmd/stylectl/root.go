package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dunamismax/pixelstyle/internal/logging"
)

var (
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:           "stylectl",
	Short:         "Operate a pixelstyle deployment",
	Long:          "Validate style definitions, upload source content and preview styles locally.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "human", "Output format (json, human)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

func newLogger() (*zap.Logger, error) {
	return logging.New(logLevel, "console")
}

// printResult writes v as indented JSON, or calls human for the default
// format.
func printResult(w io.Writer, v any, human func(io.Writer)) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "human", "":
		human(w)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
}
