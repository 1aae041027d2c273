package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dunamismax/pixelstyle/internal/pipeline"
	"github.com/dunamismax/pixelstyle/internal/style"
	"github.com/dunamismax/pixelstyle/internal/target"
)

var (
	previewStylesDir string
	previewOut       string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print format and dimensions of an image file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var previewCmd = &cobra.Command{
	Use:   "preview <style> <file>",
	Short: "Render a local file through a style",
	Long:  "Render a local file through a style without any storage. A double extension on the output path (photo.png.webp) overrides the style's output format like it does for request paths.",
	Args:  cobra.ExactArgs(2),
	RunE:  runPreview,
}

func init() {
	previewCmd.Flags().StringVar(&previewStylesDir, "styles-dir", "./styles", "Directory holding style sources")
	previewCmd.Flags().StringVarP(&previewOut, "out", "o", "", "Output file (required)")
	_ = previewCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(inspectCmd, previewCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	builder, err := pipeline.NewDefaultBuilder()
	if err != nil {
		return err
	}
	defer pipeline.Shutdown()

	meta, err := builder.Inspect(cmd.Context(), data)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", args[0], err)
	}
	return printMetadata(cmd.OutOrStdout(), args[0], meta)
}

func runPreview(cmd *cobra.Command, args []string) error {
	registry := style.NewRegistry()
	if err := registry.LoadDir(previewStylesDir); err != nil {
		return err
	}
	def, ok := registry.Get(args[0])
	if !ok {
		return fmt.Errorf("style not found: %s", args[0])
	}
	def = target.Parse(previewOut).Apply(def)

	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[1], err)
	}

	builder, err := pipeline.NewDefaultBuilder()
	if err != nil {
		return err
	}
	defer pipeline.Shutdown()

	p, err := builder.Build(def)
	if err != nil {
		return err
	}
	out, meta, err := p.Run(cmd.Context(), data)
	if err != nil {
		return fmt.Errorf("render %s: %w", args[1], err)
	}

	f, err := os.Create(previewOut)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, bytes.NewReader(out)); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return printMetadata(cmd.OutOrStdout(), previewOut, meta)
}

func printMetadata(w io.Writer, name string, meta pipeline.Metadata) error {
	return printResult(w, meta, func(w io.Writer) {
		fmt.Fprintf(w, "%s: %s %dx%d, %d bytes (%s)\n", name, meta.Format, meta.Width, meta.Height, meta.Size, meta.ContentType())
	})
}
