package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dunamismax/pixelstyle/internal/pipeline"
	"github.com/dunamismax/pixelstyle/internal/style"
)

var stylesCmd = &cobra.Command{
	Use:   "styles",
	Short: "Inspect style definitions",
}

var stylesValidateCmd = &cobra.Command{
	Use:   "validate <dir>",
	Short: "Check every style source in a directory",
	Long:  "Parse every style source in dir the way the API does at startup and build its pipeline. Exits non-zero on the first malformed source.",
	Args:  cobra.ExactArgs(1),
	RunE:  runStylesValidate,
}

var stylesListCmd = &cobra.Command{
	Use:   "list <dir>",
	Short: "List the styles a directory registers",
	Args:  cobra.ExactArgs(1),
	RunE:  runStylesList,
}

func init() {
	stylesCmd.AddCommand(stylesValidateCmd, stylesListCmd)
	rootCmd.AddCommand(stylesCmd)
}

type styleSummary struct {
	Name   string   `json:"name"`
	Steps  []string `json:"steps"`
	Output string   `json:"output,omitempty"`
}

func summarize(def style.Definition) styleSummary {
	steps := make([]string, 0, len(def.Transformations))
	for _, step := range def.Transformations {
		if step.Kind == style.StepResize {
			steps = append(steps, fmt.Sprintf("resize(%dx%d)", step.Width, step.Height))
			continue
		}
		steps = append(steps, string(step.Kind))
	}
	return styleSummary{Name: def.Name, Steps: steps, Output: def.Output.String()}
}

func runStylesValidate(cmd *cobra.Command, args []string) error {
	defs, err := style.Load(args[0])
	if err != nil {
		return err
	}

	builder := pipeline.NewBuilder(pipeline.NewImagingCodec(0))
	for _, def := range defs {
		if _, err := builder.Build(def); err != nil {
			return fmt.Errorf("style %s: %w", def.Name, err)
		}
	}

	return printResult(cmd.OutOrStdout(), map[string]int{"valid": len(defs)}, func(w io.Writer) {
		fmt.Fprintf(w, "%d style source(s) valid\n", len(defs))
	})
}

func runStylesList(cmd *cobra.Command, args []string) error {
	registry := style.NewRegistry()
	if err := registry.LoadDir(args[0]); err != nil {
		return err
	}

	summaries := make([]styleSummary, 0, registry.Len())
	for _, name := range registry.Names() {
		def, _ := registry.Get(name)
		summaries = append(summaries, summarize(def))
	}

	return printResult(cmd.OutOrStdout(), summaries, func(w io.Writer) {
		for _, s := range summaries {
			output := s.Output
			if output == "" {
				output = "native"
			}
			fmt.Fprintf(w, "%-20s %-40s %s\n", s.Name, strings.Join(s.Steps, " > "), output)
		}
	})
}
