package main

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"metamorph/internal/report"
)

// =============================================================================
// REPORT COMMAND - Rendered impact summary
// =============================================================================

var reportRaw bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render an impact report over the recorded history",
	Long: `Aggregates every recorded cycle and applied modification into a
Markdown report: outcomes per hypothesis kind, net source growth, and a
per-modification impact classification.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().BoolVar(&reportRaw, "raw", false, "print raw Markdown instead of rendering for the terminal")
}

func runReport(cmd *cobra.Command, args []string) error {
	led, err := openLedger()
	if err != nil {
		return err
	}
	defer led.Close()

	rep, err := report.NewGenerator(led).Build(nil)
	if err != nil {
		return err
	}
	md := report.Markdown(rep)

	if reportRaw {
		fmt.Print(md)
		return nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		fmt.Print(md)
		return nil
	}
	rendered, err := renderer.Render(md)
	if err != nil {
		fmt.Print(md)
		return nil
	}
	fmt.Print(rendered)
	return nil
}
