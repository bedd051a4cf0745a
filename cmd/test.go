package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pdfregress/internal/logger"
	"pdfregress/internal/regression"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Compare the current rendering against the baseline",
	Long: `Render the fixture through the configured endpoint, verify the text invariants
and compare every configured page against its baseline raster.

A page fails when its drift (the share of pixels whose largest RGB channel
difference exceeds pixel_channel_threshold) is above max_diff_pct_per_page, or
when it has no baseline image. All pages are checked before the verdict; the
per-page drift is printed as JSON on stdout.`,
	Example: `  # Verify against the stored baseline
  pdfregress test

  # Compare four pages at a time and keep diff images of failing pages
  pdfregress test --jobs 4 --diff-dir /tmp/pdf-diff`,
	Args: cobra.NoArgs,
	RunE: runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	log := logger.WithMode("cmd", regression.ModeTest)

	ctx, cancel := createContext(log)
	defer cancel()

	runner, err := newRunner(cmd, log)
	if err != nil {
		return handleRunError(err, log)
	}

	report, err := runner.Test(ctx)
	if report != nil {
		printReport(cmd.OutOrStdout(), report)
	}
	if err != nil {
		return handleRunError(err, log)
	}
	if err := report.Err(); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "PDF regression passed.")
	return nil
}

func printReport(w io.Writer, report *regression.Report) {
	fmt.Fprintln(w, string(report.Summary()))
	for _, p := range report.Pages() {
		if p.DiffImage != "" {
			fmt.Fprintf(w, "page %d diff image: %s\n", p.Page, p.DiffImage)
		}
	}
}
