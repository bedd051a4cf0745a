package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pdfregress/internal/config"
	"pdfregress/internal/logger"
)

var version = "1.0.0"

// appConfig holds the environment configuration; flags override it.
var appConfig = config.Default()

// errModeRequired is returned when pdfregress runs without a mode.
var errModeRequired = errors.New("a mode is required: calibrate or test")

var rootCmd = &cobra.Command{
	Use:   "pdfregress <calibrate|test>",
	Short: "Visual and textual regression check for the PDF report renderer",
	Long: `pdfregress renders a fixed fixture through the report renderer and checks the
result against a calibrated baseline.

  calibrate  render the fixture, verify the text invariants and store one
             page raster per configured page as the new baseline
  test       render the fixture again, verify the text invariants and compare
             every configured page against its baseline

The calibration file (JSON or YAML) names the fixture, the renderer endpoint,
the pages to compare, the baseline directory, the text invariants and the drift
thresholds. pdftoppm and pdftotext (poppler-utils) must be installed.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return errModeRequired
	},
}

// Execute runs the root command with cfg as the flag defaults and exits
// non-zero on any failure.
func Execute(cfg *config.Config) {
	log := logger.WithComponent("cmd")
	if cfg != nil {
		appConfig = cfg
	}

	if err := rootCmd.Execute(); err != nil {
		log.Debug().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	defaults := config.Default()
	rootCmd.PersistentFlags().StringP("config", "c", defaults.ConfigPath, "Calibration file, relative to --root (env PDFREGRESS_CONFIG)")
	rootCmd.PersistentFlags().String("root", defaults.RootDir, "Directory relative paths resolve against (env PDFREGRESS_ROOT)")
	rootCmd.PersistentFlags().Duration("timeout", defaults.RenderTimeout, "Render request timeout (env PDFREGRESS_RENDER_TIMEOUT)")
	rootCmd.PersistentFlags().IntP("jobs", "j", defaults.Jobs, "Pages extracted and compared concurrently (env PDFREGRESS_JOBS)")
	rootCmd.PersistentFlags().String("diff-dir", "", "Write a diff image for every failing page into this directory")
}
