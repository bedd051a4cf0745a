package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"pdfregress/internal/logger"
	"pdfregress/internal/regression"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Render the fixture and store its pages as the new baseline",
	Long: `Render the fixture through the configured endpoint, verify the text invariants
and store one raster per configured page in the baseline directory,
overwriting earlier images. The calibration file gets a fresh "calibration"
block with the timestamp and the invariant results.

Nothing is written if any invariant fails or any page cannot be rasterized.`,
	Example: `  # Establish a baseline with the default calibration file
  pdfregress calibrate

  # Use a YAML calibration file from another checkout
  pdfregress calibrate --root ../reports --config regress/calibration.yaml`,
	Args: cobra.NoArgs,
	RunE: runCalibrate,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	log := logger.WithMode("cmd", regression.ModeCalibrate)

	ctx, cancel := createContext(log)
	defer cancel()

	runner, err := newRunner(cmd, log)
	if err != nil {
		return handleRunError(err, log)
	}

	res, err := runner.Calibrate(ctx)
	if err != nil {
		return handleRunError(err, log)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Calibration baseline updated in %s\n", res.BaselineDir)
	return nil
}
