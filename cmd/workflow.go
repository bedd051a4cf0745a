package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pdfregress/internal/calibration"
	"pdfregress/internal/extract"
	"pdfregress/internal/regression"
	"pdfregress/internal/render"
)

// runSettings is appConfig with the command-line flags applied.
type runSettings struct {
	configPath string
	root       string
	timeout    time.Duration
	jobs       int
	diffDir    string
}

func settingsFromFlags(cmd *cobra.Command) runSettings {
	s := runSettings{
		configPath: appConfig.ConfigPath,
		root:       appConfig.RootDir,
		timeout:    appConfig.RenderTimeout,
		jobs:       appConfig.Jobs,
	}
	flags := cmd.Flags()
	if flags.Changed("config") {
		s.configPath, _ = flags.GetString("config")
	}
	if flags.Changed("root") {
		s.root, _ = flags.GetString("root")
	}
	if flags.Changed("timeout") {
		s.timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("jobs") {
		s.jobs, _ = flags.GetInt("jobs")
	}
	s.diffDir, _ = flags.GetString("diff-dir")

	if !filepath.IsAbs(s.configPath) {
		s.configPath = filepath.Join(s.root, s.configPath)
	}
	return s
}

// newRunner checks the environment, loads the calibration file and wires the
// workflow collaborators.
func newRunner(cmd *cobra.Command, log zerolog.Logger) (*regression.Runner, error) {
	s := settingsFromFlags(cmd)
	if s.timeout <= 0 {
		return nil, fmt.Errorf("--timeout must be positive")
	}
	if s.jobs <= 0 {
		return nil, fmt.Errorf("--jobs must be positive")
	}

	poppler := extract.NewPoppler(
		extract.WithBinaries(appConfig.PdftoppmBin, appConfig.PdftotextBin),
		extract.WithDPI(appConfig.RasterDPI),
	)
	if err := poppler.RequireTools(); err != nil {
		return nil, err
	}

	file := calibration.File{Path: s.configPath}
	cal, err := file.Load()
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("config", s.configPath).
		Str("endpoint", cal.Endpoint).
		Ints("pages", cal.Pages).
		Float64("max_diff_pct_per_page", cal.Thresholds.MaxDiffPct()).
		Int("pixel_channel_threshold", cal.Thresholds.ChannelThreshold()).
		Int("jobs", s.jobs).
		Msg("Calibration loaded")

	client := render.NewClient(cal.Endpoint, render.WithTimeout(s.timeout))
	return regression.NewRunner(cal, client, poppler, file,
		regression.WithRoot(s.root),
		regression.WithJobs(s.jobs),
		regression.WithDiffDir(s.diffDir),
	), nil
}

// createContext cancels on SIGINT or SIGTERM.
func createContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, aborting")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// handleRunError turns workflow errors into diagnostics a maintainer can act
// on. The underlying error stays wrapped.
func handleRunError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Workflow failed")

	var ee *extract.ExtractionError
	switch {
	case errors.Is(err, extract.ErrToolNotFound) && errors.As(err, &ee):
		return fmt.Errorf("missing required tool: %s. Install poppler-utils or set PDFTOPPM_BIN/PDFTOTEXT_BIN: %w", ee.Details, err)
	case errors.Is(err, calibration.ErrNotFound):
		return fmt.Errorf("calibration file not found. Pass --config or set PDFREGRESS_CONFIG: %w", err)
	case errors.Is(err, calibration.ErrInvalidConfig), errors.Is(err, calibration.ErrUnsupportedFormat):
		return fmt.Errorf("calibration file rejected: %w", err)
	case errors.Is(err, render.ErrTimeout):
		return fmt.Errorf("PDF endpoint did not answer in time. Is the renderer running? Try --timeout: %w", err)
	case errors.Is(err, render.ErrFetchFailed), errors.Is(err, render.ErrUnexpectedResponse), errors.Is(err, render.ErrNotPDF):
		return fmt.Errorf("PDF endpoint error: %w", err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("run was interrupted: %w", err)
	default:
		return err
	}
}
