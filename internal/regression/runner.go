// Package regression runs the two pdfregress workflows.
//
// Calibrate renders the fixture, gates it on the text invariants and stores
// one raster per configured page as the new baseline. Test renders the
// fixture again, applies the same gate and compares every configured page
// against its baseline.
//
// Global gates (render, text invariants, extraction) abort the workflow with
// an error. Per-page problems (missing baseline image, drift above the
// allowed maximum) are collected in a Report so one bad page never hides
// another.
package regression

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pdfregress/internal/calibration"
	"pdfregress/internal/extract"
	"pdfregress/internal/imagediff"
	"pdfregress/internal/invariants"
	"pdfregress/internal/logger"
)

// Workflow modes.
const (
	ModeCalibrate = "calibrate"
	ModeTest      = "test"
)

// Renderer produces the current rendering of the fixture.
type Renderer interface {
	Render(ctx context.Context, fixture []byte) ([]byte, error)
}

// Extractor turns pages of a rendered document into rasters and text.
type Extractor interface {
	RasterizePage(ctx context.Context, docPath string, page int, outPath string) error
	PageText(ctx context.Context, docPath string, page int) (string, error)
	PageCount(docPath string) (int, error)
}

// MetadataStore persists the calibration metadata block.
type MetadataStore interface {
	SaveMetadata(meta calibration.Metadata) error
}

// Runner executes workflows for one loaded calibration record.
type Runner struct {
	cfg       *calibration.Calibration
	renderer  Renderer
	extractor Extractor
	store     MetadataStore

	root    string
	jobs    int
	diffDir string
	scratch string
	now     func() time.Time
	log     zerolog.Logger
}

// Option customises a Runner.
type Option func(*Runner)

// WithRoot sets the directory relative fixture and baseline paths resolve
// against.
func WithRoot(root string) Option {
	return func(r *Runner) { r.root = root }
}

// WithJobs bounds how many pages are extracted and compared at once.
func WithJobs(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.jobs = n
		}
	}
}

// WithDiffDir enables diff visualisations for failing pages.
func WithDiffDir(dir string) Option {
	return func(r *Runner) { r.diffDir = dir }
}

// WithScratchDir sets the parent of the per-run temporary directory.
func WithScratchDir(dir string) Option {
	return func(r *Runner) { r.scratch = dir }
}

// WithClock replaces time.Now for calibration timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner. cfg must already be validated.
func NewRunner(cfg *calibration.Calibration, renderer Renderer, extractor Extractor, store MetadataStore, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		renderer:  renderer,
		extractor: extractor,
		store:     store,
		root:      ".",
		jobs:      1,
		now:       time.Now,
		log:       logger.WithComponent("regression"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CalibrateResult describes a newly written baseline.
type CalibrateResult struct {
	BaselineDir string
	Images      []string
	Metadata    calibration.Metadata
}

// Calibrate establishes a new baseline. Nothing is written to the baseline
// directory unless the render passes every text invariant and every page
// rasterizes.
func (r *Runner) Calibrate(ctx context.Context) (*CalibrateResult, error) {
	log := r.log.With().Str("mode", ModeCalibrate).Logger()

	scratch, cleanup, err := r.scratchDir("pdf-cal-")
	if err != nil {
		return nil, wrapWorkflowError(ModeCalibrate, "scratch", err)
	}
	defer cleanup()

	doc, results, err := r.renderAndGate(ctx, ModeCalibrate, scratch, r.cfg.Pages)
	if err != nil {
		return nil, err
	}

	staging := filepath.Join(scratch, "baseline")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, wrapWorkflowError(ModeCalibrate, "scratch", err)
	}
	err = r.forEachPage(ctx, func(ctx context.Context, page int) error {
		return r.extractor.RasterizePage(ctx, doc, page, filepath.Join(staging, r.cfg.ImageName(page)))
	})
	if err != nil {
		return nil, wrapWorkflowError(ModeCalibrate, "rasterize", err)
	}

	baselineDir := r.cfg.BaselinePath(r.root)
	if err := os.MkdirAll(baselineDir, 0o755); err != nil {
		return nil, wrapWorkflowError(ModeCalibrate, "baseline", err)
	}
	images := make([]string, 0, len(r.cfg.Pages))
	for _, page := range r.cfg.Pages {
		name := r.cfg.ImageName(page)
		dst := filepath.Join(baselineDir, name)
		if err := moveFile(filepath.Join(staging, name), dst); err != nil {
			return nil, wrapWorkflowError(ModeCalibrate, "baseline", err)
		}
		images = append(images, dst)
	}

	meta := calibration.Metadata{
		GeneratedAtUTC: r.now().UTC().Truncate(time.Second).Format(calibration.TimestampLayout),
		TextInvariants: results.Map(),
		Notes:          calibration.CalibrationNote,
	}
	if err := r.store.SaveMetadata(meta); err != nil {
		return nil, wrapWorkflowError(ModeCalibrate, "metadata", err)
	}

	log.Info().
		Str("baseline_dir", baselineDir).
		Ints("pages", r.cfg.Pages).
		Msg("Calibration baseline updated")

	return &CalibrateResult{BaselineDir: baselineDir, Images: images, Metadata: meta}, nil
}

// Test compares the current render against the baseline.
//
// A non-nil error means the run aborted; the returned report, if any, holds
// the pages compared before the abort. With a nil error the report is
// complete and Report.Passed gives the verdict.
func (r *Runner) Test(ctx context.Context) (*Report, error) {
	log := r.log.With().Str("mode", ModeTest).Logger()

	baselineDir := r.cfg.BaselinePath(r.root)
	if info, err := os.Stat(baselineDir); err != nil || !info.IsDir() {
		return nil, wrapWorkflowError(ModeTest, "baseline",
			fmt.Errorf("%w: %s. Run calibrate first", ErrNoBaseline, baselineDir))
	}

	scratch, cleanup, err := r.scratchDir("pdf-test-")
	if err != nil {
		return nil, wrapWorkflowError(ModeTest, "scratch", err)
	}
	defer cleanup()

	// Pages without a baseline image are reported as missing, not required
	// from the render.
	var baselined []int
	for _, page := range r.cfg.Pages {
		if _, err := os.Stat(filepath.Join(baselineDir, r.cfg.ImageName(page))); err == nil {
			baselined = append(baselined, page)
		}
	}

	doc, _, err := r.renderAndGate(ctx, ModeTest, scratch, baselined)
	if err != nil {
		return nil, err
	}

	threshold := r.cfg.Thresholds.ChannelThreshold()
	builder := NewReportBuilder(r.cfg.Pages, r.cfg.Thresholds.MaxDiffPct(), threshold)

	err = r.forEachPage(ctx, func(ctx context.Context, page int) error {
		name := r.cfg.ImageName(page)
		basePath := filepath.Join(baselineDir, name)
		if _, err := os.Stat(basePath); errors.Is(err, fs.ErrNotExist) {
			log.Warn().Int("page", page).Str("baseline", basePath).Msg("Missing baseline image")
			builder.Missing(page, basePath)
			return nil
		}

		curPath := filepath.Join(scratch, name)
		if err := r.extractor.RasterizePage(ctx, doc, page, curPath); err != nil {
			return err
		}
		base, err := imagediff.Load(basePath)
		if err != nil {
			return err
		}
		cur, err := imagediff.Load(curPath)
		if err != nil {
			return err
		}

		stats := imagediff.Measure(base, cur, threshold)
		status := builder.Compared(page, basePath, stats.Percent())
		log.Info().
			Int("page", page).
			Float64("diff_pct", stats.Percent()).
			Int("changed_pixels", stats.Changed).
			Bool("size_mismatch", stats.SizeMismatch).
			Stringer("status", status).
			Msg("Page compared")

		if status == PageExceeded && r.diffDir != "" && !stats.SizeMismatch {
			out := filepath.Join(r.diffDir, fmt.Sprintf("page_%d_diff.png", page))
			if err := imagediff.WriteDiffImage(out, base, cur, threshold); err != nil {
				log.Warn().Err(err).Int("page", page).Msg("Failed to write diff image")
			} else {
				builder.DiffImage(page, out)
			}
		}
		return nil
	})

	report := builder.Build()
	if err != nil {
		return report, wrapWorkflowError(ModeTest, "compare", err)
	}

	log.Info().
		Bool("passed", report.Passed()).
		Int("failures", len(report.Failures())).
		Msg("Regression test finished")
	return report, nil
}

// renderAndGate renders the fixture into scratch, checks that it has pages 1
// and 2 and every page in required, and runs the text invariants. It returns
// the path of the rendered document.
func (r *Runner) renderAndGate(ctx context.Context, mode, scratch string, required []int) (string, invariants.Results, error) {
	fixture, err := os.ReadFile(r.cfg.FixturePath(r.root))
	if err != nil {
		return "", nil, wrapWorkflowError(mode, "fixture", fmt.Errorf("%w: %v", ErrFixture, err))
	}

	payload, err := r.renderer.Render(ctx, fixture)
	if err != nil {
		return "", nil, wrapWorkflowError(mode, "render", err)
	}
	doc := filepath.Join(scratch, "current.pdf")
	if err := os.WriteFile(doc, payload, 0o644); err != nil {
		return "", nil, wrapWorkflowError(mode, "render", err)
	}

	count, err := r.extractor.PageCount(doc)
	if err != nil {
		return "", nil, wrapWorkflowError(mode, "inspect", err)
	}
	need := 2
	if len(required) > 0 {
		need = max(need, slices.Max(required))
	}
	if count < need {
		return "", nil, wrapWorkflowError(mode, "inspect",
			fmt.Errorf("%w: document has %d page(s), page %d required", extract.ErrInvalidDocument, count, need))
	}

	page1, err := r.extractor.PageText(ctx, doc, 1)
	if err != nil {
		return "", nil, wrapWorkflowError(mode, "text", err)
	}
	page2, err := r.extractor.PageText(ctx, doc, 2)
	if err != nil {
		return "", nil, wrapWorkflowError(mode, "text", err)
	}

	results := invariants.Check(r.cfg.TextInvariants, page1, page2)
	if !results.OK() {
		r.log.Error().
			Str("mode", mode).
			Strs("failed", results.Failed()).
			Msg("Text invariants violated")
		return "", results, wrapWorkflowError(mode, "invariants", &InvariantError{Results: results})
	}
	return doc, results, nil
}

// forEachPage runs fn for every configured page with at most r.jobs in
// flight and stops launching pages after the first error.
func (r *Runner) forEachPage(ctx context.Context, fn func(ctx context.Context, page int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.jobs)
	for _, page := range r.cfg.Pages {
		page := page
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, page)
		})
	}
	return g.Wait()
}

func (r *Runner) scratchDir(prefix string) (string, func(), error) {
	dir, err := os.MkdirTemp(r.scratch, prefix)
	if err != nil {
		return "", nil, err
	}
	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			r.log.Warn().Err(err).Str("dir", dir).Msg("Failed to remove scratch directory")
		}
	}, nil
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
