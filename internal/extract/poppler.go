// Package extract turns pages of a rendered PDF into raster images and plain
// text using the poppler command-line tools, and inspects the document
// structure with pdfcpu.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"

	"pdfregress/internal/logger"
)

// Poppler extracts pages with pdftoppm and pdftotext.
type Poppler struct {
	pdftoppm  string
	pdftotext string
	dpi       int
	log       zerolog.Logger
}

// Option customises a Poppler.
type Option func(*Poppler)

// WithBinaries overrides the pdftoppm and pdftotext executables.
// Empty values keep the defaults.
func WithBinaries(pdftoppm, pdftotext string) Option {
	return func(p *Poppler) {
		if pdftoppm != "" {
			p.pdftoppm = pdftoppm
		}
		if pdftotext != "" {
			p.pdftotext = pdftotext
		}
	}
}

// WithDPI sets the rasterization resolution; zero keeps pdftoppm's default.
func WithDPI(dpi int) Option {
	return func(p *Poppler) { p.dpi = dpi }
}

// NewPoppler creates an extractor that runs pdftoppm and pdftotext from PATH
// unless overridden.
func NewPoppler(opts ...Option) *Poppler {
	p := &Poppler{
		pdftoppm:  "pdftoppm",
		pdftotext: "pdftotext",
		log:       logger.WithComponent("extractor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RequireTools fails with ErrToolNotFound naming every missing executable.
func (p *Poppler) RequireTools() error {
	return RequireTools(p.pdftotext, p.pdftoppm)
}

// RequireTools fails with ErrToolNotFound naming every name that does not
// resolve to an executable.
func RequireTools(names ...string) error {
	var missing []string
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &ExtractionError{Op: "RequireTools", Err: ErrToolNotFound, Details: strings.Join(missing, ", ")}
	}
	return nil
}

// RasterizePage renders one page of docPath to outPath. The extension of
// outPath selects the format: .png or .tif.
func (p *Poppler) RasterizePage(ctx context.Context, docPath string, page int, outPath string) error {
	const op = "RasterizePage"

	ext := filepath.Ext(outPath)
	var formatFlag string
	switch strings.ToLower(ext) {
	case ".png":
		formatFlag = "-png"
	case ".tif":
		formatFlag = "-tiff"
	default:
		return &ExtractionError{Op: op, Page: page, Err: ErrExtractionFailed, Details: fmt.Sprintf("unsupported raster extension %q", ext)}
	}

	prefix := strings.TrimSuffix(outPath, ext)
	args := []string{
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-singlefile",
		formatFlag,
	}
	if p.dpi > 0 {
		args = append(args, "-r", strconv.Itoa(p.dpi))
	}
	args = append(args, docPath, prefix)

	if _, err := p.run(ctx, op, page, p.pdftoppm, args...); err != nil {
		return err
	}

	// pdftoppm always writes prefix + its own lowercase extension.
	written := prefix + strings.ToLower(ext)
	if written != outPath {
		if err := os.Rename(written, outPath); err != nil {
			return &ExtractionError{Op: op, Page: page, Err: ErrExtractionFailed, Details: err.Error()}
		}
	}
	if _, err := os.Stat(outPath); err != nil {
		return &ExtractionError{Op: op, Page: page, Err: ErrExtractionFailed, Details: "no raster written"}
	}

	p.log.Debug().Int("page", page).Str("file", outPath).Msg("Page rasterized")
	return nil
}

// PageText returns the plain text of one page.
func (p *Poppler) PageText(ctx context.Context, docPath string, page int) (string, error) {
	const op = "PageText"

	out, err := p.run(ctx, op, page, p.pdftotext,
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		docPath, "-",
	)
	if err != nil {
		return "", err
	}

	p.log.Debug().Int("page", page).Int("chars", len(out)).Msg("Page text extracted")
	return string(out), nil
}

// PageCount parses docPath with pdfcpu and returns its number of pages.
func (p *Poppler) PageCount(docPath string) (int, error) {
	const op = "PageCount"

	f, err := os.Open(docPath)
	if err != nil {
		return 0, &ExtractionError{Op: op, Err: ErrInvalidDocument, Details: err.Error()}
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(f, conf)
	if err != nil {
		return 0, &ExtractionError{Op: op, Err: ErrInvalidDocument, Details: fmt.Sprintf("pdfcpu read: %v", err)}
	}
	return n, nil
}

func (p *Poppler) run(ctx context.Context, op string, page int, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, &ExtractionError{Op: op, Page: page, Err: ErrToolNotFound, Details: bin}
		}
		details := strings.TrimSpace(stderr.String())
		if details == "" {
			details = err.Error()
		}
		p.log.Error().
			Err(err).
			Str("tool", bin).
			Int("page", page).
			Str("stderr", details).
			Msg("Extraction tool failed")
		return nil, &ExtractionError{Op: op, Page: page, Err: fmt.Errorf("%w: %s: %v", ErrExtractionFailed, filepath.Base(bin), err), Details: details}
	}
	return stdout.Bytes(), nil
}
