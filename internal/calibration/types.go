// Package calibration loads and rewrites the persisted calibration record:
// which fixture to render, where, which pages to compare, the text
// invariants, the drift thresholds and the metadata of the last calibration.
package calibration

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// DefaultPixelChannelThreshold applies when
	// thresholds.pixel_channel_threshold is absent.
	DefaultPixelChannelThreshold = 15

	// CalibrationNote is recorded with every calibration.
	CalibrationNote = "Baseline regenerated from current server-side PDF renderer."

	// TimestampLayout formats generated_at_utc, e.g. 2026-10-19T08:30:00Z.
	TimestampLayout = "2006-01-02T15:04:05Z"
)

// Raster formats supported for baseline and current page images.
const (
	FormatPNG  = "png"
	FormatTIFF = "tiff"
)

// Calibration is the immutable-per-run configuration record.
type Calibration struct {
	Fixture        string         `json:"fixture" yaml:"fixture"`
	Endpoint       string         `json:"endpoint" yaml:"endpoint"`
	Pages          []int          `json:"pages" yaml:"pages"`
	BaselineDir    string         `json:"baseline_dir" yaml:"baseline_dir"`
	RasterFormat   string         `json:"raster_format,omitempty" yaml:"raster_format,omitempty"`
	Thresholds     Thresholds     `json:"thresholds" yaml:"thresholds"`
	TextInvariants TextInvariants `json:"text_invariants" yaml:"text_invariants"`
	Calibration    *Metadata      `json:"calibration,omitempty" yaml:"calibration,omitempty"`
}

// Thresholds bound the per-page drift.
type Thresholds struct {
	MaxDiffPctPerPage     *float64 `json:"max_diff_pct_per_page" yaml:"max_diff_pct_per_page"`
	PixelChannelThreshold *int     `json:"pixel_channel_threshold,omitempty" yaml:"pixel_channel_threshold,omitempty"`
}

// MaxDiffPct returns the allowed drift per page. Validate rejects a record
// without one.
func (t Thresholds) MaxDiffPct() float64 {
	if t.MaxDiffPctPerPage == nil {
		return 0
	}
	return *t.MaxDiffPctPerPage
}

// ChannelThreshold returns the configured per-channel sensitivity or the
// default when the field is absent.
func (t Thresholds) ChannelThreshold() int {
	if t.PixelChannelThreshold == nil {
		return DefaultPixelChannelThreshold
	}
	return *t.PixelChannelThreshold
}

// TextInvariants are the markers checked against the extracted text of the
// first two pages.
type TextInvariants struct {
	Page1FooterContains string `json:"page1_footer_contains" yaml:"page1_footer_contains"`
	Page2FooterContains string `json:"page2_footer_contains" yaml:"page2_footer_contains"`
	MustStartOnPage2    string `json:"must_start_on_page2" yaml:"must_start_on_page2"`
}

// Metadata is written by the calibrate workflow only.
type Metadata struct {
	GeneratedAtUTC string          `json:"generated_at_utc" yaml:"generated_at_utc"`
	TextInvariants map[string]bool `json:"text_invariants" yaml:"text_invariants"`
	Notes          string          `json:"notes" yaml:"notes"`
}

// Format returns the raster format, defaulting to PNG.
func (c *Calibration) Format() string {
	if c.RasterFormat == "" {
		return FormatPNG
	}
	return strings.ToLower(c.RasterFormat)
}

// ImageExt is the file extension pdftoppm uses for the raster format.
func (c *Calibration) ImageExt() string {
	if c.Format() == FormatTIFF {
		return ".tif"
	}
	return ".png"
}

// ImageName is the deterministic per-page raster file name.
func (c *Calibration) ImageName(page int) string {
	return fmt.Sprintf("page_%d%s", page, c.ImageExt())
}

// FixturePath resolves the fixture against root unless it is absolute.
func (c *Calibration) FixturePath(root string) string {
	return resolve(root, c.Fixture)
}

// BaselinePath resolves the baseline directory against root unless it is
// absolute.
func (c *Calibration) BaselinePath(root string) string {
	return resolve(root, c.BaselineDir)
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) || root == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

// Validate checks every field and reports the first violation.
func (c *Calibration) Validate() error {
	if strings.TrimSpace(c.Fixture) == "" {
		return fieldError("fixture", "is required")
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		return fieldError("endpoint", "is required")
	}
	if strings.TrimSpace(c.BaselineDir) == "" {
		return fieldError("baseline_dir", "is required")
	}
	if len(c.Pages) == 0 {
		return fieldError("pages", "must list at least one page")
	}
	seen := make(map[int]bool, len(c.Pages))
	for _, p := range c.Pages {
		if p < 1 {
			return fieldError("pages", "page numbers are 1-based, got %d", p)
		}
		if seen[p] {
			return fieldError("pages", "page %d listed twice", p)
		}
		seen[p] = true
	}
	switch c.Format() {
	case FormatPNG, FormatTIFF:
	default:
		return fieldError("raster_format", "must be %q or %q, got %q", FormatPNG, FormatTIFF, c.RasterFormat)
	}
	if c.Thresholds.MaxDiffPctPerPage == nil {
		return fieldError("thresholds.max_diff_pct_per_page", "is required")
	}
	if m := c.Thresholds.MaxDiffPct(); m < 0 || m > 100 {
		return fieldError("thresholds.max_diff_pct_per_page", "must be within [0, 100], got %g", m)
	}
	if ct := c.Thresholds.ChannelThreshold(); ct < 0 || ct > 255 {
		return fieldError("thresholds.pixel_channel_threshold", "must be within [0, 255], got %d", ct)
	}
	ti := c.TextInvariants
	if ti.Page1FooterContains == "" {
		return fieldError("text_invariants.page1_footer_contains", "is required")
	}
	if ti.Page2FooterContains == "" {
		return fieldError("text_invariants.page2_footer_contains", "is required")
	}
	if ti.MustStartOnPage2 == "" {
		return fieldError("text_invariants.must_start_on_page2", "is required")
	}
	return nil
}
