package calibration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleJSON = `{
  "fixture": "tests/pdf_regression/fixture.md",
  "endpoint": "http://127.0.0.1:8080/report-pdf-inline",
  "pages": [1, 2, 3],
  "baseline_dir": "tests/pdf_regression/baseline",
  "thresholds": {"max_diff_pct_per_page": 0.5},
  "text_invariants": {
    "page1_footer_contains": "Page 1 of",
    "page2_footer_contains": "Page 2 of",
    "must_start_on_page2": "How this report works"
  },
  "owner": "reports-team"
}
`

const sampleYAML = `# regression settings
fixture: tests/pdf_regression/fixture.md
endpoint: http://127.0.0.1:8080/report-pdf-inline
pages: [1, 2]
baseline_dir: baseline
raster_format: tiff
thresholds:
  max_diff_pct_per_page: 1.5
  pixel_channel_threshold: 30
text_invariants:
  page1_footer_contains: Page 1 of
  page2_footer_contains: Page 2 of
  must_start_on_page2: How this report works
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadJSON(t *testing.T) {
	cfg, err := Load(writeFile(t, "calibration.json", sampleJSON))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, cfg.Pages)
	assert.Equal(t, 0.5, cfg.Thresholds.MaxDiffPct())
	assert.Equal(t, DefaultPixelChannelThreshold, cfg.Thresholds.ChannelThreshold())
	assert.Equal(t, "How this report works", cfg.TextInvariants.MustStartOnPage2)
	assert.Equal(t, "page_2.png", cfg.ImageName(2))
	assert.Nil(t, cfg.Calibration)
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "calibration.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Thresholds.ChannelThreshold())
	assert.Equal(t, FormatTIFF, cfg.Format())
	assert.Equal(t, "page_1.tif", cfg.ImageName(1))
	assert.Equal(t, filepath.Join("/repo", "baseline"), cfg.BaselinePath("/repo"))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Load(writeFile(t, "calibration.toml", "x = 1"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(writeFile(t, "calibration.json", "{not json"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(writeFile(t, "calibration.json", `{"fixture":"f"}`))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func ptr[T any](v T) *T { return &v }

func validCalibration() *Calibration {
	return &Calibration{
		Fixture:     "fixture.md",
		Endpoint:    "http://localhost/render",
		Pages:       []int{1, 2},
		BaselineDir: "baseline",
		Thresholds:  Thresholds{MaxDiffPctPerPage: ptr(1.0)},
		TextInvariants: TextInvariants{
			Page1FooterContains: "p1",
			Page2FooterContains: "p2",
			MustStartOnPage2:    "marker",
		},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validCalibration().Validate())

	neg := -1
	cases := map[string]struct {
		mutate func(c *Calibration)
		field  string
	}{
		"no pages":        {func(c *Calibration) { c.Pages = nil }, "pages"},
		"zero page":       {func(c *Calibration) { c.Pages = []int{0} }, "pages"},
		"duplicate page":  {func(c *Calibration) { c.Pages = []int{1, 1} }, "pages"},
		"bad format":      {func(c *Calibration) { c.RasterFormat = "jpeg" }, "raster_format"},
		"pct over 100":    {func(c *Calibration) { c.Thresholds.MaxDiffPctPerPage = ptr(101.0) }, "thresholds.max_diff_pct_per_page"},
		"pct missing":     {func(c *Calibration) { c.Thresholds.MaxDiffPctPerPage = nil }, "thresholds.max_diff_pct_per_page"},
		"negative chan":   {func(c *Calibration) { c.Thresholds.PixelChannelThreshold = &neg }, "thresholds.pixel_channel_threshold"},
		"missing marker":  {func(c *Calibration) { c.TextInvariants.MustStartOnPage2 = "" }, "text_invariants.must_start_on_page2"},
		"missing fixture": {func(c *Calibration) { c.Fixture = " " }, "fixture"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := validCalibration()
			tc.mutate(c)
			err := c.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tc.field, fe.Field)
		})
	}
}

func sampleMetadata() Metadata {
	return Metadata{
		GeneratedAtUTC: "2026-10-19T08:30:00Z",
		TextInvariants: map[string]bool{"page1_footer_present": true},
		Notes:          CalibrationNote,
	}
}

func TestSaveMetadataJSONKeepsOtherKeys(t *testing.T) {
	path := writeFile(t, "calibration.json", sampleJSON)
	f := File{Path: path}

	require.NoError(t, f.SaveMetadata(sampleMetadata()))

	cfg, err := f.Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Calibration)
	assert.Equal(t, sampleMetadata(), *cfg.Calibration)
	assert.Nil(t, cfg.Thresholds.PixelChannelThreshold, "absent default must stay absent")

	var raw map[string]any
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "reports-team", raw["owner"])

	// A second calibration replaces rather than duplicates the block.
	meta := sampleMetadata()
	meta.GeneratedAtUTC = "2026-10-20T00:00:00Z"
	require.NoError(t, f.SaveMetadata(meta))
	cfg, err = f.Load()
	require.NoError(t, err)
	assert.Equal(t, "2026-10-20T00:00:00Z", cfg.Calibration.GeneratedAtUTC)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestSaveMetadataJSONKeepsMarkersVerbatim(t *testing.T) {
	content := strings.Replace(sampleJSON, `"How this report works"`, `"Q&A <appendix>"`, 1)
	path := writeFile(t, "calibration.json", content)
	f := File{Path: path}

	require.NoError(t, f.SaveMetadata(sampleMetadata()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"must_start_on_page2": "Q&A <appendix>"`)
	assert.NotContains(t, string(data), `\u0026`)

	cfg, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, "Q&A <appendix>", cfg.TextInvariants.MustStartOnPage2)
}

func TestLoadRequiresDriftMaximum(t *testing.T) {
	content := strings.Replace(sampleJSON, `{"max_diff_pct_per_page": 0.5}`, `{}`, 1)

	_, err := Load(writeFile(t, "calibration.json", content))
	require.ErrorIs(t, err, ErrInvalidConfig)
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "thresholds.max_diff_pct_per_page", fe.Field)
	assert.Equal(t, "is required", fe.Message)
}

func TestSaveMetadataYAMLKeepsComments(t *testing.T) {
	path := writeFile(t, "calibration.yaml", sampleYAML)
	f := File{Path: path}

	require.NoError(t, f.SaveMetadata(sampleMetadata()))
	require.NoError(t, f.SaveMetadata(sampleMetadata()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# regression settings")

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Contains(t, doc, "calibration")

	cfg, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, CalibrationNote, cfg.Calibration.Notes)
	assert.True(t, cfg.Calibration.TextInvariants["page1_footer_present"])
}

func TestSaveMetadataMissingFile(t *testing.T) {
	err := File{Path: filepath.Join(t.TempDir(), "nope.json")}.SaveMetadata(sampleMetadata())
	assert.Error(t, err)
}
