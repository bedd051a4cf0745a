package regression

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// PageStatus is the outcome of one configured page in a test run.
type PageStatus int

const (
	// PageNotChecked marks a page left unvisited because the run aborted.
	PageNotChecked PageStatus = iota
	PagePassed
	PageExceeded
	PageMissingBaseline
)

func (s PageStatus) String() string {
	switch s {
	case PagePassed:
		return "passed"
	case PageExceeded:
		return "exceeded"
	case PageMissingBaseline:
		return "missing_baseline"
	default:
		return "not_checked"
	}
}

// PageResult is one row of the report.
type PageResult struct {
	Page     int
	Status   PageStatus
	DiffPct  float64
	Baseline string
	// DiffImage is the path of the written visualisation, if any.
	DiffImage string
}

// Compared reports whether a diff percentage was computed for the page.
func (p PageResult) Compared() bool {
	return p.Status == PagePassed || p.Status == PageExceeded
}

// Report is the immutable outcome of a test run.
type Report struct {
	pages            []PageResult
	maxDiffPct       float64
	channelThreshold int
}

// Pages returns the page results in configured page order.
func (r *Report) Pages() []PageResult {
	return append([]PageResult(nil), r.pages...)
}

// MaxDiffPct is the allowed per-page drift the report was judged against.
func (r *Report) MaxDiffPct() float64 { return r.maxDiffPct }

// ChannelThreshold is the per-channel sensitivity used for every page.
func (r *Report) ChannelThreshold() int { return r.channelThreshold }

// Passed reports whether every page was compared and none failed.
func (r *Report) Passed() bool {
	for _, p := range r.pages {
		if p.Status != PagePassed {
			return false
		}
	}
	return true
}

// Failures describes every page that did not pass, in page order.
func (r *Report) Failures() []string {
	var out []string
	for _, p := range r.pages {
		switch p.Status {
		case PageMissingBaseline:
			out = append(out, fmt.Sprintf("missing baseline image: %s", p.Baseline))
		case PageExceeded:
			out = append(out, fmt.Sprintf("page %d diff %.3f%% exceeds %.3f%%", p.Page, p.DiffPct, r.maxDiffPct))
		case PageNotChecked:
			out = append(out, fmt.Sprintf("page %d not checked", p.Page))
		}
	}
	return out
}

// Err returns a *RegressionError listing the failures, or nil if the report
// passed.
func (r *Report) Err() error {
	if r.Passed() {
		return nil
	}
	return &RegressionError{Failures: r.Failures()}
}

// Summary renders the computed diff percentages as an indented JSON object
// keyed page_<n>_diff_pct, in configured page order, rounded to 4 decimals.
func (r *Report) Summary() []byte {
	var buf bytes.Buffer
	buf.WriteString("{")
	n := 0
	for _, p := range r.pages {
		if !p.Compared() {
			continue
		}
		if n > 0 {
			buf.WriteString(",")
		}
		fmt.Fprintf(&buf, "\n  %q: %s", fmt.Sprintf("page_%d_diff_pct", p.Page), formatPct(p.DiffPct))
		n++
	}
	if n > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}")
	return buf.Bytes()
}

func formatPct(pct float64) string {
	s := strconv.FormatFloat(math.Round(pct*1e4)/1e4, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// ReportBuilder accumulates per-page outcomes. It is safe for concurrent use.
type ReportBuilder struct {
	mu     sync.Mutex
	report Report
	index  map[int]int
}

// NewReportBuilder starts a report for pages, every page not yet checked.
func NewReportBuilder(pages []int, maxDiffPct float64, channelThreshold int) *ReportBuilder {
	b := &ReportBuilder{
		report: Report{
			pages:            make([]PageResult, len(pages)),
			maxDiffPct:       maxDiffPct,
			channelThreshold: channelThreshold,
		},
		index: make(map[int]int, len(pages)),
	}
	for i, p := range pages {
		b.report.pages[i] = PageResult{Page: p}
		b.index[p] = i
	}
	return b
}

// Missing records a soft failure for a page without a baseline image.
func (b *ReportBuilder) Missing(page int, baseline string) {
	b.set(page, func(p *PageResult) {
		p.Status = PageMissingBaseline
		p.Baseline = baseline
	})
}

// Compared records the diff percentage of a page and judges it: the page
// fails only if pct strictly exceeds the allowed maximum. It returns the
// resulting status.
func (b *ReportBuilder) Compared(page int, baseline string, pct float64) PageStatus {
	status := PagePassed
	if pct > b.report.maxDiffPct {
		status = PageExceeded
	}
	b.set(page, func(p *PageResult) {
		p.Status = status
		p.DiffPct = pct
		p.Baseline = baseline
	})
	return status
}

// DiffImage attaches a written visualisation to a page.
func (b *ReportBuilder) DiffImage(page int, path string) {
	b.set(page, func(p *PageResult) { p.DiffImage = path })
}

func (b *ReportBuilder) set(page int, fn func(*PageResult)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i, ok := b.index[page]; ok {
		fn(&b.report.pages[i])
	}
}

// Build returns a snapshot of the report. Later builder calls do not affect
// it.
func (b *ReportBuilder) Build() *Report {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.report
	r.pages = append([]PageResult(nil), b.report.pages...)
	return &r
}
