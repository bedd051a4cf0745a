// Package invariants evaluates the structural text contract of a rendered
// report: both footers are present and the explanatory block starts on page
// 2, never on page 1.
//
// Checks are exact, case-sensitive substring tests. All of them always run so
// a failure names every broken invariant at once.
package invariants

import (
	"strings"

	"pdfregress/internal/calibration"
)

// Check names, in evaluation order.
const (
	Page1FooterPresent       = "page1_footer_present"
	Page2FooterPresent       = "page2_footer_present"
	Page1NoStructuralMarker  = "page1_no_structural_marker"
	Page2HasStructuralMarker = "page2_has_structural_marker"
)

// Names lists every check in evaluation order.
var Names = []string{
	Page1FooterPresent,
	Page2FooterPresent,
	Page1NoStructuralMarker,
	Page2HasStructuralMarker,
}

// Result is the outcome of one named check.
type Result struct {
	Name   string
	Passed bool
}

// Results holds one Result per check, in Names order.
type Results []Result

// Check runs every invariant against the text of pages 1 and 2.
func Check(markers calibration.TextInvariants, page1, page2 string) Results {
	return Results{
		{Page1FooterPresent, strings.Contains(page1, markers.Page1FooterContains)},
		{Page2FooterPresent, strings.Contains(page2, markers.Page2FooterContains)},
		{Page1NoStructuralMarker, !strings.Contains(page1, markers.MustStartOnPage2)},
		{Page2HasStructuralMarker, strings.Contains(page2, markers.MustStartOnPage2)},
	}
}

// OK reports whether every check passed.
func (r Results) OK() bool {
	return len(r.Failed()) == 0
}

// Failed returns the names of the failed checks in evaluation order.
func (r Results) Failed() []string {
	var failed []string
	for _, res := range r {
		if !res.Passed {
			failed = append(failed, res.Name)
		}
	}
	return failed
}

// Map returns the results keyed by check name, as persisted in the
// calibration metadata.
func (r Results) Map() map[string]bool {
	m := make(map[string]bool, len(r))
	for _, res := range r {
		m[res.Name] = res.Passed
	}
	return m
}
