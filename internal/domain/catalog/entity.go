// Package catalog contains the read-only programme catalog model and the
// eligibility rules that decide whether a candidate qualifies for an entry.
// Catalog data is externally maintained and never mutated by this core.
package catalog

import (
	"fmt"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
)

// Entry is one programme in the catalog.
type Entry struct {
	// ProgrammeCode is the KUCCPS programme code (e.g. "1263145").
	ProgrammeCode string `json:"programme_code"`

	// ProgrammeName is the display name of the programme.
	ProgrammeName string `json:"programme_name"`

	// Institution is the offering university or college.
	Institution string `json:"institution"`

	// Partition is the cluster or named collection this entry belongs to.
	Partition string `json:"partition"`

	// MinimumSubjectRequirements maps requirement keys to minimum grades.
	// A key may bundle alternative subject codes joined by "/"
	// (e.g. "PHY/MAT": interchangeable subjects, any one suffices).
	MinimumSubjectRequirements map[string]candidate.Grade `json:"minimum_subject_requirements"`

	// MinimumMeanGrade is the minimum aggregate grade. Non-degree only;
	// empty means no mean grade bar.
	MinimumMeanGrade candidate.Grade `json:"minimum_mean_grade,omitempty"`

	// CutoffPoints is the cluster points cutoff. Degree only; zero means
	// the cutoff is automatically satisfied.
	CutoffPoints float64 `json:"cutoff_points,omitempty"`
}

// String returns a short representation for logging.
func (e Entry) String() string {
	return fmt.Sprintf("Entry{%s %s @ %s}", e.ProgrammeCode, e.ProgrammeName, e.Institution)
}

// Match is a qualifying entry tagged with its partition for later grouping.
type Match struct {
	Partition string `json:"partition"`
	Entry     Entry  `json:"entry"`
}
