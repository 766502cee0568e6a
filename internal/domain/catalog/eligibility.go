package catalog

import (
	"strings"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
)

// ══════════════════════════════════════════════════════════════════════════════
// ELIGIBILITY EVALUATION
//
// A candidate qualifies for an entry iff every requirement below holds:
//   - the mean grade bar, when the entry specifies one,
//   - every subject requirement key (AND across keys, OR across the
//     "/"-joined alternatives inside one key),
//   - for degree entries, the cluster points cutoff for the entry's cluster.
//
// The result is monotonic: raising any single profile grade or cluster score
// can never turn a pass into a fail.
// ══════════════════════════════════════════════════════════════════════════════

// MeetsSubjectRequirement reports whether the profile satisfies one
// requirement key. A key bundling N alternative subject codes is satisfied
// iff at least one alternative is present with grade ordinal >= the required
// ordinal. An absent subject fails; a single-subject key is the N=1 case.
func MeetsSubjectRequirement(requirementKey string, required candidate.Grade, profile *candidate.Profile) bool {
	for _, code := range strings.Split(requirementKey, candidate.AlternativeSeparator) {
		grade, ok := profile.GradeFor(candidate.SubjectCode(code))
		if ok && grade.AtLeast(required) {
			return true
		}
	}
	return false
}

// Qualifies decides whether one catalog entry matches one candidate profile.
// Evaluation short-circuits on the first failed requirement.
func Qualifies(entry Entry, profile *candidate.Profile) bool {
	if profile.Category.UsesClusterPoints() {
		// A zero or missing cutoff is automatically satisfied; a missing
		// cluster score defaults to 0 and fails any non-zero cutoff.
		if entry.CutoffPoints > 0 && profile.ClusterScore(entry.Partition) < entry.CutoffPoints {
			return false
		}
	} else if entry.MinimumMeanGrade != "" {
		if !profile.MeanGrade.AtLeast(entry.MinimumMeanGrade) {
			return false
		}
	}

	// AND across requirement keys. An empty map is vacuously satisfied.
	for key, required := range entry.MinimumSubjectRequirements {
		if !MeetsSubjectRequirement(key, required, profile) {
			return false
		}
	}

	return true
}
