// Package candidate contains the domain model for exam candidates: the
// KCSE grade scale, candidate profiles, and the course categories a
// candidate can be matched against. No external dependencies.
package candidate

import (
	"strings"

	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRADE SCALE
// ══════════════════════════════════════════════════════════════════════════════

// Grade represents a canonical KCSE ordinal grade.
type Grade string

// The fixed 12-band KCSE grade scale, highest to lowest.
const (
	GradeA      Grade = "A"
	GradeAMinus Grade = "A-"
	GradeBPlus  Grade = "B+"
	GradeB      Grade = "B"
	GradeBMinus Grade = "B-"
	GradeCPlus  Grade = "C+"
	GradeC      Grade = "C"
	GradeCMinus Grade = "C-"
	GradeDPlus  Grade = "D+"
	GradeD      Grade = "D"
	GradeDMinus Grade = "D-"
	GradeE      Grade = "E"
)

// gradeOrdinals maps each grade band to its ordinal value. A=12 down to E=1.
var gradeOrdinals = map[Grade]int{
	GradeA:      12,
	GradeAMinus: 11,
	GradeBPlus:  10,
	GradeB:      9,
	GradeBMinus: 8,
	GradeCPlus:  7,
	GradeC:      6,
	GradeCMinus: 5,
	GradeDPlus:  4,
	GradeD:      3,
	GradeDMinus: 2,
	GradeE:      1,
}

// AlternativeSeparator joins alternative subject codes in a requirement key
// (e.g. "PHY/MAT") and alternative segments in a raw grade token.
const AlternativeSeparator = "/"

// Ordinal returns the ordinal value of the grade (A=12 ... E=1),
// or 0 for an unrecognized grade.
func (g Grade) Ordinal() int {
	return gradeOrdinals[g]
}

// IsValid reports whether the grade is one of the 12 recognized bands.
func (g Grade) IsValid() bool {
	_, ok := gradeOrdinals[g]
	return ok
}

// AtLeast reports whether the grade meets or exceeds the required grade.
func (g Grade) AtLeast(required Grade) bool {
	return g.Ordinal() >= required.Ordinal()
}

// String returns the string representation of the grade.
func (g Grade) String() string {
	return string(g)
}

// ParseGrade parses a raw grade token into a canonical Grade.
//
// Catalog data sometimes bundles alternatives into a single token
// (e.g. "C+/B-" for two interchangeable subject-grade pairs); the token is
// scanned segment by segment and the first recognized grade wins. Parsing an
// already-canonical grade returns the same value. When no segment is
// recognized the function fails with ErrInvalidGrade - it never silently
// defaults.
func ParseGrade(token string) (Grade, error) {
	for _, segment := range strings.Split(token, AlternativeSeparator) {
		g := Grade(strings.ToUpper(strings.TrimSpace(segment)))
		if g.IsValid() {
			return g, nil
		}
	}
	return "", shared.ErrInvalidGrade
}

// MustParseGrade parses a grade token and panics on failure.
// Intended for fixed tables and tests, never for user input.
func MustParseGrade(token string) Grade {
	g, err := ParseGrade(token)
	if err != nil {
		panic("candidate: invalid grade token: " + token)
	}
	return g
}
