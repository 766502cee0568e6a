package candidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
)

func validDiplomaParams() NewProfileParams {
	return NewProfileParams{
		Email:       "jane@example.com",
		IndexNumber: "12345678901",
		Category:    CategoryDiploma,
		SubjectGrades: map[SubjectCode]Grade{
			"MAT": GradeB,
			"ENG": GradeCPlus,
		},
		MeanGrade: GradeC,
		Phone:     "0712345678",
	}
}

func TestNewProfile_Valid(t *testing.T) {
	p, err := NewProfile(validDiplomaParams())
	require.NoError(t, err)

	assert.Equal(t, IndexNumber("12345678901"), p.IndexNumber)
	assert.Equal(t, PhoneNumber("254712345678"), p.Phone)
	assert.Equal(t, Key{Email: "jane@example.com", IndexNumber: "12345678901", Category: CategoryDiploma}, p.Key())

	g, ok := p.GradeFor("mat")
	assert.True(t, ok, "subject lookup must be case-insensitive")
	assert.Equal(t, GradeB, g)
}

func TestNewProfile_RequiresMeanGradeForNonDegree(t *testing.T) {
	params := validDiplomaParams()
	params.MeanGrade = ""

	_, err := NewProfile(params)
	assert.ErrorIs(t, err, shared.ErrEmptyValue)
}

func TestNewProfile_RequiresClusterPointsForDegree(t *testing.T) {
	params := validDiplomaParams()
	params.Category = CategoryDegree
	params.ClusterPoints = nil

	_, err := NewProfile(params)
	assert.ErrorIs(t, err, shared.ErrEmptyValue)

	params.ClusterPoints = map[string]float64{"cluster_5": 34.0}
	p, err := NewProfile(params)
	require.NoError(t, err)
	assert.Equal(t, 34.0, p.ClusterScore("cluster_5"))
	assert.Equal(t, 0.0, p.ClusterScore("cluster_9"), "missing cluster defaults to zero")
}

func TestNewProfile_RejectsBadInput(t *testing.T) {
	bad := validDiplomaParams()
	bad.IndexNumber = "short"
	_, err := NewProfile(bad)
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	bad = validDiplomaParams()
	bad.Email = "not-an-email"
	_, err = NewProfile(bad)
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)

	bad = validDiplomaParams()
	bad.Phone = "12"
	_, err = NewProfile(bad)
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)

	bad = validDiplomaParams()
	bad.SubjectGrades = map[SubjectCode]Grade{"MAT": "Z"}
	_, err = NewProfile(bad)
	assert.ErrorIs(t, err, shared.ErrInvalidGrade)
}

func TestPhoneNumber_Normalize(t *testing.T) {
	cases := map[string]string{
		"+254712345678": "254712345678",
		"254712345678":  "254712345678",
		"0712 345 678":  "254712345678",
		"712345678":     "254712345678",
	}
	for raw, want := range cases {
		assert.Equal(t, PhoneNumber(want), PhoneNumber(raw).Normalize(), "raw %q", raw)
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Degree ")
	require.NoError(t, err)
	assert.Equal(t, CategoryDegree, c)
	assert.True(t, c.UsesClusterPoints())

	for _, name := range []string{"diploma", "teacher", "kmtc", "certificate", "artisan"} {
		c, err := ParseCategory(name)
		require.NoError(t, err)
		assert.False(t, c.UsesClusterPoints())
	}

	_, err = ParseCategory("masters")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
