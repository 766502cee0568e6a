package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
	"github.com/kuccps-hub/course-match-hub/internal/infrastructure/persistence/memory"
	"github.com/kuccps-hub/course-match-hub/pkg/logger"
)

func newSubmitHandler(t *testing.T) (*SubmitGradesHandler, *memory.ProfileStore) {
	t.Helper()
	profiles := memory.NewProfileStore()
	log := logger.New(logger.Options{Level: logger.LevelError})
	return NewSubmitGradesHandler(profiles, nil, log, 30*time.Minute), profiles
}

func validSubmission() SubmitGradesCommand {
	return SubmitGradesCommand{
		Email:       "jane@example.com",
		IndexNumber: "12345678901",
		Category:    "diploma",
		SubjectGrades: map[string]string{
			"MAT": "B",
			"eng": "c+",
		},
		MeanGrade: "C",
		Phone:     "0712345678",
	}
}

func TestSubmitGrades_StoresCanonicalProfile(t *testing.T) {
	handler, profiles := newSubmitHandler(t)

	res, err := handler.Handle(context.Background(), validSubmission())

	require.NoError(t, err)
	assert.Equal(t, 2, res.SubjectCount)
	assert.Equal(t, candidate.CategoryDiploma, res.Key.Category)

	profile, err := profiles.Get(context.Background(), res.Key)
	require.NoError(t, err)

	grade, ok := profile.GradeFor("ENG")
	require.True(t, ok, "subject codes are normalized to uppercase")
	assert.Equal(t, candidate.GradeCPlus, grade)
	assert.Equal(t, candidate.PhoneNumber("254712345678"), profile.Phone)
}

func TestSubmitGrades_ParsesAlternativeGradeTokens(t *testing.T) {
	handler, profiles := newSubmitHandler(t)
	cmd := validSubmission()
	cmd.SubjectGrades["PHY"] = "B-/C+"

	res, err := handler.Handle(context.Background(), cmd)

	require.NoError(t, err)
	profile, err := profiles.Get(context.Background(), res.Key)
	require.NoError(t, err)

	grade, ok := profile.GradeFor("PHY")
	require.True(t, ok)
	assert.Equal(t, candidate.GradeBMinus, grade, "first recognized segment wins")
}

func TestSubmitGrades_RejectsUnknownGrade(t *testing.T) {
	handler, _ := newSubmitHandler(t)
	cmd := validSubmission()
	cmd.SubjectGrades["MAT"] = "F"

	_, err := handler.Handle(context.Background(), cmd)

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestSubmitGrades_RequiresMeanGradeForNonDegree(t *testing.T) {
	handler, _ := newSubmitHandler(t)
	cmd := validSubmission()
	cmd.MeanGrade = ""

	_, err := handler.Handle(context.Background(), cmd)

	require.Error(t, err)
}

func TestSubmitGrades_RequiresClusterPointsForDegree(t *testing.T) {
	handler, _ := newSubmitHandler(t)
	cmd := validSubmission()
	cmd.Category = "degree"
	cmd.ClusterPoints = nil

	_, err := handler.Handle(context.Background(), cmd)

	require.Error(t, err)
}

func TestSubmitGrades_ResubmissionOverwrites(t *testing.T) {
	handler, profiles := newSubmitHandler(t)

	first, err := handler.Handle(context.Background(), validSubmission())
	require.NoError(t, err)

	updated := validSubmission()
	updated.SubjectGrades["MAT"] = "A"
	second, err := handler.Handle(context.Background(), updated)
	require.NoError(t, err)
	require.Equal(t, first.Key, second.Key)

	profile, err := profiles.Get(context.Background(), second.Key)
	require.NoError(t, err)
	grade, _ := profile.GradeFor("MAT")
	assert.Equal(t, candidate.GradeA, grade)
}

func TestSubmitGrades_RejectsUnknownCategory(t *testing.T) {
	handler, _ := newSubmitHandler(t)
	cmd := validSubmission()
	cmd.Category = "masters"

	_, err := handler.Handle(context.Background(), cmd)

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}
