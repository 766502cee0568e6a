// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"time"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
	"github.com/kuccps-hub/course-match-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT GRADES COMMAND
// Parses and validates a raw grade submission into a canonical candidate
// profile, and stores it for the session so the later payment and
// fulfillment steps can find it.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitGradesCommand contains one raw grade submission as received at the
// boundary. Grade tokens are raw: parsing and normalization happen here.
type SubmitGradesCommand struct {
	// Email is the candidate's contact address.
	Email string

	// IndexNumber is the KCSE examination index number.
	IndexNumber string

	// Category is the course level to match against.
	Category string

	// SubjectGrades maps raw subject codes to raw grade tokens.
	SubjectGrades map[string]string

	// MeanGrade is the raw aggregate grade token. Required for non-degree
	// categories.
	MeanGrade string

	// ClusterPoints maps cluster IDs to weighted scores. Degree only.
	ClusterPoints map[string]float64

	// Phone is the mobile number that will be charged. Optional at this
	// stage; required before a payment can be initiated.
	Phone string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command shape. Semantic validation (grade bands,
// category rules) happens in the domain constructors.
func (c SubmitGradesCommand) Validate() error {
	if c.Email == "" {
		return shared.WrapError("command", "SubmitGrades", shared.ErrEmptyValue, "email is required", nil)
	}
	if c.IndexNumber == "" {
		return shared.WrapError("command", "SubmitGrades", shared.ErrEmptyValue, "index number is required", nil)
	}
	if c.Category == "" {
		return shared.WrapError("command", "SubmitGrades", shared.ErrEmptyValue, "category is required", nil)
	}
	if len(c.SubjectGrades) == 0 {
		return shared.WrapError("command", "SubmitGrades", shared.ErrEmptyValue, "at least one subject grade is required", nil)
	}
	return nil
}

// SubmitGradesResult contains the result of a grade submission.
type SubmitGradesResult struct {
	// Key is the (email, index_number, category) identity of the profile.
	Key candidate.Key

	// SubjectCount is the number of canonical subject grades stored.
	SubjectCount int

	// ExpiresAt is when the stored profile lapses unless extended.
	ExpiresAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SubmitGradesHandler handles the SubmitGradesCommand.
type SubmitGradesHandler struct {
	profiles candidate.ProfileStore
	bus      shared.EventBus
	log      *logger.Logger

	profileTTL time.Duration
}

// NewSubmitGradesHandler creates a new SubmitGradesHandler.
func NewSubmitGradesHandler(
	profiles candidate.ProfileStore,
	bus shared.EventBus,
	log *logger.Logger,
	profileTTL time.Duration,
) *SubmitGradesHandler {
	if profileTTL == 0 {
		profileTTL = 30 * time.Minute
	}
	if log == nil {
		log = logger.Default()
	}

	return &SubmitGradesHandler{
		profiles:   profiles,
		bus:        bus,
		log:        log.With(logger.Component("submit_grades")),
		profileTTL: profileTTL,
	}
}

// Handle executes the submit grades command. Resubmitting overwrites the
// previous profile for the same key and restarts its TTL.
func (h *SubmitGradesHandler) Handle(ctx context.Context, cmd SubmitGradesCommand) (*SubmitGradesResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	category, err := candidate.ParseCategory(cmd.Category)
	if err != nil {
		return nil, err
	}

	grades := make(map[candidate.SubjectCode]candidate.Grade, len(cmd.SubjectGrades))
	for code, token := range cmd.SubjectGrades {
		grade, err := candidate.ParseGrade(token)
		if err != nil {
			return nil, shared.WrapError("command", "SubmitGrades", shared.ErrInvalidFormat,
				"unrecognized grade for subject "+code, err)
		}
		grades[candidate.SubjectCode(code)] = grade
	}

	var meanGrade candidate.Grade
	if cmd.MeanGrade != "" {
		meanGrade, err = candidate.ParseGrade(cmd.MeanGrade)
		if err != nil {
			return nil, shared.WrapError("command", "SubmitGrades", shared.ErrInvalidFormat,
				"unrecognized mean grade", err)
		}
	}

	profile, err := candidate.NewProfile(candidate.NewProfileParams{
		Email:         cmd.Email,
		IndexNumber:   candidate.IndexNumber(cmd.IndexNumber),
		Category:      category,
		SubjectGrades: grades,
		MeanGrade:     meanGrade,
		ClusterPoints: cmd.ClusterPoints,
		Phone:         candidate.PhoneNumber(cmd.Phone),
	})
	if err != nil {
		return nil, err
	}

	if err := h.profiles.Save(ctx, profile, h.profileTTL); err != nil {
		return nil, shared.WrapError("command", "SubmitGrades", shared.ErrPersistence,
			"failed to store candidate profile", err)
	}

	if h.bus != nil {
		event := shared.NewBaseEvent(shared.EventProfileSubmitted, profile.Key().String())
		if cmd.CorrelationID != "" {
			event = event.WithCorrelationID(cmd.CorrelationID)
		}
		_ = h.bus.Publish(profileSubmittedEvent{BaseEvent: event, Subjects: len(grades)})
	}

	h.log.Info("candidate profile stored",
		logger.IndexNumber(profile.IndexNumber.String()),
		logger.Category(profile.Category.String()),
		logger.Int("subjects", len(grades)))

	return &SubmitGradesResult{
		Key:          profile.Key(),
		SubjectCount: len(grades),
		ExpiresAt:    profile.SubmittedAt.Add(h.profileTTL),
	}, nil
}

// profileSubmittedEvent carries the submission notification on the bus.
type profileSubmittedEvent struct {
	shared.BaseEvent
	Subjects int `json:"subjects"`
}

// Payload implements the shared.Event interface.
func (e profileSubmittedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"subjects": e.Subjects}
}
