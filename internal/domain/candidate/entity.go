package candidate

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// IndexNumber represents a KCSE examination index number.
type IndexNumber string

// indexNumberRegex matches the accepted index number format.
var indexNumberRegex = regexp.MustCompile(`^[A-Z0-9]{8,15}$`)

// IsValid checks the index number format.
func (n IndexNumber) IsValid() bool {
	return indexNumberRegex.MatchString(strings.ToUpper(string(n)))
}

// Normalize returns the canonical uppercase form.
func (n IndexNumber) Normalize() IndexNumber {
	return IndexNumber(strings.ToUpper(strings.TrimSpace(string(n))))
}

// String returns the string representation.
func (n IndexNumber) String() string {
	return string(n)
}

// PhoneNumber represents a Kenyan mobile number used for gateway charges.
type PhoneNumber string

// Accepted formats: +254xxxxxxxxx, 254xxxxxxxxx, 0xxxxxxxxx, xxxxxxxxx.
var phoneFormats = []*regexp.Regexp{
	regexp.MustCompile(`^\+254\d{9}$`),
	regexp.MustCompile(`^254\d{9}$`),
	regexp.MustCompile(`^0\d{9}$`),
	regexp.MustCompile(`^\d{9}$`),
}

var phoneStripRegex = regexp.MustCompile(`[^0-9+]`)

// IsValid checks whether the phone number matches an accepted format.
func (p PhoneNumber) IsValid() bool {
	s := phoneStripRegex.ReplaceAllString(string(p), "")
	for _, re := range phoneFormats {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Normalize strips separators and rewrites the number into 254XXXXXXXXX form,
// which is what the gateway expects.
func (p PhoneNumber) Normalize() PhoneNumber {
	s := phoneStripRegex.ReplaceAllString(string(p), "")
	switch {
	case strings.HasPrefix(s, "+254"):
		return PhoneNumber(s[1:])
	case strings.HasPrefix(s, "254"):
		return PhoneNumber(s)
	case strings.HasPrefix(s, "0") && len(s) == 10:
		return PhoneNumber("254" + s[1:])
	case len(s) == 9:
		return PhoneNumber("254" + s)
	default:
		return PhoneNumber(s)
	}
}

// String returns the string representation.
func (p PhoneNumber) String() string {
	return string(p)
}

// emailRegex is a permissive format check; deliverability is not our concern.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// SubjectCode identifies a KCSE subject (e.g. "MAT", "PHY", "ENG").
type SubjectCode string

// Normalize returns the canonical uppercase form.
func (c SubjectCode) Normalize() SubjectCode {
	return SubjectCode(strings.ToUpper(strings.TrimSpace(string(c))))
}

// String returns the string representation.
func (c SubjectCode) String() string {
	return string(c)
}

// ══════════════════════════════════════════════════════════════════════════════
// CATEGORIES
// ══════════════════════════════════════════════════════════════════════════════

// Category is one of the six course levels a candidate can be matched against.
type Category string

const (
	// CategoryDegree - university degree programmes, cut off by cluster points.
	CategoryDegree Category = "degree"
	// CategoryDiploma - diploma programmes at TVET institutions.
	CategoryDiploma Category = "diploma"
	// CategoryTeacher - teacher training colleges.
	CategoryTeacher Category = "teacher"
	// CategoryKMTC - Kenya Medical Training College programmes.
	CategoryKMTC Category = "kmtc"
	// CategoryCertificate - certificate programmes.
	CategoryCertificate Category = "certificate"
	// CategoryArtisan - artisan programmes.
	CategoryArtisan Category = "artisan"
)

// Categories lists all six categories in display order.
func Categories() []Category {
	return []Category{
		CategoryDegree,
		CategoryDiploma,
		CategoryTeacher,
		CategoryKMTC,
		CategoryCertificate,
		CategoryArtisan,
	}
}

// IsValid checks that the category is one of the six levels.
func (c Category) IsValid() bool {
	switch c {
	case CategoryDegree, CategoryDiploma, CategoryTeacher,
		CategoryKMTC, CategoryCertificate, CategoryArtisan:
		return true
	default:
		return false
	}
}

// UsesClusterPoints reports whether entries in this category are cut off by
// cluster points (degree) rather than by mean grade.
func (c Category) UsesClusterPoints() bool {
	return c == CategoryDegree
}

// String returns the string representation.
func (c Category) String() string {
	return string(c)
}

// ParseCategory parses a category token.
func ParseCategory(token string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(token)))
	if !c.IsValid() {
		return "", shared.ErrInvalidCategory
	}
	return c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: CANDIDATE PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// Key identifies one unit of work: a candidate within one category.
// It mirrors the durable store's unique key (email, index_number, category).
type Key struct {
	Email       string      `json:"email"`
	IndexNumber IndexNumber `json:"index_number"`
	Category    Category    `json:"category"`
}

// String returns a stable representation suitable for cache and lease keys.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Email, k.IndexNumber, k.Category)
}

// IsValid checks that all key components are present and well formed.
func (k Key) IsValid() bool {
	return emailRegex.MatchString(k.Email) && k.IndexNumber.IsValid() && k.Category.IsValid()
}

// Profile holds a candidate's grades for one processing cycle.
// It is created once at grade submission and immutable afterwards; it
// expires with the request-scoped session unless a payment is in flight.
type Profile struct {
	// Email is the candidate's contact identifier.
	Email string `json:"email"`

	// IndexNumber is the KCSE examination index number.
	IndexNumber IndexNumber `json:"index_number"`

	// Category is the course level this profile is matched against.
	Category Category `json:"category"`

	// SubjectGrades maps subject codes to canonical grades. Keys are unique.
	SubjectGrades map[SubjectCode]Grade `json:"subject_grades"`

	// MeanGrade is the overall aggregate grade. Required for non-degree
	// categories; optional for degree.
	MeanGrade Grade `json:"mean_grade,omitempty"`

	// ClusterPoints maps cluster IDs to weighted scores. Degree only.
	ClusterPoints map[string]float64 `json:"cluster_points,omitempty"`

	// Phone is the number charged for the qualification report.
	Phone PhoneNumber `json:"phone,omitempty"`

	// SubmittedAt is when the grades were submitted.
	SubmittedAt time.Time `json:"submitted_at"`
}

// NewProfileParams contains parameters for creating a candidate profile.
// Grade values must already be canonical (parsed at the boundary).
type NewProfileParams struct {
	Email         string
	IndexNumber   IndexNumber
	Category      Category
	SubjectGrades map[SubjectCode]Grade
	MeanGrade     Grade
	ClusterPoints map[string]float64
	Phone         PhoneNumber
}

// NewProfile creates a candidate profile with validation of all fields.
func NewProfile(params NewProfileParams) (*Profile, error) {
	if !emailRegex.MatchString(params.Email) {
		return nil, shared.ErrInvalidEmail
	}

	indexNumber := params.IndexNumber.Normalize()
	if !indexNumber.IsValid() {
		return nil, shared.ErrInvalidIndexNumber
	}

	if !params.Category.IsValid() {
		return nil, shared.ErrInvalidCategory
	}

	if params.Phone != "" && !params.Phone.IsValid() {
		return nil, shared.ErrInvalidPhoneNumber
	}

	if len(params.SubjectGrades) == 0 {
		return nil, shared.WrapError("candidate", "NewProfile", shared.ErrEmptyValue,
			"at least one subject grade is required", nil)
	}

	grades := make(map[SubjectCode]Grade, len(params.SubjectGrades))
	for code, grade := range params.SubjectGrades {
		if !grade.IsValid() {
			return nil, shared.ErrInvalidGrade
		}
		grades[code.Normalize()] = grade
	}

	if params.MeanGrade != "" && !params.MeanGrade.IsValid() {
		return nil, shared.ErrInvalidGrade
	}

	// Non-degree matching is a mean-grade bar; degree matching is cluster
	// points. Each category requires its own signal up front.
	if params.Category.UsesClusterPoints() {
		if len(params.ClusterPoints) == 0 {
			return nil, shared.ErrMissingClusterScore
		}
	} else if params.MeanGrade == "" {
		return nil, shared.ErrMissingMeanGrade
	}

	var clusterPoints map[string]float64
	if params.Category.UsesClusterPoints() {
		clusterPoints = make(map[string]float64, len(params.ClusterPoints))
		for cluster, points := range params.ClusterPoints {
			if points < 0 {
				return nil, shared.WrapError("candidate", "NewProfile", shared.ErrValueOutOfRange,
					fmt.Sprintf("negative cluster points for %s", cluster), nil)
			}
			clusterPoints[cluster] = points
		}
	}

	return &Profile{
		Email:         strings.ToLower(strings.TrimSpace(params.Email)),
		IndexNumber:   indexNumber,
		Category:      params.Category,
		SubjectGrades: grades,
		MeanGrade:     params.MeanGrade,
		ClusterPoints: clusterPoints,
		Phone:         params.Phone.Normalize(),
		SubmittedAt:   time.Now().UTC(),
	}, nil
}

// Key returns the (email, index_number, category) identity of the profile.
func (p *Profile) Key() Key {
	return Key{Email: p.Email, IndexNumber: p.IndexNumber, Category: p.Category}
}

// GradeFor returns the candidate's grade for a subject, if present.
func (p *Profile) GradeFor(code SubjectCode) (Grade, bool) {
	g, ok := p.SubjectGrades[code.Normalize()]
	return g, ok
}

// ClusterScore returns the candidate's points for a cluster.
// A missing entry defaults to 0, which fails any non-zero cutoff.
func (p *Profile) ClusterScore(cluster string) float64 {
	return p.ClusterPoints[cluster]
}

// String returns a short representation for logging. Grades are not included.
func (p *Profile) String() string {
	return fmt.Sprintf("Profile{Index: %s, Category: %s, Subjects: %d}",
		p.IndexNumber, p.Category, len(p.SubjectGrades))
}
