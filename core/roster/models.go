package roster

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/maoni/core"
)

// Batch is a group of students, e.g. "CS-A" year 3, scoped to an instance.
type Batch struct {
	ID         string    `json:"id"`
	Name       string    `json:"batch_name"`
	Division   string    `json:"division,omitempty"`
	Year       int       `json:"year"`
	InstanceID string    `json:"instance_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

type NewBatch struct {
	Name     string `json:"batch_name" validate:"required"`
	Division string `json:"division"`
	Year     *int   `json:"year" validate:"required"`
	// unknown emails are silently skipped
	StudentEmails []string `json:"students"`
}

func (nb *NewBatch) Validate(validate *validator.Validate) error {
	nb.Name = core.CleanString(nb.Name)
	nb.Division = core.CleanString(nb.Division)
	for i, email := range nb.StudentEmails {
		nb.StudentEmails[i] = core.CleanString(email, true /* lower */)
	}
	return validate.Struct(nb)
}

// UpdateBatch is a partial update. A nil StudentEmails leaves the membership
// untouched; a non-nil one fully replaces it. Replacing membership does not
// touch connectors already fanned out for forms targeting this batch.
type UpdateBatch struct {
	ID            string   `json:"id" validate:"required"`
	Name          string   `json:"batch_name"`
	Division      string   `json:"division"`
	Year          *int     `json:"year"`
	StudentEmails []string `json:"students"`
}

func (ub *UpdateBatch) Validate(validate *validator.Validate) error {
	ub.Name = core.CleanString(ub.Name)
	ub.Division = core.CleanString(ub.Division)
	for i, email := range ub.StudentEmails {
		ub.StudentEmails[i] = core.CleanString(email, true /* lower */)
	}
	return validate.Struct(ub)
}

// Member is a student belonging to a batch.
type Member struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type BatchFilter struct {
	Year       *int   `query:"year"`
	InstanceID string `query:"instance_id"`
}

func (bf *BatchFilter) IsEmpty() bool { return bf.Year == nil && bf.InstanceID == "" }

type Subject struct {
	ID         string    `json:"id"`
	Name       string    `json:"subject_name"`
	InstanceID string    `json:"instance_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

// SubjectFilter finds a single subject; ID wins over (Name, InstanceID).
type SubjectFilter struct {
	ID         string
	Name       string
	InstanceID string
}

type SectionKind string

const (
	Theory    SectionKind = "theory"
	Practical SectionKind = "practical"
)

// Section binds a batch to the teachers delivering a subject, either as
// theory or as practical.
type Section struct {
	ID         string      `json:"id"`
	SubjectID  string      `json:"subject_id"`
	BatchID    string      `json:"batch_id"`
	Kind       SectionKind `json:"kind"`
	TeacherIDs []string    `json:"teacher_ids"`
	CreatedAt  time.Time   `json:"created_at"` // UTC
}

// SectionDetail is a Section with its batch and teacher names resolved.
type SectionDetail struct {
	Section
	BatchName    string   `json:"batch_name"`
	TeacherNames []string `json:"teacher_names"`
}

// SubjectDetail is a Subject with all its sections resolved.
type SubjectDetail struct {
	Subject
	Sections []SectionDetail `json:"sections"`
}

type NewSection struct {
	SubjectName string      `json:"subject_name" validate:"required"`
	BatchID     string      `json:"batch_id" validate:"required"`
	TeacherIDs  []string    `json:"teachers"`
	Kind        SectionKind `json:"-"`
}

func (ns *NewSection) Validate(validate *validator.Validate) error {
	ns.SubjectName = core.CleanString(ns.SubjectName)
	return validate.Struct(ns)
}

type SectionFilter struct {
	SubjectID string
	BatchID   string
	Kind      SectionKind
}
