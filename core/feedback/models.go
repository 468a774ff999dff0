package feedback

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/maoni/core"
)

// Form is a feedback form a teacher publishes for a subject. The field
// schema is an opaque blob rendered by the frontend. A form marked not
// alive stays queryable for history but is excluded from pending
// dashboards.
type Form struct {
	ID         string          `json:"id"`
	Fields     json.RawMessage `json:"form_field"`
	TeacherID  string          `json:"teacher_id"`
	SubjectID  string          `json:"subject_id"`
	InstanceID string          `json:"instance_id,omitempty"`
	DueDate    time.Time       `json:"due_date"`
	Year       int             `json:"year"`
	BatchIDs   []string        `json:"batch_list"`
	IsTheory   bool            `json:"is_theory"`
	IsAlive    bool            `json:"is_alive"`
	CreatedAt  time.Time       `json:"created_at"` // UTC
	UpdatedAt  time.Time       `json:"updated_at"` // UTC
}

// FormDetail is a Form with its subject and teacher names resolved.
type FormDetail struct {
	Form
	SubjectName string `json:"subject_name"`
	TeacherName string `json:"teacher_name"`
}

type NewForm struct {
	Fields    json.RawMessage `json:"form_field" validate:"required"`
	SubjectID string          `json:"subject_id" validate:"required"`
	DueDate   string          `json:"due_date" validate:"required"` // RFC 3339
	Year      *int            `json:"year"`
	BatchIDs  []string        `json:"batch_list" validate:"required,min=1"`
	IsTheory  bool            `json:"is_theory"`
}

func (nf *NewForm) Validate(validate *validator.Validate) error {
	return validate.Struct(nf)
}

// UpdateForm is a partial update. A nil BatchIDs leaves the targeting
// untouched; a non-nil one triggers connector reconciliation.
type UpdateForm struct {
	ID       string          `json:"id" validate:"required"`
	Fields   json.RawMessage `json:"form_field"`
	DueDate  string          `json:"due_date"` // RFC 3339
	Year     *int            `json:"year"`
	BatchIDs []string        `json:"batch_list"`
	IsAlive  *bool           `json:"is_alive"`
}

func (uf *UpdateForm) Validate(validate *validator.Validate) error {
	return validate.Struct(uf)
}

// Connector is the per-student fulfillment record for one form: its
// existence means the student owes (or owed) a response.
type Connector struct {
	ID        string          `json:"id"`
	StudentID string          `json:"student_id"`
	FormID    string          `json:"form_id"`
	IsFilled  bool            `json:"is_filled"`
	Payload   json.RawMessage `json:"user_feedback,omitempty"`
	CreatedAt time.Time       `json:"created_at"` // UTC
	UpdatedAt time.Time       `json:"updated_at"` // UTC
}

type SubmitResult struct {
	FormID  string          `json:"form_id" validate:"required"`
	Payload json.RawMessage `json:"user_feedback" validate:"required"`
}

func (sr *SubmitResult) Validate(validate *validator.Validate) error {
	return validate.Struct(sr)
}

// ConnectorData is a form's connector joined with the student identity,
// for the teacher-facing responses view.
type ConnectorData struct {
	StudentID   string          `json:"student"`
	StudentName string          `json:"student_name"`
	Email       string          `json:"email"`
	IsFilled    bool            `json:"is_filled"`
	Payload     json.RawMessage `json:"user_feedback,omitempty"`
}

// DashboardItem is a student's connector joined with its form, for the
// pending/history dashboards.
type DashboardItem struct {
	ConnectorID string          `json:"connector_id"`
	FormID      string          `json:"form_id"`
	SubjectName string          `json:"subject_name"`
	TeacherName string          `json:"teacher_name"`
	DueDate     time.Time       `json:"due_date"`
	IsTheory    bool            `json:"is_theory"`
	IsFilled    bool            `json:"is_filled"`
	Payload     json.RawMessage `json:"user_feedback,omitempty"`
}

// ReminderTarget is a student with a Pending connector on a form.
type ReminderTarget struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type FormFilter struct {
	TeacherID  string
	InstanceID string
}

func parseDueDate(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, core.NewValidationError(err, core.FieldError{Field: "due_date", Error: "due_date must be a valid RFC 3339 timestamp"})
	}
	return t.UTC(), nil
}
