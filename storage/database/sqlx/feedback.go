package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/maoni/core"
	"github.com/trezcool/maoni/core/feedback"
)

type feedbackRepository struct {
	exec core.DBExecutor
}

var _ feedback.Repository = (*feedbackRepository)(nil) // interface compliance check

func NewFeedbackRepository(exec core.DBExecutor) *feedbackRepository {
	return &feedbackRepository{exec: exec}
}

func (repo feedbackRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

type formRow struct {
	ID         string         `db:"id"`
	Fields     []byte         `db:"form_field"`
	TeacherID  string         `db:"teacher_id"`
	SubjectID  string         `db:"subject_id"`
	InstanceID null.String    `db:"instance_id"`
	DueDate    time.Time      `db:"due_date"`
	Year       int            `db:"year"`
	BatchIDs   pq.StringArray `db:"batch_list"`
	IsTheory   bool           `db:"is_theory"`
	IsAlive    bool           `db:"is_alive"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (repo feedbackRepository) unpackForm(row formRow) feedback.Form {
	return feedback.Form{
		ID:         row.ID,
		Fields:     json.RawMessage(row.Fields),
		TeacherID:  row.TeacherID,
		SubjectID:  row.SubjectID,
		InstanceID: row.InstanceID.String,
		DueDate:    row.DueDate,
		Year:       row.Year,
		BatchIDs:   row.BatchIDs,
		IsTheory:   row.IsTheory,
		IsAlive:    row.IsAlive,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

const formColumns = `id, form_field, teacher_id, subject_id, instance_id, due_date, year, batch_list,
is_theory, is_alive, created_at, updated_at`

func (repo feedbackRepository) CreateForm(ctx context.Context, f feedback.Form, exec ...core.DBExecutor) (feedback.Form, error) {
	f.ID = uuid.New().String()
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO feedback_form (`+formColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		f.ID, []byte(f.Fields), f.TeacherID, f.SubjectID, null.NewString(f.InstanceID, f.InstanceID != ""),
		f.DueDate.UTC(), f.Year, pqStringArray(f.BatchIDs), f.IsTheory, f.IsAlive, f.CreatedAt.UTC(), f.UpdatedAt.UTC())
	if err != nil {
		return feedback.Form{}, errors.Wrap(err, "inserting form")
	}
	return f, nil
}

func (repo feedbackRepository) GetForm(ctx context.Context, id string, exec ...core.DBExecutor) (feedback.Form, error) {
	if _, err := uuid.Parse(id); err != nil {
		return feedback.Form{}, feedback.ErrFormNotFound
	}
	var row formRow
	if err := repo.getExec(exec).GetContext(ctx, &row, `SELECT `+formColumns+` FROM feedback_form WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return feedback.Form{}, feedback.ErrFormNotFound
		}
		return feedback.Form{}, errors.Wrap(err, "finding form")
	}
	return repo.unpackForm(row), nil
}

func (repo feedbackRepository) QueryForms(ctx context.Context, filter *feedback.FormFilter, exec ...core.DBExecutor) ([]feedback.FormDetail, error) {
	// subject may have been deleted from under the form; LEFT JOIN keeps
	// such forms visible with an empty subject name.
	query := `
		SELECT f.id, f.form_field, f.teacher_id, f.subject_id, f.instance_id, f.due_date, f.year,
			f.batch_list, f.is_theory, f.is_alive, f.created_at, f.updated_at,
			COALESCE(s.name, '') AS subject_name, COALESCE(t.name, t.email) AS teacher_name
		FROM feedback_form f
		LEFT JOIN subject s ON s.id = f.subject_id
		JOIN "user" t ON t.id = f.teacher_id`
	var (
		where []string
		args  []interface{}
	)
	if filter != nil {
		if filter.TeacherID != "" {
			where = append(where, fmt.Sprintf(`f.teacher_id = $%d`, len(args)+1))
			args = append(args, filter.TeacherID)
		}
		if filter.InstanceID != "" {
			where = append(where, fmt.Sprintf(`f.instance_id = $%d`, len(args)+1))
			args = append(args, filter.InstanceID)
		}
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY f.created_at DESC`

	type formDetailRow struct {
		formRow
		SubjectName string      `db:"subject_name"`
		TeacherName null.String `db:"teacher_name"`
	}
	var rows []formDetailRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying forms")
	}
	details := make([]feedback.FormDetail, 0, len(rows))
	for _, row := range rows {
		details = append(details, feedback.FormDetail{
			Form:        repo.unpackForm(row.formRow),
			SubjectName: row.SubjectName,
			TeacherName: row.TeacherName.String,
		})
	}
	return details, nil
}

func (repo feedbackRepository) UpdateForm(ctx context.Context, f feedback.Form, exec ...core.DBExecutor) (feedback.Form, error) {
	res, err := repo.getExec(exec).ExecContext(ctx, `
		UPDATE feedback_form SET form_field = $2, due_date = $3, year = $4, batch_list = $5,
			is_theory = $6, is_alive = $7, updated_at = $8
		WHERE id = $1`,
		f.ID, []byte(f.Fields), f.DueDate.UTC(), f.Year, pqStringArray(f.BatchIDs), f.IsTheory,
		f.IsAlive, f.UpdatedAt.UTC())
	if err != nil {
		return feedback.Form{}, errors.Wrap(err, "updating form")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return feedback.Form{}, feedback.ErrFormNotFound
	}
	return f, nil
}

func (repo feedbackRepository) DeleteForm(ctx context.Context, id string, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM feedback_form WHERE id = $1`, id)
	return errors.Wrap(err, "deleting form")
}

type connectorRow struct {
	ID        string    `db:"id"`
	StudentID string    `db:"student_id"`
	FormID    string    `db:"form_id"`
	IsFilled  bool      `db:"is_filled"`
	Payload   []byte    `db:"user_feedback"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (repo feedbackRepository) unpackConnector(row connectorRow) feedback.Connector {
	return feedback.Connector{
		ID:        row.ID,
		StudentID: row.StudentID,
		FormID:    row.FormID,
		IsFilled:  row.IsFilled,
		Payload:   json.RawMessage(row.Payload),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

const connectorColumns = `id, student_id, form_id, is_filled, user_feedback, created_at, updated_at`

func (repo feedbackRepository) CreateConnector(ctx context.Context, c feedback.Connector, exec ...core.DBExecutor) (feedback.Connector, error) {
	c.ID = uuid.New().String()
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO feedback_connector (`+connectorColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.StudentID, c.FormID, c.IsFilled, []byte(c.Payload), c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if err != nil {
		return feedback.Connector{}, errors.Wrap(err, "inserting connector")
	}
	return c, nil
}

func (repo feedbackRepository) GetConnector(ctx context.Context, formID, studentID string, exec ...core.DBExecutor) (feedback.Connector, error) {
	var row connectorRow
	err := repo.getExec(exec).GetContext(ctx, &row, `
		SELECT `+connectorColumns+` FROM feedback_connector WHERE form_id = $1 AND student_id = $2`, formID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return feedback.Connector{}, feedback.ErrConnectorNotFound
		}
		return feedback.Connector{}, errors.Wrap(err, "finding connector")
	}
	return repo.unpackConnector(row), nil
}

func (repo feedbackRepository) UpdateConnector(ctx context.Context, c feedback.Connector, exec ...core.DBExecutor) (feedback.Connector, error) {
	res, err := repo.getExec(exec).ExecContext(ctx, `
		UPDATE feedback_connector SET is_filled = $2, user_feedback = $3, updated_at = $4 WHERE id = $1`,
		c.ID, c.IsFilled, []byte(c.Payload), c.UpdatedAt.UTC())
	if err != nil {
		return feedback.Connector{}, errors.Wrap(err, "updating connector")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return feedback.Connector{}, feedback.ErrConnectorNotFound
	}
	return c, nil
}

func (repo feedbackRepository) DeleteConnectorsByForm(ctx context.Context, formID string, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM feedback_connector WHERE form_id = $1`, formID)
	return errors.Wrap(err, "deleting connectors")
}

func (repo feedbackRepository) DeleteConnectorsByFormAndStudents(ctx context.Context, formID string, studentIDs []string, exec ...core.DBExecutor) error {
	if len(studentIDs) == 0 {
		return nil
	}
	_, err := repo.getExec(exec).ExecContext(ctx, `
		DELETE FROM feedback_connector WHERE form_id = $1 AND student_id = ANY($2)`, formID, pqStringArray(studentIDs))
	return errors.Wrap(err, "deleting connectors")
}

func (repo feedbackRepository) QueryStudentIDsByBatch(ctx context.Context, batchID string, exec ...core.DBExecutor) ([]string, error) {
	var ids []string
	err := repo.getExec(exec).SelectContext(ctx, &ids, `
		SELECT student_id FROM batch_student WHERE batch_id = $1`, batchID)
	if err != nil {
		return nil, errors.Wrap(err, "querying batch students")
	}
	return ids, nil
}

func (repo feedbackRepository) QueryConnectorData(ctx context.Context, formID string, exec ...core.DBExecutor) ([]feedback.ConnectorData, error) {
	type dataRow struct {
		StudentID   string      `db:"student_id"`
		StudentName null.String `db:"student_name"`
		Email       string      `db:"email"`
		IsFilled    bool        `db:"is_filled"`
		Payload     []byte      `db:"user_feedback"`
	}
	var rows []dataRow
	err := repo.getExec(exec).SelectContext(ctx, &rows, `
		SELECT c.student_id, u.name AS student_name, u.email, c.is_filled, c.user_feedback
		FROM feedback_connector c JOIN "user" u ON u.id = c.student_id
		WHERE c.form_id = $1 ORDER BY u.name`, formID)
	if err != nil {
		return nil, errors.Wrap(err, "querying connector data")
	}
	data := make([]feedback.ConnectorData, 0, len(rows))
	for _, row := range rows {
		data = append(data, feedback.ConnectorData{
			StudentID:   row.StudentID,
			StudentName: row.StudentName.String,
			Email:       row.Email,
			IsFilled:    row.IsFilled,
			Payload:     json.RawMessage(row.Payload),
		})
	}
	return data, nil
}

func (repo feedbackRepository) QueryStudentDashboard(ctx context.Context, studentID string, filled bool, exec ...core.DBExecutor) ([]feedback.DashboardItem, error) {
	query := `
		SELECT c.id AS connector_id, c.form_id, COALESCE(s.name, '') AS subject_name,
			COALESCE(t.name, t.email) AS teacher_name, f.due_date, f.is_theory, c.is_filled, c.user_feedback
		FROM feedback_connector c
		JOIN feedback_form f ON f.id = c.form_id
		LEFT JOIN subject s ON s.id = f.subject_id
		JOIN "user" t ON t.id = f.teacher_id
		WHERE c.student_id = $1 AND c.is_filled = $2`
	if !filled {
		// retired forms drop off the pending dashboard but stay in history
		query += ` AND f.is_alive`
	}
	query += ` ORDER BY f.due_date`

	type itemRow struct {
		ConnectorID string      `db:"connector_id"`
		FormID      string      `db:"form_id"`
		SubjectName string      `db:"subject_name"`
		TeacherName null.String `db:"teacher_name"`
		DueDate     time.Time   `db:"due_date"`
		IsTheory    bool        `db:"is_theory"`
		IsFilled    bool        `db:"is_filled"`
		Payload     []byte      `db:"user_feedback"`
	}
	var rows []itemRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, studentID, filled); err != nil {
		return nil, errors.Wrap(err, "querying dashboard")
	}
	items := make([]feedback.DashboardItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, feedback.DashboardItem{
			ConnectorID: row.ConnectorID,
			FormID:      row.FormID,
			SubjectName: row.SubjectName,
			TeacherName: row.TeacherName.String,
			DueDate:     row.DueDate,
			IsTheory:    row.IsTheory,
			IsFilled:    row.IsFilled,
			Payload:     json.RawMessage(row.Payload),
		})
	}
	return items, nil
}

func (repo feedbackRepository) QueryReminderTargets(ctx context.Context, formID string, exec ...core.DBExecutor) ([]feedback.ReminderTarget, error) {
	type targetRow struct {
		Name  null.String `db:"name"`
		Email string      `db:"email"`
	}
	var rows []targetRow
	err := repo.getExec(exec).SelectContext(ctx, &rows, `
		SELECT u.name, u.email FROM feedback_connector c
		JOIN "user" u ON u.id = c.student_id
		WHERE c.form_id = $1 AND NOT c.is_filled ORDER BY u.name`, formID)
	if err != nil {
		return nil, errors.Wrap(err, "querying reminder targets")
	}
	targets := make([]feedback.ReminderTarget, 0, len(rows))
	for _, row := range rows {
		targets = append(targets, feedback.ReminderTarget{Name: row.Name.String, Email: row.Email})
	}
	return targets, nil
}
