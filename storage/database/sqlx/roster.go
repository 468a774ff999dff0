package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/maoni/core"
	"github.com/trezcool/maoni/core/roster"
)

type rosterRepository struct {
	exec core.DBExecutor
}

var _ roster.Repository = (*rosterRepository)(nil) // interface compliance check

func NewRosterRepository(exec core.DBExecutor) *rosterRepository {
	return &rosterRepository{exec: exec}
}

func (repo rosterRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

type batchRow struct {
	ID         string      `db:"id"`
	Name       string      `db:"name"`
	Division   null.String `db:"division"`
	Year       int         `db:"year"`
	InstanceID null.String `db:"instance_id"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

func (repo rosterRepository) unpackBatch(row batchRow) roster.Batch {
	return roster.Batch{
		ID:         row.ID,
		Name:       row.Name,
		Division:   row.Division.String,
		Year:       row.Year,
		InstanceID: row.InstanceID.String,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

const batchColumns = `id, name, division, year, instance_id, created_at, updated_at`

func (repo rosterRepository) CreateBatch(ctx context.Context, b roster.Batch, exec ...core.DBExecutor) (roster.Batch, error) {
	b.ID = uuid.New().String()
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO batch (`+batchColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.Name, null.NewString(b.Division, b.Division != ""), b.Year,
		null.NewString(b.InstanceID, b.InstanceID != ""), b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	if err != nil {
		return roster.Batch{}, errors.Wrap(err, "inserting batch")
	}
	return b, nil
}

func (repo rosterRepository) GetBatch(ctx context.Context, id string, exec ...core.DBExecutor) (roster.Batch, error) {
	if _, err := uuid.Parse(id); err != nil {
		return roster.Batch{}, roster.ErrBatchNotFound
	}
	var row batchRow
	if err := repo.getExec(exec).GetContext(ctx, &row, `SELECT `+batchColumns+` FROM batch WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return roster.Batch{}, roster.ErrBatchNotFound
		}
		return roster.Batch{}, errors.Wrap(err, "finding batch")
	}
	return repo.unpackBatch(row), nil
}

func (repo rosterRepository) QueryBatches(ctx context.Context, filter *roster.BatchFilter, exec ...core.DBExecutor) ([]roster.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batch`
	var (
		where []string
		args  []interface{}
	)
	if filter != nil {
		if filter.Year != nil {
			where = append(where, fmt.Sprintf(`year = $%d`, len(args)+1))
			args = append(args, *filter.Year)
		}
		if filter.InstanceID != "" {
			where = append(where, fmt.Sprintf(`instance_id = $%d`, len(args)+1))
			args = append(args, filter.InstanceID)
		}
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY year, name`

	var rows []batchRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying batches")
	}
	batches := make([]roster.Batch, 0, len(rows))
	for _, row := range rows {
		batches = append(batches, repo.unpackBatch(row))
	}
	return batches, nil
}

func (repo rosterRepository) UpdateBatch(ctx context.Context, b roster.Batch, exec ...core.DBExecutor) (roster.Batch, error) {
	res, err := repo.getExec(exec).ExecContext(ctx, `
		UPDATE batch SET name = $2, division = $3, year = $4, updated_at = $5 WHERE id = $1`,
		b.ID, b.Name, null.NewString(b.Division, b.Division != ""), b.Year, b.UpdatedAt.UTC())
	if err != nil {
		return roster.Batch{}, errors.Wrap(err, "updating batch")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return roster.Batch{}, roster.ErrBatchNotFound
	}
	return b, nil
}

func (repo rosterRepository) DeleteBatch(ctx context.Context, id string, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM batch WHERE id = $1`, id)
	return errors.Wrap(err, "deleting batch")
}

func (repo rosterRepository) ResolveStudentIDs(ctx context.Context, emails []string, exec ...core.DBExecutor) ([]string, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	var ids []string
	err := repo.getExec(exec).SelectContext(ctx, &ids, `
		SELECT id FROM "user" WHERE NOT is_staff AND email = ANY($1)`, pqStringArray(emails))
	if err != nil {
		return nil, errors.Wrap(err, "resolving students")
	}
	return ids, nil
}

func (repo rosterRepository) ReplaceBatchStudents(ctx context.Context, batchID string, studentIDs []string, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	if _, err := exe.ExecContext(ctx, `DELETE FROM batch_student WHERE batch_id = $1`, batchID); err != nil {
		return errors.Wrap(err, "clearing batch students")
	}
	if len(studentIDs) == 0 {
		return nil
	}
	_, err := exe.ExecContext(ctx, `
		INSERT INTO batch_student (batch_id, student_id)
		SELECT $1, UNNEST($2::uuid[]) ON CONFLICT DO NOTHING`, batchID, pqStringArray(studentIDs))
	return errors.Wrap(err, "adding batch students")
}

func (repo rosterRepository) QueryBatchStudents(ctx context.Context, batchID string, exec ...core.DBExecutor) ([]roster.Member, error) {
	type memberRow struct {
		ID    string      `db:"id"`
		Name  null.String `db:"name"`
		Email string      `db:"email"`
	}
	var rows []memberRow
	err := repo.getExec(exec).SelectContext(ctx, &rows, `
		SELECT u.id, u.name, u.email FROM "user" u
		JOIN batch_student bs ON bs.student_id = u.id
		WHERE bs.batch_id = $1 ORDER BY u.name`, batchID)
	if err != nil {
		return nil, errors.Wrap(err, "querying batch students")
	}
	members := make([]roster.Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, roster.Member{ID: row.ID, Name: row.Name.String, Email: row.Email})
	}
	return members, nil
}

type subjectRow struct {
	ID         string      `db:"id"`
	Name       string      `db:"name"`
	InstanceID null.String `db:"instance_id"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

func (repo rosterRepository) unpackSubject(row subjectRow) roster.Subject {
	return roster.Subject{
		ID:         row.ID,
		Name:       row.Name,
		InstanceID: row.InstanceID.String,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

const subjectColumns = `id, name, instance_id, created_at, updated_at`

func (repo rosterRepository) CreateSubject(ctx context.Context, s roster.Subject, exec ...core.DBExecutor) (roster.Subject, error) {
	s.ID = uuid.New().String()
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO subject (`+subjectColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.Name, null.NewString(s.InstanceID, s.InstanceID != ""), s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		return roster.Subject{}, errors.Wrap(err, "inserting subject")
	}
	return s, nil
}

func (repo rosterRepository) GetSubject(ctx context.Context, filter roster.SubjectFilter, exec ...core.DBExecutor) (roster.Subject, error) {
	var (
		query string
		args  []interface{}
	)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return roster.Subject{}, roster.ErrSubjectNotFound
		}
		query, args = `SELECT `+subjectColumns+` FROM subject WHERE id = $1`, []interface{}{filter.ID}
	case filter.Name != "" && filter.InstanceID != "":
		query = `SELECT ` + subjectColumns + ` FROM subject WHERE name = $1 AND instance_id = $2`
		args = []interface{}{filter.Name, filter.InstanceID}
	case filter.Name != "":
		query, args = `SELECT `+subjectColumns+` FROM subject WHERE name = $1`, []interface{}{filter.Name}
	default:
		return roster.Subject{}, roster.ErrSubjectNotFound
	}

	var row subjectRow
	if err := repo.getExec(exec).GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return roster.Subject{}, roster.ErrSubjectNotFound
		}
		return roster.Subject{}, errors.Wrap(err, "finding subject")
	}
	return repo.unpackSubject(row), nil
}

func (repo rosterRepository) QuerySubjects(ctx context.Context, instanceID string, exec ...core.DBExecutor) ([]roster.Subject, error) {
	query := `SELECT ` + subjectColumns + ` FROM subject`
	var args []interface{}
	if instanceID != "" {
		query += ` WHERE instance_id = $1`
		args = append(args, instanceID)
	}
	query += ` ORDER BY name`

	var rows []subjectRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	subjects := make([]roster.Subject, 0, len(rows))
	for _, row := range rows {
		subjects = append(subjects, repo.unpackSubject(row))
	}
	return subjects, nil
}

func (repo rosterRepository) DeleteSubject(ctx context.Context, id string, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM subject WHERE id = $1`, id)
	return errors.Wrap(err, "deleting subject")
}

type sectionRow struct {
	ID         string         `db:"id"`
	SubjectID  string         `db:"subject_id"`
	BatchID    string         `db:"batch_id"`
	Kind       string         `db:"kind"`
	TeacherIDs pq.StringArray `db:"teacher_ids"`
	CreatedAt  time.Time      `db:"created_at"`
	BatchName  null.String    `db:"batch_name"`
}

func (repo rosterRepository) CreateSection(ctx context.Context, sec roster.Section, exec ...core.DBExecutor) (roster.Section, error) {
	sec.ID = uuid.New().String()
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO section (id, subject_id, batch_id, kind, teacher_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sec.ID, sec.SubjectID, sec.BatchID, string(sec.Kind), pqStringArray(sec.TeacherIDs), sec.CreatedAt.UTC())
	if err != nil {
		return roster.Section{}, errors.Wrap(err, "inserting section")
	}
	return sec, nil
}

func (repo rosterRepository) QuerySections(ctx context.Context, filter roster.SectionFilter, exec ...core.DBExecutor) ([]roster.SectionDetail, error) {
	query := `
		SELECT s.id, s.subject_id, s.batch_id, s.kind, s.teacher_ids, s.created_at, b.name AS batch_name
		FROM section s JOIN batch b ON b.id = s.batch_id`
	var (
		where []string
		args  []interface{}
	)
	if filter.SubjectID != "" {
		where = append(where, fmt.Sprintf(`s.subject_id = $%d`, len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.BatchID != "" {
		where = append(where, fmt.Sprintf(`s.batch_id = $%d`, len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.Kind != "" {
		where = append(where, fmt.Sprintf(`s.kind = $%d`, len(args)+1))
		args = append(args, string(filter.Kind))
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY s.created_at`

	exe := repo.getExec(exec)
	var rows []sectionRow
	if err := exe.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying sections")
	}

	details := make([]roster.SectionDetail, 0, len(rows))
	for _, row := range rows {
		detail := roster.SectionDetail{
			Section: roster.Section{
				ID:         row.ID,
				SubjectID:  row.SubjectID,
				BatchID:    row.BatchID,
				Kind:       roster.SectionKind(row.Kind),
				TeacherIDs: row.TeacherIDs,
				CreatedAt:  row.CreatedAt,
			},
			BatchName: row.BatchName.String,
		}
		if len(row.TeacherIDs) > 0 {
			var names []string
			err := exe.SelectContext(ctx, &names, `
				SELECT COALESCE(name, email) FROM "user" WHERE id = ANY($1) ORDER BY name`, row.TeacherIDs)
			if err != nil {
				return nil, errors.Wrap(err, "resolving teacher names")
			}
			detail.TeacherNames = names
		}
		details = append(details, detail)
	}
	return details, nil
}

func (repo rosterRepository) DeleteSectionsBySubject(ctx context.Context, subjectID string, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM section WHERE subject_id = $1`, subjectID)
	return errors.Wrap(err, "deleting sections")
}
