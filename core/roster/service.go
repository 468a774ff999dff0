package roster

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/maoni/core"
)

var (
	// errors
	ErrBatchNotFound   = errors.New("batch not found")
	ErrSubjectNotFound = errors.New("subject not found")
)

type (
	Repository interface {
		CreateBatch(ctx context.Context, b Batch, exec ...core.DBExecutor) (Batch, error)
		GetBatch(ctx context.Context, id string, exec ...core.DBExecutor) (Batch, error)
		// QueryBatches applies AND operation on available BatchFilter fields.
		QueryBatches(ctx context.Context, filter *BatchFilter, exec ...core.DBExecutor) ([]Batch, error)
		UpdateBatch(ctx context.Context, b Batch, exec ...core.DBExecutor) (Batch, error)
		DeleteBatch(ctx context.Context, id string, exec ...core.DBExecutor) error

		// ResolveStudentIDs maps emails to existing student IDs; unknown
		// emails are skipped without error.
		ResolveStudentIDs(ctx context.Context, emails []string, exec ...core.DBExecutor) ([]string, error)
		ReplaceBatchStudents(ctx context.Context, batchID string, studentIDs []string, exec ...core.DBExecutor) error
		QueryBatchStudents(ctx context.Context, batchID string, exec ...core.DBExecutor) ([]Member, error)

		CreateSubject(ctx context.Context, s Subject, exec ...core.DBExecutor) (Subject, error)
		GetSubject(ctx context.Context, filter SubjectFilter, exec ...core.DBExecutor) (Subject, error)
		QuerySubjects(ctx context.Context, instanceID string, exec ...core.DBExecutor) ([]Subject, error)
		DeleteSubject(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateSection(ctx context.Context, sec Section, exec ...core.DBExecutor) (Section, error)
		QuerySections(ctx context.Context, filter SectionFilter, exec ...core.DBExecutor) ([]SectionDetail, error)
		DeleteSectionsBySubject(ctx context.Context, subjectID string, exec ...core.DBExecutor) error
	}

	Service interface {
		CreateBatch(ctx context.Context, instanceID string, nb NewBatch) (Batch, error)
		GetBatch(ctx context.Context, id string) (Batch, error)
		QueryBatches(ctx context.Context, filter *BatchFilter) ([]Batch, error)
		BatchStudents(ctx context.Context, batchID string) ([]Member, error)
		UpdateBatch(ctx context.Context, ub UpdateBatch) (Batch, error)
		DeleteBatch(ctx context.Context, id string) error

		AddSection(ctx context.Context, instanceID string, ns NewSection) (Section, error)
		GetSubject(ctx context.Context, filter SubjectFilter) (Subject, error)
		QuerySubjects(ctx context.Context, instanceID string) ([]SubjectDetail, error)
		DeleteSubject(ctx context.Context, id string) error
	}

	service struct {
		db   core.DB
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository) Service {
	return &service{db: db, repo: repo}
}

func (svc *service) CreateBatch(ctx context.Context, instanceID string, nb NewBatch) (Batch, error) {
	tx, err := svc.db.BeginTx(ctx)
	if err != nil {
		return Batch{}, errors.Wrap(err, "beginning tx")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer tx.Rollback()

	now := time.Now().UTC()
	batch, err := svc.repo.CreateBatch(ctx, Batch{
		Name:       nb.Name,
		Division:   nb.Division,
		Year:       *nb.Year,
		InstanceID: instanceID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, tx)
	if err != nil {
		return Batch{}, errors.Wrap(err, "creating batch")
	}

	if len(nb.StudentEmails) > 0 {
		studentIDs, err := svc.repo.ResolveStudentIDs(ctx, nb.StudentEmails, tx)
		if err != nil {
			return Batch{}, errors.Wrap(err, "resolving students")
		}
		if err = svc.repo.ReplaceBatchStudents(ctx, batch.ID, studentIDs, tx); err != nil {
			return Batch{}, errors.Wrap(err, "adding students")
		}
	}

	if err = tx.Commit(); err != nil {
		return Batch{}, errors.Wrap(err, "committing tx")
	}
	return batch, nil
}

func (svc *service) GetBatch(ctx context.Context, id string) (Batch, error) {
	return svc.repo.GetBatch(ctx, id)
}

func (svc *service) QueryBatches(ctx context.Context, filter *BatchFilter) ([]Batch, error) {
	return svc.repo.QueryBatches(ctx, filter)
}

func (svc *service) BatchStudents(ctx context.Context, batchID string) ([]Member, error) {
	if _, err := svc.repo.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return svc.repo.QueryBatchStudents(ctx, batchID)
}

// UpdateBatch patches the batch row and, when a student list is supplied,
// fully replaces the membership. Connectors already fanned out for forms
// targeting this batch are left alone; only a form's batch-list update
// reconciles them.
func (svc *service) UpdateBatch(ctx context.Context, ub UpdateBatch) (Batch, error) {
	batch, err := svc.repo.GetBatch(ctx, ub.ID)
	if err != nil {
		return Batch{}, err
	}

	tx, err := svc.db.BeginTx(ctx)
	if err != nil {
		return Batch{}, errors.Wrap(err, "beginning tx")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer tx.Rollback()

	if ub.Name != "" {
		batch.Name = ub.Name
	}
	if ub.Division != "" {
		batch.Division = ub.Division
	}
	if ub.Year != nil {
		batch.Year = *ub.Year
	}
	batch.UpdatedAt = time.Now().UTC()
	if batch, err = svc.repo.UpdateBatch(ctx, batch, tx); err != nil {
		return Batch{}, errors.Wrap(err, "updating batch")
	}

	if ub.StudentEmails != nil {
		studentIDs, err := svc.repo.ResolveStudentIDs(ctx, ub.StudentEmails, tx)
		if err != nil {
			return Batch{}, errors.Wrap(err, "resolving students")
		}
		if err = svc.repo.ReplaceBatchStudents(ctx, batch.ID, studentIDs, tx); err != nil {
			return Batch{}, errors.Wrap(err, "replacing students")
		}
	}

	if err = tx.Commit(); err != nil {
		return Batch{}, errors.Wrap(err, "committing tx")
	}
	return batch, nil
}

func (svc *service) DeleteBatch(ctx context.Context, id string) error {
	if _, err := svc.repo.GetBatch(ctx, id); err != nil {
		return err
	}

	tx, err := svc.db.BeginTx(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning tx")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer tx.Rollback()

	if err = svc.repo.ReplaceBatchStudents(ctx, id, nil, tx); err != nil {
		return errors.Wrap(err, "clearing students")
	}
	if err = svc.repo.DeleteBatch(ctx, id, tx); err != nil {
		return errors.Wrap(err, "deleting batch")
	}
	return tx.Commit()
}

// AddSection finds or creates the subject by (name, instance), then appends
// a section row. Duplicate sections for the same (subject, batch, kind) are
// allowed.
func (svc *service) AddSection(ctx context.Context, instanceID string, ns NewSection) (Section, error) {
	if _, err := svc.repo.GetBatch(ctx, ns.BatchID); err != nil {
		return Section{}, err
	}

	tx, err := svc.db.BeginTx(ctx)
	if err != nil {
		return Section{}, errors.Wrap(err, "beginning tx")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer tx.Rollback()

	now := time.Now().UTC()
	subj, err := svc.repo.GetSubject(ctx, SubjectFilter{Name: ns.SubjectName, InstanceID: instanceID}, tx)
	if err != nil {
		if errors.Cause(err) != ErrSubjectNotFound {
			return Section{}, err
		}
		if subj, err = svc.repo.CreateSubject(ctx, Subject{
			Name:       ns.SubjectName,
			InstanceID: instanceID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}, tx); err != nil {
			return Section{}, errors.Wrap(err, "creating subject")
		}
	}

	sec, err := svc.repo.CreateSection(ctx, Section{
		SubjectID:  subj.ID,
		BatchID:    ns.BatchID,
		Kind:       ns.Kind,
		TeacherIDs: ns.TeacherIDs,
		CreatedAt:  now,
	}, tx)
	if err != nil {
		return Section{}, errors.Wrap(err, "creating section")
	}

	if err = tx.Commit(); err != nil {
		return Section{}, errors.Wrap(err, "committing tx")
	}
	return sec, nil
}

func (svc *service) GetSubject(ctx context.Context, filter SubjectFilter) (Subject, error) {
	return svc.repo.GetSubject(ctx, filter)
}

func (svc *service) QuerySubjects(ctx context.Context, instanceID string) ([]SubjectDetail, error) {
	subjects, err := svc.repo.QuerySubjects(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	details := make([]SubjectDetail, 0, len(subjects))
	for _, subj := range subjects {
		sections, err := svc.repo.QuerySections(ctx, SectionFilter{SubjectID: subj.ID})
		if err != nil {
			return nil, err
		}
		details = append(details, SubjectDetail{Subject: subj, Sections: sections})
	}
	return details, nil
}

// DeleteSubject cascades onto the subject's sections. Forms referencing the
// subject are left in place with a dangling subject link.
func (svc *service) DeleteSubject(ctx context.Context, id string) error {
	if _, err := svc.repo.GetSubject(ctx, SubjectFilter{ID: id}); err != nil {
		return err
	}

	tx, err := svc.db.BeginTx(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning tx")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer tx.Rollback()

	if err = svc.repo.DeleteSectionsBySubject(ctx, id, tx); err != nil {
		return errors.Wrap(err, "deleting sections")
	}
	if err = svc.repo.DeleteSubject(ctx, id, tx); err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	return tx.Commit()
}
