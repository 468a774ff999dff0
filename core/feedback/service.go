package feedback

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/maoni/core"
	"github.com/trezcool/maoni/core/roster"
)

var (
	// errors
	ErrFormNotFound      = errors.New("feedback form not found")
	ErrConnectorNotFound = errors.New("no feedback requested from this user for this form")
)

type (
	Repository interface {
		CreateForm(ctx context.Context, f Form, exec ...core.DBExecutor) (Form, error)
		GetForm(ctx context.Context, id string, exec ...core.DBExecutor) (Form, error)
		// QueryForms applies AND operation on available FormFilter fields.
		QueryForms(ctx context.Context, filter *FormFilter, exec ...core.DBExecutor) ([]FormDetail, error)
		UpdateForm(ctx context.Context, f Form, exec ...core.DBExecutor) (Form, error)
		DeleteForm(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateConnector(ctx context.Context, c Connector, exec ...core.DBExecutor) (Connector, error)
		GetConnector(ctx context.Context, formID, studentID string, exec ...core.DBExecutor) (Connector, error)
		UpdateConnector(ctx context.Context, c Connector, exec ...core.DBExecutor) (Connector, error)
		DeleteConnectorsByForm(ctx context.Context, formID string, exec ...core.DBExecutor) error
		DeleteConnectorsByFormAndStudents(ctx context.Context, formID string, studentIDs []string, exec ...core.DBExecutor) error

		QueryStudentIDsByBatch(ctx context.Context, batchID string, exec ...core.DBExecutor) ([]string, error)
		QueryConnectorData(ctx context.Context, formID string, exec ...core.DBExecutor) ([]ConnectorData, error)
		// QueryStudentDashboard returns a student's connectors joined with
		// their forms. With filled=false only live forms are included; with
		// filled=true the alive flag is ignored.
		QueryStudentDashboard(ctx context.Context, studentID string, filled bool, exec ...core.DBExecutor) ([]DashboardItem, error)
		QueryReminderTargets(ctx context.Context, formID string, exec ...core.DBExecutor) ([]ReminderTarget, error)
	}

	Service interface {
		CreateForm(ctx context.Context, teacherID, instanceID string, nf NewForm) (Form, error)
		GetForm(ctx context.Context, id string) (Form, error)
		FormsForTeacher(ctx context.Context, teacherID string) ([]FormDetail, error)
		UpdateForm(ctx context.Context, uf UpdateForm) (Form, error)
		DeleteForm(ctx context.Context, id string) error

		SaveResult(ctx context.Context, studentID string, sr SubmitResult) (Connector, error)
		Remind(ctx context.Context, formID string) ([]ReminderTarget, error)

		FormResponses(ctx context.Context, formID string) ([]ConnectorData, error)
		PendingForStudent(ctx context.Context, studentID string) ([]DashboardItem, error)
		HistoryForStudent(ctx context.Context, studentID string) ([]DashboardItem, error)
		FormForStudent(ctx context.Context, studentID, formID string) (FormDetail, error)
	}

	service struct {
		db        core.DB
		repo      Repository
		rosterSvc roster.Service
		mailSvc   core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, rosterSvc roster.Service, mailSvc core.EmailService) Service {
	return &service{
		db:        db,
		repo:      repo,
		rosterSvc: rosterSvc,
		mailSvc:   mailSvc,
	}
}

// CreateForm stores the form and fans a Pending connector out to every
// student of every targeted batch, all in one transaction.
func (svc *service) CreateForm(ctx context.Context, teacherID, instanceID string, nf NewForm) (Form, error) {
	if _, err := svc.rosterSvc.GetSubject(ctx, roster.SubjectFilter{ID: nf.SubjectID}); err != nil {
		return Form{}, err
	}
	dueDate, err := parseDueDate(nf.DueDate)
	if err != nil {
		return Form{}, err
	}

	tx, err := svc.db.BeginTx(ctx)
	if err != nil {
		return Form{}, errors.Wrap(err, "beginning tx")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer tx.Rollback()

	now := time.Now().UTC()
	form := Form{
		Fields:     nf.Fields,
		TeacherID:  teacherID,
		SubjectID:  nf.SubjectID,
		InstanceID: instanceID,
		DueDate:    dueDate,
		BatchIDs:   nf.BatchIDs,
		IsTheory:   nf.IsTheory,
		IsAlive:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if nf.Year != nil {
		form.Year = *nf.Year
	}
	if form, err = svc.repo.CreateForm(ctx, form, tx); err != nil {
		return Form{}, errors.Wrap(err, "creating form")
	}

	for _, batchID := range form.BatchIDs {
		if err = svc.fanOut(ctx, form.ID, batchID, tx); err != nil {
			return Form{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return Form{}, errors.Wrap(err, "committing tx")
	}
	return form, nil
}

func (svc *service) GetForm(ctx context.Context, id string) (Form, error) {
	return svc.repo.GetForm(ctx, id)
}

func (svc *service) FormsForTeacher(ctx context.Context, teacherID string) ([]FormDetail, error) {
	return svc.repo.QueryForms(ctx, &FormFilter{TeacherID: teacherID})
}

// UpdateForm patches the form. A changed batch list is reconciled: newly
// targeted batches get a fan-out, dropped batches get their connectors
// deleted, filled or not. Flipping IsAlive off retracts nothing.
func (svc *service) UpdateForm(ctx context.Context, uf UpdateForm) (Form, error) {
	form, err := svc.repo.GetForm(ctx, uf.ID)
	if err != nil {
		return Form{}, err
	}

	var dueDate time.Time
	if uf.DueDate != "" {
		if dueDate, err = parseDueDate(uf.DueDate); err != nil {
			return Form{}, err
		}
	}

	tx, err := svc.db.BeginTx(ctx)
	if err != nil {
		return Form{}, errors.Wrap(err, "beginning tx")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer tx.Rollback()

	oldBatchIDs := form.BatchIDs
	if uf.Fields != nil {
		form.Fields = uf.Fields
	}
	if !dueDate.IsZero() {
		form.DueDate = dueDate
	}
	if uf.Year != nil {
		form.Year = *uf.Year
	}
	if uf.BatchIDs != nil {
		form.BatchIDs = uf.BatchIDs
	}
	if uf.IsAlive != nil {
		form.IsAlive = *uf.IsAlive
	}
	form.UpdatedAt = time.Now().UTC()
	if form, err = svc.repo.UpdateForm(ctx, form, tx); err != nil {
		return Form{}, errors.Wrap(err, "updating form")
	}

	if uf.BatchIDs != nil {
		added, removed := diffBatchIDs(oldBatchIDs, form.BatchIDs)
		for _, batchID := range added {
			if err = svc.fanOut(ctx, form.ID, batchID, tx); err != nil {
				return Form{}, err
			}
		}
		for _, batchID := range removed {
			if err = svc.fanIn(ctx, form.ID, batchID, tx); err != nil {
				return Form{}, err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return Form{}, errors.Wrap(err, "committing tx")
	}
	return form, nil
}

// DeleteForm hard-deletes the form and all its connectors as one unit.
func (svc *service) DeleteForm(ctx context.Context, id string) error {
	if _, err := svc.repo.GetForm(ctx, id); err != nil {
		return err
	}

	tx, err := svc.db.BeginTx(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning tx")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer tx.Rollback()

	if err = svc.repo.DeleteConnectorsByForm(ctx, id, tx); err != nil {
		return errors.Wrap(err, "deleting connectors")
	}
	if err = svc.repo.DeleteForm(ctx, id, tx); err != nil {
		return errors.Wrap(err, "deleting form")
	}
	return tx.Commit()
}

// fanOut creates a Pending connector for each student of the batch that
// does not have one yet. Existing connectors, filled or not, stay as they
// are.
func (svc *service) fanOut(ctx context.Context, formID, batchID string, exec core.DBExecutor) error {
	studentIDs, err := svc.repo.QueryStudentIDsByBatch(ctx, batchID, exec)
	if err != nil {
		return errors.Wrapf(err, "listing students of batch %s", batchID)
	}
	now := time.Now().UTC()
	for _, studentID := range studentIDs {
		if _, err = svc.repo.GetConnector(ctx, formID, studentID, exec); err == nil {
			continue
		} else if errors.Cause(err) != ErrConnectorNotFound {
			return err
		}
		if _, err = svc.repo.CreateConnector(ctx, Connector{
			StudentID: studentID,
			FormID:    formID,
			CreatedAt: now,
			UpdatedAt: now,
		}, exec); err != nil {
			return errors.Wrap(err, "creating connector")
		}
	}
	return nil
}

// fanIn deletes the connectors of the batch's current students for the
// form. Filled responses are discarded too.
func (svc *service) fanIn(ctx context.Context, formID, batchID string, exec core.DBExecutor) error {
	studentIDs, err := svc.repo.QueryStudentIDsByBatch(ctx, batchID, exec)
	if err != nil {
		return errors.Wrapf(err, "listing students of batch %s", batchID)
	}
	if len(studentIDs) == 0 {
		return nil
	}
	return svc.repo.DeleteConnectorsByFormAndStudents(ctx, formID, studentIDs, exec)
}

// SaveResult moves the student's connector to Filled and stores the payload.
// Resubmitting overwrites the previous payload; there is no way back to
// Pending.
func (svc *service) SaveResult(ctx context.Context, studentID string, sr SubmitResult) (Connector, error) {
	conn, err := svc.repo.GetConnector(ctx, sr.FormID, studentID)
	if err != nil {
		return Connector{}, err
	}
	conn.IsFilled = true
	conn.Payload = sr.Payload
	conn.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateConnector(ctx, conn)
}

// Remind mails every student whose connector is still Pending. With nothing
// pending it succeeds without sending anything. The targeted list is
// returned for the caller's bookkeeping.
func (svc *service) Remind(ctx context.Context, formID string) ([]ReminderTarget, error) {
	form, err := svc.repo.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	targets, err := svc.repo.QueryReminderTargets(ctx, formID)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}

	subjectName := ""
	if subj, err := svc.rosterSvc.GetSubject(ctx, roster.SubjectFilter{ID: form.SubjectID}); err == nil {
		subjectName = subj.Name
	}
	to := make([]mail.Address, 0, len(targets))
	for _, t := range targets {
		to = append(to, mail.Address{Name: t.Name, Address: t.Email})
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      "Feedback Reminder",
		TemplateName: "feedback_reminder",
		TemplateData: struct {
			SubjectName string
			DueDate     time.Time
		}{subjectName, form.DueDate},
	})
	return targets, nil
}

func (svc *service) FormResponses(ctx context.Context, formID string) ([]ConnectorData, error) {
	if _, err := svc.repo.GetForm(ctx, formID); err != nil {
		return nil, err
	}
	return svc.repo.QueryConnectorData(ctx, formID)
}

func (svc *service) PendingForStudent(ctx context.Context, studentID string) ([]DashboardItem, error) {
	return svc.repo.QueryStudentDashboard(ctx, studentID, false)
}

func (svc *service) HistoryForStudent(ctx context.Context, studentID string) ([]DashboardItem, error) {
	return svc.repo.QueryStudentDashboard(ctx, studentID, true)
}

// FormForStudent returns the form a student is about to fill; the student
// must hold a connector for it.
func (svc *service) FormForStudent(ctx context.Context, studentID, formID string) (FormDetail, error) {
	if _, err := svc.repo.GetConnector(ctx, formID, studentID); err != nil {
		return FormDetail{}, err
	}
	form, err := svc.repo.GetForm(ctx, formID)
	if err != nil {
		return FormDetail{}, err
	}
	detail := FormDetail{Form: form}
	if subj, err := svc.rosterSvc.GetSubject(ctx, roster.SubjectFilter{ID: form.SubjectID}); err == nil {
		detail.SubjectName = subj.Name
	}
	return detail, nil
}

func diffBatchIDs(old, new []string) (added, removed []string) {
	oldSet := make(map[string]struct{}, len(old))
	for _, id := range old {
		oldSet[id] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(new))
	for _, id := range new {
		newSet[id] = struct{}{}
	}
	for id := range newSet {
		if _, ok := oldSet[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range oldSet {
		if _, ok := newSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}
