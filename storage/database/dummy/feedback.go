package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/maoni/core"
	"github.com/trezcool/maoni/core/feedback"
)

type feedbackRepository struct {
	db     *feedbackTable
	roster *rosterTable
	users  *userTable
}

var _ feedback.Repository = (*feedbackRepository)(nil) // interface compliance check

func NewFeedbackRepository(db *DB) feedback.Repository {
	return &feedbackRepository{db: db.feedback, roster: db.roster, users: db.user}
}

func (repo *feedbackRepository) CreateForm(_ context.Context, f feedback.Form, _ ...core.DBExecutor) (feedback.Form, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	f.ID = uuid.New().String()
	repo.db.forms[f.ID] = &f
	return f, nil
}

func (repo *feedbackRepository) GetForm(_ context.Context, id string, _ ...core.DBExecutor) (feedback.Form, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if f, ok := repo.db.forms[id]; ok {
		return *f, nil
	}
	return feedback.Form{}, feedback.ErrFormNotFound
}

func (repo *feedbackRepository) QueryForms(_ context.Context, filter *feedback.FormFilter, _ ...core.DBExecutor) ([]feedback.FormDetail, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.roster.RLock()
	defer repo.roster.RUnlock()
	repo.users.RLock()
	defer repo.users.RUnlock()

	var details []feedback.FormDetail
	for _, f := range repo.db.forms {
		if filter != nil {
			if filter.TeacherID != "" && f.TeacherID != filter.TeacherID {
				continue
			}
			if filter.InstanceID != "" && f.InstanceID != filter.InstanceID {
				continue
			}
		}
		detail := feedback.FormDetail{Form: *f}
		if s, ok := repo.roster.subjects[f.SubjectID]; ok {
			detail.SubjectName = s.Name
		}
		if t, ok := repo.users.table[f.TeacherID]; ok {
			detail.TeacherName = t.Name
			if detail.TeacherName == "" {
				detail.TeacherName = t.Email
			}
		}
		details = append(details, detail)
	}
	sort.Slice(details, func(i, j int) bool { return details[i].CreatedAt.After(details[j].CreatedAt) })
	return details, nil
}

func (repo *feedbackRepository) UpdateForm(_ context.Context, f feedback.Form, _ ...core.DBExecutor) (feedback.Form, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.forms[f.ID]; !ok {
		return feedback.Form{}, feedback.ErrFormNotFound
	}
	repo.db.forms[f.ID] = &f
	return f, nil
}

func (repo *feedbackRepository) DeleteForm(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.forms, id)
	return nil
}

func (repo *feedbackRepository) CreateConnector(_ context.Context, c feedback.Connector, _ ...core.DBExecutor) (feedback.Connector, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	c.ID = uuid.New().String()
	repo.db.connectors[c.ID] = &c
	return c, nil
}

func (repo *feedbackRepository) GetConnector(_ context.Context, formID, studentID string, _ ...core.DBExecutor) (feedback.Connector, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, c := range repo.db.connectors {
		if c.FormID == formID && c.StudentID == studentID {
			return *c, nil
		}
	}
	return feedback.Connector{}, feedback.ErrConnectorNotFound
}

func (repo *feedbackRepository) UpdateConnector(_ context.Context, c feedback.Connector, _ ...core.DBExecutor) (feedback.Connector, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.connectors[c.ID]; !ok {
		return feedback.Connector{}, feedback.ErrConnectorNotFound
	}
	repo.db.connectors[c.ID] = &c
	return c, nil
}

func (repo *feedbackRepository) DeleteConnectorsByForm(_ context.Context, formID string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, c := range repo.db.connectors {
		if c.FormID == formID {
			delete(repo.db.connectors, id)
		}
	}
	return nil
}

func (repo *feedbackRepository) DeleteConnectorsByFormAndStudents(_ context.Context, formID string, studentIDs []string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	students := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		students[id] = struct{}{}
	}
	for id, c := range repo.db.connectors {
		if c.FormID != formID {
			continue
		}
		if _, ok := students[c.StudentID]; ok {
			delete(repo.db.connectors, id)
		}
	}
	return nil
}

func (repo *feedbackRepository) QueryStudentIDsByBatch(_ context.Context, batchID string, _ ...core.DBExecutor) ([]string, error) {
	repo.roster.RLock()
	defer repo.roster.RUnlock()

	var ids []string
	for id := range repo.roster.members[batchID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (repo *feedbackRepository) QueryConnectorData(_ context.Context, formID string, _ ...core.DBExecutor) ([]feedback.ConnectorData, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.users.RLock()
	defer repo.users.RUnlock()

	var data []feedback.ConnectorData
	for _, c := range repo.db.connectors {
		if c.FormID != formID {
			continue
		}
		d := feedback.ConnectorData{
			StudentID: c.StudentID,
			IsFilled:  c.IsFilled,
			Payload:   c.Payload,
		}
		if usr, ok := repo.users.table[c.StudentID]; ok {
			d.StudentName = usr.Name
			d.Email = usr.Email
		}
		data = append(data, d)
	}
	sort.Slice(data, func(i, j int) bool { return data[i].StudentName < data[j].StudentName })
	return data, nil
}

func (repo *feedbackRepository) QueryStudentDashboard(_ context.Context, studentID string, filled bool, _ ...core.DBExecutor) ([]feedback.DashboardItem, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.roster.RLock()
	defer repo.roster.RUnlock()
	repo.users.RLock()
	defer repo.users.RUnlock()

	var items []feedback.DashboardItem
	for _, c := range repo.db.connectors {
		if c.StudentID != studentID || c.IsFilled != filled {
			continue
		}
		f, ok := repo.db.forms[c.FormID]
		if !ok {
			continue
		}
		if !filled && !f.IsAlive {
			continue
		}
		item := feedback.DashboardItem{
			ConnectorID: c.ID,
			FormID:      f.ID,
			DueDate:     f.DueDate,
			IsTheory:    f.IsTheory,
			IsFilled:    c.IsFilled,
			Payload:     c.Payload,
		}
		if s, ok := repo.roster.subjects[f.SubjectID]; ok {
			item.SubjectName = s.Name
		}
		if t, ok := repo.users.table[f.TeacherID]; ok {
			item.TeacherName = t.Name
			if item.TeacherName == "" {
				item.TeacherName = t.Email
			}
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].DueDate.Before(items[j].DueDate) })
	return items, nil
}

func (repo *feedbackRepository) QueryReminderTargets(_ context.Context, formID string, _ ...core.DBExecutor) ([]feedback.ReminderTarget, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.users.RLock()
	defer repo.users.RUnlock()

	var targets []feedback.ReminderTarget
	for _, c := range repo.db.connectors {
		if c.FormID != formID || c.IsFilled {
			continue
		}
		if usr, ok := repo.users.table[c.StudentID]; ok {
			targets = append(targets, feedback.ReminderTarget{Name: usr.Name, Email: usr.Email})
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Email < targets[j].Email })
	return targets, nil
}
