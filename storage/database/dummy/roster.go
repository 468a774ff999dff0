package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/maoni/core"
	"github.com/trezcool/maoni/core/roster"
)

type rosterRepository struct {
	db    *rosterTable
	users *userTable
}

var _ roster.Repository = (*rosterRepository)(nil) // interface compliance check

func NewRosterRepository(db *DB) roster.Repository {
	return &rosterRepository{db: db.roster, users: db.user}
}

func (repo *rosterRepository) CreateBatch(_ context.Context, b roster.Batch, _ ...core.DBExecutor) (roster.Batch, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	b.ID = uuid.New().String()
	repo.db.batches[b.ID] = &b
	repo.db.members[b.ID] = make(map[string]struct{})
	return b, nil
}

func (repo *rosterRepository) GetBatch(_ context.Context, id string, _ ...core.DBExecutor) (roster.Batch, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if b, ok := repo.db.batches[id]; ok {
		return *b, nil
	}
	return roster.Batch{}, roster.ErrBatchNotFound
}

func (repo *rosterRepository) QueryBatches(_ context.Context, filter *roster.BatchFilter, _ ...core.DBExecutor) ([]roster.Batch, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	batches := make([]roster.Batch, 0, len(repo.db.batches))
	for _, b := range repo.db.batches {
		if filter != nil {
			if filter.Year != nil && b.Year != *filter.Year {
				continue
			}
			if filter.InstanceID != "" && b.InstanceID != filter.InstanceID {
				continue
			}
		}
		batches = append(batches, *b)
	}
	sort.Slice(batches, func(i, j int) bool {
		if batches[i].Year != batches[j].Year {
			return batches[i].Year < batches[j].Year
		}
		return batches[i].Name < batches[j].Name
	})
	return batches, nil
}

func (repo *rosterRepository) UpdateBatch(_ context.Context, b roster.Batch, _ ...core.DBExecutor) (roster.Batch, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.batches[b.ID]; !ok {
		return roster.Batch{}, roster.ErrBatchNotFound
	}
	repo.db.batches[b.ID] = &b
	return b, nil
}

func (repo *rosterRepository) DeleteBatch(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.batches, id)
	delete(repo.db.members, id)
	return nil
}

func (repo *rosterRepository) ResolveStudentIDs(_ context.Context, emails []string, _ ...core.DBExecutor) ([]string, error) {
	repo.users.RLock()
	defer repo.users.RUnlock()

	var ids []string
	for _, email := range emails {
		for _, usr := range repo.users.table {
			if !usr.IsStaff && usr.Email == email {
				ids = append(ids, usr.ID)
				break
			}
		}
	}
	return ids, nil
}

func (repo *rosterRepository) ReplaceBatchStudents(_ context.Context, batchID string, studentIDs []string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	members := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		members[id] = struct{}{}
	}
	repo.db.members[batchID] = members
	return nil
}

func (repo *rosterRepository) QueryBatchStudents(_ context.Context, batchID string, _ ...core.DBExecutor) ([]roster.Member, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.users.RLock()
	defer repo.users.RUnlock()

	var members []roster.Member
	for id := range repo.db.members[batchID] {
		if usr, ok := repo.users.table[id]; ok {
			members = append(members, roster.Member{ID: usr.ID, Name: usr.Name, Email: usr.Email})
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
	return members, nil
}

func (repo *rosterRepository) CreateSubject(_ context.Context, s roster.Subject, _ ...core.DBExecutor) (roster.Subject, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	s.ID = uuid.New().String()
	repo.db.subjects[s.ID] = &s
	return s, nil
}

func (repo *rosterRepository) GetSubject(_ context.Context, filter roster.SubjectFilter, _ ...core.DBExecutor) (roster.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	switch {
	case filter.ID != "":
		if s, ok := repo.db.subjects[filter.ID]; ok {
			return *s, nil
		}
	case filter.Name != "":
		for _, s := range repo.db.subjects {
			if s.Name == filter.Name && (filter.InstanceID == "" || s.InstanceID == filter.InstanceID) {
				return *s, nil
			}
		}
	}
	return roster.Subject{}, roster.ErrSubjectNotFound
}

func (repo *rosterRepository) QuerySubjects(_ context.Context, instanceID string, _ ...core.DBExecutor) ([]roster.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subjects := make([]roster.Subject, 0, len(repo.db.subjects))
	for _, s := range repo.db.subjects {
		if instanceID != "" && s.InstanceID != instanceID {
			continue
		}
		subjects = append(subjects, *s)
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Name < subjects[j].Name })
	return subjects, nil
}

func (repo *rosterRepository) DeleteSubject(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.subjects, id)
	return nil
}

func (repo *rosterRepository) CreateSection(_ context.Context, sec roster.Section, _ ...core.DBExecutor) (roster.Section, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sec.ID = uuid.New().String()
	repo.db.sections[sec.ID] = &sec
	return sec, nil
}

func (repo *rosterRepository) QuerySections(_ context.Context, filter roster.SectionFilter, _ ...core.DBExecutor) ([]roster.SectionDetail, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.users.RLock()
	defer repo.users.RUnlock()

	var details []roster.SectionDetail
	for _, sec := range repo.db.sections {
		if filter.SubjectID != "" && sec.SubjectID != filter.SubjectID {
			continue
		}
		if filter.BatchID != "" && sec.BatchID != filter.BatchID {
			continue
		}
		if filter.Kind != "" && sec.Kind != filter.Kind {
			continue
		}
		detail := roster.SectionDetail{Section: *sec}
		if b, ok := repo.db.batches[sec.BatchID]; ok {
			detail.BatchName = b.Name
		}
		for _, id := range sec.TeacherIDs {
			if usr, ok := repo.users.table[id]; ok {
				name := usr.Name
				if name == "" {
					name = usr.Email
				}
				detail.TeacherNames = append(detail.TeacherNames, name)
			}
		}
		details = append(details, detail)
	}
	sort.Slice(details, func(i, j int) bool { return details[i].CreatedAt.Before(details[j].CreatedAt) })
	return details, nil
}

func (repo *rosterRepository) DeleteSectionsBySubject(_ context.Context, subjectID string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, sec := range repo.db.sections {
		if sec.SubjectID == subjectID {
			delete(repo.db.sections, id)
		}
	}
	return nil
}
