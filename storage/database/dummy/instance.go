package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/maoni/core"
	"github.com/trezcool/maoni/core/instance"
)

type instanceRepository struct {
	db *instanceTable
}

var _ instance.Repository = (*instanceRepository)(nil) // interface compliance check

func NewInstanceRepository(db *DB) instance.Repository {
	return &instanceRepository{db: db.instance}
}

func (repo *instanceRepository) CreateInstance(_ context.Context, inst instance.Instance, _ ...core.DBExecutor) (instance.Instance, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	inst.ID = uuid.New().String()
	repo.db.table[inst.ID] = &inst
	return inst, nil
}

func (repo *instanceRepository) GetInstance(_ context.Context, filter instance.GetFilter, _ ...core.DBExecutor) (instance.Instance, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	switch {
	case filter.ID != "":
		if inst, ok := repo.db.table[filter.ID]; ok {
			return *inst, nil
		}
	case filter.Name != "":
		for _, inst := range repo.db.table {
			if inst.Name == filter.Name {
				return *inst, nil
			}
		}
	case filter.Selected:
		for _, inst := range repo.db.table {
			if inst.IsSelected {
				return *inst, nil
			}
		}
	}
	return instance.Instance{}, instance.ErrNotFound
}

func (repo *instanceRepository) QueryInstances(_ context.Context, _ ...core.DBExecutor) ([]instance.Instance, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	instances := make([]instance.Instance, 0, len(repo.db.table))
	for _, inst := range repo.db.table {
		instances = append(instances, *inst)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].CreatedAt.After(instances[j].CreatedAt) })
	return instances, nil
}

func (repo *instanceRepository) ClearSelection(_ context.Context, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, inst := range repo.db.table {
		inst.IsLatest = false
		inst.IsSelected = false
	}
	return nil
}

func (repo *instanceRepository) GetSecretCode(_ context.Context, _ ...core.DBExecutor) (string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if repo.db.secretCode == "" {
		return "", instance.ErrNoSecretCode
	}
	return repo.db.secretCode, nil
}

func (repo *instanceRepository) SetSecretCode(_ context.Context, code string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.secretCode = code
	return nil
}
