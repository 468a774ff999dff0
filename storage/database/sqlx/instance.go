package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/maoni/core"
	"github.com/trezcool/maoni/core/instance"
)

type instanceRepository struct {
	exec core.DBExecutor
}

var _ instance.Repository = (*instanceRepository)(nil) // interface compliance check

func NewInstanceRepository(exec core.DBExecutor) *instanceRepository {
	return &instanceRepository{exec: exec}
}

func (repo instanceRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

type instanceRow struct {
	ID         string    `db:"id"`
	Name       string    `db:"name"`
	IsLatest   bool      `db:"is_latest"`
	IsSelected bool      `db:"is_selected"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (repo instanceRepository) unpack(row instanceRow) instance.Instance {
	return instance.Instance{
		ID:         row.ID,
		Name:       row.Name,
		IsLatest:   row.IsLatest,
		IsSelected: row.IsSelected,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

const instanceColumns = `id, name, is_latest, is_selected, created_at, updated_at`

func (repo instanceRepository) CreateInstance(ctx context.Context, inst instance.Instance, exec ...core.DBExecutor) (instance.Instance, error) {
	inst.ID = uuid.New().String()
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO instance (`+instanceColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		inst.ID, inst.Name, inst.IsLatest, inst.IsSelected, inst.CreatedAt.UTC(), inst.UpdatedAt.UTC())
	if err != nil {
		return instance.Instance{}, errors.Wrap(err, "inserting instance")
	}
	return inst, nil
}

func (repo instanceRepository) GetInstance(ctx context.Context, filter instance.GetFilter, exec ...core.DBExecutor) (instance.Instance, error) {
	var (
		query string
		args  []interface{}
	)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return instance.Instance{}, instance.ErrNotFound
		}
		query, args = `SELECT `+instanceColumns+` FROM instance WHERE id = $1`, []interface{}{filter.ID}
	case filter.Name != "":
		query, args = `SELECT `+instanceColumns+` FROM instance WHERE name = $1`, []interface{}{filter.Name}
	case filter.Selected:
		query = `SELECT ` + instanceColumns + ` FROM instance WHERE is_selected LIMIT 1`
	default:
		return instance.Instance{}, instance.ErrNotFound
	}

	var row instanceRow
	if err := repo.getExec(exec).GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return instance.Instance{}, instance.ErrNotFound
		}
		return instance.Instance{}, errors.Wrap(err, "finding instance")
	}
	return repo.unpack(row), nil
}

func (repo instanceRepository) QueryInstances(ctx context.Context, exec ...core.DBExecutor) ([]instance.Instance, error) {
	var rows []instanceRow
	err := repo.getExec(exec).SelectContext(ctx, &rows, `SELECT `+instanceColumns+` FROM instance ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "querying instances")
	}
	instances := make([]instance.Instance, 0, len(rows))
	for _, row := range rows {
		instances = append(instances, repo.unpack(row))
	}
	return instances, nil
}

func (repo instanceRepository) ClearSelection(ctx context.Context, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx, `
		UPDATE instance SET is_latest = FALSE, is_selected = FALSE WHERE is_latest OR is_selected`)
	return errors.Wrap(err, "clearing instance selection")
}

func (repo instanceRepository) GetSecretCode(ctx context.Context, exec ...core.DBExecutor) (string, error) {
	var code null.String
	err := repo.getExec(exec).GetContext(ctx, &code, `SELECT secret_code FROM meta_info WHERE id = 1`)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", instance.ErrNoSecretCode
		}
		return "", errors.Wrap(err, "finding secret code")
	}
	return code.String, nil
}

func (repo instanceRepository) SetSecretCode(ctx context.Context, code string, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO meta_info (id, secret_code) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET secret_code = EXCLUDED.secret_code`, code)
	return errors.Wrap(err, "storing secret code")
}
