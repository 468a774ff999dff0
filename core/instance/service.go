package instance

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/maoni/core"
)

var (
	// errors
	ErrNotFound       = errors.New("instance not found")
	ErrInstanceExists = errors.New("an instance with this name already exists")
	ErrNoSecretCode   = errors.New("no secret code has been generated")
	ErrBadSecretCode  = errors.New("invalid secret code")
)

type (
	Repository interface {
		CreateInstance(ctx context.Context, inst Instance, exec ...core.DBExecutor) (Instance, error)
		GetInstance(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Instance, error)
		QueryInstances(ctx context.Context, exec ...core.DBExecutor) ([]Instance, error)
		// ClearSelection resets the latest/selected flags on all instances.
		ClearSelection(ctx context.Context, exec ...core.DBExecutor) error

		GetSecretCode(ctx context.Context, exec ...core.DBExecutor) (string, error)
		SetSecretCode(ctx context.Context, code string, exec ...core.DBExecutor) error
	}

	Service interface {
		// Create adds a new instance and promotes it to be the selected one.
		Create(ctx context.Context, ni NewInstance) (Instance, error)
		Get(ctx context.Context, filter GetFilter) (Instance, error)
		Selected(ctx context.Context) (Instance, error)
		Query(ctx context.Context) ([]Instance, error)
		GenerateSecretCode(ctx context.Context) (string, error)
		CheckSecretCode(ctx context.Context, code string) error
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

func (svc *service) Create(ctx context.Context, ni NewInstance) (Instance, error) {
	if _, err := svc.repo.GetInstance(ctx, GetFilter{Name: ni.Name}); err == nil {
		return Instance{}, ErrInstanceExists
	} else if errors.Cause(err) != ErrNotFound {
		return Instance{}, err
	}

	tx, err := svc.db.BeginTx(ctx)
	if err != nil {
		return Instance{}, errors.Wrap(err, "beginning tx")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer tx.Rollback()

	if err = svc.repo.ClearSelection(ctx, tx); err != nil {
		return Instance{}, errors.Wrap(err, "clearing selection")
	}
	now := time.Now().UTC()
	inst, err := svc.repo.CreateInstance(ctx, Instance{
		Name:       ni.Name,
		IsLatest:   true,
		IsSelected: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, tx)
	if err != nil {
		return Instance{}, errors.Wrap(err, "creating instance")
	}

	if err = tx.Commit(); err != nil {
		return Instance{}, errors.Wrap(err, "committing tx")
	}
	return inst, nil
}

func (svc *service) Get(ctx context.Context, filter GetFilter) (Instance, error) {
	return svc.repo.GetInstance(ctx, filter)
}

func (svc *service) Selected(ctx context.Context) (Instance, error) {
	return svc.repo.GetInstance(ctx, GetFilter{Selected: true})
}

func (svc *service) Query(ctx context.Context) ([]Instance, error) {
	return svc.repo.QueryInstances(ctx)
}

func (svc *service) GenerateSecretCode(ctx context.Context) (string, error) {
	code, err := generateSecretCode()
	if err != nil {
		return "", errors.Wrap(err, "generating secret code")
	}
	if err = svc.repo.SetSecretCode(ctx, code); err != nil {
		return "", errors.Wrap(err, "storing secret code")
	}
	return code, nil
}

func (svc *service) CheckSecretCode(ctx context.Context, code string) error {
	stored, err := svc.repo.GetSecretCode(ctx)
	if err != nil {
		return err
	}
	if stored == "" || stored != code {
		return ErrBadSecretCode
	}
	return nil
}

const (
	secretCodeLen     = 8
	secretCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

func generateSecretCode() (string, error) {
	max := big.NewInt(int64(len(secretCodeCharset)))
	code := make([]byte, secretCodeLen)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = secretCodeCharset[n.Int64()]
	}
	return string(code), nil
}
