package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/maoni/core"
	"github.com/trezcool/maoni/core/user"
)

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

func (repo userRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

type userRow struct {
	ID               string      `db:"id"`
	Name             null.String `db:"name"`
	Username         string      `db:"username"`
	Email            string      `db:"email"`
	PasswordHash     []byte      `db:"password_hash"`
	IsStaff          bool        `db:"is_staff"`
	IsSuperuser      bool        `db:"is_superuser"`
	IsVerified       bool        `db:"is_verified"`
	CanCreateBatch   bool        `db:"can_create_batch"`
	CanCreateSubject bool        `db:"can_create_subject"`
	CanCreateForm    bool        `db:"can_create_form"`
	Age              null.Int    `db:"age"`
	Gender           null.String `db:"gender"`
	SapID            null.String `db:"sap_id"`
	Mobile           null.String `db:"mobile"`
	Year             null.Int    `db:"year"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
	LastLogin        null.Time   `db:"last_login"`
}

func (repo userRepository) pack(usr user.User) userRow {
	row := userRow{
		ID:               usr.ID,
		Name:             null.NewString(usr.Name, usr.Name != ""),
		Username:         usr.Username,
		Email:            usr.Email,
		PasswordHash:     usr.PasswordHash,
		IsStaff:          usr.IsStaff,
		IsSuperuser:      usr.IsSuperuser,
		IsVerified:       usr.IsVerified,
		CanCreateBatch:   usr.CanCreateBatch,
		CanCreateSubject: usr.CanCreateSubject,
		CanCreateForm:    usr.CanCreateForm,
		Gender:           null.NewString(usr.Gender, usr.Gender != ""),
		SapID:            null.NewString(usr.SapID, usr.SapID != ""),
		Mobile:           null.NewString(usr.Mobile, usr.Mobile != ""),
		CreatedAt:        usr.CreatedAt.UTC(),
		UpdatedAt:        usr.UpdatedAt.UTC(),
		LastLogin:        null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
	if usr.Age != nil {
		row.Age = null.IntFrom(*usr.Age)
	}
	if usr.Year != nil {
		row.Year = null.IntFrom(*usr.Year)
	}
	return row
}

func (repo userRepository) unpack(row userRow) user.User {
	usr := user.User{
		ID:               row.ID,
		Name:             row.Name.String,
		Username:         row.Username,
		Email:            row.Email,
		PasswordHash:     row.PasswordHash,
		IsStaff:          row.IsStaff,
		IsSuperuser:      row.IsSuperuser,
		IsVerified:       row.IsVerified,
		CanCreateBatch:   row.CanCreateBatch,
		CanCreateSubject: row.CanCreateSubject,
		CanCreateForm:    row.CanCreateForm,
		Gender:           row.Gender.String,
		SapID:            row.SapID.String,
		Mobile:           row.Mobile.String,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
		LastLogin:        row.LastLogin.Time,
	}
	if row.Age.Valid {
		age := row.Age.Int
		usr.Age = &age
	}
	if row.Year.Valid {
		year := row.Year.Int
		usr.Year = &year
	}
	return usr
}

func (repo userRepository) unpackSlice(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.unpack(row))
	}
	return users
}

const userColumns = `id, name, username, email, password_hash, is_staff, is_superuser, is_verified,
can_create_batch, can_create_subject, can_create_form, age, gender, sap_id, mobile, year,
created_at, updated_at, last_login`

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	query := `SELECT COUNT(*) FROM "user" WHERE (username = $1 OR email = $2)`
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		query += ` AND NOT (id = ANY($3))`
		args = append(args, pqStringArray(ids))
	}

	var count int
	if err := repo.getExec(exec).GetContext(ctx, &count, query, args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	if count > 0 {
		return user.ErrUserExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	row := repo.pack(usr)
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO "user" (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		row.ID, row.Name, row.Username, row.Email, row.PasswordHash, row.IsStaff, row.IsSuperuser,
		row.IsVerified, row.CanCreateBatch, row.CanCreateSubject, row.CanCreateForm, row.Age,
		row.Gender, row.SapID, row.Mobile, row.Year, row.CreatedAt, row.UpdatedAt, row.LastLogin)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var (
		query string
		arg   string
	)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		query, arg = `SELECT `+userColumns+` FROM "user" WHERE id = $1`, filter.ID
	case filter.Username != "":
		query, arg = `SELECT `+userColumns+` FROM "user" WHERE username = $1`, filter.Username
	case filter.Email != "":
		query, arg = `SELECT `+userColumns+` FROM "user" WHERE email = $1`, filter.Email
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := repo.getExec(exec).GetContext(ctx, &row, query, arg); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user")
	}
	return repo.unpack(row), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, exec ...core.DBExecutor) ([]user.User, error) {
	query := `SELECT ` + userColumns + ` FROM "user"`
	var (
		where []string
		args  []interface{}
	)
	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			where = append(where, `(name ILIKE $1 OR username ILIKE $1 OR email ILIKE $1)`)
			args = append(args, val)
		}
		if filter.IsStaff != nil {
			where = append(where, fmt.Sprintf(`is_staff = $%d`, len(args)+1))
			args = append(args, *filter.IsStaff)
		}
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY created_at`

	var rows []userRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.unpackSlice(rows), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	row := repo.pack(usr)
	res, err := repo.getExec(exec).ExecContext(ctx, `
		UPDATE "user" SET name = $2, username = $3, email = $4, password_hash = $5, is_staff = $6,
			is_superuser = $7, is_verified = $8, can_create_batch = $9, can_create_subject = $10,
			can_create_form = $11, age = $12, gender = $13, sap_id = $14, mobile = $15, year = $16,
			updated_at = $17, last_login = $18
		WHERE id = $1`,
		row.ID, row.Name, row.Username, row.Email, row.PasswordHash, row.IsStaff, row.IsSuperuser,
		row.IsVerified, row.CanCreateBatch, row.CanCreateSubject, row.CanCreateForm, row.Age,
		row.Gender, row.SapID, row.Mobile, row.Year, row.UpdatedAt, row.LastLogin)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	existing, err := repo.GetUser(ctx, user.GetFilter{Username: usr.Username}, exec...)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return user.User{}, err
		}
		return repo.CreateUser(ctx, usr, exec...)
	}
	usr.ID = existing.ID
	usr.CreatedAt = existing.CreatedAt
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	res, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM "user" WHERE id = ANY($1)`, pqStringArray(ids))
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "deleting users")
}

type otpRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	Code        string    `db:"code"`
	GeneratedAt time.Time `db:"generated_at"`
}

func (repo userRepository) UpsertOTP(ctx context.Context, otp user.OTP, exec ...core.DBExecutor) (user.OTP, error) {
	if otp.ID == "" {
		otp.ID = uuid.New().String()
	}
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO otp (id, user_id, code, generated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET code = EXCLUDED.code, generated_at = EXCLUDED.generated_at`,
		otp.ID, otp.UserID, otp.Code, otp.GeneratedAt.UTC())
	if err != nil {
		return user.OTP{}, errors.Wrap(err, "upserting otp")
	}
	return otp, nil
}

func (repo userRepository) GetOTPByUserID(ctx context.Context, userID string, exec ...core.DBExecutor) (user.OTP, error) {
	var row otpRow
	err := repo.getExec(exec).GetContext(ctx, &row, `SELECT id, user_id, code, generated_at FROM otp WHERE user_id = $1`, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return user.OTP{}, user.ErrOTPNotFound
		}
		return user.OTP{}, errors.Wrap(err, "finding otp")
	}
	return user.OTP{ID: row.ID, UserID: row.UserID, Code: row.Code, GeneratedAt: row.GeneratedAt}, nil
}
