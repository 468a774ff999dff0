package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/maoni/core"
)

// User is the single identity model of the portal: credentials, portal
// capabilities and the student/teacher profile in one place.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash []byte `json:"-"`

	IsStaff     bool `json:"is_staff"`
	IsSuperuser bool `json:"is_superuser"`
	IsVerified  bool `json:"is_verified"`

	// teacher capabilities; toggled by a superuser
	CanCreateBatch   bool `json:"canCreateBatch"`
	CanCreateSubject bool `json:"canCreateSubject"`
	CanCreateForm    bool `json:"canCreateFeedbackForm"`

	// profile
	Age    *int   `json:"age"`
	Gender string `json:"gender,omitempty"`
	SapID  string `json:"sapId,omitempty"`
	Mobile string `json:"mobile,omitempty"`
	Year   *int   `json:"year"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
	LastLogin time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// OTP is the one-time login code mailed to a user during verification.
// At most one exists per user; re-sending overwrites it.
type OTP struct {
	ID          string
	UserID      string
	Code        string
	GeneratedAt time.Time // UTC
}

// NewTeacher contains information needed to register a teacher account.
// The secret-code gate is checked by the caller before this is applied.
type NewTeacher struct {
	SecretCode      string `json:"secret_code" validate:"required"`
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nt *NewTeacher) Validate(validate *validator.Validate, svc Service) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Email = core.CleanString(nt.Email, true /* lower */)

	if err := validate.Struct(nt); err != nil {
		return err
	}
	return svc.CheckUniqueness(nt.Email, nt.Email)
}

// UpdateProfile defines what a user may change on their own profile.
type UpdateProfile struct {
	Name   string `json:"name"`
	Age    *int   `json:"age"`
	Gender string `json:"gender"`
	SapID  string `json:"sapId"`
	Mobile string `json:"mobile"`
	Year   *int   `json:"year"`
}

func (up *UpdateProfile) Validate(validate *validator.Validate) error {
	up.Name = core.CleanString(up.Name)
	up.Gender = core.CleanString(up.Gender, true /* lower */)
	up.SapID = core.CleanString(up.SapID)
	up.Mobile = core.CleanString(up.Mobile)
	return validate.Struct(up)
}

// TeacherPermissions toggles a teacher's capabilities. Nil fields are left
// untouched.
type TeacherPermissions struct {
	UserID           string `json:"user_id" validate:"required"`
	CanCreateBatch   *bool  `json:"canCreateBatch"`
	CanCreateSubject *bool  `json:"canCreateSubject"`
	CanCreateForm    *bool  `json:"canCreateFeedbackForm"`
}

func (tp TeacherPermissions) Validate(validate *validator.Validate) error { return validate.Struct(tp) }

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search  string `query:"search"`
	IsStaff *bool  `query:"is_staff"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.IsStaff == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter finds a single user; fields are tried in order.
type GetFilter struct {
	ID       string
	Username string
	Email    string
}
