package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/maoni/core"
)

var (
	// errors
	ErrNotFound    = errors.New("user not found")
	ErrUserExists  = errors.New("a user with this email or username already exists")
	ErrNotVerified = errors.New("account not verified")
	ErrOTPNotFound = errors.New("otp not found")
	ErrOTPExpired  = errors.New("otp expired")
	ErrOTPInvalid  = errors.New("invalid otp")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Name, Username or Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)

		UpsertOTP(ctx context.Context, otp OTP, exec ...core.DBExecutor) (OTP, error)
		GetOTPByUserID(ctx context.Context, userID string, exec ...core.DBExecutor) (OTP, error)
	}

	Service interface {
		CheckUniqueness(uname, email string, exclUsers ...User) error
		CreateTeacher(ctx context.Context, nt NewTeacher) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByUsername(ctx context.Context, uname string) (User, error)
		Query(ctx context.Context, filter *QueryFilter) ([]User, error)
		TeacherEmails(ctx context.Context) ([]string, error)
		UpdateProfile(ctx context.Context, usr User, up UpdateProfile) (User, error)
		UpdatePermissions(ctx context.Context, tp TeacherPermissions) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		SendOTP(ctx context.Context, email string) error
		VerifyOTP(ctx context.Context, email, code string) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		VerifyPasswordResetToken(ctx context.Context, uid, token string) error
		ResetPassword(ctx context.Context, rp ResetUserPassword) error
	}

	service struct {
		db      core.DB
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		db:      db,
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

func (svc *service) CheckUniqueness(uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(context.Background(), uname, email, exclUsers); err != nil {
		if errors.Cause(err) == ErrUserExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

// CreateTeacher registers a new, unverified staff account. The secret-code
// gate is the caller's responsibility.
func (svc *service) CreateTeacher(ctx context.Context, nt NewTeacher) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:             nt.Name,
		Username:         nt.Email,
		Email:            nt.Email,
		IsStaff:          true,
		IsVerified:       false,
		CanCreateSubject: true,
		CanCreateForm:    true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := usr.SetPassword(nt.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Username: core.CleanString(uname, true /* lower */)})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter)
}

func (svc *service) TeacherEmails(ctx context.Context) ([]string, error) {
	isStaff := true
	teachers, err := svc.repo.QueryUsers(ctx, &QueryFilter{IsStaff: &isStaff})
	if err != nil {
		return nil, err
	}
	emails := make([]string, 0, len(teachers))
	for _, t := range teachers {
		emails = append(emails, t.Email)
	}
	return emails, nil
}

func (svc *service) UpdateProfile(ctx context.Context, usr User, up UpdateProfile) (User, error) {
	if up.Name != "" {
		usr.Name = up.Name
	}
	if up.Age != nil {
		usr.Age = up.Age
	}
	if up.Gender != "" {
		usr.Gender = up.Gender
	}
	if up.SapID != "" {
		usr.SapID = up.SapID
	}
	if up.Mobile != "" {
		usr.Mobile = up.Mobile
	}
	if up.Year != nil {
		usr.Year = up.Year
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) UpdatePermissions(ctx context.Context, tp TeacherPermissions) (User, error) {
	usr, err := svc.GetByID(ctx, tp.UserID)
	if err != nil {
		return User{}, err
	}
	if !usr.IsStaff {
		return User{}, ErrNotFound
	}
	if tp.CanCreateBatch != nil {
		usr.CanCreateBatch = *tp.CanCreateBatch
	}
	if tp.CanCreateSubject != nil {
		usr.CanCreateSubject = *tp.CanCreateSubject
	}
	if tp.CanCreateForm != nil {
		usr.CanCreateForm = *tp.CanCreateForm
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// SendOTP issues a fresh verification code for the user and mails it.
// Any previous code is overwritten.
func (svc *service) SendOTP(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	code, err := generateOTPCode()
	if err != nil {
		return errors.Wrap(err, "generating otp")
	}
	if _, err = svc.repo.UpsertOTP(ctx, OTP{
		UserID:      usr.ID,
		Code:        code,
		GeneratedAt: time.Now().UTC(),
	}); err != nil {
		return errors.Wrap(err, "storing otp")
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "OTP Verification",
		TemplateName: "otp",
		TemplateData: struct {
			Name          string
			Code          string
			ExpiryMinutes int
		}{usr.Name, code, int(svc.conf.OTPExpirationDelta.Minutes())},
	})
	return nil
}

// VerifyOTP validates the code for the user and, on success, marks the
// account verified.
func (svc *service) VerifyOTP(ctx context.Context, email, code string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}

	otp, err := svc.repo.GetOTPByUserID(ctx, usr.ID)
	if err != nil {
		return User{}, err
	}
	if time.Now().UTC().Sub(otp.GeneratedAt) > svc.conf.OTPExpirationDelta {
		return User{}, ErrOTPExpired
	}
	if otp.Code != code {
		return User{}, ErrOTPInvalid
	}

	usr.IsVerified = true
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	return svc.sendPasswordResetMail(usr)
}

func (svc *service) sendPasswordResetMail(usr User) error {
	token, err := MakeToken(usr)
	if err != nil {
		return errors.Wrap(err, "making reset token")
	}
	uid := EncodeUID(usr)

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Reset Password",
		TemplateName: "password_reset",
		TemplateData: struct {
			Name string
			URL  string
		}{usr.Name, fmt.Sprintf("%s/resetPassword/%s/%s", svc.conf.FrontendBaseURL, uid, token)},
	})
	return nil
}

func (svc *service) VerifyPasswordResetToken(ctx context.Context, uid, token string) error {
	usr, err := svc.getUserByUID(ctx, uid)
	if err != nil {
		return err
	}
	if err = verifyToken(usr, token); err != nil {
		return core.NewValidationError(err)
	}
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	usr, err := svc.getUserByUID(ctx, rp.UID)
	if err != nil {
		return err
	}
	if err = verifyToken(usr, rp.Token); err != nil {
		return core.NewValidationError(err)
	}
	if err = usr.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "updating user")
	}
	return nil
}

func (svc *service) getUserByUID(ctx context.Context, uid string) (User, error) {
	id, err := decodeUID(uid)
	if err != nil {
		return User{}, core.NewValidationError(errInvalidToken)
	}
	return svc.GetByID(ctx, id)
}
