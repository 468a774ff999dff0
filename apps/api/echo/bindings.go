package echoapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/maoni/core"
	"github.com/trezcool/maoni/core/user"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (er *EmailRequest) Validate(validate *validator.Validate) error {
	er.Email = core.CleanString(er.Email, true /* lower */)
	return validate.Struct(er)
}

type VerifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,otpcode"`
}

func (vr *VerifyOTPRequest) Validate(validate *validator.Validate) error {
	vr.Email = core.CleanString(vr.Email, true /* lower */)
	vr.OTP = core.CleanString(vr.OTP)
	return validate.Struct(vr)
}

// loginPayload is what the frontend keeps after a successful login.
func loginPayload(token string, usr user.User) echo.Map {
	return echo.Map{
		"token":                 token,
		"name":                  usr.Name,
		"email":                 usr.Email,
		"is_teacher":            usr.IsStaff,
		"is_superuser":          usr.IsSuperuser,
		"canCreateBatch":        usr.CanCreateBatch,
		"canCreateSubject":      usr.CanCreateSubject,
		"canCreateFeedbackForm": usr.CanCreateForm,
	}
}
