package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maoni/core/user"
)

type userApi struct {
	deps *ServerDeps
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *ServerDeps) {
	api := userApi{deps: deps}

	// un-authed endpoints
	// TODO: rate limit `/sendOtp` & `/resetPasswordMail`
	g.POST("/login", api.login)
	g.POST("/createTeacher", api.createTeacher)
	g.POST("/sendOtp", api.sendOTP)
	g.POST("/verifyOtp", api.verifyOTP)
	g.POST("/resetPasswordMail", api.resetPasswordMail)
	g.GET("/getPass/:uid/:token", api.checkPasswordResetToken)
	g.POST("/resetPassword", api.resetPassword)

	// authed endpoints
	ag := g.Group("", jwt)
	ag.GET("/token/refresh", api.refreshToken)
	ag.GET("/getProfile", api.getProfile)
	ag.POST("/saveProfile", api.saveProfile)

	tg := ag.Group("", teacherMiddleware)
	tg.GET("/getAllTeacherMails", api.teacherEmails)
	tg.GET("/getTUsers/:username", api.searchTeachers)
	tg.GET("/getuserslist", api.query)

	sg := ag.Group("", superuserMiddleware)
	sg.POST("/tSettings", api.updatePermissions)
}

// Handlers

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	usr, err := api.deps.UserSvc.GetByEmail(rctx, data.Email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errLoginFailed
		}
		return errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(data.Password); err != nil {
		return errLoginFailed
	}
	if !usr.IsVerified {
		return respond(ctx, http.StatusForbidden, "Please complete authentication", echo.Map{"email": usr.Email})
	}

	if usr, err = api.deps.UserSvc.SetLastLogin(rctx, usr); err != nil {
		return errors.Wrap(err, "setting last login")
	}
	token, err := GenerateToken(GetUserClaims(usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return respond(ctx, http.StatusOK, "Login successful", loginPayload(token, usr))
}

// createTeacher registers a teacher account after checking the secret code
// issued by an admin. An OTP is mailed right away for verification.
func (api *userApi) createTeacher(ctx echo.Context) error {
	var data user.NewTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeacher")
	}

	rctx := ctx.Request().Context()
	if err := api.deps.InstanceSvc.CheckSecretCode(rctx, data.SecretCode); err != nil {
		return err
	}
	if err := data.Validate(api.deps.Validate, api.deps.UserSvc); err != nil {
		return err
	}

	usr, err := api.deps.UserSvc.CreateTeacher(rctx, data)
	if err != nil {
		return errors.Wrap(err, "creating teacher")
	}
	if err = api.deps.UserSvc.SendOTP(rctx, usr.Email); err != nil {
		return errors.Wrap(err, "sending OTP")
	}
	return respond(ctx, http.StatusCreated, "Account created, check your mailbox for the OTP", echo.Map{"email": usr.Email})
}

func (api *userApi) sendOTP(ctx echo.Context) error {
	var data EmailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EmailRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	if err := api.deps.UserSvc.SendOTP(ctx.Request().Context(), data.Email); err != nil {
		return errors.Wrap(err, "sending OTP")
	}
	return respond(ctx, http.StatusOK, "OTP sent")
}

func (api *userApi) verifyOTP(ctx echo.Context) error {
	var data VerifyOTPRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerifyOTPRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	usr, err := api.deps.UserSvc.VerifyOTP(rctx, data.Email, data.OTP)
	if err != nil {
		return err
	}

	if usr, err = api.deps.UserSvc.SetLastLogin(rctx, usr); err != nil {
		return errors.Wrap(err, "setting last login")
	}
	token, err := GenerateToken(GetUserClaims(usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return respond(ctx, http.StatusOK, "Verification successful", loginPayload(token, usr))
}

func (api *userApi) resetPasswordMail(ctx echo.Context) error {
	var data EmailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EmailRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	if err := api.deps.UserSvc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "requesting password reset"))
	}
	return respond(ctx, http.StatusOK,
		"If the email address supplied is associated with an active account on this system, "+
			"an email will arrive in your inbox shortly with instructions to reset your password.")
}

func (api *userApi) checkPasswordResetToken(ctx echo.Context) error {
	uid := ctx.Param("uid")
	token := ctx.Param("token")
	if err := api.deps.UserSvc.VerifyPasswordResetToken(ctx.Request().Context(), uid, token); err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Token is valid")
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	if err := api.deps.UserSvc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return respond(ctx, http.StatusOK, "Password has been reset with the new password.")
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.deps.UserSvc)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Token refreshed", echo.Map{"token": token})
}

func (api *userApi) getProfile(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "", usr)
}

func (api *userApi) saveProfile(ctx echo.Context) error {
	var data user.UpdateProfile
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProfile")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return err
	}
	if usr, err = api.deps.UserSvc.UpdateProfile(ctx.Request().Context(), usr, data); err != nil {
		return errors.Wrap(err, "updating profile")
	}
	return respond(ctx, http.StatusOK, "Profile saved", usr)
}

func (api *userApi) teacherEmails(ctx echo.Context) error {
	emails, err := api.deps.UserSvc.TeacherEmails(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying teacher emails")
	}
	return respond(ctx, http.StatusOK, "", emails)
}

func (api *userApi) searchTeachers(ctx echo.Context) error {
	isStaff := true
	filter := &user.QueryFilter{Search: ctx.Param("username"), IsStaff: &isStaff}
	filter.Clean()

	users, err := api.deps.UserSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying teachers")
	}
	return respond(ctx, http.StatusOK, "", users)
}

func (api *userApi) query(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return respond(ctx, http.StatusOK, "", []user.User{})
	}
	filter.Clean()

	users, err := api.deps.UserSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return respond(ctx, http.StatusOK, "", users)
}

func (api *userApi) updatePermissions(ctx echo.Context) error {
	var data user.TeacherPermissions
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TeacherPermissions")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	usr, err := api.deps.UserSvc.UpdatePermissions(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "updating permissions")
	}
	return respond(ctx, http.StatusOK, "Settings saved", usr)
}
