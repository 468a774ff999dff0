package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maoni/core"
	"github.com/trezcool/maoni/core/feedback"
	"github.com/trezcool/maoni/core/instance"
	"github.com/trezcool/maoni/core/roster"
	"github.com/trezcool/maoni/core/user"
)

var (
	errAuthHeader     = echo.NewHTTPError(http.StatusForbidden, "Access denied, Authentication header not found or invalid token")
	errNotAuthorized  = echo.NewHTTPError(http.StatusBadRequest, "User is not authorized to perform this action")
	errLoginFailed    = echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	errRefreshExpired = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
)

// statusForErr maps the domain sentinel errors to HTTP statuses. Anything
// not listed here is a server error.
func statusForErr(err error) (int, bool) {
	switch err {
	case user.ErrNotFound, instance.ErrNotFound, roster.ErrBatchNotFound, roster.ErrSubjectNotFound,
		feedback.ErrFormNotFound, feedback.ErrConnectorNotFound, instance.ErrNoSecretCode:
		return http.StatusNotFound, true
	case user.ErrOTPNotFound, user.ErrOTPExpired, user.ErrOTPInvalid, instance.ErrBadSecretCode:
		return http.StatusBadRequest, true
	case user.ErrUserExists:
		return http.StatusConflict, true
	case instance.ErrInstanceExists:
		return http.StatusConflict, true
	case user.ErrNotVerified:
		return http.StatusForbidden, true
	}
	return 0, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler rendering the
// response envelope. signalShutdown is called whenever a core.shutdown error
// is caught.
func newAppHTTPErrorHandler(deps *ServerDeps, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var (
			code int
			msg  string
			data interface{}
		)

		cause := errors.Cause(err)
		if status, ok := statusForErr(cause); ok {
			code = status
			msg = cause.Error()
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				if m, ok := origErr.Message.(string); ok {
					msg = m
				} else {
					msg = http.StatusText(code)
				}
			case validator.ValidationErrors:
				fldErrs := make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					fldErrs[vErr.Field()] = vErr.Translate(deps.Translator)
				}
				code = http.StatusBadRequest
				msg = "Invalid input"
				data = fldErrs
			case *core.ValidationError:
				code = http.StatusBadRequest
				msg = origErr.Error()
				if flds := origErr.FieldMap(); flds != nil {
					data = flds
				}
			default:
				// internal detail stays out of the response; log it with
				// the acting user instead
				code = http.StatusInternalServerError
				msg = http.StatusText(code)

				var usr user.User
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr.ID = claims.Subject
					usr.Username = claims.Username
					usr.Email = claims.Email
				}
				deps.Logger.Error(msg, errors.Wrap(err, msg), usr)

				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		// Send response
		if !ctx.Response().Committed {
			var sendErr error
			if ctx.Request().Method == http.MethodHead {
				sendErr = ctx.NoContent(code)
			} else {
				sendErr = ctx.JSON(code, Envelope{StatusCode: code, StatusMsg: msg, Data: data})
			}
			if sendErr != nil {
				ctx.Echo().Logger.Error(sendErr)
			}
		}
	}
}
