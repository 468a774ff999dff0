package echoapi

import (
	"github.com/labstack/echo/v4"
)

// teacherMiddleware rejects requests from accounts without staff rights.
func teacherMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		if !claims.IsTeacher && !claims.IsSuperuser {
			return errNotAuthorized
		}
		return next(ctx)
	}
}

// superuserMiddleware rejects requests from accounts without admin rights.
func superuserMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		if !claims.IsSuperuser {
			return errNotAuthorized
		}
		return next(ctx)
	}
}
