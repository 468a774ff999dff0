package echoapi

import (
	"github.com/labstack/echo/v4"
)

// Envelope is the uniform response body for every endpoint.
type Envelope struct {
	StatusCode int         `json:"status_code"`
	StatusMsg  string      `json:"status_msg,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

func respond(ctx echo.Context, code int, msg string, data ...interface{}) error {
	env := Envelope{StatusCode: code, StatusMsg: msg}
	if len(data) > 0 {
		env.Data = data[0]
	}
	return ctx.JSON(code, env)
}
