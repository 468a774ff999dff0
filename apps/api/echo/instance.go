package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maoni/core/instance"
)

type instanceApi struct {
	deps *ServerDeps
}

func registerInstanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *ServerDeps) {
	api := instanceApi{deps: deps}

	ag := g.Group("", jwt)

	tg := ag.Group("", teacherMiddleware)
	tg.GET("/getInstances", api.query)

	sg := ag.Group("", superuserMiddleware)
	sg.POST("/createNewInst", api.create)
	sg.GET("/generateSecretCode", api.generateSecretCode)
}

// Handlers

// create opens a new academic instance and promotes it; the previous one
// keeps its data but loses the latest/selected flags.
func (api *instanceApi) create(ctx echo.Context) error {
	var data instance.NewInstance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInstance")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	inst, err := api.deps.InstanceSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, "Instance created", inst)
}

func (api *instanceApi) query(ctx echo.Context) error {
	insts, err := api.deps.InstanceSvc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying instances")
	}
	return respond(ctx, http.StatusOK, "", insts)
}

func (api *instanceApi) generateSecretCode(ctx echo.Context) error {
	code, err := api.deps.InstanceSvc.GenerateSecretCode(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "generating secret code")
	}
	return respond(ctx, http.StatusOK, "Secret code generated", echo.Map{"secret_code": code})
}
