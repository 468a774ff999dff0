package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maoni/core/feedback"
)

type feedbackApi struct {
	deps *ServerDeps
}

func registerFeedbackAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *ServerDeps) {
	api := feedbackApi{deps: deps}

	ag := g.Group("", jwt)

	// student endpoints
	ag.GET("/getSDashData", api.pendingDashboard)
	ag.GET("/getSDashDataFilled", api.historyDashboard)
	ag.GET("/getSDashDataForm/:id", api.studentForm)
	ag.POST("/saveFeedbackFormResult", api.submitResult)

	tg := ag.Group("", teacherMiddleware)
	tg.POST("/createFeedbackForm", api.createForm)
	tg.POST("/updateFeedbackform", api.updateForm)
	tg.DELETE("/deleteFeedbackform/:id", api.deleteForm)
	tg.GET("/getFeedbackForm", api.teacherForms)
	tg.GET("/getFeedbackData/:id", api.formResponses)
	tg.POST("/sendReminder/:id", api.sendReminder)
}

// Handlers

func (api *feedbackApi) createForm(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return err
	}
	if !(usr.CanCreateForm || usr.IsSuperuser) {
		return errNotAuthorized
	}

	var data feedback.NewForm
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewForm")
	}
	if err = data.Validate(api.deps.Validate); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	inst, err := api.deps.InstanceSvc.Selected(rctx)
	if err != nil {
		return errors.Wrap(err, "getting selected instance")
	}

	form, err := api.deps.FeedbackSvc.CreateForm(rctx, usr.ID, inst.ID, data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, "Feedback form created", form)
}

func (api *feedbackApi) updateForm(ctx echo.Context) error {
	var data feedback.UpdateForm
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateForm")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	form, err := api.deps.FeedbackSvc.UpdateForm(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Feedback form saved", form)
}

func (api *feedbackApi) deleteForm(ctx echo.Context) error {
	if err := api.deps.FeedbackSvc.DeleteForm(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Feedback form deleted")
}

func (api *feedbackApi) teacherForms(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	forms, err := api.deps.FeedbackSvc.FormsForTeacher(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying teacher forms")
	}
	return respond(ctx, http.StatusOK, "", forms)
}

func (api *feedbackApi) formResponses(ctx echo.Context) error {
	data, err := api.deps.FeedbackSvc.FormResponses(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "", data)
}

func (api *feedbackApi) sendReminder(ctx echo.Context) error {
	targets, err := api.deps.FeedbackSvc.Remind(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return respond(ctx, http.StatusOK, "No pending responses, nothing to remind")
	}
	return respond(ctx, http.StatusOK, "Reminder sent", targets)
}

func (api *feedbackApi) pendingDashboard(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	items, err := api.deps.FeedbackSvc.PendingForStudent(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying pending dashboard")
	}
	return respond(ctx, http.StatusOK, "", items)
}

func (api *feedbackApi) historyDashboard(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	items, err := api.deps.FeedbackSvc.HistoryForStudent(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying filled dashboard")
	}
	return respond(ctx, http.StatusOK, "", items)
}

// studentForm returns a form only if feedback was requested from this user.
func (api *feedbackApi) studentForm(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	form, err := api.deps.FeedbackSvc.FormForStudent(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "", form)
}

func (api *feedbackApi) submitResult(ctx echo.Context) error {
	var data feedback.SubmitResult
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitResult")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	conn, err := api.deps.FeedbackSvc.SaveResult(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Feedback submitted", conn)
}
