package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maoni/core/roster"
)

type rosterApi struct {
	deps *ServerDeps
}

func registerRosterAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *ServerDeps) {
	api := rosterApi{deps: deps}

	tg := g.Group("", jwt, teacherMiddleware)

	tg.GET("/getBatches", api.queryBatches)
	tg.GET("/getYrBatches/:year", api.queryBatchesByYear)
	tg.GET("/getYearBatches", api.batchesGroupedByYear)
	tg.GET("/getBatchStudents/:id", api.batchStudents)
	tg.POST("/bac", api.createBatch)
	tg.POST("/bacUpdate", api.updateBatch)
	tg.DELETE("/delBatch/:id", api.deleteBatch)

	tg.GET("/getallsubjects", api.querySubjects)
	tg.POST("/addTheorySubject", api.addTheorySection)
	tg.POST("/addPractical", api.addPracticalSection)
	tg.DELETE("/deletesubject/:id", api.deleteSubject)
}

// Handlers

func (api *rosterApi) createBatch(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return err
	}
	if !(usr.CanCreateBatch || usr.IsSuperuser) {
		return errNotAuthorized
	}

	var data roster.NewBatch
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBatch")
	}
	if err = data.Validate(api.deps.Validate); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	inst, err := api.deps.InstanceSvc.Selected(rctx)
	if err != nil {
		return errors.Wrap(err, "getting selected instance")
	}

	batch, err := api.deps.RosterSvc.CreateBatch(rctx, inst.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating batch")
	}
	return respond(ctx, http.StatusCreated, "Batch created", batch)
}

func (api *rosterApi) queryBatches(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	inst, err := api.deps.InstanceSvc.Selected(rctx)
	if err != nil {
		return errors.Wrap(err, "getting selected instance")
	}

	batches, err := api.deps.RosterSvc.QueryBatches(rctx, &roster.BatchFilter{InstanceID: inst.ID})
	if err != nil {
		return errors.Wrap(err, "querying batches")
	}
	return respond(ctx, http.StatusOK, "", batches)
}

func (api *rosterApi) queryBatchesByYear(ctx echo.Context) error {
	year, err := strconv.Atoi(ctx.Param("year"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid year")
	}

	rctx := ctx.Request().Context()
	inst, err := api.deps.InstanceSvc.Selected(rctx)
	if err != nil {
		return errors.Wrap(err, "getting selected instance")
	}

	batches, err := api.deps.RosterSvc.QueryBatches(rctx, &roster.BatchFilter{Year: &year, InstanceID: inst.ID})
	if err != nil {
		return errors.Wrap(err, "querying batches")
	}
	return respond(ctx, http.StatusOK, "", batches)
}

// batchesGroupedByYear returns the selected instance's batches keyed by
// year of study, the shape the frontend dropdowns expect.
func (api *rosterApi) batchesGroupedByYear(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	inst, err := api.deps.InstanceSvc.Selected(rctx)
	if err != nil {
		return errors.Wrap(err, "getting selected instance")
	}

	batches, err := api.deps.RosterSvc.QueryBatches(rctx, &roster.BatchFilter{InstanceID: inst.ID})
	if err != nil {
		return errors.Wrap(err, "querying batches")
	}

	grouped := make(map[int][]roster.Batch)
	for _, b := range batches {
		grouped[b.Year] = append(grouped[b.Year], b)
	}
	return respond(ctx, http.StatusOK, "", grouped)
}

func (api *rosterApi) batchStudents(ctx echo.Context) error {
	members, err := api.deps.RosterSvc.BatchStudents(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "", members)
}

func (api *rosterApi) updateBatch(ctx echo.Context) error {
	var data roster.UpdateBatch
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateBatch")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	batch, err := api.deps.RosterSvc.UpdateBatch(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Batch saved", batch)
}

func (api *rosterApi) deleteBatch(ctx echo.Context) error {
	if err := api.deps.RosterSvc.DeleteBatch(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Batch deleted")
}

func (api *rosterApi) querySubjects(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	inst, err := api.deps.InstanceSvc.Selected(rctx)
	if err != nil {
		return errors.Wrap(err, "getting selected instance")
	}

	subjects, err := api.deps.RosterSvc.QuerySubjects(rctx, inst.ID)
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	return respond(ctx, http.StatusOK, "", subjects)
}

func (api *rosterApi) addTheorySection(ctx echo.Context) error {
	return api.addSection(ctx, roster.Theory)
}

func (api *rosterApi) addPracticalSection(ctx echo.Context) error {
	return api.addSection(ctx, roster.Practical)
}

func (api *rosterApi) addSection(ctx echo.Context, kind roster.SectionKind) error {
	usr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return err
	}
	if !(usr.CanCreateSubject || usr.IsSuperuser) {
		return errNotAuthorized
	}

	var data roster.NewSection
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSection")
	}
	data.Kind = kind
	if err = data.Validate(api.deps.Validate); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	inst, err := api.deps.InstanceSvc.Selected(rctx)
	if err != nil {
		return errors.Wrap(err, "getting selected instance")
	}

	section, err := api.deps.RosterSvc.AddSection(rctx, inst.ID, data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, "Subject saved", section)
}

func (api *rosterApi) deleteSubject(ctx echo.Context) error {
	if err := api.deps.RosterSvc.DeleteSubject(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Subject deleted")
}
