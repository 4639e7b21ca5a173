package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/qlass/backend/core/admission"
)

type admissionApi struct {
	sess *admission.Session
}

func registerAdmissionAPI(g *echo.Group, sess *admission.Session) {
	api := admissionApi{sess: sess}

	ag := g.Group("/admissions")
	ag.POST("", api.submit)
	ag.GET("", api.history)
	ag.DELETE("", api.reset)
	ag.GET("/stats", api.stats)
	ag.GET("/enrolled", api.enrolled)

	// active application
	ag.GET("/active", api.active, activeApplicationMiddleware(sess))
	ag.DELETE("/active", api.clearActive)
	ag.PUT("/active/stages/:stage", api.transition)

	// detail endpoints
	ag.GET("/:id", api.retrieve)
	ag.POST("/:id/select", api.selectApplication)
}

// applicationResponse is an Application plus what the admissions panel displays about it.
type applicationResponse struct {
	admission.Application
	CurrentStage admission.Label            `json:"currentStage"`
	Summary      string                     `json:"summary"`
	Progress     int                        `json:"progress"`
	Notes        map[admission.Stage]string `json:"notes"`
}

func newApplicationResponse(app admission.Application) applicationResponse {
	notes := make(map[admission.Stage]string, len(admission.AllStages))
	for _, stage := range admission.AllStages {
		notes[stage] = app.StageNote(stage)
	}
	return applicationResponse{
		Application:  app,
		CurrentStage: app.CurrentStage(),
		Summary:      app.Summary(),
		Progress:     app.Stages.Progress(),
		Notes:        notes,
	}
}

func newApplicationListResponse(apps []admission.Application) []applicationResponse {
	res := make([]applicationResponse, 0, len(apps))
	for _, app := range apps {
		res = append(res, newApplicationResponse(app))
	}
	return res
}

// Handlers

func (api *admissionApi) submit(ctx echo.Context) error {
	var data admission.NewApplication
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewApplication")
	}

	app, err := api.sess.Submit(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting application")
	}
	return ctx.JSON(http.StatusCreated, newApplicationResponse(app))
}

func (api *admissionApi) history(ctx echo.Context) error {
	apps := api.sess.History(bindHistoryFilter(ctx))
	return ctx.JSON(http.StatusOK, newApplicationListResponse(apps))
}

func (api *admissionApi) reset(ctx echo.Context) error {
	if err := api.sess.Reset(ctx.Request().Context()); err != nil {
		return errors.Wrap(err, "resetting admissions")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *admissionApi) stats(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.sess.Stats())
}

func (api *admissionApi) enrolled(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, newApplicationListResponse(api.sess.Enrolled()))
}

func (api *admissionApi) active(ctx echo.Context) error {
	app, _ := getContextApplication(ctx)
	return ctx.JSON(http.StatusOK, newApplicationResponse(app))
}

func (api *admissionApi) clearActive(ctx echo.Context) error {
	api.sess.ClearActive(ctx.Request().Context())
	return ctx.NoContent(http.StatusNoContent)
}

func (api *admissionApi) transition(ctx echo.Context) error {
	data, err := bindTransition(ctx)
	if err != nil {
		return errors.Wrap(err, "binding to StageTransition")
	}

	app, err := api.sess.Transition(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "transitioning application")
	}
	ctx.Set(ctxApplicationKey, app)
	return ctx.JSON(http.StatusOK, newApplicationResponse(app))
}

func (api *admissionApi) retrieve(ctx echo.Context) error {
	app, err := api.sess.Get(ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting application")
	}
	return ctx.JSON(http.StatusOK, newApplicationResponse(app))
}

func (api *admissionApi) selectApplication(ctx echo.Context) error {
	app, err := api.sess.Select(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "selecting application")
	}
	return ctx.JSON(http.StatusOK, newApplicationResponse(app))
}
