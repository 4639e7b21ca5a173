package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/qlass/backend/core/admission"
)

var (
	searchParam = "search"
	courseParam = "course"
)

// bindHistoryFilter reads the history filter from the query string.
func bindHistoryFilter(ctx echo.Context) admission.HistoryFilter {
	filter := admission.HistoryFilter{
		Search: ctx.QueryParam(searchParam),
		Course: ctx.QueryParam(courseParam),
	}
	filter.Clean()
	return filter
}

type transitionRequest struct {
	Status admission.Status `json:"status"`
}

// bindTransition builds the StageTransition of `PUT /active/stages/:stage`.
func bindTransition(ctx echo.Context) (admission.StageTransition, error) {
	var data transitionRequest
	if err := ctx.Bind(&data); err != nil {
		return admission.StageTransition{}, err
	}
	return admission.StageTransition{
		Stage:  admission.Stage(ctx.Param("stage")),
		Status: data.Status,
	}, nil
}
