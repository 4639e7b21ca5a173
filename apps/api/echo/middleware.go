package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/qlass/backend/core/admission"
)

const ctxApplicationKey = "application"

// activeApplicationMiddleware stores the active application in the context, or fails with ErrNoActiveApplication.
func activeApplicationMiddleware(sess *admission.Session) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			app, ok := sess.Active()
			if !ok {
				return admission.ErrNoActiveApplication
			}
			ctx.Set(ctxApplicationKey, app)
			return next(ctx)
		}
	}
}

func getContextApplication(ctx echo.Context) (admission.Application, bool) {
	app, ok := ctx.Get(ctxApplicationKey).(admission.Application)
	return app, ok
}
