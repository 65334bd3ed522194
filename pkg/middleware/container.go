package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/vine/pkg/inject"
)

// Container makes handlers resolve their dependencies from the container
// registered under id.
func Container(id string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, err := inject.WithContainer(c.Request().Context(), id)
			if err != nil {
				return err
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
