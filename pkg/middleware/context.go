package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/vine/pkg/context"
)

// HeaderUserID carries the caller identity resolved upstream.
const HeaderUserID = "X-User-ID"

// Context copies request correlation values into the request context and
// echoes the request id back to the caller.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = context.SetRequestID(ctx, requestID)
			ctx = context.SetRoute(ctx, c.Path())
			ctx = context.SetUserID(ctx, req.Header.Get(HeaderUserID))
			if id := c.Param("id"); id != "" {
				ctx = context.SetImportID(ctx, id)
			}

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
