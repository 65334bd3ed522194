package imports

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/vine/pkg/context"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/processor"
	"github.com/Ramsey-B/vine/pkg/routes"
)

// Runner is satisfied by processor.Processor.
type Runner interface {
	RunMatching(ctx context.Context, importJobID string) (*models.MatchSummary, error)
	Summary(ctx context.Context, importJobID string) (*models.MatchSummary, error)
}

// Register registers import matching routes
func Register(g *echo.Group) {
	g.POST("/:id/match", RunMatching)
	g.GET("/:id/summary", GetSummary)
}

type importParams struct {
	ID string `param:"id" validate:"required,uuid"`
}

// RunMatching runs the matcher over the pending lines of an import. A partial
// failure still answers with the summary written so far.
func RunMatching(c echo.Context) error {
	ctx := c.Request().Context()
	params, err := routes.BindRequest[importParams](c)
	if err != nil {
		return err
	}
	ctx = appctx.SetImportID(ctx, params.ID)

	ctx, runner, err := ectoinject.GetContext[Runner](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	summary, err := runner.RunMatching(ctx, params.ID)
	if err != nil {
		herr := toHTTPError(err)
		if summary != nil {
			if _, logger, lerr := ectoinject.GetContext[ectologger.Logger](ctx); lerr == nil {
				logger.WithContext(ctx).WithError(err).Warn("Matching run incomplete")
			}
			return c.JSON(httperror.GetStatusCode(herr), map[string]any{
				"message": err.Error(),
				"summary": summary,
			})
		}
		return herr
	}

	return c.JSON(http.StatusOK, summary)
}

// GetSummary returns the stored summary of an import
func GetSummary(c echo.Context) error {
	ctx := c.Request().Context()
	params, err := routes.BindRequest[importParams](c)
	if err != nil {
		return err
	}

	ctx, runner, err := ectoinject.GetContext[Runner](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	summary, err := runner.Summary(ctx, params.ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, models.ErrImportJobNotFound):
		return httperror.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrCatalogUnavailable):
		return httperror.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, processor.ErrRunInProgress):
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, processor.ErrLinesNotPersisted):
		return httperror.NewHTTPError(http.StatusInternalServerError, err.Error())
	case httperror.IsHTTPError(err):
		return err
	default:
		return httperror.WrapError(http.StatusInternalServerError, err)
	}
}
