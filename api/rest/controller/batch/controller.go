package batch

import (
	"errors"
	"net/http"

	bsvc "github.com/caesium-cloud/batch/api/rest/service/batch"
	"github.com/caesium-cloud/batch/internal/history"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Controller serves the batch history endpoints.
type Controller struct {
	uow history.UnitOfWork
}

func New(uow history.UnitOfWork) *Controller {
	return &Controller{uow: uow}
}

func (ctl *Controller) service(c echo.Context) bsvc.Batch {
	return bsvc.Service(c.Request().Context(), ctl.uow)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.ErrBadRequest.SetInternal(err)
	}
	return id, nil
}

func lookupError(err error) error {
	if errors.Is(err, history.ErrNotFound) {
		return echo.ErrNotFound
	}
	return echo.ErrInternalServerError.SetInternal(err)
}

func ok(c echo.Context, v interface{}) error {
	return c.JSON(http.StatusOK, v)
}
