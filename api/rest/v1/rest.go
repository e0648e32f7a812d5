package rest

import (
	"github.com/caesium-cloud/batch/api/rest/controller/batch"
	"github.com/caesium-cloud/batch/internal/history"
	"github.com/labstack/echo/v4"
)

// Bind the REST endpoints to the versioned endpoint group.
func Bind(group *echo.Group, uow history.UnitOfWork) {
	ctl := batch.New(uow)

	// batches
	{
		group.GET("/batches", ctl.List)
		group.GET("/batches/latest", ctl.Latest)
		group.GET("/batches/:id", ctl.Get)
		group.GET("/batches/:id/logs", ctl.Logs)
	}
}
