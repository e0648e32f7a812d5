package batch

import (
	"github.com/caesium-cloud/batch/internal/models"
	"github.com/labstack/echo/v4"
)

// BatchResponse is a batch with a summary of its job outcomes.
type BatchResponse struct {
	*models.Batch
	Failed []string `json:"failed"`
}

func respond(batch *models.Batch) *BatchResponse {
	resp := &BatchResponse{Batch: batch, Failed: make([]string, 0)}
	for _, jr := range batch.Failed() {
		resp.Failed = append(resp.Failed, jr.JobName)
	}
	return resp
}

func (ctl *Controller) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	batch, err := ctl.service(c).Get(id)
	if err != nil {
		return lookupError(err)
	}

	return ok(c, respond(batch))
}

func (ctl *Controller) Latest(c echo.Context) error {
	batch, err := ctl.service(c).Latest()
	if err != nil {
		return lookupError(err)
	}

	return ok(c, respond(batch))
}
