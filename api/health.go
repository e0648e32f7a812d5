package api

import (
	"net/http"
	"time"

	"github.com/caesium-cloud/batch/internal/history"
	"github.com/caesium-cloud/batch/internal/models"
	"github.com/labstack/echo/v4"
)

var startedAt = time.Now()

// HealthResponse defines the data the Health
// REST endpoint returns.
type HealthResponse struct {
	Status    Status        `json:"status"`
	Uptime    time.Duration `json:"uptime"`
	LastBatch *BatchSummary `json:"last_batch,omitempty"`
}

// BatchSummary describes the most recent batch without its job results.
type BatchSummary struct {
	ID        string    `json:"id"`
	Running   bool      `json:"running"`
	Failed    int       `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

// Health reports whether the history store is reachable, along with the
// uptime and the most recent batch.
func Health(uow history.UnitOfWork) echo.HandlerFunc {
	return func(c echo.Context) error {
		var latest *models.Batch
		err := history.Do(c.Request().Context(), uow, func(tx history.Tx) (err error) {
			latest, err = tx.Latest()
			return
		})

		resp := HealthResponse{
			Status: Healthy,
			Uptime: time.Since(startedAt),
		}

		if err != nil {
			resp.Status = Unhealthy
			return c.JSON(http.StatusServiceUnavailable, resp)
		}

		if latest != nil {
			resp.LastBatch = &BatchSummary{
				ID:        latest.ID.String(),
				Running:   latest.Running,
				Failed:    len(latest.Failed()),
				Timestamp: latest.Timestamp,
			}
		}

		return c.JSON(http.StatusOK, resp)
	}
}

// Status enumerates the health statuses of the batch API.
type Status string

const (
	// Healthy implies the history store is reachable.
	Healthy Status = "healthy"
	// Unhealthy implies the history store could not be read.
	Unhealthy Status = "unhealthy"
)
