package batch

import "github.com/caesium-cloud/batch/internal/models"

// Delta pairs a completed batch with the batch that was latest when it
// started. Previous is nil for the first batch ever run.
type Delta struct {
	Current  *models.Batch
	Previous *models.Batch
}
