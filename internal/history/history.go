// Package history persists batch outcomes. Every read or write of job
// history happens inside a transaction acquired from a UnitOfWork and
// finished with an explicit Commit; Do guarantees a rollback on every
// other exit path.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/caesium-cloud/batch/internal/models"
	"github.com/google/uuid"
	perrors "github.com/pkg/errors"
)

// ErrNotFound is returned when a requested batch does not exist.
var ErrNotFound = errors.New("history: record not found")

// UnitOfWork hands out transactional boundaries over the job history.
type UnitOfWork interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one transaction over the job history. Writes become visible to
// other transactions only after Commit. Rollback after Commit is a no-op.
type Tx interface {
	// Latest returns the most recently started batch, or nil when the
	// history is empty.
	Latest() (*models.Batch, error)
	// LatestNamed is Latest restricted to batches carrying name.
	LatestNamed(name string) (*models.Batch, error)
	GetBatch(id uuid.UUID) (*models.Batch, error)
	// ListBatches returns up to limit batches, newest first. A limit of
	// zero or less returns every batch.
	ListBatches(limit int) ([]*models.Batch, error)
	// LastSuccessfulTimestamp returns the timestamp of the newest
	// successful result for the job within batches named batchName, or
	// nil when it never succeeded there.
	LastSuccessfulTimestamp(batchName, jobName string) (*time.Time, error)
	AddBatch(b *models.Batch) error
	UpdateBatch(b *models.Batch) error
	AddJobResult(jr *models.JobResult) error
	AddLogEntry(entry *models.LogEntry) error
	// LogEntries returns the batch's log entries, oldest first.
	LogEntries(batchID uuid.UUID) ([]*models.LogEntry, error)
	// PruneBefore deletes finished batches older than the cutoff along
	// with their job results, test results and logs.
	PruneBefore(cutoff time.Time) (int64, error)
	Commit() error
	Rollback() error
}

// Do begins a transaction, passes it to fn and rolls it back unless fn
// committed it.
func Do(ctx context.Context, uow UnitOfWork, fn func(Tx) error) error {
	tx, err := uow.Begin(ctx)
	if err != nil {
		return perrors.Wrap(err, "begin unit of work")
	}
	defer tx.Rollback() //nolint:errcheck

	return fn(tx)
}
