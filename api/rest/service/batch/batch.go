package batch

import (
	"context"

	"github.com/caesium-cloud/batch/internal/history"
	"github.com/caesium-cloud/batch/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Batch is the read-only view of the job history served over REST.
type Batch interface {
	List(*ListRequest) ([]*models.Batch, error)
	Get(uuid.UUID) (*models.Batch, error)
	Latest() (*models.Batch, error)
	Logs(uuid.UUID) ([]*models.LogEntry, error)
}

type batchService struct {
	ctx context.Context
	uow history.UnitOfWork
}

// Service returns a Batch backed by uow. Every call reads inside its
// own transaction, which is rolled back once the read completes.
func Service(ctx context.Context, uow history.UnitOfWork) Batch {
	return &batchService{ctx: ctx, uow: uow}
}

type ListRequest struct {
	// Limit caps the number of batches returned after filtering. Zero
	// returns every match.
	Limit uint64
	// Running restricts the listing to batches that have not finished.
	Running *bool
	// Name restricts the listing to batches recorded under that name.
	Name *string
}

func (b *batchService) List(req *ListRequest) (batches []*models.Batch, err error) {
	if req == nil {
		req = &ListRequest{}
	}

	err = history.Do(b.ctx, b.uow, func(tx history.Tx) error {
		all, err := tx.ListBatches(0)
		if err != nil {
			return err
		}

		batches = make([]*models.Batch, 0, len(all))
		for _, batch := range all {
			if req.Running != nil && batch.Running != *req.Running {
				continue
			}
			if req.Name != nil && batch.Name != *req.Name {
				continue
			}
			if req.Limit > 0 && uint64(len(batches)) >= req.Limit {
				break
			}
			batches = append(batches, batch)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "list batches")
	}

	return batches, nil
}

func (b *batchService) Get(id uuid.UUID) (batch *models.Batch, err error) {
	err = history.Do(b.ctx, b.uow, func(tx history.Tx) error {
		batch, err = tx.GetBatch(id)
		return err
	})
	return
}

// Latest returns history.ErrNotFound when no batch has run yet.
func (b *batchService) Latest() (batch *models.Batch, err error) {
	err = history.Do(b.ctx, b.uow, func(tx history.Tx) error {
		batch, err = tx.Latest()
		return err
	})
	if err == nil && batch == nil {
		err = history.ErrNotFound
	}
	return
}

// Logs returns the batch's log entries, oldest first. Entries written by a
// run that aborted before recording its batch are still returned;
// history.ErrNotFound is reported only when neither exists.
func (b *batchService) Logs(id uuid.UUID) (entries []*models.LogEntry, err error) {
	err = history.Do(b.ctx, b.uow, func(tx history.Tx) error {
		if entries, err = tx.LogEntries(id); err != nil {
			return err
		}
		if len(entries) > 0 {
			return nil
		}
		_, err = tx.GetBatch(id)
		return err
	})
	if err != nil {
		return nil, err
	}

	if entries == nil {
		entries = make([]*models.LogEntry, 0)
	}
	return entries, nil
}
