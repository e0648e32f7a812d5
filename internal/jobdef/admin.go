package jobdef

import (
	"context"
	"fmt"
	"time"

	"github.com/caesium-cloud/batch/internal/clock"
	"github.com/caesium-cloud/batch/internal/history"
	"github.com/caesium-cloud/batch/internal/job"
	"github.com/caesium-cloud/batch/internal/result"
	"github.com/caesium-cloud/batch/pkg/log"
	"github.com/pkg/errors"
)

// pruneHistory deletes finished batches older than the retention window.
type pruneHistory struct {
	retention time.Duration
	clock     clock.Source
}

func (p *pruneHistory) cutoff() time.Time {
	return p.clock.Now().Add(-p.retention)
}

func (p *pruneHistory) run(ctx context.Context, uow history.UnitOfWork, logger log.Logger) (result.Result, error) {
	cutoff := p.cutoff()

	var pruned int64
	err := history.Do(ctx, uow, func(tx history.Tx) error {
		var err error
		if pruned, err = tx.PruneBefore(cutoff); err != nil {
			return errors.Wrap(err, "prune history")
		}
		return errors.Wrap(tx.Commit(), "commit prune")
	})
	if err != nil {
		return result.Result{}, err
	}

	logger.Info("pruned history", "batches", pruned, "cutoff", cutoff.Format(time.RFC3339))
	return result.Result{Status: result.StatusSuccess, Message: fmt.Sprintf("pruned %d batches", pruned)}, nil
}

func (p *pruneHistory) test(ctx context.Context, uow history.UnitOfWork, _ log.Logger) ([]job.TestOutcome, error) {
	cutoff := p.cutoff()

	var stale int
	err := history.Do(ctx, uow, func(tx history.Tx) error {
		batches, err := tx.ListBatches(0)
		if err != nil {
			return errors.Wrap(err, "list batches")
		}
		for _, b := range batches {
			if !b.Running && b.Timestamp.Before(cutoff) {
				stale++
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}

	outcome := job.TestOutcome{Name: "no-expired-batches", Result: result.Success()}
	if stale > 0 {
		outcome.Result = result.Failuref("%d batches older than %s remain", stale, cutoff.Format(time.RFC3339))
	}
	return []job.TestOutcome{outcome}, nil
}

// verifyHistory fails when a batch other than the most recent one is
// still marked as running, which happens when a run was aborted.
func verifyHistory(ctx context.Context, uow history.UnitOfWork, logger log.Logger) (result.Result, error) {
	var abandoned []string
	err := history.Do(ctx, uow, func(tx history.Tx) error {
		batches, err := tx.ListBatches(0)
		if err != nil {
			return errors.Wrap(err, "list batches")
		}
		for i, b := range batches {
			if i > 0 && b.Running {
				abandoned = append(abandoned, b.ID.String())
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return result.Result{}, err
	}

	if len(abandoned) > 0 {
		logger.Error("found abandoned batches", "batch_ids", abandoned)
		return result.Failuref("%d abandoned batches still marked running", len(abandoned)), nil
	}

	logger.Info("history verified")
	return result.Success(), nil
}
