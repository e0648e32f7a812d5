package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/caesium-cloud/batch/internal/history"
	"github.com/caesium-cloud/batch/internal/models"
	"github.com/caesium-cloud/batch/internal/result"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, uow history.UnitOfWork, batches ...*models.Batch) {
	t.Helper()
	require.NoError(t, history.Do(context.Background(), uow, func(tx history.Tx) error {
		for _, b := range batches {
			if err := tx.AddBatch(b); err != nil {
				return err
			}
		}
		return tx.Commit()
	}))
}

func TestListFiltersRunning(t *testing.T) {
	uow := history.NewMemoryUnitOfWork()
	done := &models.Batch{ID: uuid.New(), Timestamp: base, Result: result.Success()}
	running := &models.Batch{ID: uuid.New(), Timestamp: base.Add(time.Minute), Running: true}
	seed(t, uow, done, running)

	svc := Service(context.Background(), uow)

	all, err := svc.List(nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, running.ID, all[0].ID)

	yes := true
	onlyRunning, err := svc.List(&ListRequest{Running: &yes})
	require.NoError(t, err)
	require.Len(t, onlyRunning, 1)
	require.Equal(t, running.ID, onlyRunning[0].ID)

	limited, err := svc.List(&ListRequest{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestListLimitAppliesAfterFilters(t *testing.T) {
	uow := history.NewMemoryUnitOfWork()
	stuck := &models.Batch{ID: uuid.New(), Name: "nightly", Timestamp: base, Running: true}
	older := &models.Batch{ID: uuid.New(), Name: "hourly", Timestamp: base.Add(time.Minute), Running: true}
	newest := &models.Batch{ID: uuid.New(), Name: "nightly", Timestamp: base.Add(time.Hour), Result: result.Success()}
	seed(t, uow, stuck, older, newest)

	svc := Service(context.Background(), uow)

	yes := true
	running, err := svc.List(&ListRequest{Limit: 1, Running: &yes})
	require.NoError(t, err)
	require.Len(t, running, 1)
	require.Equal(t, older.ID, running[0].ID)

	nightly := "nightly"
	named, err := svc.List(&ListRequest{Limit: 1, Running: &yes, Name: &nightly})
	require.NoError(t, err)
	require.Len(t, named, 1)
	require.Equal(t, stuck.ID, named[0].ID)

	huge, err := svc.List(&ListRequest{Limit: 1 << 63})
	require.NoError(t, err)
	require.Len(t, huge, 3)
}

func TestLatestEmptyHistory(t *testing.T) {
	_, err := Service(context.Background(), history.NewMemoryUnitOfWork()).Latest()
	require.True(t, errors.Is(err, history.ErrNotFound))
}

func TestGetAndLatest(t *testing.T) {
	uow := history.NewMemoryUnitOfWork()
	b := &models.Batch{ID: uuid.New(), Timestamp: base, Result: result.Success()}
	seed(t, uow, b)

	svc := Service(context.Background(), uow)

	got, err := svc.Get(b.ID)
	require.NoError(t, err)
	require.Equal(t, b.ID, got.ID)

	latest, err := svc.Latest()
	require.NoError(t, err)
	require.Equal(t, b.ID, latest.ID)

	_, err = svc.Get(uuid.New())
	require.True(t, errors.Is(err, history.ErrNotFound))
}

func TestLogs(t *testing.T) {
	uow := history.NewMemoryUnitOfWork()
	b := &models.Batch{ID: uuid.New(), Timestamp: base, Result: result.Success()}
	seed(t, uow, b)

	svc := Service(context.Background(), uow)

	entries, err := svc.Logs(b.ID)
	require.NoError(t, err)
	require.NotNil(t, entries)
	require.Empty(t, entries)

	orphan := uuid.New()
	require.NoError(t, history.Do(context.Background(), uow, func(tx history.Tx) error {
		if err := tx.AddLogEntry(&models.LogEntry{
			ID:        uuid.New(),
			BatchID:   orphan,
			Level:     models.LogLevelError,
			Message:   "invalid job dependencies",
			Timestamp: base,
		}); err != nil {
			return err
		}
		return tx.Commit()
	}))

	entries, err = svc.Logs(orphan)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = svc.Logs(uuid.New())
	require.True(t, errors.Is(err, history.ErrNotFound))
}
