package history

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/caesium-cloud/batch/internal/models"
	"github.com/google/uuid"
)

var errTxDone = errors.New("history: transaction already finished")

// MemoryUnitOfWork keeps history in process memory. Writes are staged per
// transaction and only published on Commit, so uncommitted results are
// never visible to other readers.
type MemoryUnitOfWork struct {
	mu         sync.RWMutex
	batches    []*models.Batch
	jobResults []*models.JobResult
	logs       []*models.LogEntry
}

func NewMemoryUnitOfWork() *MemoryUnitOfWork {
	return &MemoryUnitOfWork{}
}

func (m *MemoryUnitOfWork) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryTx{store: m}, nil
}

// Batches returns a snapshot of every committed batch, oldest first.
func (m *MemoryUnitOfWork) Batches() []*models.Batch {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Batch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, m.assemble(b))
	}
	return out
}

// JobResults returns a snapshot of every committed job result, in
// insertion order.
func (m *MemoryUnitOfWork) JobResults() []*models.JobResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.JobResult, 0, len(m.jobResults))
	for _, jr := range m.jobResults {
		out = append(out, copyJobResult(jr))
	}
	return out
}

// LogEntries returns a snapshot of every committed log entry.
func (m *MemoryUnitOfWork) LogEntries() []*models.LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.LogEntry, 0, len(m.logs))
	for _, entry := range m.logs {
		copied := *entry
		out = append(out, &copied)
	}
	return out
}

// assemble must be called with mu held.
func (m *MemoryUnitOfWork) assemble(src *models.Batch) *models.Batch {
	dst := *src
	dst.JobResults = make([]*models.JobResult, 0)
	for _, jr := range m.jobResults {
		if jr.BatchID == src.ID {
			dst.JobResults = append(dst.JobResults, copyJobResult(jr))
		}
	}
	return &dst
}

func (m *MemoryUnitOfWork) indexOf(id uuid.UUID) int {
	for i, b := range m.batches {
		if b.ID == id {
			return i
		}
	}
	return -1
}

type memoryTx struct {
	store   *MemoryUnitOfWork
	pending []func(*MemoryUnitOfWork) error
	done    bool
}

func (t *memoryTx) stage(op func(*MemoryUnitOfWork) error) error {
	if t.done {
		return errTxDone
	}
	t.pending = append(t.pending, op)
	return nil
}

func (t *memoryTx) Latest() (*models.Batch, error) {
	return t.latest(func(*models.Batch) bool { return true })
}

func (t *memoryTx) LatestNamed(name string) (*models.Batch, error) {
	return t.latest(func(b *models.Batch) bool { return b.Name == name })
}

func (t *memoryTx) latest(match func(*models.Batch) bool) (*models.Batch, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	var latest *models.Batch
	for _, b := range t.store.batches {
		if !match(b) {
			continue
		}
		if latest == nil || !b.Timestamp.Before(latest.Timestamp) {
			latest = b
		}
	}
	if latest == nil {
		return nil, nil
	}
	return t.store.assemble(latest), nil
}

func (t *memoryTx) GetBatch(id uuid.UUID) (*models.Batch, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	idx := t.store.indexOf(id)
	if idx < 0 {
		return nil, ErrNotFound
	}
	return t.store.assemble(t.store.batches[idx]), nil
}

func (t *memoryTx) ListBatches(limit int) ([]*models.Batch, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	ordered := make([]*models.Batch, len(t.store.batches))
	for i, b := range t.store.batches {
		ordered[len(ordered)-1-i] = b
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.After(ordered[j].Timestamp)
	})
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}

	out := make([]*models.Batch, 0, len(ordered))
	for _, b := range ordered {
		out = append(out, t.store.assemble(b))
	}
	return out, nil
}

func (t *memoryTx) LastSuccessfulTimestamp(batchName, jobName string) (*time.Time, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	var last *time.Time
	for _, jr := range t.store.jobResults {
		if jr.JobName != jobName || jr.Result.IsFailure() {
			continue
		}
		idx := t.store.indexOf(jr.BatchID)
		if idx < 0 || t.store.batches[idx].Name != batchName {
			continue
		}
		if last == nil || jr.Timestamp.After(*last) {
			ts := jr.Timestamp
			last = &ts
		}
	}
	return last, nil
}

func (t *memoryTx) AddBatch(b *models.Batch) error {
	stored := *b
	stored.Result = stored.Result.Normalize()
	stored.JobResults = nil
	return t.stage(func(m *MemoryUnitOfWork) error {
		if m.indexOf(stored.ID) >= 0 {
			return errors.New("history: duplicate batch id " + stored.ID.String())
		}
		m.batches = append(m.batches, &stored)
		return nil
	})
}

func (t *memoryTx) UpdateBatch(b *models.Batch) error {
	updated := *b
	updated.Result = updated.Result.Normalize()
	updated.JobResults = nil
	return t.stage(func(m *MemoryUnitOfWork) error {
		idx := m.indexOf(updated.ID)
		if idx < 0 {
			return ErrNotFound
		}
		m.batches[idx] = &updated
		return nil
	})
}

func (t *memoryTx) AddJobResult(jr *models.JobResult) error {
	stored := copyJobResult(jr)
	stored.Result = stored.Result.Normalize()
	for _, tr := range stored.TestResults {
		tr.Result = tr.Result.Normalize()
	}
	return t.stage(func(m *MemoryUnitOfWork) error {
		m.jobResults = append(m.jobResults, stored)
		return nil
	})
}

func (t *memoryTx) AddLogEntry(entry *models.LogEntry) error {
	stored := *entry
	return t.stage(func(m *MemoryUnitOfWork) error {
		m.logs = append(m.logs, &stored)
		return nil
	})
}

func (t *memoryTx) LogEntries(batchID uuid.UUID) ([]*models.LogEntry, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	entries := make([]*models.LogEntry, 0)
	for _, entry := range t.store.logs {
		if entry.BatchID == batchID {
			copied := *entry
			entries = append(entries, &copied)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func (t *memoryTx) PruneBefore(cutoff time.Time) (int64, error) {
	// The count reflects the committed state at the time of the call.
	t.store.mu.RLock()
	var pruned int64
	for _, b := range t.store.batches {
		if !b.Running && b.Timestamp.Before(cutoff) {
			pruned++
		}
	}
	t.store.mu.RUnlock()

	return pruned, t.stage(func(m *MemoryUnitOfWork) error {
		removed := make(map[uuid.UUID]struct{})
		batches := m.batches[:0]
		for _, b := range m.batches {
			if !b.Running && b.Timestamp.Before(cutoff) {
				removed[b.ID] = struct{}{}
				continue
			}
			batches = append(batches, b)
		}
		m.batches = batches

		jobResults := m.jobResults[:0]
		for _, jr := range m.jobResults {
			if _, ok := removed[jr.BatchID]; !ok {
				jobResults = append(jobResults, jr)
			}
		}
		m.jobResults = jobResults

		logs := m.logs[:0]
		for _, entry := range m.logs {
			if _, ok := removed[entry.BatchID]; !ok {
				logs = append(logs, entry)
			}
		}
		m.logs = logs
		return nil
	})
}

func (t *memoryTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	staged := &MemoryUnitOfWork{
		batches:    append([]*models.Batch(nil), t.store.batches...),
		jobResults: append([]*models.JobResult(nil), t.store.jobResults...),
		logs:       append([]*models.LogEntry(nil), t.store.logs...),
	}
	for _, op := range t.pending {
		if err := op(staged); err != nil {
			return err
		}
	}
	t.pending = nil

	t.store.batches = staged.batches
	t.store.jobResults = staged.jobResults
	t.store.logs = staged.logs
	return nil
}

func (t *memoryTx) Rollback() error {
	t.done = true
	t.pending = nil
	return nil
}

func copyJobResult(src *models.JobResult) *models.JobResult {
	if src == nil {
		return nil
	}

	dst := *src
	dst.TestResults = make([]*models.JobTestResult, 0, len(src.TestResults))
	for _, tr := range src.TestResults {
		if tr == nil {
			continue
		}
		copied := *tr
		dst.TestResults = append(dst.TestResults, &copied)
	}
	return &dst
}
