package testutil

import (
	"sync"

	"github.com/caesium-cloud/batch/pkg/log"
)

// Entry is one recorded log line.
type Entry struct {
	Level   string
	Message string
	Fields  []interface{}
}

// Recorder is a log.Logger that keeps every entry in memory. It is safe
// for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

var _ log.Logger = (*Recorder)(nil)

func (r *Recorder) Info(msg string, keysAndValues ...interface{}) {
	r.record("info", msg, keysAndValues)
}

func (r *Recorder) Error(msg string, keysAndValues ...interface{}) {
	r.record("error", msg, keysAndValues)
}

func (r *Recorder) record(level, msg string, keysAndValues []interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Message: msg, Fields: keysAndValues})
}

// Entries returns a copy of the recorded entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Count returns how many entries carry the given message.
func (r *Recorder) Count(msg string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		if e.Message == msg {
			n++
		}
	}
	return n
}
