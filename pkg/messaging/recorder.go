package messaging

import (
	"context"
	"sync"
)

// Recorder subscribes to a broker and keeps the most recent messages.
type Recorder struct {
	id    string
	ch    chan Message
	limit int

	mu     sync.RWMutex
	recent []Message
}

func NewRecorder(id string, limit int) *Recorder {
	if limit <= 0 {
		limit = 100
	}
	return &Recorder{
		id:    id,
		ch:    make(chan Message, limit),
		limit: limit,
	}
}

func (r *Recorder) ID() string { return r.id }

// Attach subscribes the recorder to b.
func (r *Recorder) Attach(b Broker) error {
	return b.Subscribe(r.id, r.ch)
}

// Run drains the subscription until ctx is done.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case msg := <-r.ch:
			r.record(msg)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Recorder) record(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recent = append(r.recent, msg)
	if len(r.recent) > r.limit {
		r.recent = r.recent[len(r.recent)-r.limit:]
	}
}

// Recent returns up to n of the latest messages, oldest first. n <= 0
// returns all of them.
func (r *Recorder) Recent(n int) []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	start := 0
	if n > 0 && n < len(r.recent) {
		start = len(r.recent) - n
	}
	out := make([]Message, len(r.recent)-start)
	copy(out, r.recent[start:])
	return out
}
