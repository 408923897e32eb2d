package socket

import (
	"sync"

	"github.com/google/uuid"
)

type frame struct {
	id   uuid.UUID
	data []byte
}

// queue is the unbounded send queue shared by every session. A message id
// is queued at most once, so a replay racing an original send does not
// duplicate it on the wire.
type queue struct {
	mu     sync.Mutex
	frames []frame
	queued map[uuid.UUID]struct{}
	ready  chan struct{}
}

func newQueue() *queue {
	return &queue{
		queued: make(map[uuid.UUID]struct{}),
		ready:  make(chan struct{}, 1),
	}
}

func (q *queue) push(f frame) bool {
	q.mu.Lock()
	if _, dup := q.queued[f.id]; dup {
		q.mu.Unlock()
		return false
	}
	q.queued[f.id] = struct{}{}
	q.frames = append(q.frames, f)
	q.mu.Unlock()

	q.signal()
	return true
}

// requeue puts frames that were drained but not written back at the front.
func (q *queue) requeue(frames []frame) {
	if len(frames) == 0 {
		return
	}
	q.mu.Lock()
	kept := make([]frame, 0, len(frames)+len(q.frames))
	for _, f := range frames {
		if _, dup := q.queued[f.id]; dup {
			continue
		}
		q.queued[f.id] = struct{}{}
		kept = append(kept, f)
	}
	q.frames = append(kept, q.frames...)
	q.mu.Unlock()

	q.signal()
}

// drain removes and returns everything queued.
func (q *queue) drain() []frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.frames
	q.frames = nil
	for _, f := range out {
		delete(q.queued, f.id)
	}
	return out
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

func (q *queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
