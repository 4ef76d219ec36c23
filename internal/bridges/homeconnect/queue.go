package homeconnect

import "sync"

// signalQueue buffers device signals for the bridge's publisher goroutine.
// Push never blocks, since devices emit while holding their own lock.
//
// Once the queue holds limit signals it sheds load by kind: attribute
// changes are dropped and a snapshot replaces the pending snapshot of the
// same device. Button, completion and diagnostic signals are always kept.
type signalQueue struct {
	limit int

	mu    sync.Mutex
	items []Signal

	wake chan struct{}
}

func newSignalQueue(limit int) *signalQueue {
	return &signalQueue{
		limit: limit,
		wake:  make(chan struct{}, 1),
	}
}

// push queues sig and reports whether it was kept.
func (q *signalQueue) push(sig Signal) bool {
	q.mu.Lock()
	kept := q.admit(sig)
	q.mu.Unlock()

	if kept {
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	return kept
}

func (q *signalQueue) admit(sig Signal) bool {
	if len(q.items) < q.limit {
		q.items = append(q.items, sig)
		return true
	}
	switch sig.Kind {
	case SignalAttribute:
		return false
	case SignalSnapshot:
		for i := len(q.items) - 1; i >= 0; i-- {
			if q.items[i].Kind == SignalSnapshot && q.items[i].DeviceID == sig.DeviceID {
				q.items[i] = sig
				return true
			}
		}
	}
	q.items = append(q.items, sig)
	return true
}

// drain removes and returns everything queued, oldest first.
func (q *signalQueue) drain() []Signal {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (q *signalQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
