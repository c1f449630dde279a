package session

import "sync"

// notifier is a level-less wake primitive: notifyAll atomically releases
// every consumer currently parked on a channel returned by wait, and a
// waiter that registers after notifyAll has already run does not observe
// that notification.
//
// The contract that makes this safe against lost wakeups is that a caller
// must invoke wait (capturing the current channel) *before* inspecting any
// state the notification guards, not after. Reading state first and parking
// second leaves a window where a writer can append-and-notify between the
// read and the park, and that wakeup is then silently lost.
type notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan struct{})}
}

// wait returns the channel that will be closed on the next notifyAll. Call
// this before reading the state notifyAll guards.
func (n *notifier) wait() <-chan struct{} {
	n.mu.Lock()
	ch := n.ch
	n.mu.Unlock()
	return ch
}

// notifyAll wakes every current waiter and rearms the notifier for the next
// round of waiters.
func (n *notifier) notifyAll() {
	n.mu.Lock()
	close(n.ch)
	n.ch = make(chan struct{})
	n.mu.Unlock()
}
