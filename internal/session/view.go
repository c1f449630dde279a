package session

import "sync"

// shellsView is the canonical presentation order and geometry of open
// shells, broadcast to every browser client. It behaves like a
// broadcast-latest channel: every subscriber gets the current value
// immediately on subscribing, and the most recent value after every change,
// with intermediate values allowed to be coalesced away.
type shellsView struct {
	mu      sync.Mutex
	order   []uint32
	sizes   map[uint32]WindowSize
	version uint64
	change  *notifier
}

func newShellsView() *shellsView {
	return &shellsView{
		sizes:  make(map[uint32]WindowSize),
		change: newNotifier(),
	}
}

// snapshot returns the current ordered view and the version it was taken
// at. The returned slice is a fresh copy safe to retain across suspension
// points. version is monotone and bumped by every add/remove/moveToEnd, so
// a subscriber can tell whether it has already seen a given snapshot
// without racing the change notifier.
func (v *shellsView) snapshot() ([]ShellView, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]ShellView, len(v.order))
	for i, id := range v.order {
		out[i] = ShellView{ID: id, Size: v.sizes[id]}
	}
	return out, v.version
}

// add appends a newly created shell to the end of the view.
func (v *shellsView) add(id uint32, size WindowSize) {
	v.mu.Lock()
	v.order = append(v.order, id)
	v.sizes[id] = size
	v.version++
	v.mu.Unlock()
	v.change.notifyAll()
}

// remove drops a shell from the view, e.g. when it is closed.
func (v *shellsView) remove(id uint32) {
	v.mu.Lock()
	for i, existing := range v.order {
		if existing == id {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
	delete(v.sizes, id)
	v.version++
	v.mu.Unlock()
	v.change.notifyAll()
}

// moveToEnd removes the shell's current entry and re-appends it, optionally
// updating its size. A nil size keeps the previous one: this is how a pure
// focus-to-front operation is modeled without a resize.
func (v *shellsView) moveToEnd(id uint32, size *WindowSize) {
	v.mu.Lock()
	for i, existing := range v.order {
		if existing == id {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
	v.order = append(v.order, id)
	if size != nil {
		v.sizes[id] = *size
	}
	v.version++
	v.mu.Unlock()
	v.change.notifyAll()
}
