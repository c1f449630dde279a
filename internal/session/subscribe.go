package session

import "context"

// ShellsSubscription is a lazy sequence of shells_view snapshots: the first
// call to Next returns the snapshot current at subscription time, and every
// subsequent call blocks until the view changes (coalescing intermediate
// changes) or the session shuts down.
type ShellsSubscription struct {
	session *Session
	first   bool
	version uint64
}

// SubscribeShells opens a new shells-view subscription.
func (s *Session) SubscribeShells() *ShellsSubscription {
	return &ShellsSubscription{session: s, first: true}
}

// Next returns the next snapshot, or ok=false once the sequence has ended
// because the session shut down or ctx was cancelled.
//
// Like ChunkSubscription.Next, the ordering here is load-bearing: waitCh is
// registered on the notifier *before* the view's version is re-read, so a
// change that lands between the previous call returning and this one
// registering its wait is never silently missed. If the version has already
// moved on by the time the wait is registered, the new snapshot is returned
// immediately instead of parking on an edge that already fired.
func (sub *ShellsSubscription) Next(ctx context.Context) (snapshot []ShellView, ok bool) {
	v := sub.session.view
	if sub.first {
		sub.first = false
		snap, version := v.snapshot()
		sub.version = version
		return snap, true
	}

	for {
		waitCh := v.change.wait()

		snap, version := v.snapshot()
		if version != sub.version {
			sub.version = version
			return snap, true
		}

		select {
		case <-waitCh:
			continue
		case <-sub.session.shutdown.Done():
			return nil, false
		case <-ctx.Done():
			return nil, false
		}
	}
}

// ChunkSubscription is a lazy sequence of fragment batches for one shell,
// starting at a fragment index (not a byte offset). Each call to Next
// yields the batch of fragments appended since the last call.
type ChunkSubscription struct {
	session *Session
	shellID uint32
	cursor  uint64
}

// SubscribeChunks opens a chunk subscription for shellID, starting at
// fragment index startChunk.
func (s *Session) SubscribeChunks(shellID uint32, startChunk uint64) *ChunkSubscription {
	return &ChunkSubscription{session: s, shellID: shellID, cursor: startChunk}
}

// Next returns the next non-empty batch of fragments, or ok=false once the
// sequence has ended: the session is shutting down, the shell is missing,
// or the shell is closed with nothing left to drain.
//
// The ordering inside this method is the whole correctness contract: a
// pending wake is registered on the shell's notifier *before* its length is
// inspected, so an append-and-notify race between the read and the park can
// never be silently missed. Every batch handed back is a
// fresh copy taken while holding the shell's lock only for the duration of
// the copy — no slice into the shell's live log escapes this call.
func (cs *ChunkSubscription) Next(ctx context.Context) (batch []Fragment, ok bool) {
	for {
		if cs.session.shutdown.fired() {
			return nil, false
		}

		rec, exists := cs.session.getRecord(cs.shellID)
		if !exists {
			return nil, false
		}

		waitCh := rec.notify.wait()

		fragments, newCursor, closed := rec.fragmentsFrom(cs.cursor)
		if len(fragments) > 0 {
			cs.cursor = newCursor
			return fragments, true
		}
		if closed {
			return nil, false
		}

		select {
		case <-waitCh:
			continue
		case <-cs.session.shutdown.Done():
			return nil, false
		case <-ctx.Done():
			return nil, false
		}
	}
}
