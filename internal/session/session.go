// Package session implements the per-session in-memory state machine:
// shells and their append-only byte streams, the
// shells_view geometry broadcast, the agent-bound command queue, and the
// lazy subscription streams that let many browser clients tail a shell
// without missing or duplicating bytes.
//
// Every exported method other than the subscription streams and Enqueue
// completes synchronously under short-lived locks; nothing here blocks on
// I/O. Subscriptions, and Enqueue waiting for room in the agent-bound queue,
// are the only suspension points, and they never hold a shell's lock while
// parked — see shellRecord.fragmentsFrom and notifier for how that's
// enforced.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Session owns one agent's worth of shells and brokers them to many browser
// clients. It has no knowledge of HTTP, WebSockets, or the wire format used
// to talk to the agent — those live in the gateway and registry packages.
type Session struct {
	mu     sync.RWMutex
	shells map[uint32]*shellRecord

	counter atomic.Uint32

	created time.Time

	updatedMu sync.Mutex
	updated   time.Time

	view *shellsView

	outbound chan ServerMessage
	shutdown *shutdownSignal

	log *logrus.Entry
}

// New constructs an empty session. name is used only for logging.
func New(name string) *Session {
	now := time.Now()
	return &Session{
		shells:   make(map[uint32]*shellRecord),
		created:  now,
		updated:  now,
		view:     newShellsView(),
		outbound: make(chan ServerMessage, outboundCapacity),
		shutdown: newShutdownSignal(),
		log:      logrus.WithField("session", name),
	}
}

// NextID returns a fresh, strictly increasing id, never 0. It is used both
// for shell ids and, opaquely, for per-client user ids.
func (s *Session) NextID() uint32 {
	return s.counter.Add(1)
}

// SequenceNumbers returns a snapshot of (id, seqnum) for every shell that is
// not currently closed. The snapshot is point-in-time consistent per shell,
// not globally atomic across shells.
func (s *Session) SequenceNumbers() map[uint32]uint64 {
	s.mu.RLock()
	records := make(map[uint32]*shellRecord, len(s.shells))
	for id, rec := range s.shells {
		records[id] = rec
	}
	s.mu.RUnlock()

	out := make(map[uint32]uint64, len(records))
	for id, rec := range records {
		seqnum, closed := rec.sequenceNumber()
		if !closed {
			out[id] = seqnum
		}
	}
	return out
}

// AddShell creates a new shell with the given id and default geometry. The
// id must not already be present, open or closed.
func (s *Session) AddShell(id uint32) error {
	s.mu.Lock()
	if _, exists := s.shells[id]; exists {
		s.mu.Unlock()
		return ErrAlreadyExists
	}
	s.shells[id] = newShellRecord()
	s.mu.Unlock()

	s.view.add(id, DefaultWindowSize)
	s.log.Debugf("shell %d added", id)
	return nil
}

// CloseShell marks a shell closed and removes it from the presentation
// view. Closing an already-closed shell is a no-op success; closing an
// unknown id fails with ErrNotFound.
func (s *Session) CloseShell(id uint32) error {
	rec, ok := s.getRecord(id)
	if !ok {
		return ErrNotFound
	}
	if rec.close() {
		s.view.remove(id)
		s.log.Debugf("shell %d closed", id)
	}
	return nil
}

// MoveShell reorders a shell to the end of the presentation view, modeling
// "focus/bring to front". If size is non-nil it also updates the shell's
// geometry; a nil size preserves the shell's previous geometry, so a bare
// move_shell(id, nil) is a pure focus operation.
func (s *Session) MoveShell(id uint32, size *WindowSize) error {
	rec, ok := s.getRecord(id)
	if !ok {
		return ErrNotFound
	}
	_, closed := rec.sequenceNumber()
	if closed {
		return ErrClosed
	}
	s.view.moveToEnd(id, size)
	return nil
}

// AddData applies the monotone-sequence ingestion rule to a fragment of
// agent output. See shellRecord.addData for the full rule.
func (s *Session) AddData(id uint32, data []byte, seq uint64) error {
	rec, ok := s.getRecord(id)
	if !ok {
		return ErrNotFound
	}
	elapsed := uint64(time.Since(s.created).Milliseconds())
	return rec.addData(data, seq, elapsed)
}

// Access refreshes the session's last-activity timestamp. Called by the
// gateway on every inbound client frame; consumed by an external liveness
// reaper that this package does not implement.
func (s *Session) Access() {
	s.updatedMu.Lock()
	s.updated = time.Now()
	s.updatedMu.Unlock()
}

// LastActivity returns the last time Access was called, or the session's
// creation time if it never was.
func (s *Session) LastActivity() time.Time {
	s.updatedMu.Lock()
	defer s.updatedMu.Unlock()
	return s.updated
}

// Shutdown fires the session's one-shot shutdown signal. Idempotent. After
// this, new subscriptions may still be opened: a chunk subscription ends on
// its first poll, and a shells subscription yields its initial snapshot and
// ends on the poll after that unless the view has changed in between.
func (s *Session) Shutdown() {
	s.shutdown.fire()
	s.log.Info("session shutdown fired")
}

// Done reports the session's shutdown channel, closed once Shutdown has run.
func (s *Session) Done() <-chan struct{} {
	return s.shutdown.Done()
}

// IsShuttingDown reports whether Shutdown has already fired.
func (s *Session) IsShuttingDown() bool {
	return s.shutdown.fired()
}

func (s *Session) getRecord(id uint32) (*shellRecord, bool) {
	s.mu.RLock()
	rec, ok := s.shells[id]
	s.mu.RUnlock()
	return rec, ok
}

func (s *Session) isClosed(id uint32) bool {
	rec, ok := s.getRecord(id)
	if !ok {
		return true
	}
	_, closed := rec.sequenceNumber()
	return closed
}
