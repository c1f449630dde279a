package session

import (
	"sync"
	"unicode/utf8"
)

// shellRecord is the per-shell state: the total byte count ever accepted,
// the append-only fragment log backing it, and whether the shell has been
// closed. A shell's own mutex serializes writes to it without blocking
// lookups or writes against any other shell.
type shellRecord struct {
	mu     sync.Mutex
	seqnum uint64
	data   []Fragment
	closed bool
	notify *notifier
}

func newShellRecord() *shellRecord {
	return &shellRecord{notify: newNotifier()}
}

// sequenceNumber returns the current byte count and closed flag.
func (r *shellRecord) sequenceNumber() (seqnum uint64, closed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seqnum, r.closed
}

// close marks the shell closed if it wasn't already, and reports whether
// this call was the one that did so.
func (r *shellRecord) close() (transitioned bool) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.closed = true
	r.mu.Unlock()
	r.notify.notifyAll()
	return true
}

// addData applies the ingestion rule: data is accepted only if it overlaps
// the byte range already seen, i.e. seq <= seqnum < seq+len(data). Earlier
// bytes are duplicates already stored; later bytes are a gap and are
// dropped, on the expectation that the agent retransmits from seqnum after
// reconciliation. Returns ErrClosed if the shell has already closed, and
// ErrBadEncoding if the computed suffix is not valid UTF-8 as a whole
// (including when it doesn't start on a UTF-8 boundary).
func (r *shellRecord) addData(data []byte, seq uint64, timestampMS uint64) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}

	n := r.seqnum
	length := uint64(len(data))
	if !(seq <= n && n < seq+length) {
		// Duplicate or gap: silently ignored, not an error.
		r.mu.Unlock()
		return nil
	}

	suffix := data[n-seq:]
	if !utf8.Valid(suffix) {
		r.mu.Unlock()
		return ErrBadEncoding
	}

	r.seqnum = n + uint64(len(suffix))
	r.data = append(r.data, Fragment{TimestampMS: timestampMS, Data: string(suffix)})
	r.mu.Unlock()

	r.notify.notifyAll()
	return nil
}

// fragmentsFrom returns a copy of data[from:] and the new length of data,
// i.e. the cursor a chunk subscriber should advance to. The copy is taken
// under the shell's own lock and handed back to the caller, who must not
// retain any reference into r.data itself — this is what lets callers carry
// the result across a suspension point without aliasing the shell's log.
func (r *shellRecord) fragmentsFrom(from uint64) (batch []Fragment, newCursor uint64, closed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	length := uint64(len(r.data))
	if from >= length {
		return nil, from, r.closed
	}
	batch = make([]Fragment, length-from)
	copy(batch, r.data[from:])
	return batch, length, r.closed
}
