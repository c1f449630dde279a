package session

import (
	"context"
	"testing"
	"time"
)

func TestNextIDMonotoneNeverZero(t *testing.T) {
	s := New("test")
	seen := make(map[uint32]bool)
	var prev uint32
	for i := 0; i < 1000; i++ {
		id := s.NextID()
		if id == 0 {
			t.Fatalf("NextID returned 0")
		}
		if seen[id] {
			t.Fatalf("NextID returned duplicate id %d", id)
		}
		if i > 0 && id <= prev {
			t.Fatalf("NextID not strictly increasing: prev=%d id=%d", prev, id)
		}
		seen[id] = true
		prev = id
	}
}

func TestAddShellRejectsCollision(t *testing.T) {
	s := New("test")
	if err := s.AddShell(1); err != nil {
		t.Fatalf("AddShell(1) = %v, want nil", err)
	}
	if err := s.AddShell(1); err != ErrAlreadyExists {
		t.Fatalf("AddShell(1) again = %v, want ErrAlreadyExists", err)
	}
}

func TestCloseShellIdempotentAndFailsOnMissing(t *testing.T) {
	s := New("test")
	if err := s.CloseShell(1); err != ErrNotFound {
		t.Fatalf("CloseShell(missing) = %v, want ErrNotFound", err)
	}

	_ = s.AddShell(1)
	if err := s.CloseShell(1); err != nil {
		t.Fatalf("CloseShell(1) = %v, want nil", err)
	}
	if err := s.CloseShell(1); err != nil {
		t.Fatalf("CloseShell(1) again = %v, want nil (idempotent)", err)
	}
}

// TestClosedShellFinality covers property 5 / scenario S2-adjacent: once
// closed, a shell never mutates again and disappears from the view.
func TestClosedShellFinality(t *testing.T) {
	s := New("test")
	_ = s.AddShell(1)
	_ = s.AddData(1, []byte("hi"), 0)
	_ = s.CloseShell(1)

	if err := s.AddData(1, []byte("more"), 2); err != ErrClosed {
		t.Fatalf("AddData on closed shell = %v, want ErrClosed", err)
	}
	if err := s.MoveShell(1, nil); err != ErrClosed {
		t.Fatalf("MoveShell on closed shell = %v, want ErrClosed", err)
	}

	view := s.SubscribeShells()
	snap, _ := view.Next(context.Background())
	for _, entry := range snap {
		if entry.ID == 1 {
			t.Fatalf("closed shell 1 still present in view: %+v", snap)
		}
	}
}

// TestIngestionOverlappingFragmentsSettle checks that three overlapping
// fragments settle into the single stream "hello!".
func TestIngestionOverlappingFragmentsSettle(t *testing.T) {
	s := New("test")
	_ = s.AddShell(1)

	if err := s.AddData(1, []byte("he"), 0); err != nil {
		t.Fatalf("AddData #1: %v", err)
	}
	if err := s.AddData(1, []byte("llo"), 2); err != nil {
		t.Fatalf("AddData #2: %v", err)
	}
	if err := s.AddData(1, []byte("hello!"), 0); err != nil {
		t.Fatalf("AddData #3: %v", err)
	}

	seqnums := s.SequenceNumbers()
	if seqnums[1] != 6 {
		t.Fatalf("seqnum = %d, want 6", seqnums[1])
	}

	rec, _ := s.getRecord(1)
	var got string
	for _, f := range rec.data {
		got += f.Data
	}
	if got != "hello!" {
		t.Fatalf("concatenated fragments = %q, want %q", got, "hello!")
	}
}

// TestIngestionGapIgnoredResendAccepted checks that a gap is ignored and a
// fully-overlapping resend is accepted in full.
func TestIngestionGapIgnoredResendAccepted(t *testing.T) {
	s := New("test")
	_ = s.AddShell(1)

	if err := s.AddData(1, []byte("world"), 5); err != nil {
		t.Fatalf("gap AddData returned error: %v", err)
	}
	if seqnums := s.SequenceNumbers(); seqnums[1] != 0 {
		t.Fatalf("seqnum after gap = %d, want 0", seqnums[1])
	}

	if err := s.AddData(1, []byte("hello world"), 0); err != nil {
		t.Fatalf("AddData: %v", err)
	}
	if seqnums := s.SequenceNumbers(); seqnums[1] != 11 {
		t.Fatalf("seqnum = %d, want 11", seqnums[1])
	}
}

func TestAddDataBadEncodingDoesNotMutate(t *testing.T) {
	s := New("test")
	_ = s.AddShell(1)

	// 0xC3 is the leading byte of a two-byte UTF-8 sequence; alone, with
	// nothing after the accepted region, it is invalid.
	bad := []byte{'o', 'k', 0xC3}
	if err := s.AddData(1, bad, 0); err != ErrBadEncoding {
		t.Fatalf("AddData(bad) = %v, want ErrBadEncoding", err)
	}
	if seqnums := s.SequenceNumbers(); seqnums[1] != 0 {
		t.Fatalf("seqnum mutated on bad encoding: %d", seqnums[1])
	}
}

// TestMoveShellReorderFocus checks that moving a shell reorders the view
// without requiring a geometry change.
func TestMoveShellReorderFocus(t *testing.T) {
	s := New("test")
	_ = s.AddShell(1)
	_ = s.AddShell(2)
	_ = s.AddShell(3)

	assertOrder := func(t *testing.T, want []uint32) {
		t.Helper()
		sub := s.SubscribeShells()
		snap, _ := sub.Next(context.Background())
		if len(snap) != len(want) {
			t.Fatalf("view = %+v, want ids %v", snap, want)
		}
		for i, id := range want {
			if snap[i].ID != id {
				t.Fatalf("view = %+v, want ids %v", snap, want)
			}
		}
	}

	assertOrder(t, []uint32{1, 2, 3})

	if err := s.MoveShell(1, nil); err != nil {
		t.Fatalf("MoveShell(1, nil): %v", err)
	}
	assertOrder(t, []uint32{2, 3, 1})

	newSize := WindowSize{Rows: 10, Cols: 10}
	if err := s.MoveShell(2, &newSize); err != nil {
		t.Fatalf("MoveShell(2, size): %v", err)
	}
	assertOrder(t, []uint32{3, 1, 2})

	sub := s.SubscribeShells()
	snap, _ := sub.Next(context.Background())
	for _, entry := range snap {
		if entry.ID == 2 && entry.Size != newSize {
			t.Fatalf("shell 2 size = %+v, want %+v", entry.Size, newSize)
		}
	}
}

func TestShutdownFiresSubscriptionsWithinOneWake(t *testing.T) {
	s := New("test")
	_ = s.AddShell(1)

	chunkSub := s.SubscribeChunks(1, 0)
	done := make(chan struct{})
	go func() {
		_, ok := chunkSub.Next(context.Background())
		if ok {
			t.Errorf("chunk subscription did not end after shutdown")
		}
		close(done)
	}()

	time.Sleep(10 * time.Millisecond) // let the goroutine park
	s.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("chunk subscription did not wake within timeout")
	}

	if !s.IsShuttingDown() {
		t.Fatal("IsShuttingDown = false after Shutdown")
	}
}

func TestAccessUpdatesLastActivity(t *testing.T) {
	s := New("test")
	before := s.LastActivity()
	time.Sleep(2 * time.Millisecond)
	s.Access()
	if !s.LastActivity().After(before) {
		t.Fatalf("LastActivity did not advance after Access")
	}
}
