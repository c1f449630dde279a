package session

import (
	"context"
	"testing"
	"time"
)

// TestChunkSubscriptionNoGapNoDuplicate covers property 4: a subscriber
// sees a prefix of the shell's data with no holes and no duplicates, no
// matter how batches are coalesced.
func TestChunkSubscriptionNoGapNoDuplicate(t *testing.T) {
	s := New("test")
	_ = s.AddShell(1)

	sub := s.SubscribeChunks(1, 0)

	var got string
	writes := []string{"he", "llo", " wor", "ld"}
	offset := uint64(0)
	for _, w := range writes {
		if err := s.AddData(1, []byte(w), offset); err != nil {
			t.Fatalf("AddData: %v", err)
		}
		offset += uint64(len(w))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		batch, ok := sub.Next(ctx)
		cancel()
		if !ok {
			t.Fatalf("subscription ended early")
		}
		for _, f := range batch {
			got += f.Data
		}
	}

	if got != "hello world" {
		t.Fatalf("subscriber saw %q, want %q", got, "hello world")
	}
}

// TestChunkSubscriptionStartChunkMidway ensures subscribing partway through
// an already-written log yields only the fragments from that index onward.
func TestChunkSubscriptionStartChunkMidway(t *testing.T) {
	s := New("test")
	_ = s.AddShell(1)
	_ = s.AddData(1, []byte("aa"), 0)
	_ = s.AddData(1, []byte("bb"), 2)
	_ = s.AddData(1, []byte("cc"), 4)

	sub := s.SubscribeChunks(1, 1) // skip fragment 0 ("aa")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	batch, ok := sub.Next(ctx)
	if !ok {
		t.Fatal("subscription ended unexpectedly")
	}
	if len(batch) != 2 || batch[0].Data != "bb" || batch[1].Data != "cc" {
		t.Fatalf("batch = %+v, want fragments bb, cc", batch)
	}
}

func TestChunkSubscriptionEndsOnMissingShell(t *testing.T) {
	s := New("test")
	sub := s.SubscribeChunks(42, 0)
	_, ok := sub.Next(context.Background())
	if ok {
		t.Fatal("subscription should end immediately for a missing shell")
	}
}

func TestChunkSubscriptionEndsWhenClosedAndDrained(t *testing.T) {
	s := New("test")
	_ = s.AddShell(1)
	_ = s.AddData(1, []byte("x"), 0)
	_ = s.CloseShell(1)

	sub := s.SubscribeChunks(1, 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	batch, ok := sub.Next(ctx)
	if !ok || len(batch) != 1 || batch[0].Data != "x" {
		t.Fatalf("expected to drain remaining fragment, got %+v ok=%v", batch, ok)
	}

	_, ok = sub.Next(context.Background())
	if ok {
		t.Fatal("subscription should end after draining a closed shell")
	}
}

// TestChunkSubscriptionNoLostWakeup exercises the append-then-notify race
// directly: Next must observe data written concurrently while it was
// parked, never missing the wakeup.
func TestChunkSubscriptionNoLostWakeup(t *testing.T) {
	s := New("test")
	_ = s.AddShell(1)

	sub := s.SubscribeChunks(1, 0)
	resultCh := make(chan []Fragment, 1)
	go func() {
		batch, ok := sub.Next(context.Background())
		if !ok {
			close(resultCh)
			return
		}
		resultCh <- batch
	}()

	// Give Next time to register its wait before we write.
	time.Sleep(20 * time.Millisecond)
	if err := s.AddData(1, []byte("late"), 0); err != nil {
		t.Fatalf("AddData: %v", err)
	}

	select {
	case batch := <-resultCh:
		if len(batch) != 1 || batch[0].Data != "late" {
			t.Fatalf("batch = %+v, want [late]", batch)
		}
	case <-time.After(time.Second):
		t.Fatal("Next missed the wakeup from a concurrent write")
	}
}

// TestShellsSubscriptionFirstIsCurrentSnapshot covers the contract that the
// first element is the snapshot at subscription time, even with no
// subsequent changes.
func TestShellsSubscriptionFirstIsCurrentSnapshot(t *testing.T) {
	s := New("test")
	_ = s.AddShell(1)
	_ = s.AddShell(2)

	sub := s.SubscribeShells()
	snap, ok := sub.Next(context.Background())
	if !ok || len(snap) != 2 {
		t.Fatalf("first snapshot = %+v ok=%v, want 2 shells", snap, ok)
	}
}

// TestShellsSubscriptionNoLostWakeup exercises the same append-then-notify
// race as TestChunkSubscriptionNoLostWakeup, but for the shells-view stream:
// a change that lands after the previous Next returned, but before the next
// Next call has registered its wait, must still be delivered rather than
// silently dropped.
func TestShellsSubscriptionNoLostWakeup(t *testing.T) {
	s := New("test")
	_ = s.AddShell(1)

	sub := s.SubscribeShells()
	first, ok := sub.Next(context.Background())
	if !ok || len(first) != 1 {
		t.Fatalf("first snapshot = %+v ok=%v, want 1 shell", first, ok)
	}

	// Simulate the window the review comment called out: the view changes
	// before the consumer's next Next call has had a chance to register its
	// wait on the notifier.
	_ = s.AddShell(2)

	resultCh := make(chan []ShellView, 1)
	go func() {
		snap, ok := sub.Next(context.Background())
		if !ok {
			close(resultCh)
			return
		}
		resultCh <- snap
	}()

	select {
	case snap := <-resultCh:
		if len(snap) != 2 {
			t.Fatalf("snapshot = %+v, want 2 shells", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("Next missed a view change that happened before it was called")
	}
}
