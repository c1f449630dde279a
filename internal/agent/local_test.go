package agent

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blaxel-ai/session-core/internal/session"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// TestLocalAgentCreateInputClose exercises the full loop this package exists
// for: a CreateShell command results in a real shell that echoes input back
// through Session.AddData, and a CloseShell command tears it down.
func TestLocalAgentCreateInputClose(t *testing.T) {
	sess := session.New("test")
	a := New(sess, "/bin/sh", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	id := sess.NextID()
	if err := sess.Enqueue(ctx, session.ServerMessage{Kind: session.CreateShell, ShellID: id}); err != nil {
		t.Fatalf("Enqueue CreateShell: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := sess.SequenceNumbers()[id]; ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok := sess.SequenceNumbers()[id]; !ok {
		t.Fatalf("shell %d was never added by the agent", id)
	}

	sub := sess.SubscribeChunks(id, 0)
	if err := sess.Enqueue(ctx, session.ServerMessage{Kind: session.Input, ShellID: id, Data: []byte("echo hi\n")}); err != nil {
		t.Fatalf("Enqueue Input: %v", err)
	}

	var got string
	subDeadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(subDeadline) {
		subCtx, cancel := context.WithTimeout(ctx, time.Second)
		batch, ok := sub.Next(subCtx)
		cancel()
		if !ok {
			break
		}
		for _, f := range batch {
			got += f.Data
		}
		if strings.Contains(got, "hi") {
			break
		}
	}
	if !strings.Contains(got, "hi") {
		t.Fatalf("shell output %q never echoed input", got)
	}

	if err := sess.Enqueue(ctx, session.ServerMessage{Kind: session.CloseShell, ShellID: id}); err != nil {
		t.Fatalf("Enqueue CloseShell: %v", err)
	}

	closeDeadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(closeDeadline) {
		if _, ok := sess.SequenceNumbers()[id]; !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("shell %d was never closed by CloseShell", id)
}
