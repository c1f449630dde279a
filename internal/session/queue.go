package session

import "context"

// ServerMessageKind discriminates the payloads a session can enqueue for the
// upstream agent. The wire encoding of these to the agent is a collaborator
// outside this package's scope; this type is the in-process handoff.
type ServerMessageKind int

const (
	CreateShell ServerMessageKind = iota
	CloseShell
	Resize
	Input
)

// ServerMessage is one command destined for the upstream agent transport.
// Only the fields relevant to Kind are populated.
type ServerMessage struct {
	Kind    ServerMessageKind
	ShellID uint32
	Rows    uint16
	Cols    uint16
	Data    []byte
}

// outboundCapacity is the fixed size of a session's agent-bound queue.
const outboundCapacity = 256

// Enqueue places a ServerMessage on the session's agent-bound queue,
// blocking when the queue is full until capacity frees up, the caller's
// context is cancelled, or the session shuts down. This bounded, blocking
// enqueue is the session-wide backpressure point: a full queue slows
// client-to-agent command propagation but never drops data.
func (s *Session) Enqueue(ctx context.Context, msg ServerMessage) error {
	select {
	case s.outbound <- msg:
		return nil
	case <-s.shutdown.Done():
		return ErrOverflow
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outbound exposes the receive side of the agent-bound queue to the
// transport collaborator that actually talks to the upstream agent.
func (s *Session) Outbound() <-chan ServerMessage {
	return s.outbound
}
