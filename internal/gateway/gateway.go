package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/blaxel-ai/session-core/internal/session"
)

// Conn is the subset of *websocket.Conn the gateway needs. It exists so the
// gateway's multiplexing loop can be exercised with a fake in tests without
// opening a real socket.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type chunkEvent struct {
	shellID   uint32
	fragments []session.Fragment
}

// Gateway mediates between one browser connection and a session, one
// instance per accepted connection.
type Gateway struct {
	conn Conn
	sess *session.Session
	log  *logrus.Entry

	subMu      sync.Mutex
	subscribed map[uint32]context.CancelFunc

	chunkCh chan chunkEvent
	wg      sync.WaitGroup
}

// New builds a gateway for an already-upgraded connection. Each gateway gets
// a random correlation id attached to its logger, so one client's log lines
// can be told apart from another's in a session with many collaborators.
func New(conn Conn, sess *session.Session, log *logrus.Entry) *Gateway {
	return &Gateway{
		conn:       conn,
		sess:       sess,
		log:        log.WithField("conn", uuid.NewString()),
		subscribed: make(map[uint32]context.CancelFunc),
		chunkCh:    make(chan chunkEvent, 64),
	}
}

// Run drives the gateway's Running state until the session shuts down, the
// client disconnects, or ctx is cancelled, then enters Draining before
// returning. A Terminated frame is sent only when the session shut down; a
// client disconnect or a cancelled ctx ends the loop without one. Run blocks
// until the connection is fully torn down.
func (g *Gateway) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer g.drain()

	shellsSub := g.sess.SubscribeShells()
	if initial, ok := shellsSub.Next(ctx); ok {
		if err := g.send(shellsFrame(initial)); err != nil {
			return
		}
	}
	shellsCh := make(chan []session.ShellView)
	go g.pumpShells(ctx, shellsSub, shellsCh)

	inboundCh := make(chan inboundFrame)
	inboundErrCh := make(chan error, 1)
	go g.pumpInbound(ctx, inboundCh, inboundErrCh)

	for {
		select {
		case <-g.sess.Done():
			g.send(terminatedFrame())
			return

		case <-ctx.Done():
			return

		case snap, ok := <-shellsCh:
			if !ok {
				continue
			}
			if err := g.send(shellsFrame(snap)); err != nil {
				return
			}

		case ev := <-g.chunkCh:
			if err := g.send(chunksFrame(ev.shellID, ev.fragments)); err != nil {
				return
			}

		case frame, ok := <-inboundCh:
			if !ok {
				return
			}
			g.sess.Access()
			if g.handleInbound(ctx, frame) {
				return
			}

		case err := <-inboundErrCh:
			g.log.Debugf("client connection ended: %v", err)
			return
		}
	}
}

// drain cancels every subscribe-spawned task and waits for them to exit,
// then closes the connection. This is the Draining -> Terminal transition.
func (g *Gateway) drain() {
	g.subMu.Lock()
	for _, cancel := range g.subscribed {
		cancel()
	}
	g.subMu.Unlock()
	g.wg.Wait()
	_ = g.conn.Close()
}

func (g *Gateway) pumpShells(ctx context.Context, sub *session.ShellsSubscription, out chan<- []session.ShellView) {
	for {
		snap, ok := sub.Next(ctx)
		if !ok {
			return
		}
		select {
		case out <- snap:
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) pumpInbound(ctx context.Context, out chan<- inboundFrame, errCh chan<- error) {
	for {
		messageType, raw, err := g.conn.ReadMessage()
		if err != nil {
			errCh <- err
			return
		}
		if messageType != websocket.BinaryMessage {
			// Text frames (and control frames, handled by gorilla's
			// defaults) carry no protocol meaning here; log and ignore.
			g.log.Debugf("ignoring non-binary frame of type %d", messageType)
			continue
		}
		frame, err := decodeInbound(raw)
		if err != nil {
			g.log.Warnf("invalid client frame: %v", err)
			continue
		}
		select {
		case out <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// handleInbound dispatches one decoded client frame. It returns true if the
// gateway should terminate as a result.
func (g *Gateway) handleInbound(ctx context.Context, frame inboundFrame) (terminate bool) {
	switch frame.Type {
	case typeCreate:
		id := g.sess.NextID()
		if err := g.sess.Enqueue(ctx, session.ServerMessage{Kind: session.CreateShell, ShellID: id}); err != nil {
			g.log.Warnf("failed to enqueue CreateShell: %v", err)
		}

	case typeClose:
		if err := g.sess.Enqueue(ctx, session.ServerMessage{Kind: session.CloseShell, ShellID: frame.ID}); err != nil {
			g.log.Warnf("failed to enqueue CloseShell: %v", err)
		}

	case typeMove:
		var size *session.WindowSize
		if frame.Size != nil {
			domainSize := frame.Size.toDomain()
			size = &domainSize
		}
		if err := g.sess.MoveShell(frame.ID, size); err != nil {
			_ = g.send(errorFrame(err.Error()))
			break
		}
		if size != nil {
			msg := session.ServerMessage{Kind: session.Resize, ShellID: frame.ID, Rows: size.Rows, Cols: size.Cols}
			if err := g.sess.Enqueue(ctx, msg); err != nil {
				g.log.Warnf("failed to enqueue Resize: %v", err)
			}
		}

	case typeData:
		msg := session.ServerMessage{Kind: session.Input, ShellID: frame.ID, Data: frame.Data}
		if err := g.sess.Enqueue(ctx, msg); err != nil {
			g.log.Warnf("failed to enqueue Input: %v", err)
		}

	case typeSubscribe:
		g.subscribe(ctx, frame.ID, frame.StartChunk)

	default:
		g.log.Warnf("unknown client frame type %q", frame.Type)
	}
	return false
}

// subscribe spawns the chunk-subscription task for id on first request;
// subsequent Subscribe frames for an id already being tracked are silently
// ignored, since subscription is idempotent per gateway.
func (g *Gateway) subscribe(parent context.Context, id uint32, startChunk uint64) {
	g.subMu.Lock()
	if _, already := g.subscribed[id]; already {
		g.subMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	g.subscribed[id] = cancel
	g.subMu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		sub := g.sess.SubscribeChunks(id, startChunk)
		for {
			batch, ok := sub.Next(ctx)
			if !ok {
				return
			}
			select {
			case g.chunkCh <- chunkEvent{shellID: id, fragments: batch}:
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (g *Gateway) send(f outboundFrame) error {
	raw, err := encode(f)
	if err != nil {
		g.log.Errorf("failed to encode outbound frame %q: %v", f.Type, err)
		return nil
	}
	return g.conn.WriteMessage(websocket.BinaryMessage, raw)
}
