// Package gateway implements the per-client connection loop: it decodes
// server-bound CBOR frames, mutates session state and/or enqueues
// ServerMessages, and multiplexes session events back to one framed
// WebSocket connection.
package gateway

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/blaxel-ai/session-core/internal/session"
)

// Client-bound (server -> browser) frame discriminants.
const (
	typeShells     = "shells"
	typeChunks     = "chunks"
	typeTerminated = "terminated"
	typeError      = "error"
)

// Server-bound (browser -> server) frame discriminants.
const (
	typeCreate    = "create"
	typeClose     = "close"
	typeMove      = "move"
	typeData      = "data"
	typeSubscribe = "subscribe"
)

// wireWindowSize mirrors session.WindowSize on the wire. It is a separate
// type so the CBOR field names (camelCase, per the wire schema) are decided
// here rather than leaking onto the domain type.
type wireWindowSize struct {
	X    int32  `cbor:"x"`
	Y    int32  `cbor:"y"`
	Rows uint16 `cbor:"rows"`
	Cols uint16 `cbor:"cols"`
}

func toWireSize(s session.WindowSize) wireWindowSize {
	return wireWindowSize{X: s.X, Y: s.Y, Rows: s.Rows, Cols: s.Cols}
}

func (w wireWindowSize) toDomain() session.WindowSize {
	return session.WindowSize{X: w.X, Y: w.Y, Rows: w.Rows, Cols: w.Cols}
}

// wireShellEntry is encoded as a two-element CBOR array, [id, size], per the
// fixed client-bound schema — not a {id,size} map.
type wireShellEntry struct {
	_    struct{} `cbor:",toarray"`
	ID   uint32
	Size wireWindowSize
}

// wireFragment is encoded as a two-element CBOR array, [ts, data], per the
// fixed client-bound schema — not a {ts,data} map.
type wireFragment struct {
	_           struct{} `cbor:",toarray"`
	TimestampMS uint64
	Data        string
}

// outboundFrame is every frame the gateway can send to a browser client,
// encoded as one internally-tagged CBOR object. Only the fields relevant to
// Type are populated; the rest are omitted from the wire entirely.
type outboundFrame struct {
	Type    string           `cbor:"type"`
	Shells  []wireShellEntry `cbor:"shells,omitempty"`
	ShellID uint32           `cbor:"shellId,omitempty"`
	Chunks  []wireFragment   `cbor:"chunks,omitempty"`
	Message string           `cbor:"message,omitempty"`
}

func shellsFrame(entries []session.ShellView) outboundFrame {
	wire := make([]wireShellEntry, len(entries))
	for i, e := range entries {
		wire[i] = wireShellEntry{ID: e.ID, Size: toWireSize(e.Size)}
	}
	return outboundFrame{Type: typeShells, Shells: wire}
}

func chunksFrame(shellID uint32, fragments []session.Fragment) outboundFrame {
	wire := make([]wireFragment, len(fragments))
	for i, f := range fragments {
		wire[i] = wireFragment{TimestampMS: f.TimestampMS, Data: f.Data}
	}
	return outboundFrame{Type: typeChunks, ShellID: shellID, Chunks: wire}
}

func terminatedFrame() outboundFrame {
	return outboundFrame{Type: typeTerminated}
}

func errorFrame(message string) outboundFrame {
	return outboundFrame{Type: typeError, Message: message}
}

func encode(f outboundFrame) ([]byte, error) {
	return cbor.Marshal(f)
}

// inboundFrame is every frame a browser client can send. Like
// outboundFrame, it's internally tagged by Type with unused fields left at
// their zero value.
type inboundFrame struct {
	Type       string          `cbor:"type"`
	ID         uint32          `cbor:"id,omitempty"`
	Size       *wireWindowSize `cbor:"size,omitempty"`
	Data       []byte          `cbor:"data,omitempty"`
	StartChunk uint64          `cbor:"startChunk,omitempty"`
}

func decodeInbound(raw []byte) (inboundFrame, error) {
	var f inboundFrame
	err := cbor.Unmarshal(raw, &f)
	return f, err
}
