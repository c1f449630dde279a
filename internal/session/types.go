package session

// WindowSize describes a shell's position and dimensions as presented to
// browser clients. The zero value is never used directly; DefaultWindowSize
// is the value a newly created shell starts with.
type WindowSize struct {
	X    int32
	Y    int32
	Rows uint16
	Cols uint16
}

// DefaultWindowSize is assigned to a shell when it is added, before any
// client has moved or resized it.
var DefaultWindowSize = WindowSize{X: 0, Y: 0, Rows: 24, Cols: 80}

// Fragment is one append to a shell's byte log: a chunk of UTF-8 text
// timestamped in milliseconds relative to the session's creation instant.
type Fragment struct {
	TimestampMS uint64
	Data        string
}

// ShellView is one entry of the shells_view broadcast: a shell's id paired
// with its current presentation geometry, in display order.
type ShellView struct {
	ID   uint32
	Size WindowSize
}
