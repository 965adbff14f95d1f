package room

// Msg is the room actor's message set. All seat and live-state mutation
// happens inside the room's own loop; connection workers only send these.
type Msg interface{ isRoomMsg() }

// Conn is one seat's outbound side. Send must be safe to call from the room
// goroutine while the owning worker reads; a Send error never aborts a
// broadcast to the remaining seats.
type Conn interface {
	Send(p []byte) error
	Close() error
}

// Join asks for the next free seat. The creator joins first and takes the
// host slot (index 0).
type Join struct {
	Conn     Conn
	Password string
	Reply    chan JoinResult
}

type JoinResult struct {
	Seat int
	Err  error
}

// Leave vacates a seat by index.
type Leave struct{ Seat int }

// Disconnect vacates whichever seat owns the given connection. Sent by the
// connection worker when the stream dies; an unknown connection is ignored.
type Disconnect struct{ Conn Conn }

// Kick evicts a member seat. Only honored when From is the host connection.
type Kick struct {
	From   Conn
	Target int
}

// UpdateSeat mutates a seat's lobby flags and cosmetics.
type UpdateSeat struct {
	Seat  int
	Name  string
	Skin  int
	Ready bool
}

// UpdateLive mutates a seat's in-match state. Unknown seats are ignored.
type UpdateLive struct {
	Seat        int
	X, Y, Rot   float64
	Respawning  bool
	Penetrating bool
	Frozen      bool
}

// StartMatch begins the ready handshake. Host only.
type StartMatch struct{ From Conn }

// ReadyConfirm records one seat's ready confirmation.
type ReadyConfirm struct{ Seat int }

// PipeGap relays an obstacle gap from the authority seat to every seat.
type PipeGap struct {
	From Conn
	GapY int
}

// RestartMatch returns the room to the lobby phase. Host only.
type RestartMatch struct{ From Conn }

// UseFreeze freezes the furthest-progressed other seat.
type UseFreeze struct{ Seat int }

// UseTeleport swaps positions with the furthest-progressed other seat.
type UseTeleport struct{ Seat int }

// CloseRoom dissolves the room. Host only when From is non-nil; a nil From
// is the directory shutting the room down.
type CloseRoom struct{ From Conn }

// GetView reflects current state without data races. Test-only.
type GetView struct{ Reply chan View }

func (Join) isRoomMsg()         {}
func (Leave) isRoomMsg()        {}
func (Disconnect) isRoomMsg()   {}
func (Kick) isRoomMsg()         {}
func (UpdateSeat) isRoomMsg()   {}
func (UpdateLive) isRoomMsg()   {}
func (StartMatch) isRoomMsg()   {}
func (ReadyConfirm) isRoomMsg() {}
func (PipeGap) isRoomMsg()      {}
func (RestartMatch) isRoomMsg() {}
func (UseFreeze) isRoomMsg()    {}
func (UseTeleport) isRoomMsg()  {}
func (CloseRoom) isRoomMsg()    {}
func (GetView) isRoomMsg()      {}

// SeatView and View are race-free copies for GetView.
type SeatView struct {
	Index int
	Name  string
	Skin  int
	Ready bool
	Host  bool
	Live  LiveState
}

type View struct {
	Code        string
	Phase       Phase
	Seats       []SeatView
	ReadyCursor int // next expected seat, -1 when no handshake is running
}
