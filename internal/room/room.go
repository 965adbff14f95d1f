// Package room implements the per-room actor: an owner goroutine that
// serializes every seat and live-state mutation through an inbox channel and
// broadcasts the full seat list to every connection on each change.
package room

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"flaparena/internal/protocol"
)

var (
	ErrRoomFull      = errors.New("room is full")
	ErrRoomClosed    = errors.New("room is closed")
	ErrBadPassword   = errors.New("wrong room password")
	ErrAlreadySeated = errors.New("connection already holds a seat")
)

// MaxSeats is the seat capacity of every room; index 0 is the host.
const MaxSeats = 4

// drainGrace bounds how long a closed room keeps answering stragglers.
const drainGrace = 5 * time.Second

type Phase string

const (
	PhaseLobby    Phase = "Lobby"
	PhaseStarting Phase = "Starting"
	PhaseInMatch  Phase = "InMatch"
	PhaseClosed   Phase = "Closed"
)

// LiveState is one seat's in-match state, meaningful once the phase leaves
// the lobby. Reset to defaults on restart.
type LiveState struct {
	X, Y, Rot   float64
	Respawning  bool
	Penetrating bool
	Frozen      bool
}

type Seat struct {
	Index int
	Conn  Conn
	Name  string
	Skin  int
	Ready bool
	Host  bool
	Live  LiveState
}

// Config carries the immutable identity of a room. OnClosed runs from the
// room goroutine exactly once, after the room stops accepting messages.
type Config struct {
	Code     string
	Password string
	Logger   *zap.Logger
	OnClosed func(code string)
}

type Room struct {
	code     string
	password string
	phase    Phase
	seats    []*Seat
	ready    *readyCursor
	inbox    chan Msg
	occupied atomic.Int32
	closed   atomic.Bool
	onClosed func(code string)
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates the room and starts its owner goroutine.
func New(parent context.Context, cfg Config) *Room {
	ctx, cancel := context.WithCancel(parent)
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := &Room{
		code:     cfg.Code,
		password: cfg.Password,
		phase:    PhaseLobby,
		inbox:    make(chan Msg, 64),
		onClosed: cfg.OnClosed,
		log:      log.With(zap.String("room", cfg.Code)),
		ctx:      ctx,
		cancel:   cancel,
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) Code() string { return r.code }

// HasPassword reports whether joining requires a secret.
func (r *Room) HasPassword() bool { return r.password != "" }

// Occupied is the seat count mirrored out of the actor loop, so the
// directory can compute the open/full partitions without a round trip.
func (r *Room) Occupied() int { return int(r.occupied.Load()) }

// Closed reports whether the room has been dissolved.
func (r *Room) Closed() bool { return r.closed.Load() }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown(false)
			return
		case m := <-r.inbox:
			r.handle(m)
			if r.closed.Load() {
				return
			}
		}
	}
}

func (r *Room) handle(m Msg) {
	switch msg := m.(type) {
	case Join:
		msg.Reply <- r.join(msg.Conn, msg.Password)
	case Leave:
		r.leave(msg.Seat)
	case Disconnect:
		r.disconnect(msg.Conn)
	case Kick:
		r.kick(msg.From, msg.Target)
	case UpdateSeat:
		r.updateSeat(msg)
	case UpdateLive:
		r.updateLive(msg)
	case StartMatch:
		r.start(msg.From)
	case ReadyConfirm:
		r.readyConfirm(msg.Seat)
	case PipeGap:
		r.pipe(msg)
	case RestartMatch:
		r.restart(msg.From)
	case UseFreeze:
		r.useFreeze(msg.Seat)
	case UseTeleport:
		r.useTeleport(msg.Seat)
	case CloseRoom:
		if msg.From == nil || r.isHostConn(msg.From) {
			r.shutdown(true)
		}
	case GetView:
		msg.Reply <- r.view()
	}
}

// drain answers stragglers for a grace period after the loop exits, so no
// worker blocks on a reply from a dead room.
func (r *Room) drain() {
	timeout := time.After(drainGrace)
	for {
		select {
		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- JoinResult{Err: ErrRoomClosed}
			case GetView:
				msg.Reply <- View{Code: r.code, Phase: PhaseClosed, ReadyCursor: -1}
			}
		case <-timeout:
			return
		}
	}
}

func (r *Room) join(conn Conn, password string) JoinResult {
	if r.phase == PhaseClosed {
		return JoinResult{Err: ErrRoomClosed}
	}
	if len(r.seats) >= MaxSeats {
		return JoinResult{Err: ErrRoomFull}
	}
	if r.password != "" && password != r.password {
		return JoinResult{Err: ErrBadPassword}
	}
	// one seat per connection
	for _, s := range r.seats {
		if s.Conn == conn {
			return JoinResult{Err: ErrAlreadySeated}
		}
	}

	idx := len(r.seats)
	seat := &Seat{
		Index: idx,
		Conn:  conn,
		Name:  fmt.Sprintf("Player %d", idx+1),
		Host:  idx == 0,
	}
	r.seats = append(r.seats, seat)
	r.occupied.Store(int32(len(r.seats)))

	role := "member"
	if seat.Host {
		role = "host"
	}
	r.send(seat, protocol.EncodeJoined(r.code, idx, role))
	r.broadcastLobby()
	r.log.Info("seat joined", zap.Int("seat", idx), zap.String("role", role))
	return JoinResult{Seat: idx}
}

func (r *Room) leave(seat int) {
	if seat < 0 || seat >= len(r.seats) {
		return
	}
	r.removeSeat(seat)
}

func (r *Room) disconnect(conn Conn) {
	for i, s := range r.seats {
		if s.Conn == conn {
			r.removeSeat(i)
			return
		}
	}
}

func (r *Room) kick(from Conn, target int) {
	if !r.isHostConn(from) {
		return
	}
	if target <= 0 || target >= len(r.seats) {
		return
	}
	r.send(r.seats[target], protocol.EncodeKicked())
	r.removeSeat(target)
	r.log.Info("seat kicked", zap.Int("seat", target))
}

// removeSeat drops one seat and compacts the rest: remaining non-host seats
// are renumbered contiguously from 1, the earliest seat is promoted to host
// when the host slot empties, and every reindexed connection is told its new
// index so stale references die out.
func (r *Room) removeSeat(idx int) {
	r.seats = append(r.seats[:idx], r.seats[idx+1:]...)
	r.occupied.Store(int32(len(r.seats)))

	if len(r.seats) == 0 {
		r.log.Info("room emptied")
		r.shutdown(false)
		return
	}

	for i, s := range r.seats {
		moved := s.Index != i
		s.Index = i
		s.Host = i == 0
		if moved {
			r.send(s, protocol.EncodeUpdateID(i))
		}
	}

	// A mid-handshake departure would desync the cursor; drop back to lobby.
	if r.phase == PhaseStarting {
		r.ready = nil
		r.phase = PhaseLobby
	}
	r.broadcast()
}

func (r *Room) updateSeat(msg UpdateSeat) {
	if msg.Seat < 0 || msg.Seat >= len(r.seats) {
		return
	}
	s := r.seats[msg.Seat]
	s.Name = msg.Name
	s.Skin = msg.Skin
	s.Ready = msg.Ready
	r.broadcastLobby()
}

func (r *Room) updateLive(msg UpdateLive) {
	if r.phase != PhaseInMatch {
		return
	}
	if msg.Seat < 0 || msg.Seat >= len(r.seats) {
		return
	}
	r.seats[msg.Seat].Live = LiveState{
		X: msg.X, Y: msg.Y, Rot: msg.Rot,
		Respawning:  msg.Respawning,
		Penetrating: msg.Penetrating,
		Frozen:      msg.Frozen,
	}
	r.broadcastGame()
}

func (r *Room) start(from Conn) {
	if !r.isHostConn(from) || r.phase != PhaseLobby || len(r.seats) == 0 {
		return
	}
	r.phase = PhaseStarting
	r.ready = newReadyCursor(len(r.seats))
	r.broadcastRaw(protocol.EncodeStart())
	r.broadcastRaw(protocol.EncodeReadyNext(0))
	r.log.Info("ready handshake started", zap.Int("seats", len(r.seats)))
}

func (r *Room) readyConfirm(seat int) {
	if r.ready == nil {
		return
	}
	before := r.ready.cursor()
	r.ready.confirm(seat)
	if !r.ready.done() {
		// early or duplicate confirmations leave the cursor in place and
		// warrant no new prompt
		if cur := r.ready.cursor(); cur != before {
			r.broadcastRaw(protocol.EncodeReadyNext(cur))
		}
		return
	}
	r.ready = nil
	r.phase = PhaseInMatch
	r.broadcastRaw(protocol.EncodeAllReady())
	r.log.Info("all seats ready, match started")
}

func (r *Room) pipe(msg PipeGap) {
	if !r.isHostConn(msg.From) {
		return
	}
	r.broadcastRaw(protocol.EncodePipe(r.code, msg.GapY))
}

func (r *Room) restart(from Conn) {
	if !r.isHostConn(from) {
		return
	}
	r.phase = PhaseLobby
	r.ready = nil
	for _, s := range r.seats {
		s.Live = LiveState{}
		s.Ready = false
	}
	r.broadcastRaw(protocol.EncodeRestart())
	r.broadcastLobby()
}

func (r *Room) useFreeze(userSeat int) {
	target := r.furthestOther(userSeat)
	if target == nil {
		return
	}
	r.send(target, protocol.EncodeGetFrozen(userSeat))
}

func (r *Room) useTeleport(userSeat int) {
	if userSeat < 0 || userSeat >= len(r.seats) {
		return
	}
	target := r.furthestOther(userSeat)
	if target == nil {
		return
	}
	user := r.seats[userSeat]
	user.Live.X, target.Live.X = target.Live.X, user.Live.X
	user.Live.Y, target.Live.Y = target.Live.Y, user.Live.Y

	// both notifications are attempted even if one write fails
	r.send(user, protocol.EncodeTeleportTo(user.Live.X, user.Live.Y))
	r.send(target, protocol.EncodeTeleportTo(target.Live.X, target.Live.Y))
	r.broadcastGame()
}

// furthestOther picks the seat with the maximum x among all seats except
// userSeat; ties resolve to the first seat in seat order.
func (r *Room) furthestOther(userSeat int) *Seat {
	var best *Seat
	for _, s := range r.seats {
		if s.Index == userSeat {
			continue
		}
		if best == nil || s.Live.X > best.Live.X {
			best = s
		}
	}
	return best
}

func (r *Room) shutdown(notice bool) {
	if r.closed.Swap(true) {
		return
	}
	r.phase = PhaseClosed
	if notice {
		r.broadcastRaw(protocol.EncodeRoomClosed(r.code))
	}
	r.seats = nil
	r.occupied.Store(0)
	r.cancel()
	if r.onClosed != nil {
		r.onClosed(r.code)
	}
	go r.drain()
	r.log.Info("room closed")
}

func (r *Room) isHostConn(conn Conn) bool {
	return len(r.seats) > 0 && r.seats[0].Conn == conn
}

// broadcast serializes the entire current seat list for the room's phase
// and sends it to every seat. Never a delta: last write wins.
func (r *Room) broadcast() {
	if r.phase == PhaseInMatch {
		r.broadcastGame()
		return
	}
	r.broadcastLobby()
}

func (r *Room) broadcastLobby() {
	players := make([]protocol.LobbyPlayer, len(r.seats))
	for i, s := range r.seats {
		players[i] = protocol.LobbyPlayer{
			Seat: s.Index, Name: s.Name, Skin: s.Skin,
			Ready: s.Ready, Host: s.Host,
		}
	}
	r.broadcastRaw(protocol.EncodeLobbyUpdate(players))
}

func (r *Room) broadcastGame() {
	players := make([]protocol.GamePlayer, len(r.seats))
	for i, s := range r.seats {
		players[i] = protocol.GamePlayer{
			Seat: s.Index, X: s.Live.X, Y: s.Live.Y, Rot: s.Live.Rot,
			Respawning:  s.Live.Respawning,
			Penetrating: s.Live.Penetrating,
			Frozen:      s.Live.Frozen,
		}
	}
	r.broadcastRaw(protocol.EncodeGameUpdate(players))
}

func (r *Room) broadcastRaw(payload []byte) {
	for _, s := range r.seats {
		r.send(s, payload)
	}
}

func (r *Room) send(s *Seat, payload []byte) {
	if err := s.Conn.Send(payload); err != nil {
		r.log.Debug("seat write failed", zap.Int("seat", s.Index), zap.Error(err))
	}
}

func (r *Room) view() View {
	v := View{Code: r.code, Phase: r.phase, ReadyCursor: -1}
	if r.ready != nil {
		v.ReadyCursor = r.ready.cursor()
	}
	v.Seats = make([]SeatView, len(r.seats))
	for i, s := range r.seats {
		v.Seats[i] = SeatView{
			Index: s.Index, Name: s.Name, Skin: s.Skin,
			Ready: s.Ready, Host: s.Host, Live: s.Live,
		}
	}
	return v
}
