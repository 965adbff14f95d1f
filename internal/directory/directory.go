// Package directory owns the registry of active rooms. One actor goroutine
// serializes creation, lookup and removal; the open/full split is a derived
// predicate over a single map, never two containers.
package directory

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"flaparena/internal/protocol"
	"flaparena/internal/room"
)

var ErrRoomExists = errors.New("room code already in use")

type Msg interface{ isDirectoryMsg() }

// CreateRoom registers a new room under a unique code.
type CreateRoom struct {
	Code     string
	Password string
	Reply    chan CreateResult
}

type CreateResult struct {
	Room *room.Room
	Err  error
}

// GetRoom looks a room up by code. Reply receives nil when unknown.
type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

// RemoveRoom drops a closed room from the registry. Rooms send this about
// themselves once their own loop has shut down.
type RemoveRoom struct{ Code string }

// ListOpen replies with the browse listing: rooms with a free seat, in
// code order.
type ListOpen struct{ Reply chan []protocol.RoomInfo }

// Shutdown dissolves every room and stops the directory.
type Shutdown struct{}

func (CreateRoom) isDirectoryMsg() {}
func (GetRoom) isDirectoryMsg()    {}
func (RemoveRoom) isDirectoryMsg() {}
func (ListOpen) isDirectoryMsg()   {}
func (Shutdown) isDirectoryMsg()   {}

type Directory struct {
	inbox  chan Msg
	rooms  map[string]*room.Room
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, log *zap.Logger) *Directory {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	d := &Directory{
		inbox:  make(chan Msg, 64),
		rooms:  make(map[string]*room.Room),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go d.loop()
	return d
}

func (d *Directory) Inbox() chan<- Msg { return d.inbox }

func (d *Directory) loop() {
	for {
		select {
		case <-d.ctx.Done():
			return
		case m := <-d.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				msg.Reply <- d.create(msg.Code, msg.Password)

			case GetRoom:
				r := d.rooms[msg.Code]
				if r != nil && r.Closed() {
					r = nil
				}
				msg.Reply <- r

			case RemoveRoom:
				// a stale removal must not evict a live room that
				// reclaimed the code
				if r, ok := d.rooms[msg.Code]; ok && r.Closed() {
					delete(d.rooms, msg.Code)
				}

			case ListOpen:
				msg.Reply <- d.listOpen()

			case Shutdown:
				for _, r := range d.rooms {
					r.Inbox() <- room.CloseRoom{}
				}
				clear(d.rooms)
				d.cancel()
				return
			}
		}
	}
}

func (d *Directory) create(code, password string) CreateResult {
	// a closed room whose RemoveRoom was dropped must not squat on its
	// code; the live entry below overwrites it
	if existing, ok := d.rooms[code]; ok && !existing.Closed() {
		return CreateResult{Err: ErrRoomExists}
	}
	r := room.New(d.ctx, room.Config{
		Code:     code,
		Password: password,
		Logger:   d.log,
		OnClosed: func(c string) {
			// runs on the room goroutine; never block it
			select {
			case d.inbox <- RemoveRoom{Code: c}:
			default:
			}
		},
	})
	d.rooms[code] = r
	d.log.Info("room created", zap.String("room", code),
		zap.Bool("password", password != ""))
	return CreateResult{Room: r}
}

// listOpen filters the registry down to joinable rooms: a room is in the
// open partition iff it holds fewer than the full seat count.
func (d *Directory) listOpen() []protocol.RoomInfo {
	out := make([]protocol.RoomInfo, 0, len(d.rooms))
	for code, r := range d.rooms {
		if r.Closed() {
			continue
		}
		occ := r.Occupied()
		if occ >= room.MaxSeats {
			continue
		}
		out = append(out, protocol.RoomInfo{
			Code:          code,
			HasPassword:   r.HasPassword(),
			OccupiedSeats: occ,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
