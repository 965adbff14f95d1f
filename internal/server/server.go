// Package server accepts persistent TCP connections and runs one worker per
// connection: read with a short deadline, feed the frame decoder, dispatch
// complete commands into the directory and room actors.
package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"flaparena/internal/directory"
	"flaparena/internal/protocol"
	"flaparena/internal/room"
)

// Config tunes the listener. ReadTimeout is the poll tick: a read deadline
// expiry is not an error, it is the worker checking the running flag.
type Config struct {
	Addr        string
	ReadTimeout time.Duration
}

type Server struct {
	addr        string
	readTimeout time.Duration
	dir         *directory.Directory
	log         *zap.Logger
	listener    net.Listener
	running     atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg Config, dir *directory.Directory, log *zap.Logger) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		addr:        cfg.Addr,
		readTimeout: cfg.ReadTimeout,
		dir:         dir,
		log:         log,
	}
}

// Start listens and accepts until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Listen binds the TCP address. Split from Serve so tests can bind :0 and
// read the assigned port before accepting.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.running.Store(true)
	s.log.Info("listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Serve accepts connections until ctx is cancelled or Stop is called.
func (s *Server) Serve(ctx context.Context) error {
	ln := s.listener
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	for s.running.Load() {
		conn, err := ln.Accept()
		if err != nil {
			if s.running.Load() && !errors.Is(err, net.ErrClosed) {
				s.log.Error("accept failed", zap.Error(err))
				continue
			}
			break
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.HandleConn(conn)
		}()
	}
	s.wg.Wait()
	return nil
}

// Stop closes the listener; in-flight workers drain on their next poll tick.
func (s *Server) Stop() {
	if !s.running.Swap(false) {
		return
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// Addr is the bound listen address, for tests that listen on :0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// HandleConn runs one connection's session until the stream dies. It is
// also the entry point for websocket-bridged connections.
func (s *Server) HandleConn(conn net.Conn) {
	sess := &session{
		id:  uuid.NewString(),
		out: newConnWriter(conn),
		dec: protocol.NewDecoder(protocol.ClientKeywords),
		srv: s,
	}
	defer sess.out.Close()
	sess.log = s.log.With(
		zap.String("conn_id", sess.id),
		zap.String("remote", conn.RemoteAddr().String()),
	)
	sess.log.Info("connection opened")

	buf := make([]byte, 4096)
	for s.running.Load() {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		n, err := conn.Read(buf)
		if n > 0 {
			sess.dec.Write(buf[:n])
			for {
				frame, ok := sess.dec.Next()
				if !ok {
					break
				}
				sess.handle(frame)
			}
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue // poll tick
			}
			break
		}
	}

	sess.disconnect()
	sess.log.Info("connection closed")
}

// session is one connection's server-side state. Commands from a single
// connection are processed in arrival order by its own worker.
type session struct {
	id   string
	out  *connWriter
	dec  *protocol.Decoder
	srv  *Server
	room *room.Room
	log  *zap.Logger
}

func (c *session) handle(f protocol.Frame) {
	if f.Kind != protocol.FrameToken {
		// clients never push JSON upstream
		return
	}

	switch f.Keyword() {
	case protocol.CmdGameRoom:
		c.listRooms()
	case protocol.CmdCreateRoom:
		c.createRoom(f.Fields)
	case protocol.CmdJoinRoom:
		c.joinRoom(f.Fields)
	case protocol.CmdLeaveRoom:
		c.leaveRoom(f.Fields)
	case protocol.CmdRemoveRoom:
		c.toRoomByCode(f.Fields, 2, func(r *room.Room) room.Msg {
			return room.CloseRoom{From: c.out}
		})
	case protocol.CmdKick:
		c.withSeatField(f.Fields, func(r *room.Room, target int) room.Msg {
			return room.Kick{From: c.out, Target: target}
		})
	case protocol.CmdUpdate:
		c.updateSeat(f.Fields)
	case protocol.CmdStart:
		if c.room != nil {
			c.room.Inbox() <- room.StartMatch{From: c.out}
		}
	case protocol.CmdReady:
		c.withSeatField(f.Fields, func(r *room.Room, seat int) room.Msg {
			return room.ReadyConfirm{Seat: seat}
		})
	case protocol.CmdPipe:
		c.withSeatField(f.Fields, func(r *room.Room, gapY int) room.Msg {
			return room.PipeGap{From: c.out, GapY: gapY}
		})
	case protocol.CmdRestart:
		if c.room != nil {
			c.room.Inbox() <- room.RestartMatch{From: c.out}
		}
	case protocol.CmdUseFreeze:
		c.withSeatField(f.Fields, func(r *room.Room, seat int) room.Msg {
			return room.UseFreeze{Seat: seat}
		})
	case protocol.CmdUseTeleport:
		c.withSeatField(f.Fields, func(r *room.Room, seat int) room.Msg {
			return room.UseTeleport{Seat: seat}
		})
	case protocol.CmdState:
		c.updateLive(f.Fields)
	}
}

func (c *session) listRooms() {
	reply := make(chan []protocol.RoomInfo, 1)
	c.srv.dir.Inbox() <- directory.ListOpen{Reply: reply}
	if err := c.out.Send(protocol.EncodeRoomList(<-reply)); err != nil {
		c.log.Debug("room list write failed", zap.Error(err))
	}
}

func (c *session) createRoom(fields []string) {
	if len(fields) < 2 {
		return
	}
	code := fields[1]
	password := ""
	if len(fields) > 2 {
		password = fields[2]
	}
	reply := make(chan directory.CreateResult, 1)
	c.srv.dir.Inbox() <- directory.CreateRoom{Code: code, Password: password, Reply: reply}
	res := <-reply
	if res.Err != nil {
		c.log.Info("create room refused", zap.String("room", code), zap.Error(res.Err))
		return
	}
	c.join(res.Room, password)
}

func (c *session) joinRoom(fields []string) {
	if len(fields) < 2 {
		return
	}
	password := ""
	if len(fields) > 2 {
		password = fields[2]
	}
	if r := c.lookup(fields[1]); r != nil {
		c.join(r, password)
	}
}

func (c *session) join(r *room.Room, password string) {
	// one seat per connection: joining anywhere vacates the current seat
	// first, even when the join is later refused
	c.releaseSeat()
	reply := make(chan room.JoinResult, 1)
	r.Inbox() <- room.Join{Conn: c.out, Password: password, Reply: reply}
	res := <-reply
	if res.Err != nil {
		// refused joins assign no seat and surface nothing to other seats
		c.log.Info("join refused", zap.String("room", r.Code()), zap.Error(res.Err))
		return
	}
	c.room = r
}

func (c *session) leaveRoom(fields []string) {
	if len(fields) < 3 {
		return
	}
	seat, err := protocol.ParseInt(fields[2])
	if err != nil {
		return
	}
	if r := c.lookup(fields[1]); r != nil {
		r.Inbox() <- room.Leave{Seat: seat}
	}
	c.room = nil
}

func (c *session) updateSeat(fields []string) {
	// Update:code:seat:name:skinId:readyBool
	if len(fields) < 6 {
		return
	}
	seat, err := protocol.ParseInt(fields[2])
	if err != nil {
		return
	}
	skin, err := protocol.ParseInt(fields[4])
	if err != nil {
		return
	}
	if r := c.lookup(fields[1]); r != nil {
		r.Inbox() <- room.UpdateSeat{
			Seat:  seat,
			Name:  fields[3],
			Skin:  skin,
			Ready: protocol.ParseBool(fields[5]),
		}
	}
}

func (c *session) updateLive(fields []string) {
	// State:code:seat:x:y:rot:respawn:penetration:frozen
	if len(fields) < 9 {
		return
	}
	seat, err := protocol.ParseInt(fields[2])
	if err != nil {
		return
	}
	x, errX := protocol.ParseFloat(fields[3])
	y, errY := protocol.ParseFloat(fields[4])
	rot, errR := protocol.ParseFloat(fields[5])
	if errX != nil || errY != nil || errR != nil {
		return
	}
	if r := c.lookup(fields[1]); r != nil {
		r.Inbox() <- room.UpdateLive{
			Seat: seat, X: x, Y: y, Rot: rot,
			Respawning:  protocol.ParseBool(fields[6]),
			Penetrating: protocol.ParseBool(fields[7]),
			Frozen:      protocol.ParseBool(fields[8]),
		}
	}
}

// withSeatField handles the `Keyword:code:n` command family.
func (c *session) withSeatField(fields []string, build func(*room.Room, int) room.Msg) {
	if len(fields) < 3 {
		return
	}
	n, err := protocol.ParseInt(fields[2])
	if err != nil {
		return
	}
	if r := c.lookup(fields[1]); r != nil {
		r.Inbox() <- build(r, n)
	}
}

func (c *session) toRoomByCode(fields []string, minFields int, build func(*room.Room) room.Msg) {
	if len(fields) < minFields {
		return
	}
	if r := c.lookup(fields[1]); r != nil {
		r.Inbox() <- build(r)
	}
}

// lookup resolves a room code, reusing the session's current room when the
// code matches so the hot in-match path skips the directory round trip.
func (c *session) lookup(code string) *room.Room {
	if c.room != nil && c.room.Code() == code && !c.room.Closed() {
		return c.room
	}
	reply := make(chan *room.Room, 1)
	c.srv.dir.Inbox() <- directory.GetRoom{Code: code, Reply: reply}
	return <-reply
}

// disconnect is the implicit Leave: the dead connection's seat is vacated
// and the room compacts as usual.
func (c *session) disconnect() {
	c.releaseSeat()
}

func (c *session) releaseSeat() {
	if c.room != nil && !c.room.Closed() {
		c.room.Inbox() <- room.Disconnect{Conn: c.out}
	}
	c.room = nil
}
