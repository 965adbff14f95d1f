// Package client implements the network side of a game client: dialing the
// server, one sender per command, and background listeners that rebuild
// room/game snapshots from the raw stream without ever blocking the render
// loop.
package client

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"flaparena/internal/protocol"
)

var ErrClosed = errors.New("connection closed")

const (
	dialTimeout = 5 * time.Second
	readPoll    = 500 * time.Millisecond
)

// Notice is a discrete server message (ReadyNext, GetFrozen, Pipe, ...)
// delivered to the UI besides the snapshot slots.
type Notice struct {
	Keyword string
	Fields  []string
}

// Client owns one persistent connection. Snapshots land in single
// overwritten slots the render loop polls once per frame; they are never
// queued.
type Client struct {
	conn    net.Conn
	dec     *protocol.Decoder
	readBuf []byte

	writeMu sync.Mutex

	mu   sync.Mutex
	code string
	seat int

	lobby atomic.Pointer[protocol.LobbyUpdate]
	game  atomic.Pointer[protocol.GameUpdate]
	rooms atomic.Pointer[[]protocol.RoomInfo]

	notices  chan Notice
	closed   atomic.Bool // connection is dead
	roomGone atomic.Bool // kicked or room dissolved; sticky until next join
	quit     chan struct{}
	quitOnce sync.Once
}

// Dial connects and starts the lobby-phase listener.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:    conn,
		dec:     protocol.NewDecoder(protocol.ServerKeywords),
		readBuf: make([]byte, 4096),
		notices: make(chan Notice, 64),
		quit:    make(chan struct{}),
		seat:    -1,
	}
	go c.listenLobby()
	return c, nil
}

func (c *Client) Close() error {
	c.quitOnce.Do(func() { close(c.quit) })
	c.closed.Store(true)
	return c.conn.Close()
}

// Closed reports a dead connection; the render loop must check it before
// sending further commands.
func (c *Client) Closed() bool { return c.closed.Load() }

// RoomGone reports an explicit kick or room-closure notice. It stays set
// until the next create/join so the UI routes back to browsing exactly once.
func (c *Client) RoomGone() bool { return c.roomGone.Load() }

// LobbySnapshot is the latest LobbyUpdate, nil before the first one.
func (c *Client) LobbySnapshot() *protocol.LobbyUpdate { return c.lobby.Load() }

// GameSnapshot is the latest GameUpdate, nil before the first one.
func (c *Client) GameSnapshot() *protocol.GameUpdate { return c.game.Load() }

// Rooms is the latest browse listing.
func (c *Client) Rooms() []protocol.RoomInfo {
	if p := c.rooms.Load(); p != nil {
		return *p
	}
	return nil
}

// Notices delivers discrete server messages. When the buffer is full new
// notices are dropped; snapshots are unaffected.
func (c *Client) Notices() <-chan Notice { return c.notices }

// Seat is this client's current seat index, -1 outside a room. Updated by
// Joined and UpdateID messages.
func (c *Client) Seat() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seat
}

func (c *Client) RoomCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

// Command senders.

func (c *Client) RequestRooms() error { return c.write(protocol.EncodeGameRoom()) }

func (c *Client) CreateRoom(code, password string) error {
	c.roomGone.Store(false)
	return c.write(protocol.EncodeCreateRoom(code, password))
}

func (c *Client) JoinRoom(code, password string) error {
	c.roomGone.Store(false)
	return c.write(protocol.EncodeJoinRoom(code, password))
}

func (c *Client) LeaveRoom() error {
	code, seat := c.roomRef()
	c.clearRoom()
	return c.write(protocol.EncodeLeaveRoom(code, seat))
}

func (c *Client) RemoveRoom() error {
	code, _ := c.roomRef()
	return c.write(protocol.EncodeRemoveRoom(code))
}

func (c *Client) Kick(target int) error {
	code, _ := c.roomRef()
	return c.write(protocol.EncodeKick(code, target))
}

func (c *Client) UpdateSeat(name string, skin int, ready bool) error {
	code, seat := c.roomRef()
	return c.write(protocol.EncodeUpdate(code, seat, name, skin, ready))
}

func (c *Client) Start() error { return c.write(protocol.EncodeStartCmd()) }

func (c *Client) Ready() error {
	code, seat := c.roomRef()
	return c.write(protocol.EncodeReady(code, seat))
}

func (c *Client) SendPipe(gapY int) error {
	code, _ := c.roomRef()
	return c.write(protocol.EncodePipeCmd(code, gapY))
}

func (c *Client) Restart() error { return c.write(protocol.EncodeRestartCmd()) }

func (c *Client) UseFreeze() error {
	code, seat := c.roomRef()
	return c.write(protocol.EncodeUseFreeze(code, seat))
}

func (c *Client) UseTeleport() error {
	code, seat := c.roomRef()
	return c.write(protocol.EncodeUseTeleport(code, seat))
}

func (c *Client) SendState(x, y, rot float64, respawning, penetrating, frozen bool) error {
	code, seat := c.roomRef()
	return c.write(protocol.EncodeState(code, seat, x, y, rot, respawning, penetrating, frozen))
}

func (c *Client) write(p []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
	if _, err := c.conn.Write(p); err != nil {
		c.closed.Store(true)
		return err
	}
	return nil
}

func (c *Client) roomRef() (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code, c.seat
}

func (c *Client) clearRoom() {
	c.mu.Lock()
	c.code = ""
	c.seat = -1
	c.mu.Unlock()
}

// Phase listeners. The lobby listener runs from dial; AllReady hands off to
// the match listener, Restart hands back. Both run the same decoder over
// the same unconsumed buffer, so no byte is lost across the handoff.

func (c *Client) listenLobby() {
	for {
		f, ok := c.readFrame()
		if !ok {
			return
		}
		c.dispatch(f)
		if f.Keyword() == protocol.MsgAllReady {
			go c.listenMatch()
			return
		}
	}
}

func (c *Client) listenMatch() {
	for {
		f, ok := c.readFrame()
		if !ok {
			return
		}
		c.dispatch(f)
		kw := f.Keyword()
		if kw == protocol.MsgRestart || kw == protocol.MsgKicked || kw == protocol.MsgRoomClosed {
			go c.listenLobby()
			return
		}
	}
}

func (c *Client) readFrame() (protocol.Frame, bool) {
	for {
		if f, ok := c.dec.Next(); ok {
			return f, true
		}
		select {
		case <-c.quit:
			return protocol.Frame{}, false
		default:
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readPoll))
		n, err := c.conn.Read(c.readBuf)
		if n > 0 {
			c.dec.Write(c.readBuf[:n])
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue // poll tick
			}
			c.closed.Store(true)
			return protocol.Frame{}, false
		}
	}
}

func (c *Client) dispatch(f protocol.Frame) {
	if f.Kind == protocol.FrameJSON {
		c.dispatchJSON(f.Raw)
		return
	}

	switch f.Keyword() {
	case protocol.MsgJoined:
		// Joined:<code>:<seat>:<role>
		if len(f.Fields) >= 3 {
			if seat, err := protocol.ParseInt(f.Fields[2]); err == nil {
				c.mu.Lock()
				c.code = f.Fields[1]
				c.seat = seat
				c.mu.Unlock()
			}
		}
	case protocol.MsgUpdateID:
		if len(f.Fields) >= 2 {
			if seat, err := protocol.ParseInt(f.Fields[1]); err == nil {
				c.mu.Lock()
				c.seat = seat
				c.mu.Unlock()
			}
		}
	case protocol.MsgKicked, protocol.MsgRoomClosed:
		c.clearRoom()
		c.roomGone.Store(true)
	}

	c.notify(Notice{Keyword: f.Keyword(), Fields: f.Fields})
}

func (c *Client) dispatchJSON(raw []byte) {
	if len(raw) > 0 && raw[0] == '[' {
		var rooms []protocol.RoomInfo
		if json.Unmarshal(raw, &rooms) == nil {
			c.rooms.Store(&rooms)
		}
		return
	}

	var probe struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(raw, &probe) != nil {
		return
	}
	switch probe.Type {
	case protocol.TypeLobbyUpdate:
		var u protocol.LobbyUpdate
		if json.Unmarshal(raw, &u) == nil {
			c.lobby.Store(&u)
		}
	case protocol.TypeGameUpdate:
		var u protocol.GameUpdate
		if json.Unmarshal(raw, &u) == nil {
			c.game.Store(&u)
		}
	}
}

func (c *Client) notify(n Notice) {
	select {
	case c.notices <- n:
	default:
		// UI is behind; discrete notices are best-effort
	}
}

// RandomCode returns a 6-digit room code suggestion for room creation.
func RandomCode() string {
	const digits = "0123456789"
	code := make([]byte, 6)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			code[i] = '0'
			continue
		}
		code[i] = digits[n.Int64()]
	}
	if code[0] == '0' {
		code[0] = '1'
	}
	return string(code)
}
