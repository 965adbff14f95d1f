package server

import (
	"errors"
	"net"
	"sync"
	"time"
)

const (
	writeTimeout = 3 * time.Second
	outboxSize   = 64
)

var errSlowPeer = errors.New("outbound buffer overflow")

// connWriter is one connection's outbound side, shared between the owning
// worker and any room broadcasting to it. Sends enqueue into a buffered
// outbox drained by a dedicated writer goroutine, so a stalled peer never
// holds up the room actor behind it. A full outbox means the peer stopped
// reading; the connection is dropped.
type connWriter struct {
	conn net.Conn
	out  chan []byte
	quit chan struct{}
	once sync.Once
}

func newConnWriter(conn net.Conn) *connWriter {
	w := &connWriter{
		conn: conn,
		out:  make(chan []byte, outboxSize),
		quit: make(chan struct{}),
	}
	go w.pump()
	return w
}

func (w *connWriter) pump() {
	for {
		select {
		case p := <-w.out:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := w.conn.Write(p); err != nil {
				w.Close()
				return
			}
		case <-w.quit:
			return
		}
	}
}

func (w *connWriter) Send(p []byte) error {
	select {
	case <-w.quit:
		return net.ErrClosed
	default:
	}
	select {
	case w.out <- p:
		return nil
	default:
		w.Close()
		return errSlowPeer
	}
}

// Close stops the pump and closes the connection; the session's read loop
// notices and vacates the seat.
func (w *connWriter) Close() error {
	var err error
	w.once.Do(func() {
		close(w.quit)
		err = w.conn.Close()
	})
	return err
}
