// Package ws bridges websocket clients into the TCP session layer: an
// accepted socket is wrapped as a net.Conn and handed to the same
// per-connection worker that serves raw TCP peers.
package ws

import (
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"flaparena/internal/server"
)

func Handler(srv *server.Server, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*"},
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}

		// NetConn gives the session worker the same deadline-driven read
		// loop it runs over TCP; message boundaries just become extra
		// split/merge cases the frame decoder already absorbs.
		nc := websocket.NetConn(r.Context(), conn, websocket.MessageText)
		srv.HandleConn(nc)
	}
}
