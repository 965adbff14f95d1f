package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"flaparena/internal/directory"
	"flaparena/internal/protocol"
)

// ListRooms serves the same open-room listing the TCP `Game Room` command
// returns, as a read-only browse/ops endpoint.
func ListRooms(dir *directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan []protocol.RoomInfo, 1)
		dir.Inbox() <- directory.ListOpen{Reply: reply}

		var rooms []protocol.RoomInfo
		select {
		case rooms = <-reply:
		case <-time.After(2 * time.Second):
			http.Error(w, "directory unavailable", http.StatusServiceUnavailable)
			return
		}
		if rooms == nil {
			rooms = []protocol.RoomInfo{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rooms)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
