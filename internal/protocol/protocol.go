// Package protocol defines the wire format shared by the server and the
// client: colon-delimited token commands, brace-balanced JSON messages, and
// the incremental frame decoder that extracts both from a raw stream.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Client -> server command keywords.
const (
	CmdGameRoom    = "Game Room"
	CmdCreateRoom  = "Create Room"
	CmdJoinRoom    = "Join Room"
	CmdLeaveRoom   = "Leave Room"
	CmdRemoveRoom  = "Remove Room"
	CmdKick        = "Kick"
	CmdUpdate      = "Update"
	CmdStart       = "Start"
	CmdReady       = "Ready"
	CmdPipe        = "Pipe"
	CmdRestart     = "Restart"
	CmdUseFreeze   = "UseFreeze"
	CmdUseTeleport = "UseTeleport"
	CmdState       = "State"
)

// Server -> client token keywords.
const (
	MsgJoined     = "Joined"
	MsgKicked     = "Kicked"
	MsgUpdateID   = "UpdateID"
	MsgStart      = "Start"
	MsgReadyNext  = "ReadyNext"
	MsgAllReady   = "AllReady"
	MsgRestart    = "Restart"
	MsgGetFrozen  = "GetFrozen"
	MsgTeleportTo = "TeleportTo"
	MsgPipe       = "Pipe"
	MsgRoomClosed = "RoomClosed"
)

// JSON message type tags.
const (
	TypeLobbyUpdate = "LobbyUpdate"
	TypeGameUpdate  = "GameUpdate"
)

// ClientKeywords is the keyword set a server-side decoder accepts.
var ClientKeywords = keywordSet(
	CmdGameRoom, CmdCreateRoom, CmdJoinRoom, CmdLeaveRoom, CmdRemoveRoom,
	CmdKick, CmdUpdate, CmdStart, CmdReady, CmdPipe, CmdRestart,
	CmdUseFreeze, CmdUseTeleport, CmdState,
)

// ServerKeywords is the keyword set a client-side decoder accepts.
var ServerKeywords = keywordSet(
	MsgJoined, MsgKicked, MsgUpdateID, MsgStart, MsgReadyNext, MsgAllReady,
	MsgRestart, MsgGetFrozen, MsgTeleportTo, MsgPipe, MsgRoomClosed,
)

func keywordSet(words ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

// RoomInfo is one entry of the room-browse listing.
type RoomInfo struct {
	Code          string `json:"code"`
	HasPassword   bool   `json:"hasPassword"`
	OccupiedSeats int    `json:"occupiedSeats"`
}

// LobbyPlayer is one seat as seen in a LobbyUpdate snapshot.
type LobbyPlayer struct {
	Seat  int    `json:"seat"`
	Name  string `json:"name"`
	Skin  int    `json:"skin"`
	Ready bool   `json:"ready"`
	Host  bool   `json:"host"`
}

// GamePlayer is one seat as seen in a GameUpdate snapshot.
type GamePlayer struct {
	Seat        int     `json:"seat"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Rot         float64 `json:"rot"`
	Respawning  bool    `json:"respawning"`
	Penetrating bool    `json:"penetrating"`
	Frozen      bool    `json:"frozen"`
}

// LobbyUpdate is the full seat list broadcast on every lobby change.
type LobbyUpdate struct {
	Type    string        `json:"type"`
	Players []LobbyPlayer `json:"players"`
}

// GameUpdate is the full live-state list broadcast on every in-match change.
type GameUpdate struct {
	Type    string       `json:"type"`
	Players []GamePlayer `json:"players"`
}

// Token command encoders, client -> server. Every token unit ends with a
// newline; keywords never contain colons so splitting stays unambiguous.

func EncodeGameRoom() []byte { return line(CmdGameRoom) }

func EncodeCreateRoom(code, password string) []byte {
	return line(CmdCreateRoom, code, password)
}
func EncodeJoinRoom(code, password string) []byte {
	return line(CmdJoinRoom, code, password)
}
func EncodeLeaveRoom(code string, seat int) []byte {
	return line(CmdLeaveRoom, code, itoa(seat))
}
func EncodeRemoveRoom(code string) []byte { return line(CmdRemoveRoom, code) }
func EncodeKick(code string, target int) []byte {
	return line(CmdKick, code, itoa(target))
}
func EncodeUpdate(code string, seat int, name string, skin int, ready bool) []byte {
	return line(CmdUpdate, code, itoa(seat), name, itoa(skin), btoa(ready))
}
func EncodeStartCmd() []byte { return line(CmdStart) }
func EncodeReady(code string, seat int) []byte {
	return line(CmdReady, code, itoa(seat))
}
func EncodePipeCmd(code string, gapY int) []byte {
	return line(CmdPipe, code, itoa(gapY))
}
func EncodeRestartCmd() []byte { return line(CmdRestart) }
func EncodeUseFreeze(code string, seat int) []byte {
	return line(CmdUseFreeze, code, itoa(seat))
}
func EncodeUseTeleport(code string, seat int) []byte {
	return line(CmdUseTeleport, code, itoa(seat))
}
func EncodeState(code string, seat int, x, y, rot float64, respawning, penetrating, frozen bool) []byte {
	return line(CmdState, code, itoa(seat), ftoa(x), ftoa(y), ftoa(rot),
		btoa(respawning), btoa(penetrating), btoa(frozen))
}

// Token message encoders, server -> client.

func EncodeJoined(code string, seat int, role string) []byte {
	return line(MsgJoined, code, itoa(seat), role)
}
func EncodeKicked() []byte            { return line(MsgKicked) }
func EncodeUpdateID(seat int) []byte  { return line(MsgUpdateID, itoa(seat)) }
func EncodeStart() []byte             { return line(MsgStart) }
func EncodeReadyNext(seat int) []byte { return line(MsgReadyNext, itoa(seat)) }
func EncodeAllReady() []byte          { return line(MsgAllReady) }
func EncodeRestart() []byte           { return line(MsgRestart) }
func EncodeGetFrozen(userSeat int) []byte {
	return line(MsgGetFrozen, itoa(userSeat))
}
func EncodeTeleportTo(x, y float64) []byte {
	return line(MsgTeleportTo, ftoa(x), ftoa(y))
}

// EncodePipe emits a trailing colon; clients tolerate the empty last field.
func EncodePipe(code string, gapY int) []byte {
	return []byte(MsgPipe + ":" + code + ":" + itoa(gapY) + ":\n")
}
func EncodeRoomClosed(code string) []byte { return line(MsgRoomClosed, code) }

// JSON message encoders.

func EncodeRoomList(rooms []RoomInfo) []byte {
	if rooms == nil {
		rooms = []RoomInfo{}
	}
	b, _ := json.Marshal(rooms)
	return append(b, '\n')
}

func EncodeLobbyUpdate(players []LobbyPlayer) []byte {
	b, _ := json.Marshal(LobbyUpdate{Type: TypeLobbyUpdate, Players: players})
	return append(b, '\n')
}

func EncodeGameUpdate(players []GamePlayer) []byte {
	b, _ := json.Marshal(GameUpdate{Type: TypeGameUpdate, Players: players})
	return append(b, '\n')
}

func line(fields ...string) []byte {
	return []byte(strings.Join(fields, ":") + "\n")
}

func itoa(n int) string { return strconv.Itoa(n) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func btoa(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ParseInt reads a decimal token field.
func ParseInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("bad int field %q: %w", s, err)
	}
	return n, nil
}

// ParseFloat reads a float token field.
func ParseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("bad float field %q: %w", s, err)
	}
	return f, nil
}

// ParseBool accepts the compact 0/1 form and the spelled-out booleans.
func ParseBool(s string) bool {
	switch strings.TrimSpace(s) {
	case "1", "true", "True":
		return true
	}
	return false
}
