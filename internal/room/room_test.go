package room

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeConn records everything the room sends to one seat.
type fakeConn struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeConn) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, strings.TrimSuffix(string(p), "\n"))
	return nil
}

func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if strings.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeConn) has(prefix string) bool { return f.count(prefix) > 0 }

func newTestRoom(t *testing.T, code, password string) *Room {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, Config{Code: code, Password: password})
}

// helper: join with a timeout so tests never hang
func join(t *testing.T, r *Room, conn Conn, password string) JoinResult {
	t.Helper()
	reply := make(chan JoinResult, 1)
	r.Inbox() <- Join{Conn: conn, Password: password, Reply: reply}
	select {
	case res := <-reply:
		return res
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for join reply")
		return JoinResult{} // unreachable
	}
}

func getView(t *testing.T, r *Room) View {
	t.Helper()
	reply := make(chan View, 1)
	r.Inbox() <- GetView{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func fillRoom(t *testing.T, r *Room, n int) []*fakeConn {
	t.Helper()
	conns := make([]*fakeConn, n)
	for i := range conns {
		conns[i] = &fakeConn{}
		res := join(t, r, conns[i], "")
		if res.Err != nil {
			t.Fatalf("join %d: %v", i, res.Err)
		}
		if res.Seat != i {
			t.Fatalf("join %d: got seat %d", i, res.Seat)
		}
	}
	return conns
}

func startMatch(t *testing.T, r *Room, conns []*fakeConn) {
	t.Helper()
	r.Inbox() <- StartMatch{From: conns[0]}
	for i := range conns {
		r.Inbox() <- ReadyConfirm{Seat: i}
	}
	if v := getView(t, r); v.Phase != PhaseInMatch {
		t.Fatalf("phase after handshake: %s", v.Phase)
	}
}

func TestJoin_AssignsSeatsAndBroadcastsLobby(t *testing.T) {
	r := newTestRoom(t, "123456", "")
	conns := fillRoom(t, r, 2)

	v := getView(t, r)
	if len(v.Seats) != 2 || !v.Seats[0].Host || v.Seats[1].Host {
		t.Fatalf("unexpected seats: %+v", v.Seats)
	}
	if !conns[0].has("Joined:123456:0:host") {
		t.Fatalf("host missing Joined message: %v", conns[0].sent)
	}
	if !conns[1].has("Joined:123456:1:member") {
		t.Fatalf("member missing Joined message: %v", conns[1].sent)
	}
	// both seats received the 2-player lobby snapshot
	for i, c := range conns {
		if !c.has(`{"type":"LobbyUpdate"`) {
			t.Fatalf("conn %d never saw a LobbyUpdate: %v", i, c.sent)
		}
	}
}

func TestJoin_RejectsWhenFull(t *testing.T) {
	r := newTestRoom(t, "123456", "")
	fillRoom(t, r, MaxSeats)

	res := join(t, r, &fakeConn{}, "")
	if res.Err != ErrRoomFull {
		t.Fatalf("want ErrRoomFull, got %v", res.Err)
	}
	if v := getView(t, r); len(v.Seats) != MaxSeats {
		t.Fatalf("seat count changed on refused join: %d", len(v.Seats))
	}
}

func TestJoin_RejectsConnAlreadySeated(t *testing.T) {
	r := newTestRoom(t, "123456", "")
	conns := fillRoom(t, r, 2)

	res := join(t, r, conns[1], "")
	if res.Err != ErrAlreadySeated {
		t.Fatalf("want ErrAlreadySeated, got %v", res.Err)
	}
	if v := getView(t, r); len(v.Seats) != 2 {
		t.Fatalf("duplicate join grew the room: %d seats", len(v.Seats))
	}
}

func TestJoin_RejectsWrongPassword(t *testing.T) {
	r := newTestRoom(t, "123456", "hunter2")
	host := &fakeConn{}
	if res := join(t, r, host, "hunter2"); res.Err != nil {
		t.Fatalf("host join: %v", res.Err)
	}
	if res := join(t, r, &fakeConn{}, "wrong"); res.Err != ErrBadPassword {
		t.Fatalf("want ErrBadPassword, got %v", res.Err)
	}
}

func TestLeave_CompactsIndicesAndNotifies(t *testing.T) {
	r := newTestRoom(t, "123456", "")
	conns := fillRoom(t, r, 3)

	r.Inbox() <- Leave{Seat: 1}

	v := getView(t, r)
	if len(v.Seats) != 2 {
		t.Fatalf("want 2 seats, got %d", len(v.Seats))
	}
	for i, s := range v.Seats {
		if s.Index != i {
			t.Fatalf("seat indices not contiguous: %+v", v.Seats)
		}
	}
	if !v.Seats[0].Host {
		t.Fatalf("host lost index 0: %+v", v.Seats)
	}
	// former seat 2 was renumbered and told about it
	if !conns[2].has("UpdateID:1") {
		t.Fatalf("renumbered seat missing UpdateID: %v", conns[2].sent)
	}
}

func TestHostLeave_PromotesEarliestSeat(t *testing.T) {
	r := newTestRoom(t, "123456", "")
	conns := fillRoom(t, r, 3)

	r.Inbox() <- Leave{Seat: 0}

	v := getView(t, r)
	if len(v.Seats) != 2 || !v.Seats[0].Host || v.Seats[1].Host {
		t.Fatalf("promotion failed: %+v", v.Seats)
	}
	if !conns[1].has("UpdateID:0") {
		t.Fatalf("promoted seat missing UpdateID:0: %v", conns[1].sent)
	}
}

func TestKick_HostOnly(t *testing.T) {
	r := newTestRoom(t, "123456", "")
	conns := fillRoom(t, r, 3)

	// a member cannot kick
	r.Inbox() <- Kick{From: conns[1], Target: 2}
	if v := getView(t, r); len(v.Seats) != 3 {
		t.Fatalf("member kick was honored")
	}

	r.Inbox() <- Kick{From: conns[0], Target: 2}
	v := getView(t, r)
	if len(v.Seats) != 2 {
		t.Fatalf("host kick ignored")
	}
	if !conns[2].has("Kicked") {
		t.Fatalf("kicked seat missing notice: %v", conns[2].sent)
	}
}

func TestDisconnect_ActsAsImplicitLeave(t *testing.T) {
	r := newTestRoom(t, "123456", "")
	conns := fillRoom(t, r, 3)

	r.Inbox() <- Disconnect{Conn: conns[1]}

	v := getView(t, r)
	if len(v.Seats) != 2 {
		t.Fatalf("want 2 seats after disconnect, got %d", len(v.Seats))
	}
	if !conns[2].has("UpdateID:1") {
		t.Fatalf("compaction notice missing: %v", conns[2].sent)
	}
}

func TestReadyHandshake_OutOfOrderConfirmations(t *testing.T) {
	r := newTestRoom(t, "123456", "")
	conns := fillRoom(t, r, 3)

	r.Inbox() <- StartMatch{From: conns[0]}
	getView(t, r) // round-trip so the room has processed StartMatch
	for _, c := range conns {
		if !c.has("Start") {
			t.Fatalf("missing Start broadcast: %v", c.sent)
		}
		if !c.has("ReadyNext:0") {
			t.Fatalf("missing initial ReadyNext prompt: %v", c.sent)
		}
	}

	// seats confirm 2, 0, 1: 2 queues as early, 0 advances, 1 drains the queue
	r.Inbox() <- ReadyConfirm{Seat: 2}
	if v := getView(t, r); v.Phase != PhaseStarting || v.ReadyCursor != 0 {
		t.Fatalf("early confirmation moved the cursor: %+v", v)
	}
	r.Inbox() <- ReadyConfirm{Seat: 0}
	r.Inbox() <- ReadyConfirm{Seat: 1}

	v := getView(t, r)
	if v.Phase != PhaseInMatch {
		t.Fatalf("phase after handshake: %s", v.Phase)
	}
	for i, c := range conns {
		if n := c.count("AllReady"); n != 1 {
			t.Fatalf("conn %d saw AllReady %d times", i, n)
		}
	}
}

func TestReadyHandshake_OnlyAdvancesReprompt(t *testing.T) {
	r := newTestRoom(t, "123456", "")
	conns := fillRoom(t, r, 3)

	r.Inbox() <- StartMatch{From: conns[0]}

	// an early confirmation parks in the queue; the cursor stays on seat 0
	// and nobody is prompted again
	r.Inbox() <- ReadyConfirm{Seat: 2}
	getView(t, r) // fence: all prior messages processed
	for i, c := range conns {
		if n := c.count("ReadyNext:"); n != 1 {
			t.Fatalf("conn %d saw %d ReadyNext prompts, want only the initial one", i, n)
		}
	}

	// a duplicate of the parked confirmation changes nothing either
	r.Inbox() <- ReadyConfirm{Seat: 2}
	getView(t, r)
	if n := conns[0].count("ReadyNext:"); n != 1 {
		t.Fatalf("duplicate confirmation reprompted: %d ReadyNext", n)
	}

	// the cursor seat confirming does advance and prompts seat 1
	r.Inbox() <- ReadyConfirm{Seat: 0}
	getView(t, r)
	if !conns[0].has("ReadyNext:1") {
		t.Fatalf("advancing confirmation did not prompt the next seat: %v", conns[0].sent)
	}
}

func TestStart_HostOnly(t *testing.T) {
	r := newTestRoom(t, "123456", "")
	conns := fillRoom(t, r, 2)

	r.Inbox() <- StartMatch{From: conns[1]}
	if v := getView(t, r); v.Phase != PhaseLobby {
		t.Fatalf("member started the match: %s", v.Phase)
	}
}

func TestUpdateLive_BroadcastsFullSnapshot(t *testing.T) {
	r := newTestRoom(t, "123456", "")
	conns := fillRoom(t, r, 2)
	startMatch(t, r, conns)

	r.Inbox() <- UpdateLive{Seat: 1, X: 42, Y: 7, Rot: -30, Frozen: true}

	v := getView(t, r)
	if v.Seats[1].Live.X != 42 || !v.Seats[1].Live.Frozen {
		t.Fatalf("live state not applied: %+v", v.Seats[1].Live)
	}
	for i, c := range conns {
		if !c.has(`{"type":"GameUpdate"`) {
			t.Fatalf("conn %d never saw a GameUpdate: %v", i, c.sent)
		}
	}

	// unknown seats are ignored, never surfaced
	r.Inbox() <- UpdateLive{Seat: 9, X: 1}
	if v := getView(t, r); len(v.Seats) != 2 {
		t.Fatalf("unknown seat mutated the room")
	}
}

func TestFreeze_TargetsStrictlyFurthest(t *testing.T) {
	r := newTestRoom(t, "123456", "")
	conns := fillRoom(t, r, 3)
	startMatch(t, r, conns)

	r.Inbox() <- UpdateLive{Seat: 0, X: 50}
	r.Inbox() <- UpdateLive{Seat: 1, X: 300}
	r.Inbox() <- UpdateLive{Seat: 2, X: 120}

	r.Inbox() <- UseFreeze{Seat: 0}
	getView(t, r) // fence: all prior messages processed

	if !conns[1].has("GetFrozen:0") {
		t.Fatalf("furthest seat not frozen: %v", conns[1].sent)
	}
	if conns[0].has("GetFrozen") || conns[2].has("GetFrozen") {
		t.Fatalf("freeze hit the wrong seat")
	}
}

func TestFreeze_TiesResolveToFirstSeat(t *testing.T) {
	r := newTestRoom(t, "123456", "")
	conns := fillRoom(t, r, 3)
	startMatch(t, r, conns)

	r.Inbox() <- UpdateLive{Seat: 1, X: 200}
	r.Inbox() <- UpdateLive{Seat: 2, X: 200}

	r.Inbox() <- UseFreeze{Seat: 0}
	getView(t, r)

	if !conns[1].has("GetFrozen:0") || conns[2].has("GetFrozen") {
		t.Fatalf("tie did not resolve to first seat in order")
	}
}

func TestTeleport_SwapsBothSeatsAtomically(t *testing.T) {
	r := newTestRoom(t, "123456", "")
	conns := fillRoom(t, r, 3)
	startMatch(t, r, conns)

	r.Inbox() <- UpdateLive{Seat: 0, X: 10, Y: 20}
	r.Inbox() <- UpdateLive{Seat: 2, X: 500, Y: 60}

	r.Inbox() <- UseTeleport{Seat: 0}

	v := getView(t, r)
	if v.Seats[0].Live.X != 500 || v.Seats[0].Live.Y != 60 {
		t.Fatalf("user not moved to target position: %+v", v.Seats[0].Live)
	}
	if v.Seats[2].Live.X != 10 || v.Seats[2].Live.Y != 20 {
		t.Fatalf("target not moved to user position: %+v", v.Seats[2].Live)
	}
	if !conns[0].has("TeleportTo:500:60") {
		t.Fatalf("user missing TeleportTo: %v", conns[0].sent)
	}
	if !conns[2].has("TeleportTo:10:20") {
		t.Fatalf("target missing TeleportTo: %v", conns[2].sent)
	}
}

func TestRestart_ResetsLiveStateAndPhase(t *testing.T) {
	r := newTestRoom(t, "123456", "")
	conns := fillRoom(t, r, 2)
	startMatch(t, r, conns)
	r.Inbox() <- UpdateLive{Seat: 1, X: 99, Frozen: true}

	r.Inbox() <- RestartMatch{From: conns[0]}

	v := getView(t, r)
	if v.Phase != PhaseLobby {
		t.Fatalf("phase after restart: %s", v.Phase)
	}
	if v.Seats[1].Live != (LiveState{}) || v.Seats[1].Ready {
		t.Fatalf("seat state not reset: %+v", v.Seats[1])
	}
	if !conns[1].has("Restart") {
		t.Fatalf("missing Restart broadcast: %v", conns[1].sent)
	}
}

func TestClose_BroadcastsNoticeAndRefusesJoins(t *testing.T) {
	r := newTestRoom(t, "123456", "")
	conns := fillRoom(t, r, 2)

	r.Inbox() <- CloseRoom{From: conns[0]}

	deadline := time.Now().Add(time.Second)
	for !r.Closed() {
		if time.Now().After(deadline) {
			t.Fatalf("room never closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	for i, c := range conns {
		if !c.has("RoomClosed:123456") {
			t.Fatalf("conn %d missing closure notice: %v", i, c.sent)
		}
	}
	if res := join(t, r, &fakeConn{}, ""); res.Err != ErrRoomClosed {
		t.Fatalf("want ErrRoomClosed, got %v", res.Err)
	}
}
