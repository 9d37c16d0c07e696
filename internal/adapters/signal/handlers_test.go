package signal

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vkuksa/huddle/internal/app"
	"github.com/vkuksa/huddle/internal/config"
	"github.com/vkuksa/huddle/internal/core"
	"github.com/vkuksa/huddle/internal/domain"
)

// recConn records delivered frames, decoded per envelope.
type recConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *recConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *recConn) Close() {}

func (c *recConn) events(t *testing.T) []envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env envelope
		if err := json.Unmarshal(f, &env); err != nil {
			t.Fatalf("bad frame %q: %v", f, err)
		}
		out = append(out, env)
	}
	return out
}

// last returns the data of the most recent event with the given name.
func (c *recConn) last(t *testing.T, event string) (json.RawMessage, bool) {
	t.Helper()
	evs := c.events(t)
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Event == event {
			return evs[i].Data, true
		}
	}
	return nil, false
}

func (c *recConn) has(t *testing.T, event string) bool {
	t.Helper()
	_, ok := c.last(t, event)
	return ok
}

func (c *recConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func newTestController(policy domain.AdmissionPolicy) *Controller {
	cfg := &config.Config{ReadLimit: 32768, PingPeriod: 54 * time.Second}
	orch := app.NewOrchestrator(policy)
	limiter := app.NewEventRateLimiter(1000, time.Minute)
	return NewController(orch, limiter, cfg)
}

func connect(ctl *Controller, id domain.PeerID) (*client, *recConn) {
	conn := &recConn{}
	cl := &client{id: id, token: "tok-" + string(id), conn: conn}
	ctl.Orch.Peers.Bind(id, conn, nil)
	return cl, conn
}

func joinRoom(ctl *Controller, cl *client, roomID, username string) {
	raw := fmt.Sprintf(`{"event":"join_room","data":{"roomId":%q,"username":%q}}`, roomID, username)
	ctl.dispatch(cl, []byte(raw))
}

func TestHandleJoin_FirstJoinerIsHost(t *testing.T) {
	ctl := newTestController(domain.AdmissionOpen)
	a, aConn := connect(ctl, "A")

	joinRoom(ctl, a, "r1", "alice")

	data, ok := aConn.last(t, evRoomJoined)
	if !ok {
		t.Fatal("no room_joined event")
	}
	var ev roomJoinedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Role != domain.RoleHost || ev.Status != domain.StatusJoined {
		t.Fatalf("room_joined=%+v, want host/joined", ev)
	}
}

func TestHandleJoin_ConsistentAdmissionViews(t *testing.T) {
	ctl := newTestController(domain.AdmissionOpen)
	a, aConn := connect(ctl, "A")
	b, bConn := connect(ctl, "B")

	joinRoom(ctl, a, "r1", "alice")
	joinRoom(ctl, b, "r1", "bob")

	// A is told B joined.
	data, ok := aConn.last(t, evUserJoined)
	if !ok {
		t.Fatal("A did not receive user_joined")
	}
	var joined peerDescriptor
	if err := json.Unmarshal(data, &joined); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if joined.PeerID != "B" || joined.Username != "bob" {
		t.Fatalf("user_joined=%+v, want B/bob", joined)
	}

	// B is told A exists.
	data, ok = bConn.last(t, evExistingPeers)
	if !ok {
		t.Fatal("B did not receive existing_peers")
	}
	var peers existingPeersEvent
	if err := json.Unmarshal(data, &peers); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(peers.Peers) != 1 || peers.Peers[0].PeerID != "A" {
		t.Fatalf("existing_peers=%+v, want [A]", peers.Peers)
	}
}

func TestHandleNegotiation_RelaysToNamedRecipientOnly(t *testing.T) {
	ctl := newTestController(domain.AdmissionOpen)
	a, _ := connect(ctl, "A")
	b, bConn := connect(ctl, "B")
	c, cConn := connect(ctl, "C")

	joinRoom(ctl, a, "r1", "alice")
	joinRoom(ctl, b, "r1", "bob")
	joinRoom(ctl, c, "r1", "carol")
	bConn.reset()
	cConn.reset()

	ctl.dispatch(a, []byte(`{"event":"offer","data":{"roomId":"r1","peerId":"B","offer":{"type":"offer","sdp":"v=0"}}}`))

	data, ok := bConn.last(t, evOffer)
	if !ok {
		t.Fatal("B did not receive the offer")
	}
	var ev negotiationEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// peerId is stamped with the sender's connection id.
	if ev.PeerID != "A" {
		t.Fatalf("peerId=%q, want A", ev.PeerID)
	}
	if len(ev.Offer) == 0 {
		t.Fatal("offer body missing")
	}
	if cConn.has(t, evOffer) {
		t.Fatal("offer leaked to a third member")
	}
}

func TestHandleNegotiation_SpoofedSenderIsIgnored(t *testing.T) {
	ctl := newTestController(domain.AdmissionOpen)
	a, _ := connect(ctl, "A")
	b, bConn := connect(ctl, "B")
	joinRoom(ctl, a, "r1", "alice")
	joinRoom(ctl, b, "r1", "bob")
	bConn.reset()

	// The payload has no sender field at all; the stamp comes from the
	// connection, so there is nothing to spoof.
	ctl.dispatch(a, []byte(`{"event":"ice_candidate","data":{"roomId":"r1","peerId":"B","candidate":{"candidate":"candidate:1"}}}`))

	data, _ := bConn.last(t, evIceCandidate)
	var ev negotiationEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.PeerID != "A" {
		t.Fatalf("peerId=%q, want stamped A", ev.PeerID)
	}
}

func TestHandleNegotiation_VanishedTargetIsSilentDrop(t *testing.T) {
	ctl := newTestController(domain.AdmissionOpen)
	a, aConn := connect(ctl, "A")
	joinRoom(ctl, a, "r1", "alice")
	aConn.reset()

	ctl.dispatch(a, []byte(`{"event":"offer","data":{"roomId":"r1","peerId":"ghost","offer":{"type":"offer","sdp":"v=0"}}}`))

	// Fire-and-forget: the sender gets no error back.
	if len(aConn.events(t)) != 0 {
		t.Fatalf("sender received %v, want nothing", aConn.events(t))
	}
}

func TestHandleSendMessage_BroadcastExcludesSender(t *testing.T) {
	ctl := newTestController(domain.AdmissionOpen)
	a, aConn := connect(ctl, "A")
	b, bConn := connect(ctl, "B")
	c, cConn := connect(ctl, "C")
	joinRoom(ctl, a, "r1", "alice")
	joinRoom(ctl, b, "r1", "bob")
	joinRoom(ctl, c, "r1", "carol")
	aConn.reset()
	bConn.reset()
	cConn.reset()

	ctl.dispatch(a, []byte(`{"event":"send_message","data":{"roomId":"r1","text":"hi","timestamp":123}}`))

	for name, conn := range map[string]*recConn{"B": bConn, "C": cConn} {
		data, ok := conn.last(t, evNewMessage)
		if !ok {
			t.Fatalf("%s did not receive new_message", name)
		}
		var ev newMessageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.PeerID != "A" || ev.Text != "hi" || ev.Timestamp != 123 {
			t.Fatalf("new_message=%+v", ev)
		}
	}
	if aConn.has(t, evNewMessage) {
		t.Fatal("sender received its own broadcast")
	}
}

func TestHandleKick_HostKicksParticipant(t *testing.T) {
	ctl := newTestController(domain.AdmissionOpen)
	a, _ := connect(ctl, "A")
	b, bConn := connect(ctl, "B")
	c, cConn := connect(ctl, "C")
	joinRoom(ctl, a, "r1", "alice")
	joinRoom(ctl, b, "r1", "bob")
	joinRoom(ctl, c, "r1", "carol")
	bConn.reset()
	cConn.reset()

	ctl.dispatch(a, []byte(`{"event":"kick_user","data":{"roomId":"r1","targetPeerId":"B"}}`))

	if !bConn.has(t, evKicked) {
		t.Fatal("B did not receive kicked")
	}
	if _, ok := ctl.Orch.Rooms.Get("r1", "B"); ok {
		t.Fatal("B still in room")
	}
	data, ok := cConn.last(t, evUserLeft)
	if !ok {
		t.Fatal("C did not receive user_left")
	}
	var left userLeftEvent
	if err := json.Unmarshal(data, &left); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if left.PeerID != "B" {
		t.Fatalf("user_left=%q, want B", left.PeerID)
	}
}

func TestHandleKick_NonHostGetsRejectionAndNothingElseHappens(t *testing.T) {
	ctl := newTestController(domain.AdmissionOpen)
	a, aConn := connect(ctl, "A")
	b, bConn := connect(ctl, "B")
	joinRoom(ctl, a, "r1", "alice")
	joinRoom(ctl, b, "r1", "bob")
	aConn.reset()
	bConn.reset()

	ctl.dispatch(b, []byte(`{"event":"kick_user","data":{"roomId":"r1","targetPeerId":"A"}}`))

	if _, ok := ctl.Orch.Rooms.Get("r1", "A"); !ok {
		t.Fatal("A was removed by a non-host kick")
	}
	if len(aConn.events(t)) != 0 {
		t.Fatalf("A received %v, want nothing", aConn.events(t))
	}
	data, ok := bConn.last(t, evModerationRejected)
	if !ok {
		t.Fatal("requester did not receive moderation_rejected")
	}
	var rej moderationRejectedEvent
	if err := json.Unmarshal(data, &rej); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rej.Action != "kick" || rej.Reason != "unauthorized" {
		t.Fatalf("rejection=%+v", rej)
	}
}

func TestWaitingRoom_ApproveFlow(t *testing.T) {
	ctl := newTestController(domain.AdmissionApproval)
	a, aConn := connect(ctl, "A")
	b, bConn := connect(ctl, "B")

	joinRoom(ctl, a, "r1", "alice")
	joinRoom(ctl, b, "r1", "bob")

	// Host learns someone is waiting.
	data, ok := aConn.last(t, evUserWaiting)
	if !ok {
		t.Fatal("host did not receive user_waiting")
	}
	var waiting userWaitingEvent
	if err := json.Unmarshal(data, &waiting); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if waiting.PeerID != "B" || waiting.Username != "bob" {
		t.Fatalf("user_waiting=%+v", waiting)
	}

	// The waiting joiner knows its own status but no peers yet.
	data, _ = bConn.last(t, evRoomJoined)
	var rj roomJoinedEvent
	if err := json.Unmarshal(data, &rj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rj.Status != domain.StatusWaiting {
		t.Fatalf("status=%q, want waiting", rj.Status)
	}
	if bConn.has(t, evExistingPeers) {
		t.Fatal("waiting joiner received existing_peers before approval")
	}

	aConn.reset()
	bConn.reset()
	ctl.dispatch(a, []byte(`{"event":"approve_user","data":{"roomId":"r1","targetPeerId":"B"}}`))

	if !bConn.has(t, evApproved) {
		t.Fatal("B did not receive approved")
	}
	if !bConn.has(t, evExistingPeers) {
		t.Fatal("B did not receive existing_peers on approval")
	}
	if !aConn.has(t, evUserJoined) {
		t.Fatal("A did not receive user_joined on approval")
	}
}

func TestWaitingRoom_DenyFlow(t *testing.T) {
	ctl := newTestController(domain.AdmissionApproval)
	a, _ := connect(ctl, "A")
	b, bConn := connect(ctl, "B")
	joinRoom(ctl, a, "r1", "alice")
	joinRoom(ctl, b, "r1", "bob")
	bConn.reset()

	ctl.dispatch(a, []byte(`{"event":"deny_user","data":{"roomId":"r1","targetPeerId":"B"}}`))

	if !bConn.has(t, evDenied) {
		t.Fatal("B did not receive denied")
	}
	if _, ok := ctl.Orch.Rooms.Get("r1", "B"); ok {
		t.Fatal("B still present after deny")
	}
}

func TestHandleNegotiation_WaitingTargetIsUnreachable(t *testing.T) {
	ctl := newTestController(domain.AdmissionApproval)
	a, _ := connect(ctl, "A")
	b, bConn := connect(ctl, "B")
	joinRoom(ctl, a, "r1", "alice")
	joinRoom(ctl, b, "r1", "bob")
	bConn.reset()

	// The host knows B's id from user_waiting, but until approval no
	// negotiation may reach it.
	ctl.dispatch(a, []byte(`{"event":"offer","data":{"roomId":"r1","peerId":"B","offer":{"type":"offer","sdp":"v=0"}}}`))

	if bConn.has(t, evOffer) {
		t.Fatal("waiting participant received an offer before approval")
	}

	ctl.dispatch(a, []byte(`{"event":"approve_user","data":{"roomId":"r1","targetPeerId":"B"}}`))
	bConn.reset()
	ctl.dispatch(a, []byte(`{"event":"offer","data":{"roomId":"r1","peerId":"B","offer":{"type":"offer","sdp":"v=0"}}}`))

	if !bConn.has(t, evOffer) {
		t.Fatal("approved participant did not receive the offer")
	}
}

func TestHandleMute_NotifiesTargetOnly(t *testing.T) {
	ctl := newTestController(domain.AdmissionOpen)
	a, _ := connect(ctl, "A")
	b, bConn := connect(ctl, "B")
	c, cConn := connect(ctl, "C")
	joinRoom(ctl, a, "r1", "alice")
	joinRoom(ctl, b, "r1", "bob")
	joinRoom(ctl, c, "r1", "carol")
	bConn.reset()
	cConn.reset()

	ctl.dispatch(a, []byte(`{"event":"mute_user","data":{"roomId":"r1","targetPeerId":"B"}}`))

	if !bConn.has(t, evMutedByHost) {
		t.Fatal("B did not receive muted_by_host")
	}
	if len(cConn.events(t)) != 0 {
		t.Fatalf("C received %v, want nothing", cConn.events(t))
	}
}

func TestDisconnect_FansOutUserLeftOnce(t *testing.T) {
	ctl := newTestController(domain.AdmissionOpen)
	a, aConn := connect(ctl, "A")
	b, _ := connect(ctl, "B")
	joinRoom(ctl, a, "r1", "alice")
	joinRoom(ctl, b, "r1", "bob")
	aConn.reset()

	ctl.onDisconnect(b)

	data, ok := aConn.last(t, evUserLeft)
	if !ok {
		t.Fatal("A did not receive user_left")
	}
	var left userLeftEvent
	if err := json.Unmarshal(data, &left); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if left.PeerID != "B" {
		t.Fatalf("user_left=%q, want B", left.PeerID)
	}

	aConn.reset()
	ctl.onDisconnect(b)
	if len(aConn.events(t)) != 0 {
		t.Fatalf("second disconnect produced %v, want nothing", aConn.events(t))
	}
}

func TestDisconnect_HostDepartedPromotionIsAnnounced(t *testing.T) {
	ctl := newTestController(domain.AdmissionOpen)
	a, _ := connect(ctl, "A")
	b, bConn := connect(ctl, "B")
	c, cConn := connect(ctl, "C")
	joinRoom(ctl, a, "r1", "alice")
	joinRoom(ctl, b, "r1", "bob")
	joinRoom(ctl, c, "r1", "carol")
	bConn.reset()
	cConn.reset()

	ctl.onDisconnect(a)

	for name, conn := range map[string]*recConn{"B": bConn, "C": cConn} {
		data, ok := conn.last(t, evHostChanged)
		if !ok {
			t.Fatalf("%s did not receive host_changed", name)
		}
		var ev hostChangedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.PeerID != "B" {
			t.Fatalf("host_changed=%q, want B", ev.PeerID)
		}
	}
}

func TestRateLimit_OverLimitChatGetsError(t *testing.T) {
	ctl := newTestController(domain.AdmissionOpen)
	ctl.Limiter = app.NewEventRateLimiter(1, time.Minute)
	a, aConn := connect(ctl, "A")
	b, bConn := connect(ctl, "B")
	joinRoom(ctl, a, "r1", "alice")
	joinRoom(ctl, b, "r1", "bob")
	aConn.reset()
	bConn.reset()

	msg := []byte(`{"event":"send_message","data":{"roomId":"r1","text":"hi"}}`)
	ctl.dispatch(a, msg)
	ctl.dispatch(a, msg)

	if n := len(bConn.events(t)); n != 1 {
		t.Fatalf("B received %d messages, want 1", n)
	}
	data, ok := aConn.last(t, evError)
	if !ok {
		t.Fatal("sender did not receive rate_limited error")
	}
	var ev errorEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Error != "rate_limited" {
		t.Fatalf("error=%q, want rate_limited", ev.Error)
	}
}

func TestDispatch_UnknownEvent(t *testing.T) {
	ctl := newTestController(domain.AdmissionOpen)
	a, aConn := connect(ctl, "A")

	ctl.dispatch(a, []byte(`{"event":"teleport","data":{}}`))

	data, ok := aConn.last(t, evError)
	if !ok {
		t.Fatal("no error event for unknown event name")
	}
	var ev errorEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Error != "unknown_event" {
		t.Fatalf("error=%q, want unknown_event", ev.Error)
	}
}

func TestHandleLeaveRoom_FansOutToRemaining(t *testing.T) {
	ctl := newTestController(domain.AdmissionOpen)
	a, aConn := connect(ctl, "A")
	b, _ := connect(ctl, "B")
	joinRoom(ctl, a, "r1", "alice")
	joinRoom(ctl, b, "r1", "bob")
	aConn.reset()

	ctl.dispatch(b, []byte(`{"event":"leave_room","data":{"roomId":"r1"}}`))

	if !aConn.has(t, evUserLeft) {
		t.Fatal("A did not receive user_left after explicit leave")
	}
	if _, ok := ctl.Orch.Rooms.Get("r1", "B"); ok {
		t.Fatal("B still in room after leave")
	}
}
