package app

import (
	"github.com/rs/zerolog/log"

	"github.com/vkuksa/huddle/internal/core"
	"github.com/vkuksa/huddle/internal/domain"
)

// PublishResult reports fan-out delivery stats. Drops are expected
// (slow or vanished peers) and only observable here and in the logs.
type PublishResult struct {
	SentTo  int
	Dropped int
}

// Orchestrator combines the room registry with the connection registry.
// The transport adapter talks only to this type: it mutates call state
// through the registry's atomic operations and delivers encoded frames
// best-effort through Peers.
type Orchestrator struct {
	Peers *Peers
	Rooms *Rooms
}

func NewOrchestrator(policy domain.AdmissionPolicy) *Orchestrator {
	return &Orchestrator{
		Peers: NewPeers(),
		Rooms: NewRooms(policy),
	}
}

// Join admits the connection into the room, implicitly leaving any other.
func (o *Orchestrator) Join(roomID domain.RoomID, peerID domain.PeerID, name string) JoinResult {
	return o.Rooms.Join(roomID, peerID, name)
}

// Leave removes the connection from the named room only.
func (o *Orchestrator) Leave(roomID domain.RoomID, peerID domain.PeerID) (Departure, bool) {
	return o.Rooms.Leave(roomID, peerID)
}

// Disconnect is the transport-death cleanup path. It is idempotent: a
// connection that already left cleanly yields no departures, and a second
// call is a no-op.
func (o *Orchestrator) Disconnect(peerID domain.PeerID) []Departure {
	deps := o.Rooms.RemoveFromAllRooms(peerID)
	o.Peers.Unbind(peerID)
	return deps
}

// Target resolves a relay recipient: it must be a joined member of the
// room. Waiting members are reachable only through host-directed
// notifications, which go through the moderation gate instead, so
// negotiation cannot bypass the admission gate.
func (o *Orchestrator) Target(roomID domain.RoomID, peerID domain.PeerID) (domain.Participant, error) {
	p, ok := o.Rooms.Get(roomID, peerID)
	if !ok || p.Status != domain.StatusJoined {
		return domain.Participant{}, domain.ErrTargetNotFound
	}
	return p, nil
}

// SendTo delivers one frame to one connection. Fire-and-forget: an
// unreachable or backpressured recipient degrades to a logged drop and
// never fails the caller's operation.
func (o *Orchestrator) SendTo(peerID domain.PeerID, f core.Frame) bool {
	conn, ok := o.Peers.Get(peerID)
	if !ok {
		log.Warn().Str("module", "app.orchestrator").Str("peer", string(peerID)).Msg("dropped frame: no connection")
		return false
	}
	if err := conn.TrySend(f); err != nil {
		log.Warn().Err(err).Str("module", "app.orchestrator").Str("peer", string(peerID)).Msg("dropped frame")
		return false
	}
	return true
}

// BroadcastTo fans a frame out to a snapshot of participants.
func (o *Orchestrator) BroadcastTo(members []domain.Participant, f core.Frame) PublishResult {
	res := PublishResult{}
	for _, m := range members {
		if o.SendTo(m.ID, f) {
			res.SentTo++
		} else {
			res.Dropped++
		}
	}
	if res.Dropped > 0 {
		log.Debug().Str("module", "app.orchestrator").Int("sent_to", res.SentTo).Int("dropped", res.Dropped).Msg("broadcast result")
	}
	return res
}

// Recipients computes broadcast scope: every joined member except the
// sender, insertion order.
func (o *Orchestrator) Recipients(roomID domain.RoomID, from domain.PeerID) []domain.Participant {
	return o.Rooms.ListJoined(roomID, from)
}
