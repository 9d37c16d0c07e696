package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/vkuksa/huddle/internal/domain"
)

// Ephemeral room events: chat, reactions, gestures. Broadcast to every
// joined member except the sender, nothing persisted.

func (ctl *Controller) handleSendMessage(cl *client, data []byte) {
	var p sendMessagePayload
	if err := decodeStrict(data, &p); err != nil {
		ctl.reply(cl, evError, errorEvent{Error: "bad_payload"})
		return
	}
	if err := p.validate(); err != nil {
		ctl.reply(cl, evError, errorEvent{Error: err.Error()})
		return
	}
	recipients, ok := ctl.broadcastScope(cl, p.RoomID)
	if !ok {
		return
	}
	ctl.broadcast(recipients, evNewMessage, newMessageEvent{
		PeerID:    cl.id,
		Text:      p.Text,
		Timestamp: p.Timestamp,
	})
}

func (ctl *Controller) handleSendReaction(cl *client, data []byte) {
	var p sendReactionPayload
	if err := decodeStrict(data, &p); err != nil {
		ctl.reply(cl, evError, errorEvent{Error: "bad_payload"})
		return
	}
	if err := p.validate(); err != nil {
		ctl.reply(cl, evError, errorEvent{Error: err.Error()})
		return
	}
	recipients, ok := ctl.broadcastScope(cl, p.RoomID)
	if !ok {
		return
	}
	ctl.broadcast(recipients, evNewReaction, newReactionEvent{PeerID: cl.id, Type: p.Type})
}

func (ctl *Controller) handleSendGesture(cl *client, data []byte) {
	var p sendGesturePayload
	if err := decodeStrict(data, &p); err != nil {
		ctl.reply(cl, evError, errorEvent{Error: "bad_payload"})
		return
	}
	if err := p.validate(); err != nil {
		ctl.reply(cl, evError, errorEvent{Error: err.Error()})
		return
	}
	recipients, ok := ctl.broadcastScope(cl, p.RoomID)
	if !ok {
		return
	}
	ctl.broadcast(recipients, evNewGesture, newGestureEvent{PeerID: cl.id, Gesture: p.Gesture})
}

// broadcastScope rate-limits the sender and resolves the recipients.
// The sender must be a joined member of the room; waiting participants
// cannot emit room events.
func (ctl *Controller) broadcastScope(cl *client, roomID string) ([]domain.Participant, bool) {
	if !ctl.Limiter.Allow(cl.token) {
		log.Warn().Str("module", "signal").Str("peer", string(cl.id)).Msg("event rate limited")
		ctl.reply(cl, evError, errorEvent{Error: "rate_limited"})
		return nil, false
	}
	id := domain.RoomID(roomID)
	sender, ok := ctl.Orch.Rooms.Get(id, cl.id)
	if !ok || sender.Status != domain.StatusJoined {
		log.Warn().Str("module", "signal").Str("peer", string(cl.id)).Str("room", roomID).Msg("room event from non-member dropped")
		return nil, false
	}
	return ctl.Orch.Recipients(id, cl.id), true
}
