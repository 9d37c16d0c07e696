package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/vkuksa/huddle/internal/domain"
)

// handleNegotiation relays offer/answer/ice_candidate verbatim to
// exactly the named recipient, stamped with the sender's peer id.
// Delivery is fire-and-forget: a vanished recipient is a logged drop,
// never an error back to the sender; renegotiation timeouts belong to
// the clients.
func (ctl *Controller) handleNegotiation(cl *client, event string, data []byte) {
	var p negotiationPayload
	if err := decodeStrict(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(cl.id)).Str("event", event).Msg("bad negotiation payload")
		ctl.reply(cl, evError, errorEvent{Error: "bad_payload"})
		return
	}
	if err := p.validate(event); err != nil {
		ctl.reply(cl, evError, errorEvent{Error: err.Error()})
		return
	}

	roomID := domain.RoomID(p.RoomID)

	// Only joined members may negotiate; a waiting sender is a drop.
	if sender, ok := ctl.Orch.Rooms.Get(roomID, cl.id); !ok || sender.Status != domain.StatusJoined {
		log.Warn().Str("module", "signal").Str("peer", string(cl.id)).Str("room", p.RoomID).Str("event", event).Msg("negotiation from non-member dropped")
		return
	}

	target, err := ctl.Orch.Target(roomID, domain.PeerID(p.PeerID))
	if err != nil {
		log.Warn().Str("module", "signal").Str("peer", string(cl.id)).Str("target", p.PeerID).Str("event", event).Msg("negotiation target gone, dropped")
		return
	}

	out := negotiationEvent{PeerID: cl.id}
	switch event {
	case evOffer:
		out.Offer = p.body(event)
	case evAnswer:
		out.Answer = p.body(event)
	default:
		out.Candidate = p.body(event)
	}
	ctl.sendTo(target.ID, event, out)
}
