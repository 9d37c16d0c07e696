package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/vkuksa/huddle/internal/app"
	"github.com/vkuksa/huddle/internal/domain"
)

func (ctl *Controller) handleJoinRoom(cl *client, data []byte) {
	var p joinRoomPayload
	if err := decodeStrict(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(cl.id)).Msg("bad join_room payload")
		ctl.reply(cl, evError, errorEvent{Error: "bad_payload"})
		return
	}
	if err := p.validate(); err != nil {
		ctl.reply(cl, evError, errorEvent{Error: err.Error()})
		return
	}

	roomID := domain.RoomID(p.RoomID)
	res := ctl.Orch.Join(roomID, cl.id, p.Username)

	// Joining implicitly left any previous room; tell those rooms first.
	for _, dep := range res.Left {
		ctl.fanOutDeparture(dep)
	}

	ctl.reply(cl, evRoomJoined, roomJoinedEvent{
		RoomID: roomID,
		Role:   res.Self.Role,
		Status: res.Self.Status,
	})

	if res.Self.Status == domain.StatusWaiting {
		if res.HostID != "" {
			ctl.sendTo(res.HostID, evUserWaiting, userWaitingEvent{
				PeerID:   res.Self.ID,
				Username: res.Self.DisplayName,
			})
		}
		return
	}

	ctl.announceAdmission(res.Self, res.Existing)
}

// announceAdmission produces the consistent pair of views of an
// admission: the newcomer learns who is already present, and each
// existing member learns the newcomer exists. Both lists come from the
// same registry read.
func (ctl *Controller) announceAdmission(self domain.Participant, existing []domain.Participant) {
	ctl.sendTo(self.ID, evExistingPeers, existingPeersEvent{Peers: describeAll(existing)})
	ctl.broadcast(existing, evUserJoined, describe(self))
}

func (ctl *Controller) handleLeaveRoom(cl *client, data []byte) {
	var p leaveRoomPayload
	if err := decodeStrict(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(cl.id)).Msg("bad leave_room payload")
		ctl.reply(cl, evError, errorEvent{Error: "bad_payload"})
		return
	}
	if err := p.validate(); err != nil {
		ctl.reply(cl, evError, errorEvent{Error: err.Error()})
		return
	}

	if dep, ok := ctl.Orch.Leave(domain.RoomID(p.RoomID), cl.id); ok {
		ctl.fanOutDeparture(dep)
	}
}

func (ctl *Controller) fanOutDeparture(dep app.Departure) {
	// A waiting participant was never announced, so nobody is told.
	if dep.Removed.Status == domain.StatusJoined {
		ctl.broadcast(dep.Remaining, evUserLeft, userLeftEvent{PeerID: dep.Removed.ID})
	}
	if dep.Promoted != nil {
		ctl.broadcast(dep.Remaining, evHostChanged, hostChangedEvent{PeerID: dep.Promoted.ID})
	}
}
