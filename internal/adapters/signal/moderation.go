package signal

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/vkuksa/huddle/internal/domain"
)

// Host-only actions. Authorization lives in the room registry's
// moderation gate; this layer decodes, forwards, and surfaces rejections
// back to the requester instead of swallowing them.

func (ctl *Controller) handleKickUser(cl *client, data []byte) {
	p, ok := ctl.moderationArgs(cl, "kick", data)
	if !ok {
		return
	}
	roomID := domain.RoomID(p.RoomID)
	target := domain.PeerID(p.TargetPeerID)

	dep, err := ctl.Orch.Rooms.Kick(roomID, cl.id, target)
	if err != nil {
		ctl.rejectModeration(cl, "kick", roomID, err)
		return
	}
	ctl.sendTo(target, evKicked, roomEvent{RoomID: roomID})
	ctl.fanOutDeparture(dep)
}

func (ctl *Controller) handleMuteUser(cl *client, data []byte) {
	p, ok := ctl.moderationArgs(cl, "mute", data)
	if !ok {
		return
	}
	roomID := domain.RoomID(p.RoomID)

	// Advisory: the server mutates nothing, the target client enforces.
	muted, err := ctl.Orch.Rooms.Mute(roomID, cl.id, domain.PeerID(p.TargetPeerID))
	if err != nil {
		ctl.rejectModeration(cl, "mute", roomID, err)
		return
	}
	ctl.sendTo(muted.ID, evMutedByHost, roomEvent{RoomID: roomID})
}

func (ctl *Controller) handleApproveUser(cl *client, data []byte) {
	p, ok := ctl.moderationArgs(cl, "approve", data)
	if !ok {
		return
	}
	roomID := domain.RoomID(p.RoomID)

	grant, err := ctl.Orch.Rooms.Approve(roomID, cl.id, domain.PeerID(p.TargetPeerID))
	if err != nil {
		ctl.rejectModeration(cl, "approve", roomID, err)
		return
	}
	ctl.sendTo(grant.Target.ID, evApproved, roomEvent{RoomID: roomID})
	// Same dual-notification sequence as a normal join.
	ctl.announceAdmission(grant.Target, grant.Existing)
}

func (ctl *Controller) handleDenyUser(cl *client, data []byte) {
	p, ok := ctl.moderationArgs(cl, "deny", data)
	if !ok {
		return
	}
	roomID := domain.RoomID(p.RoomID)

	denied, err := ctl.Orch.Rooms.Deny(roomID, cl.id, domain.PeerID(p.TargetPeerID))
	if err != nil {
		ctl.rejectModeration(cl, "deny", roomID, err)
		return
	}
	ctl.sendTo(denied.ID, evDenied, roomEvent{RoomID: roomID})
}

// moderationArgs reuses decode+validate for the four moderation events.
func (ctl *Controller) moderationArgs(cl *client, action string, data []byte) (moderationPayload, bool) {
	var p moderationPayload
	if err := decodeStrict(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(cl.id)).Str("action", action).Msg("bad moderation payload")
		ctl.reply(cl, evError, errorEvent{Error: "bad_payload"})
		return moderationPayload{}, false
	}
	if err := p.validate(); err != nil {
		ctl.reply(cl, evError, errorEvent{Error: err.Error()})
		return moderationPayload{}, false
	}
	return p, true
}

func (ctl *Controller) rejectModeration(cl *client, action string, roomID domain.RoomID, err error) {
	reason := "rejected"
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		reason = "unauthorized"
	case errors.Is(err, domain.ErrRoomNotFound):
		reason = "room_not_found"
	case errors.Is(err, domain.ErrTargetNotFound):
		reason = "target_not_found"
	case errors.Is(err, domain.ErrNotWaiting):
		reason = "not_waiting"
	}
	log.Warn().Str("module", "signal").Str("peer", string(cl.id)).Str("room", string(roomID)).Str("action", action).Str("reason", reason).Msg("moderation rejected")
	ctl.reply(cl, evModerationRejected, moderationRejectedEvent{
		Action: action,
		RoomID: roomID,
		Reason: reason,
	})
}
