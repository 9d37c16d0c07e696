package app

import (
	"github.com/rs/zerolog/log"

	"github.com/vkuksa/huddle/internal/domain"
)

// AdmissionGrant is the result of approving a waiting participant. As
// with JoinResult, Target and Existing come from one registry read so the
// admitted participant and the members being announced to agree.
type AdmissionGrant struct {
	Target   domain.Participant
	Existing []domain.Participant
}

// The moderation gate: every operation authorizes the requester as the
// room's host before touching state, inside the same critical section as
// the mutation. Failures are typed so the transport layer can surface a
// rejection instead of swallowing it.

// Kick removes the target from the room.
func (r *Rooms) Kick(roomID domain.RoomID, requester, target domain.PeerID) (Departure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorizeLocked(roomID, requester); err != nil {
		return Departure{}, err
	}
	dep, ok := r.removeLocked(roomID, target)
	if !ok {
		return Departure{}, domain.ErrTargetNotFound
	}
	log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Str("peer", string(target)).Str("by", string(requester)).Msg("participant kicked")
	return dep, nil
}

// Mute authorizes the request but mutates nothing server-side; the mute
// itself is advisory and enforced by the target client.
func (r *Rooms) Mute(roomID domain.RoomID, requester, target domain.PeerID) (domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.authorizeLocked(roomID, requester); err != nil {
		return domain.Participant{}, err
	}
	p, ok := r.rooms[roomID].members[target]
	if !ok {
		return domain.Participant{}, domain.ErrTargetNotFound
	}
	return *p, nil
}

// Approve admits a waiting participant. The caller performs the same
// dual-notification sequence as a normal join, from the returned grant.
func (r *Rooms) Approve(roomID domain.RoomID, requester, target domain.PeerID) (AdmissionGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorizeLocked(roomID, requester); err != nil {
		return AdmissionGrant{}, err
	}
	rm := r.rooms[roomID]
	p, ok := rm.members[target]
	if !ok {
		return AdmissionGrant{}, domain.ErrTargetNotFound
	}
	if p.Status != domain.StatusWaiting {
		return AdmissionGrant{}, domain.ErrNotWaiting
	}
	p.Status = domain.StatusJoined
	log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Str("peer", string(target)).Msg("participant approved")
	return AdmissionGrant{Target: *p, Existing: rm.joinedLocked(target)}, nil
}

// Deny removes a waiting participant without admitting it. The target
// was never announced to the room, so no departure fan-out is needed.
func (r *Rooms) Deny(roomID domain.RoomID, requester, target domain.PeerID) (domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorizeLocked(roomID, requester); err != nil {
		return domain.Participant{}, err
	}
	p, ok := r.rooms[roomID].members[target]
	if !ok {
		return domain.Participant{}, domain.ErrTargetNotFound
	}
	if p.Status != domain.StatusWaiting {
		return domain.Participant{}, domain.ErrNotWaiting
	}
	denied := *p
	r.removeLocked(roomID, target)
	log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Str("peer", string(target)).Msg("participant denied")
	return denied, nil
}

func (r *Rooms) authorizeLocked(roomID domain.RoomID, requester domain.PeerID) error {
	rm, ok := r.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	p, ok := rm.members[requester]
	if !ok || p.Role != domain.RoleHost {
		return domain.ErrUnauthorized
	}
	return nil
}
