package app

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/vkuksa/huddle/internal/domain"
)

// JoinResult is everything the admission handshake needs, read under a
// single lock so the newcomer's peer list and the announcements to the
// existing members describe the same registry state.
type JoinResult struct {
	Self domain.Participant
	// Existing holds the joined members the newcomer should negotiate
	// with, in insertion order, excluding the newcomer itself.
	Existing []domain.Participant
	// HostID is set when Self entered the waiting room, so the caller can
	// notify the host. Empty otherwise.
	HostID domain.PeerID
	// Left reports rooms the connection implicitly departed by joining.
	Left []Departure
}

// Departure describes one room a connection was removed from.
type Departure struct {
	RoomID    domain.RoomID
	Removed   domain.Participant
	Remaining []domain.Participant
	// Promoted is the new host when the departing participant held the
	// host role and another joined member remained.
	Promoted *domain.Participant
}

// RoomInfo is a read-only room snapshot for the ops surface.
type RoomInfo struct {
	ID      domain.RoomID `json:"roomId"`
	Joined  int           `json:"joined"`
	Waiting int           `json:"waiting"`
}

type room struct {
	policy  domain.AdmissionPolicy
	order   []domain.PeerID
	members map[domain.PeerID]*domain.Participant
}

// Rooms is the in-memory room registry. All mutating operations for a
// given call run under one mutex, so an admission handshake can never
// interleave with a concurrent join, leave, kick or approve.
//
// Invariants held here:
//   - a room with zero participants is removed from the table,
//   - exactly one member per room holds the host role,
//   - a connection belongs to at most one room at a time,
//   - callers only ever receive value copies, never table references.
type Rooms struct {
	mu     sync.RWMutex
	policy domain.AdmissionPolicy
	rooms  map[domain.RoomID]*room
}

func NewRooms(policy domain.AdmissionPolicy) *Rooms {
	if !policy.Valid() {
		policy = domain.AdmissionOpen
	}
	return &Rooms{
		policy: policy,
		rooms:  make(map[domain.RoomID]*room),
	}
}

// Join inserts the connection into the room, creating the room on first
// join. The first joiner becomes host and is always admitted; later
// joiners get the participant role and a status dictated by the room's
// admission policy, resolved once at room creation.
func (r *Rooms) Join(roomID domain.RoomID, peerID domain.PeerID, name string) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A connection may belong to at most one room; joining leaves all
	// others first.
	res := JoinResult{Left: r.removeEverywhereLocked(peerID)}

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{
			policy:  r.policy,
			members: make(map[domain.PeerID]*domain.Participant),
		}
		r.rooms[roomID] = rm
		p := domain.NewParticipant(peerID, name, domain.RoleHost, domain.StatusJoined)
		rm.members[peerID] = &p
		rm.order = append(rm.order, peerID)
		res.Self = p
		log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Str("peer", string(peerID)).Msg("room created, host joined")
		return res
	}

	status := domain.StatusJoined
	if rm.policy == domain.AdmissionApproval {
		status = domain.StatusWaiting
	}
	p := domain.NewParticipant(peerID, name, domain.RoleParticipant, status)
	rm.members[peerID] = &p
	rm.order = append(rm.order, peerID)

	res.Self = p
	if status == domain.StatusJoined {
		// The admission snapshot; a waiting joiner gets its peer list
		// on approval instead.
		res.Existing = rm.joinedLocked(peerID)
	} else if host, ok := rm.hostLocked(); ok {
		res.HostID = host.ID
	}
	log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Str("peer", string(peerID)).Str("status", string(status)).Msg("participant joined")
	return res
}

// Leave removes the connection from the named room only. Reports false
// when the room or membership does not exist.
func (r *Rooms) Leave(roomID domain.RoomID, peerID domain.PeerID) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(roomID, peerID)
}

// RemoveFromAllRooms scans every room and removes the connection where
// present. Defensive: membership is expected in at most one room, but
// disconnect cleanup must not trust that.
func (r *Rooms) RemoveFromAllRooms(peerID domain.PeerID) []Departure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeEverywhereLocked(peerID)
}

// ListJoined returns the joined participants of a room in insertion
// order, optionally excluding one connection. Waiting participants are
// never included.
func (r *Rooms) ListJoined(roomID domain.RoomID, excluding domain.PeerID) []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return rm.joinedLocked(excluding)
}

// ListWaiting returns waiting participants ordered by join-request time,
// so admission is first-come first-served.
func (r *Rooms) ListWaiting(roomID domain.RoomID) []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]domain.Participant, 0, len(rm.order))
	for _, id := range rm.order {
		if p, ok := rm.members[id]; ok && p.Status == domain.StatusWaiting {
			out = append(out, *p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// SetStatus transitions a participant's status. Reports false when the
// room or membership does not exist.
func (r *Rooms) SetStatus(roomID domain.RoomID, peerID domain.PeerID, status domain.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	p, ok := rm.members[peerID]
	if !ok {
		return false
	}
	p.Status = status
	return true
}

// Get is a point lookup used for role checks.
func (r *Rooms) Get(roomID domain.RoomID, peerID domain.PeerID) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return domain.Participant{}, false
	}
	p, ok := rm.members[peerID]
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

// Snapshot lists active rooms for the ops surface.
func (r *Rooms) Snapshot() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for id, rm := range r.rooms {
		info := RoomInfo{ID: id}
		for _, p := range rm.members {
			if p.Status == domain.StatusJoined {
				info.Joined++
			} else {
				info.Waiting++
			}
		}
		out = append(out, info)
	}
	return out
}

func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Rooms) removeEverywhereLocked(peerID domain.PeerID) []Departure {
	var out []Departure
	for id := range r.rooms {
		if dep, ok := r.removeLocked(id, peerID); ok {
			out = append(out, dep)
		}
	}
	return out
}

func (r *Rooms) removeLocked(roomID domain.RoomID, peerID domain.PeerID) (Departure, bool) {
	rm, ok := r.rooms[roomID]
	if !ok {
		return Departure{}, false
	}
	p, ok := rm.members[peerID]
	if !ok {
		return Departure{}, false
	}
	dep := Departure{RoomID: roomID, Removed: *p}
	delete(rm.members, peerID)
	for i, id := range rm.order {
		if id == peerID {
			rm.order = append(rm.order[:i], rm.order[i+1:]...)
			break
		}
	}

	if len(rm.members) == 0 {
		delete(r.rooms, roomID)
		log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Msg("room removed")
		return dep, true
	}

	if dep.Removed.Role == domain.RoleHost {
		// Promote the earliest remaining joined member. A room holding
		// only waiting members stays hostless until it drains.
		for _, id := range rm.order {
			next := rm.members[id]
			if next.Status != domain.StatusJoined {
				continue
			}
			next.Role = domain.RoleHost
			promoted := *next
			dep.Promoted = &promoted
			log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Str("peer", string(id)).Msg("host promoted")
			break
		}
	}

	dep.Remaining = rm.joinedLocked(peerID)
	return dep, true
}

func (rm *room) joinedLocked(excluding domain.PeerID) []domain.Participant {
	out := make([]domain.Participant, 0, len(rm.order))
	for _, id := range rm.order {
		if id == excluding {
			continue
		}
		if p, ok := rm.members[id]; ok && p.Status == domain.StatusJoined {
			out = append(out, *p)
		}
	}
	return out
}

func (rm *room) hostLocked() (domain.Participant, bool) {
	for _, id := range rm.order {
		if p, ok := rm.members[id]; ok && p.Role == domain.RoleHost {
			return *p, true
		}
	}
	return domain.Participant{}, false
}
