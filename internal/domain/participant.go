// Package domain contains entities without logic, just meta-data.
package domain

import "time"

const MaxDisplayNameLen = 36

// PeerID is the connection identifier. It doubles as the routable peer
// address: every relayed message is stamped with the sender's PeerID.
type PeerID string

type RoomID string

type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

type Status string

const (
	StatusWaiting Status = "waiting"
	StatusJoined  Status = "joined"
)

// AdmissionPolicy decides the status of non-host joiners. It is resolved
// once per room, at creation, and never changes afterwards.
type AdmissionPolicy string

const (
	// AdmissionOpen admits every joiner immediately.
	AdmissionOpen AdmissionPolicy = "open"
	// AdmissionApproval parks non-host joiners in the waiting room until
	// the host approves or denies them.
	AdmissionApproval AdmissionPolicy = "approval"
)

func (p AdmissionPolicy) Valid() bool {
	return p == AdmissionOpen || p == AdmissionApproval
}

// Participant is one connection's membership record within one room.
type Participant struct {
	ID          PeerID    `json:"peerId"`
	DisplayName string    `json:"username"`
	Role        Role      `json:"role"`
	Status      Status    `json:"status"`
	JoinedAt    time.Time `json:"-"`
}

func NewParticipant(id PeerID, name string, role Role, status Status) Participant {
	if len(name) > MaxDisplayNameLen {
		name = name[:MaxDisplayNameLen]
	}
	return Participant{
		ID:          id,
		DisplayName: name,
		Role:        role,
		Status:      status,
		JoinedAt:    time.Now(),
	}
}
