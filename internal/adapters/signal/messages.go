package signal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vkuksa/huddle/internal/domain"
)

// Wire envelope. Every frame in both directions is
// {"event": <name>, "data": <object>}.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound events.
const (
	evJoinRoom     = "join_room"
	evLeaveRoom    = "leave_room"
	evOffer        = "offer"
	evAnswer       = "answer"
	evIceCandidate = "ice_candidate"
	evSendMessage  = "send_message"
	evSendReaction = "send_reaction"
	evSendGesture  = "send_gesture"
	evKickUser     = "kick_user"
	evMuteUser     = "mute_user"
	evApproveUser  = "approve_user"
	evDenyUser     = "deny_user"
)

// Outbound events.
const (
	evRoomJoined         = "room_joined"
	evUserJoined         = "user_joined"
	evUserWaiting        = "user_waiting"
	evExistingPeers      = "existing_peers"
	evUserLeft           = "user_left"
	evNewMessage         = "new_message"
	evNewReaction        = "new_reaction"
	evNewGesture         = "new_gesture"
	evKicked             = "kicked"
	evMutedByHost        = "muted_by_host"
	evApproved           = "approved"
	evDenied             = "denied"
	evHostChanged        = "host_changed"
	evModerationRejected = "moderation_rejected"
	evError              = "error"
)

var errMissingRoom = errors.New("missing roomId")

func parseEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, err
	}
	if env.Event == "" {
		return envelope{}, errors.New("missing event name")
	}
	return env, nil
}

// decodeStrict rejects unknown and trailing fields so malformed payloads
// are caught at the boundary, before any registry state is touched.
func decodeStrict(data []byte, v any) error {
	if len(data) == 0 {
		return errors.New("empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}

type joinRoomPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username,omitempty"`
}

func (p joinRoomPayload) validate() error {
	if p.RoomID == "" {
		return errMissingRoom
	}
	return nil
}

type leaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

func (p leaveRoomPayload) validate() error {
	if p.RoomID == "" {
		return errMissingRoom
	}
	return nil
}

// negotiationPayload carries offer/answer/ice_candidate. The SDP or
// candidate body is opaque to this layer and relayed verbatim.
type negotiationPayload struct {
	RoomID    string          `json:"roomId"`
	PeerID    string          `json:"peerId"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

func (p negotiationPayload) validate(event string) error {
	if p.RoomID == "" {
		return errMissingRoom
	}
	if p.PeerID == "" {
		return errors.New("missing peerId")
	}
	switch event {
	case evOffer:
		if len(p.Offer) == 0 {
			return errors.New("offer message missing offer")
		}
		if len(p.Answer) != 0 || len(p.Candidate) != 0 {
			return errors.New("offer message has unexpected fields")
		}
	case evAnswer:
		if len(p.Answer) == 0 {
			return errors.New("answer message missing answer")
		}
		if len(p.Offer) != 0 || len(p.Candidate) != 0 {
			return errors.New("answer message has unexpected fields")
		}
	case evIceCandidate:
		if len(p.Candidate) == 0 {
			return errors.New("ice_candidate message missing candidate")
		}
		if len(p.Offer) != 0 || len(p.Answer) != 0 {
			return errors.New("ice_candidate message has unexpected fields")
		}
	default:
		return fmt.Errorf("unsupported negotiation event %q", event)
	}
	return nil
}

// body returns the opaque payload being relayed for the given event.
func (p negotiationPayload) body(event string) json.RawMessage {
	switch event {
	case evOffer:
		return p.Offer
	case evAnswer:
		return p.Answer
	default:
		return p.Candidate
	}
}

type sendMessagePayload struct {
	RoomID    string `json:"roomId"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

func (p sendMessagePayload) validate() error {
	if p.RoomID == "" {
		return errMissingRoom
	}
	if p.Text == "" {
		return errors.New("missing text")
	}
	return nil
}

type sendReactionPayload struct {
	RoomID string `json:"roomId"`
	Type   string `json:"type"`
}

func (p sendReactionPayload) validate() error {
	if p.RoomID == "" {
		return errMissingRoom
	}
	if p.Type == "" {
		return errors.New("missing type")
	}
	return nil
}

type sendGesturePayload struct {
	RoomID  string `json:"roomId"`
	Gesture string `json:"gesture"`
}

func (p sendGesturePayload) validate() error {
	if p.RoomID == "" {
		return errMissingRoom
	}
	if p.Gesture == "" {
		return errors.New("missing gesture")
	}
	return nil
}

type moderationPayload struct {
	RoomID       string `json:"roomId"`
	TargetPeerID string `json:"targetPeerId"`
}

func (p moderationPayload) validate() error {
	if p.RoomID == "" {
		return errMissingRoom
	}
	if p.TargetPeerID == "" {
		return errors.New("missing targetPeerId")
	}
	return nil
}

// Outbound payloads. peerId is always stamped server-side with the
// sender's connection id, never taken from the client.

type peerDescriptor struct {
	PeerID   domain.PeerID `json:"peerId"`
	Username string        `json:"username"`
	Role     domain.Role   `json:"role"`
}

func describe(p domain.Participant) peerDescriptor {
	return peerDescriptor{PeerID: p.ID, Username: p.DisplayName, Role: p.Role}
}

func describeAll(ps []domain.Participant) []peerDescriptor {
	out := make([]peerDescriptor, 0, len(ps))
	for _, p := range ps {
		out = append(out, describe(p))
	}
	return out
}

type roomJoinedEvent struct {
	RoomID domain.RoomID `json:"roomId"`
	Role   domain.Role   `json:"role"`
	Status domain.Status `json:"status"`
}

type userWaitingEvent struct {
	PeerID   domain.PeerID `json:"peerId"`
	Username string        `json:"username"`
}

type existingPeersEvent struct {
	Peers []peerDescriptor `json:"peers"`
}

type userLeftEvent struct {
	PeerID domain.PeerID `json:"peerId"`
}

type hostChangedEvent struct {
	PeerID domain.PeerID `json:"peerId"`
}

type negotiationEvent struct {
	PeerID    domain.PeerID   `json:"peerId"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type newMessageEvent struct {
	PeerID    domain.PeerID `json:"peerId"`
	Text      string        `json:"text"`
	Timestamp int64         `json:"timestamp,omitempty"`
}

type newReactionEvent struct {
	PeerID domain.PeerID `json:"peerId"`
	Type   string        `json:"type"`
}

type newGestureEvent struct {
	PeerID  domain.PeerID `json:"peerId"`
	Gesture string        `json:"gesture"`
}

type roomEvent struct {
	RoomID domain.RoomID `json:"roomId"`
}

type moderationRejectedEvent struct {
	Action string        `json:"action"`
	RoomID domain.RoomID `json:"roomId"`
	Reason string        `json:"reason"`
}

type errorEvent struct {
	Error string `json:"error"`
}
