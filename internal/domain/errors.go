package domain

import "errors"

var (
	// ErrRoomNotFound: the named room is not in the registry.
	ErrRoomNotFound = errors.New("room not found")
	// ErrTargetNotFound: the referenced connection is not a member of the room.
	ErrTargetNotFound = errors.New("target not found")
	// ErrUnauthorized: a moderation action was requested by a non-host.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotWaiting: approve/deny referenced a participant that is not waiting.
	ErrNotWaiting = errors.New("participant is not waiting")
)
