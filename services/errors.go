package services

import "errors"

var (
	// ErrInvalidConfig rejects a room creation request with bad parameters.
	ErrInvalidConfig = errors.New("invalid room configuration")

	// ErrRoomNotFound is returned by registry lookups.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomNotJoinable covers full rooms and rooms that already started
	// or finished. Callers are expected to pick another room.
	ErrRoomNotJoinable = errors.New("room not joinable")

	// ErrAnswerRejected covers stale, duplicate and out-of-window
	// submissions. It is reported to the submitter only and never affects
	// anyone's score.
	ErrAnswerRejected = errors.New("answer rejected")
)
