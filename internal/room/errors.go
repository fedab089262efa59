package room

import "errors"

var (
	ErrRoomNotExist        = errors.New("room not exist")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrEmptyUsername       = errors.New("username cannot be empty")
	ErrDuplicateUserID     = errors.New("user id already present in room")
)
