package model

import "errors"

// Errors surfaced to clients. Every client-visible failure wraps one of these.
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room is full")
	ErrNotAuthorized      = errors.New("player is not authorized")
	ErrInvalidSceneChange = errors.New("invalid scene change")
	ErrValidationFailed   = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
)

// Internal errors
var (
	ErrRoomCodeTaken      = errors.New("room code already in use")
	ErrVersionConflict    = errors.New("version conflict")
	ErrGameAlreadyStarted = errors.New("game already started")
)
