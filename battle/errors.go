package battle

import "errors"

var (
	ErrRoomNotFound     = errors.New("room-not-found")
	ErrRoomFull         = errors.New("room-full")
	ErrAlreadyJoined    = errors.New("already-joined")
	ErrRoomStarted      = errors.New("room-already-started")
	ErrPlayerNotFound   = errors.New("player-not-found")
	ErrHostCannotReady  = errors.New("host-does-not-ready")
	ErrOnlyHostCanStart = errors.New("only-host-can-start")
	ErrNotEnoughPlayers = errors.New("need-at-least-two-players")
	ErrNotAllReady      = errors.New("not-all-ready")
	ErrNotPlaying       = errors.New("not-in-answer-phase")
	ErrAlreadySubmitted = errors.New("already-submitted")
	ErrRoomClosed       = errors.New("room-closed")
)
