package shared

import "errors"

var (
	ErrNoLogger             = errors.New("no logger provided")
	ErrNoConfig             = errors.New("no config provided")
	ErrNoAuth               = errors.New("no auth strategy provided")
	ErrAmbiguousAuth        = errors.New("more than one auth strategy provided")
	ErrSocketNotOpen        = errors.New("socket is not open")
	ErrAlreadyConnected     = errors.New("client already connected")
	ErrAlreadyStarted       = errors.New("already started")
	ErrConnectInProgress    = errors.New("connect already in progress")
	ErrSessionClosed        = errors.New("session already closed")
	ErrOutsideProviderScope = errors.New("voice session used outside provider scope")
	ErrProviderStarted      = errors.New("provider already started")
	ErrPlayerNotInitialized = errors.New("player not initialized")
	ErrFormatMismatch       = errors.New("playback format differs from initialized format")
	ErrOHandlerAlreadySet   = errors.New("open handler already set")
	ErrCHandlerAlreadySet   = errors.New("close handler already set")
	ErrMHandlerAlreadySet   = errors.New("message handler already set")
	ErrAHandlerAlreadySet   = errors.New("audio handler already set")
	ErrEHandlerAlreadySet   = errors.New("error handler already set")
)
