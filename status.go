package voicelink

type StatusValue string

const (
	StatusDisconnected StatusValue = "disconnected"
	StatusConnecting   StatusValue = "connecting"
	StatusConnected    StatusValue = "connected"
	StatusError        StatusValue = "error"
)

// Status pairs the session lifecycle value with a human-readable reason.
// Reason is set only while Value is StatusError.
type Status struct {
	Value  StatusValue
	Reason string
}

func (s Status) String() string {
	if s.Reason != "" {
		return string(s.Value) + ": " + s.Reason
	}
	return string(s.Value)
}

type ErrorKind string

const (
	ErrorKindSocket ErrorKind = "socket_error"
	ErrorKindAudio  ErrorKind = "audio_error"
	ErrorKindMic    ErrorKind = "mic_error"
)

// VoiceError is the flat failure surface of a session. Whatever a
// collaborator reports is reduced to a kind and a message at the
// boundary, so consumers never deal with wrapped causes.
type VoiceError struct {
	Kind    ErrorKind
	Message string
}

func (e *VoiceError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func newSocketError(msg string) *VoiceError {
	return &VoiceError{Kind: ErrorKindSocket, Message: msg}
}

func newAudioError(msg string) *VoiceError {
	return &VoiceError{Kind: ErrorKindAudio, Message: msg}
}

func newMicError(msg string) *VoiceError {
	return &VoiceError{Kind: ErrorKindMic, Message: msg}
}

// Reasons surfaced on the two terminal connect failures. These strings
// are part of the API: consumers match on them to drive their UI.
const (
	ReasonMicrophoneDenied = "Microphone permission denied"
	ReasonSocketFailed     = "We could not connect to the voice. Please try again."
)
