package client

import (
	"encoding/base64"
	"fmt"

	"github.com/bytedance/sonic"
)

type EventType string

// Events the client publishes to the voice backend.
const (
	EventTypeSessionSettings EventType = "session_settings"
	EventTypeAudioInput      EventType = "audio_input"
	EventTypeUserInput       EventType = "user_input"
	EventTypeAssistantInput  EventType = "assistant_input"
	EventTypePauseAssistant  EventType = "pause_assistant"
	EventTypeResumeAssistant EventType = "resume_assistant"
)

// Events the voice backend publishes to the client.
const (
	EventTypeChatMetadata     EventType = "chat_metadata"
	EventTypeUserMessage      EventType = "user_message"
	EventTypeAssistantMessage EventType = "assistant_message"
	EventTypeAudioOutput      EventType = "audio_output"
	EventTypeUserInterruption EventType = "user_interruption"
	EventTypeAssistantEnd     EventType = "assistant_end"
	EventTypeError            EventType = "error"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ServerEvent is any decoded backend event. Unknown types decode into
// RawEvent so protocol additions never break the read loop.
type ServerEvent interface {
	ServerEventType() EventType
}

type Interval struct {
	Begin int64 `json:"begin"`
	End   int64 `json:"end"`
}

type Transcript struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Prosody carries per-utterance expression scores keyed by trait name.
type Prosody struct {
	Scores map[string]float64 `json:"scores"`
}

type Inference struct {
	Prosody *Prosody `json:"prosody,omitempty"`
}

type ChatMetadata struct {
	Type        EventType `json:"type"`
	ChatID      string    `json:"chat_id"`
	ChatGroupID string    `json:"chat_group_id"`
	RequestID   string    `json:"request_id,omitempty"`
}

func (e *ChatMetadata) ServerEventType() EventType { return EventTypeChatMetadata }

type UserMessage struct {
	Type     EventType  `json:"type"`
	Message  Transcript `json:"message"`
	Models   Inference  `json:"models"`
	Time     Interval   `json:"time"`
	FromText bool       `json:"from_text"`
}

func (e *UserMessage) ServerEventType() EventType { return EventTypeUserMessage }

type AssistantMessage struct {
	Type     EventType  `json:"type"`
	ID       string     `json:"id,omitempty"`
	Message  Transcript `json:"message"`
	Models   Inference  `json:"models"`
	FromText bool       `json:"from_text"`
}

func (e *AssistantMessage) ServerEventType() EventType { return EventTypeAssistantMessage }

// AudioOutput carries one base64 PCM16 frame of assistant speech. ID ties
// the frame to the assistant message it voices, Index orders frames
// within that message.
type AudioOutput struct {
	Type  EventType `json:"type"`
	ID    string    `json:"id"`
	Index int       `json:"index"`
	Data  string    `json:"data"`
}

func (e *AudioOutput) ServerEventType() EventType { return EventTypeAudioOutput }

func (e *AudioOutput) PCM() ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(e.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding audio frame %s[%d]: %w", e.ID, e.Index, err)
	}
	return pcm, nil
}

type UserInterruption struct {
	Type EventType `json:"type"`
	Time int64     `json:"time"`
}

func (e *UserInterruption) ServerEventType() EventType { return EventTypeUserInterruption }

type AssistantEnd struct {
	Type EventType `json:"type"`
}

func (e *AssistantEnd) ServerEventType() EventType { return EventTypeAssistantEnd }

type ErrorEvent struct {
	Type    EventType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Slug    string    `json:"slug,omitempty"`
	Message string    `json:"message"`
}

func (e *ErrorEvent) ServerEventType() EventType { return EventTypeError }

func (e *ErrorEvent) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("voice backend error %s: %s", e.Code, e.Message)
	}
	return "voice backend error: " + e.Message
}

// RawEvent preserves an event of a type this library does not know.
type RawEvent struct {
	Type EventType
	Data []byte
}

func (e *RawEvent) ServerEventType() EventType { return e.Type }

func marshalEvent(v any) ([]byte, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling event: %w", err)
	}
	return data, nil
}

func ParseServerEvent(data []byte) (ServerEvent, error) {
	var probe struct {
		Type EventType `json:"type"`
	}
	if err := sonic.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("probing event type: %w", err)
	}
	var ev ServerEvent
	switch probe.Type {
	case EventTypeChatMetadata:
		ev = new(ChatMetadata)
	case EventTypeUserMessage:
		ev = new(UserMessage)
	case EventTypeAssistantMessage:
		ev = new(AssistantMessage)
	case EventTypeAudioOutput:
		ev = new(AudioOutput)
	case EventTypeUserInterruption:
		ev = new(UserInterruption)
	case EventTypeAssistantEnd:
		ev = new(AssistantEnd)
	case EventTypeError:
		ev = new(ErrorEvent)
	default:
		return &RawEvent{Type: probe.Type, Data: append([]byte(nil), data...)}, nil
	}
	if err := sonic.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("unmarshaling %s event: %w", probe.Type, err)
	}
	return ev, nil
}

type AudioSettings struct {
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// ContextInjection prepends text to the conversation context. Type is
// "persistent" to keep it for the whole chat or "temporary" for the next
// assistant turn only.
type ContextInjection struct {
	Text string `json:"text"`
	Type string `json:"type,omitempty"`
}

type SessionSettings struct {
	Type         EventType         `json:"type"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	Audio        *AudioSettings    `json:"audio,omitempty"`
	Context      *ContextInjection `json:"context,omitempty"`
	Variables    map[string]string `json:"variables,omitempty"`
}

type AudioInput struct {
	Type EventType `json:"type"`
	Data string    `json:"data"`
}

func NewAudioInput(pcm []byte) AudioInput {
	return AudioInput{
		Type: EventTypeAudioInput,
		Data: base64.StdEncoding.EncodeToString(pcm),
	}
}

type UserInput struct {
	Type EventType `json:"type"`
	Text string    `json:"text"`
}

type AssistantInput struct {
	Type EventType `json:"type"`
	Text string    `json:"text"`
}

type PauseAssistant struct {
	Type EventType `json:"type"`
}

type ResumeAssistant struct {
	Type EventType `json:"type"`
}
