// Package messages accumulates the transcript of a voice chat: user and
// assistant turns, chat metadata, and connection markers, in arrival
// order.
package messages

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verbalist-ai/voicelink/client"
)

type Kind string

const (
	KindUserMessage      Kind = "user_message"
	KindAssistantMessage Kind = "assistant_message"
	KindChatMetadata     Kind = "chat_metadata"
	// KindConnected and KindDisconnected are synthetic markers recording
	// when the socket opened and closed, so consumers can segment the
	// transcript by connection.
	KindConnected    Kind = "voicelink_connected"
	KindDisconnected Kind = "voicelink_disconnected"
)

// Message is one transcript entry. Role, Content and Scores are empty
// for markers and metadata.
type Message struct {
	ID         string
	Kind       Kind
	Role       client.Role
	Content    string
	Scores     map[string]float64
	FromText   bool
	ReceivedAt time.Time
}

type Store struct {
	mu   sync.Mutex
	msgs []Message

	// nowFn is swappable for tests.
	nowFn func() time.Time
}

func New() *Store {
	return &Store{nowFn: time.Now}
}

func (s *Store) append(m Message) Message {
	m.ID = uuid.NewString()
	m.ReceivedAt = s.nowFn()
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()
	return m
}

func (s *Store) AddUserMessage(ev *client.UserMessage) Message {
	m := Message{
		Kind:     KindUserMessage,
		Role:     ev.Message.Role,
		Content:  ev.Message.Content,
		FromText: ev.FromText,
	}
	if ev.Models.Prosody != nil {
		m.Scores = ev.Models.Prosody.Scores
	}
	return s.append(m)
}

func (s *Store) AddAssistantMessage(ev *client.AssistantMessage) Message {
	m := Message{
		Kind:     KindAssistantMessage,
		Role:     ev.Message.Role,
		Content:  ev.Message.Content,
		FromText: ev.FromText,
	}
	if ev.Models.Prosody != nil {
		m.Scores = ev.Models.Prosody.Scores
	}
	return s.append(m)
}

func (s *Store) AddChatMetadata(ev *client.ChatMetadata) Message {
	return s.append(Message{
		Kind:    KindChatMetadata,
		Content: ev.ChatID,
	})
}

func (s *Store) AddConnected() Message {
	return s.append(Message{Kind: KindConnected})
}

func (s *Store) AddDisconnected() Message {
	return s.append(Message{Kind: KindDisconnected})
}

// All returns the transcript in arrival order.
func (s *Store) All() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// LastVoiceMessage returns the newest assistant turn.
func (s *Store) LastVoiceMessage() (Message, bool) {
	return s.lastOf(KindAssistantMessage)
}

// LastUserMessage returns the newest user turn.
func (s *Store) LastUserMessage() (Message, bool) {
	return s.lastOf(KindUserMessage)
}

func (s *Store) lastOf(kind Kind) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.msgs) - 1; i >= 0; i-- {
		if s.msgs[i].Kind == kind {
			return s.msgs[i], true
		}
	}
	return Message{}, false
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = nil
}
