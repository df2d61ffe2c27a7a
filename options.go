package voicelink

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/verbalist-ai/voicelink/client"
	"github.com/verbalist-ai/voicelink/messages"
	"github.com/verbalist-ai/voicelink/shared"
)

// Options configures a provider. Exactly one of AccessToken or APIKey
// must be set. Callbacks run on session goroutines and must not block;
// in particular they must not call Session.Disconnect synchronously.
type Options struct {
	Host        string `yaml:"host"`
	AccessToken string `yaml:"access_token"`
	APIKey      string `yaml:"api_key"`

	ConfigID           string `yaml:"config_id"`
	ConfigVersion      int    `yaml:"config_version"`
	ResumedChatGroupID string `yaml:"resumed_chat_group_id"`

	VerboseTranscription bool `yaml:"verbose_transcription"`
	// Insecure dials ws:// instead of wss://, for self-hosted backends.
	Insecure bool `yaml:"insecure"`

	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	SystemPrompt string            `yaml:"system_prompt"`
	Variables    map[string]string `yaml:"variables"`

	// KeepMessagesOnDisconnect leaves the transcript in place when the
	// session disconnects. By default Disconnect clears it.
	KeepMessagesOnDisconnect bool `yaml:"keep_messages_on_disconnect"`

	Logger shared.LoggerAdapter `yaml:"-"`

	OnMessage func(msg messages.Message) `yaml:"-"`
	OnOpen    func()                     `yaml:"-"`
	OnClose   func()                     `yaml:"-"`
	OnError   func(verr *VoiceError)     `yaml:"-"`
}

// clientConfig maps the options onto a socket config. The session
// overrides SampleRate and Channels with the negotiated device values
// before dialing.
func (o *Options) clientConfig() *client.Config {
	return &client.Config{
		Host:                 o.Host,
		AccessToken:          o.AccessToken,
		APIKey:               o.APIKey,
		ConfigID:             o.ConfigID,
		ConfigVersion:        o.ConfigVersion,
		ResumedChatGroupID:   o.ResumedChatGroupID,
		VerboseTranscription: o.VerboseTranscription,
		SampleRate:           o.SampleRate,
		Channels:             o.Channels,
		Insecure:             o.Insecure,
	}
}

func (o *Options) validate() error {
	if o.Logger == nil {
		return shared.ErrNoLogger
	}
	auth := 0
	if o.AccessToken != "" {
		auth++
	}
	if o.APIKey != "" {
		auth++
	}
	switch auth {
	case 0:
		return shared.ErrNoAuth
	case 1:
	default:
		return shared.ErrAmbiguousAuth
	}
	return nil
}

// LoadOptions reads YAML options from path. Unknown or duplicate keys
// are rejected. Logger and callbacks must still be set in code.
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading options file: %w", err)
	}
	opts := new(Options)
	if err := yaml.UnmarshalWithOptions(data, opts, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("unmarshaling options: %w", err)
	}
	return opts, nil
}
