package client

import (
	"net/url"
	"strconv"

	"github.com/verbalist-ai/voicelink/shared"
)

const (
	DefaultHost = "api.verbalist.ai"
	// DefaultEncoding is raw little-endian 16-bit PCM.
	DefaultEncoding   = "linear16"
	DefaultSampleRate = 16000
	DefaultChannels   = 1

	chatPath = "/v1/voice/chat"
)

// Config describes one socket session. Exactly one of AccessToken or
// APIKey must be set; FetchAccessToken turns a key pair into a token for
// deployments that keep the secret off the client.
type Config struct {
	Host        string
	AccessToken string
	APIKey      string

	ConfigID           string
	ConfigVersion      int
	ResumedChatGroupID string

	VerboseTranscription bool

	Encoding   string
	SampleRate int
	Channels   int

	// Insecure dials ws:// instead of wss://, for self-hosted backends
	// on a local network.
	Insecure bool
}

func (c *Config) Validate() error {
	auth := 0
	if c.AccessToken != "" {
		auth++
	}
	if c.APIKey != "" {
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

func (c *Config) withDefaults() *Config {
	out := *c
	if out.Host == "" {
		out.Host = DefaultHost
	}
	if out.Encoding == "" {
		out.Encoding = DefaultEncoding
	}
	if out.SampleRate <= 0 {
		out.SampleRate = DefaultSampleRate
	}
	if out.Channels <= 0 {
		out.Channels = DefaultChannels
	}
	return &out
}

func (c *Config) endpoint() string {
	cfg := c.withDefaults()
	scheme := "wss"
	if cfg.Insecure {
		scheme = "ws"
	}
	q := url.Values{}
	if cfg.AccessToken != "" {
		q.Set("access_token", cfg.AccessToken)
	} else {
		q.Set("api_key", cfg.APIKey)
	}
	if cfg.ConfigID != "" {
		q.Set("config_id", cfg.ConfigID)
		if cfg.ConfigVersion > 0 {
			q.Set("config_version", strconv.Itoa(cfg.ConfigVersion))
		}
	}
	if cfg.ResumedChatGroupID != "" {
		q.Set("resumed_chat_group_id", cfg.ResumedChatGroupID)
	}
	if cfg.VerboseTranscription {
		q.Set("verbose_transcription", "true")
	}
	q.Set("encoding", cfg.Encoding)
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("channels", strconv.Itoa(cfg.Channels))
	q.Set("client_version", shared.Version)
	u := url.URL{
		Scheme:   scheme,
		Host:     cfg.Host,
		Path:     chatPath,
		RawQuery: q.Encode(),
	}
	return u.String()
}
