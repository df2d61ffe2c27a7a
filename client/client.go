package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/verbalist-ai/voicelink/shared"
)

type OpenHandler func()
type CloseHandler func(code int, reason string)

// MessageHandler receives every decoded non-audio, non-error event.
type MessageHandler func(event ServerEvent)

// AudioHandler receives decoded PCM16 frames of assistant speech.
type AudioHandler func(id string, pcm []byte)

// ErrorHandler receives transport failures and backend error events.
// Backend errors arrive as *ErrorEvent.
type ErrorHandler func(err error)

// ReadyState mirrors the lifecycle of the underlying socket.
type ReadyState int32

const (
	ReadyStateIdle ReadyState = iota
	ReadyStateConnecting
	ReadyStateOpen
	ReadyStateClosing
	ReadyStateClosed
)

func (s ReadyState) String() string {
	switch s {
	case ReadyStateIdle:
		return "idle"
	case ReadyStateConnecting:
		return "connecting"
	case ReadyStateOpen:
		return "open"
	case ReadyStateClosing:
		return "closing"
	case ReadyStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	handshakeTimeout  = 10 * time.Second
	writeTimeout      = 10 * time.Second
	pongTimeout       = 60 * time.Second
	pingInterval      = 30 * time.Second
	closeGracePeriod  = 2 * time.Second
	sendQueueCapacity = 256
)

// Client speaks the voice chat protocol over a single websocket. It is
// reusable: after Disconnect (or a remote close) a new Connect starts a
// fresh socket with the same config and handlers.
type Client struct {
	logger shared.LoggerAdapter

	mu      sync.Mutex
	cfg     *Config
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	running bool

	state atomic.Int32

	oh OpenHandler
	ch CloseHandler
	mh MessageHandler
	ah AudioHandler
	eh ErrorHandler
}

func New(logger shared.LoggerAdapter) (*Client, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	c := &Client{logger: logger}
	c.state.Store(int32(ReadyStateIdle))
	return c, nil
}

func (c *Client) ReadyState() ReadyState {
	return ReadyState(c.state.Load())
}

func (c *Client) SetConfig(cfg *Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return shared.ErrAlreadyConnected
	}
	if cfg == nil {
		return shared.ErrNoConfig
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	c.cfg = cfg
	return nil
}

func (c *Client) RegisterOpenHandler(handler OpenHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return shared.ErrAlreadyConnected
	}
	if c.oh != nil {
		return shared.ErrOHandlerAlreadySet
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	c.oh = handler
	return nil
}

func (c *Client) RegisterCloseHandler(handler CloseHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return shared.ErrAlreadyConnected
	}
	if c.ch != nil {
		return shared.ErrCHandlerAlreadySet
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	c.ch = handler
	return nil
}

func (c *Client) RegisterMessageHandler(handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return shared.ErrAlreadyConnected
	}
	if c.mh != nil {
		return shared.ErrMHandlerAlreadySet
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	c.mh = handler
	return nil
}

func (c *Client) RegisterAudioHandler(handler AudioHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return shared.ErrAlreadyConnected
	}
	if c.ah != nil {
		return shared.ErrAHandlerAlreadySet
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	c.ah = handler
	return nil
}

func (c *Client) RegisterErrorHandler(handler ErrorHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return shared.ErrAlreadyConnected
	}
	if c.eh != nil {
		return shared.ErrEHandlerAlreadySet
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	c.eh = handler
	return nil
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return shared.ErrAlreadyConnected
	}
	if c.cfg == nil {
		c.mu.Unlock()
		return shared.ErrNoConfig
	}
	endpoint := c.cfg.endpoint()
	host := c.cfg.Host
	c.mu.Unlock()

	// One dial at a time. Closed and Idle are the only dialable states.
	if !c.state.CompareAndSwap(int32(ReadyStateIdle), int32(ReadyStateConnecting)) &&
		!c.state.CompareAndSwap(int32(ReadyStateClosed), int32(ReadyStateConnecting)) {
		return shared.ErrAlreadyConnected
	}
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		c.state.Store(int32(ReadyStateClosed))
		return fmt.Errorf("dialing %s: %w", host, err)
	}

	send := make(chan []byte, sendQueueCapacity)
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.send = send
	c.done = done
	c.running = true
	oh := c.oh
	c.mu.Unlock()
	c.state.Store(int32(ReadyStateOpen))

	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	go c.readPump(conn, done)
	go c.writePump(conn, send, done)

	c.logger.Info("socket opened", zap.String("host", host))
	if oh != nil {
		oh()
	}
	return nil
}

// Done is closed when the current socket is torn down. Before any
// connect it returns an already closed channel.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.done
}

// Disconnect performs the close handshake and waits for the read pump,
// close handler included, to wind down. Calling it on an idle client is
// a no-op.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	c.state.Store(int32(ReadyStateClosing))
	deadline := time.Now().Add(writeTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		c.logger.Warn("writing close frame failed", zap.Error(err))
	}
	select {
	case <-done:
	case <-time.After(closeGracePeriod):
		c.logger.Warn("close handshake timed out, dropping socket")
		_ = conn.Close()
		<-done
	}
	return nil
}

func (c *Client) readPump(conn *websocket.Conn, done chan struct{}) {
	closeCode := websocket.CloseNormalClosure
	closeReason := ""
	defer func() {
		_ = conn.Close()
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
			c.send = nil
			c.running = false
			c.state.Store(int32(ReadyStateClosed))
		}
		ch := c.ch
		c.mu.Unlock()
		c.logger.Info("socket closed", zap.Int("code", closeCode), zap.String("reason", closeReason))
		// The handler settles before done closes, so a Disconnect caller
		// observes its effects once Disconnect returns.
		if ch != nil {
			ch(closeCode, closeReason)
		}
		close(done)
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeCode, closeReason = closeDetails(err)
			// Timeouts and torn connections are not CloseErrors, so
			// anything but a clean close while open counts as a failure.
			normal := websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway)
			if !normal && c.ReadyState() == ReadyStateOpen {
				c.logger.Error("socket closed unexpectedly", err, zap.Int("code", closeCode))
				if eh := c.errorHandler(); eh != nil {
					eh(fmt.Errorf("socket closed unexpectedly: %w", err))
				}
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) writePump(conn *websocket.Conn, send chan []byte, done chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case data := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("writing message failed", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.logger.Warn("writing ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) dispatch(data []byte) {
	ev, err := ParseServerEvent(data)
	if err != nil {
		c.logger.Error("parsing server event failed", err, zap.ByteString("data", data))
		return
	}
	switch e := ev.(type) {
	case *AudioOutput:
		pcm, err := e.PCM()
		if err != nil {
			c.logger.Error("decoding audio output failed", err)
			return
		}
		c.logger.Debug("received audio frame",
			zap.String("id", e.ID),
			zap.Int("index", e.Index),
			zap.Int("bytes", len(pcm)),
		)
		if ah := c.audioHandler(); ah != nil {
			ah(e.ID, pcm)
		}
	case *ErrorEvent:
		c.logger.Error("received backend error", e, zap.String("slug", e.Slug))
		if eh := c.errorHandler(); eh != nil {
			eh(e)
		}
	default:
		c.logger.Debug("received event", zap.String("type", string(ev.ServerEventType())))
		if mh := c.messageHandler(); mh != nil {
			mh(ev)
		}
	}
}

func (c *Client) messageHandler() MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mh
}

func (c *Client) audioHandler() AudioHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ah
}

func (c *Client) errorHandler() ErrorHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eh
}

func (c *Client) enqueue(data []byte) error {
	c.mu.Lock()
	send := c.send
	running := c.running
	c.mu.Unlock()
	if !running || send == nil || c.ReadyState() != ReadyStateOpen {
		return shared.ErrSocketNotOpen
	}
	select {
	case send <- data:
		return nil
	default:
		return errors.New("send queue is full")
	}
}

func (c *Client) sendEvent(v any) error {
	data, err := marshalEvent(v)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// SendAudio publishes one frame of microphone PCM16.
func (c *Client) SendAudio(pcm []byte) error {
	return c.sendEvent(NewAudioInput(pcm))
}

func (c *Client) SendSessionSettings(settings SessionSettings) error {
	settings.Type = EventTypeSessionSettings
	return c.sendEvent(settings)
}

// SendUserInput injects text as a user turn, as if it had been spoken.
func (c *Client) SendUserInput(text string) error {
	return c.sendEvent(UserInput{Type: EventTypeUserInput, Text: text})
}

// SendAssistantInput makes the assistant speak the given text verbatim.
func (c *Client) SendAssistantInput(text string) error {
	return c.sendEvent(AssistantInput{Type: EventTypeAssistantInput, Text: text})
}

func (c *Client) SendPauseAssistant() error {
	return c.sendEvent(PauseAssistant{Type: EventTypePauseAssistant})
}

func (c *Client) SendResumeAssistant() error {
	return c.sendEvent(ResumeAssistant{Type: EventTypeResumeAssistant})
}

func closeDetails(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}
