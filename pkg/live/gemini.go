// ABOUTME: WebSocket client for the Gemini Live BidiGenerateContent protocol
// ABOUTME: Handles connection, setup, keepalive and message routing to a Handler
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultEndpoint is the Gemini Live websocket endpoint
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// DefaultModel is used when Config.Model is empty
	DefaultModel = "gemini-2.0-flash-live-001"

	defaultKeepalive    = 20 * time.Second
	defaultWriteTimeout = 10 * time.Second
	handshakeTimeout    = 10 * time.Second
)

// Config holds client configuration
type Config struct {
	Endpoint     string
	APIKey       string
	Model        string
	Voice        string
	Instructions string

	// Transcribe requests input and output transcription
	Transcribe bool

	// UserAgent is sent on the websocket handshake when set
	UserAgent string

	KeepaliveInterval time.Duration
	Logger            *slog.Logger
}

// outgoing

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *content         `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Media `json:"inlineData,omitempty"`
}

type realtimeInputMessage struct {
	RealtimeInput struct {
		MediaChunks []Media `json:"mediaChunks"`
	} `json:"realtimeInput"`
}

type clientContentMessage struct {
	ClientContent struct {
		Turns        []content `json:"turns"`
		TurnComplete bool      `json:"turnComplete"`
	} `json:"clientContent"`
}

// incoming

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	Error         *serverError     `json:"error,omitempty"`
}

type serverError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

// GeminiClient is a Sender backed by one Gemini Live websocket connection
type GeminiClient struct {
	config  Config
	handler Handler
	logger  *slog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce *sync.Once

	// gorilla allows one concurrent writer
	writeMu sync.Mutex
}

// NewGeminiClient creates a client that delivers events to handler
func NewGeminiClient(config Config, handler Handler) *GeminiClient {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = defaultKeepalive
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = HandlerFuncs{}
	}

	return &GeminiClient{
		config:  config,
		handler: handler,
		logger:  logger,
	}
}

// Connect dials the endpoint, sends the setup message and starts reading
func (c *GeminiClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	c.mu.Unlock()

	endpoint, err := c.endpointURL()
	if err != nil {
		return err
	}
	c.logger.Info("connecting", "endpoint", redact(endpoint))

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	header := http.Header{}
	if c.config.UserAgent != "" {
		header.Set("User-Agent", c.config.UserAgent)
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.ctx = sessCtx
	c.cancel = cancel
	c.closeOnce = &sync.Once{}
	once := c.closeOnce
	c.mu.Unlock()

	if err := c.writeJSON(ctx, c.setupMessage()); err != nil {
		c.shutdown(once, conn, nil, false)
		return fmt.Errorf("setup failed: %w", err)
	}

	c.handler.OnOpen()

	go c.readMessages(sessCtx, conn, once)
	go c.keepalive(sessCtx, conn)

	return nil
}

func (c *GeminiClient) endpointURL() (string, error) {
	u, err := url.Parse(c.config.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", c.config.Endpoint, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid endpoint scheme: %q", u.Scheme)
	}
	if c.config.APIKey != "" {
		q := u.Query()
		q.Set("key", c.config.APIKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *GeminiClient) setupMessage() setupMessage {
	msg := setupMessage{
		Setup: setupConfig{
			Model: "models/" + c.config.Model,
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
			},
		},
	}

	if c.config.Voice != "" {
		sc := &speechConfig{}
		sc.VoiceConfig.PrebuiltVoiceConfig.VoiceName = c.config.Voice
		msg.Setup.GenerationConfig.SpeechConfig = sc
	}
	if c.config.Instructions != "" {
		msg.Setup.SystemInstruction = &content{Parts: []part{{Text: c.config.Instructions}}}
	}
	if c.config.Transcribe {
		msg.Setup.InputAudioTranscription = &struct{}{}
		msg.Setup.OutputAudioTranscription = &struct{}{}
	}
	return msg
}

// SendText sends a complete user text turn
func (c *GeminiClient) SendText(ctx context.Context, text string) error {
	var msg clientContentMessage
	msg.ClientContent.Turns = []content{{Role: "user", Parts: []part{{Text: text}}}}
	msg.ClientContent.TurnComplete = true
	return c.writeJSON(ctx, msg)
}

// SendMedia sends one realtime media chunk
func (c *GeminiClient) SendMedia(ctx context.Context, media Media) error {
	var msg realtimeInputMessage
	msg.RealtimeInput.MediaChunks = []Media{media}
	return c.writeJSON(ctx, msg)
}

// writeJSON sends a JSON text frame, or ErrChannelClosed when disconnected
func (c *GeminiClient) writeJSON(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()
	if !connected {
		return ErrChannelClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// readMessages reads and routes incoming messages until the connection ends
func (c *GeminiClient) readMessages(ctx context.Context, conn *websocket.Conn, once *sync.Once) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.shutdown(once, conn, nil, true)
				return
			}
			c.logger.Warn("read error", "error", err)
			c.handler.OnError(err)
			c.shutdown(once, conn, err, true)
			return
		}

		var raw serverMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			c.logger.Warn("failed to parse server message", "error", err)
			continue
		}

		if raw.Error != nil {
			c.handler.OnError(fmt.Errorf("gemini: %d %s", raw.Error.Code, raw.Error.Message))
		}

		msg := c.convert(&raw)
		if !msg.Empty() {
			c.handler.OnMessage(msg)
		}
	}
}

func (c *GeminiClient) convert(raw *serverMessage) Message {
	msg := Message{SetupComplete: raw.SetupComplete != nil}

	sc := raw.ServerContent
	if sc == nil {
		return msg
	}

	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			// Payloads pass through encoded; the receiver decodes and counts bad ones
			if p.InlineData != nil {
				msg.Audio = append(msg.Audio, *p.InlineData)
			}
			msg.Text += p.Text
		}
	}
	if sc.InputTranscription != nil {
		msg.InputTranscript = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		msg.OutputTranscript = sc.OutputTranscription.Text
	}
	msg.Interrupted = sc.Interrupted
	msg.TurnComplete = sc.TurnComplete
	return msg
}

// keepalive pings the server so idle sessions are not dropped
func (c *GeminiClient) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.config.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(defaultWriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("keepalive ping failed", "error", err)
			}
		}
	}
}

// shutdown tears a connection down once. notify controls whether OnClose fires.
func (c *GeminiClient) shutdown(once *sync.Once, conn *websocket.Conn, cause error, notify bool) {
	once.Do(func() {
		c.mu.Lock()
		if c.conn == conn {
			c.connected = false
			c.cancel()
		}
		c.mu.Unlock()

		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()

		c.logger.Info("connection closed")
		if notify {
			c.handler.OnClose(cause)
		}
	})
}

// Close closes the connection. Safe to call more than once.
func (c *GeminiClient) Close() error {
	c.mu.RLock()
	conn, once, connected := c.conn, c.closeOnce, c.connected
	c.mu.RUnlock()

	if conn == nil || !connected {
		return nil
	}
	c.shutdown(once, conn, nil, true)
	return nil
}

// IsConnected returns connection status
func (c *GeminiClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// redact hides the API key when logging an endpoint
func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
