// ABOUTME: Channel message model and event-sink interfaces
// ABOUTME: Shared by the websocket client, the session and their test doubles
package live

import (
	"context"
	"errors"
)

// ErrChannelClosed is returned when sending with no active connection
var ErrChannelClosed = errors.New("channel closed")

// Media is one base64 encoded payload with its MIME type
type Media struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Message is one inbound message. Any combination of fields may be set,
// including none.
type Message struct {
	// Audio holds zero or more agent audio chunks in arrival order
	Audio []Media

	// Text is incremental agent text for the current utterance
	Text string

	// InputTranscript is a transcribed fragment of user speech
	InputTranscript string

	// OutputTranscript is a transcribed fragment of agent speech
	OutputTranscript string

	Interrupted   bool
	TurnComplete  bool
	SetupComplete bool
}

// Empty reports whether the message carries nothing actionable
func (m Message) Empty() bool {
	return len(m.Audio) == 0 &&
		m.Text == "" &&
		m.InputTranscript == "" &&
		m.OutputTranscript == "" &&
		!m.Interrupted &&
		!m.TurnComplete &&
		!m.SetupComplete
}

// Handler receives channel events. OnOpen precedes every OnMessage and
// OnClose is delivered exactly once per connection.
type Handler interface {
	OnOpen()
	OnMessage(msg Message)
	OnError(err error)
	OnClose(err error)
}

// Sender is the outbound side of the channel
type Sender interface {
	SendText(ctx context.Context, text string) error
	SendMedia(ctx context.Context, media Media) error
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Open    func()
	Message func(Message)
	Error   func(error)
	Close   func(error)
}

func (h HandlerFuncs) OnOpen() {
	if h.Open != nil {
		h.Open()
	}
}

func (h HandlerFuncs) OnMessage(msg Message) {
	if h.Message != nil {
		h.Message(msg)
	}
}

func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

func (h HandlerFuncs) OnClose(err error) {
	if h.Close != nil {
		h.Close(err)
	}
}
