package rtvi

import (
	"context"
	"net/http"
	"time"
)

// Emitter queues an event for dispatch. Transports call it from any
// goroutine; it never blocks past client shutdown.
type Emitter func(Event)

// Options configure a client and the transport it drives.
type Options struct {
	BaseURL    string
	EnableMic  bool
	EnableCam  bool
	Timeout    time.Duration
	HTTPClient *http.Client
}

// DefaultOptions mirrors the browser defaults: microphone on, camera off,
// thirty second connect timeout.
func DefaultOptions(baseURL string) Options {
	return Options{
		BaseURL:   baseURL,
		EnableMic: true,
		EnableCam: false,
		Timeout:   30 * time.Second,
	}
}

// Transport is a pluggable connection backend (websocket, WebRTC, scripted).
type Transport interface {
	// Initialize hands the transport its options and the emitter it
	// reports events through. Called once by NewClient.
	Initialize(opts Options, emit Emitter)

	// InitDevices prepares local media according to the options.
	InitDevices(ctx context.Context) error

	// Connect establishes the session. It returns once messages can be sent.
	Connect(ctx context.Context) error

	// SendMessage delivers a client-to-bot message.
	SendMessage(msg Message) error

	// Disconnect tears the session down. Idempotent.
	Disconnect() error
}
