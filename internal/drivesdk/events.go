package drivesdk

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	eventsBufferSize        = 64
	eventsReconnectDelay    = 1 * time.Second
	eventsMaxReconnectDelay = 8 * time.Second
	eventsReconnectTimeout  = 10 * time.Second
	wsClientMaxMessageSize  = 4 * 1024 * 1024 // 4MB
	eventsPath              = "/api/v1/events"
)

// EventsAPI keeps a websocket to the drive service open and forwards the
// sync-status and file-change events it pushes.
type EventsAPI struct {
	baseURL          string
	header           http.Header
	wsClient         *wsClient
	events           chan *Event
	ctx              context.Context
	cancel           context.CancelFunc
	mu               sync.RWMutex
	connected        bool
	reconnectAttempt int
}

func newEventsAPI(baseURL string, header http.Header) *EventsAPI {
	ctx, cancel := context.WithCancel(context.Background())

	return &EventsAPI{
		baseURL: baseURL,
		header:  header,
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan *Event, eventsBufferSize),
	}
}

// Connect opens the websocket. Once connected, dropped connections are
// re-established in the background until Close.
func (e *EventsAPI) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.connected && e.wsClient != nil {
		return nil
	}

	wsClient, err := e.connectLocked(ctx)
	if err != nil {
		return fmt.Errorf("sdk: events: connect failed: %w", err)
	}

	go e.manageConnection(wsClient)
	return nil
}

func (e *EventsAPI) IsConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.connected
}

// Get returns the channel of received events
func (e *EventsAPI) Get() <-chan *Event {
	return e.events
}

// Close terminates the websocket connection and stops reconnecting
func (e *EventsAPI) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancel()

	if e.wsClient != nil {
		e.wsClient.Close()
		e.wsClient = nil
		slog.Info("events socket closed")
	}
	e.connected = false
}

func (e *EventsAPI) connectLocked(ctx context.Context) (*wsClient, error) {
	if e.ctx.Err() != nil {
		return nil, e.ctx.Err()
	}

	if e.wsClient != nil {
		e.wsClient.Close()
		e.wsClient = nil
		e.connected = false
	}

	wsURL, err := e.fullURL()
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: e.header,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	conn.SetReadLimit(wsClientMaxMessageSize)

	wsClient := newWSClient(conn)
	wsClient.Start(e.ctx)

	e.wsClient = wsClient
	e.connected = true

	slog.Info("events socket connected", "url", wsURL)
	return wsClient, nil
}

func (e *EventsAPI) manageConnection(wsClient *wsClient) {
	go e.consumeEvents(wsClient)

	select {
	case <-wsClient.closed:
		e.mu.Lock()
		if e.wsClient == wsClient {
			e.wsClient = nil
			e.connected = false
			e.reconnectAttempt = 0
		}
		e.mu.Unlock()

		if e.ctx.Err() != nil {
			return
		}
		slog.Info("events socket disconnected, will reconnect")
		e.reconnectWithBackoff()

	case <-e.ctx.Done():
		return
	}
}

func (e *EventsAPI) consumeEvents(wsClient *wsClient) {
	for event := range wsClient.eventRx {
		slog.Debug("events rx", "type", event.Type)

		select {
		case e.events <- event:
		case <-e.ctx.Done():
			return
		}
	}
}

func (e *EventsAPI) reconnectWithBackoff() {
	delay := eventsReconnectDelay

	for {
		e.reconnectAttempt++

		select {
		case <-e.ctx.Done():
			return
		case <-time.After(delay):
		}

		slog.Info("events socket reconnecting", "attempt", e.reconnectAttempt, "delay", delay)

		ctx, cancel := context.WithTimeout(e.ctx, eventsReconnectTimeout)
		e.mu.Lock()
		wsClient, err := e.connectLocked(ctx)
		e.mu.Unlock()
		cancel()

		if err == nil {
			go e.manageConnection(wsClient)
			return
		}
		slog.Warn("events socket reconnect", "attempt", e.reconnectAttempt, "error", err)

		// jitter
		delay = min(delay*2, eventsMaxReconnectDelay)
		delay = time.Duration(float64(delay) * (0.75 + rand.Float64()*0.5))
	}
}

func (e *EventsAPI) fullURL() (string, error) {
	u, err := url.JoinPath(e.baseURL, eventsPath)
	if err != nil {
		return "", fmt.Errorf("join events path: %w", err)
	}
	return toWebsocketURL(u), nil
}

// toWebsocketURL converts an HTTP URL to a WebSocket URL
func toWebsocketURL(u string) string {
	if rest, ok := strings.CutPrefix(u, "https://"); ok {
		return "wss://" + rest
	} else if rest, ok := strings.CutPrefix(u, "http://"); ok {
		return "ws://" + rest
	}
	return u
}
