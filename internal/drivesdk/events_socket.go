package drivesdk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	wsClientChannelSize = 256
	wsClientPingPeriod  = 15 * time.Second
	wsClientPingTimeout = 5 * time.Second
)

// wsClient reads events from one websocket connection. The service never
// expects messages from us, so the only writes are pings.
type wsClient struct {
	conn      *websocket.Conn // websocket connection
	eventRx   chan *Event     // events received from the websocket
	closed    chan struct{}   // websocket is closed
	closing   chan struct{}   // websocket is closing
	closeOnce sync.Once
	wg        sync.WaitGroup // read and ping loops
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn:    conn,
		eventRx: make(chan *Event, wsClientChannelSize),
		closed:  make(chan struct{}),
		closing: make(chan struct{}),
	}
}

func (c *wsClient) Start(ctx context.Context) {
	c.wg.Add(2)
	go c.readLoop(ctx)
	go c.pingLoop(ctx)
}

func (c *wsClient) Close() {
	c.closeConnection(websocket.StatusNormalClosure, "shutdown")
}

func (c *wsClient) closeConnection(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.closing)
		c.conn.Close(status, reason)

		go func() {
			c.wg.Wait()
			close(c.eventRx)
			close(c.closed)
		}()
	})
}

func (c *wsClient) readLoop(ctx context.Context) {
	defer func() {
		slog.Debug("socket reader shutdown")
		c.wg.Done()
		c.closeConnection(websocket.StatusNormalClosure, "shutdown")
	}()

	for {
		typ, raw, err := c.conn.Read(ctx)
		if err != nil {
			if !isWSExpectedCloseError(err) {
				slog.Warn("socket RECV", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			slog.Warn("socket RECV unexpected message type", "type", typ)
			continue
		}

		var event Event
		if err := jsonUnmarshal(raw, &event); err != nil {
			slog.Warn("socket RECV decode", "error", err)
			continue
		}

		select {
		case <-c.closing:
			return
		case c.eventRx <- &event:
		default:
			slog.Warn("socket RECV buffer full", "dropped", event.Type)
		}
	}
}

func (c *wsClient) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(wsClientPingPeriod)
	defer func() {
		ticker.Stop()
		c.wg.Done()
		c.closeConnection(websocket.StatusNormalClosure, "shutdown")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closing:
			return
		case <-ticker.C:
			ctxPing, cancel := context.WithTimeout(ctx, wsClientPingTimeout)
			err := c.conn.Ping(ctxPing)
			cancel()
			if err != nil {
				slog.Error("socket PING", "error", err)
				return
			}
		}
	}
}

// isWSExpectedCloseError returns true if the error is an expected connection closure
func isWSExpectedCloseError(err error) bool {
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, net.ErrClosed)
}
