package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// readWait is the time allowed between server messages. Binance
	// pings every few minutes; the stream itself ticks far faster.
	readWait = 90 * time.Second

	// pingPeriod sends client pings at this interval. Must be less
	// than readWait.
	pingPeriod = (readWait * 9) / 10
)

// MarkPriceHandler is called for every mark-price update.
type MarkPriceHandler func(domain.MarkPrice)

// wsCommand is the Binance stream control message.
type wsCommand struct {
	Method string   `json:"method"`
	Params []string `json:"params,omitempty"`
	ID     int64    `json:"id"`
}

// markPriceEvent is the combined-stream payload for markPriceUpdate.
type markPriceEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		Event  string `json:"e"`
		Symbol string `json:"s"`
		Price  string `json:"p"`
		Time   int64  `json:"E"`
	} `json:"data"`
}

// WSClient is a WebSocket client for the Binance futures market stream.
// It manages the connection lifecycle, stream subscriptions, and
// dispatches mark-price updates to registered handlers.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool
	nextID int64

	// Streams to restore on reconnect.
	subscriptions []string

	handlerMu    sync.RWMutex
	markHandlers []MarkPriceHandler

	done    chan struct{}
	readErr chan error
}

// NewWSClient creates a stream client for the given host, e.g.
// "wss://fstream.binance.com".
func NewWSClient(wsHost string) *WSClient {
	return &WSClient{
		wsURL:   strings.TrimRight(wsHost, "/") + "/stream",
		done:    make(chan struct{}),
		readErr: make(chan error, 1),
	}
}

// Connect establishes the WebSocket connection and restores any
// previous subscriptions.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("binance/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("binance/ws: connect: %w", err)
	}

	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(readWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})
	w.conn.SetPingHandler(func(payload string) error {
		w.conn.SetReadDeadline(time.Now().Add(readWait))
		w.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return w.conn.WriteMessage(websocket.PongMessage, []byte(payload))
	})

	go w.readLoop()
	go w.pingLoop()

	if len(w.subscriptions) > 0 {
		if err := w.sendCommand(wsCommand{Method: "SUBSCRIBE", Params: w.subscriptions, ID: w.commandID()}); err != nil {
			return fmt.Errorf("binance/ws: restore subscriptions: %w", err)
		}
	}

	return nil
}

// SubscribeMarkPrice subscribes to the 1s mark-price stream for the
// given symbols.
func (w *WSClient) SubscribeMarkPrice(ctx context.Context, symbols []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("binance/ws: not connected")
	}

	streams := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		streams = append(streams, strings.ToLower(sym)+"@markPrice@1s")
	}

	if err := w.sendCommand(wsCommand{Method: "SUBSCRIBE", Params: streams, ID: w.commandID()}); err != nil {
		return fmt.Errorf("binance/ws: subscribe mark price: %w", err)
	}

	w.subscriptions = append(w.subscriptions, streams...)
	return nil
}

// OnMarkPrice registers a handler called for every mark-price update.
func (w *WSClient) OnMarkPrice(handler MarkPriceHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.markHandlers = append(w.markHandlers, handler)
}

// Wait returns a channel that receives the read-loop error when the
// connection drops.
func (w *WSClient) Wait() <-chan error {
	return w.readErr
}

// Close shuts down the connection and stops the read loop.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendCommand sends a JSON control message. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd wsCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// commandID returns a unique ID for a control message. Caller must hold w.mu.
func (w *WSClient) commandID() int64 {
	w.nextID++
	return w.nextID
}

// readLoop reads stream messages until the connection drops or the
// client is closed.
func (w *WSClient) readLoop() {
	for {
		select {
		case <-w.done:
			return
		default:
		}

		_, data, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case w.readErr <- fmt.Errorf("binance/ws: read: %w", err):
			default:
			}
			return
		}
		w.conn.SetReadDeadline(time.Now().Add(readWait))
		w.dispatch(data)
	}
}

func (w *WSClient) dispatch(data []byte) {
	var ev markPriceEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	if ev.Data.Event != "markPriceUpdate" {
		return
	}

	price, err := strconv.ParseFloat(ev.Data.Price, 64)
	if err != nil || price <= 0 {
		return
	}

	tick := domain.MarkPrice{
		Symbol: ev.Data.Symbol,
		Price:  price,
		Time:   time.UnixMilli(ev.Data.Time),
	}

	w.handlerMu.RLock()
	handlers := w.markHandlers
	w.handlerMu.RUnlock()
	for _, h := range handlers {
		h(tick)
	}
}

// pingLoop sends client pings to keep intermediaries from idling out
// the connection.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
