package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 30 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// OrderbookHandler receives every orderbook snapshot and delta.
type OrderbookHandler func(Orderbook)

// FillHandler receives fill notifications for our resting orders.
type FillHandler func(WSFill)

// WSClient streams real-time market data from the Kalshi WebSocket API. It
// reconnects with exponential backoff and restores subscriptions after a
// drop.
type WSClient struct {
	wsURL  string
	conn   *websocket.Conn
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool

	subscribedTickers []string
	cmdID             int64

	handlerMu         sync.RWMutex
	orderbookHandlers []OrderbookHandler
	fillHandlers      []FillHandler

	done chan struct{}
}

// NewWSClient creates a WebSocket client.
//
// wsURL is the endpoint, e.g. "wss://api.elections.kalshi.com/trade-api/ws/v2".
func NewWSClient(wsURL string, logger *slog.Logger) *WSClient {
	return &WSClient{
		wsURL:  wsURL,
		logger: logger.With(slog.String("component", "kalshi_ws")),
		done:   make(chan struct{}),
	}
}

// Connect dials the WebSocket endpoint and starts the read and ping loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("kalshi/ws: client is closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("kalshi/ws: connect: %w", err)
	}
	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	if len(w.subscribedTickers) > 0 {
		if err := w.sendSubscribe(w.subscribedTickers); err != nil {
			return fmt.Errorf("kalshi/ws: restore subscriptions: %w", err)
		}
	}

	w.logger.Info("connected", slog.String("url", w.wsURL))
	return nil
}

// Subscribe adds orderbook and fill subscriptions for the given tickers. The
// set is remembered and re-established on reconnect.
func (w *WSClient) Subscribe(ctx context.Context, tickers []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("kalshi/ws: not connected")
	}

	if err := w.sendSubscribe(tickers); err != nil {
		return fmt.Errorf("kalshi/ws: subscribe: %w", err)
	}

	existing := make(map[string]struct{}, len(w.subscribedTickers))
	for _, t := range w.subscribedTickers {
		existing[t] = struct{}{}
	}
	for _, t := range tickers {
		if _, ok := existing[t]; !ok {
			w.subscribedTickers = append(w.subscribedTickers, t)
		}
	}
	return nil
}

// OnOrderbook registers a handler for orderbook updates.
func (w *WSClient) OnOrderbook(handler OrderbookHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.orderbookHandlers = append(w.orderbookHandlers, handler)
}

// OnFill registers a handler for fill notifications.
func (w *WSClient) OnFill(handler FillHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.fillHandlers = append(w.fillHandlers, handler)
}

// Close shuts the connection down permanently; a closed client cannot
// reconnect.
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

// sendSubscribe sends one subscribe command. Caller must hold w.mu.
func (w *WSClient) sendSubscribe(tickers []string) error {
	w.cmdID++

	cmd := WSSubscribeCmd{
		ID:  w.cmdID,
		Cmd: "subscribe",
		Params: WSSubscribeParams{
			Channels: []string{"orderbook_delta", "fill"},
			Tickers:  tickers,
		},
	}

	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WSClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			w.logger.Warn("read failed, reconnecting", slog.Any("error", err))
			w.reconnect()
			return
		}

		w.handleMessage(message)
	}
}

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

// handleMessage routes one frame to the registered handlers.
func (w *WSClient) handleMessage(raw []byte) {
	var envelope WSMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}

	switch envelope.Type {
	case "orderbook_snapshot", "orderbook_delta":
		var ob WSOrderbook
		if err := json.Unmarshal(envelope.Msg, &ob); err != nil {
			return
		}

		w.handlerMu.RLock()
		handlers := w.orderbookHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(ob.Orderbook())
		}

	case "fill":
		var fill WSFill
		if err := json.Unmarshal(envelope.Msg, &fill); err != nil {
			return
		}

		w.handlerMu.RLock()
		handlers := w.fillHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(fill)
		}
	}
}

// reconnect re-establishes the connection with exponential backoff.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		w.logger.Warn("reconnect failed", slog.Any("error", err), slog.Duration("next_delay", delay))

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
