package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"quoter/internal/catalog"
	"quoter/internal/orderbook"
	"quoter/internal/pricing"
	"quoter/internal/view"
	"quoter/pkg/kraken"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientMessage is sent by the browser. Op is one of "select", "preview",
// "order" or "chart"; a chart op with an empty timeframe unmounts the chart.
type clientMessage struct {
	Op        string `json:"op"`
	Mode      string `json:"mode"`
	Pair      string `json:"pair"`
	Side      string `json:"side"`
	Amount    string `json:"amount"`
	Timeframe string `json:"timeframe"`
}

type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type statePayload struct {
	view.State
	Quote *pricing.Quote    `json:"quote"`
	Book  orderbook.Display `json:"book"`
}

// session is one WebSocket connection with its mounted views. Views push
// into send; the write pump is the only writer on conn.
type session struct {
	srv     *Server
	conn    *websocket.Conn
	send    chan []byte
	trading *view.Trading
	chart   *view.Chart
	chartTF kraken.Timeframe
	logger  *zap.Logger
}

// GET /ws?mode=EUR_CRYPTO&pair=BTC_EUR
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := &session{
		srv:     s,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		trading: view.NewTrading(s.deps.Trading),
		chart:   view.NewChart(s.deps.Chart),
		logger:  s.logger.With(zap.String("remote_addr", r.RemoteAddr)),
	}
	sess.trading.OnUpdate(func(st view.State) { sess.push("state", sess.statePayload(st)) })
	sess.chart.OnUpdate(func(st view.ChartState) { sess.push("chart", st) })

	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.writePump(ctx)
	}()

	q := r.URL.Query()
	sess.selectPair(ctx, q.Get("mode"), q.Get("pair"))
	sess.readPump(ctx)

	cancel()
	sess.trading.Close()
	sess.chart.Close()
	close(sess.send)
	<-done
	sess.logger.Debug("ws session closed")
}

func (c *session) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("ws read error", zap.Error(err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.push("error", map[string]string{"error": "invalid message"})
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *session) handle(ctx context.Context, msg clientMessage) {
	switch msg.Op {
	case "select":
		c.selectPair(ctx, msg.Mode, msg.Pair)
	case "preview":
		side, err := pricing.ParseSide(msg.Side)
		if err != nil {
			c.push("error", map[string]string{"error": err.Error()})
			return
		}
		c.push("ticket", c.trading.Preview(side, msg.Amount))
	case "order":
		side, err := pricing.ParseSide(msg.Side)
		if err != nil {
			c.push("error", map[string]string{"error": err.Error()})
			return
		}
		order, err := c.trading.Confirm(ctx, side, msg.Amount)
		if err != nil {
			c.push("error", map[string]string{"error": err.Error()})
			return
		}
		c.push("order", order)
	case "chart":
		c.selectChart(ctx, kraken.Timeframe(msg.Timeframe))
	default:
		c.push("error", map[string]string{"error": "unknown op: " + msg.Op})
	}
}

func (c *session) selectPair(ctx context.Context, rawMode, pairID string) {
	mode := catalog.ModeEURCrypto
	if p, ok := catalog.Lookup(pairID); ok {
		mode = p.Mode
	}
	if rawMode != "" {
		m, err := catalog.ParseMode(rawMode)
		if err != nil {
			c.push("error", map[string]string{"error": err.Error()})
			return
		}
		mode = m
	}
	pair, err := c.trading.Select(ctx, catalog.Selection{Mode: mode, PairID: pairID})
	if err != nil {
		c.push("error", map[string]string{"error": err.Error()})
		return
	}
	if c.chartTF != "" {
		if err := c.chart.Select(ctx, pair, c.chartTF); err != nil {
			c.push("error", map[string]string{"error": err.Error()})
		}
	}
}

func (c *session) selectChart(ctx context.Context, tf kraken.Timeframe) {
	if tf == "" {
		c.chartTF = ""
		c.chart.Close()
		return
	}
	pair := c.trading.State().Pair
	if pair.ID == "" {
		c.push("error", map[string]string{"error": "select a pair before opening the chart"})
		return
	}
	if err := c.chart.Select(ctx, pair, tf); err != nil {
		c.push("error", map[string]string{"error": err.Error()})
		return
	}
	c.chartTF = tf
}

func (c *session) statePayload(st view.State) statePayload {
	p := statePayload{State: st}
	if q, ok := c.srv.deps.Trading.Desk.Quote(st.LastPrice); ok {
		p.Quote = &q
	}
	if st.Book != nil {
		p.Book = orderbook.Aggregate(*st.Book, c.srv.deps.Trading.Desk.Pricing().DisplayDepth)
	}
	return p
}

// push never blocks; a client that falls behind loses updates.
func (c *session) push(kind string, payload any) {
	data, err := json.Marshal(envelope{Type: kind, Payload: payload})
	if err != nil {
		c.logger.Error("ws marshal failed", zap.String("type", kind), zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("ws dropping message for slow client", zap.String("type", kind))
	}
}

func (c *session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("ws write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
