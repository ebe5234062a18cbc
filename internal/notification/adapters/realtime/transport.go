// Package realtime is the client side of the push channel: a websocket
// connection that carries notifications and control envelopes in both
// directions and reconnects with a bounded linear backoff.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linkflow-ai/notifyhub/internal/notification/domain/model"
	"github.com/linkflow-ai/notifyhub/internal/platform/logger"
	"github.com/linkflow-ai/notifyhub/internal/platform/metrics"
)

var (
	ErrNotConnected = errors.New("transport not connected")
	ErrBufferFull   = errors.New("transport send buffer full")
	ErrClosed       = errors.New("transport closed")
)

const (
	DefaultReconnectDelay = time.Second
	DefaultMaxAttempts    = 5
	DefaultWriteTimeout   = 10 * time.Second

	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBufferSize = 256
)

type frame struct {
	data   []byte
	result chan error
}

// session is one live connection and its pumps
type session struct {
	conn *websocket.Conn
	send chan frame
	done chan struct{}
	once sync.Once
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Transport is a reconnecting websocket client
type Transport struct {
	url         string
	dialer      *websocket.Dialer
	baseDelay   time.Duration
	maxAttempts int
	writeWait   time.Duration
	logger      logger.Logger
	metrics     *metrics.Metrics

	mu       sync.Mutex
	current  *session
	handler  func(model.Inbound)
	attempts int
	timer    *time.Timer
	closed   bool
}

type Option func(*Transport)

// WithReconnect sets the backoff base delay and the attempt budget
func WithReconnect(baseDelay time.Duration, maxAttempts int) Option {
	return func(t *Transport) {
		if baseDelay > 0 {
			t.baseDelay = baseDelay
		}
		if maxAttempts >= 0 {
			t.maxAttempts = maxAttempts
		}
	}
}

// WithWriteTimeout bounds a single frame write
func WithWriteTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.writeWait = d
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Transport) { t.metrics = m }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(t *Transport) { t.dialer = d }
}

// New creates a transport for url. Nothing is dialed until Connect.
func New(url string, opts ...Option) *Transport {
	t := &Transport{
		url:         url,
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		baseDelay:   DefaultReconnectDelay,
		maxAttempts: DefaultMaxAttempts,
		writeWait:   DefaultWriteTimeout,
		logger:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnMessage registers the handler for decoded inbound messages. It is
// called from the read pump, one message at a time.
func (t *Transport) OnMessage(handler func(model.Inbound)) {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
}

// Connect dials the endpoint. It re-arms a transport that exhausted its
// reconnect budget. A failed dial schedules a reconnect like an unexpected
// close would, and the dial error is returned.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.current != nil {
		t.mu.Unlock()
		return nil
	}
	t.attempts = 0
	t.stopTimerLocked()
	t.mu.Unlock()

	return t.dial(ctx)
}

func (t *Transport) dial(ctx context.Context) error {
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		t.countError("dial")
		t.logger.Warn("Push channel dial failed", "url", t.url, "error", err)
		t.scheduleReconnect()
		return fmt.Errorf("dial %s: %w", t.url, err)
	}

	s := &session{
		conn: conn,
		send: make(chan frame, sendBufferSize),
		done: make(chan struct{}),
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	if t.current != nil {
		t.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	t.current = s
	t.attempts = 0
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.TransportConnected.Set(1)
	}
	t.logger.Info("Push channel connected", "url", t.url)

	go t.writePump(s)
	go t.readPump(s)
	return nil
}

// IsOpen reports whether a connection is live
func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current != nil
}

// Attempts returns the reconnect attempts made since the last successful
// connection.
func (t *Transport) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// Send queues v as a JSON text frame and returns without waiting
func (t *Transport) Send(v interface{}) error {
	_, err := t.SendAsync(v)
	return err
}

// SendAsync queues v and returns a channel that receives the write
// outcome exactly once, including when the session dies first.
func (t *Transport) SendAsync(v interface{}) (<-chan error, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	t.mu.Lock()
	s := t.current
	t.mu.Unlock()
	if s == nil {
		return nil, ErrNotConnected
	}

	f := frame{data: data, result: make(chan error, 1)}
	select {
	case <-s.done:
		return nil, ErrNotConnected
	case s.send <- f:
	default:
		t.countError("send")
		return nil, ErrBufferFull
	}

	// The session may have died after the write pump's final drain.
	select {
	case <-s.done:
		t.drain(s)
	default:
	}
	return f.result, nil
}

// Close shuts the connection and cancels any pending reconnect. A closed
// transport never reconnects.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.stopTimerLocked()
	s := t.current
	t.current = nil
	t.mu.Unlock()

	if s != nil {
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(t.writeWait),
		)
		s.close()
	}
	if t.metrics != nil {
		t.metrics.TransportConnected.Set(0)
	}
	return nil
}

func (t *Transport) readPump(s *session) {
	defer t.connectionLost(s)

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.countError("read")
				t.logger.Warn("Push channel read failed", "error", err)
			}
			return
		}

		in, err := model.DecodeInbound(data)
		if err != nil {
			t.logger.Warn("Dropping malformed push message", "error", err)
			continue
		}

		t.mu.Lock()
		handler := t.handler
		t.mu.Unlock()
		if handler != nil {
			handler(in)
		}
	}
}

func (t *Transport) writePump(s *session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
		t.drain(s)
	}()

	for {
		select {
		case <-s.done:
			return

		case f := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
			err := s.conn.WriteMessage(websocket.TextMessage, f.data)
			f.result <- err
			if err != nil {
				t.countError("write")
				t.logger.Warn("Push channel write failed", "error", err)
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drain fails every frame still queued on a dead session. Concurrent
// drains are safe: each frame is received once.
func (t *Transport) drain(s *session) {
	for {
		select {
		case f := <-s.send:
			f.result <- ErrNotConnected
		default:
			return
		}
	}
}

func (t *Transport) connectionLost(s *session) {
	s.close()

	t.mu.Lock()
	if t.current != s {
		// Closed explicitly or already replaced.
		t.mu.Unlock()
		return
	}
	t.current = nil
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.TransportConnected.Set(0)
	}
	t.logger.Warn("Push channel closed unexpectedly", "url", t.url)
	t.scheduleReconnect()
}

// scheduleReconnect arms attempt n after n*baseDelay. Once the budget is
// spent the transport stays down until Connect is called again.
func (t *Transport) scheduleReconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.timer != nil {
		return
	}
	if t.attempts >= t.maxAttempts {
		t.logger.Error("Push channel reconnect budget exhausted", "attempts", t.attempts)
		return
	}

	t.attempts++
	delay := time.Duration(t.attempts) * t.baseDelay
	attempt := t.attempts
	t.logger.Info("Scheduling push channel reconnect", "attempt", attempt, "delay", delay)

	t.timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		t.timer = nil
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}
		if t.metrics != nil {
			t.metrics.TransportReconnects.Inc()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = t.dial(ctx)
	})
}

func (t *Transport) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Transport) countError(op string) {
	if t.metrics != nil {
		t.metrics.TransportErrors.WithLabelValues(op).Inc()
	}
}
