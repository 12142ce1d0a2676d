package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ridesync/internal/config"
	"ridesync/internal/models"
	"ridesync/internal/observability"
	"ridesync/pkg/logger"
	"ridesync/pkg/storage"
)

// ConnState is the observable lifecycle of the persistent connection.
type ConnState string

const (
	ConnDisconnected ConnState = "disconnected"
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
	ConnReconnecting ConnState = "reconnecting"
)

// Manager maintains one logical persistent connection to the server.
// It detects silent connection death via application-level heartbeats,
// reconnects with exponential backoff, and never drops an outbound
// message to a transient disconnection: sends while down are queued
// and flushed in order on reconnect.
//
// Connection errors surface through the state and error observables,
// never into unrelated call sites. Message delivery is retried up to
// the configured cap and then dropped with a log line; callers that
// need guaranteed delivery use the request/response layer instead.
type Manager struct {
	cfg   *config.RealtimeConfig
	dial  Dialer
	queue *messageQueue
	log   *logger.Logger

	mu               sync.Mutex
	state            ConnState
	sock             Socket
	gen              int
	connDone         chan struct{}
	manualDisconnect bool
	attempt          int
	lastPong         time.Time
	lastError        error

	stateSubs map[int]func(ConnState)
	eventSubs map[int]func(Event)
	nextSubID int

	// writeMu serializes all socket writes (sends, heartbeats, flush).
	writeMu sync.Mutex
}

func NewManager(cfg *config.RealtimeConfig, store storage.Store, dial Dialer, log *logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.WithField("component", "realtime")

	if dial == nil {
		dial = GorillaDialer(cfg.HandshakeTimeout)
	}

	m := &Manager{
		cfg:       cfg,
		dial:      dial,
		queue:     newMessageQueue(cfg.QueueLimit, store, log),
		log:       log,
		state:     ConnDisconnected,
		stateSubs: make(map[int]func(ConnState)),
		eventSubs: make(map[int]func(Event)),
	}

	if err := m.queue.load(context.Background()); err != nil {
		return nil, fmt.Errorf("realtime: restore outbound queue: %w", err)
	}

	return m, nil
}

// State returns the current connection state.
func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the most recent connection error, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// QueueDepth returns how many outbound messages await flush.
func (m *Manager) QueueDepth() int {
	return m.queue.depth()
}

// SubscribeState registers a connection-state listener.
func (m *Manager) SubscribeState(fn func(ConnState)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.stateSubs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.stateSubs, id)
		m.mu.Unlock()
	}
}

// SubscribeEvents registers an inbound event listener.
func (m *Manager) SubscribeEvents(fn func(Event)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.eventSubs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.eventSubs, id)
		m.mu.Unlock()
	}
}

// Connect establishes the connection and starts the read and heartbeat
// loops. On success the outbound queue is flushed in order.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == ConnConnected || m.state == ConnConnecting {
		m.mu.Unlock()
		return nil
	}
	m.setStateLocked(ConnConnecting)
	m.mu.Unlock()

	sock, err := m.dial(ctx, m.cfg.URL)
	if err != nil {
		m.mu.Lock()
		m.lastError = err
		m.setStateLocked(ConnDisconnected)
		m.mu.Unlock()
		return fmt.Errorf("realtime: dial %s: %w", m.cfg.URL, err)
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.sock = sock
	m.connDone = make(chan struct{})
	done := m.connDone
	m.lastPong = time.Now()
	m.lastError = nil
	attempt := m.attempt
	m.setStateLocked(ConnConnected)
	m.mu.Unlock()

	m.log.LogConnectionEvent(string(ConnConnected), attempt, map[string]interface{}{
		"url": m.cfg.URL,
	})

	go m.readLoop(gen, sock)
	go m.heartbeatLoop(gen, sock, done)
	go m.flushQueue(gen, sock)

	return nil
}

// Disconnect closes the connection by user action and suppresses
// automatic reconnection until Reconnect is called.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.manualDisconnect = true
	sock := m.sock
	m.teardownLocked()
	m.setStateLocked(ConnDisconnected)
	m.mu.Unlock()

	if sock != nil {
		sock.Close()
	}
}

// Reconnect clears the manual-disconnect flag, resets the attempt
// counter and connects.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	m.manualDisconnect = false
	m.attempt = 0
	m.mu.Unlock()

	return m.Connect(ctx)
}

// Send delivers a typed message if connected, or queues it for the
// next reconnect. The boolean reports immediate delivery vs queued.
func (m *Manager) Send(ctx context.Context, msgType string, payload interface{}) (bool, error) {
	frame, raw, err := encodeFrame(msgType, payload)
	if err != nil {
		return false, fmt.Errorf("realtime: encode %s message: %w", msgType, err)
	}

	m.mu.Lock()
	connected := m.state == ConnConnected
	gen := m.gen
	sock := m.sock
	m.mu.Unlock()

	if connected {
		m.writeMu.Lock()
		err = sock.WriteMessage(websocket.TextMessage, frame)
		m.writeMu.Unlock()
		if err == nil {
			return true, nil
		}
		m.handleDrop(gen, err)
	}

	m.queue.push(ctx, models.QueuedMessage{
		ID:         uuid.NewString(),
		Type:       msgType,
		Payload:    raw,
		EnqueuedAt: time.Now(),
	})
	return false, nil
}

func (m *Manager) readLoop(gen int, sock Socket) {
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			m.handleDrop(gen, err)
			return
		}

		ev, err := DecodeEvent(data)
		if err != nil {
			var unknown *ErrUnknownEvent
			if errors.As(err, &unknown) {
				m.log.WithField("event_type", unknown.Type).Debug("Ignoring unknown realtime event")
			} else {
				m.log.WithError(err).Warn("Failed to decode realtime event")
			}
			continue
		}

		observability.EventsReceivedTotal.WithLabelValues(string(ev.EventType())).Inc()

		if _, ok := ev.(Pong); ok {
			m.mu.Lock()
			m.lastPong = time.Now()
			m.mu.Unlock()
			continue
		}

		m.dispatch(ev)
	}
}

func (m *Manager) dispatch(ev Event) {
	m.mu.Lock()
	subs := make([]func(Event), 0, len(m.eventSubs))
	for _, fn := range m.eventSubs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// heartbeatLoop sends a ping every HeartbeatInterval and declares the
// connection dead when no pong arrives within HeartbeatTimeout. This
// catches "connected but unresponsive" sockets that a transport-level
// close event would miss.
func (m *Manager) heartbeatLoop(gen int, sock Socket, done chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	ping, _, err := encodeFrame(string(EventPing), nil)
	if err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		pingAt := time.Now()
		m.writeMu.Lock()
		err := sock.WriteMessage(websocket.TextMessage, ping)
		m.writeMu.Unlock()
		if err != nil {
			m.handleDrop(gen, err)
			return
		}

		time.AfterFunc(m.cfg.HeartbeatTimeout, func() {
			m.checkPong(gen, pingAt)
		})
	}
}

// checkPong force-disconnects when the pong deadline for a ping
// passed with no pong observed.
func (m *Manager) checkPong(gen int, pingAt time.Time) {
	m.mu.Lock()
	if gen != m.gen || m.lastPong.After(pingAt) {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	observability.HeartbeatMissesTotal.Inc()
	m.log.Warn("Heartbeat timeout, treating connection as dead")
	m.handleDrop(gen, fmt.Errorf("realtime: no pong within %s", m.cfg.HeartbeatTimeout))
}

// handleDrop tears down the current connection exactly once per
// generation and schedules reconnection unless the disconnect was
// manual.
func (m *Manager) handleDrop(gen int, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}

	sock := m.sock
	m.teardownLocked()
	m.lastError = err
	manual := m.manualDisconnect
	m.setStateLocked(ConnDisconnected)
	m.mu.Unlock()

	if sock != nil {
		sock.Close()
	}

	if manual {
		return
	}

	m.log.WithError(err).Warn("Realtime connection dropped")
	go m.reconnectLoop()
}

// reconnectLoop retries the connection with exponential backoff until
// it succeeds, the attempt budget is exhausted, or a manual disconnect
// intervenes.
func (m *Manager) reconnectLoop() {
	for attempt := 1; attempt <= m.cfg.MaxReconnectAttempts; attempt++ {
		m.mu.Lock()
		if m.manualDisconnect || m.state == ConnConnected {
			m.mu.Unlock()
			return
		}
		m.attempt = attempt
		m.setStateLocked(ConnReconnecting)
		m.mu.Unlock()

		observability.RealtimeReconnectsTotal.Inc()
		delay := reconnectDelay(m.cfg, attempt)
		m.log.LogConnectionEvent(string(ConnReconnecting), attempt, map[string]interface{}{
			"delay_ms": delay.Milliseconds(),
		})
		time.Sleep(delay)

		if err := m.Connect(context.Background()); err == nil {
			m.mu.Lock()
			m.attempt = 0
			m.mu.Unlock()
			return
		}
	}

	m.mu.Lock()
	m.setStateLocked(ConnDisconnected)
	m.mu.Unlock()
	m.log.Error("Reconnection attempts exhausted, staying disconnected")
}

// flushQueue replays queued messages in order over the new socket.
// Stale entries are discarded first; a failed send goes back to the
// head of the queue (until its retry budget runs out) and aborts the
// flush, since the socket is probably dead again.
func (m *Manager) flushQueue(gen int, sock Socket) {
	ctx := context.Background()

	if stale := m.queue.dropStale(ctx, time.Now(), m.cfg.QueueMaxAge); stale > 0 {
		m.log.LogQueueEvent("outbound_messages", "stale_dropped", map[string]interface{}{
			"count": stale,
		})
	}

	for {
		m.mu.Lock()
		alive := gen == m.gen
		m.mu.Unlock()
		if !alive {
			return
		}

		msg, ok := m.queue.pop(ctx)
		if !ok {
			return
		}

		frame, _, err := encodeFrame(msg.Type, msg.Payload)
		if err != nil {
			observability.MessagesDroppedTotal.WithLabelValues("encode").Inc()
			m.log.WithError(err).Warn("Dropping undecodable queued message")
			continue
		}

		m.writeMu.Lock()
		err = sock.WriteMessage(websocket.TextMessage, frame)
		m.writeMu.Unlock()
		if err != nil {
			msg.RetryCount++
			if msg.RetryCount < m.cfg.SendMaxRetries {
				m.queue.pushFront(ctx, msg)
			} else {
				observability.MessagesDroppedTotal.WithLabelValues("retries").Inc()
				m.log.LogQueueEvent("outbound_messages", "retry_budget_exhausted", map[string]interface{}{
					"message_id": msg.ID,
					"type":       msg.Type,
				})
			}
			m.handleDrop(gen, err)
			return
		}
	}
}

// teardownLocked invalidates the current generation so stale read,
// heartbeat and flush goroutines exit.
func (m *Manager) teardownLocked() {
	m.gen++
	m.sock = nil
	if m.connDone != nil {
		close(m.connDone)
		m.connDone = nil
	}
}

func (m *Manager) setStateLocked(state ConnState) {
	if m.state == state {
		return
	}
	m.state = state

	subs := make([]func(ConnState), 0, len(m.stateSubs))
	for _, fn := range m.stateSubs {
		subs = append(subs, fn)
	}

	go func() {
		for _, fn := range subs {
			fn(state)
		}
	}()
}

// reconnectDelay computes min(base * factor^(attempt-1), max).
func reconnectDelay(cfg *config.RealtimeConfig, attempt int) time.Duration {
	delay := float64(cfg.ReconnectBaseDelay) * math.Pow(cfg.ReconnectFactor, float64(attempt-1))
	if delay > float64(cfg.ReconnectMaxDelay) || math.IsInf(delay, 1) {
		return cfg.ReconnectMaxDelay
	}
	return time.Duration(delay)
}

// encodeFrame merges the type discriminator into the payload JSON.
func encodeFrame(msgType string, payload interface{}) ([]byte, json.RawMessage, error) {
	fields := make(map[string]interface{})

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, err
		}
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &fields); err != nil {
				return nil, nil, err
			}
		}
	}

	var rawPayload json.RawMessage
	if len(fields) > 0 {
		var err error
		rawPayload, err = json.Marshal(fields)
		if err != nil {
			return nil, nil, err
		}
	}

	fields["type"] = msgType
	frame, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, err
	}

	return frame, rawPayload, nil
}
