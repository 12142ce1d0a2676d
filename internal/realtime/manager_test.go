package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridesync/internal/config"
	"ridesync/pkg/storage"
)

// fakeSocket is an in-memory Socket. Frames pushed via deliver show up
// on ReadMessage; writes are recorded for inspection.
type fakeSocket struct {
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	written    [][]byte
	failWrites bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case data := <-s.in:
		return 1, data, nil
	case <-s.closed:
		return 0, nil, errors.New("socket closed")
	}
}

func (s *fakeSocket) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errors.New("write failed")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.written = append(s.written, buf)
	return nil
}

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) deliver(frame string) {
	s.in <- []byte(frame)
}

func (s *fakeSocket) frames() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]map[string]interface{}, 0, len(s.written))
	for _, raw := range s.written {
		var m map[string]interface{}
		if json.Unmarshal(raw, &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

func (s *fakeSocket) setFailWrites(fail bool) {
	s.mu.Lock()
	s.failWrites = fail
	s.mu.Unlock()
}

// fakeDialer hands out sockets in sequence and counts dial attempts.
type fakeDialer struct {
	mu      sync.Mutex
	sockets []*fakeSocket
	dials   int
	fail    bool
}

func (d *fakeDialer) dial(ctx context.Context, url string) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail {
		return nil, errors.New("dial refused")
	}
	sock := newFakeSocket()
	d.sockets = append(d.sockets, sock)
	return sock, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) socket(i int) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < len(d.sockets) {
		return d.sockets[i]
	}
	return nil
}

func testRealtimeConfig() *config.RealtimeConfig {
	return &config.RealtimeConfig{
		URL:                  "wss://example.com/ws",
		HeartbeatInterval:    time.Hour,
		HeartbeatTimeout:     time.Hour,
		MaxReconnectAttempts: 10,
		ReconnectBaseDelay:   time.Millisecond,
		ReconnectMaxDelay:    5 * time.Millisecond,
		ReconnectFactor:      2.0,
		QueueLimit:           100,
		QueueMaxAge:          5 * time.Minute,
		SendMaxRetries:       3,
		LocationHistoryLimit: 100,
	}
}

func newTestRealtime(t *testing.T, cfg *config.RealtimeConfig, store storage.Store) (*Manager, *fakeDialer) {
	t.Helper()

	if cfg == nil {
		cfg = testRealtimeConfig()
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}

	dialer := &fakeDialer{}
	m, err := NewManager(cfg, store, dialer.dial, nil)
	require.NoError(t, err)
	return m, dialer
}

func TestConnectTransitionsToConnected(t *testing.T) {
	m, _ := newTestRealtime(t, nil, nil)

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, ConnConnected, m.State())

	m.Disconnect()
	assert.Equal(t, ConnDisconnected, m.State())
}

func TestSendWhileConnected(t *testing.T) {
	m, dialer := newTestRealtime(t, nil, nil)
	require.NoError(t, m.Connect(context.Background()))

	sent, err := m.Send(context.Background(), "location_update", map[string]interface{}{
		"ride_id": "r-1",
	})
	require.NoError(t, err)
	assert.True(t, sent)

	frames := dialer.socket(0).frames()
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	assert.Equal(t, "location_update", last["type"])
	assert.Equal(t, "r-1", last["ride_id"])
}

func TestSendWhileDisconnectedQueues(t *testing.T) {
	m, _ := newTestRealtime(t, nil, nil)

	sent, err := m.Send(context.Background(), "chat_message", map[string]string{"text": "hi"})
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Equal(t, 1, m.QueueDepth())
}

func TestQueueFlushesInOrderOnConnect(t *testing.T) {
	m, dialer := newTestRealtime(t, nil, nil)

	for _, text := range []string{"one", "two", "three"} {
		_, err := m.Send(context.Background(), "chat_message", map[string]string{"text": text})
		require.NoError(t, err)
	}
	require.Equal(t, 3, m.QueueDepth())

	require.NoError(t, m.Connect(context.Background()))

	assert.Eventually(t, func() bool {
		return m.QueueDepth() == 0
	}, time.Second, 5*time.Millisecond)

	var texts []string
	for _, frame := range dialer.socket(0).frames() {
		if frame["type"] == "chat_message" {
			texts = append(texts, frame["text"].(string))
		}
	}
	assert.Equal(t, []string{"one", "two", "three"}, texts)
}

func TestQueueSurvivesRestart(t *testing.T) {
	store := storage.NewMemoryStore()

	m, _ := newTestRealtime(t, nil, store)
	_, err := m.Send(context.Background(), "chat_message", map[string]string{"text": "offline"})
	require.NoError(t, err)

	restarted, _ := newTestRealtime(t, nil, store)
	assert.Equal(t, 1, restarted.QueueDepth())
}

func TestUnexpectedDropSchedulesReconnect(t *testing.T) {
	m, dialer := newTestRealtime(t, nil, nil)
	require.NoError(t, m.Connect(context.Background()))

	dialer.socket(0).Close()

	assert.Eventually(t, func() bool {
		return m.State() == ConnConnected && dialer.dialCount() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestManualDisconnectSuppressesReconnect(t *testing.T) {
	m, dialer := newTestRealtime(t, nil, nil)
	require.NoError(t, m.Connect(context.Background()))

	m.Disconnect()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, ConnDisconnected, m.State())
	assert.Equal(t, 1, dialer.dialCount(), "manual disconnect must not reconnect")

	require.NoError(t, m.Reconnect(context.Background()))
	assert.Equal(t, ConnConnected, m.State())
}

func TestReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	cfg := testRealtimeConfig()
	cfg.MaxReconnectAttempts = 3
	m, dialer := newTestRealtime(t, cfg, nil)

	require.NoError(t, m.Connect(context.Background()))

	dialer.mu.Lock()
	dialer.fail = true
	dialer.mu.Unlock()
	dialer.socket(0).Close()

	assert.Eventually(t, func() bool {
		return m.State() == ConnDisconnected && dialer.dialCount() == 4
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 4, dialer.dialCount(), "one initial dial plus three reconnect attempts")
}

func TestHeartbeatTimeoutForcesReconnect(t *testing.T) {
	cfg := testRealtimeConfig()
	cfg.HeartbeatInterval = 20 * time.Millisecond
	cfg.HeartbeatTimeout = 10 * time.Millisecond
	m, dialer := newTestRealtime(t, cfg, nil)

	require.NoError(t, m.Connect(context.Background()))

	// The first socket never answers pings, so the pong deadline
	// passes and the connection is declared dead.
	assert.Eventually(t, func() bool {
		return dialer.dialCount() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestHeartbeatPongKeepsConnectionAlive(t *testing.T) {
	cfg := testRealtimeConfig()
	cfg.HeartbeatInterval = 15 * time.Millisecond
	cfg.HeartbeatTimeout = 40 * time.Millisecond
	m, dialer := newTestRealtime(t, cfg, nil)

	require.NoError(t, m.Connect(context.Background()))
	sock := dialer.socket(0)

	// Answer every ping for a while.
	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.After(150 * time.Millisecond)
		for {
			select {
			case <-deadline:
				return
			case <-time.After(5 * time.Millisecond):
				sock.deliver(`{"type":"pong"}`)
			}
		}
	}()
	<-done

	assert.Equal(t, ConnConnected, m.State())
	assert.Equal(t, 1, dialer.dialCount())
}

func TestInboundEventsDispatchToSubscribers(t *testing.T) {
	m, dialer := newTestRealtime(t, nil, nil)

	events := make(chan Event, 4)
	unsubscribe := m.SubscribeEvents(func(ev Event) { events <- ev })
	defer unsubscribe()

	require.NoError(t, m.Connect(context.Background()))
	sock := dialer.socket(0)

	sock.deliver(`{"type":"ride_status","ride_id":"r-1","status":"accepted"}`)
	sock.deliver(`{"type":"totally_unknown","x":1}`)
	sock.deliver(`{"type":"chat_message","ride_id":"r-1","sender_id":"d-1","text":"on my way"}`)

	first := <-events
	status, ok := first.(RideStatusUpdate)
	require.True(t, ok)
	assert.Equal(t, "accepted", status.Status)

	second := <-events
	chat, ok := second.(ChatMessage)
	require.True(t, ok, "unknown event must be skipped, not dispatched")
	assert.Equal(t, "on my way", chat.Text)
}
