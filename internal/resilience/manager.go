package resilience

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ridesync/internal/config"
	"ridesync/internal/models"
	"ridesync/internal/observability"
	"ridesync/pkg/logger"
	"ridesync/pkg/storage"
)

// Request describes one outbound call made through the manager.
type Request struct {
	Method  string
	URL     string
	Body    interface{} // marshaled to JSON when non-nil
	RawBody json.RawMessage
	Headers map[string]string

	// Priority decides the queue band if the request is captured
	// while offline. Defaults to medium.
	Priority models.Priority

	// Policy and Decider override the manager defaults per request.
	Policy  *RetryPolicy
	Decider RetryDecider

	// queued carries the original queue entry during a replay so an
	// offline re-capture keeps its identity and retry count.
	queued *models.QueuedRequest
}

// Response is a successful (2xx) server reply.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) DecodeJSON(dest interface{}) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, dest)
}

// Manager makes outbound request/response calls resilient to transient
// failure and total disconnection. It owns the retry policy, the
// per-endpoint circuit breakers and the durable offline queue; callers
// never need to know whether the network is currently reachable.
type Manager struct {
	cfg      *config.ResilienceConfig
	client   *http.Client
	provider ConnectivityProvider
	breaker  *circuitBreaker
	queue    *offlineQueue
	policy   RetryPolicy
	decider  RetryDecider
	log      *logger.Logger

	mu          sync.RWMutex
	status      models.NetworkStatus
	subscribers map[int]func(models.NetworkStatus)
	nextSubID   int

	// drainMu serializes queue drains so replays never interleave.
	drainMu sync.Mutex

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewManager(cfg *config.ResilienceConfig, store storage.Store, provider ConnectivityProvider, log *logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.WithField("component", "resilience")

	m := &Manager{
		cfg:      cfg,
		client:   &http.Client{},
		provider: provider,
		breaker:  newCircuitBreaker(cfg.FailureThreshold, cfg.CircuitResetAfter),
		queue:    newOfflineQueue(store, log),
		policy:   PolicyFromConfig(cfg),
		decider:  DefaultRetryDecider(),
		log:      log,

		subscribers: make(map[int]func(models.NetworkStatus)),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}

	if err := m.queue.load(context.Background()); err != nil {
		return nil, fmt.Errorf("resilience: restore offline queue: %w", err)
	}

	return m, nil
}

// Start begins connectivity polling. The first observed offline→online
// edge automatically drains the offline queue.
func (m *Manager) Start() {
	go m.pollLoop()
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		<-m.doneCh
	})
}

func (m *Manager) pollLoop() {
	defer close(m.doneCh)

	// Establish the initial status before ticking.
	m.Refresh(context.Background())

	ticker := time.NewTicker(m.cfg.ConnectivityPoll)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Refresh(context.Background())
		}
	}
}

// Refresh asks the connectivity provider for the current status and
// fans any change out to subscribers. Exposed so hosts with their own
// reachability signal can force a re-check.
func (m *Manager) Refresh(ctx context.Context) models.NetworkStatus {
	status := m.provider.Check(ctx)

	m.mu.Lock()
	previous := m.status
	m.status = status
	subs := make([]func(models.NetworkStatus), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	changed := previous.Online() != status.Online() || previous.ConnectionType != status.ConnectionType
	if changed {
		m.log.WithFields(map[string]interface{}{
			"online":          status.Online(),
			"connection_type": string(status.ConnectionType),
		}).Info("Connectivity changed")

		for _, fn := range subs {
			fn(status)
		}
	}

	if !previous.Online() && status.Online() && m.queue.depth() > 0 {
		go m.DrainQueue(context.Background())
	}

	return status
}

// Status returns the last observed connectivity snapshot.
func (m *Manager) Status() models.NetworkStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Subscribe registers a connectivity listener and returns its
// unsubscribe function.
func (m *Manager) Subscribe(fn func(models.NetworkStatus)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// Do executes the request with circuit breaking, offline capture and
// sequential retries. Every failure surfaces as one of the typed
// errors (CircuitOpenError, OfflineQueuedError, HTTPError,
// NetworkError); nothing is silently swallowed.
func (m *Manager) Do(ctx context.Context, req Request) (*Response, error) {
	policy := m.policy
	if req.Policy != nil {
		policy = *req.Policy
	}
	decider := m.decider
	if req.Decider != nil {
		decider = req.Decider
	}

	if ok, retryAt := m.breaker.allow(req.URL, time.Now()); !ok {
		observability.CircuitRejectedTotal.WithLabelValues(req.URL).Inc()
		return nil, &CircuitOpenError{Endpoint: req.URL, RetryAt: retryAt}
	}

	body, err := req.encodeBody()
	if err != nil {
		return nil, fmt.Errorf("resilience: encode request body: %w", err)
	}

	if !m.Status().Online() {
		return nil, m.captureOffline(ctx, req, body)
	}

	start := time.Now()
	resp, attempts, err := m.attempt(ctx, req, body, policy, decider)
	duration := time.Since(start)

	if err == nil {
		m.breaker.recordSuccess(req.URL)
		observability.RequestDuration.WithLabelValues(req.Method, "success").Observe(duration.Seconds())
		m.log.LogAPIRequest(req.Method, req.URL, resp.Status, duration, attempts)
		return resp, nil
	}

	observability.RequestDuration.WithLabelValues(req.Method, "failure").Observe(duration.Seconds())
	if opened := m.breaker.recordFailure(req.URL, time.Now()); opened {
		observability.CircuitOpenedTotal.WithLabelValues(req.URL).Inc()
		m.log.WithEndpoint(req.URL).Warn("Circuit breaker opened")
	}

	return nil, err
}

// ExecuteWithRetry wraps an arbitrary operation with the manager's
// backoff semantics. No circuit breaking or offline queuing.
func (m *Manager) ExecuteWithRetry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	return Retry(ctx, policy, m.decider, op)
}

// attempt runs the sequential retry loop for one logical request.
func (m *Manager) attempt(ctx context.Context, req Request, body []byte, policy RetryPolicy, decider RetryDecider) (*Response, int, error) {
	var lastErr error

	for i := 0; i <= policy.MaxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, i, &NetworkError{URL: req.URL, Err: err}
		}

		if i > 0 {
			observability.HTTPRetriesTotal.WithLabelValues(req.URL).Inc()
			select {
			case <-time.After(policy.Backoff(i - 1)):
			case <-ctx.Done():
				return nil, i, &NetworkError{URL: req.URL, Err: ctx.Err()}
			}
		}

		resp, err := m.doOnce(ctx, req, body)
		if err == nil {
			return resp, i + 1, nil
		}
		lastErr = err

		if !decider.ShouldRetry(err, i) {
			break
		}
	}

	return nil, policy.MaxRetries + 1, lastErr
}

// doOnce performs a single HTTP attempt with its own timeout.
func (m *Manager) doOnce(ctx context.Context, req Request, body []byte) (*Response, error) {
	attemptCtx := ctx
	if m.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, m.cfg.RequestTimeout)
		defer cancel()
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, req.URL, reader)
	if err != nil {
		return nil, &NetworkError{URL: req.URL, Err: err}
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if len(body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{URL: req.URL, Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &NetworkError{URL: req.URL, Err: err}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &HTTPError{Status: httpResp.StatusCode, URL: req.URL}
	}

	return &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   respBody,
	}, nil
}

// captureOffline queues a mutating request for replay and rejects
// everything else. GET and DELETE are never queued.
func (m *Manager) captureOffline(ctx context.Context, req Request, body []byte) error {
	method := strings.ToUpper(req.Method)
	if method != http.MethodPost && method != http.MethodPut {
		return &NetworkError{URL: req.URL, Err: ErrOffline}
	}

	entry := req.queued
	if entry == nil {
		priority := req.Priority
		if priority == "" {
			priority = models.PriorityMedium
		}
		entry = &models.QueuedRequest{
			ID:         uuid.NewString(),
			URL:        req.URL,
			Method:     method,
			Body:       body,
			Headers:    req.Headers,
			EnqueuedAt: time.Now(),
			Priority:   priority,
		}
	}

	if err := m.queue.enqueue(ctx, *entry); err != nil {
		return &NetworkError{URL: req.URL, Err: err}
	}

	return &OfflineQueuedError{RequestID: entry.ID, Priority: string(entry.Priority)}
}

// DrainQueue replays everything queued as one batch. High-priority
// failures are re-queued up to the configured replay cap; medium and
// low priority failures are dropped after one failed replay, which is
// accepted product behavior for those bands.
func (m *Manager) DrainQueue(ctx context.Context) {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	batch, err := m.queue.takeBatch(ctx)
	if err != nil || len(batch) == 0 {
		return
	}

	m.log.LogQueueEvent("offline_requests", "drain_started", map[string]interface{}{
		"count": len(batch),
	})

	replayPolicy := RetryPolicy{
		MaxRetries:    1,
		BaseDelay:     m.policy.BaseDelay,
		MaxDelay:      m.policy.MaxDelay,
		BackoffFactor: m.policy.BackoffFactor,
	}

	for i := range batch {
		entry := batch[i]
		_, err := m.Do(ctx, Request{
			Method:  entry.Method,
			URL:     entry.URL,
			RawBody: entry.Body,
			Headers: entry.Headers,
			Policy:  &replayPolicy,
			queued:  &entry,
		})

		switch {
		case err == nil:
			observability.OfflineQueueDrainedTotal.WithLabelValues("replayed").Inc()
		case IsOfflineQueued(err):
			// Went offline again mid-drain; the entry is back in the
			// queue with its identity intact.
			observability.OfflineQueueDrainedTotal.WithLabelValues("requeued").Inc()
		case entry.Priority == models.PriorityHigh && entry.RetryCount < m.cfg.QueueMaxReplays:
			entry.RetryCount++
			if qerr := m.queue.enqueue(ctx, entry); qerr != nil {
				m.log.WithError(qerr).Error("Failed to re-queue high priority request")
			}
			observability.OfflineQueueDrainedTotal.WithLabelValues("requeued").Inc()
		default:
			observability.OfflineQueueDrainedTotal.WithLabelValues("dropped").Inc()
			m.log.WithError(err).LogQueueEvent("offline_requests", "dropped", map[string]interface{}{
				"request_id": entry.ID,
				"priority":   string(entry.Priority),
				"retries":    entry.RetryCount,
			})
		}
	}

	observability.OfflineQueueDepth.Set(float64(m.queue.depth()))
}

// QueueDepth returns how many requests await replay.
func (m *Manager) QueueDepth() int {
	return m.queue.depth()
}

// PendingRequests copies the queued entries for diagnostics.
func (m *Manager) PendingRequests() []models.QueuedRequest {
	return m.queue.snapshot()
}

// Circuits copies the per-endpoint breaker states for diagnostics.
func (m *Manager) Circuits() map[string]BreakerState {
	return m.breaker.snapshot()
}

func (r Request) encodeBody() ([]byte, error) {
	if r.Body != nil {
		return json.Marshal(r.Body)
	}
	return r.RawBody, nil
}
