package resilience

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ridesync/internal/models"
)

// ConnectivityProvider reports the current network reachability. The
// manager polls it and fans observed changes out to subscribers.
type ConnectivityProvider interface {
	Check(ctx context.Context) models.NetworkStatus
}

// HTTPProbe checks reachability by issuing a HEAD request against a
// known endpoint. Any response, including an error status, proves the
// network path works.
type HTTPProbe struct {
	URL    string
	Client *http.Client
}

func NewHTTPProbe(url string) *HTTPProbe {
	return &HTTPProbe{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *HTTPProbe) Check(ctx context.Context) models.NetworkStatus {
	status := models.NetworkStatus{
		ConnectionType: models.ConnectionTypeUnknown,
		LastCheckedAt:  time.Now(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return status
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return status
	}
	resp.Body.Close()

	status.IsConnected = true
	status.IsInternetReachable = true
	return status
}

// ManualProvider is a connectivity source driven by explicit calls,
// used when the host application already knows its reachability (and
// by tests).
type ManualProvider struct {
	mu     sync.RWMutex
	status models.NetworkStatus
}

func NewManualProvider(online bool) *ManualProvider {
	p := &ManualProvider{}
	p.SetOnline(online)
	return p
}

func (p *ManualProvider) SetOnline(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = models.NetworkStatus{
		IsConnected:         online,
		IsInternetReachable: online,
		ConnectionType:      models.ConnectionTypeUnknown,
		LastCheckedAt:       time.Now(),
	}
	if !online {
		p.status.ConnectionType = models.ConnectionTypeNone
	}
}

func (p *ManualProvider) SetStatus(status models.NetworkStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

func (p *ManualProvider) Check(ctx context.Context) models.NetworkStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := p.status
	status.LastCheckedAt = time.Now()
	return status
}
