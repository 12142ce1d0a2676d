package location

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridesync/internal/config"
	"ridesync/internal/models"
	"ridesync/pkg/storage"
)

type fakeProvider struct {
	mu       sync.Mutex
	granted  bool
	fix      models.Coordinates
	err      error
	posCalls int
}

func (p *fakeProvider) CurrentPosition(ctx context.Context) (models.Coordinates, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posCalls++
	if p.err != nil {
		return models.Coordinates{}, p.err
	}
	fix := p.fix
	fix.CapturedAt = time.Now()
	return fix, nil
}

func (p *fakeProvider) PermissionGranted(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted, nil
}

func (p *fakeProvider) positionCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.posCalls
}

func (p *fakeProvider) set(fix models.Coordinates, err error) {
	p.mu.Lock()
	p.fix = fix
	p.err = err
	p.mu.Unlock()
}

type fakeGeo struct {
	lat, lon, acc float64
	source        models.LocationSource
	err           error
}

func (g *fakeGeo) Locate(ctx context.Context) (float64, float64, float64, models.LocationSource, error) {
	if g.err != nil {
		return 0, 0, 0, models.LocationSourceNone, g.err
	}
	source := g.source
	if source == "" {
		source = models.LocationSourceNetwork
	}
	return g.lat, g.lon, g.acc, source, nil
}

func testLocationConfig() *config.LocationConfig {
	return &config.LocationConfig{
		CacheMaxAge:    time.Minute,
		AcquireTimeout: time.Second,
		WatchInterval:  5 * time.Millisecond,
		WatchDistanceM: 0,
	}
}

func TestCascadePrefersGPS(t *testing.T) {
	provider := &fakeProvider{granted: true, fix: models.Coordinates{Latitude: 1, Longitude: 2, AccuracyMeters: 10}}
	store := storage.NewMemoryStore()
	m := NewManager(testLocationConfig(), provider, nil, store, nil)

	result := m.GetBestAvailableLocation(context.Background(), UseCaseRideRequest)
	require.True(t, result.Success)
	assert.Equal(t, models.LocationSourceGPS, result.Source)
	assert.Equal(t, models.AccuracyTierHigh, result.AccuracyTier)

	var persisted models.Coordinates
	require.NoError(t, store.Get(context.Background(), storage.KeyLastKnownLocation, &persisted))
	assert.Equal(t, float64(1), persisted.Latitude)
}

func TestInsufficientGPSFallsBackToFreshCache(t *testing.T) {
	store := storage.NewMemoryStore()
	cached := models.Coordinates{Latitude: 3, Longitude: 4, AccuracyMeters: 50, CapturedAt: time.Now()}
	require.NoError(t, store.Set(context.Background(), storage.KeyLastKnownLocation, cached))

	// GPS fix too coarse for a ride request.
	provider := &fakeProvider{granted: true, fix: models.Coordinates{Latitude: 1, Longitude: 2, AccuracyMeters: 500}}
	m := NewManager(testLocationConfig(), provider, nil, store, nil)

	result := m.GetBestAvailableLocation(context.Background(), UseCaseRideRequest)
	require.True(t, result.Success)
	assert.Equal(t, models.LocationSourceCached, result.Source)
	assert.Equal(t, float64(3), result.Coordinates.Latitude)
}

func TestNetworkFallbackWhenGPSFails(t *testing.T) {
	provider := &fakeProvider{granted: true, err: ErrPositionUnavailable("no satellites")}
	geo := &fakeGeo{lat: 5, lon: 6, acc: 150}
	store := storage.NewMemoryStore()
	m := NewManager(testLocationConfig(), provider, geo, store, nil)

	result := m.GetBestAvailableLocation(context.Background(), UseCaseRideRequest)
	require.True(t, result.Success)
	assert.Equal(t, models.LocationSourceNetwork, result.Source)
	assert.Equal(t, float64(5), result.Coordinates.Latitude)
}

func TestIPFallbackRespectsUseCasePolicy(t *testing.T) {
	provider := &fakeProvider{granted: true, err: ErrPositionUnavailable("no satellites")}
	geo := &fakeGeo{lat: 5, lon: 6, acc: 1500, source: models.LocationSourceIP}
	m := NewManager(testLocationConfig(), provider, geo, storage.NewMemoryStore(), nil)

	// ride_request rejects ip-derived fixes outright.
	result := m.GetBestAvailableLocation(context.Background(), UseCaseRideRequest)
	require.False(t, result.Success)
	assert.Equal(t, KindInsufficientAccuracy, result.Failure.Kind)

	// eta_estimation tolerates the same fix and keeps the ip tag.
	result = m.GetBestAvailableLocation(context.Background(), UseCaseETAEstimation)
	require.True(t, result.Success)
	assert.Equal(t, models.LocationSourceIP, result.Source)
}

func TestStaleCacheIsRejected(t *testing.T) {
	store := storage.NewMemoryStore()
	cached := models.Coordinates{Latitude: 3, Longitude: 4, AccuracyMeters: 50, CapturedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, store.Set(context.Background(), storage.KeyLastKnownLocation, cached))

	provider := &fakeProvider{granted: true, err: ErrPositionUnavailable("no satellites")}
	m := NewManager(testLocationConfig(), provider, nil, store, nil)

	result := m.GetBestAvailableLocation(context.Background(), UseCaseRideRequest)
	require.False(t, result.Success)
	require.NotNil(t, result.Failure)
	assert.True(t, result.Failure.NeedsUserAction)
	assert.Equal(t, models.LocationSourceNone, result.Source)
}

func TestPermissionDeniedSurfacesAsBestError(t *testing.T) {
	provider := &fakeProvider{granted: false}
	m := NewManager(testLocationConfig(), provider, nil, storage.NewMemoryStore(), nil)

	result := m.GetBestAvailableLocation(context.Background(), UseCaseGeneral)
	require.False(t, result.Success)
	assert.Equal(t, KindPermissionDenied, result.Failure.Kind)
	assert.True(t, result.Failure.NeedsUserAction)
}

func TestWatchPermissionDenied(t *testing.T) {
	provider := &fakeProvider{granted: false}
	m := NewManager(testLocationConfig(), provider, nil, storage.NewMemoryStore(), nil)

	var results []models.LocationResult
	started := m.Watch(context.Background(), func(r models.LocationResult) {
		results = append(results, r)
	})

	assert.False(t, started)
	require.Len(t, results, 1)
	assert.Equal(t, KindPermissionDenied, results[0].Failure.Kind)
}

func TestWatchDeliversFixesAndIsIdempotent(t *testing.T) {
	provider := &fakeProvider{granted: true, fix: models.Coordinates{Latitude: 1, Longitude: 1, AccuracyMeters: 10}}
	store := storage.NewMemoryStore()
	m := NewManager(testLocationConfig(), provider, nil, store, nil)
	defer m.StopWatch()

	fixes := make(chan models.LocationResult, 16)
	require.True(t, m.Watch(context.Background(), func(r models.LocationResult) { fixes <- r }))
	require.True(t, m.Watch(context.Background(), func(r models.LocationResult) { t.Error("second watch must not start") }))

	select {
	case fix := <-fixes:
		require.True(t, fix.Success)
		assert.Equal(t, models.LocationSourceGPS, fix.Source)
	case <-time.After(time.Second):
		t.Fatal("no watch fix delivered")
	}

	var persisted models.Coordinates
	require.NoError(t, store.Get(context.Background(), storage.KeyLastKnownLocation, &persisted))
	assert.Equal(t, float64(1), persisted.Latitude)
}

func TestConcurrentWatchStartsOneLoop(t *testing.T) {
	provider := &fakeProvider{granted: true, fix: models.Coordinates{Latitude: 1, Longitude: 1, AccuracyMeters: 10}}
	m := NewManager(testLocationConfig(), provider, nil, storage.NewMemoryStore(), nil)

	var wg sync.WaitGroup
	results := make([]bool, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Watch(context.Background(), func(models.LocationResult) {})
		}(i)
	}
	wg.Wait()

	for i, started := range results {
		assert.True(t, started, "call %d", i)
	}

	// A single StopWatch must halt all polling; an orphaned second
	// loop would keep reading positions.
	assert.Eventually(t, func() bool {
		return provider.positionCalls() > 0
	}, time.Second, 5*time.Millisecond)

	m.StopWatch()
	time.Sleep(20 * time.Millisecond)
	after := provider.positionCalls()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, provider.positionCalls())
}

func TestWatchDistanceFilter(t *testing.T) {
	provider := &fakeProvider{granted: true, fix: models.Coordinates{Latitude: 1, Longitude: 1, AccuracyMeters: 10}}
	cfg := testLocationConfig()
	cfg.WatchDistanceM = 10
	m := NewManager(cfg, provider, nil, storage.NewMemoryStore(), nil)
	defer m.StopWatch()

	var mu sync.Mutex
	count := 0
	require.True(t, m.Watch(context.Background(), func(r models.LocationResult) {
		mu.Lock()
		count++
		mu.Unlock()
	}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, time.Second, 5*time.Millisecond)

	// Device stays put; no further callbacks.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, count)
	mu.Unlock()

	// Device moves far enough to pass the filter.
	provider.set(models.Coordinates{Latitude: 1.01, Longitude: 1, AccuracyMeters: 10}, nil)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 2
	}, time.Second, 5*time.Millisecond)
}
