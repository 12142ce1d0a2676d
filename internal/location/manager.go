package location

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"ridesync/internal/config"
	"ridesync/internal/models"
	"ridesync/internal/observability"
	"ridesync/pkg/logger"
	"ridesync/pkg/storage"
)

// Manager returns a best-effort position for a stated use case,
// cascading gps -> network -> cached rather than failing outright when
// the best source is unavailable. Every successful fix, whatever its
// source, overwrites the durably persisted last-known location.
type Manager struct {
	cfg      *config.LocationConfig
	provider Provider
	geo      Geolocator
	store    storage.Store
	log      *logger.Logger

	mu          sync.Mutex
	cached      *models.Coordinates
	watching    bool
	watchCancel context.CancelFunc
}

func NewManager(cfg *config.LocationConfig, provider Provider, geo Geolocator, store storage.Store, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNop()
	}

	m := &Manager{
		cfg:      cfg,
		provider: provider,
		geo:      geo,
		store:    store,
		log:      log.WithField("component", "location"),
	}

	var last models.Coordinates
	if err := store.Get(context.Background(), storage.KeyLastKnownLocation, &last); err == nil {
		m.cached = &last
	} else if !errors.Is(err, storage.ErrNotFound) {
		m.log.WithError(err).Warn("Failed to restore last known location")
	}

	return m
}

// GetBestAvailableLocation tries GPS, then network geolocation, then
// the cached last-known fix, returning the first result that passes
// the use case's accuracy policy. When everything fails, the result
// carries the most actionable of the errors encountered.
func (m *Manager) GetBestAvailableLocation(ctx context.Context, useCase UseCase) models.LocationResult {
	var worst *Error

	coords, err := m.fromGPS(ctx)
	if err == nil {
		if verr := ValidateAccuracy(coords, models.LocationSourceGPS, useCase); verr == nil {
			m.remember(ctx, coords)
			observability.LocationFallbacksTotal.WithLabelValues(string(models.LocationSourceGPS)).Inc()
			return success(coords, models.LocationSourceGPS)
		} else {
			worst = betterOf(worst, asLocationError(verr))
		}
	} else {
		worst = betterOf(worst, asLocationError(err))
	}

	if m.geo != nil {
		coords, source, nerr := m.fromNetwork(ctx)
		if nerr == nil {
			if verr := ValidateAccuracy(coords, source, useCase); verr == nil {
				m.remember(ctx, coords)
				observability.LocationFallbacksTotal.WithLabelValues(string(source)).Inc()
				return success(coords, source)
			} else {
				worst = betterOf(worst, asLocationError(verr))
			}
		} else {
			worst = betterOf(worst, asLocationError(nerr))
		}
	}

	if cached, ok := m.fromCache(useCase); ok {
		observability.LocationFallbacksTotal.WithLabelValues(string(models.LocationSourceCached)).Inc()
		return success(cached, models.LocationSourceCached)
	}

	if worst == nil {
		worst = ErrPositionUnavailable("no location source available")
	}
	failure := worst.Failure()
	failure.NeedsUserAction = true

	observability.LocationFallbacksTotal.WithLabelValues(string(models.LocationSourceNone)).Inc()
	m.log.LogLocationEvent(string(models.LocationSourceNone), "cascade_exhausted", map[string]interface{}{
		"use_case": string(useCase),
		"kind":     failure.Kind,
	})

	return models.LocationResult{
		Success:      false,
		Failure:      failure,
		Source:       models.LocationSourceNone,
		AccuracyTier: models.AccuracyTierLow,
	}
}

func (m *Manager) fromGPS(ctx context.Context) (models.Coordinates, error) {
	granted, err := m.provider.PermissionGranted(ctx)
	if err != nil {
		return models.Coordinates{}, ErrPositionUnavailable(fmt.Sprintf("permission check failed: %v", err))
	}
	if !granted {
		return models.Coordinates{}, ErrPermissionDenied("location permission not granted")
	}

	acqCtx, cancel := clampTimeout(ctx, m.cfg.AcquireTimeout)
	defer cancel()

	coords, err := m.provider.CurrentPosition(acqCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.Coordinates{}, ErrTimeout(fmt.Sprintf("no gps fix within %s", m.cfg.AcquireTimeout))
		}
		return models.Coordinates{}, err
	}
	return coords, nil
}

func (m *Manager) fromNetwork(ctx context.Context) (models.Coordinates, models.LocationSource, error) {
	geoCtx, cancel := clampTimeout(ctx, m.cfg.AcquireTimeout)
	defer cancel()

	lat, lon, acc, source, err := m.geo.Locate(geoCtx)
	if err != nil {
		return models.Coordinates{}, models.LocationSourceNone, err
	}
	return models.Coordinates{
		Latitude:       lat,
		Longitude:      lon,
		AccuracyMeters: acc,
		CapturedAt:     time.Now(),
	}, source, nil
}

func (m *Manager) fromCache(useCase UseCase) (models.Coordinates, bool) {
	m.mu.Lock()
	cached := m.cached
	m.mu.Unlock()

	if cached == nil {
		return models.Coordinates{}, false
	}
	if cached.Age(time.Now()) > m.cfg.CacheMaxAge {
		return models.Coordinates{}, false
	}
	if err := ValidateAccuracy(*cached, models.LocationSourceCached, useCase); err != nil {
		return models.Coordinates{}, false
	}
	return *cached, true
}

// remember overwrites the cached and persisted last-known fix.
func (m *Manager) remember(ctx context.Context, coords models.Coordinates) {
	m.mu.Lock()
	c := coords
	m.cached = &c
	m.mu.Unlock()

	if err := m.store.Set(ctx, storage.KeyLastKnownLocation, coords); err != nil {
		m.log.WithError(err).Warn("Failed to persist last known location")
	}
}

// LastKnown returns the cached fix regardless of age, if one exists.
func (m *Manager) LastKnown() (models.Coordinates, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil {
		return models.Coordinates{}, false
	}
	return *m.cached, true
}

// Watch starts continuous position updates. Starting twice is a no-op
// returning true. On permission denial the callback fires once with a
// permission failure and the watch does not start. Each successful fix
// becomes the new last-known location before the callback runs.
func (m *Manager) Watch(ctx context.Context, callback func(models.LocationResult)) bool {
	granted, err := m.provider.PermissionGranted(ctx)
	if err != nil || !granted {
		perr := ErrPermissionDenied("location permission not granted")
		callback(models.LocationResult{
			Success:      false,
			Failure:      perr.Failure(),
			Source:       models.LocationSourceNone,
			AccuracyTier: models.AccuracyTierLow,
		})
		return false
	}

	// Check-and-set under one lock so concurrent starts cannot spawn
	// two watch loops.
	m.mu.Lock()
	if m.watching {
		m.mu.Unlock()
		return true
	}
	watchCtx, cancel := context.WithCancel(ctx)
	m.watching = true
	m.watchCancel = cancel
	m.mu.Unlock()

	go m.watchLoop(watchCtx, callback)
	return true
}

// StopWatch halts continuous updates.
func (m *Manager) StopWatch() {
	m.mu.Lock()
	cancel := m.watchCancel
	m.watching = false
	m.watchCancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// watchLoop polls the provider on the configured interval, applying a
// distance filter so stationary devices do not spam the callback.
func (m *Manager) watchLoop(ctx context.Context, callback func(models.LocationResult)) {
	ticker := time.NewTicker(m.cfg.WatchInterval)
	defer ticker.Stop()

	var last *models.Coordinates

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		coords, err := m.provider.CurrentPosition(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.log.WithError(err).Debug("Watch position read failed")
			continue
		}

		if last != nil && haversineMeters(last.Latitude, last.Longitude, coords.Latitude, coords.Longitude) < m.cfg.WatchDistanceM {
			continue
		}

		c := coords
		last = &c
		m.remember(ctx, coords)
		callback(success(coords, models.LocationSourceGPS))
	}
}

func success(coords models.Coordinates, source models.LocationSource) models.LocationResult {
	c := coords
	return models.LocationResult{
		Success:      true,
		Coordinates:  &c,
		Source:       source,
		AccuracyTier: Tier(coords.AccuracyMeters),
	}
}

func asLocationError(err error) *Error {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr
	}
	return ErrPositionUnavailable(err.Error())
}

// haversineMeters computes the great-circle distance between two
// points.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusM = 6371000

	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)

	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
