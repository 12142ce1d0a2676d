package location

import (
	"context"
	"fmt"
	"sync"
	"time"

	"googlemaps.github.io/maps"

	"ridesync/internal/models"
)

// Geolocator resolves a coarse position without device GPS. The
// returned source distinguishes signal-triangulated fixes (network)
// from pure IP lookups (ip), since the accuracy policy treats them
// differently.
type Geolocator interface {
	Locate(ctx context.Context) (lat, lon, accuracyMeters float64, source models.LocationSource, err error)
}

// GoogleGeolocator uses the Google Geolocation API. With scanned WiFi
// access points supplied it triangulates and the fix is tagged
// network; without signals the API falls back to the caller's IP and
// the fix is tagged ip.
type GoogleGeolocator struct {
	client *maps.Client

	mu           sync.Mutex
	accessPoints []maps.WiFiAccessPoint
}

func NewGoogleGeolocator(apiKey string) (*GoogleGeolocator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("location: google api key is required")
	}
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("location: init geolocation client: %w", err)
	}
	return &GoogleGeolocator{client: client}, nil
}

// SetWiFiAccessPoints supplies the most recent WiFi scan for the next
// lookups. Pass nil when no scan is available.
func (g *GoogleGeolocator) SetWiFiAccessPoints(aps []maps.WiFiAccessPoint) {
	g.mu.Lock()
	g.accessPoints = aps
	g.mu.Unlock()
}

func (g *GoogleGeolocator) Locate(ctx context.Context) (float64, float64, float64, models.LocationSource, error) {
	g.mu.Lock()
	aps := g.accessPoints
	g.mu.Unlock()

	res, err := g.client.Geolocate(ctx, &maps.GeolocationRequest{
		ConsiderIP:       true,
		WiFiAccessPoints: aps,
	})
	if err != nil {
		return 0, 0, 0, models.LocationSourceNone, ErrNetwork(fmt.Sprintf("geolocation request failed: %v", err))
	}

	source := models.LocationSourceIP
	if len(aps) > 0 {
		source = models.LocationSourceNetwork
	}
	return res.Location.Lat, res.Location.Lng, res.Accuracy, source, nil
}

// clampTimeout bounds a geolocation call so a slow lookup cannot stall
// the fallback cascade.
func clampTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
