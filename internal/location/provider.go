package location

import (
	"context"

	"ridesync/internal/models"
)

// Provider acquires a device position fix. Implementations wrap the
// platform positioning service; failures must be *Error values so the
// manager can classify them.
type Provider interface {
	// CurrentPosition blocks until a fix is available, the context is
	// done, or the provider fails.
	CurrentPosition(ctx context.Context) (models.Coordinates, error)

	// PermissionGranted reports whether the app may read the device
	// position at all.
	PermissionGranted(ctx context.Context) (bool, error)
}

// UnavailableProvider is a Provider for hosts with no positioning
// hardware. The cascade falls through to network geolocation and the
// cached fix.
type UnavailableProvider struct{}

func (UnavailableProvider) CurrentPosition(ctx context.Context) (models.Coordinates, error) {
	return models.Coordinates{}, ErrGPSDisabled("no positioning hardware on this host")
}

func (UnavailableProvider) PermissionGranted(ctx context.Context) (bool, error) {
	return true, nil
}
