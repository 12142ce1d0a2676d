package location

import (
	"fmt"

	"ridesync/internal/models"
)

// UseCase names the caller's purpose, which determines how accurate a
// fix must be before it is trusted.
type UseCase string

const (
	UseCaseRideRequest    UseCase = "ride_request"
	UseCaseDriverTracking UseCase = "driver_tracking"
	UseCaseETAEstimation  UseCase = "eta_estimation"
	UseCaseGeneral        UseCase = "general"
)

// ValidateAccuracy applies the per-use-case policy to a fix.
//
// ride_request is the strictest: manual entries worse than 100m and
// IP-derived positions are rejected, and nothing worse than 200m is
// accepted. driver_tracking only distrusts coarse IP fixes (worse
// than 2000m). eta_estimation tolerates anything up to 5000m.
// general accepts every fix.
func ValidateAccuracy(coords models.Coordinates, source models.LocationSource, useCase UseCase) error {
	acc := coords.AccuracyMeters

	switch useCase {
	case UseCaseRideRequest:
		if source == models.LocationSourceIP {
			return ErrInsufficientAccuracy("ip-derived position not precise enough for ride request")
		}
		if source == models.LocationSourceManual && acc > 100 {
			return ErrInsufficientAccuracy(fmt.Sprintf("manual entry accuracy %.0fm exceeds 100m", acc))
		}
		if acc > 200 {
			return ErrInsufficientAccuracy(fmt.Sprintf("accuracy %.0fm exceeds 200m", acc))
		}
	case UseCaseDriverTracking:
		if source == models.LocationSourceIP && acc > 2000 {
			return ErrInsufficientAccuracy(fmt.Sprintf("ip accuracy %.0fm exceeds 2000m", acc))
		}
	case UseCaseETAEstimation:
		if acc > 5000 {
			return ErrInsufficientAccuracy(fmt.Sprintf("accuracy %.0fm exceeds 5000m", acc))
		}
	case UseCaseGeneral:
		// anything goes
	}

	return nil
}

// Tier buckets a fix's accuracy for display and logging.
func Tier(accuracyMeters float64) models.AccuracyTier {
	switch {
	case accuracyMeters <= 50:
		return models.AccuracyTierHigh
	case accuracyMeters <= 500:
		return models.AccuracyTierMedium
	default:
		return models.AccuracyTierLow
	}
}
