package payments

import (
	"fmt"
	"math"
	"strings"

	"ridesync/internal/config"
)

// ValidateFinalFare checks the charged fare against the quoted fare.
// A variance beyond the configured tolerance needs rider
// reconfirmation before the charge proceeds.
func ValidateFinalFare(cfg *config.PolicyConfig, quoted, final float64) error {
	if quoted <= 0 {
		return fmt.Errorf("payments: quoted fare must be positive, got %.2f", quoted)
	}
	if final < 0 {
		return fmt.Errorf("payments: final fare cannot be negative, got %.2f", final)
	}

	variance := math.Abs(final-quoted) / quoted
	if variance > cfg.FareVarianceTolerance {
		return fmt.Errorf("payments: final fare %.2f deviates %.0f%% from quote %.2f (tolerance %.0f%%)",
			final, variance*100, quoted, cfg.FareVarianceTolerance*100)
	}
	return nil
}

// EmergencyNumber returns the emergency dial number for an ISO country
// code, falling back to the configured default for unknown countries.
func EmergencyNumber(cfg *config.PolicyConfig, country string) string {
	if number, ok := cfg.EmergencyNumbers[strings.ToUpper(strings.TrimSpace(country))]; ok {
		return number
	}
	return cfg.DefaultEmergency
}
