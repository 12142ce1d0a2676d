package config

import (
	"strings"
	"time"
)

// PolicyConfig carries business policy values that must stay
// configurable rather than hardcoded: the final-fare variance a rider
// accepts without reconfirmation, the idempotency ledger retention,
// and the emergency number per country.
type PolicyConfig struct {
	FareVarianceTolerance float64           `yaml:"fare_variance_tolerance"`
	IdempotencyTTL        time.Duration     `yaml:"idempotency_ttl"`
	EmergencyNumbers      map[string]string `yaml:"emergency_numbers"`
	DefaultEmergency      string            `yaml:"default_emergency"`
}

func loadPolicyConfig() *PolicyConfig {
	return &PolicyConfig{
		FareVarianceTolerance: getEnvAsFloat64("POLICY_FARE_VARIANCE_TOLERANCE", 0.10),
		IdempotencyTTL:        getEnvAsDuration("POLICY_IDEMPOTENCY_TTL", 24*time.Hour),
		EmergencyNumbers:      loadEmergencyNumbers(),
		DefaultEmergency:      getEnv("POLICY_DEFAULT_EMERGENCY", "112"),
	}
}

// loadEmergencyNumbers parses POLICY_EMERGENCY_NUMBERS as
// "US:911,IN:112,GB:999" pairs on top of the built-in table.
func loadEmergencyNumbers() map[string]string {
	numbers := map[string]string{
		"US": "911",
		"CA": "911",
		"MX": "911",
		"GB": "999",
		"IN": "112",
		"AU": "000",
		"NZ": "111",
		"JP": "110",
		"BR": "190",
		"DE": "112",
		"FR": "112",
		"ZA": "10111",
	}

	for _, pair := range getEnvAsSlice("POLICY_EMERGENCY_NUMBERS", nil) {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		country := strings.ToUpper(strings.TrimSpace(parts[0]))
		number := strings.TrimSpace(parts[1])
		if country != "" && number != "" {
			numbers[country] = number
		}
	}

	return numbers
}
