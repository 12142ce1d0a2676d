package config

import (
	"time"
)

type ResilienceConfig struct {
	MaxRetries        int           `yaml:"max_retries"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffFactor     float64       `yaml:"backoff_factor"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	FailureThreshold  int           `yaml:"failure_threshold"`
	CircuitResetAfter time.Duration `yaml:"circuit_reset_after"`
	QueueMaxReplays   int           `yaml:"queue_max_replays"`
	ConnectivityPoll  time.Duration `yaml:"connectivity_poll"`
	ConnectivityURL   string        `yaml:"connectivity_url"`
}

func loadResilienceConfig() *ResilienceConfig {
	return &ResilienceConfig{
		MaxRetries:        getEnvAsInt("RESILIENCE_MAX_RETRIES", 3),
		BaseDelay:         getEnvAsDuration("RESILIENCE_BASE_DELAY", 500*time.Millisecond),
		MaxDelay:          getEnvAsDuration("RESILIENCE_MAX_DELAY", 10*time.Second),
		BackoffFactor:     getEnvAsFloat64("RESILIENCE_BACKOFF_FACTOR", 2.0),
		RequestTimeout:    getEnvAsDuration("RESILIENCE_REQUEST_TIMEOUT", 15*time.Second),
		FailureThreshold:  getEnvAsInt("RESILIENCE_FAILURE_THRESHOLD", 5),
		CircuitResetAfter: getEnvAsDuration("RESILIENCE_CIRCUIT_RESET_AFTER", 60*time.Second),
		QueueMaxReplays:   getEnvAsInt("RESILIENCE_QUEUE_MAX_REPLAYS", 3),
		ConnectivityPoll:  getEnvAsDuration("RESILIENCE_CONNECTIVITY_POLL", 10*time.Second),
		ConnectivityURL:   getEnv("RESILIENCE_CONNECTIVITY_URL", ""),
	}
}
