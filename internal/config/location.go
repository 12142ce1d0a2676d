package config

import (
	"time"
)

type LocationConfig struct {
	GoogleAPIKey   string        `yaml:"google_api_key"`
	CacheMaxAge    time.Duration `yaml:"cache_max_age"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	WatchInterval  time.Duration `yaml:"watch_interval"`
	WatchDistanceM float64       `yaml:"watch_distance_m"`
}

func loadLocationConfig() *LocationConfig {
	return &LocationConfig{
		GoogleAPIKey:   getEnv("GOOGLE_MAPS_API_KEY", ""),
		CacheMaxAge:    getEnvAsDuration("LOCATION_CACHE_MAX_AGE", 60*time.Second),
		AcquireTimeout: getEnvAsDuration("LOCATION_ACQUIRE_TIMEOUT", 10*time.Second),
		WatchInterval:  getEnvAsDuration("LOCATION_WATCH_INTERVAL", 5*time.Second),
		WatchDistanceM: getEnvAsFloat64("LOCATION_WATCH_DISTANCE_M", 10),
	}
}
