package config

import (
	"time"
)

type StorageConfig struct {
	Driver string `yaml:"driver"` // badger, redis, memory

	BadgerPath       string        `yaml:"badger_path"`
	BadgerSyncWrites bool          `yaml:"badger_sync_writes"`
	BadgerGCInterval time.Duration `yaml:"badger_gc_interval"`

	RedisHost         string        `yaml:"redis_host"`
	RedisPort         int           `yaml:"redis_port"`
	RedisPassword     string        `yaml:"redis_password"`
	RedisDB           int           `yaml:"redis_db"`
	RedisPoolSize     int           `yaml:"redis_pool_size"`
	RedisMinIdleConns int           `yaml:"redis_min_idle_conns"`
	RedisDialTimeout  time.Duration `yaml:"redis_dial_timeout"`
	RedisReadTimeout  time.Duration `yaml:"redis_read_timeout"`
	RedisWriteTimeout time.Duration `yaml:"redis_write_timeout"`
}

func loadStorageConfig() *StorageConfig {
	return &StorageConfig{
		Driver: getEnv("STORAGE_DRIVER", "badger"),

		BadgerPath:       getEnv("STORAGE_BADGER_PATH", "./data/ridesync"),
		BadgerSyncWrites: getEnvAsBool("STORAGE_BADGER_SYNC_WRITES", true),
		BadgerGCInterval: getEnvAsDuration("STORAGE_BADGER_GC_INTERVAL", 5*time.Minute),

		RedisHost:         getEnv("REDIS_HOST", "localhost"),
		RedisPort:         getEnvAsInt("REDIS_PORT", 6379),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvAsInt("REDIS_DB", 0),
		RedisPoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
		RedisMinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 3),
		RedisDialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}
