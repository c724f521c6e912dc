// Package config loads and validates library configuration from defaults,
// an optional YAML file, WEBLIB_-prefixed environment variables, and an
// optional encrypted remote document.
package config

import "time"

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config is the resolved configuration consumed by the rest of the library.
// It is read-only after Load returns.
type Config struct {
	App  AppConfig  `koanf:"app" validate:"required"`
	Log  LogConfig  `koanf:"log" validate:"required"`
	HTTP HTTPConfig `koanf:"http" validate:"required"`
}

// AppConfig identifies the running application.
type AppConfig struct {
	Name    string `koanf:"name" validate:"required"`
	Version string `koanf:"version" validate:"required"`
	Env     string `koanf:"env" validate:"required,oneof=development staging production"`
}

// LogConfig controls the logger package.
type LogConfig struct {
	Level  string `koanf:"level" validate:"required,oneof=trace debug info warn error fatal"`
	Pretty bool   `koanf:"pretty"`
	// Buffer is the async dispatcher queue size.
	Buffer int `koanf:"buffer" validate:"gte=0"`
}

// HTTPConfig carries the executor defaults handed to httpclient.Config.
type HTTPConfig struct {
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxAttempts       int           `koanf:"maxattempts" validate:"gte=1"`
	BackoffCeiling    time.Duration `koanf:"backoffceiling" validate:"gt=0"`
	MaxRetryAfter     time.Duration `koanf:"maxretryafter" validate:"gte=0"`
	MaxConcurrent     int64         `koanf:"maxconcurrent" validate:"gte=1"`
	RequestsPerSecond float64       `koanf:"requestspersecond" validate:"gte=0"`
	Burst             int           `koanf:"burst" validate:"gte=0"`
	RetryMalformed    bool          `koanf:"retrymalformed"`
	LogPayloads       bool          `koanf:"logpayloads"`
}
