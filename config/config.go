package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix selects which environment variables participate in loading.
// WEBLIB_HTTP__MAXATTEMPTS=5 maps to http.maxattempts.
const envPrefix = "WEBLIB_"

var validate = validator.New()

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. YAML configuration file at path (optional; empty path skips it)
// 3. Default values (lowest priority)
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := loadEnv(k); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return unmarshal(k)
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":    "weblib-app",
		"app.version": "v1.0.0",
		"app.env":     EnvDevelopment,

		"log.level":  "info",
		"log.pretty": false,
		"log.buffer": 1024,

		"http.timeout":           15 * time.Second,
		"http.maxattempts":       3,
		"http.backoffceiling":    30 * time.Second,
		"http.maxretryafter":     time.Duration(0),
		"http.maxconcurrent":     2,
		"http.requestspersecond": 0.0,
		"http.burst":             0,
		"http.retrymalformed":    false,
		"http.logpayloads":       false,
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}

func loadEnv(k *koanf.Koanf) error {
	return k.Load(envprovider.Provider(".", envprovider.Opt{
		Prefix: envPrefix,
		TransformFunc: func(s, v string) (string, any) {
			// WEBLIB_HTTP__MAXATTEMPTS -> http.maxattempts
			s = strings.TrimPrefix(s, envPrefix)
			return strings.ReplaceAll(strings.ToLower(s), "__", "."), v
		},
	}), nil)
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
