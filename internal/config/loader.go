package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if SCRIM_CONFIG is set
//  3. env (prefix SCRIM_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv("SCRIM_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: SCRIM_SEATS, SCRIM_SAVE_EVERY, ...
	// Underscores are preserved to match the koanf tags on the struct.
	envProvider := env.Provider("SCRIM_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "scrim_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.StoreBackend {
	case "memory", "couchbase":
	default:
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, cfg.StoreBackend)
	}
	switch cfg.SeedPolicy {
	case "latest", "anchor":
	default:
		return fmt.Errorf("%w: unknown seed_policy %q", ErrInvalidConfig, cfg.SeedPolicy)
	}
	switch cfg.Codec {
	case "gob", "zstd":
	default:
		return fmt.Errorf("%w: unknown codec %q", ErrInvalidConfig, cfg.Codec)
	}
	if cfg.Seats < 1 {
		return fmt.Errorf("%w: seats must be positive", ErrInvalidConfig)
	}
	if cfg.CurrentProb <= 0 || cfg.CurrentProb > 1 {
		return fmt.Errorf("%w: current_prob must be in (0, 1]", ErrInvalidConfig)
	}
	if cfg.SaveEvery < 1 {
		return fmt.Errorf("%w: save_every must be positive", ErrInvalidConfig)
	}
	return nil
}
