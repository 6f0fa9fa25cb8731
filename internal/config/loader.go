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
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if ROLLOFF_CONFIG is set
//  3. env (prefix ROLLOFF_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("ROLLOFF_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: ROLLOFF_ADDR, ROLLOFF_DIE_FACES, ...
	// Map env keys like ROLLOFF_DIE_FACES -> die_faces (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("ROLLOFF_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "rolloff_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DieFaces < 2:
		return fmt.Errorf("%w: die_faces must be at least 2", ErrInvalidConfig)
	case c.SolicitTimeoutMS <= 0:
		return fmt.Errorf("%w: solicit_timeout_ms must be positive", ErrInvalidConfig)
	case c.SettleDelayMS < 0:
		return fmt.Errorf("%w: settle_delay_ms must not be negative", ErrInvalidConfig)
	case c.RankEpsilon <= 0 || c.RankEpsilon >= 1:
		return fmt.Errorf("%w: rank_epsilon must be in (0, 1)", ErrInvalidConfig)
	}
	return nil
}
