package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are treated as fatal errors with "did you
// mean?" suggestions — silently ignoring a typo in a config file leads to
// hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values. This supports the
// zero-config first-run experience: with the MINIO_*/DIFY_* environment
// set, the service runs without any config file at all.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags. The
// precedence order ensures CLI flags always win, matching user
// expectations for one-off overrides without editing the config file.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	// 1. Resolve config path: CLI > (env-aware) default.
	cfgPath := DefaultConfigPath()
	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (returns defaults if no file exists).
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	// 3. Apply env overrides.
	env.apply(cfg)

	// 4. Apply CLI overrides (pointer fields: nil = not specified).
	if cli.Addr != nil {
		cfg.Server.Addr = *cli.Addr
	}
	if cli.LibraryDir != nil {
		cfg.Library.Dir = *cli.LibraryDir
	}
	if cli.LogLevel != nil {
		cfg.Log.Level = *cli.LogLevel
	}
	if cli.LogFile != nil {
		cfg.Log.File = *cli.LogFile
	}

	// 5. Fill derived defaults and normalize.
	finalize(cfg)

	// 6. Validate the final resolved configuration.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// finalize fills location defaults that depend on the platform and
// normalizes object key prefixes. Prefixes must end in "/" so derived
// object keys never concatenate into a different namespace.
func finalize(cfg *Config) {
	if strings.TrimSpace(cfg.Library.Dir) == "" {
		cfg.Library.Dir = DefaultLibraryDir()
	}
	if strings.TrimSpace(cfg.Library.StateDir) == "" {
		cfg.Library.StateDir = DefaultConfigDir()
	}
	cfg.Library.Dir = expandHome(cfg.Library.Dir)
	cfg.Library.StateDir = expandHome(cfg.Library.StateDir)

	if cfg.Minio.BucketPrefix = strings.TrimSpace(cfg.Minio.BucketPrefix); cfg.Minio.BucketPrefix == "" {
		cfg.Minio.BucketPrefix = defaultBucketPrefix
	}
	cfg.Minio.ObjectPrefix = normalizePrefix(cfg.Minio.ObjectPrefix, defaultObjectPrefix)
	cfg.Minio.TombstonePrefix = normalizePrefix(cfg.Minio.TombstonePrefix, defaultTombstonePrefix)
}

func normalizePrefix(raw, fallback string) string {
	p := strings.TrimSpace(raw)
	if p == "" {
		p = fallback
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}

	return p
}

// expandHome resolves a leading "~/" against the user home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil && home != "" {
			return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
		}
	}

	return path
}
