// Package config provides environment-variable configuration loading for
// isocore binaries, generalizing the teacher's infrastructure/config
// env-loading pattern (minus the MarbleRun/TEE secret backend, which has
// no analogue outside a confidential-computing deployment) down to the
// knobs a log store actually needs: frame size, compression level, cache
// size, covering-tree width, and log level/format.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every tunable knob isocore reads from the environment.
type Config struct {
	FrameSize     int
	ZstdLevel     int
	CacheSize     int
	LogLevel      string
	LogFormat     string
	CoveringWidth uint64
}

// Default returns the configuration isocore uses when no environment
// overrides are set.
func Default() Config {
	return Config{
		FrameSize:     1024 * 1024,
		ZstdLevel:     3,
		CacheSize:     4096,
		LogLevel:      "info",
		LogFormat:     "text",
		CoveringWidth: 8,
	}
}

// Load reads .env (if present) and then ISOCORE_* environment variables
// over Default(), returning the resolved configuration. It never fails:
// a missing or malformed value simply keeps its default.
func Load() Config {
	_ = LoadDotenv(".env")
	return LoadEnv(Default())
}

// LoadEnv reads ISOCORE_* environment variables over the given base
// configuration, keeping the base value for anything unset or
// unparseable.
func LoadEnv(base Config) Config {
	cfg := base
	cfg.FrameSize = envInt("ISOCORE_FRAME_SIZE", cfg.FrameSize)
	cfg.ZstdLevel = envInt("ISOCORE_ZSTD_LEVEL", cfg.ZstdLevel)
	cfg.CacheSize = envInt("ISOCORE_CACHE_SIZE", cfg.CacheSize)
	cfg.LogLevel = envString("ISOCORE_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envString("ISOCORE_LOG_FORMAT", cfg.LogFormat)
	cfg.CoveringWidth = envUint64("ISOCORE_COVERING_WIDTH", cfg.CoveringWidth)
	return cfg
}

// LoadDotenv loads a .env file at path into the process environment if
// present; a missing file is not an error.
func LoadDotenv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Validate reports whether the configuration is usable, mirroring the
// fail-fast checks a storage engine needs before it opens any files.
func (c Config) Validate() error {
	if c.FrameSize <= 0 {
		return invalidConfig("ISOCORE_FRAME_SIZE must be positive")
	}
	if c.ZstdLevel < 1 || c.ZstdLevel > 22 {
		return invalidConfig("ISOCORE_ZSTD_LEVEL must be between 1 and 22")
	}
	if c.CacheSize < 0 {
		return invalidConfig("ISOCORE_CACHE_SIZE must not be negative")
	}
	if c.CoveringWidth <= 1 || c.CoveringWidth&(c.CoveringWidth-1) != 0 {
		return invalidConfig("ISOCORE_COVERING_WIDTH must be a power of two greater than 1")
	}
	return nil
}

type configError string

func (e configError) Error() string { return string(e) }

func invalidConfig(msg string) error { return configError(msg) }

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func envUint64(key string, def uint64) uint64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
