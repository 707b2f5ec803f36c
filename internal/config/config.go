// Package config loads service configuration from SATTOSAT_* environment
// variables and an optional sattosat.yaml, environment first.
//
// Keys are dotted (http.addr) in the file and upper snake case with the
// prefix in the environment (SATTOSAT_HTTP_ADDR). A value that does not
// parse is logged and replaced by its default.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kvsankar/sattosat/internal/api"
	"github.com/kvsankar/sattosat/internal/auth"
	"github.com/kvsankar/sattosat/internal/cache"
	"github.com/kvsankar/sattosat/internal/conjunction"
	"github.com/kvsankar/sattosat/internal/propagation"
	"github.com/kvsankar/sattosat/internal/stream"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "SATTOSAT"

// Config is the full service configuration.
type Config struct {
	LogLevel slog.Level
	Backend  string // SGP4 implementation, see propagation.NewFactory.

	API api.Config

	CacheEnabled bool
	Cache        cache.Config

	StreamEnabled bool
	Stream        stream.Config

	Catalog Catalog

	File string // Config file read, if any.
}

// Catalog selects where element sets are seeded from.
type Catalog struct {
	Bundled bool   // Use the element sets embedded in the binary.
	SeedDir string // Directory of <norad_id>.tle files, consulted after the bundle.
}

// Load reads the configuration. Only a structurally unusable setup (auth
// enabled without a token, an unreadable config file) is an error.
func Load(logger *slog.Logger) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("sattosat")
	v.SetConfigType("yaml")
	if dir := os.Getenv(EnvPrefix + "_CONFIG_DIR"); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		logger.Info("config file loaded", "path", v.ConfigFileUsed())
	}

	r := reader{v: v, logger: logger}
	var cfg Config
	cfg.File = v.ConfigFileUsed()

	cfg.LogLevel = slog.LevelInfo
	if s := v.GetString("log.level"); s != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(s)); err != nil {
			r.invalid("log.level", s, "info")
			cfg.LogLevel = slog.LevelInfo
		}
	}

	cfg.Backend = propagation.BackendGoSatellite
	if s := v.GetString("propagation.backend"); s != "" {
		if _, err := propagation.NewFactory(s); err != nil {
			r.invalid("propagation.backend", s, cfg.Backend)
		} else {
			cfg.Backend = s
		}
	}

	// HTTP and auth.
	cfg.API.Addr = r.str("http.addr", ":8080")
	trustProxy := r.boolean("http.trust_proxy", false)

	authCfg, err := loadAuth(r)
	if err != nil {
		return Config{}, err
	}
	cfg.API.Auth = authCfg

	// Search defaults and request limits.
	cfg.API.Defaults = api.SearchDefaults{
		Step:       r.seconds("search.step_seconds", conjunction.DefaultStep),
		MaxResults: r.integer("search.max_results", 0, 0),
		Days:       r.float("search.days", 3),
		Samples:    r.integer("search.samples", 500, 2),
		Workers:    r.integer("search.workers", 0, 0),
	}
	if s := v.GetString("search.gap_policy"); s != "" {
		g, err := conjunction.ParseGapPolicy(s)
		if err != nil {
			r.invalid("search.gap_policy", s, conjunction.GapAsInfinity.String())
		}
		cfg.API.Defaults.GapPolicy = g
	}
	cfg.API.Limits = api.Limits{
		MaxWindow:    time.Duration(r.float("limits.max_window_days", 14) * float64(24*time.Hour)),
		MinStep:      r.seconds("limits.min_step_seconds", time.Second),
		MaxScanSteps: r.integer("limits.max_scan_steps", 100_000, 1),
		MaxSamples:   r.integer("limits.max_samples", 5000, 2),
		MaxBatch:     r.integer("limits.max_batch", 16, 1),
		MaxBodyBytes: int64(r.integer("limits.max_body_bytes", 1<<20, 1)),
	}

	// Result cache.
	cfg.CacheEnabled = r.boolean("cache.enabled", true)
	cfg.Cache = cache.Config{
		TTL:           r.seconds("cache.ttl_seconds", 10*time.Minute),
		SweepInterval: r.seconds("cache.sweep_interval_seconds", time.Minute),
		MaxEntries:    r.integer("cache.max_entries", 1000, 0),
	}

	// Distance stream.
	cfg.StreamEnabled = r.boolean("stream.enabled", true)
	cfg.Stream = stream.Config{
		MaxConcurrentPerIP: r.integer("stream.max_concurrent", 10, 1),
		MaxTotal:           r.integer("stream.max_total", 1000, 1),
		KeepaliveInterval:  r.seconds("stream.keepalive_interval", 30*time.Second),
		DefaultStep:        r.seconds("stream.default_step", time.Second),
		MinStep:            r.seconds("stream.min_step", time.Second),
		MaxStep:            r.seconds("stream.max_step", time.Minute),
		TrustProxy:         trustProxy,
	}

	cfg.Catalog = Catalog{
		Bundled: r.boolean("catalog.bundled", true),
		SeedDir: r.str("catalog.seed_dir", ""),
	}
	if !cfg.Catalog.Bundled && cfg.Catalog.SeedDir == "" {
		logger.Warn("no element-set source configured, only uploaded satellites will be searchable")
	}

	return cfg, nil
}

func loadAuth(r reader) (auth.Config, error) {
	cfg := auth.Config{Enabled: r.boolean("auth.enabled", false)}
	if !cfg.Enabled {
		return cfg, nil
	}
	cfg.Token = r.v.GetString("auth.token")
	if cfg.Token == "" {
		return cfg, errors.New(EnvPrefix + "_AUTH_TOKEN is required when auth is enabled")
	}
	r.logger.Info("auth enabled")
	return cfg, nil
}

// reader wraps typed lookups that fall back to a default with a warning.
type reader struct {
	v      *viper.Viper
	logger *slog.Logger
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func (r reader) invalid(key, value string, def any) {
	r.logger.Warn("invalid config value, using default",
		"key", key,
		"env", envName(key),
		"value", value,
		"default", def,
	)
}

func (r reader) str(key, def string) string {
	if s := r.v.GetString(key); s != "" {
		return s
	}
	return def
}

func (r reader) boolean(key string, def bool) bool {
	s := r.v.GetString(key)
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		r.invalid(key, s, def)
		return def
	}
	return b
}

// integer parses key as an integer no smaller than min.
func (r reader) integer(key string, def, min int) int {
	s := r.v.GetString(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min {
		r.invalid(key, s, def)
		return def
	}
	return n
}

// float parses key as a positive number.
func (r reader) float(key string, def float64) float64 {
	s := r.v.GetString(key)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !(f > 0) {
		r.invalid(key, s, def)
		return def
	}
	return f
}

// seconds parses key as a positive number of seconds. A Go duration string
// ("90s", "2m") is accepted too.
func (r reader) seconds(key string, def time.Duration) time.Duration {
	s := r.v.GetString(key)
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return time.Duration(f * float64(time.Second))
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	r.invalid(key, s, def)
	return def
}
