package tokenauth

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/voyz/tokenauth/jwt"
)

// Config is the full engine configuration. Start from DefaultConfig and set
// JWT.Secret; every other field has a usable default.
type Config struct {
	JWT     JWTConfig
	Session SessionConfig
	Sweep   SweepConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the token codec.
type JWTConfig struct {
	// Secret is the base64 shared secret. It must decode to at least 32 bytes.
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Leeway     time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures session record handling.
type SessionConfig struct {
	// RedisPrefix namespaces keys when the engine builds its own RedisStore.
	RedisPrefix string
	// StrictRotation makes every refresh token usable for exactly one
	// rotation per access token: after a refresh, the same refresh token is
	// rejected until it is re-bound by a new login.
	StrictRotation bool
}

/*
====================================
SWEEP CONFIG
====================================
*/

// SweepConfig configures the background expiry sweep.
type SweepConfig struct {
	Enabled  bool
	Interval time.Duration
	// Timeout bounds a single sweep run.
	Timeout time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig configures in-process counters and histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration. JWT.Secret is left
// empty and must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "tokenauth",
		},
		Session: SessionConfig{
			RedisPrefix: "tas",
		},
		Sweep: SweepConfig{
			Enabled:  true,
			Interval: time.Hour,
			Timeout:  time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error, if any.
func (c *Config) Validate() error {
	// JWT
	if _, err := jwt.NewSigningKey(c.JWT.Secret); err != nil {
		return fmt.Errorf("JWT Secret: %w", err)
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("JWT AccessTTL must be shorter than RefreshTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if strings.ContainsAny(c.Session.RedisPrefix, " \t\r\n") {
		return errors.New("Session RedisPrefix must not contain whitespace")
	}

	// Sweep
	if c.Sweep.Enabled {
		if c.Sweep.Interval < time.Second {
			return errors.New("Sweep Interval must be >= 1s when Sweep is enabled")
		}
		if c.Sweep.Timeout < 0 {
			return errors.New("Sweep Timeout must be >= 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintSeverity ranks lint warnings.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "info"
	case LintWarn:
		return "warn"
	case LintHigh:
		return "high"
	default:
		return "unknown"
	}
}

// LintWarning is a valid but questionable setting.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the set of warnings produced by Config.Lint.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// AsError joins every warning at or above min into one error, or returns nil.
func (r LintResult) AsError(min LintSeverity) error {
	var errs []error
	for _, w := range r {
		if w.Severity >= min {
			errs = append(errs, fmt.Errorf("%s (%s): %s", w.Code, w.Severity, w.Message))
		}
	}
	return errors.Join(errs...)
}

// Lint flags settings that pass Validate but weaken the session model.
func (c *Config) Lint() LintResult {
	var out LintResult
	add := func(code string, sev LintSeverity, msg string) {
		out = append(out, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.JWT.AccessTTL > 30*time.Minute {
		add("access_ttl_long", LintWarn, "access tokens stay valid after logout until they expire; keep AccessTTL short")
	}
	if c.JWT.RefreshTTL > 30*24*time.Hour {
		add("refresh_ttl_long", LintWarn, "RefreshTTL above 30 days")
	}
	if c.JWT.Leeway > time.Minute {
		add("leeway_large", LintWarn, "JWT Leeway above 1m extends every token lifetime")
	}
	if c.JWT.Issuer == "" {
		add("issuer_empty", LintInfo, "tokens are issued without an iss claim")
	}
	if !c.Sweep.Enabled {
		add("sweep_disabled", LintInfo, "expired session records are only removed lazily on refresh")
	} else if c.Sweep.Interval > c.JWT.RefreshTTL {
		add("sweep_interval_long", LintInfo, "Sweep Interval exceeds RefreshTTL")
	}
	if c.Audit.Enabled && c.Audit.DropIfFull && c.Audit.BufferSize < 64 {
		add("audit_buffer_small", LintWarn, "small audit buffer with DropIfFull loses events under load")
	}

	return out
}

/*
====================================
ENVIRONMENT
====================================
*/

// LoadConfigFromEnv returns DefaultConfig overlaid with <prefix>_* variables:
// JWT_SECRET, ACCESS_TTL, REFRESH_TTL, ISSUER, LEEWAY, REDIS_PREFIX,
// STRICT_ROTATION, SWEEP_ENABLED, SWEEP_INTERVAL, AUDIT_ENABLED,
// AUDIT_BUFFER_SIZE, METRICS_ENABLED, LATENCY_HISTOGRAMS. Unset or empty
// variables keep the default. The result is not validated.
func LoadConfigFromEnv(prefix string) (Config, error) {
	cfg := defaultConfig()
	env := envReader{prefix: strings.TrimSuffix(prefix, "_")}

	cfg.JWT.Secret = env.str("JWT_SECRET", cfg.JWT.Secret)
	cfg.JWT.AccessTTL = env.duration("ACCESS_TTL", cfg.JWT.AccessTTL)
	cfg.JWT.RefreshTTL = env.duration("REFRESH_TTL", cfg.JWT.RefreshTTL)
	cfg.JWT.Issuer = env.str("ISSUER", cfg.JWT.Issuer)
	cfg.JWT.Leeway = env.duration("LEEWAY", cfg.JWT.Leeway)
	cfg.Session.RedisPrefix = env.str("REDIS_PREFIX", cfg.Session.RedisPrefix)
	cfg.Session.StrictRotation = env.boolean("STRICT_ROTATION", cfg.Session.StrictRotation)
	cfg.Sweep.Enabled = env.boolean("SWEEP_ENABLED", cfg.Sweep.Enabled)
	cfg.Sweep.Interval = env.duration("SWEEP_INTERVAL", cfg.Sweep.Interval)
	cfg.Audit.Enabled = env.boolean("AUDIT_ENABLED", cfg.Audit.Enabled)
	cfg.Audit.BufferSize = env.integer("AUDIT_BUFFER_SIZE", cfg.Audit.BufferSize)
	cfg.Metrics.Enabled = env.boolean("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.EnableLatencyHistograms = env.boolean("LATENCY_HISTOGRAMS", cfg.Metrics.EnableLatencyHistograms)

	if len(env.errs) > 0 {
		return Config{}, errors.Join(env.errs...)
	}
	return cfg, nil
}

type envReader struct {
	prefix string
	errs   []error
}

func (r *envReader) key(name string) string {
	if r.prefix == "" {
		return name
	}
	return r.prefix + "_" + name
}

func (r *envReader) lookup(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(r.key(name)))
	return v, v != ""
}

func (r *envReader) str(name, def string) string {
	if v, ok := r.lookup(name); ok {
		return v
	}
	return def
}

func (r *envReader) duration(name string, def time.Duration) time.Duration {
	v, ok := r.lookup(name)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", r.key(name), err))
		return def
	}
	return d
}

func (r *envReader) boolean(name string, def bool) bool {
	v, ok := r.lookup(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", r.key(name), err))
		return def
	}
	return b
}

func (r *envReader) integer(name string, def int) int {
	v, ok := r.lookup(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", r.key(name), err))
		return def
	}
	return n
}
