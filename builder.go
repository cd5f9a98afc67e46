package tokenauth

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/voyz/tokenauth/internal/audit"
	"github.com/voyz/tokenauth/jwt"
	"github.com/voyz/tokenauth/session"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config
	store  session.Store
	redis  redis.UniversalClient

	logger    zerolog.Logger
	now       func() time.Time
	newID     func() string
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig and a no-op logger.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the session store. It takes precedence over WithRedis.
func (b *Builder) WithStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithRedis makes Build create a session.RedisStore on client using
// Config.Session.RedisPrefix.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the logger used for warnings. The default discards output.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock injects the time source used for token timestamps and session
// expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithAccessTokenIDGenerator overrides the uuid v4 access-token id source.
func (b *Builder) WithAccessTokenIDGenerator(newID func() string) *Builder {
	b.newID = newID
	return b
}

// WithAuditSink sets the sink audit events are dispatched to. Audit must
// also be enabled in the configuration.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate and refresh latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, derives the signing key and returns a
// ready Engine. The sweeper is not started; call Engine.StartSweeper.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- SESSION STORE --------
	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("session store or redis client required")
		}
		store = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	newID := b.newID
	if newID == nil {
		newID = uuid.NewString
	}

	// -------- TOKEN CODEC --------
	key, err := jwt.NewSigningKey(cfg.JWT.Secret)
	if err != nil {
		return nil, err
	}
	jm, err := jwt.NewManager(jwt.Config{
		Key:        key,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
		Issuer:     cfg.JWT.Issuer,
		Leeway:     cfg.JWT.Leeway,
		Now:        now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cloneConfig(cfg),
		sessionStore: store,
		jwtManager:   jm,
		logger:       b.logger,
		now:          now,
		newID:        newID,
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	for _, w := range cfg.Lint() {
		if w.Severity >= LintWarn {
			b.logger.Warn().Str("code", w.Code).Msg(w.Message)
		}
	}

	b.built = true

	return engine, nil
}
