package phoneverify

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrEthical07/phoneverify/codestore"
	"github.com/MrEthical07/phoneverify/internal/limiters"
	"github.com/MrEthical07/phoneverify/internal/stores"
	"github.com/MrEthical07/phoneverify/phonenumber"
	"github.com/MrEthical07/phoneverify/proof"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder builds exactly one Engine.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	codeStore codestore.Store
	accounts  AccountStore
	transport Transport
	clock     Clock
	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client backing the issuance limiter and, unless
// WithCodeStore is used, the code store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCodeStore replaces the Redis code store, e.g. with pgstore.
func (b *Builder) WithCodeStore(store codestore.Store) *Builder {
	b.codeStore = store
	return b
}

func (b *Builder) WithAccountStore(accounts AccountStore) *Builder {
	b.accounts = accounts
	return b
}

func (b *Builder) WithTransport(t Transport) *Builder {
	b.transport = t
	return b
}

// WithClock overrides the wall clock. Every expiry and window decision reads it.
func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		if b.codeStore == nil {
			return nil, errors.New("redis client or code store required")
		}
		if cfg.Abuse.Enabled {
			return nil, errors.New("Abuse limits require redis client")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.transport == nil {
		return nil, errors.New("transport required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}

	// -------- CANONICALIZER --------
	canon, err := phonenumber.New(phonenumber.Options{
		DefaultRegion: cfg.Phone.DefaultRegion,
		Locale:        cfg.Phone.Locale,
		Format:        cfg.Phone.Format,
		Strict:        cfg.Phone.StrictValidation,
		AllowPattern:  cfg.Phone.AllowPattern,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	testNumbers := make(map[string]struct{}, len(cfg.Verification.TestNumbers))
	for _, raw := range cfg.Verification.TestNumbers {
		n, err := canon.Canonicalize(raw)
		if err != nil {
			return nil, fmt.Errorf("Verification TestNumbers entry %q: %w", raw, err)
		}
		testNumbers[n] = struct{}{}
	}

	// -------- CODE STORE --------
	store := b.codeStore
	if store == nil {
		store = stores.NewVerificationCodeStore(b.redis, cfg.Store.RedisPrefix, cfg.Store.Retention)
	}

	engine := &Engine{
		config:        cloneConfig(cfg),
		canonicalizer: canon,
		store:         store,
		accounts:      b.accounts,
		transport:     b.transport,
		clock:         clock,
		logger:        logger,
		testNumbers:   testNumbers,
	}

	if cfg.Abuse.Enabled {
		engine.limiter = limiters.NewIssuanceLimiter(b.redis, limiters.IssuanceConfig{
			Window:    cfg.Abuse.Window,
			TargetMax: cfg.Abuse.TargetHourMax,
			SourceMax: cfg.Abuse.SourceHourMax,
			Prefix:    cfg.Abuse.RedisPrefix,
		})
	}

	if cfg.Proof.Enabled {
		pm, err := proof.NewManager(proof.Config{
			TTL:           cfg.Proof.TTL,
			SigningMethod: proof.SigningMethod(strings.ToLower(cfg.Proof.SigningMethod)),
			PrivateKey:    cloneBytes(cfg.Proof.PrivateKey),
			PublicKey:     cloneBytes(cfg.Proof.PublicKey),
			Issuer:        cfg.Proof.Issuer,
			Audience:      cfg.Proof.Audience,
			KeyID:         cfg.Proof.KeyID,
			Leeway:        cfg.Proof.Leeway,
			Now:           clock.Now,
		})
		if err != nil {
			return nil, err
		}
		engine.proofs = pm
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, logger)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
