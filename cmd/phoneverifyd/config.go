package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	phoneverify "github.com/MrEthical07/phoneverify"
	"github.com/MrEthical07/phoneverify/transport/twilio"
)

type Config struct {
	HTTP     HTTPConfig
	Log      LogConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Twilio   twilio.Config
	Engine   EngineConfig
	Proof    ProofConfig
}

type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR" env-default:":8080"`
	TrustForwarded  bool          `env:"HTTP_TRUST_FORWARDED" env-default:"false"`
	RealmHeader     string        `env:"HTTP_REALM_HEADER" env-default:"X-Realm"`
	DefaultRealm    string        `env:"DEFAULT_REALM"`
	RequestTimeout  time.Duration `env:"HTTP_REQUEST_TIMEOUT" env-default:"15s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type LogConfig struct {
	Format string `env:"LOG_FORMAT" env-default:"json"`
	Level  string `env:"LOG_LEVEL" env-default:"info"`
}

type RedisConfig struct {
	Addrs    []string `env:"REDIS_ADDRS" env-separator:"," env-default:"localhost:6379"`
	Password string   `env:"REDIS_PASSWORD"`
	DB       int      `env:"REDIS_DB" env-default:"0"`
}

// PostgresConfig enables the Postgres code store and account lookups when
// DATABASE_URL is set.
type PostgresConfig struct {
	URL           string        `env:"DATABASE_URL"`
	Migrate       bool          `env:"DATABASE_MIGRATE" env-default:"true"`
	PurgeInterval time.Duration `env:"DATABASE_PURGE_INTERVAL" env-default:"10m"`
}

type EngineConfig struct {
	TTL                 time.Duration `env:"CODE_TTL" env-default:"60s"`
	LoginTTL            time.Duration `env:"CODE_TTL_AUTH"`
	CodeDigits          int           `env:"CODE_DIGITS" env-default:"6"`
	MaxAttempts         int           `env:"CODE_MAX_ATTEMPTS" env-default:"0"`
	TestNumbers         []string      `env:"TEST_NUMBERS" env-separator:","`
	TestCode            string        `env:"TEST_CODE" env-default:"1234"`
	AbuseProtection     bool          `env:"ABUSE_PROTECTION" env-default:"true"`
	TargetHourMax       int           `env:"ABUSE_TARGET_HOUR_MAX" env-default:"3"`
	SourceHourMax       int           `env:"ABUSE_SOURCE_HOUR_MAX" env-default:"10"`
	DefaultRegion       string        `env:"PHONE_DEFAULT_REGION"`
	Locale              string        `env:"PHONE_LOCALE"`
	Format              string        `env:"PHONE_FORMAT" env-default:"E164"`
	StrictValidation    bool          `env:"PHONE_STRICT_VALIDATION" env-default:"true"`
	AllowPattern        string        `env:"PHONE_ALLOW_PATTERN"`
	CompatibilityMode   bool          `env:"PHONE_COMPATIBILITY_MODE" env-default:"false"`
	AllowDuplicatePhone bool          `env:"ALLOW_DUPLICATE_PHONE" env-default:"false"`
	SenderName          string        `env:"SENDER_NAME"`
	MessageTemplate     string        `env:"MESSAGE_TEMPLATE"`
	SendTimeout         time.Duration `env:"SEND_TIMEOUT" env-default:"10s"`
	Retention           time.Duration `env:"CODE_RETENTION" env-default:"1h"`
	AuditLog            bool          `env:"AUDIT_LOG" env-default:"true"`
	LatencyHistograms   bool          `env:"METRICS_LATENCY_HISTOGRAMS" env-default:"true"`
}

type ProofConfig struct {
	Enabled        bool          `env:"PROOF_ENABLED" env-default:"false"`
	SigningMethod  string        `env:"PROOF_SIGNING_METHOD" env-default:"ed25519"`
	PrivateKeyFile string        `env:"PROOF_PRIVATE_KEY_FILE"`
	PublicKeyFile  string        `env:"PROOF_PUBLIC_KEY_FILE"`
	Secret         string        `env:"PROOF_SECRET"`
	Issuer         string        `env:"PROOF_ISSUER" env-default:"phoneverify"`
	Audience       string        `env:"PROOF_AUDIENCE"`
	KeyID          string        `env:"PROOF_KEY_ID"`
	TTL            time.Duration `env:"PROOF_TTL" env-default:"10m"`
}

// loadConfig reads an optional .env file, then the environment. Real
// environment variables win over .env entries.
func loadConfig() (Config, error) {
	_ = godotenv.Load(".env")

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

func (c Config) engineConfig() (phoneverify.Config, error) {
	e := c.Engine
	cfg := phoneverify.DefaultConfig()

	cfg.Verification.TTL = e.TTL
	if e.LoginTTL > 0 {
		cfg.Verification.PurposeTTL = map[phoneverify.Purpose]time.Duration{phoneverify.PurposeAuth: e.LoginTTL}
	}
	cfg.Verification.CodeDigits = e.CodeDigits
	cfg.Verification.MaxAttempts = e.MaxAttempts
	cfg.Verification.TestNumbers = e.TestNumbers
	cfg.Verification.TestCode = e.TestCode

	cfg.Abuse.Enabled = e.AbuseProtection
	cfg.Abuse.TargetHourMax = e.TargetHourMax
	cfg.Abuse.SourceHourMax = e.SourceHourMax

	cfg.Phone.DefaultRegion = e.DefaultRegion
	cfg.Phone.Locale = e.Locale
	cfg.Phone.Format = e.Format
	cfg.Phone.StrictValidation = e.StrictValidation
	cfg.Phone.AllowPattern = e.AllowPattern
	cfg.Phone.CompatibilityMode = e.CompatibilityMode

	cfg.Account.AllowDuplicatePhone = e.AllowDuplicatePhone

	cfg.Delivery.SenderName = e.SenderName
	if e.MessageTemplate != "" {
		cfg.Delivery.MessageTemplate = e.MessageTemplate
	}
	cfg.Delivery.SendTimeout = e.SendTimeout

	cfg.Store.Retention = e.Retention
	cfg.Audit.Enabled = e.AuditLog
	cfg.Metrics.EnableLatencyHistograms = e.LatencyHistograms

	p := c.Proof
	cfg.Proof.Enabled = p.Enabled
	if p.Enabled {
		cfg.Proof.SigningMethod = p.SigningMethod
		cfg.Proof.Issuer = p.Issuer
		cfg.Proof.Audience = p.Audience
		cfg.Proof.KeyID = p.KeyID
		cfg.Proof.TTL = p.TTL

		switch {
		case p.Secret != "":
			cfg.Proof.PrivateKey = []byte(p.Secret)
		case p.PrivateKeyFile != "":
			key, err := os.ReadFile(p.PrivateKeyFile)
			if err != nil {
				return cfg, fmt.Errorf("read proof private key: %w", err)
			}
			cfg.Proof.PrivateKey = key
		}
		if p.PublicKeyFile != "" {
			key, err := os.ReadFile(p.PublicKeyFile)
			if err != nil {
				return cfg, fmt.Errorf("read proof public key: %w", err)
			}
			cfg.Proof.PublicKey = key
		}
	}

	return cfg, cfg.Validate()
}

func newLogger(c LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(c.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
