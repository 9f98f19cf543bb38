package phoneverify

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/MrEthical07/phoneverify/phonenumber"
	"github.com/MrEthical07/phoneverify/proof"
)

// Config is the complete engine configuration. Build a Config from
// DefaultConfig, adjust it during initialization, and treat it as immutable
// once passed to the Builder.
type Config struct {
	Verification VerificationConfig
	Abuse        AbuseConfig
	Phone        PhoneConfig
	Account      AccountConfig
	Delivery     DeliveryConfig
	Proof        ProofConfig
	Store        StoreConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig controls code generation and lifetime.
type VerificationConfig struct {
	// TTL is the lifetime of a code unless PurposeTTL overrides it.
	TTL        time.Duration
	PurposeTTL map[Purpose]time.Duration
	CodeDigits int
	// MaxAttempts burns a code after that many wrong submissions. 0 means unlimited.
	MaxAttempts int
	// TestNumbers skip delivery and always receive TestCode.
	TestNumbers []string
	TestCode    string
}

/*
====================================
ABUSE CONFIG
====================================
*/

// AbuseConfig caps how often codes are issued.
type AbuseConfig struct {
	Enabled       bool
	Window        time.Duration
	TargetHourMax int
	SourceHourMax int
	RedisPrefix   string
}

/*
====================================
PHONE CONFIG
====================================
*/

// PhoneConfig controls canonicalization.
type PhoneConfig struct {
	// DefaultRegion is the ISO 3166 region assumed for numbers without a country code.
	DefaultRegion string
	// Locale is used when DefaultRegion is empty, e.g. "en-ZA".
	Locale           string
	Format           string // "E164" (default), "INTERNATIONAL", "NATIONAL", "RFC3966"
	StrictValidation bool
	AllowPattern     string
	// CompatibilityMode matches accounts stored under non-canonical spellings.
	CompatibilityMode bool
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig names the account attributes carrying the phone number.
type AccountConfig struct {
	PhoneAttribute      string
	VerifiedAttribute   string
	AllowDuplicatePhone bool
}

/*
====================================
DELIVERY CONFIG
====================================
*/

// DeliveryConfig controls outgoing messages. MessageTemplate placeholders are
// {sender}, {code}, {purpose} and {minutes}.
type DeliveryConfig struct {
	SendTimeout     time.Duration
	SenderName      string
	MessageTemplate string
}

// DefaultMessageTemplate is the message body used when none is configured.
const DefaultMessageTemplate = "{sender}: {code} is your {purpose} code. This code expires in {minutes} minutes."

/*
====================================
PROOF CONFIG
====================================
*/

// ProofConfig controls signed verification proofs returned by Verify.
type ProofConfig struct {
	Enabled       bool
	TTL           time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
	Leeway        time.Duration
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig controls the Redis code store.
type StoreConfig struct {
	RedisPrefix string
	// Retention keeps consumed and expired records around for replay detection.
	Retention time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls asynchronous audit dispatch.
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

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults: 60 second six digit codes,
// three issuances per number per hour, strict E.164 canonicalization.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Verification: VerificationConfig{
			TTL:        60 * time.Second,
			CodeDigits: 6,
			TestCode:   "1234",
		},
		Abuse: AbuseConfig{
			Enabled:       true,
			Window:        time.Hour,
			TargetHourMax: 3,
			SourceHourMax: 10,
			RedisPrefix:   "pvl",
		},
		Phone: PhoneConfig{
			Format:           "E164",
			StrictValidation: true,
		},
		Account: AccountConfig{
			PhoneAttribute:    "phoneNumber",
			VerifiedAttribute: "phoneNumberVerified",
		},
		Delivery: DeliveryConfig{
			SendTimeout:     10 * time.Second,
			MessageTemplate: DefaultMessageTemplate,
		},
		Proof: ProofConfig{
			TTL:           10 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "phoneverify",
		},
		Store: StoreConfig{
			RedisPrefix: "pvc",
			Retention:   time.Hour,
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Verification.PurposeTTL != nil {
		out.Verification.PurposeTTL = make(map[Purpose]time.Duration, len(cfg.Verification.PurposeTTL))
		for k, v := range cfg.Verification.PurposeTTL {
			out.Verification.PurposeTTL[k] = v
		}
	}
	out.Verification.TestNumbers = append([]string(nil), cfg.Verification.TestNumbers...)
	out.Proof.PrivateKey = cloneBytes(cfg.Proof.PrivateKey)
	out.Proof.PublicKey = cloneBytes(cfg.Proof.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ttlFor returns the code lifetime for purpose.
func (c *VerificationConfig) ttlFor(purpose Purpose) time.Duration {
	if ttl, ok := c.PurposeTTL[purpose]; ok && ttl > 0 {
		return ttl
	}
	return c.TTL
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// Verification
	if c.Verification.TTL <= 0 {
		return errors.New("Verification TTL must be > 0")
	}
	for purpose, ttl := range c.Verification.PurposeTTL {
		if !purpose.Valid() {
			return fmt.Errorf("Verification PurposeTTL has invalid purpose %q", purpose)
		}
		if ttl <= 0 {
			return fmt.Errorf("Verification PurposeTTL for %q must be > 0", purpose)
		}
	}
	if c.Verification.CodeDigits < 4 || c.Verification.CodeDigits > 10 {
		return errors.New("Verification CodeDigits must be between 4 and 10")
	}
	if c.Verification.MaxAttempts < 0 {
		return errors.New("Verification MaxAttempts must be >= 0")
	}
	if len(c.Verification.TestNumbers) > 0 && strings.TrimSpace(c.Verification.TestCode) == "" {
		return errors.New("Verification TestCode is required when TestNumbers are set")
	}

	// Abuse
	if c.Abuse.Enabled {
		if c.Abuse.Window <= 0 {
			return errors.New("Abuse Window must be > 0")
		}
		if c.Abuse.TargetHourMax <= 0 {
			return errors.New("Abuse TargetHourMax must be > 0")
		}
		if c.Abuse.SourceHourMax < 0 {
			return errors.New("Abuse SourceHourMax must be >= 0")
		}
		if c.Abuse.RedisPrefix == "" {
			return errors.New("Abuse RedisPrefix is required")
		}
	}

	// Phone. An unrecognized Format is not an error: the canonicalizer logs
	// it and uses E164.
	if f, ok := phonenumber.ParseFormat(c.Phone.Format); ok && f == phonenumber.FormatNational &&
		strings.TrimSpace(c.Phone.DefaultRegion) == "" && phonenumber.RegionFromLocale(c.Phone.Locale) == "" {
		return errors.New("Phone Format NATIONAL requires DefaultRegion or a Locale with a region")
	}
	if c.Phone.AllowPattern != "" {
		if _, err := regexp.Compile(c.Phone.AllowPattern); err != nil {
			return fmt.Errorf("Phone AllowPattern does not compile: %w", err)
		}
	}

	// Account
	if strings.TrimSpace(c.Account.PhoneAttribute) == "" {
		return errors.New("Account PhoneAttribute is required")
	}
	if strings.TrimSpace(c.Account.VerifiedAttribute) == "" {
		return errors.New("Account VerifiedAttribute is required")
	}

	// Delivery
	if c.Delivery.SendTimeout <= 0 {
		return errors.New("Delivery SendTimeout must be > 0")
	}
	if c.Delivery.MessageTemplate != "" && !strings.Contains(c.Delivery.MessageTemplate, "{code}") {
		return errors.New("Delivery MessageTemplate must contain {code}")
	}

	// Proof
	if c.Proof.Enabled {
		if c.Proof.TTL <= 0 {
			return errors.New("Proof TTL must be > 0")
		}
		if c.Proof.Leeway < 0 || c.Proof.Leeway > 2*time.Minute {
			return errors.New("Proof Leeway must be between 0 and 2m")
		}
		switch proof.SigningMethod(strings.ToLower(c.Proof.SigningMethod)) {
		case proof.MethodEd25519:
			if len(c.Proof.PrivateKey) == 0 {
				return errors.New("ed25519 requires PrivateKey")
			}
			if len(c.Proof.PublicKey) == 0 {
				return errors.New("ed25519 requires PublicKey")
			}
		case proof.MethodHS256:
			if len(c.Proof.PrivateKey) == 0 {
				return errors.New("hs256 requires PrivateKey")
			}
		default:
			return errors.New("unsupported Proof signing method")
		}
	}

	// Store
	if c.Store.RedisPrefix == "" {
		return errors.New("Store RedisPrefix is required")
	}
	if c.Store.Retention < 0 {
		return errors.New("Store Retention must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
