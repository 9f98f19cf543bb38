package phoneverify

import (
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Verification.TTL != 60*time.Second || cfg.Abuse.TargetHourMax != 3 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "zero ttl",
			mutate:    func(c *Config) { c.Verification.TTL = 0 },
			wantValid: false,
		},
		{
			name: "purpose ttl override",
			mutate: func(c *Config) {
				c.Verification.PurposeTTL = map[Purpose]time.Duration{PurposeReset: 5 * time.Minute}
			},
			wantValid: true,
		},
		{
			name: "purpose ttl bad purpose",
			mutate: func(c *Config) {
				c.Verification.PurposeTTL = map[Purpose]time.Duration{"Bad Purpose": time.Minute}
			},
			wantValid: false,
		},
		{
			name:      "code digits too short",
			mutate:    func(c *Config) { c.Verification.CodeDigits = 3 },
			wantValid: false,
		},
		{
			name:      "negative max attempts",
			mutate:    func(c *Config) { c.Verification.MaxAttempts = -1 },
			wantValid: false,
		},
		{
			name: "test numbers without code",
			mutate: func(c *Config) {
				c.Verification.TestNumbers = []string{"+27821234567"}
				c.Verification.TestCode = " "
			},
			wantValid: false,
		},
		{
			name:      "target max zero",
			mutate:    func(c *Config) { c.Abuse.TargetHourMax = 0 },
			wantValid: false,
		},
		{
			name: "abuse disabled ignores limits",
			mutate: func(c *Config) {
				c.Abuse.Enabled = false
				c.Abuse.TargetHourMax = 0
			},
			wantValid: true,
		},
		{
			name:      "unknown format falls back",
			mutate:    func(c *Config) { c.Phone.Format = "E.123" },
			wantValid: true,
		},
		{
			name:      "national without region",
			mutate:    func(c *Config) { c.Phone.Format = "national" },
			wantValid: false,
		},
		{
			name: "national with locale region",
			mutate: func(c *Config) {
				c.Phone.Format = "NATIONAL"
				c.Phone.Locale = "en-ZA"
			},
			wantValid: true,
		},
		{
			name:      "format case insensitive",
			mutate:    func(c *Config) { c.Phone.Format = "international" },
			wantValid: true,
		},
		{
			name:      "allow pattern broken",
			mutate:    func(c *Config) { c.Phone.AllowPattern = `\+27(` },
			wantValid: false,
		},
		{
			name:      "template without code",
			mutate:    func(c *Config) { c.Delivery.MessageTemplate = "hello" },
			wantValid: false,
		},
		{
			name:      "proof ed25519 without keys",
			mutate:    func(c *Config) { c.Proof.Enabled = true },
			wantValid: false,
		},
		{
			name: "proof hs256 with secret",
			mutate: func(c *Config) {
				c.Proof.Enabled = true
				c.Proof.SigningMethod = "HS256"
				c.Proof.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
			},
			wantValid: true,
		},
		{
			name:      "audit without buffer",
			mutate:    func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 },
			wantValid: false,
		},
		{
			name:      "missing phone attribute",
			mutate:    func(c *Config) { c.Account.PhoneAttribute = "" },
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigIsolatesMaps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Verification.PurposeTTL = map[Purpose]time.Duration{PurposeAuth: time.Minute}
	cfg.Verification.TestNumbers = []string{"+27821234567"}

	out := cloneConfig(cfg)
	out.Verification.PurposeTTL[PurposeAuth] = time.Hour
	out.Verification.TestNumbers[0] = "changed"

	if cfg.Verification.PurposeTTL[PurposeAuth] != time.Minute || cfg.Verification.TestNumbers[0] != "+27821234567" {
		t.Fatal("clone shares state with the original")
	}
}

func TestBuilderRequirements(t *testing.T) {
	_, rdb := newTestRedis(t)

	if _, err := New().WithTransport(&fakeTransport{}).Build(); err == nil {
		t.Fatal("expected error without redis or code store")
	}
	if _, err := New().WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without transport")
	}

	b := New().WithRedis(rdb).WithTransport(&fakeTransport{})
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected builder reuse to fail")
	}

	cfg := DefaultConfig()
	cfg.Verification.TestNumbers = []string{"not-a-number"}
	if _, err := New().WithConfig(cfg).WithRedis(rdb).WithTransport(&fakeTransport{}).Build(); err == nil {
		t.Fatal("expected invalid test number to fail Build")
	}
}

func TestParsePurpose(t *testing.T) {
	tests := map[string]Purpose{
		"REGISTRATION":   PurposeRegistration,
		"login":          PurposeAuth,
		"PASSWORD_RESET": PurposeReset,
		"VIA":            PurposeVerify,
		" Custom_Flow ":  Purpose("custom_flow"),
	}
	for in, want := range tests {
		got, err := ParsePurpose(in)
		if err != nil || got != want {
			t.Fatalf("ParsePurpose(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParsePurpose("two words"); err == nil {
		t.Fatal("expected malformed purpose to fail")
	}
}
