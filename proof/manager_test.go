package proof

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func mustManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.TTL == 0 {
		cfg.TTL = time.Minute
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestRoundTrip(t *testing.T) {
	pub, priv := newEdKeys(t)
	managers := map[string]*Manager{
		"ed25519": mustManager(t, Config{
			SigningMethod: MethodEd25519,
			PrivateKey:    priv,
			PublicKey:     pub,
			Issuer:        "phoneverify",
			Audience:      "signup",
		}),
		"hs256": mustManager(t, Config{SigningMethod: MethodHS256, PrivateKey: []byte(testSecret)}),
	}

	for name, m := range managers {
		t.Run(name, func(t *testing.T) {
			token, err := m.Create("+27821234567", "registration", "rec-1", "acc-1")
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			claims, err := m.Parse(token, "registration")
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if claims.PhoneNumber != "+27821234567" || claims.RecordID != "rec-1" || claims.AccountID != "acc-1" {
				t.Fatalf("unexpected claims: %+v", claims)
			}
			if _, err := m.Parse(token, "reset"); !errors.Is(err, ErrPurposeMismatch) {
				t.Fatalf("expected ErrPurposeMismatch, got %v", err)
			}
		})
	}
}

func TestParseRejectsExpiredProof(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := mustManager(t, Config{
		SigningMethod: MethodHS256,
		PrivateKey:    []byte(testSecret),
		Leeway:        5 * time.Second,
		Now:           func() time.Time { return now },
	})
	token, err := m.Create("+27821234567", "auth", "rec-3", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	now = now.Add(time.Minute + 3*time.Second)
	if _, err := m.Parse(token, ""); err != nil {
		t.Fatalf("expected proof within leeway to parse, got %v", err)
	}
	now = now.Add(10 * time.Second)
	if _, err := m.Parse(token, ""); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof for expired proof, got %v", err)
	}
}

func TestParseRejectsForeignTokens(t *testing.T) {
	pub, _ := newEdKeys(t)
	m := mustManager(t, Config{SigningMethod: MethodEd25519, PublicKey: pub})

	now := time.Now()
	claims := Claims{
		PhoneNumber: "+27821234567",
		RecordID:    "rec-4",
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "+27821234567",
			IssuedAt:  gjwt.NewNumericDate(now),
			ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	hmacToken, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	_, otherPriv := newEdKeys(t)
	foreignKey, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(otherPriv)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	for name, token := range map[string]string{"algorithm": hmacToken, "key": foreignKey, "garbage": "a.b.c"} {
		if _, err := m.Parse(token, ""); !errors.Is(err, ErrInvalidProof) {
			t.Fatalf("%s: expected ErrInvalidProof, got %v", name, err)
		}
	}
	if _, err := m.Create("+27821234567", "auth", "rec-4", ""); err == nil {
		t.Fatal("expected create without a private key to fail")
	}
}

func TestVerifyKeysSelectByKid(t *testing.T) {
	oldPub, oldPriv := newEdKeys(t)
	newPub, newPriv := newEdKeys(t)

	verifier := mustManager(t, Config{
		SigningMethod: MethodEd25519,
		VerifyKeys:    map[string][]byte{"k1": oldPub, "k2": newPub},
	})

	for kid, priv := range map[string]ed25519.PrivateKey{"k1": oldPriv, "k2": newPriv} {
		signer := mustManager(t, Config{
			SigningMethod: MethodEd25519,
			PrivateKey:    priv,
			PublicKey:     priv.Public().(ed25519.PublicKey),
			KeyID:         kid,
		})
		token, err := signer.Create("+27821234567", "auth", "rec-"+kid, "")
		if err != nil {
			t.Fatalf("create %s: %v", kid, err)
		}
		if _, err := verifier.Parse(token, "auth"); err != nil {
			t.Fatalf("expected %s to verify, got %v", kid, err)
		}
	}

	stray := mustManager(t, Config{SigningMethod: MethodEd25519, PrivateKey: oldPriv, PublicKey: oldPub, KeyID: "k9"})
	token, err := stray.Create("+27821234567", "auth", "rec-9", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := verifier.Parse(token, ""); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected unknown kid rejection, got %v", err)
	}

	unsigned := mustManager(t, Config{SigningMethod: MethodEd25519, PrivateKey: oldPriv, PublicKey: oldPub})
	token, err = unsigned.Create("+27821234567", "auth", "rec-0", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := verifier.Parse(token, ""); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected missing kid rejection, got %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	pub, _ := newEdKeys(t)
	cases := map[string]Config{
		"zero ttl":       {SigningMethod: MethodHS256, PrivateKey: []byte(testSecret)},
		"short secret":   {TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		"large leeway":   {TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte(testSecret), Leeway: time.Hour},
		"no ed key":      {TTL: time.Minute, SigningMethod: MethodEd25519},
		"bad public key": {TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: []byte("nope")},
		"empty kid":      {TTL: time.Minute, SigningMethod: MethodEd25519, VerifyKeys: map[string][]byte{" ": pub}},
		"missing kid":    {TTL: time.Minute, SigningMethod: MethodEd25519, KeyID: "k2", VerifyKeys: map[string][]byte{"k1": pub}},
		"method":         {TTL: time.Minute, SigningMethod: "rs256"},
	}
	for name, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}
