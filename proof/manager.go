package proof

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the algorithm used to sign proofs.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
)

var (
	// ErrInvalidProof is returned for any proof that fails signature, claim or binding checks.
	ErrInvalidProof = errors.New("invalid verification proof")
	// ErrPurposeMismatch is returned when a proof was issued for a different purpose.
	ErrPurposeMismatch = errors.New("verification proof purpose mismatch")
)

// Config controls proof signing and verification.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte

	// Now overrides the wall clock; nil uses time.Now.
	Now func() time.Time
}

// Claims is the payload of a verification proof.
type Claims struct {
	PhoneNumber string `json:"phone_number"`
	Purpose     string `json:"purpose"`
	RecordID    string `json:"rid"`
	AccountID   string `json:"aid,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and parses proofs. Keys are decoded once at construction.
// It is safe for concurrent use.
type Manager struct {
	config  Config
	alg     jwt.SigningMethod
	signing any
	// keyring maps kid to a decoded verification key. The "" entry is used
	// when no VerifyKeys are configured.
	keyring map[string]any
	parser  *jwt.Parser
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("proof: ttl must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("proof: leeway must be within [0, 2m]")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg, keyring: make(map[string]any, len(cfg.VerifyKeys)+1)}
	var (
		decode func([]byte) (any, error)
		err    error
	)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("proof: hs256 secret must be at least 32 bytes")
		}
		m.alg = jwt.SigningMethodHS256
		m.signing = cfg.PrivateKey
		decode = func(b []byte) (any, error) { return b, nil }
	case MethodEd25519:
		m.alg = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			if m.signing, err = parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) == 0 && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("proof: ed25519 needs a public key or verify keys")
		}
		decode = func(b []byte) (any, error) { return parseEdPublicKey(b) }
	default:
		return nil, fmt.Errorf("proof: unsupported signing method %q", cfg.SigningMethod)
	}

	if len(cfg.VerifyKeys) == 0 {
		primary := cfg.PublicKey
		if cfg.SigningMethod == MethodHS256 {
			primary = cfg.PrivateKey
		}
		if m.keyring[""], err = decode(primary); err != nil {
			return nil, err
		}
	} else if cfg.SigningMethod == MethodEd25519 && len(cfg.PublicKey) > 0 {
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	}
	for kid, raw := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("proof: verify keys contain an empty kid")
		}
		if m.keyring[kid], err = decode(raw); err != nil {
			return nil, fmt.Errorf("proof: verify key %q: %w", kid, err)
		}
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, fmt.Errorf("proof: key id %q missing from verify keys", cfg.KeyID)
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(opts...)
	return m, nil
}

// TTL reports how long minted proofs stay valid.
func (m *Manager) TTL() time.Duration {
	return m.config.TTL
}

// Create signs a proof for phoneNumber verified under purpose by record
// recordID. accountID is optional.
func (m *Manager) Create(phoneNumber, purpose, recordID, accountID string) (string, error) {
	if phoneNumber == "" || purpose == "" || recordID == "" {
		return "", errors.New("proof: phone number, purpose and record id are required")
	}
	if m.signing == nil {
		return "", errors.New("proof: no signing key configured")
	}

	issuedAt := m.now()
	claims := &Claims{
		PhoneNumber: phoneNumber,
		Purpose:     purpose,
		RecordID:    recordID,
		AccountID:   accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        recordID,
			Subject:   phoneNumber,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(m.config.TTL)),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.alg, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}
	return token.SignedString(m.signing)
}

// Parse verifies raw and returns its claims. A non-empty purpose must match
// the purpose the proof was minted for.
func (m *Manager) Parse(raw, purpose string) (*Claims, error) {
	claims := &Claims{}
	token, err := m.parser.ParseWithClaims(raw, claims, m.lookupKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if !token.Valid || claims.PhoneNumber == "" || claims.RecordID == "" || claims.Subject != claims.PhoneNumber {
		return nil, ErrInvalidProof
	}
	if purpose != "" && claims.Purpose != purpose {
		return nil, ErrPurposeMismatch
	}
	return claims, nil
}

// lookupKey selects the verification key by the token's kid. Without
// VerifyKeys only the configured KeyID, if any, is accepted.
func (m *Manager) lookupKey(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if len(m.config.VerifyKeys) == 0 {
		if m.config.KeyID != "" && kid != m.config.KeyID {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return m.keyring[""], nil
	}
	if kid == "" {
		return nil, errors.New("missing kid")
	}
	key, ok := m.keyring[kid]
	if !ok {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	return key, nil
}

func (m *Manager) now() time.Time {
	if m.config.Now != nil {
		return m.config.Now()
	}
	return time.Now()
}

// parseEdPrivateKey accepts a raw 64-byte key or a PKCS#8 PEM block.
func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("proof: ed25519 private key: %w", err)
	}
	k, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("proof: pem block is not an ed25519 private key")
	}
	return k, nil
}

// parseEdPublicKey accepts a raw 32-byte key or a PKIX PEM block.
func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("proof: ed25519 public key: %w", err)
	}
	k, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("proof: pem block is not an ed25519 public key")
	}
	return k, nil
}
