package phoneverify

import "context"

type sourceAddressContextKey struct{}
type realmContextKey struct{}

// WithSourceAddress attaches the requesting client's address to ctx. Issue
// uses it for per-source issuance limits; an empty address skips them.
func WithSourceAddress(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, sourceAddressContextKey{}, addr)
}

// WithRealm scopes codes and limits to a realm. Codes issued in one realm
// are invisible to another.
func WithRealm(ctx context.Context, realm string) context.Context {
	return context.WithValue(ctx, realmContextKey{}, realm)
}

// SourceAddressFromContext returns the address set by WithSourceAddress.
func SourceAddressFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	addr, _ := ctx.Value(sourceAddressContextKey{}).(string)
	return addr
}

// RealmFromContext returns the realm set by WithRealm, or "".
func RealmFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	realm, _ := ctx.Value(realmContextKey{}).(string)
	return realm
}
