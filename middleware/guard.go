package middleware

import (
	"context"
	"net/http"
	"strings"

	phoneverify "github.com/MrEthical07/phoneverify"
	"github.com/MrEthical07/phoneverify/proof"
)

type proofContextKey struct{}

// ProofParser is satisfied by *phoneverify.Engine.
type ProofParser interface {
	ParseProof(token string, purpose phoneverify.Purpose) (*proof.Claims, error)
}

// ProofFromContext returns the claims injected by RequireProof.
func ProofFromContext(ctx context.Context) (*proof.Claims, bool) {
	claims, ok := ctx.Value(proofContextKey{}).(*proof.Claims)
	return claims, ok
}

// RequireProof admits requests whose bearer token is a valid proof minted
// for purpose and stores the claims for [ProofFromContext]. Rejections carry
// a WWW-Authenticate challenge; a malformed header gets error="invalid_request"
// and a bad proof gets error="invalid_token".
func RequireProof(parser ProofParser, purpose phoneverify.Purpose) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			switch {
			case !ok:
				challenge(w, "invalid_request")
			case parser == nil:
				challenge(w, "invalid_token")
			default:
				claims, err := parser.ParseProof(token, purpose)
				if err != nil {
					challenge(w, "invalid_token")
					return
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), proofContextKey{}, claims)))
			}
		})
	}
}

func challenge(w http.ResponseWriter, code string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="`+code+`"`)
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

// bearerToken extracts the credentials of a "Bearer" Authorization header.
// The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
