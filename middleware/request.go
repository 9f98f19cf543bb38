package middleware

import (
	"net"
	"net/http"
	"strings"

	phoneverify "github.com/MrEthical07/phoneverify"
)

// SourceAddress records the client address for per-source issuance limits.
// With trustForwarded set, the first X-Forwarded-For entry wins over
// RemoteAddr; enable it only behind a proxy that overwrites the header.
func SourceAddress(trustForwarded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := clientAddress(r, trustForwarded)
			if addr != "" {
				r = r.WithContext(phoneverify.WithSourceAddress(r.Context(), addr))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Realm scopes the request to the realm named by header. Requests without
// the header use fallback.
func Realm(header, fallback string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			realm := strings.TrimSpace(r.Header.Get(header))
			if realm == "" {
				realm = fallback
			}
			if realm != "" {
				r = r.WithContext(phoneverify.WithRealm(r.Context(), realm))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddress(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}
