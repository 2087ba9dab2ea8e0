package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy is the parsed form of the allowed origins list. Origins are
// compared as lower-cased scheme://host pairs.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

func newOriginPolicy(origins []string) (originPolicy, []string) {
	policy := originPolicy{allowed: make(map[string]struct{}, len(origins))}
	normalized := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			policy.allowAll = true
			continue
		}

		canonical, ok := canonicalOrigin(trimmed)
		if !ok {
			slog.Warn("Ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		if _, dup := policy.allowed[canonical]; dup {
			continue
		}
		policy.allowed[canonical] = struct{}{}
		normalized = append(normalized, canonical)
	}

	return policy, normalized
}

func (p originPolicy) allows(origin string) bool {
	canonical, ok := canonicalOrigin(origin)
	if !ok {
		return false
	}
	if p.allowAll {
		return true
	}
	_, exists := p.allowed[canonical]
	return exists
}

func canonicalOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// checkOrigin is the upgrader's origin hook. Browsers always send Origin, so
// a request without one is refused as well.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	configMu.RLock()
	policy := activePolicy
	configMu.RUnlock()

	if origin != "" && policy.allows(origin) {
		return true
	}

	slog.Warn("Blocked WebSocket connection from disallowed origin", "origin", origin, "addr", r.RemoteAddr)
	return false
}
