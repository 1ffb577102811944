// Package server normalizes and validates the HTTP origins that chat clients
// present during the WebSocket handshake, enforcing the configured allow-list
// before a session is ever created.
package server

import (
	"net/http"
	"net/url"
	"strings"
)

// normalizeOrigins canonicalizes the configured allow-list. A bare "*" entry
// opens the relay to any origin; entries that do not parse as scheme://host
// are dropped with a warning rather than silently matching nothing.
func normalizeOrigins(origins []string) ([]string, bool) {
	if len(origins) == 0 {
		return nil, false
	}

	normalized := make([]string, 0, len(origins))
	allowAll := false

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == "*" {
			allowAll = true
			continue
		}

		normalizedOrigin, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warnf("Ignoring unparseable origin in relay allow-list: %q", origin)
			continue
		}

		normalized = append(normalized, normalizedOrigin)
	}

	return normalized, allowAll
}

// normalizeOrigin lowercases the scheme://host pair so browser-supplied
// Origin headers compare equal regardless of case.
func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func isOriginAllowed(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return false
	}

	normalizedOrigin, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}

	configMu.RLock()
	defer configMu.RUnlock()

	if allowAllOrigins {
		return true
	}

	_, exists := allowedOrigins[normalizedOrigin]
	return exists
}

// checkOrigin is the upgrader hook guarding the connection gateway.
func checkOrigin(r *http.Request) bool {
	if isOriginAllowed(r) {
		return true
	}

	logger.Warnf("Rejected chat connection from disallowed origin %q", r.Header.Get("Origin"))
	return false
}
