package handlers

import "strings"

// extractCookieToken pulls a named cookie's value out of a raw Cookie header,
// or returns empty when the cookie is absent.
func extractCookieToken(cookieHeader, cookieName string) string {
	for _, part := range strings.Split(cookieHeader, ";") {
		part = strings.TrimSpace(part)
		if value, ok := strings.CutPrefix(part, cookieName+"="); ok {
			return value
		}
	}
	return ""
}
