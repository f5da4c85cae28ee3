package middleware

import "strings"

// MaskToken shortens a bearer token for logs; full tokens never hit the log.
func MaskToken(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 8 {
		return "****"
	}
	return s[:8] + "***"
}
