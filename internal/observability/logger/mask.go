package logger

import (
	"strings"
)

var stripeKeyPrefixes = []string{"sk_live_", "sk_test_", "rk_live_", "rk_test_"}

// MaskStripeKey keeps the key mode prefix and the last four characters,
// e.g. "sk_live_****abcd".
func MaskStripeKey(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	for _, prefix := range stripeKeyPrefixes {
		if strings.HasPrefix(value, prefix) {
			return prefix + maskLast4(strings.TrimPrefix(value, prefix))
		}
	}
	return maskLast4(value)
}

// MaskAuthorization masks bearer tokens, preserving the scheme.
func MaskAuthorization(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	parts := strings.Fields(value)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return "Bearer " + maskLast4(parts[1])
	}
	return maskLast4(value)
}

func maskLast4(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
