package tracing

import (
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// SafeAttributes drops any attribute whose key names a credential, such as
// stripe.credential or http.authorization.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	kept := attrs[:0:0]
	for _, attr := range attrs {
		if !namesCredential(string(attr.Key)) {
			kept = append(kept, attr)
		}
	}
	return kept
}

// SafeError keeps only the type of the innermost error. Billing API errors
// can echo the request, key included.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	for {
		inner := errors.Unwrap(err)
		if inner == nil {
			return fmt.Errorf("%T", err)
		}
		err = inner
	}
}

func namesCredential(key string) bool {
	key = strings.ToLower(key)
	return strings.Contains(key, "credential") ||
		strings.Contains(key, "authorization") ||
		strings.Contains(key, "api_key") ||
		strings.Contains(key, "token") ||
		strings.Contains(key, "secret")
}
