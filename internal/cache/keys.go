package cache

import (
	"fmt"
	"sort"
	"strings"
)

// maxKeyComponent bounds the stringified length of each key component.
// Truncation is lossy on purpose; cache keys are hints, the cached value is
// always validated by the caller's own expectations.
const maxKeyComponent = 50

// KeyBuilder derives deterministic cache keys from an operation name and
// its arguments.
type KeyBuilder struct {
	Namespace string
}

// Key builds a cache key from the operation name, positional arguments and
// keyword arguments. Keyword pairs are sorted by key so argument order
// never changes the result.
func (b KeyBuilder) Key(operation string, args []any, kwargs map[string]any) string {
	parts := make([]string, 0, 2+len(args)+len(kwargs))
	parts = append(parts, b.Namespace, operation)

	for _, arg := range args {
		parts = append(parts, truncate(fmt.Sprint(arg)))
	}

	names := make([]string, 0, len(kwargs))
	for k := range kwargs {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, k := range names {
		parts = append(parts, k+"="+truncate(fmt.Sprint(kwargs[k])))
	}

	return strings.Join(parts, ":")
}

// SessionKey builds the storage key for a (user, session) pair.
func (b KeyBuilder) SessionKey(userID, sessionID string) string {
	return strings.Join([]string{b.Namespace, "session", userID, sessionID}, ":")
}

func truncate(s string) string {
	if len(s) > maxKeyComponent {
		return s[:maxKeyComponent]
	}
	return s
}
