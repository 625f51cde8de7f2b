// Package cache implements conditional GET for generated responses. Nothing
// is stored on the server: the body is hashed on every request and compared
// with the client's If-None-Match.
package cache

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// generateHash returns the xxHash of b as 16 hex digits.
func generateHash(b []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}

// Tag builds the weak entity tag for a response body.
func Tag(body []byte) string {
	return `W/"` + generateHash(body) + `"`
}

// Matches reports whether an If-None-Match header value names tag. Weak
// comparison is used, so W/ prefixes are ignored on both sides.
func Matches(ifNoneMatch, tag string) bool {
	ifNoneMatch = strings.TrimSpace(ifNoneMatch)
	if ifNoneMatch == "" {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}

	want := strings.TrimPrefix(tag, "W/")
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == want {
			return true
		}
	}
	return false
}
