package types

import (
	"strings"

	"github.com/google/uuid"
)

// FallbackPrefix marks a client-synthesized, non-canonical draft id.
const FallbackPrefix = "fallback-"

// IsCanonicalID reports whether id has the 36-character UUID v4 shape.
func IsCanonicalID(id string) bool {
	if len(id) != 36 {
		return false
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return parsed.Version() == 4
}

// IsFallbackID reports whether id was synthesized offline and still needs resolution.
func IsFallbackID(id string) bool {
	return strings.HasPrefix(id, FallbackPrefix)
}

// NewCanonicalID returns a fresh canonical id.
func NewCanonicalID() string {
	return uuid.NewString()
}
