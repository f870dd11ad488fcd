package core

import (
	"strings"

	"github.com/google/uuid"
)

// NewClientID returns prefix followed by a random UUIDv4 in hex, cut to maxLen.
// A non-positive maxLen leaves the id uncut.
func NewClientID(prefix string, maxLen int) string {
	id := prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	if maxLen > 0 && len(id) > maxLen {
		id = id[:maxLen]
	}
	return id
}

// ClientIDOr returns tag cut to maxLen, or a generated id when tag is empty.
func ClientIDOr(tag, prefix string, maxLen int) string {
	if tag == "" {
		return NewClientID(prefix, maxLen)
	}
	if maxLen > 0 && len(tag) > maxLen {
		return tag[:maxLen]
	}
	return tag
}
