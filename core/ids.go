package core

import (
	"crypto/rand"
	"fmt"
)

// NewID returns an opaque 32-character hex identifier.
func NewID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}
