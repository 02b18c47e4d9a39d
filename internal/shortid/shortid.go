// Package shortid generates the opaque short tokens used in place of
// database ids on all external-facing addresses.
package shortid

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// New returns a 22-character URL-safe token derived from a random UUID.
func New() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}
