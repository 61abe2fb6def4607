package session

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// NewID creates a session ID with a "sess_" prefix and a ULID drawn from
// crypto/rand. Session IDs double as the terminal access token, so the
// random component must not be guessable.
func NewID() string {
	return "sess_" + ulid.MustNew(ulid.Now(), rand.Reader).String()
}
