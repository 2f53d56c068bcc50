package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a time-sortable ULID. IDs generated within the same millisecond
// are strictly increasing.
func New() ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}

// CreateULID returns New encoded as a 26-character string.
func CreateULID() string {
	return New().String()
}
