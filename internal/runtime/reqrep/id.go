package reqrep

import (
	"github.com/oklog/ulid/v2"

	idspkg "github.com/drblury/trust/internal/runtime/ids"
)

// ID identifies one request/reply service. It labels the service's metrics.
type ID ulid.ULID

// NewID generates a new service id.
func NewID() ID { return ID(idspkg.New()) }

// ParseID parses the 26-character ULID form of an id.
func ParseID(s string) (ID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ID{}, err
	}
	return ID(id), nil
}

func (id ID) String() string { return ulid.ULID(id).String() }

// MarshalText encodes id in its string form.
func (id ID) MarshalText() ([]byte, error) { return ulid.ULID(id).MarshalText() }

// IsZero reports whether id is unset.
func (id ID) IsZero() bool { return id == ID{} }

// MessageID identifies a single request travelling through a service.
type MessageID ulid.ULID

// NewMessageID generates a new message id.
func NewMessageID() MessageID { return MessageID(idspkg.New()) }

func (id MessageID) String() string { return ulid.ULID(id).String() }
