package execution

import (
	"github.com/oklog/ulid/v2"

	idspkg "github.com/drblury/trust/internal/runtime/ids"
)

// ExecutorID uniquely identifies an Executor. It is a ULID, so ids sort by
// creation time.
type ExecutorID ulid.ULID

// GlobalExecutorID is reserved for the executor returned by GlobalExecutor.
var GlobalExecutorID = ExecutorID(ulid.MustParse("01D1P7Q88WB05AV0Y8BX5K4Q4N"))

// NewExecutorID generates a new ExecutorID.
func NewExecutorID() ExecutorID {
	return ExecutorID(idspkg.New())
}

// ParseExecutorID parses the 26-character ULID representation of an id.
func ParseExecutorID(s string) (ExecutorID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ExecutorID{}, err
	}
	return ExecutorID(id), nil
}

func (id ExecutorID) String() string {
	return ulid.ULID(id).String()
}

// Compare returns -1, 0 or +1 ordering ids by their byte representation.
func (id ExecutorID) Compare(other ExecutorID) int {
	return ulid.ULID(id).Compare(ulid.ULID(other))
}
