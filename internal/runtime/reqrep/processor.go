package reqrep

import (
	"context"

	"github.com/drblury/trust/internal/runtime/execution"
)

// Processor turns a request into a reply. A backend instance calls Process for
// one request at a time, so an implementation owns its state without locking.
// Process may block; that instance stops draining requests until it returns.
type Processor[Req, Rep any] interface {
	Process(ctx context.Context, req Req) Rep
}

// PanicHandler is implemented by processors that want to survive a panic in
// Process. Without it a panic terminates the backend instance.
type PanicHandler interface {
	Panicked(err *execution.PanicError)
}

// Cloner is required from processors that run on more than one backend
// instance. Each instance gets its own clone.
type Cloner[Req, Rep any] interface {
	Clone() Processor[Req, Rep]
}

// Initializer is called once by each backend instance before it starts
// draining requests.
type Initializer interface {
	Init(ctx context.Context)
}

// Destroyer is called once by each backend instance after it stops, whether it
// stopped cleanly or was terminated by a panic.
type Destroyer interface {
	Destroy()
}

// ProcessorFunc adapts a function to the Processor interface. It is stateless
// so it clones itself.
type ProcessorFunc[Req, Rep any] func(ctx context.Context, req Req) Rep

func (f ProcessorFunc[Req, Rep]) Process(ctx context.Context, req Req) Rep {
	return f(ctx, req)
}

func (f ProcessorFunc[Req, Rep]) Clone() Processor[Req, Rep] { return f }
