package execution

import (
	"fmt"
	"runtime/debug"
)

// PanicError carries a value recovered from a panicking task together with the
// stack of the goroutine that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (p *PanicError) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}

// newPanicError wraps a recovered value. Re-panicking with a *PanicError keeps
// the original stack.
func newPanicError(v any) *PanicError {
	if pe, ok := v.(*PanicError); ok {
		return pe
	}
	return &PanicError{Value: v, Stack: debug.Stack()}
}

// Catch runs fn and converts a panic into a *PanicError. A nil result means
// fn returned normally.
func Catch(fn func()) (perr *PanicError) {
	defer func() {
		if r := recover(); r != nil {
			perr = newPanicError(r)
		}
	}()
	fn()
	return nil
}
