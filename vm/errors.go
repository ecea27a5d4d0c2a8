package vm

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/quill-lang/quill/bytecode"
)

// RuntimeError is returned by Interpret when the running script raises
// a language-level error: an operand type mismatch, an undefined
// variable, a call arity mismatch, and so on. StackTrace holds one line
// per active call frame at the point of failure, innermost first,
// matching what a REPL or CLI driver should print beneath the message.
type RuntimeError struct {
	Message    string
	Line       int
	StackTrace []string
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[line %d] %s", e.Line, e.Message)
	for _, frame := range e.StackTrace {
		b.WriteByte('\n')
		b.WriteString(frame)
	}
	return b.String()
}

// runtimeError builds a *RuntimeError from the currently executing
// frame stack and resets the VM so it is ready to accept the next
// Interpret call (the REPL's use case: one bad line must not corrupt
// the session).
func (vm *VM) runtimeError(format string, args ...any) error {
	message := fmt.Sprintf(format, args...)

	var line int
	trace := make([]string, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		f := &vm.frames[i]
		fn := f.closure.Function
		// ip has already advanced past the failing instruction's operands.
		frameLine := fn.Chunk.LineAt(f.ip - 1)
		if i == vm.frameCount-1 {
			line = frameLine
		}
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Chars + "()"
		}
		trace = append(trace, fmt.Sprintf("[line %d] in %s", frameLine, name))
	}

	vm.resetStack()
	return &RuntimeError{Message: message, Line: line, StackTrace: trace}
}

// uintptrOf gives the open-upvalue list a total order over stack slots
// without exposing unsafe.Pointer arithmetic outside this file.
func uintptrOf(v *bytecode.Value) uintptr {
	return uintptr(unsafe.Pointer(v))
}
