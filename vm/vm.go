// Package vm implements the stack-based bytecode interpreter: the value
// stack, call-frame stack, closures and open upvalues, the globals and
// string-intern tables, and the mark-sweep collector (in gc.go) that
// owns every heap object reachable from them.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/quill-lang/quill/bytecode"
	"github.com/quill-lang/quill/compiler"
)

const (
	framesMax = 64
	stackMax  = framesMax * 256
)

// Frame is one activation record: the closure being run, the next
// instruction to fetch, and the base stack index holding the closure's
// slot 0 (the receiver/callee slot for every calling convention).
type Frame struct {
	closure *bytecode.Closure
	ip      int
	slots   int
}

// VM is a single interpreter instance. Every piece of mutable state the
// interpreter touches — the stack, call frames, open upvalues, globals,
// the string intern table, and the heap bookkeeping used by the
// collector — is bundled into this one struct, rather than scattered
// across package-level globals; multiple VMs may coexist as long as
// they never share objects.
type VM struct {
	stack    [stackMax]bytecode.Value
	stackTop int

	frames     [framesMax]Frame
	frameCount int

	openUpvalues *bytecode.Upvalue

	globals *bytecode.Table
	strings *bytecode.Table

	initString *bytecode.String

	objects        bytecode.Obj
	bytesAllocated int64
	nextGC         int64
	grayStack      []bytecode.Obj
	compilerRoots  compiler.CompilerRoots

	// StressGC forces a collection before every allocation. It is meant
	// for tests that want to exercise the collector aggressively.
	StressGC bool

	Stdout io.Writer
}

const initialNextGC = 1 << 20 // 1 MiB before the first collection

// NewVM returns a ready-to-use VM with its global and string tables
// initialized and the standard native functions registered.
func NewVM() *VM {
	vm := &VM{
		globals: bytecode.NewTable(),
		strings: bytecode.NewTable(),
		nextGC:  initialNextGC,
		Stdout:  os.Stdout,
	}
	vm.initString = vm.InternString("init")
	vm.defineNatives()
	return vm
}

// Interpret compiles source and runs the resulting script function.
// Compile errors are returned as *compiler.CompileError; runtime errors
// as *RuntimeError. Either leaves the VM's globals and string table
// intact and ready for the next Interpret call (the REPL's use case).
func (vm *VM) Interpret(source []byte) error {
	fn, err := compiler.Compile(source, vm)
	if err != nil {
		return err
	}

	closure := vm.newClosure(fn)
	vm.push(bytecode.FromObj(closure))
	if err := vm.callValue(bytecode.FromObj(closure), 0); err != nil {
		return err
	}

	return vm.run()
}

// ---------------------------------------------------------------------------
// Stack primitives
// ---------------------------------------------------------------------------

func (vm *VM) push(v bytecode.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() bytecode.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) bytecode.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

func (vm *VM) currentFrame() *Frame { return &vm.frames[vm.frameCount-1] }

func (vm *VM) readByte(f *Frame) byte {
	b := f.closure.Function.Chunk.Code[f.ip]
	f.ip++
	return b
}

func (vm *VM) readShort(f *Frame) int {
	hi := vm.readByte(f)
	lo := vm.readByte(f)
	return int(hi)<<8 | int(lo)
}

func (vm *VM) readConstant(f *Frame) bytecode.Value {
	return f.closure.Function.Chunk.Constants[vm.readByte(f)]
}

func (vm *VM) readString(f *Frame) *bytecode.String {
	return vm.readConstant(f).AsObj().(*bytecode.String)
}

// run is the dispatch loop: fetch one opcode byte, switch on it, repeat.
// Every case consumes exactly the operand bytes its opcode documents
// before the next iteration fetches a fresh opcode.
func (vm *VM) run() error {
	frame := vm.currentFrame()

	for {
		op := bytecode.Op(vm.readByte(frame))

		switch op {
		case bytecode.OpConstant:
			vm.push(vm.readConstant(frame))

		case bytecode.OpNil:
			vm.push(bytecode.Nil)
		case bytecode.OpTrue:
			vm.push(bytecode.Bool(true))
		case bytecode.OpFalse:
			vm.push(bytecode.Bool(false))

		case bytecode.OpPop:
			vm.pop()

		case bytecode.OpGetLocal:
			slot := int(vm.readByte(frame))
			vm.push(vm.stack[frame.slots+slot])
		case bytecode.OpSetLocal:
			slot := int(vm.readByte(frame))
			vm.stack[frame.slots+slot] = vm.peek(0)

		case bytecode.OpGetUpvalue:
			slot := int(vm.readByte(frame))
			vm.push(*frame.closure.Upvalues[slot].Location)
		case bytecode.OpSetUpvalue:
			slot := int(vm.readByte(frame))
			*frame.closure.Upvalues[slot].Location = vm.peek(0)

		case bytecode.OpGetGlobal:
			name := vm.readString(frame)
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("undefined variable '%s'", name.Chars)
			}
			vm.push(v)
		case bytecode.OpDefineGlobal:
			name := vm.readString(frame)
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case bytecode.OpSetGlobal:
			name := vm.readString(frame)
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return vm.runtimeError("undefined variable '%s'", name.Chars)
			}

		case bytecode.OpGetProperty:
			if err := vm.getProperty(frame); err != nil {
				return err
			}
		case bytecode.OpSetProperty:
			if err := vm.setProperty(frame); err != nil {
				return err
			}
		case bytecode.OpGetSuper:
			name := vm.readString(frame)
			superclass := vm.pop().AsObj().(*bytecode.Class)
			receiver := vm.pop()
			if err := vm.bindMethod(superclass, name, receiver); err != nil {
				return err
			}

		case bytecode.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(bytecode.Bool(bytecode.Equal(a, b)))
		case bytecode.OpGreater:
			if err := vm.numericBinary(op); err != nil {
				return err
			}
		case bytecode.OpLess:
			if err := vm.numericBinary(op); err != nil {
				return err
			}
		case bytecode.OpNot:
			vm.push(bytecode.Bool(vm.pop().Falsy()))
		case bytecode.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("operand must be a number")
			}
			vm.push(bytecode.Number(-vm.pop().AsNumber()))

		case bytecode.OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case bytecode.OpSubtract, bytecode.OpMultiply, bytecode.OpDivide:
			if err := vm.numericBinary(op); err != nil {
				return err
			}

		case bytecode.OpPrint:
			fmt.Fprintln(vm.Stdout, bytecode.Print(vm.pop()))

		case bytecode.OpJump:
			offset := vm.readShort(frame)
			frame.ip += offset
		case bytecode.OpJumpIfFalse:
			offset := vm.readShort(frame)
			if vm.peek(0).Falsy() {
				frame.ip += offset
			}
		case bytecode.OpLoop:
			offset := vm.readShort(frame)
			frame.ip -= offset

		case bytecode.OpCall:
			argc := int(vm.readByte(frame))
			if err := vm.callValue(vm.peek(argc), argc); err != nil {
				return err
			}
			frame = vm.currentFrame()

		case bytecode.OpInvoke:
			name := vm.readString(frame)
			argc := int(vm.readByte(frame))
			if err := vm.invoke(name, argc); err != nil {
				return err
			}
			frame = vm.currentFrame()

		case bytecode.OpSuperInvoke:
			name := vm.readString(frame)
			argc := int(vm.readByte(frame))
			superclass := vm.pop().AsObj().(*bytecode.Class)
			if err := vm.invokeFromClass(superclass, name, argc); err != nil {
				return err
			}
			frame = vm.currentFrame()

		case bytecode.OpClosure:
			fn := vm.readConstant(frame).AsObj().(*bytecode.Function)
			closure := vm.newClosure(fn)
			// Push before resolving upvalues: capturing an upvalue may
			// allocate and trigger a collection, and until this closure
			// is reachable some other way, the stack is the only root
			// keeping it alive.
			vm.push(bytecode.FromObj(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := vm.readByte(frame)
				index := vm.readByte(frame)
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slots + int(index))
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case bytecode.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slots)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return nil
			}
			vm.stackTop = frame.slots
			vm.push(result)
			frame = vm.currentFrame()

		case bytecode.OpClass:
			name := vm.readString(frame)
			vm.push(bytecode.FromObj(vm.newClass(name)))

		case bytecode.OpInherit:
			superVal := vm.peek(1)
			superclass, ok := superVal.AsObj().(*bytecode.Class)
			if !ok {
				return vm.runtimeError("superclass must be a class")
			}
			subclass := vm.peek(0).AsObj().(*bytecode.Class)
			bytecode.AddAll(superclass.Methods, subclass.Methods)
			vm.pop() // the subclass

		case bytecode.OpMethod:
			name := vm.readString(frame)
			vm.defineMethod(name)

		default:
			return vm.runtimeError("unknown opcode %d", byte(op))
		}
	}
}

// ---------------------------------------------------------------------------
// Arithmetic and comparison
// ---------------------------------------------------------------------------

func (vm *VM) numericBinary(op bytecode.Op) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("operands must be numbers")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	switch op {
	case bytecode.OpGreater:
		vm.push(bytecode.Bool(a > b))
	case bytecode.OpLess:
		vm.push(bytecode.Bool(a < b))
	case bytecode.OpSubtract:
		vm.push(bytecode.Number(a - b))
	case bytecode.OpMultiply:
		vm.push(bytecode.Number(a * b))
	case bytecode.OpDivide:
		vm.push(bytecode.Number(a / b))
	}
	return nil
}

// add implements OP_ADD: number+number, string+string (concatenation),
// or a runtime error. The operands are only peeked, not popped, until
// the result exists — concatenation calls InternString, which may
// allocate and trigger a collection, and the two source strings must
// still be reachable via the stack while that happens.
func (vm *VM) add() error {
	a, b := vm.peek(1), vm.peek(0)
	switch {
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		vm.push(bytecode.Number(a.AsNumber() + b.AsNumber()))
		return nil
	case a.Is(bytecode.ObjStringType) && b.Is(bytecode.ObjStringType):
		as := a.AsObj().(*bytecode.String)
		bs := b.AsObj().(*bytecode.String)
		result := vm.InternString(as.Chars + bs.Chars)
		vm.pop()
		vm.pop()
		vm.push(bytecode.FromObj(result))
		return nil
	default:
		return vm.runtimeError("operands must be two numbers or two strings")
	}
}

// ---------------------------------------------------------------------------
// Properties and methods
// ---------------------------------------------------------------------------

func (vm *VM) getProperty(frame *Frame) error {
	name := vm.readString(frame)
	instVal := vm.peek(0)
	instance, ok := instVal.AsObj().(*bytecode.Instance)
	if !ok {
		return vm.runtimeError("only instances have properties")
	}
	if v, ok := instance.Fields.Get(name); ok {
		vm.pop()
		vm.push(v)
		return nil
	}
	return vm.bindMethod(instance.Class, name, vm.pop())
}

func (vm *VM) setProperty(frame *Frame) error {
	name := vm.readString(frame)
	instance, ok := vm.peek(1).AsObj().(*bytecode.Instance)
	if !ok {
		return vm.runtimeError("only instances have fields")
	}
	instance.Fields.Set(name, vm.peek(0))
	value := vm.pop()
	vm.pop()
	vm.push(value)
	return nil
}

// bindMethod looks up name on class, wraps it with receiver into a
// BoundMethod, and pushes it in place of receiver (already popped by
// the caller).
func (vm *VM) bindMethod(class *bytecode.Class, name *bytecode.String, receiver bytecode.Value) error {
	methodVal, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("undefined property '%s'", name.Chars)
	}
	bound := vm.newBoundMethod(receiver, methodVal.AsObj().(*bytecode.Closure))
	vm.push(bytecode.FromObj(bound))
	return nil
}

func (vm *VM) defineMethod(name *bytecode.String) {
	method := vm.peek(0).AsObj().(*bytecode.Closure)
	class := vm.peek(1).AsObj().(*bytecode.Class)
	class.Methods.Set(name, bytecode.FromObj(method))
	vm.pop()
}

// invoke combines GET_PROPERTY and CALL: it checks fields first (a field
// shadows a method of the same name, as with ordinary property reads),
// falling back to method lookup only when no field exists.
func (vm *VM) invoke(name *bytecode.String, argc int) error {
	receiver := vm.peek(argc)
	instance, ok := receiver.AsObj().(*bytecode.Instance)
	if !ok {
		return vm.runtimeError("only instances have methods")
	}
	if v, ok := instance.Fields.Get(name); ok {
		vm.stack[vm.stackTop-argc-1] = v
		return vm.callValue(v, argc)
	}
	return vm.invokeFromClass(instance.Class, name, argc)
}

func (vm *VM) invokeFromClass(class *bytecode.Class, name *bytecode.String, argc int) error {
	methodVal, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("undefined property '%s'", name.Chars)
	}
	return vm.call(methodVal.AsObj().(*bytecode.Closure), argc)
}

// ---------------------------------------------------------------------------
// Calling convention
// ---------------------------------------------------------------------------

func (vm *VM) callValue(callee bytecode.Value, argc int) error {
	if callee.IsObj() {
		switch obj := callee.AsObj().(type) {
		case *bytecode.Closure:
			return vm.call(obj, argc)
		case *bytecode.Native:
			args := vm.stack[vm.stackTop-argc : vm.stackTop]
			result, err := obj.Fn(args)
			if err != nil {
				return vm.runtimeError("%s", err.Error())
			}
			vm.stackTop -= argc + 1
			vm.push(result)
			return nil
		case *bytecode.Class:
			instance := vm.newInstance(obj)
			vm.stack[vm.stackTop-argc-1] = bytecode.FromObj(instance)
			if initVal, ok := obj.Methods.Get(vm.initString); ok {
				return vm.call(initVal.AsObj().(*bytecode.Closure), argc)
			} else if argc != 0 {
				return vm.runtimeError("expected 0 arguments but got %d", argc)
			}
			return nil
		case *bytecode.BoundMethod:
			vm.stack[vm.stackTop-argc-1] = obj.Receiver
			return vm.call(obj.Method, argc)
		}
	}
	return vm.runtimeError("can only call functions, methods, or classes")
}

func (vm *VM) call(closure *bytecode.Closure, argc int) error {
	if argc != closure.Function.Arity {
		return vm.runtimeError("expected %d arguments but got %d", closure.Function.Arity, argc)
	}
	if vm.frameCount == framesMax {
		return vm.runtimeError("stack overflow")
	}
	vm.frames[vm.frameCount] = Frame{
		closure: closure,
		ip:      0,
		slots:   vm.stackTop - argc - 1,
	}
	vm.frameCount++
	return nil
}

// ---------------------------------------------------------------------------
// Upvalues
// ---------------------------------------------------------------------------

// captureUpvalue returns the open upvalue for the stack slot at index
// slot, reusing an existing one if the open-upvalue list already has
// one pointing there. The list is kept sorted by descending stack
// address so this walk — and closeUpvalues's truncation — can stop
// early.
func (vm *VM) captureUpvalue(slot int) *bytecode.Upvalue {
	var prev *bytecode.Upvalue
	up := vm.openUpvalues
	for up != nil && up.Location != &vm.stack[slot] {
		loc := up.Location
		if locIndexBelow(loc, &vm.stack[slot]) {
			break
		}
		prev = up
		up = up.NextOpen
	}
	if up != nil && up.Location == &vm.stack[slot] {
		return up
	}

	created := vm.newUpvalue(&vm.stack[slot])
	created.NextOpen = up
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.NextOpen = created
	}
	return created
}

// locIndexBelow reports whether loc's slot address is below target's —
// i.e. loc belongs later in the descending-address list than target.
func locIndexBelow(loc, target *bytecode.Value) bool {
	return uintptrOf(loc) < uintptrOf(target)
}

func (vm *VM) closeUpvalues(fromSlot int) {
	for vm.openUpvalues != nil && uintptrOf(vm.openUpvalues.Location) >= uintptrOf(&vm.stack[fromSlot]) {
		up := vm.openUpvalues
		up.Close()
		vm.openUpvalues = up.NextOpen
	}
}
