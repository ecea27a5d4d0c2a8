package vm

import (
	"github.com/quill-lang/quill/bytecode"
	"github.com/quill-lang/quill/compiler"
)

// Rough per-object byte costs used purely to drive the allocation
// counter that triggers collections; they need not be exact, only
// monotonic and roughly proportional to what each variant actually
// holds.
const (
	costHeader      = 16
	costString      = costHeader + 16
	costFunction    = costHeader + 48
	costNative      = costHeader + 24
	costClosure     = costHeader + 24
	costUpvalue     = costHeader + 24
	costClass       = costHeader + 24
	costInstance    = costHeader + 24
	costBoundMethod = costHeader + 24
)

// link records a freshly constructed object as the new head of the
// VM's object list, accounting for its estimated size against the
// bytes-allocated counter. maybeCollect must already have run before
// the caller constructed obj, so the window between "exists as a Go
// value" and "linked into vm.objects" never overlaps a collection.
func (vm *VM) link(obj bytecode.Obj, cost int64) {
	bytecode.SetNextObj(obj, vm.objects)
	vm.objects = obj
	vm.bytesAllocated += cost
}

// maybeCollect runs the collector if the allocator is in stress mode or
// the byte count has crossed the threshold set by the previous
// collection. Called before any new object is constructed.
func (vm *VM) maybeCollect() {
	if vm.StressGC || vm.bytesAllocated > vm.nextGC {
		vm.collectGarbage()
	}
}

// InternString returns the canonical *String for s, allocating and
// interning a new one only if the table doesn't already hold a match.
// Satisfies compiler.Allocator.
func (vm *VM) InternString(s string) *bytecode.String {
	hash := bytecode.HashBytes(s)
	if found := vm.strings.FindString(s, hash); found != nil {
		return found
	}
	vm.maybeCollect()
	str := &bytecode.String{Chars: s, Hash: hash}
	vm.link(str, costString+int64(len(s)))
	vm.strings.Set(str, bytecode.Nil)
	return str
}

// NewFunction returns a fresh, empty Function ready for the compiler to
// fill in. Satisfies compiler.Allocator.
func (vm *VM) NewFunction() *bytecode.Function {
	vm.maybeCollect()
	fn := &bytecode.Function{Chunk: bytecode.NewChunk()}
	vm.link(fn, costFunction)
	return fn
}

// BeginCompile / EndCompile register and unregister the in-progress
// compiler as a GC root source. Satisfies compiler.Allocator.
func (vm *VM) BeginCompile(root compiler.CompilerRoots) { vm.compilerRoots = root }
func (vm *VM) EndCompile()                              { vm.compilerRoots = nil }

func (vm *VM) newClosure(fn *bytecode.Function) *bytecode.Closure {
	vm.maybeCollect()
	cl := &bytecode.Closure{
		Function: fn,
		Upvalues: make([]*bytecode.Upvalue, fn.UpvalueCount),
	}
	vm.link(cl, costClosure)
	return cl
}

func (vm *VM) newUpvalue(slot *bytecode.Value) *bytecode.Upvalue {
	vm.maybeCollect()
	up := &bytecode.Upvalue{Location: slot}
	vm.link(up, costUpvalue)
	return up
}

func (vm *VM) newClass(name *bytecode.String) *bytecode.Class {
	vm.maybeCollect()
	class := &bytecode.Class{Name: name, Methods: bytecode.NewTable()}
	vm.link(class, costClass)
	return class
}

func (vm *VM) newInstance(class *bytecode.Class) *bytecode.Instance {
	vm.maybeCollect()
	inst := &bytecode.Instance{Class: class, Fields: bytecode.NewTable()}
	vm.link(inst, costInstance)
	return inst
}

func (vm *VM) newBoundMethod(receiver bytecode.Value, method *bytecode.Closure) *bytecode.BoundMethod {
	vm.maybeCollect()
	bm := &bytecode.BoundMethod{Receiver: receiver, Method: method}
	vm.link(bm, costBoundMethod)
	return bm
}

func (vm *VM) newNative(name string, fn bytecode.NativeFn) *bytecode.Native {
	vm.maybeCollect()
	n := &bytecode.Native{Name: name, Fn: fn}
	vm.link(n, costNative)
	return n
}
