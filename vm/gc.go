package vm

import "github.com/quill-lang/quill/bytecode"

const gcGrowthFactor = 2

// collectGarbage runs one full mark-sweep cycle: mark every root, trace
// the resulting gray worklist to blacken everything reachable, drop
// intern-table entries for strings that turned out unreachable (the
// table holds weak references, so it is never itself a root), then
// sweep the object list and free whatever is still white.
func (vm *VM) collectGarbage() {
	vm.markRoots()
	vm.traceReferences()
	vm.removeWhiteStrings()
	vm.sweep()
	vm.nextGC = vm.bytesAllocated * gcGrowthFactor
}

func (vm *VM) markRoots() {
	for i := 0; i < vm.stackTop; i++ {
		vm.markValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		vm.markObject(vm.frames[i].closure)
	}
	for up := vm.openUpvalues; up != nil; up = up.NextOpen {
		vm.markObject(up)
	}
	vm.markTable(vm.globals)
	vm.markObject(vm.initString)
	if vm.compilerRoots != nil {
		vm.compilerRoots.MarkRoots(vm.markObject)
	}
}

func (vm *VM) markValue(v bytecode.Value) {
	if v.IsObj() {
		vm.markObject(v.AsObj())
	}
}

// markObject marks o gray: it is not safe to call blacken() on it here,
// since that may recurse arbitrarily deep through the object graph —
// instead it is pushed on the gray stack and traceReferences drains it
// iteratively.
func (vm *VM) markObject(o bytecode.Obj) {
	if o == nil || bytecode.IsMarked(o) {
		return
	}
	bytecode.SetMarked(o, true)
	vm.grayStack = append(vm.grayStack, o)
}

func (vm *VM) markTable(t *bytecode.Table) {
	t.Each(func(key *bytecode.String, value bytecode.Value) {
		vm.markObject(key)
		vm.markValue(value)
	})
}

func (vm *VM) traceReferences() {
	for len(vm.grayStack) > 0 {
		n := len(vm.grayStack) - 1
		obj := vm.grayStack[n]
		vm.grayStack = vm.grayStack[:n]
		vm.blacken(obj)
	}
}

// blacken marks every object obj directly owns, turning obj from gray
// to black (implicitly: everything it points at is now gray or black
// too).
func (vm *VM) blacken(obj bytecode.Obj) {
	switch o := obj.(type) {
	case *bytecode.String:
		// no outgoing references
	case *bytecode.Native:
		// no outgoing references
	case *bytecode.Upvalue:
		vm.markValue(o.Closed)
	case *bytecode.Function:
		// Name is nil for the implicit top-level script; markObject would
		// panic on a nil *String boxed in a non-nil Obj interface value.
		if o.Name != nil {
			vm.markObject(o.Name)
		}
		for _, c := range o.Chunk.Constants {
			vm.markValue(c)
		}
	case *bytecode.Closure:
		vm.markObject(o.Function)
		for _, up := range o.Upvalues {
			vm.markObject(up)
		}
	case *bytecode.Class:
		vm.markObject(o.Name)
		vm.markTable(o.Methods)
	case *bytecode.Instance:
		vm.markObject(o.Class)
		vm.markTable(o.Fields)
	case *bytecode.BoundMethod:
		vm.markValue(o.Receiver)
		vm.markObject(o.Method)
	}
}

func (vm *VM) removeWhiteStrings() {
	vm.strings.RemoveUnmarked()
}

// sweep walks the object list once, unlinking and discarding anything
// left unmarked and clearing the mark bit on everything that survives,
// ready for the next cycle.
func (vm *VM) sweep() {
	var prev bytecode.Obj
	obj := vm.objects
	for obj != nil {
		if bytecode.IsMarked(obj) {
			bytecode.SetMarked(obj, false)
			prev = obj
			obj = bytecode.NextObj(obj)
			continue
		}
		unreached := obj
		obj = bytecode.NextObj(obj)
		if prev != nil {
			bytecode.SetNextObj(prev, obj)
		} else {
			vm.objects = obj
		}
		vm.bytesAllocated -= objectCost(unreached)
	}
}

func objectCost(o bytecode.Obj) int64 {
	switch t := o.(type) {
	case *bytecode.String:
		return costString + int64(len(t.Chars))
	case *bytecode.Function:
		return costFunction
	case *bytecode.Native:
		return costNative
	case *bytecode.Closure:
		return costClosure
	case *bytecode.Upvalue:
		return costUpvalue
	case *bytecode.Class:
		return costClass
	case *bytecode.Instance:
		return costInstance
	case *bytecode.BoundMethod:
		return costBoundMethod
	default:
		return costHeader
	}
}
