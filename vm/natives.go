package vm

import (
	"fmt"
	"time"

	"github.com/quill-lang/quill/bytecode"
)

// defineNatives registers the small set of built-in functions available
// in every global scope, the same way a hosting application would
// extend the language with its own natives.
func (vm *VM) defineNatives() {
	vm.defineNative("clock", nativeClock)
	vm.defineNative("type", vm.nativeType())
}

func (vm *VM) defineNative(name string, fn bytecode.NativeFn) {
	native := vm.newNative(name, fn)
	vm.globals.Set(vm.InternString(name), bytecode.FromObj(native))
}

func nativeClock(args []bytecode.Value) (bytecode.Value, error) {
	if len(args) != 0 {
		return bytecode.Nil, fmt.Errorf("clock() takes no arguments")
	}
	return bytecode.Number(float64(time.Now().UnixNano()) / 1e9), nil
}

// nativeType returns a closure over vm so it can intern its tag strings
// through the VM's own string table like any other allocation.
func (vm *VM) nativeType() bytecode.NativeFn {
	return func(args []bytecode.Value) (bytecode.Value, error) {
		if len(args) != 1 {
			return bytecode.Nil, fmt.Errorf("type() takes exactly one argument")
		}
		v := args[0]
		switch {
		case v.IsNil():
			return bytecode.FromObj(vm.InternString("nil")), nil
		case v.IsBool():
			return bytecode.FromObj(vm.InternString("bool")), nil
		case v.IsNumber():
			return bytecode.FromObj(vm.InternString("number")), nil
		case v.Is(bytecode.ObjStringType):
			return bytecode.FromObj(vm.InternString("string")), nil
		case v.Is(bytecode.ObjInstanceType):
			return bytecode.FromObj(v.AsObj().(*bytecode.Instance).Class.Name), nil
		default:
			return bytecode.FromObj(vm.InternString("function")), nil
		}
	}
}
