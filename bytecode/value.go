// Package bytecode holds the types shared by the compiler and the VM: the
// dynamic Value representation, the heap object model, the bytecode Chunk
// format, the opcode set, and the string-keyed hash table used for
// interning, globals, methods, and fields. They are bundled into one
// package because they are mutually recursive — a Function owns a Chunk
// whose constant pool holds Values, and a Value can hold a pointer to any
// heap Object.
package bytecode

import (
	"math"
	"strconv"
)

// Kind discriminates the variant held by a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindObj
)

// Value is a dynamic value: nil, a boolean, a double-precision number, or
// a pointer to a heap Object. This is the tagged-variant representation
// described as an alternative to NaN-boxing; both are required to behave
// identically at the language level.
type Value struct {
	kind   Kind
	b      bool
	n      float64
	obj    Obj
}

// Nil is the sole nil value.
var Nil = Value{kind: KindNil}

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float64.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// FromObj wraps a heap object pointer.
func FromObj(o Obj) Value { return Value{kind: KindObj, obj: o} }

func (v Value) IsNil() bool    { return v.kind == KindNil }
func (v Value) IsBool() bool   { return v.kind == KindBool }
func (v Value) IsNumber() bool { return v.kind == KindNumber }
func (v Value) IsObj() bool    { return v.kind == KindObj }

func (v Value) AsBool() bool    { return v.b }
func (v Value) AsNumber() float64 { return v.n }
func (v Value) AsObj() Obj     { return v.obj }

// Is reports whether v's heap object has the given type tag. It is false
// for non-object values.
func (v Value) Is(t ObjType) bool {
	return v.kind == KindObj && v.obj != nil && v.obj.Type() == t
}

// Falsy implements the language's truthiness rule: nil and boolean false
// are falsy, everything else (including 0 and "") is truthy.
func (v Value) Falsy() bool {
	if v.IsNil() {
		return true
	}
	if v.IsBool() {
		return !v.AsBool()
	}
	return false
}

func (v Value) Truthy() bool { return !v.Falsy() }

// Equal implements the language's total equality: values of different
// kinds (or different object types) are never equal, object equality is
// pointer identity, and NaN is never equal to itself.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n // NaN != NaN falls out of IEEE-754 ==
	case KindObj:
		if as, ok := a.obj.(*String); ok {
			if bs, ok := b.obj.(*String); ok {
				return as == bs // interning makes pointer equality sufficient
			}
			return false
		}
		return a.obj == b.obj
	default:
		return false
	}
}

// Print renders v the way the `print` statement and the REPL do.
func Print(v Value) string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.n)
	case KindObj:
		return printObj(v.obj)
	default:
		return "?"
	}
}

func formatNumber(n float64) string {
	if math.IsNaN(n) {
		return "nan"
	}
	if math.IsInf(n, 1) {
		return "inf"
	}
	if math.IsInf(n, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func printObj(o Obj) string {
	switch t := o.(type) {
	case *String:
		return t.Chars
	case *Function:
		if t.Name == nil {
			return "<script>"
		}
		return "<fn " + t.Name.Chars + ">"
	case *Native:
		return "<native fn>"
	case *Closure:
		return printObj(t.Function)
	case *Class:
		return t.Name.Chars
	case *Instance:
		return t.Class.Name.Chars + " instance"
	case *BoundMethod:
		return printObj(t.Method.Function)
	case *Upvalue:
		return "<upvalue>"
	default:
		return "<obj>"
	}
}
