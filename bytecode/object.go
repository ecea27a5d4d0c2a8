package bytecode

// ObjType tags the variant of a heap Object.
type ObjType uint8

const (
	ObjStringType ObjType = iota
	ObjFunctionType
	ObjNativeType
	ObjClosureType
	ObjUpvalueType
	ObjClassType
	ObjInstanceType
	ObjBoundMethodType
)

// Header is the common prefix every heap object carries: a mark bit for
// the collector and the intrusive next-in-allocation-list pointer. It is
// embedded by every concrete object type rather than used as a base
// class — Go has no inheritance, and the spec's own design notes prefer a
// tagged sum of variants over the "base header" idiom some source
// dialects use.
type Header struct {
	Marked bool
	Next   Obj
}

// Obj is satisfied by every heap object variant. The collector enumerates
// the VM's object list purely through this interface.
type Obj interface {
	Type() ObjType
	objHeader() *Header
}

func (h *Header) objHeader() *Header { return h }

// IsMarked / SetMarked / NextObj / SetNext give gc.go uniform access to
// any Obj's header without a type switch.
func IsMarked(o Obj) bool     { return o.objHeader().Marked }
func SetMarked(o Obj, m bool) { o.objHeader().Marked = m }
func NextObj(o Obj) Obj       { return o.objHeader().Next }
func SetNextObj(o Obj, n Obj) { o.objHeader().Next = n }

// String is an interned, immutable byte string. Two String objects with
// equal bytes are never simultaneously live; see Table's intern support.
type String struct {
	Header
	Chars string
	Hash  uint32
}

func (s *String) Type() ObjType { return ObjStringType }

// HashBytes computes the FNV-1a hash used for interning and table
// probing. No case or encoding normalization is performed.
func HashBytes(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// Function is a compiled function body: its arity, how many upvalues its
// closures must capture, the chunk of bytecode produced for it, and an
// optional name (nil for the implicit top-level script).
type Function struct {
	Header
	Arity        int
	UpvalueCount int
	Chunk        *Chunk
	Name         *String
}

func (f *Function) Type() ObjType { return ObjFunctionType }

// NativeFn is the Go function signature backing a native (built-in)
// callable. It receives the arguments slice and returns the call's
// result plus an error for a language-level runtime error.
type NativeFn func(args []Value) (Value, error)

// Native wraps a Go function so it can be called like any other Quill
// callable.
type Native struct {
	Header
	Name string
	Fn   NativeFn
}

func (n *Native) Type() ObjType { return ObjNativeType }

// Upvalue is an indirect reference to a variable. While Location points
// into a live VM stack slot the upvalue is "open"; Close copies the
// current value into Closed and repoints Location at it.
type Upvalue struct {
	Header
	Location *Value
	Closed   Value
	NextOpen *Upvalue // next entry in the VM's open-upvalue list; open only
}

func (u *Upvalue) Type() ObjType { return ObjUpvalueType }

func (u *Upvalue) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
}

// Closure pairs a Function with the upvalues it captured at creation.
type Closure struct {
	Header
	Function *Function
	Upvalues []*Upvalue
}

func (c *Closure) Type() ObjType { return ObjClosureType }

// Class is a runtime class: a name and a method table mapping interned
// method-name strings to closures.
type Class struct {
	Header
	Name    *String
	Methods *Table
}

func (c *Class) Type() ObjType { return ObjClassType }

// Instance is an object created from a Class, with its own field table.
type Instance struct {
	Header
	Class  *Class
	Fields *Table
}

func (i *Instance) Type() ObjType { return ObjInstanceType }

// BoundMethod pairs a receiver with one of its class's closures so it can
// be called without the receiver on the stack underneath it.
type BoundMethod struct {
	Header
	Receiver Value
	Method   *Closure
}

func (b *BoundMethod) Type() ObjType { return ObjBoundMethodType }
