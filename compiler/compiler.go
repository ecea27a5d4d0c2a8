// Package compiler implements the single-pass Pratt compiler: it scans
// source text with the lexer and emits bytecode directly into a
// *bytecode.Chunk, with no intermediate syntax tree. One Compiler
// instance compiles one source unit (a script or, recursively, a single
// function/method body) into a *bytecode.Function.
package compiler

import (
	"fmt"

	"github.com/quill-lang/quill/bytecode"
	"github.com/quill-lang/quill/lexer"
)

const maxLocals = 256
const maxUpvalues = 256
const maxArity = 255

// CompilerRoots is implemented by *Compiler and consulted by the
// collector while a compile is in progress, so that functions under
// construction (and everything their constant pools reach) are treated
// as reachable even though nothing in the VM's own state points at them
// yet.
type CompilerRoots interface {
	MarkRoots(mark func(bytecode.Obj))
}

// Allocator is the subset of the VM's heap that the compiler needs:
// string interning for identifiers and literals, fresh function objects
// for each compiled body, and registration as a GC root source for the
// duration of a Compile call. *vm.VM satisfies this interface
// structurally; the compiler package does not import vm to avoid a
// dependency cycle.
type Allocator interface {
	InternString(s string) *bytecode.String
	NewFunction() *bytecode.Function
	BeginCompile(root CompilerRoots)
	EndCompile()
}

type funcType int

const (
	typeFunction funcType = iota
	typeScript
	typeMethod
	typeInitializer
)

type localVar struct {
	name       string
	depth      int // -1 while uninitialized
	isCaptured bool
}

type upvalueRef struct {
	index   uint8
	isLocal bool
}

// funcCompiler is the compiler state for one function body, including
// the synthetic top-level script. funcCompilers form a stack linked by
// enclosing; the innermost is the one currently being parsed into.
type funcCompiler struct {
	enclosing  *funcCompiler
	function   *bytecode.Function
	fnType     funcType
	locals     []localVar
	scopeDepth int
	upvalues   []upvalueRef
}

type classCompiler struct {
	enclosing     *classCompiler
	hasSuperclass bool
}

// Compiler drives one top-level Compile call: a single lexer stream, one
// token of lookahead, and the stack of function and class compiler
// frames that the grammar pushes and pops as it descends into nested
// function and method bodies.
type Compiler struct {
	alloc Allocator
	lex   *lexer.Lexer

	previous lexer.Token
	current  lexer.Token

	hadError  bool
	panicMode bool
	errs      []*Error

	fn    *funcCompiler
	class *classCompiler

	initString *bytecode.String
}

// Compile scans source and compiles it to a *bytecode.Function
// representing the implicit top-level script. On any compile error it
// returns nil and a *CompileError carrying every diagnostic recorded
// before synchronization gave up.
func Compile(source []byte, alloc Allocator) (*bytecode.Function, error) {
	c := &Compiler{
		alloc:      alloc,
		lex:        lexer.New(source),
		initString: alloc.InternString("init"),
	}
	c.fn = &funcCompiler{fnType: typeScript, function: alloc.NewFunction()}
	c.fn.locals = append(c.fn.locals, localVar{name: "", depth: 0})

	alloc.BeginCompile(c)
	defer alloc.EndCompile()

	c.advance()
	for !c.match(lexer.EOF) {
		c.declaration()
	}
	fn := c.endFunction()

	if c.hadError {
		return nil, &CompileError{Errors: c.errs}
	}
	return fn, nil
}

// MarkRoots marks the function under construction at every level of the
// enclosing chain, satisfying CompilerRoots.
func (c *Compiler) MarkRoots(mark func(bytecode.Obj)) {
	for fc := c.fn; fc != nil; fc = fc.enclosing {
		mark(fc.function)
	}
}

// ---------------------------------------------------------------------------
// Token stream
// ---------------------------------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.lex.Next()
		if c.current.Kind != lexer.Error {
			break
		}
		c.errorAtCurrent(c.current.Message)
	}
}

func (c *Compiler) check(kind lexer.Kind) bool {
	return c.current.Kind == kind
}

func (c *Compiler) match(kind lexer.Kind) bool {
	if !c.check(kind) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(kind lexer.Kind, message string) {
	if c.current.Kind == kind {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

func (c *Compiler) errorAtCurrent(message string) {
	c.errorAt(c.current, message)
}

func (c *Compiler) error(message string) {
	c.errorAt(c.previous, message)
}

func (c *Compiler) errorAt(tok lexer.Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true

	where := ""
	switch tok.Kind {
	case lexer.EOF:
		where = " at end"
	case lexer.Error:
		// lexer already describes the problem in message
	default:
		where = fmt.Sprintf(" at '%s'", lexeme(tok))
	}
	c.errs = append(c.errs, &Error{Line: tok.Line, Where: where, Message: message})
}

// synchronize discards tokens until it reaches a likely statement
// boundary, so one error does not cascade into a wall of follow-on
// errors.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Kind != lexer.EOF {
		if c.previous.Kind == lexer.Semicolon {
			return
		}
		switch c.current.Kind {
		case lexer.Class, lexer.Fun, lexer.Var, lexer.For,
			lexer.If, lexer.While, lexer.Print, lexer.Return:
			return
		}
		c.advance()
	}
}

// ---------------------------------------------------------------------------
// Bytecode emission
// ---------------------------------------------------------------------------

func (c *Compiler) chunk() *bytecode.Chunk { return c.fn.function.Chunk }

func (c *Compiler) emitByte(b byte) {
	c.chunk().Write(b, c.previous.Line)
}

func (c *Compiler) emitOp(op bytecode.Op) {
	c.emitByte(byte(op))
}

func (c *Compiler) emitOps(op1, op2 bytecode.Op) {
	c.emitOp(op1)
	c.emitOp(op2)
}

func (c *Compiler) emitConstant(v bytecode.Value) {
	c.emitOp(bytecode.OpConstant)
	c.emitByte(c.makeConstant(v))
}

func (c *Compiler) makeConstant(v bytecode.Value) byte {
	idx := c.chunk().AddConstant(v)
	if idx > 255 {
		c.error("too many constants in one chunk")
		return 0
	}
	return byte(idx)
}

// identifierConstant interns name and adds it to the current chunk's
// constant pool, returning the constant index used by every opcode that
// names a global, field, method, or super target.
func (c *Compiler) identifierConstant(name string) byte {
	return c.makeConstant(bytecode.FromObj(c.alloc.InternString(name)))
}

// emitJump writes a two-byte placeholder offset after op and returns the
// offset of the first placeholder byte, for a later patchJump.
func (c *Compiler) emitJump(op bytecode.Op) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.chunk().Code) - offset - 2
	if jump > 0xffff {
		c.error("too much code to jump over")
		return
	}
	c.chunk().Code[offset] = byte((jump >> 8) & 0xff)
	c.chunk().Code[offset+1] = byte(jump & 0xff)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(bytecode.OpLoop)
	offset := len(c.chunk().Code) - loopStart + 2
	if offset > 0xffff {
		c.error("loop body too large")
		return
	}
	c.emitByte(byte((offset >> 8) & 0xff))
	c.emitByte(byte(offset & 0xff))
}

func (c *Compiler) emitReturn() {
	if c.fn.fnType == typeInitializer {
		// init implicitly returns the receiver in slot 0.
		c.emitOp(bytecode.OpGetLocal)
		c.emitByte(0)
	} else {
		c.emitOp(bytecode.OpNil)
	}
	c.emitOp(bytecode.OpReturn)
}

func (c *Compiler) endFunction() *bytecode.Function {
	c.emitReturn()
	return c.fn.function
}

// ---------------------------------------------------------------------------
// Scopes and locals
// ---------------------------------------------------------------------------

func (c *Compiler) beginScope() { c.fn.scopeDepth++ }

func (c *Compiler) endScope() {
	c.fn.scopeDepth--
	locals := c.fn.locals
	for len(locals) > 0 && locals[len(locals)-1].depth > c.fn.scopeDepth {
		last := locals[len(locals)-1]
		if last.isCaptured {
			c.emitOp(bytecode.OpCloseUpvalue)
		} else {
			c.emitOp(bytecode.OpPop)
		}
		locals = locals[:len(locals)-1]
	}
	c.fn.locals = locals
}

func (c *Compiler) addLocal(name string) {
	if len(c.fn.locals) >= maxLocals {
		c.error("too many local variables in function")
		return
	}
	c.fn.locals = append(c.fn.locals, localVar{name: name, depth: -1})
}

func (c *Compiler) declareVariable(name string) {
	if c.fn.scopeDepth == 0 {
		return
	}
	for i := len(c.fn.locals) - 1; i >= 0; i-- {
		l := c.fn.locals[i]
		if l.depth != -1 && l.depth < c.fn.scopeDepth {
			break
		}
		if l.name == name {
			c.error("already a variable with this name in this scope")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) markInitialized() {
	if c.fn.scopeDepth == 0 {
		return
	}
	c.fn.locals[len(c.fn.locals)-1].depth = c.fn.scopeDepth
}

// defineVariable finishes a declaration begun by declareVariable: a
// global emits DEFINE_GLOBAL, a local is simply promoted to the current
// scope depth (its value is already sitting in its stack slot).
func (c *Compiler) defineVariable(name string) {
	if c.fn.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOp(bytecode.OpDefineGlobal)
	c.emitByte(c.identifierConstant(name))
}

func resolveLocal(fc *funcCompiler, name string) int {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].name == name {
			if fc.locals[i].depth == -1 {
				return -2 // sentinel: referenced in its own initializer
			}
			return i
		}
	}
	return -1
}

// resolveUpvalue resolves name as a captured variable of an enclosing
// function, recursively: a hit as a local in the immediately enclosing
// function marks that local captured; a hit as an upvalue there is
// chained through without re-marking. Upvalues are deduplicated by
// (index, isLocal) so repeated references to the same captured variable
// share one upvalue slot.
func (c *Compiler) resolveUpvalue(fc *funcCompiler, name string) int {
	if fc.enclosing == nil {
		return -1
	}
	if local := resolveLocal(fc.enclosing, name); local == -2 {
		c.error("can't read local variable in its own initializer")
		return -1
	} else if local != -1 {
		fc.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(fc, uint8(local), true)
	}
	if up := c.resolveUpvalue(fc.enclosing, name); up != -1 {
		return c.addUpvalue(fc, uint8(up), false)
	}
	return -1
}

func (c *Compiler) addUpvalue(fc *funcCompiler, index uint8, isLocal bool) int {
	for i, u := range fc.upvalues {
		if u.index == index && u.isLocal == isLocal {
			return i
		}
	}
	if len(fc.upvalues) >= maxUpvalues {
		c.error("too many closure variables in function")
		return 0
	}
	fc.upvalues = append(fc.upvalues, upvalueRef{index: index, isLocal: isLocal})
	fc.function.UpvalueCount = len(fc.upvalues)
	return len(fc.upvalues) - 1
}
