package compiler

import (
	"github.com/quill-lang/quill/bytecode"
	"github.com/quill-lang/quill/lexer"
)

func (c *Compiler) declaration() {
	switch {
	case c.match(lexer.Class):
		c.classDeclaration()
	case c.match(lexer.Fun):
		c.funDeclaration()
	case c.match(lexer.Var):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) statement() {
	switch {
	case c.match(lexer.Print):
		c.printStatement()
	case c.match(lexer.For):
		c.forStatement()
	case c.match(lexer.If):
		c.ifStatement()
	case c.match(lexer.Return):
		c.returnStatement()
	case c.match(lexer.While):
		c.whileStatement()
	case c.match(lexer.LeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(lexer.RightBrace) && !c.check(lexer.EOF) {
		c.declaration()
	}
	c.consume(lexer.RightBrace, "expect '}' after block")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(lexer.Semicolon, "expect ';' after value")
	c.emitOp(bytecode.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(lexer.Semicolon, "expect ';' after expression")
	c.emitOp(bytecode.OpPop)
}

func (c *Compiler) returnStatement() {
	if c.fn.fnType == typeScript {
		c.error("can't return from top-level code")
	}
	if c.match(lexer.Semicolon) {
		c.emitReturn()
		return
	}
	if c.fn.fnType == typeInitializer {
		c.error("can't return a value from an initializer")
	}
	c.expression()
	c.consume(lexer.Semicolon, "expect ';' after return value")
	c.emitOp(bytecode.OpReturn)
}

func (c *Compiler) ifStatement() {
	c.consume(lexer.LeftParen, "expect '(' after 'if'")
	c.expression()
	c.consume(lexer.RightParen, "expect ')' after condition")

	thenJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.statement()

	elseJump := c.emitJump(bytecode.OpJump)
	c.patchJump(thenJump)
	c.emitOp(bytecode.OpPop)

	if c.match(lexer.Else) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.chunk().Code)
	c.consume(lexer.LeftParen, "expect '(' after 'while'")
	c.expression()
	c.consume(lexer.RightParen, "expect ')' after condition")

	exitJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(bytecode.OpPop)
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(lexer.LeftParen, "expect '(' after 'for'")

	switch {
	case c.match(lexer.Semicolon):
		// no initializer
	case c.match(lexer.Var):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.chunk().Code)
	exitJump := -1
	if !c.match(lexer.Semicolon) {
		c.expression()
		c.consume(lexer.Semicolon, "expect ';' after loop condition")
		exitJump = c.emitJump(bytecode.OpJumpIfFalse)
		c.emitOp(bytecode.OpPop)
	}

	if !c.match(lexer.RightParen) {
		bodyJump := c.emitJump(bytecode.OpJump)
		incrementStart := len(c.chunk().Code)
		c.expression()
		c.emitOp(bytecode.OpPop)
		c.consume(lexer.RightParen, "expect ')' after for clauses")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(bytecode.OpPop)
	}
	c.endScope()
}

func (c *Compiler) varDeclaration() {
	c.consume(lexer.Identifier, "expect variable name")
	name := lexeme(c.previous)
	c.declareVariable(name)

	if c.match(lexer.Equal) {
		c.expression()
	} else {
		c.emitOp(bytecode.OpNil)
	}
	c.consume(lexer.Semicolon, "expect ';' after variable declaration")
	c.defineVariable(name)
}

func (c *Compiler) funDeclaration() {
	c.consume(lexer.Identifier, "expect function name")
	name := lexeme(c.previous)
	c.declareVariable(name)
	c.markInitialized()
	c.function(typeFunction, name)
	c.defineVariable(name)
}

// function compiles one function or method body: a fresh funcCompiler
// frame, parameter locals, the body block, then (back in the enclosing
// frame) a CLOSURE instruction carrying the upvalue capture pairs the
// body's free-variable references resolved to.
func (c *Compiler) function(ft funcType, name string) {
	enclosingFn := c.fn
	fc := &funcCompiler{enclosing: enclosingFn, fnType: ft}
	fc.function = c.alloc.NewFunction()
	fc.function.Name = c.alloc.InternString(name)
	// Slot 0 is reserved for the receiver (methods/initializers) or left
	// anonymous (plain functions), matching the calling convention that
	// always passes the callee/receiver there.
	receiverName := ""
	if ft == typeMethod || ft == typeInitializer {
		receiverName = "this"
	}
	fc.locals = append(fc.locals, localVar{name: receiverName, depth: 0})
	c.fn = fc

	c.beginScope()
	c.consume(lexer.LeftParen, "expect '(' after function name")
	if !c.check(lexer.RightParen) {
		for {
			if fc.function.Arity == maxArity {
				c.error("can't have more than 255 parameters")
			}
			fc.function.Arity++
			c.consume(lexer.Identifier, "expect parameter name")
			paramName := lexeme(c.previous)
			c.declareVariable(paramName)
			c.defineVariable(paramName)
			if !c.match(lexer.Comma) {
				break
			}
		}
	}
	c.consume(lexer.RightParen, "expect ')' after parameters")
	c.consume(lexer.LeftBrace, "expect '{' before function body")
	c.block()

	fn := c.endFunction()
	upvalues := fc.upvalues
	c.fn = enclosingFn

	c.emitOp(bytecode.OpClosure)
	c.emitByte(c.makeConstant(bytecode.FromObj(fn)))
	for _, up := range upvalues {
		if up.isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(up.index)
	}
}

func (c *Compiler) classDeclaration() {
	c.consume(lexer.Identifier, "expect class name")
	className := lexeme(c.previous)
	nameConstant := c.identifierConstant(className)
	c.declareVariable(className)

	c.emitOp(bytecode.OpClass)
	c.emitByte(nameConstant)
	c.defineVariable(className)

	cc := &classCompiler{enclosing: c.class}
	c.class = cc

	if c.match(lexer.Less) {
		c.consume(lexer.Identifier, "expect superclass name")
		c.variable(false)
		if lexeme(c.previous) == className {
			c.error("a class can't inherit from itself")
		}

		c.beginScope()
		c.addLocal("super")
		c.defineVariableLocal()

		c.namedVariable(className, false)
		c.emitOp(bytecode.OpInherit)
		cc.hasSuperclass = true
	}

	c.namedVariable(className, false)
	c.consume(lexer.LeftBrace, "expect '{' before class body")
	for !c.check(lexer.RightBrace) && !c.check(lexer.EOF) {
		c.method()
	}
	c.consume(lexer.RightBrace, "expect '}' after class body")
	c.emitOp(bytecode.OpPop)

	if cc.hasSuperclass {
		c.endScope()
	}
	c.class = cc.enclosing
}

// defineVariableLocal finishes declaring the synthetic `super` local:
// like defineVariable but without re-deriving the name, since `super`
// was declared directly via addLocal rather than declareVariable.
func (c *Compiler) defineVariableLocal() {
	c.markInitialized()
}

func (c *Compiler) method() {
	c.consume(lexer.Identifier, "expect method name")
	name := lexeme(c.previous)
	nameConstant := c.identifierConstant(name)

	ft := typeMethod
	if c.initString.Chars == name {
		ft = typeInitializer
	}
	c.function(ft, name)
	c.emitOp(bytecode.OpMethod)
	c.emitByte(nameConstant)
}
