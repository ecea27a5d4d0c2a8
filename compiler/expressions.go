package compiler

import (
	"strconv"

	"github.com/quill-lang/quill/bytecode"
	"github.com/quill-lang/quill/lexer"
)

type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . ()
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules map[lexer.Kind]parseRule

func init() {
	rules = map[lexer.Kind]parseRule{
		lexer.LeftParen:    {prefix: (*Compiler).grouping, infix: (*Compiler).call, precedence: precCall},
		lexer.Dot:          {infix: (*Compiler).dot, precedence: precCall},
		lexer.Minus:        {prefix: (*Compiler).unary, infix: (*Compiler).binary, precedence: precTerm},
		lexer.Plus:         {infix: (*Compiler).binary, precedence: precTerm},
		lexer.Slash:        {infix: (*Compiler).binary, precedence: precFactor},
		lexer.Star:         {infix: (*Compiler).binary, precedence: precFactor},
		lexer.Bang:         {prefix: (*Compiler).unary, precedence: precNone},
		lexer.BangEqual:    {infix: (*Compiler).binary, precedence: precEquality},
		lexer.EqualEqual:   {infix: (*Compiler).binary, precedence: precEquality},
		lexer.Greater:      {infix: (*Compiler).binary, precedence: precComparison},
		lexer.GreaterEqual: {infix: (*Compiler).binary, precedence: precComparison},
		lexer.Less:         {infix: (*Compiler).binary, precedence: precComparison},
		lexer.LessEqual:    {infix: (*Compiler).binary, precedence: precComparison},
		lexer.Identifier:   {prefix: (*Compiler).variableExpr, precedence: precNone},
		lexer.String:       {prefix: (*Compiler).stringLit, precedence: precNone},
		lexer.Number:       {prefix: (*Compiler).numberLit, precedence: precNone},
		lexer.And:          {infix: (*Compiler).and_, precedence: precAnd},
		lexer.Or:           {infix: (*Compiler).or_, precedence: precOr},
		lexer.False:        {prefix: (*Compiler).literal, precedence: precNone},
		lexer.Nil:          {prefix: (*Compiler).literal, precedence: precNone},
		lexer.True:         {prefix: (*Compiler).literal, precedence: precNone},
		lexer.This:         {prefix: (*Compiler).this_, precedence: precNone},
		lexer.Super:        {prefix: (*Compiler).super_, precedence: precNone},
	}
}

func (c *Compiler) getRule(kind lexer.Kind) parseRule {
	return rules[kind]
}

func (c *Compiler) expression() {
	c.parsePrecedence(precAssignment)
}

// parsePrecedence is the Pratt driver: it consumes one token, runs its
// prefix parser, then keeps consuming and running infix parsers as long
// as the next token's precedence is at least prec. Passing canAssign
// down (true only at precAssignment) is how assignability threads
// through the recursion: a nested call at a higher precedence can never
// see canAssign true, so `a + b = c` cannot treat `b = c` as the target
// of an assignment.
func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	rule := c.getRule(c.previous.Kind)
	if rule.prefix == nil {
		c.error("expect expression")
		return
	}
	canAssign := prec <= precAssignment
	rule.prefix(c, canAssign)

	for prec <= c.getRule(c.current.Kind).precedence {
		c.advance()
		infix := c.getRule(c.previous.Kind).infix
		infix(c, canAssign)
	}
}

func (c *Compiler) grouping(_ bool) {
	c.expression()
	c.consume(lexer.RightParen, "expect ')' after expression")
}

func (c *Compiler) unary(_ bool) {
	op := c.previous.Kind
	c.parsePrecedence(precUnary)
	switch op {
	case lexer.Bang:
		c.emitOp(bytecode.OpNot)
	case lexer.Minus:
		c.emitOp(bytecode.OpNegate)
	}
}

func (c *Compiler) binary(_ bool) {
	op := c.previous.Kind
	rule := c.getRule(op)
	c.parsePrecedence(rule.precedence + 1)

	switch op {
	case lexer.BangEqual:
		c.emitOps(bytecode.OpEqual, bytecode.OpNot)
	case lexer.EqualEqual:
		c.emitOp(bytecode.OpEqual)
	case lexer.Greater:
		c.emitOp(bytecode.OpGreater)
	case lexer.GreaterEqual:
		c.emitOps(bytecode.OpLess, bytecode.OpNot)
	case lexer.Less:
		c.emitOp(bytecode.OpLess)
	case lexer.LessEqual:
		c.emitOps(bytecode.OpGreater, bytecode.OpNot)
	case lexer.Plus:
		c.emitOp(bytecode.OpAdd)
	case lexer.Minus:
		c.emitOp(bytecode.OpSubtract)
	case lexer.Star:
		c.emitOp(bytecode.OpMultiply)
	case lexer.Slash:
		c.emitOp(bytecode.OpDivide)
	}
}

func (c *Compiler) and_(_ bool) {
	endJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or_(_ bool) {
	elseJump := c.emitJump(bytecode.OpJumpIfFalse)
	endJump := c.emitJump(bytecode.OpJump)

	c.patchJump(elseJump)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func (c *Compiler) literal(_ bool) {
	switch c.previous.Kind {
	case lexer.False:
		c.emitOp(bytecode.OpFalse)
	case lexer.Nil:
		c.emitOp(bytecode.OpNil)
	case lexer.True:
		c.emitOp(bytecode.OpTrue)
	}
}

func (c *Compiler) numberLit(_ bool) {
	v, err := strconv.ParseFloat(lexeme(c.previous), 64)
	if err != nil {
		c.error("invalid number literal")
		return
	}
	c.emitConstant(bytecode.Number(v))
}

func (c *Compiler) stringLit(_ bool) {
	raw := c.previous.Lexeme
	// Strip the surrounding quotes; the dialect does no escape
	// processing, so the bytes between them are the string verbatim.
	s := string(raw[1 : len(raw)-1])
	c.emitConstant(bytecode.FromObj(c.alloc.InternString(s)))
}

func (c *Compiler) variableExpr(canAssign bool) {
	c.namedVariable(lexeme(c.previous), canAssign)
}

// variable is used where the grammar needs a bare identifier reference
// (the superclass name after `<`) without going through the full
// expression/precedence machinery.
func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(lexeme(c.previous), canAssign)
}

// namedVariable resolves name through the standard order — local in the
// current function, then upvalue in an enclosing one, then global — and
// emits the matching GET/SET opcode. A trailing '=' is only consumed as
// an assignment when canAssign is true.
func (c *Compiler) namedVariable(name string, canAssign bool) {
	var getOp, setOp bytecode.Op
	var arg int

	if local := resolveLocal(c.fn, name); local == -2 {
		c.error("can't read local variable in its own initializer")
		return
	} else if local != -1 {
		getOp, setOp, arg = bytecode.OpGetLocal, bytecode.OpSetLocal, local
	} else if up := c.resolveUpvalue(c.fn, name); up != -1 {
		getOp, setOp, arg = bytecode.OpGetUpvalue, bytecode.OpSetUpvalue, up
	} else {
		getOp, setOp, arg = bytecode.OpGetGlobal, bytecode.OpSetGlobal, int(c.identifierConstant(name))
	}

	if canAssign && c.match(lexer.Equal) {
		c.expression()
		c.emitOp(setOp)
		c.emitByte(byte(arg))
	} else {
		c.emitOp(getOp)
		c.emitByte(byte(arg))
	}
}

func (c *Compiler) this_(_ bool) {
	if c.class == nil {
		c.error("can't use 'this' outside of a class")
		return
	}
	c.variable(false)
}

func (c *Compiler) super_(_ bool) {
	if c.class == nil {
		c.error("can't use 'super' outside of a class")
	} else if !c.class.hasSuperclass {
		c.error("can't use 'super' in a class with no superclass")
	}

	c.consume(lexer.Dot, "expect '.' after 'super'")
	c.consume(lexer.Identifier, "expect superclass method name")
	name := c.identifierConstant(lexeme(c.previous))

	c.namedVariable("this", false)
	if c.match(lexer.LeftParen) {
		argc := c.argumentList()
		c.namedVariable("super", false)
		c.emitOp(bytecode.OpSuperInvoke)
		c.emitByte(name)
		c.emitByte(argc)
	} else {
		c.namedVariable("super", false)
		c.emitOp(bytecode.OpGetSuper)
		c.emitByte(name)
	}
}

func (c *Compiler) call(_ bool) {
	argc := c.argumentList()
	c.emitOp(bytecode.OpCall)
	c.emitByte(argc)
}

func (c *Compiler) dot(canAssign bool) {
	c.consume(lexer.Identifier, "expect property name after '.'")
	name := c.identifierConstant(lexeme(c.previous))

	switch {
	case canAssign && c.match(lexer.Equal):
		c.expression()
		c.emitOp(bytecode.OpSetProperty)
		c.emitByte(name)
	case c.match(lexer.LeftParen):
		argc := c.argumentList()
		c.emitOp(bytecode.OpInvoke)
		c.emitByte(name)
		c.emitByte(argc)
	default:
		c.emitOp(bytecode.OpGetProperty)
		c.emitByte(name)
	}
}

func (c *Compiler) argumentList() byte {
	var argc int
	if !c.check(lexer.RightParen) {
		for {
			c.expression()
			if argc == maxArity {
				c.error("can't have more than 255 arguments")
			}
			argc++
			if !c.match(lexer.Comma) {
				break
			}
		}
	}
	c.consume(lexer.RightParen, "expect ')' after arguments")
	return byte(argc)
}
