package bytecode

import "testing"

func TestChunkWriteAndConstants(t *testing.T) {
	c := NewChunk()
	idx := c.AddConstant(Number(42))
	c.Write(byte(OpConstant), 1)
	c.Write(byte(idx), 1)
	c.Write(byte(OpReturn), 2)

	if len(c.Code) != 3 {
		t.Fatalf("expected 3 bytes, got %d", len(c.Code))
	}
	if c.LineAt(0) != 1 || c.LineAt(1) != 1 {
		t.Errorf("expected line 1 for constant instruction")
	}
	if c.LineAt(2) != 2 {
		t.Errorf("expected line 2 for return instruction")
	}
}

func TestLineAtRunLength(t *testing.T) {
	c := NewChunk()
	for i := 0; i < 5; i++ {
		c.Write(byte(OpPop), 1)
	}
	for i := 0; i < 5; i++ {
		c.Write(byte(OpPop), 2)
	}
	if c.LineAt(0) != 1 || c.LineAt(4) != 1 {
		t.Errorf("offsets 0-4 should be line 1")
	}
	if c.LineAt(5) != 2 || c.LineAt(9) != 2 {
		t.Errorf("offsets 5-9 should be line 2")
	}
}

func TestDisassembleDoesNotPanic(t *testing.T) {
	c := NewChunk()
	idx := c.AddConstant(Number(1))
	c.Write(byte(OpConstant), 1)
	c.Write(byte(idx), 1)
	c.Write(byte(OpReturn), 1)
	out := c.Disassemble("test")
	if out == "" {
		t.Fatal("expected non-empty disassembly")
	}
}
