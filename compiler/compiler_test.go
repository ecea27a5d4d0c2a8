package compiler_test

import (
	"strconv"
	"strings"
	"testing"

	"github.com/quill-lang/quill/bytecode"
	"github.com/quill-lang/quill/compiler"
	"github.com/quill-lang/quill/vm"
)

func compile(t *testing.T, source string) string {
	t.Helper()
	fn, err := compiler.Compile([]byte(source), vm.NewVM())
	if err != nil {
		t.Fatalf("Compile(%q): %v", source, err)
	}
	return fn.Chunk.Disassemble("test")
}

// compileDeep disassembles fn's chunk and recursively every nested
// function chunk reachable through its constant pool, since a method
// or closure body compiles into its own Chunk rather than inlining
// into its enclosing function's bytecode.
func compileDeep(t *testing.T, source string) string {
	t.Helper()
	fn, err := compiler.Compile([]byte(source), vm.NewVM())
	if err != nil {
		t.Fatalf("Compile(%q): %v", source, err)
	}
	seen := map[*bytecode.Function]bool{}
	var out strings.Builder
	var walk func(f *bytecode.Function)
	walk = func(f *bytecode.Function) {
		if f == nil || seen[f] {
			return
		}
		seen[f] = true
		out.WriteString(f.Chunk.Disassemble("fn"))
		for _, c := range f.Chunk.Constants {
			if c.Is(bytecode.ObjFunctionType) {
				walk(c.AsObj().(*bytecode.Function))
			}
		}
	}
	walk(fn)
	return out.String()
}

func TestCompilesArithmeticWithPrecedence(t *testing.T) {
	out := compile(t, "print 1 + 2 * 3;")
	for _, want := range []string{"OP_CONSTANT", "OP_MULTIPLY", "OP_ADD", "OP_PRINT"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %s:\n%s", want, out)
		}
	}
}

func TestComparisonSynthesizedFromEqualAndLess(t *testing.T) {
	out := compile(t, "print 1 != 2;")
	if !strings.Contains(out, "OP_EQUAL") || !strings.Contains(out, "OP_NOT") {
		t.Errorf("!= should synthesize EQUAL+NOT:\n%s", out)
	}

	out = compile(t, "print 1 >= 2;")
	if !strings.Contains(out, "OP_LESS") || !strings.Contains(out, "OP_NOT") {
		t.Errorf(">= should synthesize LESS+NOT:\n%s", out)
	}
}

func TestLocalsAvoidGlobalOpcodes(t *testing.T) {
	out := compile(t, "{ var x = 1; print x; }")
	if strings.Contains(out, "OP_GET_GLOBAL") || strings.Contains(out, "OP_DEFINE_GLOBAL") {
		t.Errorf("a block-scoped local should not touch globals:\n%s", out)
	}
	if !strings.Contains(out, "OP_GET_LOCAL") {
		t.Errorf("expected OP_GET_LOCAL:\n%s", out)
	}
}

func TestClosureCapturesUpvalue(t *testing.T) {
	out := compileDeep(t, `
fun outer() {
  var x = 1;
  fun inner() { return x; }
  return inner;
}
`)
	if !strings.Contains(out, "OP_CLOSURE") {
		t.Errorf("expected OP_CLOSURE:\n%s", out)
	}
	if !strings.Contains(out, "OP_GET_UPVALUE") {
		t.Errorf("inner() should read x via OP_GET_UPVALUE:\n%s", out)
	}
}

func TestMethodCallEmitsInvoke(t *testing.T) {
	out := compile(t, `
class A { greet() { print "hi"; } }
A().greet();
`)
	if !strings.Contains(out, "OP_INVOKE") {
		t.Errorf("a.method() should emit OP_INVOKE:\n%s", out)
	}
}

func TestPlainPropertyAccessEmitsGetProperty(t *testing.T) {
	out := compile(t, `
class A {}
var a = A();
print a.x;
`)
	if !strings.Contains(out, "OP_GET_PROPERTY") {
		t.Errorf("a.x should emit OP_GET_PROPERTY:\n%s", out)
	}
}

func TestSuperCallEmitsSuperInvoke(t *testing.T) {
	out := compileDeep(t, `
class A { greet() { print "A"; } }
class B < A { greet() { super.greet(); } }
`)
	if !strings.Contains(out, "OP_SUPER_INVOKE") {
		t.Errorf("super.greet() should emit OP_SUPER_INVOKE:\n%s", out)
	}
	if !strings.Contains(out, "OP_INHERIT") {
		t.Errorf("class B < A should emit OP_INHERIT:\n%s", out)
	}
}

func TestTooManyLocalsIsCompileError(t *testing.T) {
	var b strings.Builder
	b.WriteString("{\n")
	for i := 0; i < 256; i++ {
		b.WriteString("var v")
		b.WriteString(strconv.Itoa(i))
		b.WriteString(" = 0;\n")
	}
	b.WriteString("}\n")

	_, err := compiler.Compile([]byte(b.String()), vm.NewVM())
	if err == nil {
		t.Fatal("expected compile error for 256 locals in one scope")
	}
	if !strings.Contains(err.Error(), "too many local variables") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func Test255LocalsCompile(t *testing.T) {
	var b strings.Builder
	b.WriteString("{\n")
	for i := 0; i < 255; i++ {
		b.WriteString("var v")
		b.WriteString(strconv.Itoa(i))
		b.WriteString(" = 0;\n")
	}
	b.WriteString("}\n")

	if _, err := compiler.Compile([]byte(b.String()), vm.NewVM()); err != nil {
		t.Fatalf("255 locals should compile: %v", err)
	}
}

func TestReturnFromTopLevelIsCompileError(t *testing.T) {
	_, err := compiler.Compile([]byte("return 1;"), vm.NewVM())
	if err == nil || !strings.Contains(err.Error(), "top-level") {
		t.Fatalf("expected top-level return error, got %v", err)
	}
}

func TestInitializerCannotReturnValue(t *testing.T) {
	_, err := compiler.Compile([]byte(`class A { init() { return 1; } }`), vm.NewVM())
	if err == nil || !strings.Contains(err.Error(), "initializer") {
		t.Fatalf("expected initializer return error, got %v", err)
	}
}

func TestThisOutsideClassIsCompileError(t *testing.T) {
	_, err := compiler.Compile([]byte("print this;"), vm.NewVM())
	if err == nil || !strings.Contains(err.Error(), "this") {
		t.Fatalf("expected 'this' misuse error, got %v", err)
	}
}

func TestSuperWithoutSuperclassIsCompileError(t *testing.T) {
	_, err := compiler.Compile([]byte(`class A { greet() { super.greet(); } }`), vm.NewVM())
	if err == nil || !strings.Contains(err.Error(), "super") {
		t.Fatalf("expected 'super' misuse error, got %v", err)
	}
}

func TestInheritFromSelfIsCompileError(t *testing.T) {
	_, err := compiler.Compile([]byte("class A < A {}"), vm.NewVM())
	if err == nil || !strings.Contains(err.Error(), "itself") {
		t.Fatalf("expected self-inheritance error, got %v", err)
	}
}
