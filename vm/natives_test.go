package vm

import (
	"bytes"
	"strings"
	"testing"
)

func TestNativeClockReturnsNumber(t *testing.T) {
	got := run(t, `print type(clock());`)
	if strings.TrimSpace(got) != "number" {
		t.Fatalf("got %q, want number", got)
	}
}

func TestNativeTypeNamesEveryKind(t *testing.T) {
	inst := NewVM()
	var out bytes.Buffer
	inst.Stdout = &out
	err := inst.Interpret([]byte(`
class Foo {}
print type(nil);
print type(true);
print type(1);
print type("s");
print type(Foo());
print type(clock);
`))
	if err != nil {
		t.Fatal(err)
	}
	want := "nil\nbool\nnumber\nstring\nFoo\nfunction\n"
	if out.String() != want {
		t.Fatalf("got %q, want %q", out.String(), want)
	}
}

func TestNativeClockRejectsArguments(t *testing.T) {
	inst := NewVM()
	if err := inst.Interpret([]byte(`clock(1);`)); err == nil {
		t.Fatal("expected runtime error for clock() with an argument")
	}
}
