package bytecode

import (
	"fmt"
	"testing"
)

func newStr(s string) *String {
	return &String{Chars: s, Hash: HashBytes(s)}
}

func TestTableSetGetDelete(t *testing.T) {
	tab := NewTable()
	k := newStr("foo")

	if !tab.Set(k, Number(1)) {
		t.Error("expected Set of new key to report true")
	}
	if tab.Set(k, Number(2)) {
		t.Error("expected Set of existing key to report false")
	}
	v, ok := tab.Get(k)
	if !ok || v.AsNumber() != 2 {
		t.Fatalf("got %v, %v", v, ok)
	}
	if !tab.Delete(k) {
		t.Error("expected Delete to report true")
	}
	if _, ok := tab.Get(k); ok {
		t.Error("expected key to be gone after delete")
	}
}

func TestTableTombstoneReuse(t *testing.T) {
	tab := NewTable()
	a := newStr("a")
	// b shares a's hash so its probe starts at a's slot and finds the
	// tombstone left there by Delete.
	b := &String{Chars: "b", Hash: a.Hash}
	tab.Set(a, Number(1))
	tab.Delete(a)
	countBefore := tab.Count()
	if !tab.Set(b, Number(2)) {
		t.Error("setting a new key should report true")
	}
	if tab.Count() != countBefore {
		t.Errorf("filling a tombstone should not grow count: before=%d after=%d", countBefore, tab.Count())
	}
}

func TestTableGrowPreservesEntries(t *testing.T) {
	tab := NewTable()
	var keys []*String
	for i := 0; i < 100; i++ {
		k := newStr(fmt.Sprintf("key%d", i))
		keys = append(keys, k)
		tab.Set(k, Number(float64(i)))
	}
	for i, k := range keys {
		v, ok := tab.Get(k)
		if !ok || v.AsNumber() != float64(i) {
			t.Fatalf("key %d lost after growth", i)
		}
	}
}

func TestFindStringLocatesInternedBytes(t *testing.T) {
	tab := NewTable()
	s := newStr("hello")
	tab.Set(s, Bool(true))
	found := tab.FindString("hello", HashBytes("hello"))
	if found != s {
		t.Fatal("FindString did not locate the interned string")
	}
	if tab.FindString("nope", HashBytes("nope")) != nil {
		t.Fatal("FindString should return nil for a missing key")
	}
}

func TestAddAllCopiesLiveEntries(t *testing.T) {
	src, dst := NewTable(), NewTable()
	a, b := newStr("a"), newStr("b")
	src.Set(a, Number(1))
	src.Set(b, Number(2))
	src.Delete(b)

	AddAll(src, dst)
	if _, ok := dst.Get(a); !ok {
		t.Error("expected live entry a to be copied")
	}
	if _, ok := dst.Get(b); ok {
		t.Error("deleted entry b should not be copied")
	}
}
