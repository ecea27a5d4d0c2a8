package bytecode

// entry is one slot in a Table. A nil Key with Value.IsNil() true is an
// empty slot (terminates a probe); a nil Key with a true boolean Value is
// a tombstone (keeps the probe sequence alive but holds nothing).
type entry struct {
	key   *String
	value Value
}

func (e *entry) empty() bool     { return e.key == nil && e.value.IsNil() }
func (e *entry) tombstone() bool { return e.key == nil && e.value.IsBool() && e.value.AsBool() }

const tableMaxLoad = 0.75

// Table is an open-addressed, linear-probed, string-keyed hash map used
// for string interning, globals, class method tables, and instance
// fields. Capacity is always a power of two.
type Table struct {
	count   int // live entries + tombstones
	entries []entry
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{}
}

func (t *Table) Count() int { return t.count }

// Get looks up key and reports whether it was present.
func (t *Table) Get(key *String) (Value, bool) {
	if len(t.entries) == 0 {
		return Nil, false
	}
	e := t.find(key)
	if e == nil || e.key == nil {
		return Nil, false
	}
	return e.value, true
}

// Set inserts or overwrites key→value and reports whether key is new
// (i.e. was not already present, including when it fills a tombstone —
// only a set into a genuinely empty slot is "new" for Count purposes per
// the spec's tombstone accounting).
func (t *Table) Set(key *String, value Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.grow()
	}
	e := t.find(key)
	isNewKey := e.key == nil
	if isNewKey && e.empty() {
		t.count++
	}
	e.key = key
	e.value = value
	return isNewKey
}

// Delete removes key, leaving a tombstone so later probes still find
// entries that were inserted after it. Reports whether key was present.
func (t *Table) Delete(key *String) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := t.find(key)
	if e == nil || e.key == nil {
		return false
	}
	e.key = nil
	e.value = Bool(true) // tombstone marker
	return true
}

// FindString locates an already-interned string with the given bytes and
// hash without allocating a new String object, for use by the intern
// table before the VM decides whether it needs to allocate at all.
func (t *Table) FindString(chars string, hash uint32) *String {
	if len(t.entries) == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	idx := hash & mask
	for {
		e := &t.entries[idx]
		if e.empty() {
			return nil
		}
		if e.key != nil && e.key.Hash == hash && e.key.Chars == chars {
			return e.key
		}
		idx = (idx + 1) & mask
	}
}

// Each calls fn once for every live entry, in table order. Used by the
// collector to mark through globals, method tables, and field tables.
func (t *Table) Each(fn func(key *String, value Value)) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil {
			fn(e.key, e.value)
		}
	}
}

// RemoveUnmarked deletes every entry whose key object is unmarked. The
// string intern table holds only weak references to its keys, so the
// collector calls this after tracing and before sweeping to drop
// entries for strings about to be freed — otherwise sweep would leave
// the table pointing at freed memory.
func (t *Table) RemoveUnmarked() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !IsMarked(e.key) {
			e.key = nil
			e.value = Bool(true)
		}
	}
}

// AddAll copies every live entry of src into dst.
func AddAll(src, dst *Table) {
	for i := range src.entries {
		e := &src.entries[i]
		if e.key != nil {
			dst.Set(e.key, e.value)
		}
	}
}

// find returns the slot for key: the existing slot if key is present,
// otherwise the first tombstone seen along the probe sequence (so a
// subsequent Set reuses it), otherwise the terminating empty slot.
func (t *Table) find(key *String) *entry {
	mask := uint32(len(t.entries) - 1)
	idx := key.Hash & mask
	var tombstone *entry
	for {
		e := &t.entries[idx]
		if e.empty() {
			if tombstone != nil {
				return tombstone
			}
			return e
		}
		if e.tombstone() {
			if tombstone == nil {
				tombstone = e
			}
		} else if e.key == key {
			return e
		}
		idx = (idx + 1) & mask
	}
}

func (t *Table) grow() {
	newCap := 8
	if len(t.entries) > 0 {
		newCap = len(t.entries) * 2
	}
	old := t.entries
	t.entries = make([]entry, newCap)
	t.count = 0
	for i := range old {
		e := &old[i]
		if e.key != nil {
			t.Set(e.key, e.value)
		}
	}
}
