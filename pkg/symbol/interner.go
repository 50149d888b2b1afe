// Package symbol provides process-wide interning of byte-string identifiers.
//
// A Symbol is a small unsigned integer standing in for a unique byte
// sequence. Equal byte sequences always intern to the same Symbol, and
// interned storage lives for the lifetime of the process — there is no
// eviction, matching the VM's own process-lifetime object model.
package symbol

import "sync"

// Symbol is a stable, process-wide identifier for an interned byte string.
// Zero is reserved and never returned by Intern.
type Symbol uint32

// Table is a mutex-protected, append-only interning table. The zero value
// is not usable; construct one with NewTable.
type Table struct {
	mu     sync.RWMutex
	byName map[string]Symbol
	byID   []string // index 0 unused, so len(byID)-1 == highest assigned Symbol
}

// NewTable creates an empty interning table with the reserved slot 0
// already consumed so the first real Intern call returns 1.
func NewTable() *Table {
	return &Table{
		byName: make(map[string]Symbol),
		byID:   []string{""},
	}
}

// Intern returns the Symbol for s, assigning a new one if s has not been
// seen before. Concurrent callers interning the same string may race on
// the write lock, but all observe the same resulting Symbol.
func (t *Table) Intern(s string) Symbol {
	t.mu.RLock()
	if sym, ok := t.byName[s]; ok {
		t.mu.RUnlock()
		return sym
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	// Re-check under the write lock: another goroutine may have interned
	// s while we waited.
	if sym, ok := t.byName[s]; ok {
		return sym
	}
	sym := Symbol(len(t.byID))
	t.byID = append(t.byID, s)
	t.byName[s] = sym
	return sym
}

// InternBytes is a convenience wrapper for byte slices read off the wire
// (class-file UTF-8 constants, JImage strings blob).
func (t *Table) InternBytes(b []byte) Symbol {
	return t.Intern(string(b))
}

// Lookup returns the byte string a Symbol was interned from. ok is false
// for Symbol(0) or any Symbol this table never produced.
func (t *Table) Lookup(sym Symbol) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if sym == 0 || int(sym) >= len(t.byID) {
		return "", false
	}
	return t.byID[sym], true
}

// MustLookup is Lookup without the ok return, for call sites that already
// know sym came from this table (e.g. printing a resolved class name).
func (t *Table) MustLookup(sym Symbol) string {
	s, _ := t.Lookup(sym)
	return s
}

// Len reports how many symbols (excluding the reserved zero slot) have
// been interned so far.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID) - 1
}
