// Package strpool implements the JVM's interned-string pool (spec.md
// §4.7): the table behind `ldc` of a String constant and
// `String.intern()`, ensuring two identical string literals (or two
// calls to intern() on equal content) always yield the same
// java.lang.String heap object.
package strpool

import (
	"sync"

	"github.com/jacobin-core/jvmcore/pkg/object"
)

// Pool is a process-wide table from string content to its unique
// java.lang.String instance. The mutex-guarded-map shape matches
// pkg/symbol's interner, applied here to heap objects instead of
// Symbol handles.
type Pool struct {
	mu          sync.Mutex
	interned    map[string]*object.Instance
	contents    map[*object.Instance]string // reverse of interned, for native code reading a String's bytes back out
	stringClass *object.Class
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{interned: make(map[string]*object.Instance), contents: make(map[*object.Instance]string)}
}

// SetStringClass attaches java.lang.String's Class once the bootstrap
// loader has finished defining it. Strings interned before this point
// (there should be none, in practice, since String itself must load
// before any code referencing a String constant can run) carry a nil
// header class until backfilled on next access is out of scope; in
// this implementation SetStringClass must run before the first Intern.
func (p *Pool) SetStringClass(c *object.Class) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stringClass = c
}

// Intern returns the canonical java.lang.String instance for utf8,
// allocating one on first sight. Matches constantpool.StringInterner.
func (p *Pool) Intern(utf8 string) *object.Instance {
	p.mu.Lock()
	defer p.mu.Unlock()
	if inst, ok := p.interned[utf8]; ok {
		return inst
	}
	var inst *object.Instance
	if p.stringClass != nil {
		inst = object.NewInstance(p.stringClass)
	} else {
		inst = &object.Instance{}
	}
	p.interned[utf8] = inst
	p.contents[inst] = utf8
	return inst
}

// Contents returns the UTF-8 text backing inst, if inst was allocated
// by this pool's Intern, for native code (String.toString, console
// output, StringConcatFactory's call-site target) that needs a String
// instance's bytes back out without a compiled java.lang.String layout
// to read a `value`/`coder` field pair from.
func (p *Pool) Contents(inst *object.Instance) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.contents[inst]
	return s, ok
}

// Lookup reports whether utf8 has already been interned, without
// allocating, for String.intern()'s fast path in the native layer.
func (p *Pool) Lookup(utf8 string) (*object.Instance, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	inst, ok := p.interned[utf8]
	return inst, ok
}
