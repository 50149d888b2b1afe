// Package constantpool implements the runtime constant pool (spec.md
// §4.6): a parallel structure to classfile's raw, unresolved pool where
// each entry is lazily resolved to a typed, cached value on first
// access.
package constantpool

import (
	"fmt"
	"sync/atomic"

	"github.com/jacobin-core/jvmcore/pkg/classfile"
	"github.com/jacobin-core/jvmcore/pkg/object"
)

// ClassResolver loads a class by name; it does not run class
// initialization. Satisfied structurally by *classloader.Loader; constantpool
// does not import classloader to avoid a import cycle (classloader
// attaches a Pool to every Class it creates).
type ClassResolver interface {
	Load(name string) (*object.Class, error)
}

// StringInterner deduplicates literal strings into heap String objects
// (spec.md §4.7). Satisfied structurally by *strpool.Pool.
type StringInterner interface {
	Intern(utf8 string) *object.Instance
}

type slot struct {
	value any
	err   error
}

// Pool is the runtime constant pool for one class. Indexed exactly like
// the class-file pool it mirrors (1-based; index 0 and the second slot
// of 8-byte constants are nil/unused).
type Pool struct {
	raw      []classfile.ConstantPoolEntry
	resolved []atomic.Pointer[slot]
	resolver ClassResolver
	strings  StringInterner

	bootstrap []classfile.BootstrapMethod
	linker    BootstrapLinker
}

// New wraps a class-file's raw constant pool for runtime resolution.
func New(raw []classfile.ConstantPoolEntry, resolver ClassResolver, strings StringInterner) *Pool {
	return &Pool{
		raw:      raw,
		resolved: make([]atomic.Pointer[slot], len(raw)),
		resolver: resolver,
		strings:  strings,
	}
}

// Len reports the number of entries (satisfies object.ConstantPool).
func (p *Pool) Len() int { return len(p.raw) }

// resolve memoizes the result of compute for index, racing concurrent
// resolvers on a compare-and-swap: the loser adopts the winner's cached
// result, making resolution idempotent (spec.md §4.6 "Resolution is
// idempotent").
func (p *Pool) resolve(index uint16, compute func() (any, error)) (any, error) {
	if int(index) >= len(p.resolved) {
		return nil, fmt.Errorf("constant pool index %d out of range", index)
	}
	if s := p.resolved[index].Load(); s != nil {
		return s.value, s.err
	}
	value, err := compute()
	fresh := &slot{value: value, err: err}
	if p.resolved[index].CompareAndSwap(nil, fresh) {
		return value, err
	}
	winner := p.resolved[index].Load()
	return winner.value, winner.err
}

// RawEntry exposes the unresolved class-file constant at index, for
// callers (the interpreter's `ldc` family) that must branch on the
// entry's tag before knowing which typed accessor to call.
func (p *Pool) RawEntry(index uint16) (classfile.ConstantPoolEntry, error) {
	return p.entry(index)
}

func (p *Pool) entry(index uint16) (classfile.ConstantPoolEntry, error) {
	if int(index) == 0 || int(index) >= len(p.raw) || p.raw[index] == nil {
		return nil, fmt.Errorf("constant pool index %d is invalid or unusable", index)
	}
	return p.raw[index], nil
}

// GetUtf8 returns the UTF-8 string at index, memoized in the pool's
// resolved slot. The string is not interned in the symbol table.
func (p *Pool) GetUtf8(index uint16) (string, error) {
	v, err := p.resolve(index, func() (any, error) {
		e, err := p.entry(index)
		if err != nil {
			return nil, err
		}
		u, ok := e.(*classfile.ConstantUtf8)
		if !ok {
			return nil, fmt.Errorf("constant pool index %d is not Utf8", index)
		}
		return u.Value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// GetInteger/GetFloat/GetLong/GetDouble decode the raw numeric constant
// at index (spec.md §4.6 "Decode raw bytes").
func (p *Pool) GetInteger(index uint16) (int32, error) {
	v, err := p.typed(index, func(e classfile.ConstantPoolEntry) (any, error) {
		c, ok := e.(*classfile.ConstantInteger)
		if !ok {
			return nil, fmt.Errorf("index %d is not Integer", index)
		}
		return c.Value, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int32), nil
}

func (p *Pool) GetFloat(index uint16) (float32, error) {
	v, err := p.typed(index, func(e classfile.ConstantPoolEntry) (any, error) {
		c, ok := e.(*classfile.ConstantFloat)
		if !ok {
			return nil, fmt.Errorf("index %d is not Float", index)
		}
		return c.Value, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float32), nil
}

func (p *Pool) GetLong(index uint16) (int64, error) {
	v, err := p.typed(index, func(e classfile.ConstantPoolEntry) (any, error) {
		c, ok := e.(*classfile.ConstantLong)
		if !ok {
			return nil, fmt.Errorf("index %d is not Long", index)
		}
		return c.Value, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (p *Pool) GetDouble(index uint16) (float64, error) {
	v, err := p.typed(index, func(e classfile.ConstantPoolEntry) (any, error) {
		c, ok := e.(*classfile.ConstantDouble)
		if !ok {
			return nil, fmt.Errorf("index %d is not Double", index)
		}
		return c.Value, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// typed is a helper for the purely-decoding kinds (numeric constants)
// that need no resolver/loader interaction.
func (p *Pool) typed(index uint16, decode func(classfile.ConstantPoolEntry) (any, error)) (any, error) {
	return p.resolve(index, func() (any, error) {
		e, err := p.entry(index)
		if err != nil {
			return nil, err
		}
		return decode(e)
	})
}

// GetClass resolves a Class constant: the name-index's UTF-8 name is
// passed as a string to loader.Load (spec.md §4.6).
func (p *Pool) GetClass(index uint16) (*object.Class, error) {
	v, err := p.resolve(index, func() (any, error) {
		e, err := p.entry(index)
		if err != nil {
			return nil, err
		}
		c, ok := e.(*classfile.ConstantClass)
		if !ok {
			return nil, fmt.Errorf("index %d is not Class", index)
		}
		name, err := p.GetUtf8(c.NameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving Class name: %w", err)
		}
		return p.resolver.Load(name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*object.Class), nil
}

// GetString resolves a String (literal) constant to an interned
// java.lang.String heap object (spec.md §4.6, §4.7).
func (p *Pool) GetString(index uint16) (*object.Instance, error) {
	v, err := p.resolve(index, func() (any, error) {
		e, err := p.entry(index)
		if err != nil {
			return nil, err
		}
		s, ok := e.(*classfile.ConstantString)
		if !ok {
			return nil, fmt.Errorf("index %d is not String", index)
		}
		text, err := p.GetUtf8(s.StringIndex)
		if err != nil {
			return nil, err
		}
		return p.strings.Intern(text), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*object.Instance), nil
}
