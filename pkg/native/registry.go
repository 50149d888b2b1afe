// Package native implements the native method boundary (spec.md §4.14):
// registration and lookup of native implementations, the name-mangling
// rule used to find one in a loaded native library, and the JNI-style
// environment handle a native function receives.
//
// Grounded on the teacher's pkg/native (PrintStream, NativeInteger,
// NativeHashMap: small, directly-called Go types standing in for what
// a JNI native would otherwise do through a marshaled call). This
// package generalizes that shape into the ABI spec.md §4.14 actually
// describes — a process-wide registration table keyed by
// (class, method, descriptor, static) plus library-symbol fallback —
// and supplies a representative set of built-ins (Object/System/Class/
// Thread/Throwable/println) rather than every method of every core
// class, matching spec.md §1's Non-goal: "Specific native method
// implementations" are out of core scope beyond the registration ABI.
package native

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jacobin-core/jvmcore/pkg/object"
)

type key struct {
	class, name, descriptor string
	static                  bool
}

// Registry is the process-wide table of registered native
// implementations (spec.md §4.14, §5 "Native method table: written
// once during class registration, read-mostly afterward; protected by
// a single RWLock").
type Registry struct {
	mu    sync.RWMutex
	impls map[key]object.NativeFunc
	libs  []Library
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{impls: make(map[key]object.NativeFunc)}
}

// Register installs fn as the native implementation for the given
// (class, method, descriptor, static) tuple, overwriting any previous
// registration (registerNatives semantics).
func (r *Registry) Register(class, name, descriptor string, static bool, fn object.NativeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.impls[key{class, name, descriptor, static}] = fn
}

// AddLibrary appends a native library to the search path consulted on
// a registry miss (spec.md §4.14 "search the method's class loader's
// loaded native libraries").
func (r *Registry) AddLibrary(lib Library) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.libs = append(r.libs, lib)
}

// Lookup satisfies pkg/dispatch.NativeRegistry: a registry hit is tried
// first, then every loaded library in load order by mangled symbol
// name (spec.md §4.14).
func (r *Registry) Lookup(owner *object.Class, name, descriptor string, static bool) (object.NativeFunc, bool) {
	className := owner.NameStr()
	r.mu.RLock()
	fn, ok := r.impls[key{className, name, descriptor, static}]
	libs := r.libs
	r.mu.RUnlock()
	if ok {
		return fn, true
	}
	symbol := MangledSymbol(className, name)
	for _, lib := range libs {
		if fn, ok := lib.Symbol(symbol); ok {
			r.Register(className, name, descriptor, static, fn)
			return fn, true
		}
	}
	return nil, false
}

// Library is a loaded native library, searched by mangled symbol name
// on a registry miss (spec.md §4.14). This tree has no in-process
// dynamic-library loader (cgo's dlopen is outside the portable stdlib
// surface the rest of this core is built on — see DESIGN.md); Library
// exists so a host embedding this core can plug one in, and so tests
// can exercise the fallback path with a fake.
type Library interface {
	Symbol(mangled string) (object.NativeFunc, bool)
}

// MangledSymbol builds the `Java_<mangled-class>_<mangled-method>`
// symbol name a JNI native library exports (spec.md §4.14), applying
// the standard substitutions: '/' -> '_', '_' -> "_1", ';' -> "_2",
// '[' -> "_3", and non-ASCII -> "_0xxxx" (Unicode escapes), though the
// last is rare enough in practice that exercising it isn't this
// function's job beyond not corrupting ASCII input.
func MangledSymbol(className, methodName string) string {
	return "Java_" + mangle(className) + "_" + mangle(methodName)
}

func mangle(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '/':
			b.WriteByte('_')
		case '_':
			b.WriteString("_1")
		case ';':
			b.WriteString("_2")
		case '[':
			b.WriteString("_3")
		default:
			if r < 0x80 && (r == '_' || isAlnum(r)) {
				b.WriteRune(r)
			} else if r < 0x80 {
				b.WriteRune(r)
			} else {
				fmt.Fprintf(&b, "_0%04x", r)
			}
		}
	}
	return b.String()
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
