package native

import (
	"testing"

	"github.com/jacobin-core/jvmcore/pkg/object"
	"github.com/jacobin-core/jvmcore/pkg/symbol"
)

func TestMangledSymbol(t *testing.T) {
	cases := []struct {
		class, method, want string
	}{
		{"java/lang/Object", "hashCode", "Java_java_lang_Object_hashCode"},
		{"java/lang/String", "char_At", "Java_java_lang_String_char_1At"},
		{"[Lpkg/Array;", "get", "Java__3Lpkg_Array_2_get"},
	}
	for _, c := range cases {
		if got := MangledSymbol(c.class, c.method); got != c.want {
			t.Errorf("MangledSymbol(%q, %q) = %q, want %q", c.class, c.method, got, c.want)
		}
	}
}

func TestRegisterAndLookupHit(t *testing.T) {
	reg := NewRegistry()
	class := object.NewClass(symbol.Global().Intern("java/lang/Object"), nil)

	called := false
	reg.Register("java/lang/Object", "hashCode", "()I", false, func(e any, args []object.Value) ([]object.Value, error) {
		called = true
		return []object.Value{object.IntValue(1)}, nil
	})

	fn, ok := reg.Lookup(class, "hashCode", "()I", false)
	if !ok {
		t.Fatal("expected a registered implementation to be found")
	}
	if _, err := fn(nil, nil); err != nil {
		t.Fatalf("fn returned error: %v", err)
	}
	if !called {
		t.Error("looked-up function was not the one registered")
	}
}

func TestLookupMissFallsThroughToLibrary(t *testing.T) {
	reg := NewRegistry()
	class := object.NewClass(symbol.Global().Intern("some/Native"), nil)

	lib := fakeLibrary{symbols: map[string]object.NativeFunc{
		MangledSymbol("some/Native", "frob"): func(e any, args []object.Value) ([]object.Value, error) {
			return nil, nil
		},
	}}
	reg.AddLibrary(lib)

	if _, ok := reg.Lookup(class, "frob", "()V", false); !ok {
		t.Fatal("expected library fallback to resolve frob")
	}
	// Second lookup should now hit the registry directly (auto-registered).
	reg.mu.RLock()
	_, cached := reg.impls[key{"some/Native", "frob", "()V", false}]
	reg.mu.RUnlock()
	if !cached {
		t.Error("library hit was not cached into the registry")
	}
}

func TestLookupMissNoMatch(t *testing.T) {
	reg := NewRegistry()
	class := object.NewClass(symbol.Global().Intern("some/Other"), nil)
	if _, ok := reg.Lookup(class, "nope", "()V", false); ok {
		t.Error("expected a miss for an unregistered, unlinked native method")
	}
}

type fakeLibrary struct {
	symbols map[string]object.NativeFunc
}

func (f fakeLibrary) Symbol(mangled string) (object.NativeFunc, bool) {
	fn, ok := f.symbols[mangled]
	return fn, ok
}
