package classloader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/jacobin-core/jvmcore/pkg/classfile"
	"github.com/jacobin-core/jvmcore/pkg/strpool"
)

// memSource is an in-memory Source keyed by binary class name, used in
// place of a real classpath/jimage since there is no javac available
// in this environment to produce real .class fixtures.
type memSource map[string][]byte

func (m memSource) ReadClass(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, errNotFound(name)
	}
	return data, nil
}

type errNotFound string

func (e errNotFound) Error() string { return "not found: " + string(e) }

// buildMinimalClass assembles a minimal class file for className,
// extending superName (empty for java/lang/Object with no super_class
// entry at all), with no fields and no methods.
func buildMinimalClass(t *testing.T, className, superName string) []byte {
	t.Helper()
	var buf bytes.Buffer
	write := func(v any) {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			t.Fatalf("writing: %v", err)
		}
	}
	writeUtf8 := func(s string) {
		write(uint8(classfile.TagUtf8))
		write(uint16(len(s)))
		buf.WriteString(s)
	}

	hasSuper := superName != ""

	write(uint32(0xCAFEBABE))
	write(uint16(0))
	write(uint16(61))

	if hasSuper {
		write(uint16(5)) // constant_pool_count (4 entries + 1)
	} else {
		write(uint16(3)) // constant_pool_count (2 entries + 1)
	}

	writeUtf8(className)               // #1
	write(uint8(classfile.TagClass))   // #2 -> 1
	write(uint16(1))
	if hasSuper {
		writeUtf8(superName)             // #3
		write(uint8(classfile.TagClass)) // #4 -> 3
		write(uint16(3))
	}

	write(uint16(classfile.AccPublic | classfile.AccSuper))
	write(uint16(2)) // this_class
	if hasSuper {
		write(uint16(4)) // super_class
	} else {
		write(uint16(0))
	}
	write(uint16(0)) // interfaces_count
	write(uint16(0)) // fields_count
	write(uint16(0)) // methods_count
	write(uint16(0)) // class attributes_count

	return buf.Bytes()
}

func TestLoadResolvesSuperclass(t *testing.T) {
	src := memSource{
		"java/lang/Object": buildMinimalClass(t, "java/lang/Object", ""),
		"Sub":               buildMinimalClass(t, "Sub", "java/lang/Object"),
	}
	l := NewBootstrapLoader(src, strpool.New())

	sub, err := l.Load("Sub")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sub.Super == nil || sub.Super.NameStr() != "java/lang/Object" {
		t.Fatalf("Sub.Super = %v, want java/lang/Object", sub.Super)
	}
	if sub.State().String() != "Linked" {
		t.Errorf("state = %v, want Linked", sub.State())
	}
}

func TestLoadIsCached(t *testing.T) {
	src := memSource{
		"java/lang/Object": buildMinimalClass(t, "java/lang/Object", ""),
	}
	l := NewBootstrapLoader(src, strpool.New())

	a, err := l.Load("java/lang/Object")
	if err != nil {
		t.Fatal(err)
	}
	b, err := l.Load("java/lang/Object")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("Load returned two distinct Class instances for the same name")
	}
}

func TestLoadMissingClassErrors(t *testing.T) {
	l := NewBootstrapLoader(memSource{}, strpool.New())
	_, err := l.Load("Nope")
	if err == nil {
		t.Fatal("expected ClassNotFoundException-shaped error")
	}
	if !errors.Is(err, ErrClassNotFound) {
		t.Errorf("Load(%q) error = %v, want errors.Is(err, ErrClassNotFound)", "Nope", err)
	}
}

func TestUserLoaderDelegatesToParent(t *testing.T) {
	boot := NewBootstrapLoader(memSource{
		"java/lang/Object": buildMinimalClass(t, "java/lang/Object", ""),
	}, strpool.New())
	user := NewUserLoader("app", boot, memSource{
		"App": buildMinimalClass(t, "App", "java/lang/Object"),
	})

	// The parent can see java/lang/Object; the user loader should never
	// try its own (empty for this name) source.
	c, err := user.Load("java/lang/Object")
	if err != nil {
		t.Fatal(err)
	}
	if c.Loader.(*Loader).Name() != "bootstrap" {
		t.Errorf("java/lang/Object defined by %q, want bootstrap", c.Loader.(*Loader).Name())
	}

	app, err := user.Load("App")
	if err != nil {
		t.Fatal(err)
	}
	if app.Loader.(*Loader).Name() != "app" {
		t.Errorf("App defined by %q, want app", app.Loader.(*Loader).Name())
	}
}

func TestLoadArrayClassOfReferenceType(t *testing.T) {
	src := memSource{
		"java/lang/Object": buildMinimalClass(t, "java/lang/Object", ""),
		"java/lang/String": buildMinimalClass(t, "java/lang/String", "java/lang/Object"),
	}
	l := NewBootstrapLoader(src, strpool.New())

	arr, err := l.LoadArrayClass("[Ljava/lang/String;")
	if err != nil {
		t.Fatal(err)
	}
	if arr.Component == nil || arr.Component.NameStr() != "java/lang/String" {
		t.Errorf("array component = %v, want java/lang/String", arr.Component)
	}
	if arr.Super == nil || arr.Super.NameStr() != "java/lang/Object" {
		t.Error("array class super should be java/lang/Object")
	}
}

func TestLoadArrayClassOfPrimitive(t *testing.T) {
	src := memSource{
		"java/lang/Object": buildMinimalClass(t, "java/lang/Object", ""),
	}
	l := NewBootstrapLoader(src, strpool.New())

	arr, err := l.LoadArrayClass("[I")
	if err != nil {
		t.Fatal(err)
	}
	if arr.Component != nil {
		t.Error("primitive array should have no Component class")
	}
}
