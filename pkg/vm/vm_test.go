package vm

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/jacobin-core/jvmcore/pkg/classfile"
	"github.com/jacobin-core/jvmcore/pkg/classloader"
	"github.com/jacobin-core/jvmcore/pkg/strpool"
)

// memSource is an in-memory classloader.Source, mirroring
// pkg/classloader's own test fixture since there is no javac available
// in this environment to produce real .class files.
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
		write(uint16(5))
	} else {
		write(uint16(3))
	}

	writeUtf8(className)
	write(uint8(classfile.TagClass))
	write(uint16(1))
	if hasSuper {
		writeUtf8(superName)
		write(uint8(classfile.TagClass))
		write(uint16(3))
	}

	write(uint16(classfile.AccPublic | classfile.AccSuper))
	write(uint16(2))
	if hasSuper {
		write(uint16(4))
	} else {
		write(uint16(0))
	}
	write(uint16(0))
	write(uint16(0))
	write(uint16(0))
	write(uint16(0))

	return buf.Bytes()
}

// newTestSystemLoader builds a minimal bootstrap+system loader chain
// sharing the given string pool, since buildArgsArray interns through
// v.Strings specifically.
func newTestSystemLoader(t *testing.T, strs *strpool.Pool) *classloader.Loader {
	t.Helper()
	boot := classloader.NewBootstrapLoader(memSource{
		"java/lang/Object": buildMinimalClass(t, "java/lang/Object", ""),
		"java/lang/String": buildMinimalClass(t, "java/lang/String", "java/lang/Object"),
	}, strs)
	return classloader.NewUserLoader("system", boot, memSource{})
}

func TestBuildArgsArray(t *testing.T) {
	strs := strpool.New()
	v := &VM{System: newTestSystemLoader(t, strs), Strings: strs}

	argv, err := v.buildArgsArray([]string{"one", "two"})
	if err != nil {
		t.Fatalf("buildArgsArray: %v", err)
	}
	if argv.Ref == nil {
		t.Fatal("expected a non-nil array reference")
	}
}

func TestResolveMainClassConvertsDots(t *testing.T) {
	v := &VM{}
	name, err := v.ResolveMainClass(Config{MainClass: "com.example.Main"})
	if err != nil {
		t.Fatalf("ResolveMainClass: %v", err)
	}
	if name != "com/example/Main" {
		t.Errorf("ResolveMainClass = %q, want %q", name, "com/example/Main")
	}
}

func TestResolveMainClassErrorsWithoutOne(t *testing.T) {
	v := &VM{}
	if _, err := v.ResolveMainClass(Config{}); err == nil {
		t.Fatal("expected an error when no main class is configured")
	}
}

func TestMergedPropertiesOverridesPlatformDefaults(t *testing.T) {
	merged := mergedProperties(map[string]string{"user.dir": "/custom"})
	if merged["user.dir"] != "/custom" {
		t.Errorf("merged[user.dir] = %q, want %q", merged["user.dir"], "/custom")
	}
	if _, ok := merged["file.separator"]; !ok {
		t.Error("expected platform default file.separator to still be present")
	}
}
