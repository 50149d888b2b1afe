package native

import (
	"bytes"
	"os"
	"testing"

	"github.com/jacobin-core/jvmcore/pkg/dispatch"
	"github.com/jacobin-core/jvmcore/pkg/object"
	"github.com/jacobin-core/jvmcore/pkg/strpool"
	"github.com/jacobin-core/jvmcore/pkg/symbol"
	"github.com/jacobin-core/jvmcore/pkg/thread"
)

func testEnv(t *testing.T, strs *strpool.Pool) (*dispatch.Env, *Registry) {
	t.Helper()
	reg := NewRegistry()
	RegisterBuiltins(reg)
	d := dispatch.New(stubResolver{}, reg, nil, strs, nil)
	return &dispatch.Env{Thread: thread.New(nil), Dispatch: d}, reg
}

type stubResolver struct{}

func (stubResolver) Load(name string) (*object.Class, error) { return nil, nil }

func TestObjectHashCodeStable(t *testing.T) {
	de, reg := testEnv(t, strpool.New())
	class := object.NewClass(symbol.Global().Intern("java/lang/Object"), nil)
	inst := object.NewInstance(class)

	fn, ok := reg.Lookup(class, "hashCode", "()I", false)
	if !ok {
		t.Fatal("hashCode not registered")
	}
	r1, err := fn(de, []object.Value{object.RefValue(&inst.Header)})
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	r2, err := fn(de, []object.Value{object.RefValue(&inst.Header)})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if r1[0].Int() != r2[0].Int() {
		t.Errorf("hashCode not stable across calls: %d != %d", r1[0].Int(), r2[0].Int())
	}
}

func TestObjectGetClassReturnsMirror(t *testing.T) {
	de, reg := testEnv(t, strpool.New())
	class := object.NewClass(symbol.Global().Intern("java/lang/Object"), nil)
	inst := object.NewInstance(class)

	fn, _ := reg.Lookup(class, "getClass", "()Ljava/lang/Class;", false)
	result, err := fn(de, []object.Value{object.RefValue(&inst.Header)})
	if err != nil {
		t.Fatalf("getClass: %v", err)
	}
	if result[0].Ref != &class.Mirror().Header {
		t.Error("getClass did not return the class's own mirror")
	}
}

func TestClassGetNameConvertsToDottedForm(t *testing.T) {
	strs := strpool.New()
	de, reg := testEnv(t, strs)
	class := object.NewClass(symbol.Global().Intern("java/lang/String"), nil)
	mirror := class.Mirror()
	classClass := object.NewClass(symbol.Global().Intern("java/lang/Class"), nil)
	mirror.AttachMirrorClass(classClass)

	fn, _ := reg.Lookup(classClass, "getName", "()Ljava/lang/String;", false)
	result, err := fn(de, []object.Value{object.RefValue(&mirror.Header)})
	if err != nil {
		t.Fatalf("getName: %v", err)
	}
	inst, ok := object.AsInstance(result[0].Ref)
	if !ok {
		t.Fatal("getName did not return a String instance")
	}
	got, ok := strs.Contents(inst)
	if !ok || got != "java.lang.String" {
		t.Errorf("getName = %q, want %q", got, "java.lang.String")
	}
}

func TestClassIsInstanceReflectsAssignability(t *testing.T) {
	de, reg := testEnv(t, strpool.New())
	super := object.NewClass(symbol.Global().Intern("some/Super"), nil)
	sub := object.NewClass(symbol.Global().Intern("some/Sub"), nil)
	sub.Super = super
	classClass := object.NewClass(symbol.Global().Intern("java/lang/Class"), nil)
	mirror := super.Mirror()
	mirror.AttachMirrorClass(classClass)

	instOfSub := object.NewInstance(sub)

	fn, _ := reg.Lookup(classClass, "isInstance", "(Ljava/lang/Object;)Z", false)
	result, err := fn(de, []object.Value{object.RefValue(&mirror.Header), object.RefValue(&instOfSub.Header)})
	if err != nil {
		t.Fatalf("isInstance: %v", err)
	}
	if result[0].Int() != 1 {
		t.Error("expected Super.isInstance(sub instance) to be true")
	}
}

func TestPrintStreamPrintlnWritesToBoundFile(t *testing.T) {
	strs := strpool.New()
	de, reg := testEnv(t, strs)

	psClass := object.NewClass(symbol.Global().Intern("java/io/PrintStream"), nil)
	out := object.NewInstance(psClass)

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	BindStream(out, w)

	fn, ok := reg.Lookup(psClass, "println", "(Ljava/lang/String;)V", false)
	if !ok {
		t.Fatal("println(String) not registered")
	}
	msg := strs.Intern("hello")
	if _, err := fn(de, []object.Value{object.RefValue(&out.Header), object.RefValue(&msg.Header)}); err != nil {
		t.Fatalf("println: %v", err)
	}
	w.Close()

	var buf bytes.Buffer
	buf.ReadFrom(r)
	if got := buf.String(); got != "hello\n" {
		t.Errorf("println wrote %q, want %q", got, "hello\n")
	}
}
