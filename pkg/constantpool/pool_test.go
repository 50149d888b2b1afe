package constantpool

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jacobin-core/jvmcore/pkg/classfile"
	"github.com/jacobin-core/jvmcore/pkg/object"
	"github.com/jacobin-core/jvmcore/pkg/symbol"
)

type fakeResolver struct {
	calls atomic.Int32
	class *object.Class
	err   error
}

func (f *fakeResolver) Load(name string) (*object.Class, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.class, nil
}

type fakeStrings struct{ calls atomic.Int32 }

func (f *fakeStrings) Intern(s string) *object.Instance {
	f.calls.Add(1)
	return &object.Instance{}
}

func poolWith(raw []classfile.ConstantPoolEntry, resolver ClassResolver, strings StringInterner) *Pool {
	return New(raw, resolver, strings)
}

func TestGetUtf8(t *testing.T) {
	raw := []classfile.ConstantPoolEntry{nil, &classfile.ConstantUtf8{Value: "hello"}}
	p := poolWith(raw, nil, nil)

	s, err := p.GetUtf8(1)
	if err != nil || s != "hello" {
		t.Fatalf("GetUtf8 = %q, %v", s, err)
	}
}

func TestGetClassIsIdempotent(t *testing.T) {
	raw := []classfile.ConstantPoolEntry{
		nil,
		&classfile.ConstantUtf8{Value: "java/lang/Object"},
		&classfile.ConstantClass{NameIndex: 1},
	}
	target := object.NewClass(symbol.Global().Intern("java/lang/Object"), nil)
	resolver := &fakeResolver{class: target}
	p := poolWith(raw, resolver, nil)

	var wg sync.WaitGroup
	results := make([]*object.Class, 8)
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := p.GetClass(2)
			if err != nil {
				t.Errorf("GetClass: %v", err)
			}
			results[i] = c
		}()
	}
	wg.Wait()

	if resolver.calls.Load() != 1 {
		t.Errorf("loader called %d times, want exactly 1 (idempotent resolution)", resolver.calls.Load())
	}
	for _, c := range results {
		if c != target {
			t.Error("concurrent resolvers disagreed on the resolved class")
		}
	}
}

func TestGetStringInternsOnce(t *testing.T) {
	raw := []classfile.ConstantPoolEntry{
		nil,
		&classfile.ConstantUtf8{Value: "hi"},
		&classfile.ConstantString{StringIndex: 1},
	}
	strs := &fakeStrings{}
	p := poolWith(raw, nil, strs)

	if _, err := p.GetString(2); err != nil {
		t.Fatal(err)
	}
	if _, err := p.GetString(2); err != nil {
		t.Fatal(err)
	}
	if strs.calls.Load() != 1 {
		t.Errorf("Intern called %d times, want 1", strs.calls.Load())
	}
}

func TestGetFieldrefResolvesThroughSuperclass(t *testing.T) {
	super := object.NewClass(symbol.Global().Intern("Super"), nil)
	super.Fields = []*object.Field{{NameStr: "x", DescriptorStr: "I"}}
	owner := object.NewClass(symbol.Global().Intern("Owner"), nil)
	owner.Super = super

	raw := []classfile.ConstantPoolEntry{
		nil,
		&classfile.ConstantUtf8{Value: "Owner"},
		&classfile.ConstantClass{NameIndex: 1},
		&classfile.ConstantUtf8{Value: "x"},
		&classfile.ConstantUtf8{Value: "I"},
		&classfile.ConstantNameAndType{NameIndex: 3, DescriptorIndex: 4},
		&classfile.ConstantFieldref{ClassIndex: 2, NameAndTypeIndex: 5},
	}
	p := poolWith(raw, &fakeResolver{class: owner}, nil)

	f, err := p.GetFieldref(6)
	if err != nil {
		t.Fatal(err)
	}
	if f.NameStr != "x" {
		t.Errorf("resolved field name = %q, want x", f.NameStr)
	}
}

func TestGetFieldrefMissingFieldErrors(t *testing.T) {
	owner := object.NewClass(symbol.Global().Intern("Empty"), nil)
	raw := []classfile.ConstantPoolEntry{
		nil,
		&classfile.ConstantUtf8{Value: "Empty"},
		&classfile.ConstantClass{NameIndex: 1},
		&classfile.ConstantUtf8{Value: "missing"},
		&classfile.ConstantUtf8{Value: "I"},
		&classfile.ConstantNameAndType{NameIndex: 3, DescriptorIndex: 4},
		&classfile.ConstantFieldref{ClassIndex: 2, NameAndTypeIndex: 5},
	}
	p := poolWith(raw, &fakeResolver{class: owner}, nil)

	if _, err := p.GetFieldref(6); err == nil {
		t.Fatal("expected NoSuchFieldError-style error")
	}
}

func TestGetMethodHandleForGetField(t *testing.T) {
	owner := object.NewClass(symbol.Global().Intern("Owner"), nil)
	owner.Fields = []*object.Field{{NameStr: "x", DescriptorStr: "I"}}

	raw := []classfile.ConstantPoolEntry{
		nil,
		&classfile.ConstantUtf8{Value: "Owner"},
		&classfile.ConstantClass{NameIndex: 1},
		&classfile.ConstantUtf8{Value: "x"},
		&classfile.ConstantUtf8{Value: "I"},
		&classfile.ConstantNameAndType{NameIndex: 3, DescriptorIndex: 4},
		&classfile.ConstantFieldref{ClassIndex: 2, NameAndTypeIndex: 5},
		&classfile.ConstantMethodHandle{ReferenceKind: classfile.RefGetField, ReferenceIndex: 6},
	}
	p := poolWith(raw, &fakeResolver{class: owner}, nil)

	mh, err := p.GetMethodHandle(7)
	if err != nil {
		t.Fatal(err)
	}
	if mh.Kind != object.RefGetField || mh.Field == nil || mh.Field.NameStr != "x" {
		t.Errorf("unexpected method handle: %+v", mh)
	}
}

func TestGetDynamicWithoutLinkerErrors(t *testing.T) {
	raw := []classfile.ConstantPoolEntry{
		nil,
		&classfile.ConstantUtf8{Value: "n"},
		&classfile.ConstantUtf8{Value: "I"},
		&classfile.ConstantNameAndType{NameIndex: 1, DescriptorIndex: 2},
		&classfile.ConstantDynamic{BootstrapMethodAttrIndex: 0, NameAndTypeIndex: 3},
	}
	p := poolWith(raw, nil, nil)

	if _, err := p.GetDynamic(4); err == nil {
		t.Fatal("expected error with no bootstrap linker attached")
	}
}

func TestInvalidIndexErrors(t *testing.T) {
	p := poolWith([]classfile.ConstantPoolEntry{nil}, nil, nil)
	if _, err := p.GetUtf8(0); err == nil {
		t.Fatal("expected error for index 0")
	}
	if _, err := p.GetUtf8(99); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}
