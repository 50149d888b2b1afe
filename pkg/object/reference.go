package object

import (
	"fmt"
	"unsafe"
)

// Instance is a class-instance heap object: header plus one Value slot
// per field (own class's fields plus every inherited field), indexed by
// Field.Index (spec.md §4.4 "Layout"). Storing fields in a Go slice
// rather than packing them at literal byte offsets sacrifices the real
// JVM's memory layout in exchange for GC-managed, bounds-checked access
// idiomatic to Go; Field.Offset is still computed and kept for spec
// fidelity and for anything (native code, reflection) that needs a
// stable numeric handle per field.
type Instance struct {
	Header
	Fields []Value
}

// NewInstance allocates a zeroed instance of class, per the `new`
// bytecode's allocation obligations (spec.md §4.9 "Object operations").
func NewInstance(class *Class) *Instance {
	inst := &Instance{Fields: make([]Value, class.TotalInstanceSlots)}
	initHeader(&inst.Header, class)
	return inst
}

// GetField reads the field at the given slot index.
func (inst *Instance) GetField(index int) Value { return inst.Fields[index] }

// SetField writes the field at the given slot index.
func (inst *Instance) SetField(index int, v Value) { inst.Fields[index] = v }

// ArrayKind identifies an array's component type (spec.md §3 "Reference
// and Object": primitive-array vs object-array).
type ArrayKind uint8

const (
	ArrayBoolean ArrayKind = iota
	ArrayByte
	ArrayChar
	ArrayShort
	ArrayInt
	ArrayLong
	ArrayFloat
	ArrayDouble
	ArrayRef
)

// NewArrayKind maps a `newarray` atype operand (JVMS Table 6.5.newarray-A)
// to an ArrayKind.
func NewArrayKindFromAtype(atype uint8) (ArrayKind, error) {
	switch atype {
	case 4:
		return ArrayBoolean, nil
	case 5:
		return ArrayChar, nil
	case 6:
		return ArrayFloat, nil
	case 7:
		return ArrayDouble, nil
	case 8:
		return ArrayByte, nil
	case 9:
		return ArrayShort, nil
	case 10:
		return ArrayInt, nil
	case 11:
		return ArrayLong, nil
	default:
		return 0, fmt.Errorf("invalid newarray atype %d", atype)
	}
}

// Array is a contiguous, length-prefixed array object (spec.md §4.4
// "Layout"). Element values are stored uniformly as Value; primitive
// elements pack into Value's numeric bits, matching how locals and the
// operand stack already represent primitives.
type Array struct {
	Header
	ElemKind ArrayKind
	Elements []Value
}

// NewArray allocates a zero-initialized array of the given kind and
// length. class is the array's own Class (spec.md: "the array-class of
// this class"), not the component class.
func NewArray(class *Class, kind ArrayKind, length int) (*Array, error) {
	if length < 0 {
		return nil, fmt.Errorf("negative array length: %d", length)
	}
	arr := &Array{ElemKind: kind, Elements: make([]Value, length)}
	initHeader(&arr.Header, class)
	return arr, nil
}

func (a *Array) Len() int { return len(a.Elements) }

func (a *Array) Get(i int) (Value, error) {
	if i < 0 || i >= len(a.Elements) {
		return Value{}, fmt.Errorf("array index out of bounds: %d (length %d)", i, len(a.Elements))
	}
	return a.Elements[i], nil
}

func (a *Array) Set(i int, v Value) error {
	if i < 0 || i >= len(a.Elements) {
		return fmt.Errorf("array index out of bounds: %d (length %d)", i, len(a.Elements))
	}
	a.Elements[i] = v
	return nil
}

// AsArray recovers the concrete *Array behind a heap reference whose
// class is an array class. Array embeds Header as its first field, so
// the header's address is also the Array's address; this is the same
// header-then-payload dispatch a real JVM does with oop->klass(),
// expressed here as a pointer cast instead of a vtable.
func AsArray(h *Header) (*Array, bool) {
	if h == nil || h.Class() == nil || h.Class().Kind != KindArray {
		return nil, false
	}
	return (*Array)(unsafe.Pointer(h)), true
}

// AsInstance recovers the concrete *Instance behind a heap reference
// whose class is an ordinary (non-array) class, by the same
// first-field address identity AsArray relies on.
func AsInstance(h *Header) (*Instance, bool) {
	if h == nil || h.Class() == nil || h.Class().Kind == KindArray {
		return nil, false
	}
	return (*Instance)(unsafe.Pointer(h)), true
}

// Mirror is the reflective `java.lang.Class` instance every Class
// lazily allocates exactly one of (spec.md §4.4 "Mirror").
type Mirror struct {
	Header
	Reflects      *Class
	ComponentType *Mirror // set for array and primitive mirrors
}

func newMirror(class *Class) *Mirror {
	m := &Mirror{Reflects: class}
	initHeader(&m.Header, nil) // the mirror's own Class (java.lang.Class) is attached by the loader once it exists
	return m
}

// Mirror returns this class's reflective java.lang.Class instance,
// allocating it on first access (spec.md §4.4 "Mirror": "allocated
// lazily but before the Class is externally usable").
func (c *Class) Mirror() *Mirror {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mirror == nil {
		c.mirror = newMirror(c)
	}
	return c.mirror
}

// MirrorIfPresent returns this class's mirror without allocating one,
// for the bootstrap fix-up pass that backfills already-allocated
// mirrors' header Class once java.lang.Class itself finishes loading.
func (c *Class) MirrorIfPresent() *Mirror {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mirror
}

// AsMirror recovers the concrete *Mirror behind a heap reference whose
// class is java.lang.Class, by the same first-field address identity
// AsArray/AsInstance rely on. Checked by class name rather than Kind,
// since a mirror's own header.Class is java.lang.Class itself (an
// ordinary KindInstance class) rather than a dedicated mirror Kind.
func AsMirror(h *Header) (*Mirror, bool) {
	if h == nil || h.Class() == nil || h.Class().NameStr() != "java/lang/Class" {
		return nil, false
	}
	return (*Mirror)(unsafe.Pointer(h)), true
}

// AttachMirrorClass backfills every already-allocated mirror's header
// Class pointer once java.lang.Class itself has finished loading; called
// once by the bootstrap sequence (classes loaded before java.lang.Class
// necessarily have their mirror's header Class still nil).
func (m *Mirror) AttachMirrorClass(classClass *Class) {
	if m.Header.class == nil {
		m.Header.class = classClass
	}
}
