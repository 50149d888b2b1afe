package object

import (
	"sync"

	"github.com/jacobin-core/jvmcore/pkg/symbol"
)

// Kind classifies what a Class represents (spec.md §3 "Class").
type Kind uint8

const (
	KindInstance Kind = iota
	KindArray
	KindPrimitive
	KindHidden
)

// InitState is a Class's position in the JLS §5.5 initialization state
// machine (spec.md §3 "Class" Lifecycle, §4.5 "Initialization").
type InitState int32

const (
	Allocated InitState = iota
	BeingLinked
	Linked
	BeingInitialized
	FullyInitialized
	InitializationFailed
)

func (s InitState) String() string {
	switch s {
	case Allocated:
		return "Allocated"
	case BeingLinked:
		return "BeingLinked"
	case Linked:
		return "Linked"
	case BeingInitialized:
		return "BeingInitialized"
	case FullyInitialized:
		return "FullyInitialized"
	case InitializationFailed:
		return "InitializationFailed"
	default:
		return "InitState(?)"
	}
}

// Class represents a loaded type, uniquely identified by the pair
// (defining loader, name) (spec.md §3 "Class").
type Class struct {
	Name   symbol.Symbol
	Loader Loader // opaque handle; concrete type lives in pkg/classloader

	AccessFlags uint16
	Kind        Kind

	Super      *Class
	Interfaces []*Class

	Fields  []*Field
	Methods []*Method

	InstanceFieldSize  uint32 // bytes beyond the header, stable from end-of-preparation
	TotalInstanceSlots int    // own + inherited non-static field slots; sizes Instance.Fields
	StaticBlock        []Value

	VTable []*Method      // ordered; vtable[i] override-compatible with super.vtable[i]
	ITable map[*Class][]*Method // interface class -> concrete implementations, indexed like the interface's own method list

	ConstantPool ConstantPool // satisfied by pkg/constantpool's runtime pool

	Module string

	NestHost    *Class
	NestMembers []*Class

	ArrayClass *Class // lazily materialized array-of-this-class, once requested
	Component  *Class // for array classes: the element type's Class

	mirror *Mirror
	mu     sync.Mutex // guards mirror allocation and init-state transitions

	state    InitState
	initCond *sync.Cond
	initErr  error // cached throwable once state == InitializationFailed
	initBy   int64 // thread id currently running <clinit>, while BeingInitialized
}

// Loader is the subset of pkg/classloader.Loader that pkg/object needs
// to reference without importing it back (classloader already imports
// object for Class/Field/Method construction).
type Loader interface {
	Name() string
}

// ConstantPool is the subset of pkg/constantpool.Pool that pkg/object
// needs to reference without an import cycle.
type ConstantPool interface {
	Len() int
}

// NewClass allocates a Class in the Allocated state. Callers (the class
// loader) are responsible for filling in the remaining fields per the
// load algorithm (spec.md §4.5).
func NewClass(name symbol.Symbol, loader Loader) *Class {
	c := &Class{Name: name, Loader: loader, state: Allocated}
	c.initCond = sync.NewCond(&c.mu)
	return c
}

// State returns the class's current initialization state.
func (c *Class) State() InitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsSubclassOf reports whether c is the same class as, or a (possibly
// indirect) subclass of, other.
func (c *Class) IsSubclassOf(other *Class) bool {
	for cur := c; cur != nil; cur = cur.Super {
		if cur == other {
			return true
		}
	}
	return false
}

// ImplementsInterface reports whether c or any of its superclasses
// directly or transitively implements iface.
func (c *Class) ImplementsInterface(iface *Class) bool {
	for cur := c; cur != nil; cur = cur.Super {
		for _, i := range cur.Interfaces {
			if i == iface || i.ImplementsInterface(iface) {
				return true
			}
		}
	}
	return false
}

// IsAssignableTo reports the checkcast/instanceof assignability rule:
// c is assignable to target if target is a superclass or implemented
// interface of c (arrays and primitives are handled by the caller, which
// knows the covariance/boxing rules the interpreter needs).
func (c *Class) IsAssignableTo(target *Class) bool {
	return c.IsSubclassOf(target) || c.ImplementsInterface(target)
}

// FindMethod looks up a method by name and descriptor declared directly
// on this class (not inherited).
func (c *Class) FindMethod(name, descriptor string) *Method {
	for _, m := range c.Methods {
		if m.NameStr == name && m.DescriptorStr == descriptor {
			return m
		}
	}
	return nil
}

// ResolveMethod walks this class and its superclasses looking for the
// first declared method matching name+descriptor (spec.md §4.6,
// Method-ref resolution, class-hierarchy portion of JVMS §5.4.3.3).
func (c *Class) ResolveMethod(name, descriptor string) *Method {
	for cur := c; cur != nil; cur = cur.Super {
		if m := cur.FindMethod(name, descriptor); m != nil {
			return m
		}
	}
	return nil
}

// ResolveField walks this class, its superinterfaces, and its
// superclasses looking for the first matching field (JVMS §5.4.3.2).
func (c *Class) ResolveField(name, descriptor string) *Field {
	if c == nil {
		return nil
	}
	for _, f := range c.Fields {
		if f.NameStr == name && f.DescriptorStr == descriptor {
			return f
		}
	}
	for _, iface := range c.Interfaces {
		if f := iface.ResolveField(name, descriptor); f != nil {
			return f
		}
	}
	return c.Super.ResolveField(name, descriptor)
}
