package constantpool

import (
	"fmt"

	"github.com/jacobin-core/jvmcore/pkg/classfile"
	"github.com/jacobin-core/jvmcore/pkg/object"
)

// BootstrapLinker drives the bootstrap-method call that links an
// invokedynamic instruction or a dynamic constant to a concrete
// CallSite (spec.md §4.10 "invokedynamic linkage"). Implemented by the
// dispatch package, which owns the machinery for invoking the
// bootstrap method itself; constantpool only caches the result.
type BootstrapLinker interface {
	LinkCallSite(pool *Pool, bootstrap classfile.BootstrapMethod, name, descriptor string) (*object.CallSite, error)
}

// SetBootstrap attaches this class's BootstrapMethods attribute and a
// linker, enabling GetDynamic/GetInvokeDynamic. Classes with no
// invokedynamic/dynamic-constant instructions never call this.
func (p *Pool) SetBootstrap(methods []classfile.BootstrapMethod, linker BootstrapLinker) {
	p.bootstrap = methods
	p.linker = linker
}

// GetMethodHandle resolves a MethodHandle constant per JVMS §5.4.3.5:
// dispatch on reference_kind to either a field or a method/interface
// method reference.
func (p *Pool) GetMethodHandle(index uint16) (*object.MethodHandle, error) {
	v, err := p.resolve(index, func() (any, error) {
		e, err := p.entry(index)
		if err != nil {
			return nil, err
		}
		mh, ok := e.(*classfile.ConstantMethodHandle)
		if !ok {
			return nil, fmt.Errorf("index %d is not MethodHandle", index)
		}
		kind := object.MethodHandleKind(mh.ReferenceKind)
		switch kind {
		case object.RefGetField, object.RefGetStatic, object.RefPutField, object.RefPutStatic:
			f, err := p.GetFieldref(mh.ReferenceIndex)
			if err != nil {
				return nil, err
			}
			return &object.MethodHandle{Kind: kind, Field: f}, nil
		case object.RefInvokeInterface:
			m, err := p.GetInterfaceMethodref(mh.ReferenceIndex)
			if err != nil {
				return nil, err
			}
			return &object.MethodHandle{Kind: kind, Method: m}, nil
		default: // RefInvokeVirtual, RefInvokeStatic, RefInvokeSpecial, RefNewInvokeSpecial
			m, err := p.GetMethodref(mh.ReferenceIndex)
			if err != nil {
				return nil, err
			}
			return &object.MethodHandle{Kind: kind, Method: m}, nil
		}
	})
	if err != nil {
		return nil, err
	}
	return v.(*object.MethodHandle), nil
}

// GetMethodType resolves a MethodType constant: just its descriptor
// Utf8, parsed lazily by whoever consumes it.
func (p *Pool) GetMethodType(index uint16) (*object.MethodType, error) {
	v, err := p.resolve(index, func() (any, error) {
		e, err := p.entry(index)
		if err != nil {
			return nil, err
		}
		mt, ok := e.(*classfile.ConstantMethodType)
		if !ok {
			return nil, fmt.Errorf("index %d is not MethodType", index)
		}
		desc, err := p.GetUtf8(mt.DescriptorIndex)
		if err != nil {
			return nil, err
		}
		return &object.MethodType{Descriptor: desc}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*object.MethodType), nil
}

// InvokeDynamicDescriptor returns the method descriptor named by an
// InvokeDynamic constant's NameAndType, without resolving (and possibly
// linking) the call site itself — the interpreter needs this up front
// to know how many argument slots to pop off the operand stack.
func (p *Pool) InvokeDynamicDescriptor(index uint16) (string, error) {
	e, err := p.entry(index)
	if err != nil {
		return "", err
	}
	d, ok := e.(*classfile.ConstantInvokeDynamic)
	if !ok {
		return "", fmt.Errorf("index %d is not InvokeDynamic", index)
	}
	_, descriptor, err := p.nameAndType(d.NameAndTypeIndex)
	return descriptor, err
}

func (p *Pool) linkBootstrap(bootstrapAttrIndex uint16, natIndex uint16) (*object.CallSite, error) {
	if p.linker == nil {
		return nil, fmt.Errorf("no bootstrap linker attached to this pool")
	}
	if int(bootstrapAttrIndex) >= len(p.bootstrap) {
		return nil, fmt.Errorf("bootstrap method attr index %d out of range", bootstrapAttrIndex)
	}
	name, descriptor, err := p.nameAndType(natIndex)
	if err != nil {
		return nil, err
	}
	return p.linker.LinkCallSite(p, p.bootstrap[bootstrapAttrIndex], name, descriptor)
}

// GetDynamic resolves a Dynamic (condy) constant to the CallSite its
// bootstrap method links (spec.md §4.6, §4.10).
func (p *Pool) GetDynamic(index uint16) (*object.CallSite, error) {
	v, err := p.resolve(index, func() (any, error) {
		e, err := p.entry(index)
		if err != nil {
			return nil, err
		}
		d, ok := e.(*classfile.ConstantDynamic)
		if !ok {
			return nil, fmt.Errorf("index %d is not Dynamic", index)
		}
		return p.linkBootstrap(d.BootstrapMethodAttrIndex, d.NameAndTypeIndex)
	})
	if err != nil {
		return nil, err
	}
	return v.(*object.CallSite), nil
}

// GetInvokeDynamic resolves an InvokeDynamic constant to its call
// site (spec.md §4.10 "invokedynamic linkage"). Threads that hit the
// same invokedynamic instruction for the first time concurrently may
// each run the bootstrap linker; the CAS in resolve publishes the first
// completed CallSite and every racer returns that one.
func (p *Pool) GetInvokeDynamic(index uint16) (*object.CallSite, error) {
	v, err := p.resolve(index, func() (any, error) {
		e, err := p.entry(index)
		if err != nil {
			return nil, err
		}
		d, ok := e.(*classfile.ConstantInvokeDynamic)
		if !ok {
			return nil, fmt.Errorf("index %d is not InvokeDynamic", index)
		}
		cs, err := p.linkBootstrap(d.BootstrapMethodAttrIndex, d.NameAndTypeIndex)
		if err != nil {
			return nil, err
		}
		cs.Mutable = true
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*object.CallSite), nil
}
