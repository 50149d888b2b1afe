package constantpool

import (
	"fmt"

	"github.com/jacobin-core/jvmcore/pkg/classfile"
	"github.com/jacobin-core/jvmcore/pkg/object"
)

// nameAndType decodes a NameAndType entry into its two Utf8 strings.
func (p *Pool) nameAndType(index uint16) (name, descriptor string, err error) {
	e, err := p.entry(index)
	if err != nil {
		return "", "", err
	}
	nat, ok := e.(*classfile.ConstantNameAndType)
	if !ok {
		return "", "", fmt.Errorf("index %d is not NameAndType", index)
	}
	name, err = p.GetUtf8(nat.NameIndex)
	if err != nil {
		return "", "", err
	}
	descriptor, err = p.GetUtf8(nat.DescriptorIndex)
	if err != nil {
		return "", "", err
	}
	return name, descriptor, nil
}

// GetFieldref resolves a Fieldref constant per JVMS §5.4.3.2: resolve
// the owning class, then search it and its superclass/superinterface
// chain for a matching field.
func (p *Pool) GetFieldref(index uint16) (*object.Field, error) {
	v, err := p.resolve(index, func() (any, error) {
		e, err := p.entry(index)
		if err != nil {
			return nil, err
		}
		fr, ok := e.(*classfile.ConstantFieldref)
		if !ok {
			return nil, fmt.Errorf("index %d is not Fieldref", index)
		}
		owner, err := p.GetClass(fr.ClassIndex)
		if err != nil {
			return nil, err
		}
		name, descriptor, err := p.nameAndType(fr.NameAndTypeIndex)
		if err != nil {
			return nil, err
		}
		f := owner.ResolveField(name, descriptor)
		if f == nil {
			return nil, fmt.Errorf("NoSuchFieldError: %s.%s %s", owner.NameStr(), name, descriptor)
		}
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*object.Field), nil
}

// GetMethodref resolves a Methodref constant per JVMS §5.4.3.3.
func (p *Pool) GetMethodref(index uint16) (*object.Method, error) {
	v, err := p.resolve(index, func() (any, error) {
		e, err := p.entry(index)
		if err != nil {
			return nil, err
		}
		mr, ok := e.(*classfile.ConstantMethodref)
		if !ok {
			return nil, fmt.Errorf("index %d is not Methodref", index)
		}
		owner, err := p.GetClass(mr.ClassIndex)
		if err != nil {
			return nil, err
		}
		name, descriptor, err := p.nameAndType(mr.NameAndTypeIndex)
		if err != nil {
			return nil, err
		}
		m := owner.ResolveMethod(name, descriptor)
		if m == nil {
			return nil, fmt.Errorf("NoSuchMethodError: %s.%s%s", owner.NameStr(), name, descriptor)
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*object.Method), nil
}

// GetInterfaceMethodref resolves an InterfaceMethodref constant per
// JVMS §5.4.3.4. Resolution here only locates a declaration; selecting
// among default/abstract candidates at an interface-invocation call
// site is the interpreter's job (spec.md §4.10 "invokeinterface").
func (p *Pool) GetInterfaceMethodref(index uint16) (*object.Method, error) {
	v, err := p.resolve(index, func() (any, error) {
		e, err := p.entry(index)
		if err != nil {
			return nil, err
		}
		mr, ok := e.(*classfile.ConstantInterfaceMethodref)
		if !ok {
			return nil, fmt.Errorf("index %d is not InterfaceMethodref", index)
		}
		owner, err := p.GetClass(mr.ClassIndex)
		if err != nil {
			return nil, err
		}
		name, descriptor, err := p.nameAndType(mr.NameAndTypeIndex)
		if err != nil {
			return nil, err
		}
		m := owner.ResolveMethod(name, descriptor)
		if m == nil {
			return nil, fmt.Errorf("NoSuchMethodError: %s.%s%s", owner.NameStr(), name, descriptor)
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*object.Method), nil
}
