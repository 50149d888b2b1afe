package interpreter

import (
	"github.com/jacobin-core/jvmcore/pkg/except"
	"github.com/jacobin-core/jvmcore/pkg/frame"
	"github.com/jacobin-core/jvmcore/pkg/object"
	"github.com/jacobin-core/jvmcore/pkg/thread"
)

// paramCount counts a descriptor's parameters, one per type regardless
// of category (long/double already occupy a single Value on this
// operand stack, unlike the two local-variable slots JVMS locals use —
// see the Value doc in pkg/object).
func paramCount(descriptor string) int {
	count := 0
	i := 0
	for i < len(descriptor) && descriptor[i] != '(' {
		i++
	}
	i++
	for i < len(descriptor) && descriptor[i] != ')' {
		switch descriptor[i] {
		case '[':
			for descriptor[i] == '[' {
				i++
			}
			if descriptor[i] == 'L' {
				for descriptor[i] != ';' {
					i++
				}
			}
			count++
			i++
		case 'L':
			for descriptor[i] != ';' {
				i++
			}
			count++
			i++
		default:
			count++
			i++
		}
	}
	return count
}

func isVoidReturn(descriptor string) bool {
	i := 0
	for i < len(descriptor) && descriptor[i] != ')' {
		i++
	}
	return i+1 < len(descriptor) && descriptor[i+1] == 'V'
}

// popArgs pops n argument Values off the operand stack in declaration
// order (the stack holds them with the last parameter on top).
func popArgs(fr *frame.Frame, n int) []object.Value {
	args := make([]object.Value, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = fr.Pop()
	}
	return args
}

func (vm *VM) pushResult(fr *frame.Frame, descriptor string, v object.Value) {
	if !isVoidReturn(descriptor) {
		fr.Push(v)
	}
}

// execInvokevirtual implements `invokevirtual`: resolves the symbolic
// method reference, then lets the dispatcher pick the actual override
// via the receiver's vtable (spec.md §4.10 "invokevirtual").
func (vm *VM) execInvokevirtual(th *thread.Thread, fr *frame.Frame) (object.Value, bool, error) {
	index := fr.ReadU16()
	m, err := vm.pool(fr).GetMethodref(index)
	if err != nil {
		return object.Value{}, false, err
	}
	args := popArgs(fr, paramCount(m.DescriptorStr))
	recv := fr.Pop()
	if recv.IsNull() {
		return object.Value{}, false, vm.throw(th, th.Frames, except.NullPointerException, "")
	}
	full := append([]object.Value{recv}, args...)
	ret, err := vm.Dispatch.InvokeVirtual(th, m, full)
	if err != nil {
		return object.Value{}, false, err
	}
	vm.pushResult(fr, m.DescriptorStr, ret)
	return object.Value{}, false, nil
}

// execInvokespecial implements `invokespecial`: constructor, private,
// and superclass-method invocation, bound directly to the resolved
// method rather than virtually dispatched (spec.md §4.10).
func (vm *VM) execInvokespecial(th *thread.Thread, fr *frame.Frame) (object.Value, bool, error) {
	index := fr.ReadU16()
	m, err := vm.pool(fr).GetMethodref(index)
	if err != nil {
		return object.Value{}, false, err
	}
	args := popArgs(fr, paramCount(m.DescriptorStr))
	recv := fr.Pop()
	if recv.IsNull() {
		return object.Value{}, false, vm.throw(th, th.Frames, except.NullPointerException, "")
	}
	full := append([]object.Value{recv}, args...)
	ret, err := vm.Dispatch.InvokeSpecial(th, m, full)
	if err != nil {
		return object.Value{}, false, err
	}
	vm.pushResult(fr, m.DescriptorStr, ret)
	return object.Value{}, false, nil
}

// execInvokestatic implements `invokestatic`: no receiver, and the
// owning class must be initialized before the call runs (JVMS §5.5).
func (vm *VM) execInvokestatic(th *thread.Thread, fr *frame.Frame) (object.Value, bool, error) {
	index := fr.ReadU16()
	m, err := vm.pool(fr).GetMethodref(index)
	if err != nil {
		return object.Value{}, false, err
	}
	if err := vm.Dispatch.EnsureInitialized(th, m.Owner); err != nil {
		return object.Value{}, false, err
	}
	args := popArgs(fr, paramCount(m.DescriptorStr))
	ret, err := vm.Dispatch.InvokeStatic(th, m, args)
	if err != nil {
		return object.Value{}, false, err
	}
	vm.pushResult(fr, m.DescriptorStr, ret)
	return object.Value{}, false, nil
}

// execInvokeinterface implements `invokeinterface`: the count and
// trailing zero operand bytes are historical (JVMS §6.5.invokeinterface)
// and carry no information this interpreter needs.
func (vm *VM) execInvokeinterface(th *thread.Thread, fr *frame.Frame) (object.Value, bool, error) {
	index := fr.ReadU16()
	_ = fr.ReadU8() // count
	_ = fr.ReadU8() // reserved, must be zero
	m, err := vm.pool(fr).GetInterfaceMethodref(index)
	if err != nil {
		return object.Value{}, false, err
	}
	args := popArgs(fr, paramCount(m.DescriptorStr))
	recv := fr.Pop()
	if recv.IsNull() {
		return object.Value{}, false, vm.throw(th, th.Frames, except.NullPointerException, "")
	}
	full := append([]object.Value{recv}, args...)
	ret, err := vm.Dispatch.InvokeInterface(th, m.Owner, m, full)
	if err != nil {
		return object.Value{}, false, err
	}
	vm.pushResult(fr, m.DescriptorStr, ret)
	return object.Value{}, false, nil
}

// execInvokedynamic implements `invokedynamic`: the trailing two zero
// operand bytes are reserved (JVMS §6.5.invokedynamic), and there is no
// receiver — every captured value the call site needs arrives as an
// ordinary descriptor parameter (spec.md §4.10 "invokedynamic linkage").
func (vm *VM) execInvokedynamic(th *thread.Thread, fr *frame.Frame) (object.Value, bool, error) {
	index := fr.ReadU16()
	_ = fr.ReadU8()
	_ = fr.ReadU8()
	pool := vm.pool(fr)
	cs, err := pool.GetInvokeDynamic(index)
	if err != nil {
		return object.Value{}, false, err
	}
	descriptor, err := pool.InvokeDynamicDescriptor(index)
	if err != nil {
		return object.Value{}, false, err
	}
	args := popArgs(fr, paramCount(descriptor))
	ret, err := vm.Dispatch.InvokeDynamic(th, cs, args)
	if err != nil {
		return object.Value{}, false, err
	}
	vm.pushResult(fr, descriptor, ret)
	return object.Value{}, false, nil
}
