package interpreter

import (
	"github.com/jacobin-core/jvmcore/pkg/except"
	"github.com/jacobin-core/jvmcore/pkg/frame"
	"github.com/jacobin-core/jvmcore/pkg/object"
	"github.com/jacobin-core/jvmcore/pkg/thread"
)

// execNew implements `new`: resolve the class, trigger initialization
// (JVMS §5.5 step 7), and allocate a zeroed instance (spec.md §4.9
// "Object operations").
func (vm *VM) execNew(th *thread.Thread, fr *frame.Frame) (object.Value, bool, error) {
	index := fr.ReadU16()
	class, err := vm.pool(fr).GetClass(index)
	if err != nil {
		return object.Value{}, false, err
	}
	if err := vm.Dispatch.EnsureInitialized(th, class); err != nil {
		return object.Value{}, false, err
	}
	inst := object.NewInstance(class)
	fr.Push(object.RefValue(&inst.Header))
	return object.Value{}, false, nil
}

// execAthrow implements `athrow`: pops the throwable, installs it as
// the thread's pending exception (spec.md §4.12 "Throwing"). A null
// reference itself throws NullPointerException, per JVMS.
func (vm *VM) execAthrow(th *thread.Thread, fr *frame.Frame) (object.Value, bool, error) {
	ref := fr.Pop()
	if ref.IsNull() {
		return object.Value{}, false, vm.throw(th, th.Frames, except.NullPointerException, "")
	}
	inst, ok := object.AsInstance(ref.Ref)
	if !ok {
		return object.Value{}, false, vm.throw(th, th.Frames, except.NullPointerException, "")
	}
	if except.Backtrace(inst) == nil {
		except.AttachBacktrace(inst, except.CaptureBacktrace(th.Frames))
	}
	th.Pending = inst
	return object.Value{}, false, ErrPending
}

// execCheckcast implements `checkcast`: a null reference always passes;
// otherwise the popped reference's class must be assignable to the
// resolved target, or ClassCastException is thrown (spec.md §4.9).
func (vm *VM) execCheckcast(th *thread.Thread, fr *frame.Frame) (object.Value, bool, error) {
	index := fr.ReadU16()
	target, err := vm.pool(fr).GetClass(index)
	if err != nil {
		return object.Value{}, false, err
	}
	ref := fr.Peek()
	if ref.IsNull() {
		return object.Value{}, false, nil
	}
	actual := ref.Ref.Class()
	if actual == nil || !classAssignable(actual, target) {
		name := "<unknown>"
		if actual != nil {
			name = actual.NameStr()
		}
		return object.Value{}, false, vm.throw(th, th.Frames, except.ClassCastException,
			name+" cannot be cast to "+target.NameStr())
	}
	return object.Value{}, false, nil
}

// execInstanceof implements `instanceof`: null is never an instance of
// anything; otherwise pushes 1 or 0 per the same assignability rule
// checkcast uses.
func (vm *VM) execInstanceof(th *thread.Thread, fr *frame.Frame) (object.Value, bool, error) {
	index := fr.ReadU16()
	target, err := vm.pool(fr).GetClass(index)
	if err != nil {
		return object.Value{}, false, err
	}
	ref := fr.Pop()
	if ref.IsNull() {
		fr.Push(object.IntValue(0))
		return object.Value{}, false, nil
	}
	actual := ref.Ref.Class()
	if actual != nil && classAssignable(actual, target) {
		fr.Push(object.IntValue(1))
	} else {
		fr.Push(object.IntValue(0))
	}
	return object.Value{}, false, nil
}

// classAssignable extends Class.IsAssignableTo with array covariance
// (JVMS §4.10.1.2): an array class is assignable to another array class
// when their component types are themselves assignable (reference
// components) or identical (primitive components). Any other pair goes
// through Class.IsAssignableTo, so an array class reaches Object through
// its superclass; array Classes carry no interfaces, so a Cloneable or
// Serializable target does not match.
func classAssignable(from, to *object.Class) bool {
	if from == to {
		return true
	}
	if from.Kind == object.KindArray && to.Kind == object.KindArray {
		fc, tc := from.Component, to.Component
		if fc == nil || tc == nil {
			return false
		}
		if fc.Kind == object.KindPrimitive || tc.Kind == object.KindPrimitive {
			return fc == tc
		}
		return classAssignable(fc, tc)
	}
	return from.IsAssignableTo(to)
}
