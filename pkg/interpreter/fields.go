package interpreter

import (
	"github.com/jacobin-core/jvmcore/pkg/except"
	"github.com/jacobin-core/jvmcore/pkg/frame"
	"github.com/jacobin-core/jvmcore/pkg/object"
	"github.com/jacobin-core/jvmcore/pkg/thread"
)

// execGetstatic implements `getstatic`: resolves the field, triggers
// class initialization (JVMS §5.5 step 7: "on first active use"), and
// reads the static value out of the owning class's StaticBlock.
func (vm *VM) execGetstatic(th *thread.Thread, fr *frame.Frame) (object.Value, bool, error) {
	index := fr.ReadU16()
	f, err := vm.pool(fr).GetFieldref(index)
	if err != nil {
		return object.Value{}, false, err
	}
	if err := vm.Dispatch.EnsureInitialized(th, f.Owner); err != nil {
		return object.Value{}, false, err
	}
	fr.Push(f.Owner.StaticBlock[f.Offset])
	return object.Value{}, false, nil
}

// execPutstatic implements `putstatic`.
func (vm *VM) execPutstatic(th *thread.Thread, fr *frame.Frame) (object.Value, bool, error) {
	index := fr.ReadU16()
	f, err := vm.pool(fr).GetFieldref(index)
	if err != nil {
		return object.Value{}, false, err
	}
	if err := vm.Dispatch.EnsureInitialized(th, f.Owner); err != nil {
		return object.Value{}, false, err
	}
	v := fr.Pop()
	f.Owner.StaticBlock[f.Offset] = v
	return object.Value{}, false, nil
}

// execGetfield implements `getfield`, throwing NullPointerException on
// a null receiver (spec.md §4.9 "Object operations").
func (vm *VM) execGetfield(th *thread.Thread, fr *frame.Frame) (object.Value, bool, error) {
	index := fr.ReadU16()
	f, err := vm.pool(fr).GetFieldref(index)
	if err != nil {
		return object.Value{}, false, err
	}
	ref := fr.Pop()
	if ref.IsNull() {
		return object.Value{}, false, vm.throw(th, th.Frames, except.NullPointerException, "")
	}
	inst, ok := object.AsInstance(ref.Ref)
	if !ok {
		return object.Value{}, false, vm.throw(th, th.Frames, except.NullPointerException, "")
	}
	fr.Push(inst.GetField(f.Index))
	return object.Value{}, false, nil
}

// execPutfield implements `putfield`.
func (vm *VM) execPutfield(th *thread.Thread, fr *frame.Frame) (object.Value, bool, error) {
	index := fr.ReadU16()
	f, err := vm.pool(fr).GetFieldref(index)
	if err != nil {
		return object.Value{}, false, err
	}
	v := fr.Pop()
	ref := fr.Pop()
	if ref.IsNull() {
		return object.Value{}, false, vm.throw(th, th.Frames, except.NullPointerException, "")
	}
	inst, ok := object.AsInstance(ref.Ref)
	if !ok {
		return object.Value{}, false, vm.throw(th, th.Frames, except.NullPointerException, "")
	}
	inst.SetField(f.Index, v)
	return object.Value{}, false, nil
}
