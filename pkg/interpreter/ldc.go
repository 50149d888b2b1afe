package interpreter

import (
	"fmt"

	"github.com/jacobin-core/jvmcore/pkg/classfile"
	"github.com/jacobin-core/jvmcore/pkg/frame"
	"github.com/jacobin-core/jvmcore/pkg/object"
	"github.com/jacobin-core/jvmcore/pkg/thread"
)

// execLdc implements ldc/ldc_w: the constant's tag determines which
// typed accessor to call and how to box the result onto the operand
// stack (spec.md §4.6 "Typed accessors").
func (vm *VM) execLdc(th *thread.Thread, fr *frame.Frame, index uint16) (object.Value, bool, error) {
	pool := vm.pool(fr)
	raw, err := pool.RawEntry(index)
	if err != nil {
		return object.Value{}, false, err
	}
	switch raw.(type) {
	case *classfile.ConstantInteger:
		v, err := pool.GetInteger(index)
		if err != nil {
			return object.Value{}, false, err
		}
		fr.Push(object.IntValue(v))
	case *classfile.ConstantFloat:
		v, err := pool.GetFloat(index)
		if err != nil {
			return object.Value{}, false, err
		}
		fr.Push(object.FloatValue(v))
	case *classfile.ConstantString:
		v, err := pool.GetString(index)
		if err != nil {
			return object.Value{}, false, err
		}
		fr.Push(object.RefValue(&v.Header))
	case *classfile.ConstantClass:
		c, err := pool.GetClass(index)
		if err != nil {
			return object.Value{}, false, err
		}
		fr.Push(object.RefValue(&c.Mirror().Header))
	case *classfile.ConstantMethodHandle:
		mh, err := pool.GetMethodHandle(index)
		if err != nil {
			return object.Value{}, false, err
		}
		cls, err := vm.Loader.Load("java/lang/invoke/MethodHandle")
		if err != nil {
			return object.Value{}, false, err
		}
		inst := object.NewInstance(cls)
		object.AttachMethodHandle(inst, mh)
		fr.Push(object.RefValue(&inst.Header))
	case *classfile.ConstantMethodType:
		mt, err := pool.GetMethodType(index)
		if err != nil {
			return object.Value{}, false, err
		}
		cls, err := vm.Loader.Load("java/lang/invoke/MethodType")
		if err != nil {
			return object.Value{}, false, err
		}
		inst := object.NewInstance(cls)
		object.AttachMethodType(inst, mt)
		fr.Push(object.RefValue(&inst.Header))
	case *classfile.ConstantDynamic:
		cs, err := pool.GetDynamic(index)
		if err != nil {
			return object.Value{}, false, err
		}
		return vm.pushCallSiteValue(th, cs)
	default:
		return object.Value{}, false, fmt.Errorf("ldc: unsupported constant kind at index %d", index)
	}
	return object.Value{}, false, nil
}

// pushCallSiteValue pushes the value of a resolved dynamic constant onto
// the operand stack. It does not read cs or its Target: the value pushed
// is always null, whatever the bootstrap method linked.
func (vm *VM) pushCallSiteValue(th *thread.Thread, cs *object.CallSite) (object.Value, bool, error) {
	fr := th.Top()
	fr.Push(object.NullValue())
	return object.Value{}, false, nil
}

// execLdc2 implements ldc2_w: Long or Double constants, the only
// 8-byte (two-slot) constants `ldc` itself cannot address.
func (vm *VM) execLdc2(fr *frame.Frame, index uint16) (object.Value, bool, error) {
	pool := vm.pool(fr)
	raw, err := pool.RawEntry(index)
	if err != nil {
		return object.Value{}, false, err
	}
	switch raw.(type) {
	case *classfile.ConstantLong:
		v, err := pool.GetLong(index)
		if err != nil {
			return object.Value{}, false, err
		}
		fr.Push(object.LongValue(v))
	case *classfile.ConstantDouble:
		v, err := pool.GetDouble(index)
		if err != nil {
			return object.Value{}, false, err
		}
		fr.Push(object.DoubleValue(v))
	default:
		return object.Value{}, false, fmt.Errorf("ldc2_w: unsupported constant kind at index %d", index)
	}
	return object.Value{}, false, nil
}
