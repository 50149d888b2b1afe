package interpreter

import (
	"fmt"

	"github.com/jacobin-core/jvmcore/pkg/except"
	"github.com/jacobin-core/jvmcore/pkg/frame"
	"github.com/jacobin-core/jvmcore/pkg/object"
	"github.com/jacobin-core/jvmcore/pkg/thread"
)

// execNewarray implements `newarray`: allocates a primitive array of
// the atype operand (spec.md §4.9 "Arrays"). Negative length throws
// NegativeArraySizeException.
func (vm *VM) execNewarray(th *thread.Thread, fr *frame.Frame) (object.Value, bool, error) {
	atype := fr.ReadU8()
	length := fr.Pop().Int()
	kind, err := object.NewArrayKindFromAtype(atype)
	if err != nil {
		return object.Value{}, false, err
	}
	arrClass, err := vm.Loader.LoadArrayClass(primitiveArrayDescriptor(kind))
	if err != nil {
		return object.Value{}, false, err
	}
	arr, err := object.NewArray(arrClass, kind, int(length))
	if err != nil {
		return object.Value{}, false, vm.throw(th, th.Frames, except.NegativeArraySizeException, fmt.Sprintf("%d", length))
	}
	fr.Push(object.RefValue(&arr.Header))
	return object.Value{}, false, nil
}

func primitiveArrayDescriptor(kind object.ArrayKind) string {
	switch kind {
	case object.ArrayBoolean:
		return "[Z"
	case object.ArrayByte:
		return "[B"
	case object.ArrayChar:
		return "[C"
	case object.ArrayShort:
		return "[S"
	case object.ArrayInt:
		return "[I"
	case object.ArrayLong:
		return "[J"
	case object.ArrayFloat:
		return "[F"
	case object.ArrayDouble:
		return "[D"
	default:
		return "[Ljava/lang/Object;"
	}
}

// execAnewarray implements `anewarray`: allocates a reference array
// whose component is the resolved class.
func (vm *VM) execAnewarray(th *thread.Thread, fr *frame.Frame) (object.Value, bool, error) {
	index := fr.ReadU16()
	comp, err := vm.pool(fr).GetClass(index)
	if err != nil {
		return object.Value{}, false, err
	}
	length := fr.Pop().Int()
	descriptor := "[" + componentDescriptor(comp)
	arrClass, err := vm.Loader.LoadArrayClass(descriptor)
	if err != nil {
		return object.Value{}, false, err
	}
	arr, err := object.NewArray(arrClass, object.ArrayRef, int(length))
	if err != nil {
		return object.Value{}, false, vm.throw(th, th.Frames, except.NegativeArraySizeException, fmt.Sprintf("%d", length))
	}
	fr.Push(object.RefValue(&arr.Header))
	return object.Value{}, false, nil
}

func componentDescriptor(c *object.Class) string {
	if c.Kind == object.KindArray {
		return c.NameStr()
	}
	return "L" + c.NameStr() + ";"
}

// execMultianewarray implements `multianewarray`: allocates dimensions
// outer-to-inner, with buildMultiArray recursing once per dimension.
func (vm *VM) execMultianewarray(th *thread.Thread, fr *frame.Frame) (object.Value, bool, error) {
	index := fr.ReadU16()
	dimCount := int(fr.ReadU8())
	arrClass, err := vm.pool(fr).GetClass(index)
	if err != nil {
		return object.Value{}, false, err
	}
	lengths := make([]int32, dimCount)
	for i := dimCount - 1; i >= 0; i-- {
		lengths[i] = fr.Pop().Int()
	}
	val, err := vm.buildMultiArray(th, arrClass, lengths)
	if err != nil {
		return object.Value{}, false, err
	}
	fr.Push(val)
	return object.Value{}, false, nil
}

func (vm *VM) buildMultiArray(th *thread.Thread, arrClass *object.Class, lengths []int32) (object.Value, error) {
	length := lengths[0]
	if length < 0 {
		return object.Value{}, vm.throw(th, th.Frames, except.NegativeArraySizeException, fmt.Sprintf("%d", length))
	}
	kind := object.ArrayRef
	if arrClass.Component != nil && arrClass.Component.Kind != object.KindArray && arrClass.Component.Kind == object.KindPrimitive {
		kind = primitiveKindOf(arrClass.Component.NameStr())
	}
	arr, err := object.NewArray(arrClass, kind, int(length))
	if err != nil {
		return object.Value{}, vm.throw(th, th.Frames, except.NegativeArraySizeException, fmt.Sprintf("%d", length))
	}
	if len(lengths) > 1 {
		for i := int32(0); i < length; i++ {
			elemClass := arrClass.Component
			elemVal, err := vm.buildMultiArray(th, elemClass, lengths[1:])
			if err != nil {
				return object.Value{}, err
			}
			arr.Set(int(i), elemVal)
		}
	}
	return object.RefValue(&arr.Header), nil
}

func primitiveKindOf(name string) object.ArrayKind {
	switch name {
	case "boolean":
		return object.ArrayBoolean
	case "byte":
		return object.ArrayByte
	case "char":
		return object.ArrayChar
	case "short":
		return object.ArrayShort
	case "long":
		return object.ArrayLong
	case "float":
		return object.ArrayFloat
	case "double":
		return object.ArrayDouble
	default:
		return object.ArrayInt
	}
}

// execArraylength implements `arraylength`.
func (vm *VM) execArraylength(th *thread.Thread, fr *frame.Frame) (object.Value, bool, error) {
	v := fr.Pop()
	if v.IsNull() {
		return object.Value{}, false, vm.throw(th, th.Frames, except.NullPointerException, "")
	}
	arr, ok := asArray(v)
	if !ok {
		return object.Value{}, false, fmt.Errorf("arraylength: not an array")
	}
	fr.Push(object.IntValue(int32(arr.Len())))
	return object.Value{}, false, nil
}

func asArray(v object.Value) (*object.Array, bool) {
	return object.AsArray(v.Ref)
}

// execArrayLoad implements the a*load family (spec.md §4.9 "Arrays").
func (vm *VM) execArrayLoad(th *thread.Thread, fr *frame.Frame, opcode uint8) (object.Value, bool, error) {
	index := fr.Pop().Int()
	ref := fr.Pop()
	if ref.IsNull() {
		return object.Value{}, false, vm.throw(th, th.Frames, except.NullPointerException, "")
	}
	arr, ok := asArray(ref)
	if !ok {
		return object.Value{}, false, fmt.Errorf("%s: not an array", opcodeName(opcode))
	}
	v, err := arr.Get(int(index))
	if err != nil {
		return object.Value{}, false, vm.throw(th, th.Frames, except.ArrayIndexOutOfBoundsException, err.Error())
	}
	switch opcode {
	case OpBaload, OpCaload, OpSaload, OpIaload:
		fr.Push(object.IntValue(v.Int()))
	default:
		fr.Push(v)
	}
	return object.Value{}, false, nil
}

// execArrayStore implements the a*store family, including aastore's
// runtime store-type check (spec.md §4.9: "ArrayStoreException on
// mismatch").
func (vm *VM) execArrayStore(th *thread.Thread, fr *frame.Frame, opcode uint8) (object.Value, bool, error) {
	value := fr.Pop()
	index := fr.Pop().Int()
	ref := fr.Pop()
	if ref.IsNull() {
		return object.Value{}, false, vm.throw(th, th.Frames, except.NullPointerException, "")
	}
	arr, ok := asArray(ref)
	if !ok {
		return object.Value{}, false, fmt.Errorf("%s: not an array", opcodeName(opcode))
	}
	if opcode == OpAastore && !value.IsNull() {
		if comp := arr.Class().Component; comp != nil {
			valClass := value.Ref.Class()
			if valClass != nil && !valClass.IsAssignableTo(comp) {
				return object.Value{}, false, vm.throw(th, th.Frames, except.ArrayStoreException, valClass.NameStr())
			}
		}
	}
	if err := arr.Set(int(index), value); err != nil {
		return object.Value{}, false, vm.throw(th, th.Frames, except.ArrayIndexOutOfBoundsException, err.Error())
	}
	return object.Value{}, false, nil
}

func opcodeName(opcode uint8) string {
	return fmt.Sprintf("0x%02X", opcode)
}
