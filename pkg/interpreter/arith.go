package interpreter

import (
	"math"

	"github.com/jacobin-core/jvmcore/pkg/except"
	"github.com/jacobin-core/jvmcore/pkg/frame"
	"github.com/jacobin-core/jvmcore/pkg/object"
	"github.com/jacobin-core/jvmcore/pkg/thread"
)

// execIntArith implements the i* arithmetic/bitwise/shift family.
// Integer overflow wraps (Go's int32 arithmetic already does this);
// idiv/irem throw ArithmeticException on a zero divisor; ineg on
// MinInt32 yields MinInt32 (two's-complement negation wraps the same
// way); irem/irem preserve the dividend's sign, which Go's %  already
// does for int32 (spec.md §4.9 "Numeric semantics").
func (vm *VM) execIntArith(th *thread.Thread, fr *frame.Frame, opcode uint8) (object.Value, bool, error) {
	if opcode == OpIneg {
		fr.Push(object.IntValue(-fr.Pop().Int()))
		return object.Value{}, false, nil
	}
	v2 := fr.Pop().Int()
	v1 := fr.Pop().Int()
	switch opcode {
	case OpIadd:
		fr.Push(object.IntValue(v1 + v2))
	case OpIsub:
		fr.Push(object.IntValue(v1 - v2))
	case OpImul:
		fr.Push(object.IntValue(v1 * v2))
	case OpIdiv:
		if v2 == 0 {
			return object.Value{}, false, vm.throw(th, th.Frames, except.ArithmeticException, "/ by zero")
		}
		if v1 == -1<<31 && v2 == -1 {
			fr.Push(object.IntValue(v1)) // MinInt32 / -1 overflows; JVMS still wraps
		} else {
			fr.Push(object.IntValue(v1 / v2))
		}
	case OpIrem:
		if v2 == 0 {
			return object.Value{}, false, vm.throw(th, th.Frames, except.ArithmeticException, "/ by zero")
		}
		if v1 == -1<<31 && v2 == -1 {
			fr.Push(object.IntValue(0))
		} else {
			fr.Push(object.IntValue(v1 % v2))
		}
	case OpIshl:
		fr.Push(object.IntValue(v1 << (uint32(v2) & 0x1F)))
	case OpIshr:
		fr.Push(object.IntValue(v1 >> (uint32(v2) & 0x1F)))
	case OpIushr:
		fr.Push(object.IntValue(int32(uint32(v1) >> (uint32(v2) & 0x1F))))
	case OpIand:
		fr.Push(object.IntValue(v1 & v2))
	case OpIor:
		fr.Push(object.IntValue(v1 | v2))
	case OpIxor:
		fr.Push(object.IntValue(v1 ^ v2))
	}
	return object.Value{}, false, nil
}

// execLongArith mirrors execIntArith for the l* family.
func (vm *VM) execLongArith(th *thread.Thread, fr *frame.Frame, opcode uint8) (object.Value, bool, error) {
	if opcode == OpLneg {
		fr.Push(object.LongValue(-fr.Pop().Long()))
		return object.Value{}, false, nil
	}
	if opcode == OpLshl || opcode == OpLshr || opcode == OpLushr {
		shift := fr.Pop().Int() // shift amount is always an int, per JVMS
		v1 := fr.Pop().Long()
		switch opcode {
		case OpLshl:
			fr.Push(object.LongValue(v1 << (uint32(shift) & 0x3F)))
		case OpLshr:
			fr.Push(object.LongValue(v1 >> (uint32(shift) & 0x3F)))
		case OpLushr:
			fr.Push(object.LongValue(int64(uint64(v1) >> (uint32(shift) & 0x3F))))
		}
		return object.Value{}, false, nil
	}
	v2 := fr.Pop().Long()
	v1 := fr.Pop().Long()
	switch opcode {
	case OpLadd:
		fr.Push(object.LongValue(v1 + v2))
	case OpLsub:
		fr.Push(object.LongValue(v1 - v2))
	case OpLmul:
		fr.Push(object.LongValue(v1 * v2))
	case OpLdiv:
		if v2 == 0 {
			return object.Value{}, false, vm.throw(th, th.Frames, except.ArithmeticException, "/ by zero")
		}
		if v1 == -1<<63 && v2 == -1 {
			fr.Push(object.LongValue(v1))
		} else {
			fr.Push(object.LongValue(v1 / v2))
		}
	case OpLrem:
		if v2 == 0 {
			return object.Value{}, false, vm.throw(th, th.Frames, except.ArithmeticException, "/ by zero")
		}
		if v1 == -1<<63 && v2 == -1 {
			fr.Push(object.LongValue(0))
		} else {
			fr.Push(object.LongValue(v1 % v2))
		}
	case OpLand:
		fr.Push(object.LongValue(v1 & v2))
	case OpLor:
		fr.Push(object.LongValue(v1 | v2))
	case OpLxor:
		fr.Push(object.LongValue(v1 ^ v2))
	}
	return object.Value{}, false, nil
}

// execFloatArith/execDoubleArith follow IEEE-754 throughout, including
// for frem/drem (Go's math.Mod-equivalent %, which for float64/float32
// is IEEE remainder-by-truncated-quotient, matching JVMS's frem/drem).
func (vm *VM) execFloatArith(fr *frame.Frame, opcode uint8) {
	if opcode == OpFneg {
		fr.Push(object.FloatValue(-fr.Pop().Float()))
		return
	}
	v2 := fr.Pop().Float()
	v1 := fr.Pop().Float()
	var r float32
	switch opcode {
	case OpFadd:
		r = v1 + v2
	case OpFsub:
		r = v1 - v2
	case OpFmul:
		r = v1 * v2
	case OpFdiv:
		r = v1 / v2
	case OpFrem:
		r = float32(math.Mod(float64(v1), float64(v2)))
	}
	fr.Push(object.FloatValue(r))
}

func (vm *VM) execDoubleArith(fr *frame.Frame, opcode uint8) {
	if opcode == OpDneg {
		fr.Push(object.DoubleValue(-fr.Pop().Double()))
		return
	}
	v2 := fr.Pop().Double()
	v1 := fr.Pop().Double()
	var r float64
	switch opcode {
	case OpDadd:
		r = v1 + v2
	case OpDsub:
		r = v1 - v2
	case OpDmul:
		r = v1 * v2
	case OpDdiv:
		r = v1 / v2
	case OpDrem:
		r = math.Mod(v1, v2)
	}
	fr.Push(object.DoubleValue(r))
}
