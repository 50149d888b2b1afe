package interpreter

import "github.com/jacobin-core/jvmcore/pkg/frame"

// execBranchUnary handles ifeq/ifne/iflt/ifge/ifgt/ifle: pop one int,
// compare to zero, branch relative to the instruction's own start
// (spec.md §4.9 "if_* take a signed 2-byte branch offset relative to
// the instruction start").
func (vm *VM) execBranchUnary(fr *frame.Frame, opcode uint8) {
	branchPC := fr.PC - 1
	off := fr.ReadI16()
	v := fr.Pop().Int()
	if unaryCond(opcode, v) {
		fr.PC = branchPC + int(off)
	}
}

func unaryCond(opcode uint8, v int32) bool {
	switch opcode {
	case OpIfeq:
		return v == 0
	case OpIfne:
		return v != 0
	case OpIflt:
		return v < 0
	case OpIfge:
		return v >= 0
	case OpIfgt:
		return v > 0
	case OpIfle:
		return v <= 0
	}
	return false
}

// execBranchICmp handles if_icmp<cond>.
func (vm *VM) execBranchICmp(fr *frame.Frame, opcode uint8) {
	branchPC := fr.PC - 1
	off := fr.ReadI16()
	v2 := fr.Pop().Int()
	v1 := fr.Pop().Int()
	var take bool
	switch opcode {
	case OpIfIcmpeq:
		take = v1 == v2
	case OpIfIcmpne:
		take = v1 != v2
	case OpIfIcmplt:
		take = v1 < v2
	case OpIfIcmpge:
		take = v1 >= v2
	case OpIfIcmpgt:
		take = v1 > v2
	case OpIfIcmple:
		take = v1 <= v2
	}
	if take {
		fr.PC = branchPC + int(off)
	}
}

// execBranchACmp handles if_acmpeq/if_acmpne: reference identity
// comparison.
func (vm *VM) execBranchACmp(fr *frame.Frame, opcode uint8) {
	branchPC := fr.PC - 1
	off := fr.ReadI16()
	v2 := fr.Pop()
	v1 := fr.Pop()
	eq := v1.Ref == v2.Ref
	if (opcode == OpIfAcmpeq) == eq {
		fr.PC = branchPC + int(off)
	}
}

// execBranchNull handles ifnull/ifnonnull.
func (vm *VM) execBranchNull(fr *frame.Frame, opcode uint8) {
	branchPC := fr.PC - 1
	off := fr.ReadI16()
	v := fr.Pop()
	isNull := v.IsNull()
	if (opcode == OpIfnull) == isNull {
		fr.PC = branchPC + int(off)
	}
}
