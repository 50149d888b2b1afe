package verifier

import (
	"encoding/binary"
	"fmt"

	"github.com/jacobin-core/jvmcore/pkg/interpreter"
)

// scan walks code once, recording every instruction boundary offset and
// every branch/switch target instructions reference, mirroring the
// instruction-length accounting pkg/interpreter's Run/step perform one
// instruction at a time during execution (spec.md §4.8 "pc discipline",
// §4.9 "Switch": "pad to a 4-byte boundary past the opcode").
func scan(code []byte) (boundaries map[int]bool, targets []int, err error) {
	boundaries = make(map[int]bool, len(code)/2)
	pc := 0
	for pc < len(code) {
		start := pc
		boundaries[start] = true
		op := code[pc]
		pc++

		switch op {
		case interpreter.OpTableswitch, interpreter.OpLookupswitch:
			pc = alignTo4(pc)
			if pc+4 > len(code) {
				return nil, nil, fmt.Errorf("truncated %s at %d", opName(op), start)
			}
			def := int(start) + int(int32(binary.BigEndian.Uint32(code[pc:])))
			pc += 4
			targets = append(targets, def)
			if op == interpreter.OpTableswitch {
				if pc+8 > len(code) {
					return nil, nil, fmt.Errorf("truncated tableswitch at %d", start)
				}
				lo := int32(binary.BigEndian.Uint32(code[pc:]))
				hi := int32(binary.BigEndian.Uint32(code[pc+4:]))
				pc += 8
				n := int(hi - lo + 1)
				if n < 0 || pc+4*n > len(code) {
					return nil, nil, fmt.Errorf("truncated tableswitch table at %d", start)
				}
				for i := 0; i < n; i++ {
					off := int(int32(binary.BigEndian.Uint32(code[pc:])))
					targets = append(targets, start+off)
					pc += 4
				}
			} else {
				if pc+4 > len(code) {
					return nil, nil, fmt.Errorf("truncated lookupswitch at %d", start)
				}
				npairs := int(binary.BigEndian.Uint32(code[pc:]))
				pc += 4
				if npairs < 0 || pc+8*npairs > len(code) {
					return nil, nil, fmt.Errorf("truncated lookupswitch table at %d", start)
				}
				for i := 0; i < npairs; i++ {
					off := int(int32(binary.BigEndian.Uint32(code[pc+4:])))
					targets = append(targets, start+off)
					pc += 8
				}
			}

		case interpreter.OpWide:
			if pc >= len(code) {
				return nil, nil, fmt.Errorf("truncated wide at %d", start)
			}
			sub := code[pc]
			pc++
			if sub == interpreter.OpIinc {
				pc += 4 // widened index (2) + widened const (2)
			} else {
				pc += 2 // widened index
			}

		case interpreter.OpGoto, interpreter.OpJsr,
			interpreter.OpIfeq, interpreter.OpIfne, interpreter.OpIflt, interpreter.OpIfge,
			interpreter.OpIfgt, interpreter.OpIfle, interpreter.OpIfIcmpeq, interpreter.OpIfIcmpne,
			interpreter.OpIfIcmplt, interpreter.OpIfIcmpge, interpreter.OpIfIcmpgt, interpreter.OpIfIcmple,
			interpreter.OpIfAcmpeq, interpreter.OpIfAcmpne, interpreter.OpIfnull, interpreter.OpIfnonnull:
			if pc+2 > len(code) {
				return nil, nil, fmt.Errorf("truncated %s at %d", opName(op), start)
			}
			off := int(int16(binary.BigEndian.Uint16(code[pc:])))
			targets = append(targets, start+off)
			pc += 2

		case interpreter.OpGotoW, interpreter.OpJsrW:
			if pc+4 > len(code) {
				return nil, nil, fmt.Errorf("truncated %s at %d", opName(op), start)
			}
			off := int(int32(binary.BigEndian.Uint32(code[pc:])))
			targets = append(targets, start+off)
			pc += 4

		default:
			n, err := fixedLength(op)
			if err != nil {
				return nil, nil, fmt.Errorf("at %d: %w", start, err)
			}
			if pc+n > len(code) {
				return nil, nil, fmt.Errorf("truncated instruction 0x%02x at %d", op, start)
			}
			pc += n
		}
	}
	return boundaries, targets, nil
}

func alignTo4(pc int) int {
	for pc%4 != 0 {
		pc++
	}
	return pc
}

func opName(op byte) string { return fmt.Sprintf("0x%02x", op) }

// fixedLength returns the number of operand bytes following op's
// opcode byte, for every instruction whose length doesn't depend on
// its own operands (i.e. everything but *switch/wide, handled above).
func fixedLength(op byte) (int, error) {
	switch op {
	case interpreter.OpNop, interpreter.OpAconstNull,
		interpreter.OpIconstM1, interpreter.OpIconst0, interpreter.OpIconst1, interpreter.OpIconst2,
		interpreter.OpIconst3, interpreter.OpIconst4, interpreter.OpIconst5,
		interpreter.OpLconst0, interpreter.OpLconst1,
		interpreter.OpFconst0, interpreter.OpFconst1, interpreter.OpFconst2,
		interpreter.OpDconst0, interpreter.OpDconst1,
		interpreter.OpIload0, interpreter.OpIload1, interpreter.OpIload2, interpreter.OpIload3,
		interpreter.OpLload0, interpreter.OpLload1, interpreter.OpLload2, interpreter.OpLload3,
		interpreter.OpFload0, interpreter.OpFload1, interpreter.OpFload2, interpreter.OpFload3,
		interpreter.OpDload0, interpreter.OpDload1, interpreter.OpDload2, interpreter.OpDload3,
		interpreter.OpAload0, interpreter.OpAload1, interpreter.OpAload2, interpreter.OpAload3,
		interpreter.OpIaload, interpreter.OpLaload, interpreter.OpFaload, interpreter.OpDaload,
		interpreter.OpAaload, interpreter.OpBaload, interpreter.OpCaload, interpreter.OpSaload,
		interpreter.OpIstore0, interpreter.OpIstore1, interpreter.OpIstore2, interpreter.OpIstore3,
		interpreter.OpLstore0, interpreter.OpLstore1, interpreter.OpLstore2, interpreter.OpLstore3,
		interpreter.OpFstore0, interpreter.OpFstore1, interpreter.OpFstore2, interpreter.OpFstore3,
		interpreter.OpDstore0, interpreter.OpDstore1, interpreter.OpDstore2, interpreter.OpDstore3,
		interpreter.OpAstore0, interpreter.OpAstore1, interpreter.OpAstore2, interpreter.OpAstore3,
		interpreter.OpIastore, interpreter.OpLastore, interpreter.OpFastore, interpreter.OpDastore,
		interpreter.OpAastore, interpreter.OpBastore, interpreter.OpCastore, interpreter.OpSastore,
		interpreter.OpPop, interpreter.OpPop2, interpreter.OpDup, interpreter.OpDupX1, interpreter.OpDupX2,
		interpreter.OpDup2, interpreter.OpDup2X1, interpreter.OpDup2X2, interpreter.OpSwap,
		interpreter.OpIadd, interpreter.OpLadd, interpreter.OpFadd, interpreter.OpDadd,
		interpreter.OpIsub, interpreter.OpLsub, interpreter.OpFsub, interpreter.OpDsub,
		interpreter.OpImul, interpreter.OpLmul, interpreter.OpFmul, interpreter.OpDmul,
		interpreter.OpIdiv, interpreter.OpLdiv, interpreter.OpFdiv, interpreter.OpDdiv,
		interpreter.OpIrem, interpreter.OpLrem, interpreter.OpFrem, interpreter.OpDrem,
		interpreter.OpIneg, interpreter.OpLneg, interpreter.OpFneg, interpreter.OpDneg,
		interpreter.OpIshl, interpreter.OpLshl, interpreter.OpIshr, interpreter.OpLshr,
		interpreter.OpIushr, interpreter.OpLushr, interpreter.OpIand, interpreter.OpLand,
		interpreter.OpIor, interpreter.OpLor, interpreter.OpIxor, interpreter.OpLxor,
		interpreter.OpI2l, interpreter.OpI2f, interpreter.OpI2d, interpreter.OpL2i, interpreter.OpL2f,
		interpreter.OpL2d, interpreter.OpF2i, interpreter.OpF2l, interpreter.OpF2d, interpreter.OpD2i,
		interpreter.OpD2l, interpreter.OpD2f, interpreter.OpI2b, interpreter.OpI2c, interpreter.OpI2s,
		interpreter.OpLcmp, interpreter.OpFcmpl, interpreter.OpFcmpg, interpreter.OpDcmpl, interpreter.OpDcmpg,
		interpreter.OpIreturn, interpreter.OpLreturn, interpreter.OpFreturn, interpreter.OpDreturn,
		interpreter.OpAreturn, interpreter.OpReturn,
		interpreter.OpArraylength, interpreter.OpAthrow,
		interpreter.OpMonitorenter, interpreter.OpMonitorexit:
		return 0, nil

	case interpreter.OpBipush, interpreter.OpLdc,
		interpreter.OpIload, interpreter.OpLload, interpreter.OpFload, interpreter.OpDload, interpreter.OpAload,
		interpreter.OpIstore, interpreter.OpLstore, interpreter.OpFstore, interpreter.OpDstore, interpreter.OpAstore,
		interpreter.OpRet, interpreter.OpNewarray:
		return 1, nil

	case interpreter.OpSipush, interpreter.OpLdcW, interpreter.OpLdc2W,
		interpreter.OpGetstatic, interpreter.OpPutstatic, interpreter.OpGetfield, interpreter.OpPutfield,
		interpreter.OpInvokevirtual, interpreter.OpInvokespecial, interpreter.OpInvokestatic,
		interpreter.OpNew, interpreter.OpAnewarray, interpreter.OpCheckcast, interpreter.OpInstanceof,
		interpreter.OpIinc:
		return 2, nil

	case interpreter.OpInvokeinterface, interpreter.OpInvokedynamic:
		return 4, nil

	case interpreter.OpMultianewarray:
		return 3, nil

	default:
		return 0, fmt.Errorf("unknown opcode 0x%02x", op)
	}
}
