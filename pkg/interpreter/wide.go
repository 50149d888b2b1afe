package interpreter

import (
	"github.com/jacobin-core/jvmcore/pkg/frame"
	"github.com/jacobin-core/jvmcore/pkg/object"
)

// execWide implements the `wide` prefix (spec.md §4.9 "Wide"): extends
// the index operand of the following load/store/iinc/ret instruction
// from one byte to two.
func (vm *VM) execWide(fr *frame.Frame) (object.Value, bool, error) {
	sub := fr.ReadU8()
	index := int(fr.ReadU16())
	switch sub {
	case OpIload, OpFload, OpAload, OpLload, OpDload:
		fr.Push(fr.GetLocal(index))
	case OpIstore, OpFstore, OpAstore, OpLstore, OpDstore:
		fr.SetLocal(index, fr.Pop())
	case OpRet:
		fr.PC = int(fr.GetLocal(index).Int())
	case OpIinc:
		delta := int32(fr.ReadI16())
		v := fr.GetLocal(index)
		fr.SetLocal(index, object.IntValue(v.Int()+delta))
	}
	return object.Value{}, false, nil
}
