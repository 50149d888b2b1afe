// Package interpreter implements the bytecode dispatch loop (spec.md
// §4.9): a switch on opcode honoring the operand-stack, local-variable,
// and control-flow contracts of the full JVMS opcode set.
//
// The interpreter knows nothing about how a new frame gets pushed for a
// method call — that's pkg/dispatch's job (spec.md §4.10) — so the
// invoke* opcodes below call out to a Dispatcher supplied at
// construction. This keeps the interpreter<->dispatcher relationship
// acyclic even though conceptually they call each other: dispatch
// imports interpreter to run a method's bytecode; interpreter only
// knows the Dispatcher interface, never the concrete package.
package interpreter

import (
	"fmt"
	"math"

	"github.com/jacobin-core/jvmcore/internal/vmlog"
	"github.com/jacobin-core/jvmcore/pkg/classfile"
	"github.com/jacobin-core/jvmcore/pkg/except"
	"github.com/jacobin-core/jvmcore/pkg/frame"
	"github.com/jacobin-core/jvmcore/pkg/object"
	"github.com/jacobin-core/jvmcore/pkg/thread"
)

// Pool is the subset of *constantpool.Pool the interpreter resolves
// against. Declared locally (rather than imported) so constantpool
// need not depend on interpreter; *constantpool.Pool satisfies this
// structurally.
type Pool interface {
	GetUtf8(index uint16) (string, error)
	GetInteger(index uint16) (int32, error)
	GetFloat(index uint16) (float32, error)
	GetLong(index uint16) (int64, error)
	GetDouble(index uint16) (float64, error)
	GetClass(index uint16) (*object.Class, error)
	GetString(index uint16) (*object.Instance, error)
	GetFieldref(index uint16) (*object.Field, error)
	GetMethodref(index uint16) (*object.Method, error)
	GetInterfaceMethodref(index uint16) (*object.Method, error)
	GetMethodHandle(index uint16) (*object.MethodHandle, error)
	GetMethodType(index uint16) (*object.MethodType, error)
	GetDynamic(index uint16) (*object.CallSite, error)
	GetInvokeDynamic(index uint16) (*object.CallSite, error)
	InvokeDynamicDescriptor(index uint16) (string, error)
	RawEntry(index uint16) (classfile.ConstantPoolEntry, error)
}

// ClassResolver is what `new`, `anewarray`, `multianewarray`,
// `checkcast`/`instanceof` and static field access need from the class
// loader (spec.md §4.1, §4.5).
type ClassResolver interface {
	Load(name string) (*object.Class, error)
	LoadArrayClass(descriptor string) (*object.Class, error)
}

// Dispatcher is what the invoke* opcodes and class-initialization
// triggers need from pkg/dispatch (spec.md §4.5 step 8, §4.10).
type Dispatcher interface {
	InvokeStatic(th *thread.Thread, m *object.Method, args []object.Value) (object.Value, error)
	InvokeSpecial(th *thread.Thread, m *object.Method, args []object.Value) (object.Value, error)
	InvokeVirtual(th *thread.Thread, m *object.Method, args []object.Value) (object.Value, error)
	InvokeInterface(th *thread.Thread, iface *object.Class, m *object.Method, args []object.Value) (object.Value, error)
	InvokeDynamic(th *thread.Thread, cs *object.CallSite, args []object.Value) (object.Value, error)
	EnsureInitialized(th *thread.Thread, class *object.Class) error
}

// VM bundles everything the interpreter needs that lives outside the
// current frame: the class resolver, the method dispatcher, and the
// exception factory for lazily-constructed runtime exceptions (spec.md
// §7 tier 3).
type VM struct {
	Loader     ClassResolver
	Dispatch   Dispatcher
	Except     *except.Factory
	Log        *vmlog.Logger
	MaxFrames  int // StackOverflowError threshold (spec.md §4.9 category "Object operations" sibling; JVMS has no fixed number, implementations pick one)
}

// New creates an interpreter VM. maxFrames <= 0 defaults to 4096.
func New(loader ClassResolver, dispatch Dispatcher, ex *except.Factory, log *vmlog.Logger, maxFrames int) *VM {
	if maxFrames <= 0 {
		maxFrames = 4096
	}
	return &VM{Loader: loader, Dispatch: dispatch, Except: ex, Log: log, MaxFrames: maxFrames}
}

func (vm *VM) pool(fr *frame.Frame) Pool {
	return fr.Method.Owner.ConstantPool.(Pool)
}

// throw builds a runtime exception and installs it as th.Pending,
// returning a sentinel error the Run loop's unwind path recognizes
// (spec.md §4.12 "Throwing: set the thread's pending-exception slot").
func (vm *VM) throw(th *thread.Thread, frames []*frame.Frame, className, message string) error {
	inst, err := vm.Except.New(frames, className, message)
	if err != nil {
		return err
	}
	th.Pending = inst
	return ErrPending
}

// ErrPending is returned by opcode handlers (and by native functions
// via dispatch.Env.Throw) to tell Run "an exception is now pending on
// th; go unwind", without carrying the exception itself (that lives on
// th.Pending, per spec.md §3 "Thread"). Exported so pkg/dispatch's
// native-call boundary can signal the same condition across a
// method-call return rather than only within a single step().
var ErrPending = fmt.Errorf("pending exception")

// Run executes fr's bytecode until it returns normally, an uncaught
// exception propagates past it, or a StackOverflowError-style internal
// fault occurs. th.Frames must already have fr pushed as the top frame
// by the caller (normally pkg/dispatch).
func (vm *VM) Run(th *thread.Thread, fr *frame.Frame) (object.Value, error) {
	if th.Depth() > vm.MaxFrames {
		return object.Value{}, vm.throw(th, th.Frames, except.StackOverflowError, "")
	}

	for {
		if th.Pending != nil {
			handled, err := vm.unwind(th, fr)
			if err != nil {
				return object.Value{}, err
			}
			if !handled {
				return object.Value{}, ErrPending
			}
			continue
		}

		if fr.PC >= len(fr.Method.Code.Code) {
			return object.Value{}, nil
		}

		startPC := fr.PC
		opcode := fr.ReadU8()
		ret, hasReturn, err := vm.step(th, fr, opcode)
		if err != nil {
			if err != ErrPending {
				return object.Value{}, fmt.Errorf("%s.%s%s at pc=%d: %w",
					fr.Method.Owner.NameStr(), fr.Method.NameStr, fr.Method.DescriptorStr, startPC, err)
			}
			fr.PC = startPC // unwind search uses the pc of the throwing instruction
			continue
		}
		if hasReturn {
			return ret, nil
		}
	}
}

// unwind implements spec.md §4.12: scan fr's exception table for the
// current pc, linearly, first match wins. On a match, clear pending,
// push the exception, jump to the handler. On no match, report
// "not handled" so the caller (dispatch, which owns fr's pop) can pop
// this frame and retry against its own caller.
func (vm *VM) unwind(th *thread.Thread, fr *frame.Frame) (handled bool, err error) {
	if fr.Kind != frame.KindRegular {
		return false, nil
	}
	exc := th.Pending
	handler, herr := except.FindHandler(fr.Method.Code.ExceptionHandlers, fr.PC, exc.Class(), vm.pool(fr))
	if herr != nil {
		return false, herr
	}
	if handler == nil {
		return false, nil
	}
	th.Pending = nil
	fr.SetSP(0)
	fr.Push(object.RefValue(&exc.Header))
	fr.PC = int(handler.HandlerPC)
	return true, nil
}

// step executes one instruction, returning (value, true, nil) on a
// `*return` opcode, (_, false, nil) to continue the loop, or (_, false,
// ErrPending) once an exception has been placed on th.Pending.
func (vm *VM) step(th *thread.Thread, fr *frame.Frame, opcode uint8) (object.Value, bool, error) {
	switch opcode {
	case OpNop:
		// no-op

	case OpAconstNull:
		fr.Push(object.NullValue())
	case OpIconstM1, OpIconst0, OpIconst1, OpIconst2, OpIconst3, OpIconst4, OpIconst5:
		fr.Push(object.IntValue(int32(opcode) - int32(OpIconst0)))
	case OpLconst0, OpLconst1:
		fr.Push(object.LongValue(int64(opcode) - int64(OpLconst0)))
	case OpFconst0, OpFconst1, OpFconst2:
		fr.Push(object.FloatValue(float32(opcode) - float32(OpFconst0)))
	case OpDconst0, OpDconst1:
		fr.Push(object.DoubleValue(float64(opcode) - float64(OpDconst0)))
	case OpBipush:
		fr.Push(object.IntValue(int32(fr.ReadI8())))
	case OpSipush:
		fr.Push(object.IntValue(int32(fr.ReadI16())))

	case OpLdc:
		return vm.execLdc(th, fr, uint16(fr.ReadU8()))
	case OpLdcW:
		return vm.execLdc(th, fr, fr.ReadU16())
	case OpLdc2W:
		return vm.execLdc2(fr, fr.ReadU16())

	case OpIload, OpFload, OpAload:
		fr.Push(fr.GetLocal(int(fr.ReadU8())))
	case OpLload, OpDload:
		fr.Push(fr.GetLocal(int(fr.ReadU8())))
	case OpIload0, OpFload0, OpAload0:
		fr.Push(fr.GetLocal(0))
	case OpIload1, OpFload1, OpAload1:
		fr.Push(fr.GetLocal(1))
	case OpIload2, OpFload2, OpAload2:
		fr.Push(fr.GetLocal(2))
	case OpIload3, OpFload3, OpAload3:
		fr.Push(fr.GetLocal(3))
	case OpLload0, OpDload0:
		fr.Push(fr.GetLocal(0))
	case OpLload1, OpDload1:
		fr.Push(fr.GetLocal(1))
	case OpLload2, OpDload2:
		fr.Push(fr.GetLocal(2))
	case OpLload3, OpDload3:
		fr.Push(fr.GetLocal(3))

	case OpIstore, OpFstore, OpAstore, OpLstore, OpDstore:
		fr.SetLocal(int(fr.ReadU8()), fr.Pop())
	case OpIstore0, OpFstore0, OpAstore0, OpLstore0, OpDstore0:
		fr.SetLocal(0, fr.Pop())
	case OpIstore1, OpFstore1, OpAstore1, OpLstore1, OpDstore1:
		fr.SetLocal(1, fr.Pop())
	case OpIstore2, OpFstore2, OpAstore2, OpLstore2, OpDstore2:
		fr.SetLocal(2, fr.Pop())
	case OpIstore3, OpFstore3, OpAstore3, OpLstore3, OpDstore3:
		fr.SetLocal(3, fr.Pop())

	case OpIaload, OpLaload, OpFaload, OpDaload, OpAaload, OpBaload, OpCaload, OpSaload:
		return vm.execArrayLoad(th, fr, opcode)
	case OpIastore, OpLastore, OpFastore, OpDastore, OpAastore, OpBastore, OpCastore, OpSastore:
		return vm.execArrayStore(th, fr, opcode)

	case OpPop:
		fr.Pop()
	case OpPop2:
		fr.Pop()
		fr.Pop()
	case OpDup:
		v := fr.Peek()
		fr.Push(v)
	case OpDupX1:
		v := fr.Pop()
		v2 := fr.Pop()
		fr.Push(v)
		fr.Push(v2)
		fr.Push(v)
	case OpDupX2:
		v1 := fr.Pop()
		v2 := fr.Pop()
		v3 := fr.Pop()
		fr.Push(v1)
		fr.Push(v3)
		fr.Push(v2)
		fr.Push(v1)
	case OpDup2:
		v2 := fr.Pop()
		v1 := fr.Pop()
		fr.Push(v1)
		fr.Push(v2)
		fr.Push(v1)
		fr.Push(v2)
	case OpDup2X1:
		v1 := fr.Pop()
		v2 := fr.Pop()
		v3 := fr.Pop()
		fr.Push(v2)
		fr.Push(v1)
		fr.Push(v3)
		fr.Push(v2)
		fr.Push(v1)
	case OpDup2X2:
		v1 := fr.Pop()
		v2 := fr.Pop()
		v3 := fr.Pop()
		v4 := fr.Pop()
		fr.Push(v2)
		fr.Push(v1)
		fr.Push(v4)
		fr.Push(v3)
		fr.Push(v2)
		fr.Push(v1)
	case OpSwap:
		v1 := fr.Pop()
		v2 := fr.Pop()
		fr.Push(v1)
		fr.Push(v2)

	case OpIadd, OpIsub, OpImul, OpIdiv, OpIrem, OpIneg,
		OpIshl, OpIshr, OpIushr, OpIand, OpIor, OpIxor:
		return vm.execIntArith(th, fr, opcode)
	case OpLadd, OpLsub, OpLmul, OpLdiv, OpLrem, OpLneg,
		OpLshl, OpLshr, OpLushr, OpLand, OpLor, OpLxor:
		return vm.execLongArith(th, fr, opcode)
	case OpFadd, OpFsub, OpFmul, OpFdiv, OpFrem, OpFneg:
		vm.execFloatArith(fr, opcode)
	case OpDadd, OpDsub, OpDmul, OpDdiv, OpDrem, OpDneg:
		vm.execDoubleArith(fr, opcode)

	case OpIinc:
		index := int(fr.ReadU8())
		delta := int32(fr.ReadI8())
		v := fr.GetLocal(index)
		fr.SetLocal(index, object.IntValue(v.Int()+delta))

	case OpI2l:
		fr.Push(object.LongValue(int64(fr.Pop().Int())))
	case OpI2f:
		fr.Push(object.FloatValue(float32(fr.Pop().Int())))
	case OpI2d:
		fr.Push(object.DoubleValue(float64(fr.Pop().Int())))
	case OpL2i:
		fr.Push(object.IntValue(int32(fr.Pop().Long())))
	case OpL2f:
		fr.Push(object.FloatValue(float32(fr.Pop().Long())))
	case OpL2d:
		fr.Push(object.DoubleValue(float64(fr.Pop().Long())))
	case OpF2i:
		fr.Push(object.IntValue(floatToInt32(fr.Pop().Float())))
	case OpF2l:
		fr.Push(object.LongValue(floatToInt64(fr.Pop().Float())))
	case OpF2d:
		fr.Push(object.DoubleValue(float64(fr.Pop().Float())))
	case OpD2i:
		fr.Push(object.IntValue(doubleToInt32(fr.Pop().Double())))
	case OpD2l:
		fr.Push(object.LongValue(doubleToInt64(fr.Pop().Double())))
	case OpD2f:
		fr.Push(object.FloatValue(float32(fr.Pop().Double())))
	case OpI2b:
		fr.Push(object.IntValue(int32(int8(fr.Pop().Int()))))
	case OpI2c:
		fr.Push(object.IntValue(int32(uint16(fr.Pop().Int()))))
	case OpI2s:
		fr.Push(object.IntValue(int32(int16(fr.Pop().Int()))))

	case OpLcmp:
		v2 := fr.Pop().Long()
		v1 := fr.Pop().Long()
		fr.Push(object.IntValue(cmp64(v1, v2)))
	case OpFcmpl, OpFcmpg:
		v2 := fr.Pop().Float()
		v1 := fr.Pop().Float()
		fr.Push(object.IntValue(fcmp(float64(v1), float64(v2), opcode == OpFcmpg)))
	case OpDcmpl, OpDcmpg:
		v2 := fr.Pop().Double()
		v1 := fr.Pop().Double()
		fr.Push(object.IntValue(fcmp(v1, v2, opcode == OpDcmpg)))

	case OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle:
		vm.execBranchUnary(fr, opcode)
	case OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple:
		vm.execBranchICmp(fr, opcode)
	case OpIfAcmpeq, OpIfAcmpne:
		vm.execBranchACmp(fr, opcode)
	case OpIfnull, OpIfnonnull:
		vm.execBranchNull(fr, opcode)

	case OpGoto:
		branchPC := fr.PC - 1
		off := fr.ReadI16()
		fr.PC = branchPC + int(off)
	case OpGotoW:
		branchPC := fr.PC - 1
		off := fr.ReadI32()
		fr.PC = branchPC + int(off)
	case OpJsr:
		branchPC := fr.PC - 1
		off := fr.ReadI16()
		ret := fr.PC
		fr.PC = branchPC + int(off)
		fr.Push(object.IntValue(int32(ret))) // return address, represented as an int per spec.md §3 KindReturnAddress note
	case OpJsrW:
		branchPC := fr.PC - 1
		off := fr.ReadI32()
		ret := fr.PC
		fr.PC = branchPC + int(off)
		fr.Push(object.IntValue(int32(ret)))
	case OpRet:
		fr.PC = int(fr.GetLocal(int(fr.ReadU8())).Int())

	case OpTableswitch:
		vm.execTableswitch(fr)
	case OpLookupswitch:
		vm.execLookupswitch(fr)

	case OpIreturn, OpFreturn, OpAreturn:
		return fr.Pop(), true, nil
	case OpLreturn, OpDreturn:
		return fr.Pop(), true, nil
	case OpReturn:
		return object.Value{}, true, nil

	case OpGetstatic:
		return vm.execGetstatic(th, fr)
	case OpPutstatic:
		return vm.execPutstatic(th, fr)
	case OpGetfield:
		return vm.execGetfield(th, fr)
	case OpPutfield:
		return vm.execPutfield(th, fr)

	case OpInvokevirtual:
		return vm.execInvokevirtual(th, fr)
	case OpInvokespecial:
		return vm.execInvokespecial(th, fr)
	case OpInvokestatic:
		return vm.execInvokestatic(th, fr)
	case OpInvokeinterface:
		return vm.execInvokeinterface(th, fr)
	case OpInvokedynamic:
		return vm.execInvokedynamic(th, fr)

	case OpNew:
		return vm.execNew(th, fr)
	case OpNewarray:
		return vm.execNewarray(th, fr)
	case OpAnewarray:
		return vm.execAnewarray(th, fr)
	case OpMultianewarray:
		return vm.execMultianewarray(th, fr)
	case OpArraylength:
		return vm.execArraylength(th, fr)

	case OpAthrow:
		return vm.execAthrow(th, fr)

	case OpCheckcast:
		return vm.execCheckcast(th, fr)
	case OpInstanceof:
		return vm.execInstanceof(th, fr)

	case OpMonitorenter:
		v := fr.Pop()
		if v.IsNull() {
			return object.Value{}, false, vm.throw(th, th.Frames, except.NullPointerException, "")
		}
		mon := v.Ref.Monitor(th.NextHashSeed)
		mon.Enter(th.ID)
		th.EnterMonitor(v.Ref)
	case OpMonitorexit:
		v := fr.Pop()
		if v.IsNull() {
			return object.Value{}, false, vm.throw(th, th.Frames, except.NullPointerException, "")
		}
		mon := v.Ref.Monitor(th.NextHashSeed)
		if err := mon.Exit(th.ID); err != nil {
			return object.Value{}, false, vm.throw(th, th.Frames, except.IllegalMonitorStateException, err.Error())
		}
		th.ExitMonitor(v.Ref)

	case OpWide:
		return vm.execWide(fr)

	default:
		return object.Value{}, false, fmt.Errorf("unknown opcode 0x%02X at pc=%d", opcode, fr.PC-1)
	}
	return object.Value{}, false, nil
}

func cmp64(a, b int64) int32 {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

// fcmp implements fcmpg/dcmpg (isNaN -> 1) and fcmpl/dcmpl (isNaN ->
// -1), per spec.md §4.9 "differ only in NaN disposition".
func fcmp(a, b float64, nanIsOne bool) int32 {
	if math.IsNaN(a) || math.IsNaN(b) {
		if nanIsOne {
			return 1
		}
		return -1
	}
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

// floatToInt32/floatToInt64/doubleToInt32/doubleToInt64 implement
// JVMS's f2i/f2l/d2i/d2l conversion rule: truncate toward zero, clamp
// out-of-range/NaN per table 6.5.f2i-A (spec.md §4.9 "Conversions").
func floatToInt32(f float32) int32 {
	if math.IsNaN(float64(f)) {
		return 0
	}
	if f >= math.MaxInt32 {
		return math.MaxInt32
	}
	if f <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(f)
}

func floatToInt64(f float32) int64 {
	if math.IsNaN(float64(f)) {
		return 0
	}
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	if f <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(f)
}

func doubleToInt32(d float64) int32 {
	if math.IsNaN(d) {
		return 0
	}
	if d >= math.MaxInt32 {
		return math.MaxInt32
	}
	if d <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(d)
}

func doubleToInt64(d float64) int64 {
	if math.IsNaN(d) {
		return 0
	}
	if d >= math.MaxInt64 {
		return math.MaxInt64
	}
	if d <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(d)
}
