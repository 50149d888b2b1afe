// Package frame implements the per-thread frame stack the interpreter
// runs against: local-variable arrays, operand stacks, and the pc
// discipline described in spec.md §4.8.
package frame

import (
	"fmt"

	"github.com/jacobin-core/jvmcore/pkg/object"
)

// Kind distinguishes the three frame flavors spec.md §4.8 names: a
// regular bytecode Frame, a Native frame (visible to stack walks but
// carrying no locals/operand stack of its own), and a Fake frame (a
// method-handle trampoline sentinel, invisible to normal stack walks).
type Kind uint8

const (
	KindRegular Kind = iota
	KindNative
	KindFake
)

// Frame is a single method-invocation record (spec.md §3 "Frame").
// long/double locals occupy two adjacent slots; the second is never
// read directly, matching the class-file model's "top" marker.
type Frame struct {
	Kind Kind

	Method *object.Method
	Pool   *object.ConstantPool // not set by NewRegular; the interpreter reads the pool through Method.Owner.ConstantPool

	Locals       []object.Value
	OperandStack []object.Value
	sp           int

	PC        int // byte offset into Method.Code.Code; meaningless for Native/Fake
	StashedPC int // saved here when a callee frame is pushed on top

	// MonitorHeld is the object a synchronized method has entered, so
	// the dispatcher can release it exactly once on every exit path
	// (spec.md §4.9 "Synchronization": "synchronized methods are
	// wrapped by the dispatcher").
	MonitorHeld *object.Header
}

// NewRegular allocates a bytecode frame sized to the method's Code
// attribute (spec.md §3 "Frame").
func NewRegular(m *object.Method) *Frame {
	code := m.Code
	return &Frame{
		Kind:         KindRegular,
		Method:       m,
		Locals:       make([]object.Value, code.MaxLocals),
		OperandStack: make([]object.Value, code.MaxStack),
	}
}

// NewNative creates a Native frame: visible to stack walks (fillInStackTrace
// needs to name the native method) but without bytecode state.
func NewNative(m *object.Method) *Frame {
	return &Frame{Kind: KindNative, Method: m}
}

// NewFake creates a sentinel frame used by method-handle trampolines
// (spec.md §4.8): invisible to normal stack walks, used only for pc
// accounting around an entry-point override call.
func NewFake(m *object.Method) *Frame {
	return &Frame{Kind: KindFake, Method: m}
}

// Push pushes v onto the operand stack.
func (f *Frame) Push(v object.Value) {
	if f.sp >= len(f.OperandStack) {
		panic(fmt.Sprintf("operand stack overflow: sp=%d max=%d", f.sp, len(f.OperandStack)))
	}
	f.OperandStack[f.sp] = v
	f.sp++
}

// Pop pops the top operand-stack value.
func (f *Frame) Pop() object.Value {
	if f.sp <= 0 {
		panic("operand stack underflow")
	}
	f.sp--
	return f.OperandStack[f.sp]
}

// Peek returns the top operand-stack value without popping it.
func (f *Frame) Peek() object.Value { return f.OperandStack[f.sp-1] }

// PeekAt returns the value `depth` slots below the top (0 = top).
func (f *Frame) PeekAt(depth int) object.Value { return f.OperandStack[f.sp-1-depth] }

// SP reports the current operand-stack depth, for dup/swap variants
// that need to splice values at arbitrary depths.
func (f *Frame) SP() int { return f.sp }

// SetSP resets the operand-stack depth, used by the interpreter's
// exception handler entry (spec.md §4.12: "the operand stack...push the
// exception reference" implies the stack is first cleared).
func (f *Frame) SetSP(sp int) { f.sp = sp }

// InsertAt inserts v at `depth` slots below the current top, shifting
// everything above it up by one slot.
func (f *Frame) InsertAt(depth int, v object.Value) {
	if f.sp >= len(f.OperandStack) {
		panic("operand stack overflow on insert")
	}
	pos := f.sp - depth
	copy(f.OperandStack[pos+1:f.sp+1], f.OperandStack[pos:f.sp])
	f.OperandStack[pos] = v
	f.sp++
}

func (f *Frame) GetLocal(i int) object.Value { return f.Locals[i] }

func (f *Frame) SetLocal(i int, v object.Value) { f.Locals[i] = v }

// Code byte-cursor helpers. Each reads bytes at PC and advances PC past
// them; the interpreter reads opcodes and their operand bytes through
// these.

func (f *Frame) code() []byte { return f.Method.Code.Code }

func (f *Frame) ReadU8() uint8 {
	v := f.code()[f.PC]
	f.PC++
	return v
}

func (f *Frame) ReadI8() int8 {
	return int8(f.ReadU8())
}

func (f *Frame) ReadU16() uint16 {
	b := f.code()
	v := uint16(b[f.PC])<<8 | uint16(b[f.PC+1])
	f.PC += 2
	return v
}

func (f *Frame) ReadI16() int16 { return int16(f.ReadU16()) }

func (f *Frame) ReadI32() int32 {
	b := f.code()
	v := int32(uint32(b[f.PC])<<24 | uint32(b[f.PC+1])<<16 | uint32(b[f.PC+2])<<8 | uint32(b[f.PC+3]))
	f.PC += 4
	return v
}

func (f *Frame) ReadU32() uint32 { return uint32(f.ReadI32()) }
