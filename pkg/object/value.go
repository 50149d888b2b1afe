package object

import "math"

// ValueKind tags which field of a Value is meaningful.
type ValueKind uint8

const (
	KindVoid ValueKind = iota
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindRef
	KindReturnAddress // used by jsr/ret on pre-split-verifier bytecode; rarely exercised
)

// Value is the single machine-word-or-two unit flowing through the
// operand stack and local-variable array (spec.md §3 "Reference and
// Object", §4.8 "Frame"). long/double values occupy two adjacent local
// slots in the class-file model; here they're a single Value carrying
// the full 64 bits, and callers account for the two-slot width via
// Category() when indexing locals, matching how the teacher's `Value`
// already collapses width into one struct rather than splitting words.
type Value struct {
	Kind ValueKind
	num  uint64 // raw bits for Int/Long/Float/Double
	Ref  *Header
}

func IntValue(v int32) Value    { return Value{Kind: KindInt, num: uint64(uint32(v))} }
func LongValue(v int64) Value   { return Value{Kind: KindLong, num: uint64(v)} }
func FloatValue(v float32) Value {
	return Value{Kind: KindFloat, num: uint64(math.Float32bits(v))}
}
func DoubleValue(v float64) Value {
	return Value{Kind: KindDouble, num: math.Float64bits(v)}
}
func RefValue(ref *Header) Value { return Value{Kind: KindRef, Ref: ref} }
func NullValue() Value           { return Value{Kind: KindRef, Ref: nil} }

func (v Value) Int() int32     { return int32(uint32(v.num)) }
func (v Value) Long() int64    { return int64(v.num) }
func (v Value) Float() float32 { return math.Float32frombits(uint32(v.num)) }
func (v Value) Double() float64 { return math.Float64frombits(v.num) }

// Category returns the number of stack/local slots this value occupies:
// 2 for long/double, 1 otherwise (spec.md §3 "Frame").
func (v Value) Category() int {
	if v.Kind == KindLong || v.Kind == KindDouble {
		return 2
	}
	return 1
}

// IsNull reports whether this is the null reference.
func (v Value) IsNull() bool { return v.Kind == KindRef && v.Ref == nil }
