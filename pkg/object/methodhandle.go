package object

// MethodHandleKind mirrors the CONSTANT_MethodHandle reference_kind
// values (JVMS §5.4.3.5).
type MethodHandleKind uint8

const (
	RefGetField MethodHandleKind = iota + 1
	RefGetStatic
	RefPutField
	RefPutStatic
	RefInvokeVirtual
	RefInvokeStatic
	RefInvokeSpecial
	RefNewInvokeSpecial
	RefInvokeInterface
)

// MethodHandle is the runtime counterpart of a resolved
// CONSTANT_MethodHandle entry (spec.md §4.6, §4.10 "Method handles").
// It carries enough to build a java.lang.invoke.MethodHandle heap
// object and to drive a direct invocation without re-resolving the
// underlying member.
type MethodHandle struct {
	Kind   MethodHandleKind
	Field  *Field  // set for the four Ref*Field kinds
	Method *Method // set for the Ref*Invoke*/RefNewInvokeSpecial kinds
}

// MethodType is the runtime counterpart of a resolved
// CONSTANT_MethodType entry: a parsed descriptor with no bound
// receiver or arguments (spec.md §4.6).
type MethodType struct {
	Descriptor string
}

// CallSite is what a bootstrap method call at an invokedynamic/dynamic
// constant call site produces: a target handle plus (for invokedynamic)
// whether it is mutable (spec.md §4.10 "invokedynamic linkage").
type CallSite struct {
	Target  *MethodHandle
	Mutable bool
}

// handleMeta/typeMeta back the java.lang.invoke.MethodHandle/MethodType
// heap instances `ldc` materializes: the resolved MethodHandle/MethodType
// is attached here by heap-object identity rather than laid out as real
// fields, the same pattern pkg/except uses for a throwable's backtrace
// (no compiled java.lang.invoke classes exist in this tree to lay
// fields out against).
var (
	handleMeta = map[*Instance]*MethodHandle{}
	typeMeta   = map[*Instance]*MethodType{}
)

// AttachMethodHandle records mh as the metadata behind a
// java.lang.invoke.MethodHandle instance `ldc` just allocated.
func AttachMethodHandle(inst *Instance, mh *MethodHandle) { handleMeta[inst] = mh }

// HandleOf returns the MethodHandle metadata attached to inst, if any.
func HandleOf(inst *Instance) *MethodHandle { return handleMeta[inst] }

// AttachMethodType records mt as the metadata behind a
// java.lang.invoke.MethodType instance `ldc` just allocated.
func AttachMethodType(inst *Instance, mt *MethodType) { typeMeta[inst] = mt }

// TypeOf returns the MethodType metadata attached to inst, if any.
func TypeOf(inst *Instance) *MethodType { return typeMeta[inst] }
