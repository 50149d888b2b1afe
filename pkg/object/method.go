package object

import (
	"strings"

	"github.com/jacobin-core/jvmcore/pkg/classfile"
	"github.com/jacobin-core/jvmcore/pkg/symbol"
)

// EntryPointOverride intercepts normal bytecode execution for a method,
// used for polymorphic-signature trampolines and VM intrinsics
// (spec.md §3 "Method", §4.10 "Polymorphic-signature methods"). The
// arguments are the calling thread (opaque here to avoid an import
// cycle with pkg/thread) and the raw argument slots as pushed by the
// caller; it returns the method's result slots.
type EntryPointOverride func(thread any, args []Value) ([]Value, error)

// NativeFunc is a registered native implementation (spec.md §4.14).
type NativeFunc func(env any, args []Value) ([]Value, error)

// Method describes a method (spec.md §3 "Method").
type Method struct {
	Owner         *Class
	Name          symbol.Symbol
	NameStr       string
	DescriptorStr string
	AccessFlags   uint16

	Code *classfile.CodeAttribute // nil for abstract/native methods

	ParamSlots int // precomputed, counting long/double as 2
	IsStaticM  bool

	EntryPoint EntryPointOverride
	Native     NativeFunc

	VTableIndex int // slot index in Owner.VTable, -1 if not virtually dispatched
}

func (m *Method) IsStatic() bool   { return m.AccessFlags&0x0008 != 0 }
func (m *Method) IsPrivate() bool  { return m.AccessFlags&0x0002 != 0 }
func (m *Method) IsFinal() bool    { return m.AccessFlags&0x0010 != 0 }
func (m *Method) IsAbstract() bool { return m.AccessFlags&0x0400 != 0 }
func (m *Method) IsNative() bool   { return m.AccessFlags&0x0100 != 0 }
func (m *Method) IsVarargs() bool  { return m.AccessFlags&0x0080 != 0 }

// IsPolymorphicSignature implements the Method invariant from spec.md
// §3: declared in MethodHandle/VarHandle, ACC_VARARGS|ACC_NATIVE, and a
// single Object[] parameter.
func (m *Method) IsPolymorphicSignature() bool {
	owner := ""
	if m.Owner != nil {
		owner = m.Owner.NameStr()
	}
	if owner != "java/lang/invoke/MethodHandle" && owner != "java/lang/invoke/VarHandle" {
		return false
	}
	const want = 0x0080 | 0x0100 // ACC_VARARGS | ACC_NATIVE
	return m.AccessFlags&want == want &&
		strings.HasPrefix(m.DescriptorStr, "([Ljava/lang/Object;)")
}

// NameStr returns the class's name as a plain string. Classes carry
// their name as a Symbol for fast comparisons; this is the escape hatch
// for the rarer places (descriptors, error messages) that need text.
func (c *Class) NameStr() string {
	if s, ok := symbol.Global().Lookup(c.Name); ok {
		return s
	}
	return "<unknown>"
}

// ParseParamSlotCount computes the argument slot count for a method
// descriptor like "(IJLjava/lang/String;)V", counting long/double as 2
// slots each, per spec.md §3 "Method".
func ParseParamSlotCount(descriptor string) int {
	i := strings.IndexByte(descriptor, '(')
	if i < 0 {
		return 0
	}
	j := strings.IndexByte(descriptor, ')')
	if j < 0 {
		return 0
	}
	params := descriptor[i+1 : j]
	count := 0
	for k := 0; k < len(params); k++ {
		switch params[k] {
		case 'B', 'C', 'F', 'I', 'S', 'Z':
			count++
		case 'J', 'D':
			count += 2
		case 'L':
			count++
			for params[k] != ';' {
				k++
			}
		case '[':
			count++
			for params[k] == '[' {
				k++
			}
			if params[k] == 'L' {
				for params[k] != ';' {
					k++
				}
			}
		}
	}
	return count
}
