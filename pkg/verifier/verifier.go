// Package verifier implements the method-body type-safety check spec.md
// §4.13 describes: each method is checked against its StackMapTable
// attribute, exception handlers are checked for range and catch-type
// validity, and final methods are checked for illegal override.
//
// Full JVMS split-verifier dataflow (deriving and merging an abstract
// type state at every instruction) is not reproduced opcode-by-opcode
// here; instead the verifier trusts the compiler-emitted StackMapTable
// as the source of per-frame types (as every later-than-Java-6 class
// file already requires one) and checks the structural invariants the
// spec calls out by name: every frame and branch target lands on an
// instruction boundary, frame stack/local counts stay within
// max_stack/max_locals, handler ranges are well-formed and their catch
// type is assignable to Throwable, and no method overrides a final one.
// See DESIGN.md for the scope decision.
package verifier

import (
	"fmt"

	"github.com/jacobin-core/jvmcore/pkg/classfile"
	"github.com/jacobin-core/jvmcore/pkg/object"
)

// ClassResolver is what catch-type assignability checks need from the
// class loader. Satisfied structurally by *classloader.Loader.
type ClassResolver interface {
	Load(name string) (*object.Class, error)
}

// Verify checks class (already field/method/vtable-populated by the
// loader, not yet linked) against cf, the same class file class's
// Methods were built from. cf.Methods[i] and class.Methods[i] describe
// the same method in the same order (classloader.define builds both in
// one pass over cf.Methods).
func Verify(class *object.Class, cf *classfile.ClassFile, resolver ClassResolver) error {
	if err := checkFinalOverrides(class); err != nil {
		return err
	}
	for i, mi := range cf.Methods {
		if mi.Code == nil {
			continue
		}
		if i >= len(class.Methods) {
			break
		}
		if err := verifyMethodBody(class, class.Methods[i], mi.Code, cf.ConstantPool, resolver); err != nil {
			return err
		}
	}
	return nil
}

// checkFinalOverrides rejects a class that overrides a final instance
// method of one of its superclasses (spec.md §4.13 "final methods are
// not overridden").
func checkFinalOverrides(class *object.Class) error {
	if class.Super == nil {
		return nil
	}
	for _, m := range class.Methods {
		if m.IsStatic() || m.NameStr == "<init>" || m.NameStr == "<clinit>" {
			continue
		}
		if super := class.Super.ResolveMethod(m.NameStr, m.DescriptorStr); super != nil && super.IsFinal() {
			ownerName := "<unknown>"
			if super.Owner != nil {
				ownerName = super.Owner.NameStr()
			}
			return fmt.Errorf("VerifyError: class %s overrides final method %s.%s%s",
				class.NameStr(), ownerName, m.NameStr, m.DescriptorStr)
		}
	}
	return nil
}

func verrorf(class *object.Class, m *object.Method, format string, args ...any) error {
	prefix := fmt.Sprintf("VerifyError: %s.%s%s: ", class.NameStr(), m.NameStr, m.DescriptorStr)
	return fmt.Errorf(prefix+format, args...)
}

// verifyMethodBody applies the structural checks described in the
// package doc comment to one method's Code attribute.
func verifyMethodBody(class *object.Class, m *object.Method, code *classfile.CodeAttribute, pool []classfile.ConstantPoolEntry, resolver ClassResolver) error {
	boundaries, targets, err := scan(code.Code)
	if err != nil {
		return verrorf(class, m, "%w", err)
	}

	if err := checkHandlers(class, m, code, boundaries, pool, resolver); err != nil {
		return err
	}

	if err := checkStackMapTable(class, m, code, boundaries); err != nil {
		return err
	}

	for _, t := range targets {
		if !boundaries[t] && t != len(code.Code) {
			return verrorf(class, m, "branch target %d is not an instruction boundary", t)
		}
	}
	return nil
}

// checkHandlers verifies spec.md §4.13's exception-table obligations:
// each handler's [start, end) is in range and lands on an instruction
// boundary, and its catch type (if nonzero) is assignable to Throwable.
func checkHandlers(class *object.Class, m *object.Method, code *classfile.CodeAttribute, boundaries map[int]bool, pool []classfile.ConstantPoolEntry, resolver ClassResolver) error {
	throwable, haveThrowable := (*object.Class)(nil), false
	if resolver != nil {
		if t, err := resolver.Load("java/lang/Throwable"); err == nil {
			throwable, haveThrowable = t, true
		}
	}

	for _, h := range code.ExceptionHandlers {
		start, end, handler := int(h.StartPC), int(h.EndPC), int(h.HandlerPC)
		if start >= end || end > len(code.Code) {
			return verrorf(class, m, "exception handler [%d,%d) is empty or out of range", start, end)
		}
		if !boundaries[start] {
			return verrorf(class, m, "exception handler start_pc %d is not an instruction boundary", start)
		}
		if end != len(code.Code) && !boundaries[end] {
			return verrorf(class, m, "exception handler end_pc %d is not an instruction boundary", end)
		}
		if !boundaries[handler] {
			return verrorf(class, m, "exception handler handler_pc %d is not an instruction boundary", handler)
		}
		if h.CatchType == 0 || !haveThrowable {
			continue
		}
		name, err := classfile.GetClassName(pool, h.CatchType)
		if err != nil {
			return verrorf(class, m, "bad catch type index %d: %v", h.CatchType, err)
		}
		catch, err := resolver.Load(name)
		if err != nil {
			// Unresolvable catch types are reported as a linkage error at
			// actual handler-search time (pkg/except.FindHandler), not here.
			continue
		}
		if !catch.IsSubclassOf(throwable) {
			return verrorf(class, m, "catch type %s is not assignable to Throwable", name)
		}
	}
	return nil
}

// checkStackMapTable verifies spec.md §4.13's per-frame obligations the
// structural subset covers: frame offsets land on instruction
// boundaries, are strictly increasing, and never describe more locals
// or stack slots than the method declares room for.
func checkStackMapTable(class *object.Class, m *object.Method, code *classfile.CodeAttribute, boundaries map[int]bool) error {
	last := -1
	for _, f := range code.StackMapTable {
		if f.Offset <= last {
			return verrorf(class, m, "stack map frame at %d is not strictly after the previous frame", f.Offset)
		}
		if !boundaries[f.Offset] {
			return verrorf(class, m, "stack map frame at %d is not an instruction boundary", f.Offset)
		}
		if len(f.Locals) > int(code.MaxLocals) {
			return verrorf(class, m, "stack map frame at %d declares %d locals > max_locals %d", f.Offset, len(f.Locals), code.MaxLocals)
		}
		if len(f.Stack) > int(code.MaxStack) {
			return verrorf(class, m, "stack map frame at %d declares %d stack slots > max_stack %d", f.Offset, len(f.Stack), code.MaxStack)
		}
		last = f.Offset
	}
	return nil
}
