package verifier

import (
	"testing"

	"github.com/jacobin-core/jvmcore/pkg/classfile"
	"github.com/jacobin-core/jvmcore/pkg/interpreter"
	"github.com/jacobin-core/jvmcore/pkg/object"
	"github.com/jacobin-core/jvmcore/pkg/symbol"
)

func TestScanFindsBoundariesAndGotoTarget(t *testing.T) {
	code := []byte{
		interpreter.OpIconst0, // pc 0
		interpreter.OpGoto, 0x00, 0x03, // pc 1, branch to pc 4
		interpreter.OpNop, // pc 4
		interpreter.OpReturn,
	}
	boundaries, targets, err := scan(code)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	for _, pc := range []int{0, 1, 4, 5} {
		if !boundaries[pc] {
			t.Errorf("expected boundary at %d", pc)
		}
	}
	if len(targets) != 1 || targets[0] != 4 {
		t.Errorf("targets = %v, want [4]", targets)
	}
}

func TestScanRejectsUnknownOpcode(t *testing.T) {
	if _, _, err := scan([]byte{0xff}); err == nil {
		t.Fatal("expected an error for an unassigned opcode")
	}
}

func TestScanRejectsTruncatedBranch(t *testing.T) {
	if _, _, err := scan([]byte{interpreter.OpGoto, 0x00}); err == nil {
		t.Fatal("expected an error for a truncated goto operand")
	}
}

func TestVerifyRejectsFinalOverride(t *testing.T) {
	super := object.NewClass(symbol.Global().Intern("Super"), nil)
	finalMethod := &object.Method{NameStr: "frob", DescriptorStr: "()V", AccessFlags: 0x0010} // ACC_FINAL
	super.Methods = []*object.Method{finalMethod}
	super.BuildVTable()

	sub := object.NewClass(symbol.Global().Intern("Sub"), nil)
	sub.Super = super
	override := &object.Method{NameStr: "frob", DescriptorStr: "()V"}
	sub.Methods = []*object.Method{override}
	sub.BuildVTable()

	cf := &classfile.ClassFile{Methods: []classfile.MethodInfo{{Name: "frob", Descriptor: "()V"}}}
	if err := Verify(sub, cf, nil); err == nil {
		t.Fatal("expected VerifyError for overriding a final method")
	}
}

func TestVerifyAcceptsWellFormedStackMapTable(t *testing.T) {
	class := object.NewClass(symbol.Global().Intern("Plain"), nil)
	m := &object.Method{NameStr: "run", DescriptorStr: "()V"}
	class.Methods = []*object.Method{m}
	class.BuildVTable()

	code := &classfile.CodeAttribute{
		MaxStack:  1,
		MaxLocals: 1,
		Code: []byte{
			interpreter.OpIconst0,
			interpreter.OpIfeq, 0x00, 0x03,
			interpreter.OpReturn,
		},
		StackMapTable: []classfile.StackMapFrame{{Offset: 4}},
	}
	cf := &classfile.ClassFile{Methods: []classfile.MethodInfo{{Name: "run", Descriptor: "()V", Code: code}}}
	if err := Verify(class, cf, nil); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsOutOfOrderStackMapFrame(t *testing.T) {
	class := object.NewClass(symbol.Global().Intern("Plain2"), nil)
	m := &object.Method{NameStr: "run", DescriptorStr: "()V"}
	class.Methods = []*object.Method{m}
	class.BuildVTable()

	code := &classfile.CodeAttribute{
		MaxStack:  1,
		MaxLocals: 1,
		Code: []byte{
			interpreter.OpIconst0,
			interpreter.OpReturn,
		},
		StackMapTable: []classfile.StackMapFrame{{Offset: 1}, {Offset: 0}},
	}
	cf := &classfile.ClassFile{Methods: []classfile.MethodInfo{{Name: "run", Descriptor: "()V", Code: code}}}
	if err := Verify(class, cf, nil); err == nil {
		t.Fatal("expected VerifyError for a non-increasing stack map frame offset")
	}
}

func TestVerifyRejectsHandlerRangeOutOfBounds(t *testing.T) {
	class := object.NewClass(symbol.Global().Intern("Plain3"), nil)
	m := &object.Method{NameStr: "run", DescriptorStr: "()V"}
	class.Methods = []*object.Method{m}
	class.BuildVTable()

	code := &classfile.CodeAttribute{
		MaxStack:  1,
		MaxLocals: 1,
		Code:      []byte{interpreter.OpReturn},
		ExceptionHandlers: []classfile.ExceptionHandler{
			{StartPC: 0, EndPC: 0, HandlerPC: 0},
		},
	}
	cf := &classfile.ClassFile{Methods: []classfile.MethodInfo{{Name: "run", Descriptor: "()V", Code: code}}}
	if err := Verify(class, cf, nil); err == nil {
		t.Fatal("expected VerifyError for an empty exception handler range")
	}
}
