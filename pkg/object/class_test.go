package object

import (
	"errors"
	"testing"

	"github.com/jacobin-core/jvmcore/pkg/symbol"
)

func TestAssignFieldOffsetsInheritsSuperSize(t *testing.T) {
	super := NewClass(symbol.Global().Intern("Super"), nil)
	super.Fields = []*Field{{NameStr: "a", DescriptorStr: "I"}, {NameStr: "b", DescriptorStr: "J"}}
	super.AssignFieldOffsets()

	sub := NewClass(symbol.Global().Intern("Sub"), nil)
	sub.Super = super
	sub.Fields = []*Field{{NameStr: "c", DescriptorStr: "I"}}
	sub.AssignFieldOffsets()

	if sub.Fields[0].Offset < super.InstanceFieldSize {
		t.Errorf("sub field offset %d overlaps super's region (size %d)", sub.Fields[0].Offset, super.InstanceFieldSize)
	}
	if sub.TotalInstanceSlots != 3 {
		t.Errorf("TotalInstanceSlots = %d, want 3", sub.TotalInstanceSlots)
	}
	if sub.Fields[0].Index != 2 {
		t.Errorf("sub field index = %d, want 2 (after super's 2 slots)", sub.Fields[0].Index)
	}
}

func TestBuildVTableOverridesInPlace(t *testing.T) {
	super := NewClass(symbol.Global().Intern("Super"), nil)
	toString := &Method{NameStr: "toString", DescriptorStr: "()Ljava/lang/String;"}
	super.Methods = []*Method{toString}
	super.BuildVTable()

	sub := NewClass(symbol.Global().Intern("Sub"), nil)
	sub.Super = super
	override := &Method{NameStr: "toString", DescriptorStr: "()Ljava/lang/String;"}
	sub.Methods = []*Method{override}
	sub.BuildVTable()

	if len(sub.VTable) != 1 {
		t.Fatalf("VTable length = %d, want 1", len(sub.VTable))
	}
	if sub.VTable[0] != override {
		t.Error("override did not replace super's slot in place")
	}
	if override.VTableIndex != 0 {
		t.Errorf("VTableIndex = %d, want 0", override.VTableIndex)
	}
}

func TestBuildVTableAppendsNewMethod(t *testing.T) {
	super := NewClass(symbol.Global().Intern("Super2"), nil)
	super.BuildVTable()

	sub := NewClass(symbol.Global().Intern("Sub2"), nil)
	sub.Super = super
	fresh := &Method{NameStr: "frob", DescriptorStr: "()V"}
	sub.Methods = []*Method{fresh}
	sub.BuildVTable()

	if len(sub.VTable) != 1 || sub.VTable[0] != fresh {
		t.Fatalf("expected appended slot, got %+v", sub.VTable)
	}
}

func TestIsSubclassOf(t *testing.T) {
	object := NewClass(symbol.Global().Intern("java/lang/Object"), nil)
	super := NewClass(symbol.Global().Intern("Super3"), nil)
	super.Super = object
	sub := NewClass(symbol.Global().Intern("Sub3"), nil)
	sub.Super = super

	if !sub.IsSubclassOf(object) {
		t.Error("Sub3 should be a subclass of Object transitively")
	}
	if sub.IsSubclassOf(NewClass(symbol.Global().Intern("Unrelated"), nil)) {
		t.Error("Sub3 should not be a subclass of an unrelated class")
	}
}

func TestEnterInitializationRecursiveReentry(t *testing.T) {
	c := NewClass(symbol.Global().Intern("Init1"), nil)
	proceed, err := c.EnterInitialization(1)
	if !proceed || err != nil {
		t.Fatalf("first enter: proceed=%v err=%v", proceed, err)
	}
	proceed, err = c.EnterInitialization(1)
	if proceed || err != nil {
		t.Fatalf("recursive re-entry: proceed=%v err=%v, want false, nil", proceed, err)
	}
	c.FinishInitialization(nil)
	if c.State() != FullyInitialized {
		t.Errorf("state = %v, want FullyInitialized", c.State())
	}
}

func TestEnterInitializationAfterFailureReturnsError(t *testing.T) {
	c := NewClass(symbol.Global().Intern("Init2"), nil)
	c.EnterInitialization(1)
	c.FinishInitialization(errors.New("boom"))

	_, err := c.EnterInitialization(2)
	if err == nil {
		t.Fatal("expected error after InitializationFailed")
	}
}
