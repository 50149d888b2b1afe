package object

import "github.com/jacobin-core/jvmcore/pkg/symbol"

// Field describes a single class field (spec.md §3 "Field"). Assigned
// at class-load time and immutable thereafter.
type Field struct {
	Owner         *Class
	Name          symbol.Symbol
	NameStr       string // cached string form; descriptors/names are compared often in hot loops
	DescriptorStr string
	Index         int
	Offset        uint32 // instance-field byte offset, or index into Owner.StaticBlock for statics
	AccessFlags   uint16
	Injected      bool // true for VM-private fields with no class-file entry
}

func (f *Field) IsStatic() bool   { return f.AccessFlags&0x0008 != 0 }
func (f *Field) IsFinal() bool    { return f.AccessFlags&0x0010 != 0 }
func (f *Field) IsVolatile() bool { return f.AccessFlags&0x0040 != 0 }

// Category reports how many stack/local slots this field's declared
// type occupies: 2 for long/double, 1 for everything else.
func (f *Field) Category() int {
	if len(f.DescriptorStr) > 0 && (f.DescriptorStr[0] == 'J' || f.DescriptorStr[0] == 'D') {
		return 2
	}
	return 1
}
