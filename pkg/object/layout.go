package object

// AssignFieldOffsets continues from the superclass's InstanceFieldSize
// and TotalInstanceSlots, assigning each of this class's instance fields
// a unique aligned byte offset past the inherited region (spec.md §4.4
// "Field offset assignment"). Static fields get their own block,
// numbered consecutively with no alignment: a static field's Offset is
// its slot in Class.StaticBlock. Field.Index
// (the slot used by Instance.Fields / Class.StaticBlock) is assigned in
// declaration order alongside the byte offset, so both addressing
// schemes stay consistent.
func (c *Class) AssignFieldOffsets() {
	var instanceOffset uint32
	var instanceIndex int
	var staticCount int
	if c.Super != nil {
		instanceOffset = c.Super.InstanceFieldSize
		instanceIndex = c.Super.TotalInstanceSlots
	}

	for _, f := range c.Fields {
		size, align := fieldSizeAlign(f.DescriptorStr)
		if f.IsStatic() {
			f.Offset = uint32(staticCount)
			f.Index = staticCount
			staticCount++
			continue
		}
		instanceOffset = alignUp(instanceOffset, align)
		f.Offset = instanceOffset
		f.Index = instanceIndex
		instanceOffset += size
		instanceIndex++
	}

	c.InstanceFieldSize = instanceOffset
	c.TotalInstanceSlots = instanceIndex
	c.StaticBlock = make([]Value, staticCount)
}

func alignUp(offset, align uint32) uint32 {
	if align <= 1 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// fieldSizeAlign returns the (size, alignment) in bytes for a field
// descriptor. long/double fields are 8-byte aligned (spec.md §4.4).
func fieldSizeAlign(descriptor string) (size, align uint32) {
	if len(descriptor) == 0 {
		return 4, 4
	}
	switch descriptor[0] {
	case 'J', 'D':
		return 8, 8
	case 'Z', 'B':
		return 1, 1
	case 'C', 'S':
		return 2, 2
	default: // I, F, L..., [...
		return 4, 4
	}
}
