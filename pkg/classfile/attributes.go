package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
)

// attributeLocation enumerates where an attribute kind is legal to
// appear, per the "valid location" column spec.md §4.2 requires the
// reader to enforce.
type attributeLocation int

const (
	locClassFile attributeLocation = 1 << iota
	locField
	locMethod
	locCode
	locRecordComponent
)

// knownAttributes maps recognized attribute names to the locations they
// are legal in. Attributes absent from this table are retained opaquely
// (spec.md §4.2) rather than rejected — only a *mis-placed* known
// attribute is an error.
var knownAttributes = map[string]attributeLocation{
	"Code":                                 locMethod,
	"StackMapTable":                        locCode,
	"ConstantValue":                        locField,
	"Exceptions":                           locMethod,
	"InnerClasses":                         locClassFile,
	"EnclosingMethod":                      locClassFile,
	"Synthetic":                            locClassFile | locField | locMethod,
	"Signature":                            locClassFile | locField | locMethod | locRecordComponent,
	"SourceFile":                           locClassFile,
	"LineNumberTable":                      locCode,
	"LocalVariableTable":                   locCode,
	"LocalVariableTypeTable":               locCode,
	"RuntimeVisibleAnnotations":            locClassFile | locField | locMethod | locRecordComponent,
	"RuntimeInvisibleAnnotations":          locClassFile | locField | locMethod | locRecordComponent,
	"RuntimeVisibleParameterAnnotations":   locMethod,
	"RuntimeInvisibleParameterAnnotations": locMethod,
	"RuntimeVisibleTypeAnnotations":        locClassFile | locField | locMethod | locCode | locRecordComponent,
	"RuntimeInvisibleTypeAnnotations":      locClassFile | locField | locMethod | locCode | locRecordComponent,
	"AnnotationDefault":                    locMethod,
	"BootstrapMethods":                     locClassFile,
	"MethodParameters":                     locMethod,
	"Module":                               locClassFile,
	"ModulePackages":                       locClassFile,
	"ModuleMainClass":                      locClassFile,
	"NestHost":                             locClassFile,
	"NestMembers":                          locClassFile,
	"Record":                               locClassFile,
	"PermittedSubclasses":                  locClassFile,
}

func checkAttributeLocation(name string, loc attributeLocation) error {
	allowed, known := knownAttributes[name]
	if !known {
		return nil // unrecognized attributes are retained opaquely, not rejected
	}
	if allowed&loc == 0 {
		return fmt.Errorf("attribute %q is not valid at this location", name)
	}
	return nil
}

func parseAttributeInfos(r io.Reader, pool []ConstantPoolEntry, count uint16, loc attributeLocation) ([]AttributeInfo, error) {
	attrs := make([]AttributeInfo, count)
	for i := uint16(0); i < count; i++ {
		var nameIndex uint16
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, fmt.Errorf("reading attribute %d name index: %w", i, err)
		}
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, fmt.Errorf("reading attribute %d length: %w", i, err)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("reading attribute %d data: %w", i, err)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving attribute %d name: %w", i, err)
		}
		if err := checkAttributeLocation(name, loc); err != nil {
			return nil, err
		}

		attrs[i] = AttributeInfo{Name: name, Data: data}
	}
	return attrs, nil
}

func findAttribute(attrs []AttributeInfo, name string) *AttributeInfo {
	for i := range attrs {
		if attrs[i].Name == name {
			return &attrs[i]
		}
	}
	return nil
}

// parseCodeAttribute decodes a Code attribute's payload (JVMS 4.7.3),
// including its nested StackMapTable/LineNumberTable/LocalVariableTable
// attributes.
func parseCodeAttribute(data []byte, pool []ConstantPoolEntry) (*CodeAttribute, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("Code attribute too short: %d bytes", len(data))
	}

	maxStack := binary.BigEndian.Uint16(data[0:2])
	maxLocals := binary.BigEndian.Uint16(data[2:4])
	codeLength := binary.BigEndian.Uint32(data[4:8])

	if len(data) < 8+int(codeLength) {
		return nil, fmt.Errorf("Code attribute data too short for code_length %d", codeLength)
	}
	code := make([]byte, codeLength)
	copy(code, data[8:8+codeLength])
	offset := 8 + int(codeLength)

	if offset+2 > len(data) {
		return nil, fmt.Errorf("Code attribute truncated before exception_table_length")
	}
	exTableLen := binary.BigEndian.Uint16(data[offset : offset+2])
	offset += 2
	handlers := make([]ExceptionHandler, exTableLen)
	for i := uint16(0); i < exTableLen; i++ {
		if offset+8 > len(data) {
			return nil, fmt.Errorf("Code attribute truncated in exception_table at entry %d", i)
		}
		handlers[i] = ExceptionHandler{
			StartPC:   binary.BigEndian.Uint16(data[offset : offset+2]),
			EndPC:     binary.BigEndian.Uint16(data[offset+2 : offset+4]),
			HandlerPC: binary.BigEndian.Uint16(data[offset+4 : offset+6]),
			CatchType: binary.BigEndian.Uint16(data[offset+6 : offset+8]),
		}
		offset += 8
	}

	if offset+2 > len(data) {
		return nil, fmt.Errorf("Code attribute truncated before attributes_count")
	}
	attrCount := binary.BigEndian.Uint16(data[offset : offset+2])
	offset += 2

	ca := &CodeAttribute{
		MaxStack:          maxStack,
		MaxLocals:         maxLocals,
		Code:              code,
		ExceptionHandlers: handlers,
	}

	for i := uint16(0); i < attrCount; i++ {
		if offset+6 > len(data) {
			return nil, fmt.Errorf("Code attribute truncated reading nested attribute %d header", i)
		}
		nameIndex := binary.BigEndian.Uint16(data[offset : offset+2])
		length := binary.BigEndian.Uint32(data[offset+2 : offset+6])
		offset += 6
		if offset+int(length) > len(data) {
			return nil, fmt.Errorf("Code attribute truncated reading nested attribute %d body", i)
		}
		body := data[offset : offset+int(length)]
		offset += int(length)

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			continue
		}
		if err := checkAttributeLocation(name, locCode); err != nil {
			return nil, err
		}

		switch name {
		case "LineNumberTable":
			entries, err := parseLineNumberTable(body)
			if err != nil {
				return nil, fmt.Errorf("parsing LineNumberTable: %w", err)
			}
			ca.LineNumbers = append(ca.LineNumbers, entries...)
		case "LocalVariableTable":
			entries, err := parseLocalVariableTable(body, pool)
			if err != nil {
				return nil, fmt.Errorf("parsing LocalVariableTable: %w", err)
			}
			ca.LocalVariables = append(ca.LocalVariables, entries...)
		case "StackMapTable":
			frames, err := parseStackMapTable(body)
			if err != nil {
				return nil, fmt.Errorf("parsing StackMapTable: %w", err)
			}
			ca.StackMapTable = frames
		default:
			ca.RawAttributes = append(ca.RawAttributes, AttributeInfo{Name: name, Data: body})
		}
	}

	return ca, nil
}

func parseLineNumberTable(data []byte) ([]LineNumberEntry, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("LineNumberTable too short")
	}
	count := binary.BigEndian.Uint16(data[0:2])
	offset := 2
	entries := make([]LineNumberEntry, count)
	for i := uint16(0); i < count; i++ {
		if offset+4 > len(data) {
			return nil, fmt.Errorf("LineNumberTable truncated at entry %d", i)
		}
		entries[i] = LineNumberEntry{
			StartPC: binary.BigEndian.Uint16(data[offset : offset+2]),
			Line:    binary.BigEndian.Uint16(data[offset+2 : offset+4]),
		}
		offset += 4
	}
	return entries, nil
}

func parseLocalVariableTable(data []byte, pool []ConstantPoolEntry) ([]LocalVariableEntry, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("LocalVariableTable too short")
	}
	count := binary.BigEndian.Uint16(data[0:2])
	offset := 2
	entries := make([]LocalVariableEntry, count)
	for i := uint16(0); i < count; i++ {
		if offset+10 > len(data) {
			return nil, fmt.Errorf("LocalVariableTable truncated at entry %d", i)
		}
		startPC := binary.BigEndian.Uint16(data[offset : offset+2])
		length := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		nameIndex := binary.BigEndian.Uint16(data[offset+4 : offset+6])
		descIndex := binary.BigEndian.Uint16(data[offset+6 : offset+8])
		index := binary.BigEndian.Uint16(data[offset+8 : offset+10])
		offset += 10

		name, _ := GetUtf8(pool, nameIndex)
		desc, _ := GetUtf8(pool, descIndex)
		entries[i] = LocalVariableEntry{StartPC: startPC, Length: length, Name: name, Descriptor: desc, Index: index}
	}
	return entries, nil
}

// parseStackMapTable decodes the frame list into absolute offsets with
// fully-materialized locals/stack, resolving append/chop/same_frame
// deltas against the previous frame as JVMS 4.7.4 specifies. Verification
// types whose tag carries no extra data (Top/Integer/...) are left with a
// zero CPoolOrOffset.
func parseStackMapTable(data []byte) ([]StackMapFrame, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("StackMapTable too short")
	}
	count := binary.BigEndian.Uint16(data[0:2])
	offset := 2

	frames := make([]StackMapFrame, 0, count)
	var prevLocals []VerificationType
	prevOffset := -1

	readVerifType := func() (VerificationType, error) {
		if offset >= len(data) {
			return VerificationType{}, fmt.Errorf("truncated verification_type_info")
		}
		tag := data[offset]
		offset++
		vt := VerificationType{Tag: tag}
		if tag == VerifObject || tag == VerifUninitialized {
			if offset+2 > len(data) {
				return VerificationType{}, fmt.Errorf("truncated verification_type_info operand")
			}
			vt.CPoolOrOffset = binary.BigEndian.Uint16(data[offset : offset+2])
			offset += 2
		}
		return vt, nil
	}

	for i := uint16(0); i < count; i++ {
		if offset >= len(data) {
			return nil, fmt.Errorf("StackMapTable truncated at frame %d", i)
		}
		frameType := data[offset]
		offset++

		var thisOffsetDelta int
		var locals, stack []VerificationType

		switch {
		case frameType <= 63: // same_frame
			thisOffsetDelta = int(frameType)
			locals = append([]VerificationType(nil), prevLocals...)

		case frameType <= 127: // same_locals_1_stack_item_frame
			thisOffsetDelta = int(frameType) - 64
			locals = append([]VerificationType(nil), prevLocals...)
			vt, err := readVerifType()
			if err != nil {
				return nil, err
			}
			stack = []VerificationType{vt}

		case frameType == 247: // same_locals_1_stack_item_frame_extended
			if offset+2 > len(data) {
				return nil, fmt.Errorf("truncated frame %d delta", i)
			}
			thisOffsetDelta = int(binary.BigEndian.Uint16(data[offset : offset+2]))
			offset += 2
			locals = append([]VerificationType(nil), prevLocals...)
			vt, err := readVerifType()
			if err != nil {
				return nil, err
			}
			stack = []VerificationType{vt}

		case frameType >= 248 && frameType <= 250: // chop_frame
			if offset+2 > len(data) {
				return nil, fmt.Errorf("truncated frame %d delta", i)
			}
			thisOffsetDelta = int(binary.BigEndian.Uint16(data[offset : offset+2]))
			offset += 2
			chop := 251 - int(frameType)
			if chop > len(prevLocals) {
				chop = len(prevLocals)
			}
			locals = append([]VerificationType(nil), prevLocals[:len(prevLocals)-chop]...)

		case frameType == 251: // same_frame_extended
			if offset+2 > len(data) {
				return nil, fmt.Errorf("truncated frame %d delta", i)
			}
			thisOffsetDelta = int(binary.BigEndian.Uint16(data[offset : offset+2]))
			offset += 2
			locals = append([]VerificationType(nil), prevLocals...)

		case frameType >= 252 && frameType <= 254: // append_frame
			if offset+2 > len(data) {
				return nil, fmt.Errorf("truncated frame %d delta", i)
			}
			thisOffsetDelta = int(binary.BigEndian.Uint16(data[offset : offset+2]))
			offset += 2
			locals = append([]VerificationType(nil), prevLocals...)
			n := int(frameType) - 251
			for j := 0; j < n; j++ {
				vt, err := readVerifType()
				if err != nil {
					return nil, err
				}
				locals = append(locals, vt)
			}

		case frameType == 255: // full_frame
			if offset+2 > len(data) {
				return nil, fmt.Errorf("truncated frame %d delta", i)
			}
			thisOffsetDelta = int(binary.BigEndian.Uint16(data[offset : offset+2]))
			offset += 2
			if offset+2 > len(data) {
				return nil, fmt.Errorf("truncated frame %d locals count", i)
			}
			numLocals := binary.BigEndian.Uint16(data[offset : offset+2])
			offset += 2
			for j := uint16(0); j < numLocals; j++ {
				vt, err := readVerifType()
				if err != nil {
					return nil, err
				}
				locals = append(locals, vt)
			}
			if offset+2 > len(data) {
				return nil, fmt.Errorf("truncated frame %d stack count", i)
			}
			numStack := binary.BigEndian.Uint16(data[offset : offset+2])
			offset += 2
			for j := uint16(0); j < numStack; j++ {
				vt, err := readVerifType()
				if err != nil {
					return nil, err
				}
				stack = append(stack, vt)
			}

		default:
			return nil, fmt.Errorf("reserved/unknown stack map frame_type %d at frame %d", frameType, i)
		}

		var absOffset int
		if prevOffset == -1 {
			absOffset = thisOffsetDelta
		} else {
			absOffset = prevOffset + thisOffsetDelta + 1
		}
		prevOffset = absOffset
		prevLocals = locals

		frames = append(frames, StackMapFrame{Offset: absOffset, Locals: locals, Stack: stack})
	}

	return frames, nil
}

func parseBootstrapMethods(data []byte) ([]BootstrapMethod, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("BootstrapMethods data too short")
	}
	numMethods := binary.BigEndian.Uint16(data[0:2])
	offset := 2
	methods := make([]BootstrapMethod, numMethods)
	for i := uint16(0); i < numMethods; i++ {
		if offset+4 > len(data) {
			return nil, fmt.Errorf("BootstrapMethods truncated at method %d", i)
		}
		methodRef := binary.BigEndian.Uint16(data[offset : offset+2])
		numArgs := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += 4
		args := make([]uint16, numArgs)
		for j := uint16(0); j < numArgs; j++ {
			if offset+2 > len(data) {
				return nil, fmt.Errorf("BootstrapMethods truncated at arg %d of method %d", j, i)
			}
			args[j] = binary.BigEndian.Uint16(data[offset : offset+2])
			offset += 2
		}
		methods[i] = BootstrapMethod{MethodRef: methodRef, BootstrapArguments: args}
	}
	return methods, nil
}

func parseInnerClasses(data []byte) ([]InnerClassInfo, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("InnerClasses too short")
	}
	count := binary.BigEndian.Uint16(data[0:2])
	offset := 2
	entries := make([]InnerClassInfo, count)
	for i := uint16(0); i < count; i++ {
		if offset+8 > len(data) {
			return nil, fmt.Errorf("InnerClasses truncated at entry %d", i)
		}
		entries[i] = InnerClassInfo{
			InnerClassIndex:       binary.BigEndian.Uint16(data[offset : offset+2]),
			OuterClassIndex:       binary.BigEndian.Uint16(data[offset+2 : offset+4]),
			InnerNameIndex:        binary.BigEndian.Uint16(data[offset+4 : offset+6]),
			InnerClassAccessFlags: binary.BigEndian.Uint16(data[offset+6 : offset+8]),
		}
		offset += 8
	}
	return entries, nil
}

func parseU16List(data []byte) ([]uint16, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("u16 list too short")
	}
	count := binary.BigEndian.Uint16(data[0:2])
	offset := 2
	out := make([]uint16, count)
	for i := uint16(0); i < count; i++ {
		if offset+2 > len(data) {
			return nil, fmt.Errorf("u16 list truncated at entry %d", i)
		}
		out[i] = binary.BigEndian.Uint16(data[offset : offset+2])
		offset += 2
	}
	return out, nil
}
