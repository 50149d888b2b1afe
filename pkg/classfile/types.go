// Package classfile parses the Java SE class-file binary format (JVMS
// chapter 4) into an in-memory tree. Parsing is a pure function of the
// input bytes: ClassFile trees carry no references to a class loader or
// runtime constant pool — that linkage happens one layer up, in
// pkg/classloader.
package classfile

// Access flags shared across ClassFile, FieldInfo and MethodInfo, per
// JVMS 4.1 Table 4.1-A (only the subset relevant to the class-file
// bitmask, not per-parameter flags).
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSuper        = 0x0020
	AccSynchronized = 0x0020
	AccVolatile     = 0x0040
	AccBridge       = 0x0040
	AccTransient    = 0x0080
	AccVarargs      = 0x0080
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccStrict       = 0x0800
	AccSynthetic    = 0x1000
	AccAnnotation   = 0x2000
	AccEnum         = 0x4000
	AccModule       = 0x8000
)

// ClassFile is the parsed form of a single .class file, JVMS 4.1.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	ConstantPool []ConstantPoolEntry // 1-indexed; index 0 and the slot after an 8-byte constant are nil
	AccessFlags  uint16
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []FieldInfo
	Methods      []MethodInfo

	// Class-level attributes with dedicated structure. Attributes this
	// reader doesn't model beyond raw bytes live in RawAttributes.
	BootstrapMethods []BootstrapMethod
	SourceFile       string
	Signature        string
	NestHostIndex    uint16 // 0 if absent
	NestMembers      []uint16
	InnerClasses     []InnerClassInfo
	PermittedSubclasses []uint16
	RawAttributes    []AttributeInfo
}

// ClassName returns the fully qualified internal name of this class.
func (cf *ClassFile) ClassName() (string, error) {
	return GetClassName(cf.ConstantPool, cf.ThisClass)
}

// SuperClassName returns the internal name of the superclass, or "" for
// java/lang/Object (SuperClass == 0).
func (cf *ClassFile) SuperClassName() string {
	if cf.SuperClass == 0 {
		return ""
	}
	name, err := GetClassName(cf.ConstantPool, cf.SuperClass)
	if err != nil {
		return ""
	}
	return name
}

// FindMethod finds a method by name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}

// FindMethodByName finds the first method matching name only.
func (cf *ClassFile) FindMethodByName(name string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name {
			return &cf.Methods[i]
		}
	}
	return nil
}

// FindField finds a field by name.
func (cf *ClassFile) FindField(name string) *FieldInfo {
	for i := range cf.Fields {
		if cf.Fields[i].Name == name {
			return &cf.Fields[i]
		}
	}
	return nil
}

// InnerClassInfo mirrors one entry of the InnerClasses attribute (JVMS
// 4.7.6), used for nest/enclosing-class bookkeeping.
type InnerClassInfo struct {
	InnerClassIndex      uint16
	OuterClassIndex      uint16
	InnerNameIndex       uint16
	InnerClassAccessFlags uint16
}

// BootstrapMethod is one entry of the BootstrapMethods attribute (JVMS
// 4.7.23), consulted by invokedynamic resolution.
type BootstrapMethod struct {
	MethodRef          uint16
	BootstrapArguments []uint16
}

// FieldInfo represents one field_info structure (JVMS 4.5).
type FieldInfo struct {
	AccessFlags   uint16
	Name          string
	Descriptor    string
	Attributes    []AttributeInfo
	ConstantValue ConstantPoolEntry // non-nil iff a ConstantValue attribute was present
}

// MethodInfo represents one method_info structure (JVMS 4.6).
type MethodInfo struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Attributes  []AttributeInfo
	Code        *CodeAttribute
	Exceptions  []uint16 // checked-exception class constant-pool indices
}

// IsPolymorphicSignature reports whether this method is a polymorphic
// signature method per spec.md §3 (Method invariants): declared in
// MethodHandle or VarHandle, ACC_VARARGS|ACC_NATIVE, single Object[] param.
func (m *MethodInfo) IsPolymorphicSignature(ownerName string) bool {
	if ownerName != "java/lang/invoke/MethodHandle" && ownerName != "java/lang/invoke/VarHandle" {
		return false
	}
	const want = AccVarargs | AccNative
	if m.AccessFlags&want != want {
		return false
	}
	const param = "([Ljava/lang/Object;)"
	return len(m.Descriptor) > len(param) && m.Descriptor[:len(param)] == param
}

// AttributeInfo is a raw, unparsed attribute: name plus opaque payload.
type AttributeInfo struct {
	Name string
	Data []byte
}

// ExceptionHandler is one entry of a Code attribute's exception table
// (JVMS 4.7.3).
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16 // 0 means catch-all (e.g. finally)
}

// LineNumberEntry maps a bytecode offset to a source line.
type LineNumberEntry struct {
	StartPC uint16
	Line    uint16
}

// LocalVariableEntry describes one local-variable-table slot.
type LocalVariableEntry struct {
	StartPC    uint16
	Length     uint16
	Name       string
	Descriptor string
	Index      uint16
}

// CodeAttribute is the parsed Code attribute (JVMS 4.7.3).
type CodeAttribute struct {
	MaxStack          uint16
	MaxLocals         uint16
	Code              []byte
	ExceptionHandlers []ExceptionHandler
	LineNumbers       []LineNumberEntry
	LocalVariables    []LocalVariableEntry
	StackMapTable     []StackMapFrame
	RawAttributes     []AttributeInfo
}

// VerificationType tags one entry of a stack-map frame's locals/stack
// (JVMS 4.7.4).
type VerificationType struct {
	Tag              uint8
	CPoolOrOffset    uint16 // meaning depends on Tag: Object -> CP index, Uninitialized -> offset
}

// Verification type tags.
const (
	VerifTop = iota
	VerifInteger
	VerifFloat
	VerifDouble
	VerifLong
	VerifNull
	VerifUninitializedThis
	VerifObject
	VerifUninitialized
)

// StackMapFrame is one decoded entry of a method's StackMapTable,
// normalized to an explicit offset, full locals and full stack
// (parseStackMapTable expands append/chop/same frames against the running
// state while decoding).
type StackMapFrame struct {
	Offset int
	Locals []VerificationType
	Stack  []VerificationType
}
