package classfile

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildMinimalClass assembles a minimal valid class file byte stream for a
// class named className with no fields and a single no-arg void method
// named methodName whose body is just `return` (0xB1). There is no javac
// available in this environment, so tests exercise the reader against
// hand-assembled byte streams rather than checked-in compiled fixtures.
func buildMinimalClass(t *testing.T, className, methodName string) []byte {
	t.Helper()
	var buf bytes.Buffer

	// Constant pool, 1-indexed:
	// 1: Utf8 className
	// 2: Class -> 1
	// 3: Utf8 "java/lang/Object"
	// 4: Class -> 3
	// 5: Utf8 methodName
	// 6: Utf8 "()V"
	// 7: Utf8 "Code"
	write := func(v interface{}) {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			t.Fatalf("writing: %v", err)
		}
	}
	writeUtf8 := func(s string) {
		write(uint8(TagUtf8))
		write(uint16(len(s)))
		buf.WriteString(s)
	}

	write(uint32(classMagic))
	write(uint16(0))  // minor
	write(uint16(61)) // major (Java 17)
	write(uint16(8))  // constant_pool_count = count+1

	writeUtf8(className)
	write(uint8(TagClass))
	write(uint16(1))
	writeUtf8("java/lang/Object")
	write(uint8(TagClass))
	write(uint16(3))
	writeUtf8(methodName)
	writeUtf8("()V")
	writeUtf8("Code")

	write(uint16(AccPublic | AccSuper)) // access_flags
	write(uint16(2))                    // this_class
	write(uint16(4))                    // super_class
	write(uint16(0))                    // interfaces_count
	write(uint16(0))                    // fields_count

	write(uint16(1)) // methods_count
	write(uint16(AccPublic | AccStatic))
	write(uint16(5)) // name_index -> methodName
	write(uint16(6)) // descriptor_index -> ()V
	write(uint16(1)) // attributes_count
	write(uint16(7)) // attribute_name_index -> "Code"

	code := []byte{0xB1} // return
	var codeBody bytes.Buffer
	binary.Write(&codeBody, binary.BigEndian, uint16(1)) // max_stack
	binary.Write(&codeBody, binary.BigEndian, uint16(1)) // max_locals
	binary.Write(&codeBody, binary.BigEndian, uint32(len(code)))
	codeBody.Write(code)
	binary.Write(&codeBody, binary.BigEndian, uint16(0)) // exception_table_length
	binary.Write(&codeBody, binary.BigEndian, uint16(0)) // attributes_count
	write(uint32(codeBody.Len()))
	buf.Write(codeBody.Bytes())

	write(uint16(0)) // class attributes_count

	return buf.Bytes()
}

func TestParseMinimalClass(t *testing.T) {
	data := buildMinimalClass(t, "Hello", "main")
	cf, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cf.MajorVersion != 61 {
		t.Errorf("MajorVersion = %d, want 61", cf.MajorVersion)
	}

	name, err := cf.ClassName()
	if err != nil {
		t.Fatalf("ClassName: %v", err)
	}
	if name != "Hello" {
		t.Errorf("ClassName = %q, want Hello", name)
	}
	if got := cf.SuperClassName(); got != "java/lang/Object" {
		t.Errorf("SuperClassName = %q, want java/lang/Object", got)
	}

	m := cf.FindMethod("main", "()V")
	if m == nil {
		t.Fatal("main()V not found")
	}
	if m.Code == nil {
		t.Fatal("main has no Code attribute")
	}
	if len(m.Code.Code) != 1 || m.Code.Code[0] != 0xB1 {
		t.Errorf("Code bytes = %v, want [0xB1]", m.Code.Code)
	}
}

func TestParseRoundTripIsStructurallyEqual(t *testing.T) {
	data := buildMinimalClass(t, "Hello", "main")
	cf1, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("first Parse: %v", err)
	}
	cf2, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("second Parse: %v", err)
	}
	n1, _ := cf1.ClassName()
	n2, _ := cf2.ClassName()
	if n1 != n2 {
		t.Errorf("round trip produced different class names: %q vs %q", n1, n2)
	}
	if len(cf1.Methods) != len(cf2.Methods) {
		t.Errorf("round trip produced different method counts: %d vs %d", len(cf1.Methods), len(cf2.Methods))
	}
}

func TestParseInvalidMagic(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
	if err == nil {
		t.Fatal("expected error for invalid magic number, got nil")
	}
}

func TestParseTruncatedInput(t *testing.T) {
	data := buildMinimalClass(t, "Hello", "main")
	_, err := Parse(bytes.NewReader(data[:len(data)-10]))
	if err == nil {
		t.Fatal("expected error for truncated input, got nil")
	}
}

func TestParseUnknownConstantTag(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(classMagic))
	binary.Write(&buf, binary.BigEndian, uint16(0))
	binary.Write(&buf, binary.BigEndian, uint16(61))
	binary.Write(&buf, binary.BigEndian, uint16(2)) // 1 entry
	buf.WriteByte(0xFF)                             // unknown tag
	_, err := Parse(&buf)
	if err == nil {
		t.Fatal("expected error for unknown constant pool tag, got nil")
	}
}

func TestParseRejectsFutureMajorVersion(t *testing.T) {
	data := buildMinimalClass(t, "Hello", "main")
	// Major version lives at byte offset 6-7.
	data[6] = 0xFF
	data[7] = 0xFF
	_, err := Parse(bytes.NewReader(data))
	if err == nil {
		t.Fatal("expected error for unsupported major version, got nil")
	}
}

func TestGetUtf8InvalidIndex(t *testing.T) {
	pool := []ConstantPoolEntry{nil, &ConstantUtf8{Value: "x"}}
	if _, err := GetUtf8(pool, 5); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}

func TestResolveFieldref(t *testing.T) {
	pool := []ConstantPoolEntry{
		nil,
		&ConstantUtf8{Value: "Foo"},             // 1
		&ConstantClass{NameIndex: 1},             // 2
		&ConstantUtf8{Value: "bar"},              // 3
		&ConstantUtf8{Value: "I"},                // 4
		&ConstantNameAndType{NameIndex: 3, DescriptorIndex: 4}, // 5
		&ConstantFieldref{ClassIndex: 2, NameAndTypeIndex: 5},  // 6
	}
	fr, err := ResolveFieldref(pool, 6)
	if err != nil {
		t.Fatalf("ResolveFieldref: %v", err)
	}
	if fr.ClassName != "Foo" || fr.FieldName != "bar" || fr.Descriptor != "I" {
		t.Errorf("ResolveFieldref = %+v, want {Foo bar I}", fr)
	}
}
