package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const classMagic = 0xCAFEBABE

// MaxSupportedMajorVersion is the highest class-file major version this
// reader accepts, corresponding to Java SE 23 (JVMS 4.1).
const MaxSupportedMajorVersion = 67 // Java SE 23

// ParseFile opens and parses a .class file from the given path.
func ParseFile(path string) (*ClassFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a .class file from r and returns its in-memory tree. Parse
// is a pure function of the bytes read: re-parsing identical input yields
// a structurally identical tree (spec.md §8, "Class-file round-trip").
func Parse(r io.Reader) (*ClassFile, error) {
	cf := &ClassFile{}

	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, fmt.Errorf("reading magic number: %w", err)
	}
	if magic != classMagic {
		return nil, fmt.Errorf("invalid magic number: 0x%X (expected 0xCAFEBABE)", magic)
	}

	if err := binary.Read(r, binary.BigEndian, &cf.MinorVersion); err != nil {
		return nil, fmt.Errorf("reading minor version: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.MajorVersion); err != nil {
		return nil, fmt.Errorf("reading major version: %w", err)
	}
	if cf.MajorVersion > MaxSupportedMajorVersion {
		return nil, fmt.Errorf("unsupported class file major version %d (max supported %d)", cf.MajorVersion, MaxSupportedMajorVersion)
	}

	var cpCount uint16
	if err := binary.Read(r, binary.BigEndian, &cpCount); err != nil {
		return nil, fmt.Errorf("reading constant pool count: %w", err)
	}
	pool, err := parseConstantPool(r, cpCount)
	if err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}
	cf.ConstantPool = pool

	if err := binary.Read(r, binary.BigEndian, &cf.AccessFlags); err != nil {
		return nil, fmt.Errorf("reading access flags: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.ThisClass); err != nil {
		return nil, fmt.Errorf("reading this_class: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.SuperClass); err != nil {
		return nil, fmt.Errorf("reading super_class: %w", err)
	}

	var interfacesCount uint16
	if err := binary.Read(r, binary.BigEndian, &interfacesCount); err != nil {
		return nil, fmt.Errorf("reading interfaces count: %w", err)
	}
	cf.Interfaces = make([]uint16, interfacesCount)
	for i := uint16(0); i < interfacesCount; i++ {
		if err := binary.Read(r, binary.BigEndian, &cf.Interfaces[i]); err != nil {
			return nil, fmt.Errorf("reading interface %d: %w", i, err)
		}
	}

	var fieldsCount uint16
	if err := binary.Read(r, binary.BigEndian, &fieldsCount); err != nil {
		return nil, fmt.Errorf("reading fields count: %w", err)
	}
	cf.Fields, err = parseFields(r, cf.ConstantPool, fieldsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing fields: %w", err)
	}

	var methodsCount uint16
	if err := binary.Read(r, binary.BigEndian, &methodsCount); err != nil {
		return nil, fmt.Errorf("reading methods count: %w", err)
	}
	cf.Methods, err = parseMethods(r, cf.ConstantPool, methodsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing methods: %w", err)
	}

	if err := cf.parseClassAttributes(r); err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}

	return cf, nil
}

func parseFields(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]FieldInfo, error) {
	fields := make([]FieldInfo, count)
	for i := uint16(0); i < count; i++ {
		var accessFlags, nameIndex, descIndex, attrCount uint16
		if err := binary.Read(r, binary.BigEndian, &accessFlags); err != nil {
			return nil, fmt.Errorf("reading field %d access flags: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, fmt.Errorf("reading field %d name index: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
			return nil, fmt.Errorf("reading field %d descriptor index: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &attrCount); err != nil {
			return nil, fmt.Errorf("reading field %d attributes count: %w", i, err)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving field %d name: %w", i, err)
		}
		desc, err := GetUtf8(pool, descIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving field %d descriptor: %w", i, err)
		}

		attrs, err := parseAttributeInfos(r, pool, attrCount, locField)
		if err != nil {
			return nil, fmt.Errorf("parsing field %d attributes: %w", i, err)
		}

		fi := FieldInfo{AccessFlags: accessFlags, Name: name, Descriptor: desc, Attributes: attrs}
		if cv := findAttribute(attrs, "ConstantValue"); cv != nil {
			if len(cv.Data) != 2 {
				return nil, fmt.Errorf("field %d ConstantValue attribute has bad length %d", i, len(cv.Data))
			}
			idx := binary.BigEndian.Uint16(cv.Data)
			if int(idx) >= len(pool) || pool[idx] == nil {
				return nil, fmt.Errorf("field %d ConstantValue index %d out of range", i, idx)
			}
			fi.ConstantValue = pool[idx]
		}
		fields[i] = fi
	}
	return fields, nil
}

func parseMethods(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]MethodInfo, error) {
	methods := make([]MethodInfo, count)
	for i := uint16(0); i < count; i++ {
		var accessFlags, nameIndex, descIndex, attrCount uint16
		if err := binary.Read(r, binary.BigEndian, &accessFlags); err != nil {
			return nil, fmt.Errorf("reading method %d access flags: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, fmt.Errorf("reading method %d name index: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
			return nil, fmt.Errorf("reading method %d descriptor index: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &attrCount); err != nil {
			return nil, fmt.Errorf("reading method %d attributes count: %w", i, err)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving method %d name: %w", i, err)
		}
		desc, err := GetUtf8(pool, descIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving method %d descriptor: %w", i, err)
		}

		attrs, err := parseAttributeInfos(r, pool, attrCount, locMethod)
		if err != nil {
			return nil, fmt.Errorf("parsing method %d attributes: %w", i, err)
		}

		m := MethodInfo{AccessFlags: accessFlags, Name: name, Descriptor: desc, Attributes: attrs}

		if codeAttr := findAttribute(attrs, "Code"); codeAttr != nil {
			code, err := parseCodeAttribute(codeAttr.Data, pool)
			if err != nil {
				return nil, fmt.Errorf("parsing Code attribute for method %s: %w", name, err)
			}
			m.Code = code
		}
		if excAttr := findAttribute(attrs, "Exceptions"); excAttr != nil {
			excs, err := parseU16List(excAttr.Data)
			if err != nil {
				return nil, fmt.Errorf("parsing Exceptions attribute for method %s: %w", name, err)
			}
			m.Exceptions = excs
		}

		methods[i] = m
	}
	return methods, nil
}

func (cf *ClassFile) parseClassAttributes(r io.Reader) error {
	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return err
	}
	for i := uint16(0); i < count; i++ {
		var nameIndex uint16
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return err
		}
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return err
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return err
		}
		name, err := GetUtf8(cf.ConstantPool, nameIndex)
		if err != nil {
			continue // unresolvable attribute name: skip rather than fail the whole parse
		}
		if err := checkAttributeLocation(name, locClassFile); err != nil {
			return err
		}

		switch name {
		case "BootstrapMethods":
			cf.BootstrapMethods, err = parseBootstrapMethods(data)
			if err != nil {
				return fmt.Errorf("parsing BootstrapMethods: %w", err)
			}
		case "SourceFile":
			if len(data) != 2 {
				return fmt.Errorf("SourceFile attribute has bad length %d", len(data))
			}
			cf.SourceFile, _ = GetUtf8(cf.ConstantPool, binary.BigEndian.Uint16(data))
		case "Signature":
			if len(data) != 2 {
				return fmt.Errorf("Signature attribute has bad length %d", len(data))
			}
			cf.Signature, _ = GetUtf8(cf.ConstantPool, binary.BigEndian.Uint16(data))
		case "NestHost":
			if len(data) != 2 {
				return fmt.Errorf("NestHost attribute has bad length %d", len(data))
			}
			cf.NestHostIndex = binary.BigEndian.Uint16(data)
		case "NestMembers":
			cf.NestMembers, err = parseU16List(data)
			if err != nil {
				return fmt.Errorf("parsing NestMembers: %w", err)
			}
		case "InnerClasses":
			cf.InnerClasses, err = parseInnerClasses(data)
			if err != nil {
				return fmt.Errorf("parsing InnerClasses: %w", err)
			}
		case "PermittedSubclasses":
			cf.PermittedSubclasses, err = parseU16List(data)
			if err != nil {
				return fmt.Errorf("parsing PermittedSubclasses: %w", err)
			}
		default:
			cf.RawAttributes = append(cf.RawAttributes, AttributeInfo{Name: name, Data: data})
		}
	}
	return nil
}

// NestHostName returns the class name named by this class's NestHost
// attribute, resolved through the class's own constant pool. The boolean
// is false when there is no NestHost attribute or its index does not
// resolve to a class name.
func (cf *ClassFile) NestHostName() (string, bool) {
	if cf.NestHostIndex == 0 {
		return "", false
	}
	name, err := GetClassName(cf.ConstantPool, cf.NestHostIndex)
	if err != nil {
		return "", false
	}
	return name, true
}
