package jimage

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// buildMinimalImage assembles a one-resource JImage byte stream in memory
// and writes it to a temp file, returning its path. There's no real jlink
// available in this environment, so the reader is exercised against a
// hand-assembled image rather than a checked-in fixture, matching how the
// classfile package tests its parser.
func buildMinimalImage(t *testing.T, resourcePath string, payload []byte) string {
	t.Helper()

	module, parent, base, ext := "java.base", "java/lang", "Object", "class"
	_ = resourcePath // constructed to match module/parent/base/ext below

	var strs bytes.Buffer
	strs.WriteByte(0) // offset 0 reserved
	moduleOff := strs.Len()
	strs.WriteString(module)
	strs.WriteByte(0)
	parentOff := strs.Len()
	strs.WriteString(parent)
	strs.WriteByte(0)
	baseOff := strs.Len()
	strs.WriteString(base)
	strs.WriteByte(0)
	extOff := strs.Len()
	strs.WriteString(ext)
	strs.WriteByte(0)

	writeAttr := func(buf *bytes.Buffer, tag int, value uint64) {
		// smallest encoding that fits value in 1..8 bytes
		n := 1
		for v := value; v >= 256 && n < 8; v >>= 8 {
			n++
		}
		buf.WriteByte(byte(tag<<3 | (n - 1)))
		for i := n - 1; i >= 0; i-- {
			buf.WriteByte(byte(value >> (8 * i)))
		}
	}

	var locs bytes.Buffer
	locOffset := locs.Len()
	writeAttr(&locs, attrModule, uint64(moduleOff))
	writeAttr(&locs, attrParent, uint64(parentOff))
	writeAttr(&locs, attrBase, uint64(baseOff))
	writeAttr(&locs, attrExtension, uint64(extOff))
	// attrOffset omitted: this resource sits at offset 0 within the
	// resource-data region, and 0 is the implicit default for an
	// attribute never written to the stream.
	writeAttr(&locs, attrUncompressed, uint64(len(payload)))
	locs.WriteByte(0) // attrEnd

	const tableLength = 1
	fullPath := "/" + module + "/" + parent + "/" + base + "." + ext
	slot := int32(0) // only one slot: mod(hash, 1) == 0 always

	var out bytes.Buffer
	binary.Write(&out, binary.BigEndian, uint32(magic))
	binary.Write(&out, binary.BigEndian, uint32(0)) // version
	binary.Write(&out, binary.BigEndian, uint32(0)) // flags
	binary.Write(&out, binary.BigEndian, uint32(1)) // resource count
	binary.Write(&out, binary.BigEndian, uint32(tableLength))
	binary.Write(&out, binary.BigEndian, uint32(locs.Len()))
	binary.Write(&out, binary.BigEndian, uint32(strs.Len()))

	binary.Write(&out, binary.BigEndian, int32(-1-slot)) // redirects[0]: direct hit at index 0
	binary.Write(&out, binary.BigEndian, uint32(locOffset))
	out.Write(locs.Bytes())
	out.Write(strs.Bytes())
	out.Write(payload)

	dir := t.TempDir()
	path := filepath.Join(dir, "modules")
	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		t.Fatalf("writing image fixture: %v", err)
	}
	if fullPath != "/java.base/java/lang/Object.class" {
		t.Fatalf("test setup error: unexpected fullPath %q", fullPath)
	}
	return path
}

func TestOpenAndFindResource(t *testing.T) {
	payload := []byte("cafebabe-fake-class-bytes")
	path := buildMinimalImage(t, "/java.base/java/lang/Object.class", payload)

	img, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	if img.ResourceCount() != 1 {
		t.Errorf("ResourceCount = %d, want 1", img.ResourceCount())
	}

	loc, ok := img.Find("/java.base/java/lang/Object.class")
	if !ok {
		t.Fatal("Find: resource not located")
	}
	if loc.Module != "java.base" || loc.Base != "Object" || loc.Extension != "class" {
		t.Errorf("unexpected location: %+v", loc)
	}

	data, err := img.ReadResource("/java.base/java/lang/Object.class")
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("ReadResource = %q, want %q", data, payload)
	}
}

func TestFindMissingResource(t *testing.T) {
	path := buildMinimalImage(t, "/java.base/java/lang/Object.class", []byte("x"))
	img, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	if _, ok := img.Find("/java.base/java/lang/String.class"); ok {
		t.Fatal("Find unexpectedly located a resource that was never stored")
	}
}

func TestHashPathDeterministic(t *testing.T) {
	a := hashPath("/java.base/java/lang/Object.class", 0)
	b := hashPath("/java.base/java/lang/Object.class", 0)
	if a != b {
		t.Fatalf("hashPath not deterministic: %d != %d", a, b)
	}
	if c := hashPath("/java.base/java/lang/String.class", 0); c == a {
		t.Fatalf("hashPath collided for distinct paths (unlikely but not impossible): %d", c)
	}
}
