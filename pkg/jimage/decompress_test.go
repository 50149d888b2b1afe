package jimage

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"testing"
)

func writeResourceHeader(buf *bytes.Buffer, size, uncompressedSize uint64, nameOffset uint32, terminal bool) {
	binary.Write(buf, binary.BigEndian, uint32(resourceHeaderMagic))
	binary.Write(buf, binary.BigEndian, size)
	binary.Write(buf, binary.BigEndian, uncompressedSize)
	binary.Write(buf, binary.BigEndian, nameOffset)
	binary.Write(buf, binary.BigEndian, uint32(0)) // config offset, unused by either decompressor
	if terminal {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func TestInflateNoHeaderPassesThrough(t *testing.T) {
	raw := []byte("not a chained resource")
	out, err := inflate(raw, nil)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	if !bytes.Equal(out, raw) {
		t.Errorf("inflate = %q, want passthrough %q", out, raw)
	}
}

func TestInflateZipLayer(t *testing.T) {
	var strs bytes.Buffer
	strs.WriteByte(0)
	zipOff := strs.Len()
	strs.WriteString("zip")
	strs.WriteByte(0)

	plain := []byte("hello jimage resource contents")
	var compressed bytes.Buffer
	w, _ := flate.NewWriter(&compressed, flate.BestCompression)
	w.Write(plain)
	w.Close()

	var data bytes.Buffer
	writeResourceHeader(&data, uint64(compressed.Len()), uint64(len(plain)), uint32(zipOff), true)
	data.Write(compressed.Bytes())

	out, err := inflate(data.Bytes(), strs.Bytes())
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	if !bytes.Equal(out, plain) {
		t.Errorf("inflate = %q, want %q", out, plain)
	}
}

func TestInflateUnknownDecompressorFails(t *testing.T) {
	var strs bytes.Buffer
	strs.WriteByte(0)
	off := strs.Len()
	strs.WriteString("mystery")
	strs.WriteByte(0)

	var data bytes.Buffer
	writeResourceHeader(&data, 4, 4, uint32(off), true)
	data.Write([]byte{1, 2, 3, 4})

	if _, err := inflate(data.Bytes(), strs.Bytes()); err == nil {
		t.Fatal("expected error for unknown decompressor name")
	}
}
