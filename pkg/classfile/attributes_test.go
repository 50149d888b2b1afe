package classfile

import (
	"encoding/binary"
	"bytes"
	"testing"
)

func TestParseLineNumberTable(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(2))
	binary.Write(&buf, binary.BigEndian, uint16(0))
	binary.Write(&buf, binary.BigEndian, uint16(10))
	binary.Write(&buf, binary.BigEndian, uint16(4))
	binary.Write(&buf, binary.BigEndian, uint16(11))

	entries, err := parseLineNumberTable(buf.Bytes())
	if err != nil {
		t.Fatalf("parseLineNumberTable: %v", err)
	}
	if len(entries) != 2 || entries[0].Line != 10 || entries[1].StartPC != 4 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestParseStackMapTableSameFrame(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(1)) // number_of_entries
	buf.WriteByte(5)                                // same_frame, offset_delta=5

	frames, err := parseStackMapTable(buf.Bytes())
	if err != nil {
		t.Fatalf("parseStackMapTable: %v", err)
	}
	if len(frames) != 1 || frames[0].Offset != 5 {
		t.Fatalf("unexpected frames: %+v", frames)
	}
}

func TestParseStackMapTableAppendFrame(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(2))
	buf.WriteByte(10) // same_frame, delta 10 -> offset 10
	buf.WriteByte(252) // append_frame, 1 new local
	binary.Write(&buf, binary.BigEndian, uint16(3)) // offset_delta
	buf.WriteByte(VerifInteger)                     // new local: int

	frames, err := parseStackMapTable(buf.Bytes())
	if err != nil {
		t.Fatalf("parseStackMapTable: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	// second frame offset = prevOffset(10) + delta(3) + 1 = 14
	if frames[1].Offset != 14 {
		t.Errorf("second frame offset = %d, want 14", frames[1].Offset)
	}
	if len(frames[1].Locals) != 1 || frames[1].Locals[0].Tag != VerifInteger {
		t.Errorf("unexpected locals: %+v", frames[1].Locals)
	}
}

func TestCheckAttributeLocationRejectsMisplaced(t *testing.T) {
	if err := checkAttributeLocation("Code", locField); err == nil {
		t.Fatal("expected error placing Code attribute on a field")
	}
	if err := checkAttributeLocation("ConstantValue", locField); err != nil {
		t.Fatalf("ConstantValue should be valid on a field: %v", err)
	}
	if err := checkAttributeLocation("SomeVendorAttribute", locField); err != nil {
		t.Fatalf("unrecognized attributes should be accepted opaquely: %v", err)
	}
}
