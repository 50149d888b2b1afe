package jimage

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
)

// resourceHeaderMagic marks a chained-decompressor header prefixed onto
// a resource's compressed bytes. A resource may have been transformed by
// a stack of decompressors at image-build time; each layer is unwound by
// reading one of these headers, running the named decompressor over the
// bytes it describes, and repeating until a layer reports itself
// terminal or no further header is present.
const resourceHeaderMagic = 0xCAFEFAFA

const resourceHeaderSize = 4 + 8 + 8 + 4 + 4 + 1

type resourceHeader struct {
	size               uint64
	uncompressedSize   uint64
	decompressorName   uint32
	decompressorConfig uint32
	isTerminal         bool
}

// decompressor reverses one stage of a resource's compression chain.
type decompressor interface {
	decompress(data []byte, hdr resourceHeader, strs []byte) ([]byte, error)
}

var decompressors = map[string]decompressor{
	"zip":        zipDecompressor{},
	"compact-cp": compactCPDecompressor{},
}

// zipDecompressor reverses ordinary raw-deflate compression.
type zipDecompressor struct{}

func (zipDecompressor) decompress(data []byte, _ resourceHeader, _ []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("zip decompress: %w", err)
	}
	return out, nil
}

// compactCPDecompressor reverses "compact constant pool" compression: a
// resource's class-file constant pool had UTF-8 entries replaced with
// references into the shared image-wide strings table, saving the space
// that would otherwise be duplicated across every class naming the same
// common strings.
//
// Encoding: a count of substitutions, then that many (constant-pool
// index, string-table offset) pairs, then the remainder of the resource,
// in which every referenced entry is still present as a Utf8 entry.
// Re-inflating walks the resource's own constant pool and replaces each
// referenced Utf8 entry's bytes with the string from the shared strings
// table.
type compactCPDecompressor struct{}

func (compactCPDecompressor) decompress(data []byte, _ resourceHeader, strs []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("compact-cp: truncated header")
	}
	count := binary.BigEndian.Uint16(data)
	pos := 2

	type patch struct {
		cpIndex    uint16
		strsOffset uint32
	}
	patches := make([]patch, count)
	for i := range patches {
		if pos+6 > len(data) {
			return nil, fmt.Errorf("compact-cp: truncated patch table")
		}
		patches[i].cpIndex = binary.BigEndian.Uint16(data[pos:])
		patches[i].strsOffset = binary.BigEndian.Uint32(data[pos+2:])
		pos += 6
	}

	body := append([]byte(nil), data[pos:]...)
	if len(body) < 10 {
		return nil, fmt.Errorf("compact-cp: body too short to hold a class header")
	}

	// Constant pool entries start at byte 10 (magic, minor, major, cp_count).
	cpCount := binary.BigEndian.Uint16(body[8:10])
	cursor := 10
	cpOffsets := make([]int, cpCount)
	for idx := uint16(1); idx < cpCount && cursor < len(body); idx++ {
		cpOffsets[idx] = cursor
		tag := body[cursor]
		switch tag {
		case 1: // Utf8: 1 tag + 2 length + N bytes
			if cursor+3 > len(body) {
				return nil, fmt.Errorf("compact-cp: truncated Utf8 entry")
			}
			length := binary.BigEndian.Uint16(body[cursor+1:])
			cursor += 3 + int(length)
		case 7, 8, 16, 19, 20: // Class, String, MethodType, Module, Package
			cursor += 3
		case 15: // MethodHandle
			cursor += 4
		case 3, 4, 9, 10, 11, 12, 17, 18: // 4-byte or 2x2-byte entries
			cursor += 5
		case 5, 6: // Long, Double: occupy two pool slots
			cursor += 9
			idx++
		default:
			return nil, fmt.Errorf("compact-cp: unknown constant pool tag %d while re-inflating", tag)
		}
	}

	for _, p := range patches {
		if int(p.cpIndex) >= len(cpOffsets) {
			return nil, fmt.Errorf("compact-cp: patch index %d out of range", p.cpIndex)
		}
		off := cpOffsets[p.cpIndex]
		if off == 0 || body[off] != 1 {
			return nil, fmt.Errorf("compact-cp: patch target %d is not a Utf8 entry", p.cpIndex)
		}
		s := stringAt(strs, p.strsOffset)
		replacement := make([]byte, 3+len(s))
		replacement[0] = 1
		binary.BigEndian.PutUint16(replacement[1:], uint16(len(s)))
		copy(replacement[3:], s)

		oldLen := binary.BigEndian.Uint16(body[off+1:]) + 3
		rest := append([]byte(nil), body[off+int(oldLen):]...)
		body = append(body[:off], append(replacement, rest...)...)
		delta := len(replacement) - int(oldLen)
		for j := range cpOffsets {
			if cpOffsets[j] > off {
				cpOffsets[j] += delta
			}
		}
	}

	return body, nil
}

// inflate reverses the full decompressor stack applied to a resource's
// stored bytes, following the chained-header protocol: read a header,
// run its named decompressor, and loop on the result until a header says
// isTerminal or no further header magic is found.
func inflate(data []byte, strs []byte) ([]byte, error) {
	for {
		if len(data) < resourceHeaderSize || binary.BigEndian.Uint32(data) != resourceHeaderMagic {
			return data, nil
		}
		hdr := resourceHeader{
			size:               binary.BigEndian.Uint64(data[4:12]),
			uncompressedSize:   binary.BigEndian.Uint64(data[12:20]),
			decompressorName:   binary.BigEndian.Uint32(data[20:24]),
			decompressorConfig: binary.BigEndian.Uint32(data[24:28]),
			isTerminal:         data[28] != 0,
		}
		_ = hdr.decompressorConfig
		name := stringAt(strs, hdr.decompressorName)
		d, ok := decompressors[name]
		if !ok {
			return nil, fmt.Errorf("unknown decompressor %q", name)
		}

		body := data[resourceHeaderSize:]
		if uint64(len(body)) < hdr.size {
			return nil, fmt.Errorf("resource body shorter than header declares: have %d, want %d", len(body), hdr.size)
		}
		body = body[:hdr.size]

		out, err := d.decompress(body, hdr, strs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if uint64(len(out)) != hdr.uncompressedSize {
			return nil, fmt.Errorf("%s: produced %d bytes, header declared %d", name, len(out), hdr.uncompressedSize)
		}

		if hdr.isTerminal {
			return out, nil
		}
		data = out
	}
}
