package jimage

import "fmt"

// Location attribute tags, spec.md §4.3: each resource's location record
// is a sequence of (tag, value) pairs terminated by attrEnd.
const (
	attrEnd = iota
	attrModule
	attrParent
	attrBase
	attrExtension
	attrOffset
	attrCompressed
	attrUncompressed
)

// Location describes where one resource's bytes live inside the image
// and how they're packaged (spec.md §4.3: "Location" records).
// Compressed is 0 when the resource is stored uncompressed, matching
// the on-disk convention: a real compressed size is never actually zero.
type Location struct {
	Module       string
	Parent       string
	Base         string
	Extension    string
	Offset       uint64 // relative to the first byte of resource data
	Compressed   uint64
	Uncompressed uint64
}

// FullName reconstructs the resource's full path, e.g.
// "/java.base/java/lang/Object.class".
func (l Location) FullName() string {
	name := l.Base
	if l.Extension != "" {
		name = name + "." + l.Extension
	}
	return joinNonEmpty(l.Module, joinPath(l.Parent, name))
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// decodeLocation decodes the tag-length-value attribute stream starting
// at byte offset off within locs, resolving string-valued attributes
// against the strings blob.
func decodeLocation(locs []byte, off uint32, strs []byte) (Location, error) {
	var loc Location
	i := int(off)
	for {
		if i >= len(locs) {
			return Location{}, fmt.Errorf("location attribute stream truncated")
		}
		header := locs[i]
		i++
		tag := header >> 3
		lenBytes := int(header&0x7) + 1
		if tag == attrEnd {
			return loc, nil
		}
		if i+lenBytes > len(locs) {
			return Location{}, fmt.Errorf("location attribute value truncated")
		}
		var value uint64
		for _, b := range locs[i : i+lenBytes] {
			value = (value << 8) | uint64(b)
		}
		i += lenBytes

		switch tag {
		case attrModule:
			loc.Module = stringAt(strs, uint32(value))
		case attrParent:
			loc.Parent = stringAt(strs, uint32(value))
		case attrBase:
			loc.Base = stringAt(strs, uint32(value))
		case attrExtension:
			loc.Extension = stringAt(strs, uint32(value))
		case attrOffset:
			loc.Offset = value
		case attrCompressed:
			loc.Compressed = value
		case attrUncompressed:
			loc.Uncompressed = value
		default:
			// Unknown attribute tag: images evolve; ignore what we don't know.
		}
	}
}
