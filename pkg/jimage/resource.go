package jimage

import (
	"fmt"
	"os"
)

func openFile(path string) (*os.File, error) {
	return os.Open(path)
}

// ReadResource returns the fully decompressed bytes of the resource at
// path (e.g. "/java.base/java/lang/Object.class"). Resources are stored
// compressed with zero or more chained decompressors; for now the image
// format this reader targets applies at most "compact-cp" then "zip", in
// that order, matching how the image-packaging tool lays them out.
func (img *Image) ReadResource(path string) ([]byte, error) {
	loc, ok := img.Find(path)
	if !ok {
		return nil, fmt.Errorf("jimage: resource not found: %s", path)
	}

	// Location offsets are relative to the first byte of resource data,
	// which begins right after the index (header, tables, locations and
	// strings blobs).
	start := uint64(img.dataStart) + loc.Offset
	size := loc.Compressed
	if size == 0 {
		size = loc.Uncompressed
	}
	end := start + size
	if end > uint64(len(img.region)) {
		return nil, fmt.Errorf("jimage: resource %s extends past end of image", path)
	}
	raw := img.region[start:end]

	if loc.Compressed == 0 {
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	}

	out, err := inflate(raw, img.strings)
	if err != nil {
		return nil, fmt.Errorf("jimage: decompressing resource %s: %w", path, err)
	}
	if uint64(len(out)) != loc.Uncompressed {
		return nil, fmt.Errorf("jimage: resource %s decompressed to %d bytes, location declared %d", path, len(out), loc.Uncompressed)
	}
	return out, nil
}
