package remotezip

import (
	"encoding/binary"
	"fmt"
)

const (
	localHeaderSignature = 0x04034b50
	localHeaderFixedLen  = 30
)

// sliceLocalFileData parses the local file header at the start of data
// (fetched starting at entry.localHeaderOffset) to find where the
// compressed payload begins, then slices out exactly
// entry.CompressedSize bytes. The local header's own filename/extra
// field lengths are used rather than the central directory's, since
// zip writers are not required to keep them identical.
func sliceLocalFileData(data []byte, entry Entry) ([]byte, error) {
	if len(data) < localHeaderFixedLen {
		return nil, fmt.Errorf("%w: local file header for %q truncated", ErrTruncated, entry.Name)
	}

	sig := binary.LittleEndian.Uint32(data[0:4])
	if sig != localHeaderSignature {
		return nil, fmt.Errorf("%w: bad local file header signature for %q", ErrTruncated, entry.Name)
	}

	nameLen := int(binary.LittleEndian.Uint16(data[26:28]))
	extraLen := int(binary.LittleEndian.Uint16(data[28:30]))

	dataStart := localHeaderFixedLen + nameLen + extraLen
	dataEnd := dataStart + int(entry.CompressedSize)

	if dataEnd > len(data) {
		return nil, fmt.Errorf(
			"%w: fetched range too short for %q (have %d bytes, need %d)",
			ErrTruncated, entry.Name, len(data), dataEnd,
		)
	}

	return data[dataStart:dataEnd], nil
}
