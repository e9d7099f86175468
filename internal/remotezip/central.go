package remotezip

import (
	"encoding/binary"
	"fmt"
)

const (
	centralHeaderSignature = 0x02014b50
	centralHeaderFixedLen  = 46
)

// parseCentralDirectory decodes want entries from the central directory
// bytes cd, in on-disk order.
func parseCentralDirectory(cd []byte, want uint16) ([]Entry, error) {
	entries := make([]Entry, 0, want)

	pos := 0
	for i := uint16(0); i < want; i++ {
		if pos+centralHeaderFixedLen > len(cd) {
			return nil, fmt.Errorf("%w: central directory entry %d truncated", ErrTruncated, i)
		}

		sig := binary.LittleEndian.Uint32(cd[pos : pos+4])
		if sig != centralHeaderSignature {
			return nil, fmt.Errorf("%w: bad central directory signature at entry %d", ErrTruncated, i)
		}

		method := binary.LittleEndian.Uint16(cd[pos+10 : pos+12])
		crc := binary.LittleEndian.Uint32(cd[pos+16 : pos+20])
		compSize := binary.LittleEndian.Uint32(cd[pos+20 : pos+24])
		uncompSize := binary.LittleEndian.Uint32(cd[pos+24 : pos+28])
		nameLen := int(binary.LittleEndian.Uint16(cd[pos+28 : pos+30]))
		extraLen := int(binary.LittleEndian.Uint16(cd[pos+30 : pos+32]))
		commentLen := int(binary.LittleEndian.Uint16(cd[pos+32 : pos+34]))
		localOffset := binary.LittleEndian.Uint32(cd[pos+42 : pos+46])

		if compSize == zip64Sentinel32 || uncompSize == zip64Sentinel32 || localOffset == zip64Sentinel32 {
			return nil, fmt.Errorf("%w: zip64 archives are not supported", ErrUnsupportedMethod)
		}

		nameStart := pos + centralHeaderFixedLen
		nameEnd := nameStart + nameLen

		if nameEnd > len(cd) {
			return nil, fmt.Errorf("%w: central directory entry %d name truncated", ErrTruncated, i)
		}

		name := string(cd[nameStart:nameEnd])

		entries = append(entries, Entry{
			Name:              name,
			CRC32:             crc,
			CompressedSize:    uint64(compSize),
			UncompressedSize:  uint64(uncompSize),
			Method:            method,
			localHeaderOffset: uint64(localOffset),
		})

		pos = nameEnd + extraLen + commentLen
	}

	return entries, nil
}
