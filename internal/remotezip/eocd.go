package remotezip

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/HappyDOGE/cupdater/internal/httpx"
)

const (
	eocdSignature   = 0x06054b50
	eocdFixedLen    = 22
	eocdMaxComment  = 65535
	zip64Sentinel32 = 0xFFFFFFFF
)

// eocdRecord is the parsed end-of-central-directory record.
type eocdRecord struct {
	totalEntries uint16
	cdSize       uint32
	cdOffset     uint32
}

// fetchEOCD locates and parses the end-of-central-directory record. It
// fetches the last min(size, eocdFixedLen+eocdMaxComment) bytes of the
// archive via an absolute range and scans backward for the EOCD
// signature — a suffix Range is never used, per spec §4.2.
func fetchEOCD(ctx context.Context, client *httpx.Client, url string, size uint64, maxRetries int) (eocdRecord, error) {
	tailLen := uint64(eocdFixedLen + eocdMaxComment)
	if tailLen > size {
		tailLen = size
	}

	start := size - tailLen

	tail, err := fetchRange(ctx, client, url, start, size-1, maxRetries)
	if err != nil {
		return eocdRecord{}, err
	}

	idx := bytes.LastIndex(tail, le32Bytes(eocdSignature))
	if idx < 0 || idx+eocdFixedLen > len(tail) {
		return eocdRecord{}, fmt.Errorf("%w: end-of-central-directory record not found", ErrTruncated)
	}

	rec := tail[idx:]

	cdSize := binary.LittleEndian.Uint32(rec[12:16])
	cdOffset := binary.LittleEndian.Uint32(rec[16:20])
	totalEntries := binary.LittleEndian.Uint16(rec[10:12])

	if cdSize == zip64Sentinel32 || cdOffset == zip64Sentinel32 {
		return eocdRecord{}, fmt.Errorf("%w: zip64 archives are not supported", ErrUnsupportedMethod)
	}

	return eocdRecord{
		totalEntries: totalEntries,
		cdSize:       cdSize,
		cdOffset:     cdOffset,
	}, nil
}

// le32Bytes returns the little-endian 4-byte encoding of v.
func le32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)

	return b
}
