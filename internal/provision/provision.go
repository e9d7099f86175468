// Package provision scans a frozen bundle's own executable for an
// embedded provisioning header: a sentinel byte string followed by a
// JSON payload naming the manifest URL (and optionally an install
// directory) to use when none was supplied any other way.
package provision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/exp/mmap"
)

// Sentinel marks the start of the provisioning payload within the
// executable.
const Sentinel = "@@@CUPMANIFESTCFG@@@"

// windowSize is the chunk size read at a time while scanning for
// Sentinel. Windows overlap by len(Sentinel)-1 bytes so a sentinel
// split across a window boundary is never missed.
const windowSize = 1 << 20

// Payload is the JSON object immediately following Sentinel.
type Payload struct {
	URL        string `json:"url"`
	InstallDir string `json:"installdir"`
}

// Scan memory-maps path (the running executable) and searches it for
// Sentinel. Absence of the sentinel, or a payload that fails to decode
// or carries no URL, both return (nil, nil) — not an error — per spec;
// only an I/O failure opening or reading the file is a genuine error.
func Scan(path string) (*Payload, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("provision: opening %q: %w", path, err)
	}
	defer r.Close()

	size := r.Len()
	sentinel := []byte(Sentinel)
	overlap := len(sentinel) - 1
	stride := windowSize - overlap

	buf := make([]byte, windowSize)

	for offset := 0; offset < size; offset += stride {
		n, readErr := r.ReadAt(buf, int64(offset))
		if readErr != nil && readErr != io.EOF {
			return nil, fmt.Errorf("provision: reading %q at offset %d: %w", path, offset, readErr)
		}

		window := buf[:n]

		if idx := bytes.Index(window, sentinel); idx >= 0 {
			payloadStart := int64(offset + idx + len(sentinel))
			return decodePayload(r, payloadStart, int64(size)), nil
		}

		if offset+n >= size {
			break
		}
	}

	return nil, nil
}

// decodePayload reads one JSON value starting at start and returns it
// as a Payload, or nil if decoding fails or the payload has no URL.
func decodePayload(r io.ReaderAt, start, size int64) *Payload {
	if start >= size {
		return nil
	}

	sr := io.NewSectionReader(r, start, size-start)

	var p Payload
	if err := json.NewDecoder(sr).Decode(&p); err != nil {
		return nil
	}

	if p.URL == "" {
		return nil
	}

	return &p
}
