// Package compress provides the payload compressors used by the packet codec.
package compress

import (
	"strings"

	"github.com/pkg/errors"
)

// Compressor compresses and decompresses whole payloads
type Compressor interface {
	// Name of the format
	Name() string
	// Compress appends compressed b to c
	Compress(b []byte, c []byte) ([]byte, error)
	// Decompress appends decompressed c to b
	Decompress(c []byte, b []byte) ([]byte, error)
}

// NewCompressor creates a compressor of the format
func NewCompressor(compressFormat string) (Compressor, error) {
	compressFormat = strings.ToLower(compressFormat)
	if compressFormat == "snappy" {
		return NewSnappyCompressor(), nil
	} else if compressFormat == "flate" {
		return NewFlateCompressor(), nil
	} else {
		return nil, errors.Errorf("unknown compress format: %s", compressFormat)
	}
}
