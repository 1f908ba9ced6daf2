package compress

import (
	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// NewSnappyCompressor creates a compressor of snappy block format
func NewSnappyCompressor() Compressor {
	return snappyCompressor{}
}

type snappyCompressor struct{}

func (sc snappyCompressor) Name() string {
	return "snappy"
}

func (sc snappyCompressor) Compress(b []byte, c []byte) ([]byte, error) {
	encoded := snappy.Encode(nil, b)
	return append(c, encoded...), nil
}

func (sc snappyCompressor) Decompress(c []byte, b []byte) ([]byte, error) {
	decoded, err := snappy.Decode(nil, c)
	if err != nil {
		return b, errors.Wrap(err, "snappy decode failed")
	}
	return append(b, decoded...), nil
}
