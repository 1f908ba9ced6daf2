package compress

import (
	"bytes"
	"compress/flate"
	"io"
	"io/ioutil"

	"github.com/pkg/errors"
)

// NewFlateCompressor creates a compressor of deflate format.
//
// The compressor reuses its writer and reader, so it must not be shared between goroutines.
func NewFlateCompressor() Compressor {
	fc := &flateCompressor{
		reader: flate.NewReader(bytes.NewReader(nil)),
	}
	var err error
	fc.writer, err = flate.NewWriter(ioutil.Discard, flate.BestSpeed)
	if err != nil {
		panic(err)
	}
	return fc
}

type flateCompressor struct {
	writer *flate.Writer
	reader io.ReadCloser
}

func (fc *flateCompressor) Name() string {
	return "flate"
}

func (fc *flateCompressor) Compress(b []byte, c []byte) ([]byte, error) {
	wb := bytes.NewBuffer(c)
	fc.writer.Reset(wb)
	n, err := fc.writer.Write(b)
	if err != nil {
		return nil, errors.Wrap(err, "flate write failed")
	}
	if n != len(b) {
		return nil, errNotFullyCompressed
	}

	if err = fc.writer.Close(); err != nil {
		return nil, errors.Wrap(err, "flate close failed")
	}
	return wb.Bytes(), nil
}

func (fc *flateCompressor) Decompress(c []byte, b []byte) ([]byte, error) {
	if err := fc.reader.(flate.Resetter).Reset(bytes.NewReader(c), nil); err != nil {
		return b, errors.Wrap(err, "flate reset failed")
	}
	wb := bytes.NewBuffer(b)
	if _, err := io.Copy(wb, fc.reader); err != nil {
		return b, errors.Wrap(err, "flate read failed")
	}
	return wb.Bytes(), nil
}

var errNotFullyCompressed = errors.Errorf("not fully compressed")
