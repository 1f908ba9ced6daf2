package compress

import (
	"math/rand"
	"testing"
)

func TestSnappyCompressor(t *testing.T) {
	testCompressor(t, NewSnappyCompressor())
}

func TestFlateCompressor(t *testing.T) {
	testCompressor(t, NewFlateCompressor())
}

func TestNewCompressor(t *testing.T) {
	if cr, err := NewCompressor("Snappy"); err != nil || cr.Name() != "snappy" {
		t.Errorf("snappy compressor: %v %v", cr, err)
	}
	if cr, err := NewCompressor("flate"); err != nil || cr.Name() != "flate" {
		t.Errorf("flate compressor: %v %v", cr, err)
	}
	if _, err := NewCompressor("lz4"); err == nil {
		t.Errorf("lz4 should not be supported")
	}
}

func TestCorruptData(t *testing.T) {
	if _, err := NewSnappyCompressor().Decompress([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01}, nil); err == nil {
		t.Errorf("snappy should fail on corrupt data")
	}
}

func testCompressor(t *testing.T, cr Compressor) {
	dataSize := 10 * 1024
	for i := 0; i < 10; i++ {
		b := make([]byte, dataSize)
		for j := 0; j < dataSize; j++ {
			b[j] = byte(97 + rand.Intn(10))
		}

		var c []byte
		var err error
		if c, err = cr.Compress(b, c); err != nil {
			t.Fatal(err)
		}

		t.Logf("%s: original size is %d, compressed size is %d (%d%%)", cr.Name(), len(b), len(c), len(c)*100/len(b))

		var rb []byte
		if rb, err = cr.Decompress(c, rb); err != nil {
			t.Fatal(err)
		}

		if len(rb) != len(b) {
			t.Errorf("original data size is %d, but restore data size is %d", len(b), len(rb))
		}

		if string(rb) != string(b) {
			t.Errorf("original data and restored data mismatch")
		}

		dataSize = dataSize * 2
	}
}
