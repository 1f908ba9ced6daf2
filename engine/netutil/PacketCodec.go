package netutil

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/xiaonanln/worldsync/engine/consts"
	"github.com/xiaonanln/worldsync/engine/netutil/compress"
	"github.com/xiaonanln/worldsync/engine/proto"
)

// Flag byte prefixing every encoded packet
const (
	packetFlagPlain  byte = 0
	packetFlagSnappy byte = 1
	packetFlagFlate  byte = 2
)

var (
	errEmptyPacket = errors.New("empty packet")
)

// PacketCodec encodes NetworkPackets for the wire.
//
// Payloads larger than the compress threshold are compressed. The first byte of an encoded
// packet tells whether and how the payload is compressed, so a decoder understands every format
// no matter how it is configured.
type PacketCodec struct {
	packer            MsgPacker
	compressor        compress.Compressor
	compressThreshold int

	decompressLock sync.Mutex
	decompressors  map[byte]compress.Compressor
}

// NewPacketCodec creates a PacketCodec, nil compressor disables compression
func NewPacketCodec(packer MsgPacker, compressor compress.Compressor) *PacketCodec {
	return &PacketCodec{
		packer:            packer,
		compressor:        compressor,
		compressThreshold: consts.PACKET_PAYLOAD_LEN_COMPRESS_THRESHOLD,
		decompressors:     map[byte]compress.Compressor{},
	}
}

// NewPacketCodecByName creates a PacketCodec from config names
func NewPacketCodecByName(codec string, compressEnabled bool, compressFormat string) (*PacketCodec, error) {
	packer, err := NewMsgPacker(codec)
	if err != nil {
		return nil, err
	}
	var compressor compress.Compressor
	if compressEnabled {
		if compressor, err = compress.NewCompressor(compressFormat); err != nil {
			return nil, err
		}
	}
	return NewPacketCodec(packer, compressor), nil
}

// Packer returns the MsgPacker of the codec
func (pc *PacketCodec) Packer() MsgPacker {
	return pc.packer
}

// SetCompressThreshold sets the minimal payload size to compress
func (pc *PacketCodec) SetCompressThreshold(threshold int) {
	pc.compressThreshold = threshold
}

func flagOf(compressor compress.Compressor) byte {
	switch compressor.Name() {
	case "snappy":
		return packetFlagSnappy
	case "flate":
		return packetFlagFlate
	}
	return packetFlagPlain
}

// EncodePacket packs and optionally compresses the packet.
//
// The codec must not be used for encoding from multiple goroutines at the same time.
func (pc *PacketCodec) EncodePacket(packet *proto.NetworkPacket) ([]byte, error) {
	payload, err := pc.packer.PackMsg(packet, make([]byte, 0, 256))
	if err != nil {
		return nil, errors.Wrap(err, "pack packet failed")
	}

	if pc.compressor != nil && len(payload) >= pc.compressThreshold {
		if flag := flagOf(pc.compressor); flag != packetFlagPlain {
			data, err := pc.compressor.Compress(payload, append(make([]byte, 0, len(payload)/2+1), flag))
			if err != nil {
				return nil, errors.Wrap(err, "compress packet failed")
			}
			if len(data) < len(payload)+1 {
				return data, nil
			}
		}
	}

	data := make([]byte, 0, len(payload)+1)
	data = append(data, packetFlagPlain)
	return append(data, payload...), nil
}

func (pc *PacketCodec) decompress(flag byte, payload []byte) ([]byte, error) {
	pc.decompressLock.Lock()
	defer pc.decompressLock.Unlock()

	cr := pc.decompressors[flag]
	if cr == nil {
		switch flag {
		case packetFlagSnappy:
			cr = compress.NewSnappyCompressor()
		case packetFlagFlate:
			cr = compress.NewFlateCompressor()
		default:
			return nil, errors.Errorf("unknown packet flag: %d", flag)
		}
		pc.decompressors[flag] = cr
	}
	return cr.Decompress(payload, nil)
}

// DecodePacket reverses EncodePacket
func (pc *PacketCodec) DecodePacket(data []byte) (*proto.NetworkPacket, error) {
	if len(data) == 0 {
		return nil, errEmptyPacket
	}

	flag, payload := data[0], data[1:]
	if flag != packetFlagPlain {
		var err error
		if payload, err = pc.decompress(flag, payload); err != nil {
			return nil, err
		}
	}

	packet := &proto.NetworkPacket{}
	if err := pc.packer.UnpackMsg(payload, packet); err != nil {
		return nil, errors.Wrap(err, "unpack packet failed")
	}
	return packet, nil
}

// DecodePayload converts the generically decoded data of a message into a typed payload
func (pc *PacketCodec) DecodePayload(data interface{}, out interface{}) error {
	buf, err := pc.packer.PackMsg(data, nil)
	if err != nil {
		return errors.Wrap(err, "repack payload failed")
	}
	if err = pc.packer.UnpackMsg(buf, out); err != nil {
		return errors.Wrapf(err, "unpack payload to %T failed", out)
	}
	return nil
}
