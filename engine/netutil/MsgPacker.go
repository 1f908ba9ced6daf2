package netutil

import (
	"strings"

	"github.com/pkg/errors"
)

// MsgPacker is used to packs and unpacks messages
type MsgPacker interface {
	PackMsg(msg interface{}, buf []byte) ([]byte, error)
	UnpackMsg(data []byte, msg interface{}) error
}

// NewMsgPacker creates the packer of the codec name (msgpack or json)
func NewMsgPacker(codec string) (MsgPacker, error) {
	switch strings.ToLower(codec) {
	case "msgpack", "":
		return MessagePackMsgPacker{}, nil
	case "json":
		return JSONMsgPacker{}, nil
	}
	return nil, errors.Errorf("unknown codec: %s", codec)
}
