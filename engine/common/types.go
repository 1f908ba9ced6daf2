package common

import (
	"strings"

	"github.com/google/uuid"
)

// EntityID type
type EntityID string

// IsNil returns if EntityID is nil
func (id EntityID) IsNil() bool {
	return id == ""
}

// ClientID type
type ClientID string

// GenClientID generates a new Client ID
func GenClientID() ClientID {
	return ClientID(genID())
}

// IsNil returns if ClientID is nil
func (id ClientID) IsNil() bool {
	return id == ""
}

// RoomID identifies one room shard
type RoomID string

// GenRoomID generates a new room ID
func GenRoomID() RoomID {
	return RoomID(genID())
}

// IsNil returns if RoomID is nil
func (id RoomID) IsNil() bool {
	return id == ""
}

func genID() string {
	return strings.Replace(uuid.NewString(), "-", "", -1)
}
