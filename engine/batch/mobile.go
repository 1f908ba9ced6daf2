package batch

import (
	"reflect"
	"time"

	"github.com/xiaonanln/worldsync/engine/proto"
	"github.com/xiaonanln/worldsync/engine/quality"
)

// MobileBatcher is a Batcher that adapts its flush interval to connection quality and
// optionally drops duplicated payloads
type MobileBatcher struct {
	*Batcher
	adaptive       bool
	dedup          bool
	connectionType string
	lastPayloads   map[proto.MsgType]interface{}
	deduped        int
}

// NewMobileBatcher creates a MobileBatcher
func NewMobileBatcher(maxBatchSize int, interval time.Duration, adaptive bool, dedup bool) *MobileBatcher {
	return &MobileBatcher{
		Batcher:      NewBatcher(maxBatchSize, interval),
		adaptive:     adaptive,
		dedup:        dedup,
		lastPayloads: map[proto.MsgType]interface{}{},
	}
}

// IntervalFor returns the flush interval for a connection tier and transport medium
func IntervalFor(tier quality.Tier, connectionType string) time.Duration {
	interval := time.Millisecond * 50
	switch tier {
	case quality.Poor:
		interval = time.Millisecond * 200
	case quality.Fair:
		interval = time.Millisecond * 100
	}

	var medium time.Duration
	switch connectionType {
	case quality.Conn2G, quality.ConnSlow2G:
		medium = time.Millisecond * 200
	case quality.Conn3G:
		medium = time.Millisecond * 100
	}
	if medium > interval {
		interval = medium
	}
	return interval
}

// SetConnectionType sets the transport medium of the client
func (mb *MobileBatcher) SetConnectionType(connectionType string) {
	mb.connectionType = connectionType
}

// Watch subscribes the batcher to quality evaluations of the monitor
func (mb *MobileBatcher) Watch(monitor *quality.Monitor) {
	monitor.OnQualityChange(mb.OnQualityChange)
}

// OnQualityChange adapts the flush interval to the evaluated quality
func (mb *MobileBatcher) OnQualityChange(q quality.ConnectionQuality) {
	if !mb.adaptive {
		return
	}
	connType := mb.connectionType
	if q.ConnectionType != "" {
		connType = q.ConnectionType
	}
	mb.SetInterval(IntervalFor(q.Quality, connType))
}

// transitions change what the client holds; an equal payload may repeat after another transition
var transitions = map[proto.MsgType]bool{
	proto.MT_ENTITY_ENTER:    true,
	proto.MT_ENTITY_LEAVE:    true,
	proto.MT_ENTITY_SNAPSHOT: true,
	proto.MT_ROOM_ASSIGNED:   true,
	proto.MT_DISCONNECT:      true,
}

// Add queues a message, dropping it if its payload equals the last queued payload of the same type.
// Critical messages and state transitions are always queued.
func (mb *MobileBatcher) Add(msg *proto.NetworkMessage, priority int) {
	if msg == nil {
		return
	}
	if mb.dedup && priority < proto.PriorityCritical && !transitions[msg.Type] {
		if last, ok := mb.lastPayloads[msg.Type]; ok && shallowEqual(last, msg.Data) {
			mb.deduped += 1
			return
		}
		mb.lastPayloads[msg.Type] = msg.Data
	}
	mb.Batcher.Add(msg, priority)
}

// Deduped returns the number of messages dropped as duplicates
func (mb *MobileBatcher) Deduped() int {
	return mb.deduped
}

// shallowEqual compares two payloads by their top level keys or fields.
// Nested maps and slices are equal only if they are the same instance.
func shallowEqual(a, b interface{}) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !va.IsValid() || !vb.IsValid() {
		return va.IsValid() == vb.IsValid()
	}
	if va.Type() != vb.Type() {
		return false
	}
	if va.Kind() == reflect.Ptr {
		if va.Pointer() == vb.Pointer() {
			return true
		}
		if va.IsNil() || vb.IsNil() {
			return false
		}
		va, vb = va.Elem(), vb.Elem()
	}

	switch va.Kind() {
	case reflect.Map:
		if va.Len() != vb.Len() {
			return false
		}
		iter := va.MapRange()
		for iter.Next() {
			ev := vb.MapIndex(iter.Key())
			if !ev.IsValid() || !sameValue(iter.Value(), ev) {
				return false
			}
		}
		return true
	case reflect.Struct:
		for i := 0; i < va.NumField(); i++ {
			if !sameValue(va.Field(i), vb.Field(i)) {
				return false
			}
		}
		return true
	default:
		return sameValue(va, vb)
	}
}

func sameValue(a, b reflect.Value) bool {
	if a.Kind() == reflect.Interface {
		if a.IsNil() || b.IsNil() {
			return a.IsNil() == b.IsNil()
		}
		a, b = a.Elem(), b.Elem()
	}
	if a.Type() != b.Type() {
		return false
	}
	switch a.Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		if a.Kind() == reflect.Slice && a.Len() != b.Len() {
			return false
		}
		return a.Pointer() == b.Pointer()
	case reflect.Bool:
		return a.Bool() == b.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.Int() == b.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return a.Uint() == b.Uint()
	case reflect.Float32, reflect.Float64:
		return a.Float() == b.Float()
	case reflect.String:
		return a.String() == b.String()
	}
	if a.Type().Comparable() && a.CanInterface() && b.CanInterface() {
		return a.Interface() == b.Interface()
	}
	return false
}
