// Package interpolation smooths remote entity motion by rendering slightly in the past.
package interpolation

import (
	"fmt"
	"time"

	"github.com/xiaonanln/worldsync/engine/common"
	"github.com/xiaonanln/worldsync/engine/consts"
	"github.com/xiaonanln/worldsync/engine/gwutils"
)

// Snapshot is one observation of a remote entity
type Snapshot struct {
	Timestamp int64 // ms
	Position  common.Vector3
	Rotation  common.Yaw
}

func (s Snapshot) String() string {
	return fmt.Sprintf("Snapshot<%d|%s|%.2f>", s.Timestamp, s.Position, s.Rotation)
}

// InterpolatedState is the state of an entity at the render time
type InterpolatedState struct {
	Position     common.Vector3
	Rotation     common.Yaw
	T            float64 // interpolation factor in [0, 1], 1 for fallback to latest
	Interpolated bool    // false if the latest snapshot was returned unmodified
}

// Interpolator keeps a small ring of snapshots per entity
type Interpolator struct {
	delay      int64
	bufferSize int
	buffers    map[common.EntityID][]Snapshot
}

// NewInterpolator creates an Interpolator, invalid values fall back to defaults
func NewInterpolator(delay time.Duration, bufferSize int) *Interpolator {
	if delay < 0 {
		delay = consts.INTERPOLATION_DELAY
	}
	if bufferSize < 2 {
		bufferSize = consts.SNAPSHOT_BUFFER_SIZE
	}
	return &Interpolator{
		delay:      int64(delay / time.Millisecond),
		bufferSize: bufferSize,
		buffers:    map[common.EntityID][]Snapshot{},
	}
}

// Delay returns the render delay
func (ip *Interpolator) Delay() time.Duration {
	return time.Duration(ip.delay) * time.Millisecond
}

// AddSnapshot pushes a snapshot, evicting the oldest beyond capacity.
// Snapshots older than the newest buffered one are dropped.
func (ip *Interpolator) AddSnapshot(id common.EntityID, snap Snapshot) {
	buf := ip.buffers[id]
	if n := len(buf); n > 0 && snap.Timestamp < buf[n-1].Timestamp {
		return
	}
	buf = append(buf, snap)
	if len(buf) > ip.bufferSize {
		copy(buf, buf[len(buf)-ip.bufferSize:])
		buf = buf[:ip.bufferSize]
	}
	ip.buffers[id] = buf
}

// GetInterpolatedState returns the state of the entity at now - delay.
//
// Without a bracketing pair of snapshots the latest snapshot is returned unmodified.
// Returns false if the entity has no snapshot.
func (ip *Interpolator) GetInterpolatedState(id common.EntityID, now int64) (InterpolatedState, bool) {
	buf := ip.buffers[id]
	if len(buf) == 0 {
		return InterpolatedState{}, false
	}

	target := now - ip.delay
	for i := 0; i+1 < len(buf); i++ {
		s1, s2 := buf[i], buf[i+1]
		if s1.Timestamp <= target && target <= s2.Timestamp {
			t := 1.0
			if span := s2.Timestamp - s1.Timestamp; span > 0 {
				t = gwutils.ClampFloat(float64(target-s1.Timestamp)/float64(span), 0, 1)
			}
			return InterpolatedState{
				Position:     s1.Position.Lerp(s2.Position, t),
				Rotation:     common.LerpYaw(s1.Rotation, s2.Rotation, t),
				T:            t,
				Interpolated: true,
			}, true
		}
	}

	latest := buf[len(buf)-1]
	return InterpolatedState{
		Position: latest.Position,
		Rotation: latest.Rotation,
		T:        1,
	}, true
}

// Latest returns the most recent snapshot of the entity
func (ip *Interpolator) Latest(id common.EntityID) (Snapshot, bool) {
	buf := ip.buffers[id]
	if len(buf) == 0 {
		return Snapshot{}, false
	}
	return buf[len(buf)-1], true
}

// Remove drops all snapshots of the entity
func (ip *Interpolator) Remove(id common.EntityID) {
	delete(ip.buffers, id)
}

// Len returns the number of buffered snapshots of the entity
func (ip *Interpolator) Len(id common.EntityID) int {
	return len(ip.buffers[id])
}

// Entities returns the number of entities with snapshots
func (ip *Interpolator) Entities() int {
	return len(ip.buffers)
}
