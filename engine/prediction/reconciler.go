// Package prediction applies local input optimistically and reconciles it against the server.
package prediction

import (
	"fmt"
	"math"

	"github.com/xiaonanln/worldsync/engine/common"
	"github.com/xiaonanln/worldsync/engine/consts"
	"github.com/xiaonanln/worldsync/engine/gwlog"
)

// State of a Reconciler
type State int

const (
	// Idle means no unacknowledged input
	Idle State = iota
	// Predicting means local input is applied ahead of the server
	Predicting
	// Reconciling means the local state is still converging to the server state
	Reconciling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Predicting:
		return "predicting"
	case Reconciling:
		return "reconciling"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// EntityState is position and rotation of the locally controlled entity
type EntityState struct {
	Seq       uint32         `msgpack:"seq" json:"seq"`
	Position  common.Vector3 `msgpack:"pos" json:"pos"`
	Rotation  common.Yaw     `msgpack:"rot" json:"rot"`
	Timestamp int64          `msgpack:"ts" json:"ts"`
}

func (s *EntityState) String() string {
	return fmt.Sprintf("EntityState<#%d|%s|%.2f>", s.Seq, s.Position, s.Rotation)
}

// Input is one local input: the target position and rotation of the entity
type Input struct {
	Seq       uint32
	Position  common.Vector3
	Rotation  common.Yaw
	Timestamp int64
}

// Config of a Reconciler
type Config struct {
	Tolerance     float64 // discrepancies up to Tolerance are blended by BlendFactor
	SnapThreshold float64 // discrepancies above SnapThreshold discard pending input and snap
	BlendFactor   float64
	HistorySize   int
}

// DefaultConfig returns the default reconciler config
func DefaultConfig() Config {
	return Config{
		Tolerance:     consts.PREDICTION_TOLERANCE,
		SnapThreshold: consts.PREDICTION_SNAP_THRESHOLD,
		BlendFactor:   consts.PREDICTION_BLEND_FACTOR,
		HistorySize:   consts.PREDICTION_HISTORY_SIZE,
	}
}

// Reconciler keeps the speculative and the confirmed state of one locally controlled entity
type Reconciler struct {
	cfg       Config
	state     State
	current   *EntityState // speculative
	confirmed *EntityState // last server state
	history   []EntityState
	nextSeq   uint32
	snaps     int
}

// NewReconciler creates a Reconciler, invalid config values are replaced by defaults
func NewReconciler(cfg Config) *Reconciler {
	def := DefaultConfig()
	if cfg.Tolerance < 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.SnapThreshold < cfg.Tolerance {
		cfg.SnapThreshold = cfg.Tolerance
	}
	if cfg.BlendFactor <= 0 || cfg.BlendFactor > 1 {
		cfg.BlendFactor = def.BlendFactor
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	return &Reconciler{
		cfg:     cfg,
		nextSeq: 1,
	}
}

func (r *Reconciler) String() string {
	return fmt.Sprintf("Reconciler<%s|pending=%d>", r.state, len(r.history))
}

// State returns the current state
func (r *Reconciler) State() State {
	return r.state
}

// PendingInputs returns the number of inputs not yet acknowledged by the server
func (r *Reconciler) PendingInputs() int {
	return len(r.history)
}

// Snaps returns how many times the reconciler snapped to the server state
func (r *Reconciler) Snaps() int {
	return r.snaps
}

// Predict applies the input to the local state immediately and returns the input sequence.
//
// Inputs with zero Seq are numbered by the reconciler.
func (r *Reconciler) Predict(input Input) uint32 {
	if !finite(input.Position) {
		gwlog.Warnf("%s: ignored input with invalid position %s", r, input.Position)
		return 0
	}
	if input.Seq == 0 {
		input.Seq = r.nextSeq
	}
	if input.Seq >= r.nextSeq {
		r.nextSeq = input.Seq + 1
	}

	st := EntityState{
		Seq:       input.Seq,
		Position:  input.Position,
		Rotation:  input.Rotation,
		Timestamp: input.Timestamp,
	}
	r.current = &st
	r.history = append(r.history, st)
	if len(r.history) > r.cfg.HistorySize {
		r.history = r.history[len(r.history)-r.cfg.HistorySize:]
	}
	r.state = Predicting
	return input.Seq
}

// Reconcile compares the server state with the prediction made for the same input sequence
// and corrects the local state. Returns the corrected local state.
func (r *Reconciler) Reconcile(server EntityState) *EntityState {
	if !finite(server.Position) {
		gwlog.Warnf("%s: ignored server state with invalid position %s", r, server.Position)
		return r.GetCurrentState()
	}
	confirmed := server
	r.confirmed = &confirmed

	if r.current == nil {
		st := server
		r.current = &st
		r.state = Idle
		return r.GetCurrentState()
	}

	r.state = Reconciling
	// compare against the newest prediction made at or before the acknowledged input
	predicted := *r.current
	found := false
	pending := r.history[:0]
	for _, h := range r.history {
		if h.Seq <= server.Seq {
			if !found || h.Seq >= predicted.Seq {
				predicted = h
				found = true
			}
		} else {
			pending = append(pending, h)
		}
	}
	if !found && len(pending) > 0 {
		// the acknowledged prediction was trimmed, pending input has no baseline to correct
		predicted = server
	}
	r.history = pending

	offset := server.Position.Sub(predicted.Position)
	discrepancy := float64(server.Position.DistanceTo(predicted.Position))

	if discrepancy > r.cfg.SnapThreshold {
		gwlog.Debugf("%s: discrepancy %.3f at #%d, snapping to %s", r, discrepancy, server.Seq, &server)
		st := server
		r.current = &st
		r.history = nil
		r.snaps += 1
		r.state = Idle
		return r.GetCurrentState()
	}

	if discrepancy > r.cfg.Tolerance {
		// replay pending input on top of the server state
		r.shift(offset)
		if len(r.history) == 0 {
			r.current.Rotation = server.Rotation
		}
	} else {
		r.shift(offset.Mul(common.Coord(r.cfg.BlendFactor)))
		if len(r.history) == 0 {
			r.current.Rotation = common.LerpYaw(r.current.Rotation, server.Rotation, r.cfg.BlendFactor)
		}
	}

	if len(r.history) > 0 {
		r.state = Predicting
	} else if r.current.Position.DistanceSqTo(server.Position) > 1e-6 || r.current.Rotation != server.Rotation {
		r.state = Reconciling
	} else {
		r.state = Idle
	}
	return r.GetCurrentState()
}

func (r *Reconciler) shift(offset common.Vector3) {
	r.current.Position = r.current.Position.Add(offset)
	for i := range r.history {
		r.history[i].Position = r.history[i].Position.Add(offset)
	}
}

// Rollback restores the last server confirmed state and drops all speculative history
func (r *Reconciler) Rollback() {
	r.history = nil
	r.state = Idle
	if r.confirmed == nil {
		r.current = nil
		return
	}
	st := *r.confirmed
	r.current = &st
}

// GetCurrentState returns a copy of the latest local state, or nil if nothing was predicted
func (r *Reconciler) GetCurrentState() *EntityState {
	if r.current == nil {
		return nil
	}
	st := *r.current
	return &st
}

// Confirmed returns a copy of the last server state, or nil
func (r *Reconciler) Confirmed() *EntityState {
	if r.confirmed == nil {
		return nil
	}
	st := *r.confirmed
	return &st
}

func finite(v common.Vector3) bool {
	for _, c := range [3]common.Coord{v.X, v.Y, v.Z} {
		f := float64(c)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
