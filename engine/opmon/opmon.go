// Package opmon records durations of named operations and dumps them periodically.
package opmon

import (
	"sort"
	"sync"
	"time"

	"github.com/xiaonanln/worldsync/engine/gwlog"
)

var (
	operationAllocPool = sync.Pool{
		New: func() interface{} {
			return &Operation{}
		},
	}

	monitor  = newMonitor()
	dumpOnce sync.Once
)

type _OpInfo struct {
	count         uint64
	totalDuration time.Duration
	maxDuration   time.Duration
}

// OpStat is the statistics of one operation since last dump
type OpStat struct {
	Name  string        `json:"name"`
	Count uint64        `json:"count"`
	Avg   time.Duration `json:"avg"`
	Max   time.Duration `json:"max"`
}

type _Monitor struct {
	sync.Mutex
	opInfos map[string]*_OpInfo
}

func newMonitor() *_Monitor {
	m := &_Monitor{
		opInfos: map[string]*_OpInfo{},
	}
	return m
}

func (monitor *_Monitor) record(opname string, duration time.Duration) {
	monitor.Lock()
	info := monitor.opInfos[opname]
	if info == nil {
		info = &_OpInfo{}
		monitor.opInfos[opname] = info
	}
	info.count += 1
	info.totalDuration += duration
	if duration > info.maxDuration {
		info.maxDuration = duration
	}
	monitor.Unlock()
}

func (monitor *_Monitor) stats(reset bool) []OpStat {
	monitor.Lock()
	opInfos := monitor.opInfos
	if reset {
		monitor.opInfos = map[string]*_OpInfo{} // clear to be empty
	}
	stats := make([]OpStat, 0, len(opInfos))
	for name, opinfo := range opInfos {
		stats = append(stats, OpStat{
			Name:  name,
			Count: opinfo.count,
			Avg:   opinfo.totalDuration / time.Duration(opinfo.count),
			Max:   opinfo.maxDuration,
		})
	}
	monitor.Unlock()

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Name < stats[j].Name
	})
	return stats
}

// Snapshot returns the statistics of all operations since last dump
func Snapshot() []OpStat {
	return monitor.stats(false)
}

// Dump logs the statistics of all operations and resets them
func Dump() {
	for _, st := range monitor.stats(true) {
		gwlog.Infof("opmon: %-30sx%-10d AVG %-10s MAX %-10s", st.Name, st.Count, st.Avg, st.Max)
	}
}

// StartDumping dumps operation statistics every interval in a background goroutine
func StartDumping(interval time.Duration) {
	if interval <= 0 {
		return
	}
	dumpOnce.Do(func() {
		go func() {
			for {
				time.Sleep(interval)
				Dump()
			}
		}()
	})
}

// Operation is the type of operation to be monitored
type Operation struct {
	name      string
	startTime time.Time
}

// StartOperation creates a new operation
func StartOperation(operationName string) *Operation {
	op := operationAllocPool.Get().(*Operation)
	op.name = operationName
	op.startTime = time.Now()
	return op
}

// Finish finishes the operation and records the duration of operation
func (op *Operation) Finish(warnThreshold time.Duration) {
	takeTime := time.Now().Sub(op.startTime)
	monitor.record(op.name, takeTime)
	if takeTime >= warnThreshold {
		gwlog.Warnf("opmon: operation %s takes %s > %s", op.name, takeTime, warnThreshold)
	}
	operationAllocPool.Put(op)
}
