package sharding

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/process"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/worldsync/engine/gwlog"
	"github.com/xiaonanln/worldsync/engine/gwutils"
)

// LoadSampler samples the CPU percent of the current process in the background
type LoadSampler struct {
	proc     *process.Process
	milliCPU xnsyncutil.AtomicInt // CPU percent * 1000
	running  xnsyncutil.AtomicBool
}

// NewLoadSampler creates a LoadSampler of the current process
func NewLoadSampler() (*LoadSampler, error) {
	pid := os.Getpid()
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, errors.Wrapf(err, "can not find process: pid = %v", pid)
	}
	return &LoadSampler{
		proc: p,
	}, nil
}

// Sample reads the CPU percent once
func (ls *LoadSampler) Sample(ctx context.Context) (float64, error) {
	pcnt, err := ls.proc.CPUPercentWithContext(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "get process cpu percent failed")
	}
	ls.milliCPU.Store(int(pcnt * 1000))
	return pcnt, nil
}

// CPUPercent returns the last sampled CPU percent
func (ls *LoadSampler) CPUPercent() float64 {
	return float64(ls.milliCPU.Load()) / 1000
}

// Start samples every interval until the context is done
func (ls *LoadSampler) Start(ctx context.Context, interval time.Duration) {
	if ls.running.Load() {
		return
	}
	ls.running.Store(true)
	go gwutils.RepeatUntilPanicless(func() {
		for {
			select {
			case <-ctx.Done():
				ls.running.Store(false)
				return
			case <-time.After(interval):
			}

			pcnt, err := ls.Sample(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				gwlog.Errorf("sharding: %s", err)
				continue
			}
			gwlog.Debugf("sharding: cpu percent is %.3f%%", pcnt)
		}
	})
}
