package perfmon

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/homepilot/control-plane/internal/clock"
)

// Gauges holds the host-level measurements sampled on a fixed interval:
// CPU utilization (delta between cumulative kernel counter samples, so the
// first sample after start reports 0) and heap usage from the Go runtime.
type Gauges struct {
	cpuPercent   atomic.Value // float64
	heapUsed     atomic.Uint64
	heapPercent  atomic.Value // float64
	mu           sync.Mutex
	prevCPUTimes []cpu.TimesStat
	haveSample   bool
	ticker       clock.Ticker
}

// NewGauges builds a Gauges with all values initialized to zero.
func NewGauges() *Gauges {
	g := &Gauges{}
	g.cpuPercent.Store(0.0)
	g.heapPercent.Store(0.0)
	return g
}

// CPUPercent returns the most recently sampled CPU utilization (0-100).
func (g *Gauges) CPUPercent() float64 { return g.cpuPercent.Load().(float64) }

// HeapUsedBytes returns the most recently sampled heap usage in bytes.
func (g *Gauges) HeapUsedBytes() uint64 { return g.heapUsed.Load() }

// HeapPercent returns heap-used as a percentage of heap-reserved (sys).
func (g *Gauges) HeapPercent() float64 { return g.heapPercent.Load().(float64) }

// sampleOnce takes one reading. The first call only establishes the
// baseline CPU counters and reports 0% CPU, per spec.md §4.6.
func (g *Gauges) sampleOnce() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	g.heapUsed.Store(mem.HeapAlloc)
	if mem.Sys > 0 {
		g.heapPercent.Store(float64(mem.HeapAlloc) / float64(mem.Sys) * 100)
	}

	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.haveSample {
		g.prevCPUTimes = times
		g.haveSample = true
		g.cpuPercent.Store(0.0)
		return
	}

	pct := cpuDeltaPercent(g.prevCPUTimes[0], times[0])
	g.prevCPUTimes = times
	g.cpuPercent.Store(pct)
}

// cpuDeltaPercent computes utilization from the delta between two cumulative
// kernel counter samples, the way spec.md §4.6 specifies.
func cpuDeltaPercent(prev, cur cpu.TimesStat) float64 {
	prevIdle := prev.Idle + prev.Iowait
	curIdle := cur.Idle + cur.Iowait

	prevTotal := prevIdle + prev.User + prev.System + prev.Nice + prev.Irq + prev.Softirq + prev.Steal
	curTotal := curIdle + cur.User + cur.System + cur.Nice + cur.Irq + cur.Softirq + cur.Steal

	totalDelta := curTotal - prevTotal
	idleDelta := curIdle - prevIdle

	if totalDelta <= 0 {
		return 0
	}
	busy := totalDelta - idleDelta
	pct := busy / totalDelta * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Start begins sampling on clk every interval until ctx is cancelled.
func (g *Gauges) Start(ctx context.Context, clk clock.Clock, interval time.Duration) {
	g.sampleOnce()
	g.ticker = clk.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				g.ticker.Stop()
				return
			case <-g.ticker.C():
				g.sampleOnce()
			}
		}
	}()
}

// Stop halts sampling, releasing the underlying ticker.
func (g *Gauges) Stop() {
	if g.ticker != nil {
		g.ticker.Stop()
	}
}
