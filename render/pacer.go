package render

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultTargetTick is the tick length of a 60 Hz display.
const DefaultTargetTick = 16_666_667 * time.Nanosecond

// minSleep is the shortest wait the pacer hands out. Waiting primitives reject zero and negative
// deadlines.
const minSleep = time.Nanosecond

// Pacer holds a loop to a target tick length. Pacing is advisory: a tick that runs long is not
// made up for by shortening the next one.
type Pacer struct {
	target   time.Duration
	clock    clock.Clock
	overruns atomic.Uint64
}

// NewPacer returns a pacer for the given tick length. A non-positive target uses
// DefaultTargetTick and a nil clock uses the wall clock.
func NewPacer(target time.Duration, clk clock.Clock) *Pacer {
	if target <= 0 {
		target = DefaultTargetTick
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Pacer{target: target, clock: clk}
}

// Target returns the tick length.
func (p *Pacer) Target() time.Duration {
	return p.target
}

// SleepFor returns how long to wait after spending work in the current tick. It is never less
// than one nanosecond.
func (p *Pacer) SleepFor(work time.Duration) time.Duration {
	return max(minSleep, p.target-work)
}

// Wait sleeps for SleepFor(work) on the pacer's clock, returning early with ctx.Err() if ctx is
// done. A tick whose work exceeded the target is counted as an overrun.
func (p *Pacer) Wait(ctx context.Context, work time.Duration) error {
	if work > p.target {
		p.overruns.Add(1)
	}
	timer := p.clock.Timer(p.SleepFor(work))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Overruns returns how many ticks took longer than the target.
func (p *Pacer) Overruns() uint64 {
	return p.overruns.Load()
}
