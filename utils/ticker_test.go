package utils

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/augment/logging"
)

func TestSlowLogger(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	clk := clock.NewMock()
	stop := slowLogger(context.Background(), clk, "waiting for ffprobe", "path", "clip.mp4", logger)

	waitForWarnings := func(n int) {
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			test.That(tb, logs.FilterMessage("waiting for ffprobe").Len(), test.ShouldEqual, n)
		})
	}

	// The mock only fires timers that exist, so give the goroutine a moment to arm each one.
	advance := func(d time.Duration) {
		time.Sleep(10 * time.Millisecond)
		clk.Add(d)
	}

	advance(time.Second)
	test.That(t, logs.FilterMessage("waiting for ffprobe").Len(), test.ShouldEqual, 0)
	advance(time.Second)
	waitForWarnings(1)
	advance(3 * time.Second)
	waitForWarnings(2)
	advance(5 * time.Second)
	waitForWarnings(3)

	entry := logs.FilterMessage("waiting for ffprobe").All()[0]
	test.That(t, entry.ContextMap()["path"], test.ShouldEqual, "clip.mp4")
	test.That(t, entry.ContextMap()["time_elapsed"], test.ShouldEqual, "2s")

	stop()
	advance(time.Minute)
	test.That(t, logs.FilterMessage("waiting for ffprobe").Len(), test.ShouldEqual, 3)
}

func TestSlowLoggerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stop := slowLogger(ctx, clock.NewMock(), "slow", "k", "v", logging.NewTestLogger(t))
	cancel()
	// stop waits for the goroutine, which has already exited.
	stop()
}
