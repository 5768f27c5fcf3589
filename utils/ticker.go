package utils

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	goutils "go.viam.com/utils"

	"go.viam.com/augment/logging"
)

// slowLogIntervals are the waits before each warning. The last one repeats.
var slowLogIntervals = []time.Duration{2 * time.Second, 3 * time.Second, 5 * time.Second}

// SlowLogger warns with msg every few seconds until the returned function is called or ctx is
// done. It wraps calls that usually return quickly but can hang, such as probing a video file.
func SlowLogger(ctx context.Context, msg, fieldName, fieldVal string, logger logging.Logger) func() {
	return slowLogger(ctx, clock.New(), msg, fieldName, fieldVal, logger)
}

func slowLogger(ctx context.Context, clk clock.Clock, msg, fieldName, fieldVal string, logger logging.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	start := clk.Now()
	done := make(chan struct{})
	goutils.PanicCapturingGo(func() {
		defer close(done)
		for i := 0; ; i++ {
			timer := clk.Timer(slowLogIntervals[min(i, len(slowLogIntervals)-1)])
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			elapsed := clk.Since(start).Round(time.Second).String()
			logger.Warnw(msg, fieldName, fieldVal, "time_elapsed", elapsed)
		}
	})
	return func() {
		cancel()
		<-done
	}
}
