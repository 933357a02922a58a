package sweep

import (
	"context"
	"time"
)

// TimerPacer implements stock.Pacer with a plain timer that respects
// cancellation, so a shutdown never waits out a pacing delay.
type TimerPacer struct{}

// Delay blocks for d or until ctx is done, whichever comes first.
func (TimerPacer) Delay(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
