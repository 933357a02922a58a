package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerPacerRespectsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	TimerPacer{}.Delay(ctx, time.Minute)
	require.Less(t, time.Since(start), time.Second)
}

func TestTimerPacerZeroDelayReturnsImmediately(t *testing.T) {
	t.Parallel()

	start := time.Now()
	TimerPacer{}.Delay(context.Background(), 0)
	require.Less(t, time.Since(start), 100*time.Millisecond)
}
