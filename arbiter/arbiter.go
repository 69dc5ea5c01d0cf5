package arbiter

import (
	"context"
	"time"

	"github.com/Meander-Cloud/go-arbiter/arbiter"
	"github.com/Meander-Cloud/go-schedule/scheduler"

	"github.com/Meander-Cloud/go-quickplay/group"
)

// Arbiter owns the one goroutine allowed to touch lobby or client state.
// Connection goroutines hand it functors, timers fire on it. Dispatch never
// drops: the queue behind it grows as needed.
type Arbiter struct {
	*arbiter.Arbiter[group.Group]
}

func NewArbiter(logPrefix string, logDebug bool) *Arbiter {
	return &Arbiter{
		Arbiter: arbiter.New(
			&arbiter.Options[group.Group]{
				LogPrefix: logPrefix + "-Arbiter",
				LogDebug:  logDebug,
				LogEvent:  logDebug,
			},
		),
	}
}

// invoked on arbiter goroutine
func (a *Arbiter) ScheduleTimer(g group.Group, wait time.Duration, f func()) {
	a.Scheduler().ProcessSync(
		&scheduler.ScheduleAsyncEvent[group.Group]{
			AsyncVariant: scheduler.TimerAsync(
				true,
				[]group.Group{g},
				wait,
				f,
				nil,
			),
		},
	)
}

// invoked on arbiter goroutine
func (a *Arbiter) ReleaseTimer(g group.Group) {
	a.Scheduler().ProcessSync(
		&scheduler.ReleaseGroupEvent[group.Group]{
			Group: g,
		},
	)
}

// Call dispatches f and waits until it has run on the arbiter goroutine.
// Must not be invoked from the arbiter goroutine itself.
func (a *Arbiter) Call(ctx context.Context, f func()) error {
	done := make(chan struct{})
	a.Dispatch(
		func() {
			// invoked on arbiter goroutine
			defer close(done)
			f()
		},
	)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
