package lobby

import (
	"log"

	"github.com/Meander-Cloud/go-quickplay/group"
)

// invoked on arbiter goroutine
func (l *Lobby) scheduleResendSweep() {
	wait := l.c.GetResendInterval()

	l.a.ScheduleTimer(
		group.GroupResendSweep,
		wait,
		func() {
			// invoked on arbiter goroutine
			l.ResendUnacked()
			l.scheduleResendSweep()
		},
	)

	if l.c.LogDebug {
		log.Printf("%s: scheduled<%v>: %s", l.c.LogPrefix, wait, group.GroupResendSweep)
	}
}

// invoked on arbiter goroutine
//
// ResendUnacked requeues every frame still awaiting an Ack and retries
// frames whose earlier write failed.
func (l *Lobby) ResendUnacked() int {
	total := 0
	for _, p := range l.playerMap {
		count := p.Store.ResendUnacked()
		total += count

		sending, _ := p.Store.Pending()
		if sending > 0 {
			l.markDirty(p)
		}
	}

	if total > 0 {
		log.Printf("%s: resend sweep requeued %d frames", l.c.LogPrefix, total)
	}

	l.flush()
	return total
}
