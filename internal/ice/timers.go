package ice

import "time"

// tick runs the fixed per-Ta ordering from spec.md §4.5: service discovery
// (at most one new discovery request), then the check list (at most one new
// ordinary or triggered check, plus due keepalives). Retransmits are driven
// by their own per-transaction timers rather than re-checked here, since
// spec.md's "at most one new X per tick" only bounds new work, not retries
// already in flight.
func (a *Agent) tick() {
	a.discovery.tick()
	a.checklist.tick()
}

func (a *Agent) tickInterval() time.Duration {
	if a.config.TimerTaMs > 0 {
		return time.Duration(a.config.TimerTaMs) * time.Millisecond
	}
	return time.Duration(defaultTaMs) * time.Millisecond
}

func (a *Agent) startTicker() {
	a.tickHandle = a.driver.Timer(a.tickInterval(), a.onTick)
}

func (a *Agent) onTick() {
	a.submit(func() {
		if a.closed {
			return
		}
		a.tick()
		a.tickHandle = a.driver.Timer(a.tickInterval(), a.onTick)
	})
}

func (a *Agent) keepaliveInterval() time.Duration {
	return defaultKeepaliveInterval
}
