package polling

import "time"

// Ticker delivers ticks on a channel and can be stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock produces tickers. The engine only schedules through this interface,
// so tests can drive it with virtual time instead of sleeping.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

type systemClock struct{}

type systemTicker struct {
	t *time.Ticker
}

func (t *systemTicker) C() <-chan time.Time { return t.t.C }

func (t *systemTicker) Stop() { t.t.Stop() }

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

// SystemClock returns a Clock backed by time.Ticker.
func SystemClock() Clock {
	return systemClock{}
}
