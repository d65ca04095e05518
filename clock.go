package hyperdelta

import "time"

// Clock supplies the current time in milliseconds since the Unix epoch.
// Tests substitute a deterministic Clock via Config.Clock.
type Clock interface {
	NowMillis() int64
}

type systemClock struct{}

func (systemClock) NowMillis() int64 { return time.Now().UnixMilli() }
