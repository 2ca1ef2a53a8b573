package probes

import (
	"context"
	"fmt"
	"time"
)

// ClockProbe hints at local time-of-day and day-of-week. It touches only
// the system clock, never the network or filesystem.
type ClockProbe struct {
	ttl time.Duration
	now func() time.Time
}

func NewClockProbe(ttl time.Duration) *ClockProbe {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ClockProbe{ttl: ttl, now: time.Now}
}

func (p *ClockProbe) Name() string      { return "clock" }
func (p *ClockProbe) TTL() time.Duration { return p.ttl }

func (p *ClockProbe) Hint(ctx context.Context) (string, error) {
	now := p.now()
	period := dayPeriod(now.Hour())
	return fmt.Sprintf("Local time: %s, %s (%s).", now.Format("15:04"), now.Weekday(), period), nil
}

func dayPeriod(hour int) string {
	switch {
	case hour < 5:
		return "late night"
	case hour < 12:
		return "morning"
	case hour < 17:
		return "afternoon"
	case hour < 21:
		return "evening"
	default:
		return "night"
	}
}
