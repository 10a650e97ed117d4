package webui

import (
	"fmt"
	"time"
)

var durationUnits = []struct {
	suffix string
	size   time.Duration
}{
	{"w", 7 * 24 * time.Hour},
	{"d", 24 * time.Hour},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
}

// FormatDuration renders d with its two largest units, "2h 34m" or
// "45s". Sub-second remainders are dropped.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "-" + FormatDuration(-d)
	}
	for i, u := range durationUnits[:len(durationUnits)-1] {
		if d >= u.size {
			next := durationUnits[i+1]
			return fmt.Sprintf("%d%s %d%s", d/u.size, u.suffix, (d%u.size)/next.size, next.suffix)
		}
	}
	return fmt.Sprintf("%ds", d/time.Second)
}
