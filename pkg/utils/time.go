package utils

import (
	"fmt"
	"time"
)

// Now is the clock behind generated source ids and uptime reports.
var Now = time.Now

// Uptime reports the time elapsed since start in FormatDuration form.
func Uptime(start time.Time) string {
	return FormatDuration(Now().Sub(start))
}

// FormatDuration renders d compactly for logs: 250ms, 1.50s, 1m30s, 2h5m
// or 3d4h. Negative durations render as 0ms.
func FormatDuration(d time.Duration) string {
	const day = 24 * time.Hour
	switch {
	case d <= 0:
		return "0ms"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", d/time.Minute, (d%time.Minute)/time.Second)
	case d < day:
		return fmt.Sprintf("%dh%dm", d/time.Hour, (d%time.Hour)/time.Minute)
	default:
		return fmt.Sprintf("%dd%dh", d/day, (d%day)/time.Hour)
	}
}
