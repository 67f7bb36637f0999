package catalog

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// HumanReadableSize renders a byte count the way the file table shows it.
// Values are rounded up into the next unit step, so even empty files read "1 kB".
func HumanReadableSize(n uint64) string {
	var size float64
	var unit string
	switch {
	case n < 1024*1024:
		size = 1 + float64(n)/1024
		unit = "kB"
	case n < 1024*1024*1024:
		size = 1 + float64(n)/1024/1024
		unit = "MB"
	default:
		size = 1 + float64(n)/1024/1024/1024
		unit = "GB"
	}
	size = math.Round(size*10) / 10
	return strconv.FormatFloat(size, 'g', 4, 64) + " " + unit
}

// FormatElapsed renders a duration as HH:MM:SS:mmm.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	hours := ms / (1000 * 60 * 60)
	ms -= hours * 1000 * 60 * 60
	minutes := ms / (1000 * 60)
	ms -= minutes * 1000 * 60
	seconds := ms / 1000
	ms -= seconds * 1000
	return fmt.Sprintf("%02d:%02d:%02d:%03d", hours, minutes, seconds, ms)
}

// FormatSpeed renders throughput for bytes sent over elapsed.
func FormatSpeed(sent int64, elapsed time.Duration) string {
	ms := elapsed.Milliseconds()
	if ms <= 0 {
		return "0.0 bytes/sec"
	}
	speed := float64(sent) * 1000 / float64(ms)
	switch {
	case speed < 1024:
		return fmt.Sprintf("%.1f bytes/sec", speed)
	case speed < 1024*1024:
		return fmt.Sprintf("%.1f kB/s", speed/1024)
	default:
		return fmt.Sprintf("%.1f MB/s", speed/1024/1024)
	}
}
