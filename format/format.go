package format

import (
	"fmt"
	"math"
	"time"
)

const (
	Thousand = 1000
	Million  = Thousand * 1000
	Billion  = Million * 1000
	Trillion = Billion * 1000
)

// HumanNumber abbreviates large counts such as parameter totals: 138M, 1.5B.
func HumanNumber(b uint64) string {
	switch {
	case b >= Trillion:
		return humanUnit(float64(b)/Trillion, "T")
	case b >= Billion:
		return humanUnit(float64(b)/Billion, "B")
	case b >= Million:
		return humanUnit(float64(b)/Million, "M")
	case b >= Thousand:
		return humanUnit(float64(b)/Thousand, "K")
	default:
		return fmt.Sprintf("%d", b)
	}
}

func humanUnit(n float64, unit string) string {
	if n == math.Floor(n) || n >= 100 {
		return fmt.Sprintf("%.0f%s", n, unit)
	}
	return fmt.Sprintf("%.1f%s", n, unit)
}

// HumanFLOPs renders a floating point operation count, e.g. 15.5 GFLOPs.
func HumanFLOPs(f float64) string {
	switch {
	case f >= 1e12:
		return fmt.Sprintf("%.2f TFLOPs", f/1e12)
	case f >= 1e9:
		return fmt.Sprintf("%.2f GFLOPs", f/1e9)
	case f >= 1e6:
		return fmt.Sprintf("%.2f MFLOPs", f/1e6)
	default:
		return fmt.Sprintf("%.0f FLOPs", f)
	}
}

// HumanDuration prints short durations with a unit suited to their magnitude.
func HumanDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fus", float64(d.Nanoseconds())/1000)
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// HumanTime describes t relative to now, e.g. "3 minutes ago".
func HumanTime(t time.Time, zeroValue string) string {
	if t.IsZero() {
		return zeroValue
	}

	delta := time.Since(t)
	if delta < 0 {
		return "in the future"
	}

	switch {
	case delta < time.Minute:
		return "Less than a minute ago"
	case delta < time.Hour:
		return plural(int(delta.Minutes()), "minute") + " ago"
	case delta < 24*time.Hour:
		return plural(int(delta.Hours()), "hour") + " ago"
	case delta < 30*24*time.Hour:
		return plural(int(delta.Hours()/24), "day") + " ago"
	default:
		return t.Format("2006-01-02")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
