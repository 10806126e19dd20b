package timeutil

import (
	"fmt"
	"time"
)

// Relative formats t relative to now ("5 minutes ago", "in 2 hours").
func Relative(t time.Time) string {
	return RelativeTo(t, time.Now())
}

// RelativeTo formats t relative to the reference time.
func RelativeTo(t, ref time.Time) string {
	d := ref.Sub(t)
	future := d < 0
	if future {
		d = -d
	}

	var phrase string
	switch {
	case d < time.Minute:
		phrase = "less than a minute"
	case d < time.Hour:
		phrase = plural(int(d.Minutes()), "minute")
	case d < 24*time.Hour:
		phrase = plural(int(d.Hours()), "hour")
	case d < 30*24*time.Hour:
		phrase = plural(int(d.Hours()/24), "day")
	default:
		// Past a month, the exact date reads better than a count.
		return t.Format("2006-01-02")
	}

	if future {
		return "in " + phrase
	}
	return phrase + " ago"
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
