package render

import (
	"fmt"
	"time"
)

// FormatRelative renders an ISO timestamp relative to now:
// today/tomorrow at HH:MM, a weekday name within 7 days, otherwise
// "on YYYY-MM-DD at HH:MM". Each side keeps its own zone, matching how the
// authority reports reset times in the mandate's local zone.
func FormatRelative(isoTimestamp string, now time.Time) string {
	target, err := time.Parse(time.RFC3339, isoTimestamp)
	if err != nil {
		return isoTimestamp
	}

	timeStr := target.Format("15:04")
	deltaDays := daysBetween(now, target)

	switch {
	case deltaDays == 0:
		return fmt.Sprintf("today at %s", timeStr)
	case deltaDays == 1:
		return fmt.Sprintf("tomorrow at %s", timeStr)
	case deltaDays >= 2 && deltaDays <= 6:
		return fmt.Sprintf("%s at %s", target.Weekday(), timeStr)
	default:
		return fmt.Sprintf("on %s at %s", target.Format("2006-01-02"), timeStr)
	}
}

// daysBetween counts calendar days from now's date to target's date, each in
// its own location.
func daysBetween(now, target time.Time) int {
	ny, nm, nd := now.Date()
	ty, tm, td := target.Date()
	a := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// FormatUptime renders an uptime in seconds using the largest whole unit:
// seconds below a minute, then minutes, hours, days.
func FormatUptime(seconds float64) string {
	s := int64(seconds)
	switch {
	case s < 60:
		return fmt.Sprintf("%d seconds", s)
	case s < 3600:
		return fmt.Sprintf("%d minutes", s/60)
	case s < 86400:
		return fmt.Sprintf("%d hours", s/3600)
	default:
		return fmt.Sprintf("%d days", s/86400)
	}
}
