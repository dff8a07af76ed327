package domain

import "time"

const (
	millisPerMinute = 60_000
	millisPerDay    = 86_400_000
)

// MinuteKey partitions a timestamp into its UTC minute window.
func MinuteKey(t time.Time) int64 { return t.UnixMilli() / millisPerMinute }

// DayKey partitions a timestamp into its UTC day window.
func DayKey(t time.Time) int64 { return t.UnixMilli() / millisPerDay }

// MonthKey partitions a timestamp into its UTC "YYYYMM" month window.
func MonthKey(t time.Time) string { return t.UTC().Format("200601") }

// NextDayStart returns the UTC instant the day window containing t rolls
// over, which is when a denied caller may retry.
func NextDayStart(t time.Time) time.Time {
	return time.UnixMilli((DayKey(t) + 1) * millisPerDay).UTC()
}
