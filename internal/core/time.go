package core

import "time"

// TimeFormat is the wire format for timestamps: RFC 3339 with millisecond
// precision, always UTC.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// FormatTime formats a timestamp for storage and transport.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// NowFormatted returns the current time in wire format.
func NowFormatted() string {
	return FormatTime(time.Now())
}

// ParseTime parses a wire-format timestamp, falling back to plain RFC 3339
// for values written by other producers.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeFormat, s)
	if err != nil {
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}
