package shared

import "time"

const dateLayout = "2006-01-02"

// ParseDate accepts YYYY-MM-DD or full RFC3339 and normalizes to a UTC
// midnight date, which is how the leave tables store day ranges.
func ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(dateLayout, value); err == nil {
		return parsed, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	utc := parsed.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC), nil
}
