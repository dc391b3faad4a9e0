package normalize

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"incentives-engine/internal/model"
)

// Date parses a surgery-date style value. Accepts YYYY-MM-DD, written-out
// months ("May 10, 2024"), dotted and dashed forms and full timestamps (the
// calendar date in the timestamp's own zone is kept). Numeric day/month
// forms are read month first, falling back to day first when that is not a
// valid date. The result is midnight UTC.
func Date(v model.FieldValue) (time.Time, bool) {
	var s string
	switch v.Kind {
	case model.KindString:
		s = v.Text
	case model.KindOption:
		s = v.Label
	default:
		return time.Time{}, false
	}
	return ParseDate(s)
}

func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, ok := fastParseDate(s); ok {
		return t, true
	}
	if isDigits(s) && len(s) != 8 {
		// Bare numbers other than YYYYMMDD would be read as unix timestamps.
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(s, time.UTC,
		dateparse.PreferMonthFirst(true),
		dateparse.RetryAmbiguousDateWithSwap(true))
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// fastParseDate parses "YYYY-MM-DD" without going through layout parsing.
// Day overflow ("2024-02-31") is rejected.
func fastParseDate(s string) (time.Time, bool) {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return time.Time{}, false
	}
	for i := 0; i < 10; i++ {
		if i == 4 || i == 7 {
			continue
		}
		if s[i] < '0' || s[i] > '9' {
			return time.Time{}, false
		}
	}
	y := int(s[0]-'0')*1000 + int(s[1]-'0')*100 + int(s[2]-'0')*10 + int(s[3]-'0')
	m := time.Month(int(s[5]-'0')*10 + int(s[6]-'0'))
	d := int(s[8]-'0')*10 + int(s[9]-'0')
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}
