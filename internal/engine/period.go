package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"incentives-engine/internal/normalize"
)

var ErrInvalidPeriod = errors.New("invalid period, use YYYY-MM")

// Period is a calendar month.
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod parses "YYYY-MM". The string must split into exactly two
// integer parts and the month must be within 1..12.
func ParsePeriod(s string) (Period, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return Period{Year: year, Month: time.Month(month)}, nil
}

// PeriodOf returns the month containing t in t's location.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Bounds returns the half-open window [first day of month, first day of next month).
func (p Period) Bounds() (start, endExclusive time.Time) {
	start = time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// LastDay is the inclusive upper bound of the window, for APIs that take
// closed ranges.
func (p Period) LastDay() time.Time {
	_, end := p.Bounds()
	return end.AddDate(0, 0, -1)
}

func (p Period) Contains(day time.Time) bool {
	start, end := p.Bounds()
	return !day.Before(start) && day.Before(end)
}

func (p Period) window() (string, string) {
	start, end := p.Bounds()
	return normalize.FormatDate(start), normalize.FormatDate(end)
}
