package ledger

import (
	"strconv"
	"strings"
	"time"

	"qrattend/internal/utils"
)

// ParseMonth accepts 1-12 or an English month name in any case.
func ParseMonth(s string) (time.Month, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Month(n), n >= 1 && n <= 12
	}
	for m := time.January; m <= time.December; m++ {
		if strings.EqualFold(m.String(), s) {
			return m, true
		}
	}
	return 0, false
}

// ParseWeekday accepts an English weekday name in any case.
func ParseWeekday(s string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d, true
		}
	}
	return 0, false
}

// Period selects a bucket's date components. Empty fields fall back to now.
type Period struct {
	Year  string
	Month string
	Day   string
}

// Resolve validates p against now.
func (p Period) Resolve(now time.Time) (int, time.Month, time.Weekday, error) {
	year, month, day := now.Year(), now.Month(), now.Weekday()
	if p.Year != "" {
		y, err := strconv.Atoi(p.Year)
		if err != nil {
			return 0, 0, 0, utils.New(utils.KindValidation, "invalid year "+p.Year)
		}
		year = y
	}
	if p.Month != "" {
		m, ok := ParseMonth(p.Month)
		if !ok {
			return 0, 0, 0, utils.New(utils.KindValidation, "invalid month "+p.Month)
		}
		month = m
	}
	if p.Day != "" {
		d, ok := ParseWeekday(p.Day)
		if !ok {
			return 0, 0, 0, utils.New(utils.KindValidation, "invalid day "+p.Day)
		}
		day = d
	}
	return year, month, day, nil
}
