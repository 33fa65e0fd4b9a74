package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CronExpression is a parsed 5-field cron schedule:
// minute hour day-of-month month day-of-week.
//
//	"*/30 * * * *"  every 30 minutes
//	"0 2 * * *"     daily at 02:00
//	"0 6 * * 1-5"   weekdays at 06:00
//
// Day-of-month and day-of-week must both match; the Vixie cron "either"
// rule is not implemented.
type CronExpression struct {
	raw      string
	minutes  []int
	hours    []int
	days     []int
	months   []int
	weekdays []int
}

var cronFields = []struct {
	name     string
	min, max int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day", 1, 31},
	{"month", 1, 12},
	{"weekday", 0, 6},
}

// ParseCronExpression parses a cron expression. Fields accept *, n, n-m,
// */s, n-m/s and comma separated lists of those.
func ParseCronExpression(expr string) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != len(cronFields) {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	parsed := make([][]int, len(fields))
	for i, f := range fields {
		values, err := parseField(f, cronFields[i].min, cronFields[i].max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field %q: %w", cronFields[i].name, f, err)
		}
		parsed[i] = values
	}

	return &CronExpression{
		raw:      strings.Join(fields, " "),
		minutes:  parsed[0],
		hours:    parsed[1],
		days:     parsed[2],
		months:   parsed[3],
		weekdays: parsed[4],
	}, nil
}

// ParseSchedule accepts either a Go duration ("90m", "@every 1h") or a cron
// expression.
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	if d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(spec, "@every"))); err == nil {
		return NewIntervalSchedule(d)
	}
	return ParseCronExpression(spec)
}

func parseField(field string, min, max int) ([]int, error) {
	set := make(map[int]struct{})
	for _, part := range strings.Split(field, ",") {
		if err := parsePart(part, min, max, set); err != nil {
			return nil, err
		}
	}

	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

func parsePart(part string, min, max int, set map[int]struct{}) error {
	step := 1
	if base, s, ok := strings.Cut(part, "/"); ok {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid step %q", s)
		}
		step = n
		part = base
	}

	start, end := min, max
	switch {
	case part == "*":
	case strings.Contains(part, "-"):
		lo, hi, _ := strings.Cut(part, "-")
		var err error
		if start, err = atoiInRange(lo, min, max); err != nil {
			return err
		}
		if end, err = atoiInRange(hi, min, max); err != nil {
			return err
		}
		if start > end {
			return fmt.Errorf("range %d-%d is reversed", start, end)
		}
	default:
		v, err := atoiInRange(part, min, max)
		if err != nil {
			return err
		}
		start = v
		if step == 1 {
			end = v
		}
	}

	for v := start; v <= end; v += step {
		set[v] = struct{}{}
	}
	return nil
}

func atoiInRange(s string, min, max int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("value %d out of range [%d-%d]", v, min, max)
	}
	return v, nil
}

// String returns the normalized expression.
func (ce *CronExpression) String() string {
	return ce.raw
}

// Next returns the first matching minute strictly after t, in t's location.
// It returns the zero time if nothing matches within a year and a day,
// e.g. for "0 0 31 2 *".
func (ce *CronExpression) Next(t time.Time) time.Time {
	next := t.Truncate(time.Minute).Add(time.Minute)
	limit := next.AddDate(1, 0, 1)

	for next.Before(limit) {
		switch {
		case !contains(ce.months, int(next.Month())):
			next = time.Date(next.Year(), next.Month()+1, 1, 0, 0, 0, 0, next.Location())
		case !contains(ce.days, next.Day()) || !contains(ce.weekdays, int(next.Weekday())):
			next = time.Date(next.Year(), next.Month(), next.Day()+1, 0, 0, 0, 0, next.Location())
		case !contains(ce.hours, next.Hour()):
			next = time.Date(next.Year(), next.Month(), next.Day(), next.Hour()+1, 0, 0, 0, next.Location())
		case !contains(ce.minutes, next.Minute()):
			next = next.Add(time.Minute)
		default:
			return next
		}
	}
	return time.Time{}
}

func contains(sorted []int, v int) bool {
	i := sort.SearchInts(sorted, v)
	return i < len(sorted) && sorted[i] == v
}
