package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/curatarr/internal/models"
)

// ErrInvalidSchedule wraps a [*FieldError] describing the first invalid cron field.
var ErrInvalidSchedule = errors.New("invalid schedule")

// FieldError reports an invalid value in one cron field.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s field %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// maxLookahead bounds [Cron.Next].
const maxLookahead = 5 * 365 * 24 * time.Hour

type fieldDomain struct {
	name     string
	min, max int
	names    map[string]int
}

var (
	monthNames = map[string]int{
		"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
		"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
	}
	weekdayNames = map[string]int{"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6}

	domains = [6]fieldDomain{
		{name: "minute", min: 0, max: 59},
		{name: "hour", min: 0, max: 23},
		{name: "day", min: 1, max: 31},
		{name: "month", min: 1, max: 12, names: monthNames},
		// 7 is accepted as Sunday and folded onto 0.
		{name: "day_of_week", min: 0, max: 7, names: weekdayNames},
		{name: "year", min: 1970, max: 2199},
	}
)

// valueSet is a bitmap of allowed values offset by the field minimum.
type valueSet struct {
	min  int
	bits []bool
	any  bool
}

func newValueSet(d fieldDomain) valueSet {
	return valueSet{min: d.min, bits: make([]bool, d.max-d.min+1)}
}

func (s valueSet) has(v int) bool {
	if s.any {
		return true
	}
	i := v - s.min
	return i >= 0 && i < len(s.bits) && s.bits[i]
}

func (s valueSet) add(v int) { s.bits[v-s.min] = true }

type nthWeekday struct {
	weekday int
	n       int
}

// Cron is a parsed six field schedule: minute hour day month day_of_week year.
//
// Every field that is not "*" must match. Day accepts L for the last day of the month and
// day_of_week accepts x#n for the nth weekday x of the month.
type Cron struct {
	fields  [6]valueSet
	lastDay bool
	nth     []nthWeekday
}

// Parse validates every field of sched.
func Parse(sched models.Schedule) (*Cron, error) {
	c := &Cron{}
	for i, raw := range sched.Fields() {
		d := domains[i]
		set, err := c.parseField(i, d, strings.ToLower(strings.TrimSpace(raw)))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, &FieldError{Field: d.name, Value: raw, Err: err})
		}
		c.fields[i] = set
	}

	dow := &c.fields[4]
	if !dow.any && dow.bits[7] {
		dow.bits[0] = true
		dow.bits[7] = false
	}
	return c, nil
}

// ParseExpr parses a space separated expression of one to six fields.
func ParseExpr(expr string) (*Cron, error) {
	sched, err := models.ParseSchedule(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return Parse(sched)
}

func (c *Cron) parseField(idx int, d fieldDomain, field string) (valueSet, error) {
	set := newValueSet(d)
	if field == "*" {
		set.any = true
		return set, nil
	}

	matched := false
	for _, part := range strings.Split(field, ",") {
		if part == "" {
			return set, fmt.Errorf("empty list element")
		}

		switch {
		case idx == 2 && part == "l":
			c.lastDay = true
			matched = true
			continue
		case idx == 4 && strings.Contains(part, "#"):
			nth, err := parseNth(part, d)
			if err != nil {
				return set, err
			}
			c.nth = append(c.nth, nth)
			matched = true
			continue
		}

		values, err := parsePart(part, d)
		if err != nil {
			return set, err
		}
		for _, v := range values {
			set.add(v)
			matched = true
		}
	}

	if !matched {
		return set, fmt.Errorf("matches no values")
	}
	return set, nil
}

func parseNth(part string, d fieldDomain) (nthWeekday, error) {
	day, n, _ := strings.Cut(part, "#")
	wd, err := parseValue(day, d)
	if err != nil {
		return nthWeekday{}, err
	}
	k, err := strconv.Atoi(n)
	if err != nil || k < 1 || k > 5 {
		return nthWeekday{}, fmt.Errorf("invalid occurrence %q, expected 1-5", n)
	}
	return nthWeekday{weekday: wd % 7, n: k}, nil
}

// parsePart handles n, a-b, */s, a-b/s and n/s.
func parsePart(part string, d fieldDomain) ([]int, error) {
	rng, stepStr, hasStep := strings.Cut(part, "/")

	step := 1
	if hasStep {
		var err error
		step, err = strconv.Atoi(stepStr)
		if err != nil || step <= 0 {
			return nil, fmt.Errorf("invalid step %q", stepStr)
		}
	}

	var start, end int
	switch {
	case rng == "*":
		start, end = d.min, d.max
	case strings.Contains(rng, "-"):
		a, b, _ := strings.Cut(rng, "-")
		var err error
		if start, err = parseValue(a, d); err != nil {
			return nil, err
		}
		if end, err = parseValue(b, d); err != nil {
			return nil, err
		}
		if start > end {
			return nil, fmt.Errorf("range %d-%d is reversed", start, end)
		}
	default:
		v, err := parseValue(rng, d)
		if err != nil {
			return nil, err
		}
		start, end = v, v
		if hasStep {
			end = d.max
		}
	}

	var out []int
	for v := start; v <= end; v += step {
		out = append(out, v)
	}
	return out, nil
}

func parseValue(s string, d fieldDomain) (int, error) {
	if v, ok := d.names[s]; ok {
		return v, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	if v < d.min || v > d.max {
		return 0, fmt.Errorf("value %d out of range %d-%d", v, d.min, d.max)
	}
	return v, nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (c *Cron) matchDay(t time.Time) bool {
	set := c.fields[2]
	if set.any || set.has(t.Day()) {
		return true
	}
	return c.lastDay && t.Day() == daysIn(t.Year(), t.Month())
}

func (c *Cron) matchWeekday(t time.Time) bool {
	set := c.fields[4]
	wd := int(t.Weekday())
	if set.any || set.has(wd) {
		return true
	}
	for _, n := range c.nth {
		if n.weekday == wd && (t.Day()-1)/7+1 == n.n {
			return true
		}
	}
	return false
}

func (c *Cron) matchDate(t time.Time) bool {
	if !c.fields[5].has(t.Year()) || !c.fields[3].has(int(t.Month())) {
		return false
	}
	return c.matchDay(t) && c.matchWeekday(t)
}

// Matches reports whether the minute containing t is scheduled.
func (c *Cron) Matches(t time.Time) bool {
	return c.matchDate(t) && c.fields[1].has(t.Hour()) && c.fields[0].has(t.Minute())
}

// Next returns the first scheduled minute strictly after after, or false when none falls
// within five years.
func (c *Cron) Next(after time.Time) (time.Time, bool) {
	loc := after.Location()
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(maxLookahead)

	for !t.After(limit) {
		if !c.matchDate(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
			continue
		}
		if !c.fields[1].has(t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
			continue
		}
		if !c.fields[0].has(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t, true
	}
	return time.Time{}, false
}
