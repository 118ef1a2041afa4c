package minicron

import "time"

// horizon bounds how far Next searches, the same as robfig/cron.
const horizon = 5 // years

// Values are the calendar readings of one instant.
type Values struct {
	Minute     int
	Hour       int
	DayOfMonth int
	Month      int // 1-12
	DayOfWeek  int // 1-7, 1 is Sunday
}

// ValuesOf reads the calendar values of t in t's own location.
func ValuesOf(t time.Time) Values {
	return Values{
		Minute:     t.Minute(),
		Hour:       t.Hour(),
		DayOfMonth: t.Day(),
		Month:      int(t.Month()),
		DayOfWeek:  int(t.Weekday()) + 1,
	}
}

// Get returns the value of field f.
func (v Values) Get(f Field) int {
	switch f {
	case Minute:
		return v.Minute
	case Hour:
		return v.Hour
	case DayOfMonth:
		return v.DayOfMonth
	case Month:
		return v.Month
	case DayOfWeek:
		return v.DayOfWeek
	default:
		return -1
	}
}

// Latch remembers the instant of the previous fire.
type Latch struct {
	Values
	At time.Time
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Fire bool
	// Rejected is the first field that did not match, or NoField.
	Rejected Field
	// Suppressed is set when every field matched but the previous fire is
	// still inside a step window.
	Suppressed bool
	Values     Values
}

// matchOrder is the fixed order fields are checked in.
var matchOrder = [...]Field{Month, DayOfWeek, DayOfMonth, Hour, Minute}

// Matcher decides, tick by tick, whether a schedule fires. It owns the
// previous-fire latch, so it must only be driven from one goroutine.
type Matcher struct {
	sched *Schedule
	last  Latch
	fired bool
	// stepped holds, per field, the last fire whose value sat on the grid of
	// the field's stepped range. Zero when there was none.
	stepped [len(Fields)]time.Time
}

// NewMatcher returns a Matcher with an unset latch.
func NewMatcher(sched *Schedule) *Matcher {
	return &Matcher{sched: sched}
}

// Schedule returns the schedule being matched.
func (m *Matcher) Schedule() *Schedule { return m.sched }

// Last returns the latch of the previous fire, if any.
func (m *Matcher) Last() (Latch, bool) { return m.last, m.fired }

// Reset forgets the previous fire.
func (m *Matcher) Reset() {
	m.last = Latch{}
	m.fired = false
	m.stepped = [len(Fields)]time.Time{}
}

// Evaluate decides whether the schedule fires at t. A firing decision
// promotes the latch to t's values, whatever each field's step is; this is
// what keeps the job from firing again on the following ticks of the same
// minute.
func (m *Matcher) Evaluate(t time.Time) Decision {
	v := ValuesOf(t)
	d := Decision{Rejected: NoField, Values: v}

	var grid, free [len(Fields)]bool
	for _, f := range matchOrder {
		val := v.Get(f)
		if !f.inBound(val) {
			free[f] = true
			continue
		}
		grid[f], free[f] = m.sched.Field(f).admit(val, f.Min())
		if !grid[f] && !free[f] {
			d.Rejected = f
			return d
		}
	}

	if m.suppressed(t, &free) {
		d.Suppressed = true
		return d
	}
	m.last = Latch{Values: v, At: t}
	m.fired = true
	for _, f := range Fields {
		if grid[f] {
			m.stepped[f] = t
		}
	}
	d.Fire = true
	return d
}

// suppressed reports whether t falls in or before the minute of the previous fire,
// or inside the step window of a field whose value only its stepped range
// admits. Step windows run from the last fire on that field's grid and are
// counted in calendar units, so they carry across hour, day and month
// boundaries.
func (m *Matcher) suppressed(t time.Time, free *[len(Fields)]bool) bool {
	if !m.fired {
		return false
	}
	if minuteIndex(t)-minuteIndex(m.last.At) < 1 {
		return true
	}
	for _, f := range Fields {
		step := int64(m.sched.Field(f).Step)
		prev := m.stepped[f]
		if step <= 0 || free[f] || prev.IsZero() {
			continue
		}
		if elapsed(f, prev, t) < step {
			return true
		}
	}
	return false
}

// Next returns the first minute after the given instant at which the matcher
// would fire, starting from its current latch, or the zero time when nothing
// fires within five years. The matcher itself is not modified.
func (m *Matcher) Next(after time.Time) time.Time {
	sim := *m
	return sim.advance(after)
}

// Upcoming lists up to n consecutive fire times after the given instant.
func (m *Matcher) Upcoming(after time.Time, n int) []time.Time {
	sim := *m
	out := make([]time.Time, 0, n)
	for len(out) < n {
		next := sim.advance(after)
		if next.IsZero() {
			break
		}
		out = append(out, next)
		after = next
	}
	return out
}

// advance evaluates whole minutes after the given instant until one fires,
// promoting the latch like a live tick would.
func (m *Matcher) advance(after time.Time) time.Time {
	loc := after.Location()
	y, mo, d := after.Date()
	h, mi, _ := after.Clock()
	t := time.Date(y, mo, d, h, mi+1, 0, 0, loc)
	limit := t.AddDate(horizon, 0, 0)

	for t.Before(limit) {
		dec := m.Evaluate(t)
		if dec.Fire {
			return t
		}
		y, mo, d = t.Date()
		h = t.Hour()
		var next time.Time
		switch dec.Rejected {
		case Month, DayOfWeek, DayOfMonth:
			next = time.Date(y, mo, d+1, 0, 0, 0, 0, loc)
		case Hour:
			next = time.Date(y, mo, d, h+1, 0, 0, 0, loc)
		}
		if !next.After(t) {
			next = t.Add(time.Minute)
		}
		t = next
	}
	return time.Time{}
}

// elapsed counts the calendar units of field f between two instants.
func elapsed(f Field, from, to time.Time) int64 {
	switch f {
	case Minute:
		return minuteIndex(to) - minuteIndex(from)
	case Hour:
		return hourIndex(to) - hourIndex(from)
	case Month:
		return monthIndex(to) - monthIndex(from)
	default:
		return dayIndex(to) - dayIndex(from)
	}
}

// dayIndex counts wall-clock days since the Unix epoch.
func dayIndex(t time.Time) int64 {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

func hourIndex(t time.Time) int64 { return dayIndex(t)*24 + int64(t.Hour()) }

func minuteIndex(t time.Time) int64 { return hourIndex(t)*60 + int64(t.Minute()) }

func monthIndex(t time.Time) int64 { return int64(t.Year())*12 + int64(t.Month()) - 1 }
