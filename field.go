package minicron

import (
	"strconv"
	"strings"
)

const (
	// Slots is the size of every occurrence map. It covers the widest field
	// (minute, 0-59) with headroom for open-ended ranges.
	Slots   = 61
	maxSlot = Slots - 1

	// Wildcard marks an unbounded start or an open range end.
	Wildcard = -1
	// NoEnd marks a FieldSpec whose last element was a single value.
	NoEnd = -2
)

// Field identifies one of the five time fields of a schedule line.
type Field int

const (
	NoField Field = iota - 1
	Minute
	Hour
	DayOfMonth
	Month
	DayOfWeek
)

// Fields lists the time fields in the order they appear on a schedule line.
var Fields = [...]Field{Minute, Hour, DayOfMonth, Month, DayOfWeek}

var fieldBounds = [...]struct {
	name     string
	min, max int
}{
	Minute:     {"minute", 0, 59},
	Hour:       {"hour", 0, 23},
	DayOfMonth: {"day of month", 1, 31},
	Month:      {"month", 1, 12},
	DayOfWeek:  {"day of week", 1, 7},
}

func (f Field) valid() bool { return f >= Minute && f <= DayOfWeek }

func (f Field) String() string {
	if !f.valid() {
		return "none"
	}
	return fieldBounds[f].name
}

// Min returns the smallest calendar value of the field.
func (f Field) Min() int {
	if !f.valid() {
		return 0
	}
	return fieldBounds[f].min
}

// Max returns the largest calendar value of the field.
func (f Field) Max() int {
	if !f.valid() {
		return maxSlot
	}
	return fieldBounds[f].max
}

func (f Field) inBound(v int) bool { return f.Min() <= v && v <= f.Max() }

// Compile compiles text and checks every literal value against the field's
// calendar bound.
func (f Field) Compile(text string) (FieldSpec, error) {
	spec, err := CompileField(text)
	if err != nil {
		return FieldSpec{}, &FieldError{Field: f, Err: err}
	}
	if err := f.validate(&spec); err != nil {
		return FieldSpec{}, &FieldError{Field: f, Err: err}
	}
	return spec, nil
}

func (f Field) validate(spec *FieldSpec) error {
	for _, r := range spec.Ranges {
		for _, v := range [2]int{r.Start, r.End} {
			if v != Wildcard && !f.inBound(v) {
				return &DomainError{Field: f, Value: v}
			}
		}
		if r.Step > f.Max() {
			return &DomainError{Field: f, Value: r.Step, Step: true}
		}
	}
	return nil
}

// Describe renders the slots of spec that fall inside the field's bound as
// comma separated runs, or "*" when every value matches.
func (f Field) Describe(spec *FieldSpec) string {
	var (
		parts []string
		start = -1
		all   = true
	)
	flush := func(end int) {
		if start == -1 {
			return
		}
		if start == end {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, strconv.Itoa(start)+"-"+strconv.Itoa(end))
		}
		start = -1
	}
	for v := f.Min(); v <= f.Max(); v++ {
		if spec.Occurs[v] {
			if start == -1 {
				start = v
			}
			continue
		}
		all = false
		flush(v - 1)
	}
	flush(f.Max())
	if all {
		return "*"
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}

// Range is one committed element of a field expression. Start is Wildcard for
// '*', End is Wildcard for an open end. Step is 0 unless the element carried
// one.
type Range struct {
	Start int
	End   int
	Step  int
}

func (r Range) contains(v int) bool {
	lo, hi := r.Start, r.End
	if lo == Wildcard {
		lo = 0
	}
	if hi == Wildcard {
		hi = maxSlot
	}
	return lo <= v && v <= hi
}

// onGrid reports whether v is a step away from the range start, or from base
// when the range started with '*'.
func (r Range) onGrid(v, base int) bool {
	if r.Start != Wildcard {
		base = r.Start
	}
	d := v - base
	return d >= 0 && d%r.Step == 0
}

// FieldSpec is a compiled time field.
//
// Occurs is the authoritative match source. Ranges carry the per-element steps;
// Start, End and Step keep the last parsed element for diagnostics.
type FieldSpec struct {
	Text     string
	Start    int
	End      int
	Step     int
	StepBase int
	Ranges   []Range
	Occurs   [Slots]bool
}

// Matches reports whether v is marked in the occurrence map.
func (s *FieldSpec) Matches(v int) bool {
	return v >= 0 && v <= maxSlot && s.Occurs[v]
}

// admit reports how the ranges of the field cover a marked value v. free is
// set when a range without a step covers v, grid when v sits on the grid of a
// stepped range. v fires the field when either is set. base is the grid
// origin of a stepped range that started with '*'.
func (s *FieldSpec) admit(v, base int) (grid, free bool) {
	if !s.Matches(v) {
		return false, false
	}
	for _, r := range s.Ranges {
		if !r.contains(v) {
			continue
		}
		if r.Step <= 0 {
			free = true
		} else if r.onGrid(v, base) {
			grid = true
		}
	}
	return grid, free
}

// CompileField parses a single field expression into its occurrence map.
// It does not apply any calendar bound; see Field.Compile.
func CompileField(text string) (FieldSpec, error) {
	spec := FieldSpec{
		Text:     text,
		Start:    Wildcard,
		End:      NoEnd,
		StepBase: Wildcard,
	}
	if text == "" {
		return FieldSpec{}, &GrammarError{Text: text, Reason: ErrEmptyField}
	}
	p := &fieldParser{text: text, spec: &spec}
	if err := p.field(); err != nil {
		return FieldSpec{}, err
	}
	return spec, nil
}

// fieldParser walks an immutable field text with an owned cursor. Each
// production advances pos and reports the first grammar violation.
type fieldParser struct {
	text string
	pos  int
	spec *FieldSpec
}

// peek returns the byte under the cursor, or 0 at end of text.
func (p *fieldParser) peek() byte {
	if p.pos >= len(p.text) {
		return 0
	}
	return p.text[p.pos]
}

func (p *fieldParser) fail(reason error) error {
	return &GrammarError{Text: p.text, Pos: p.pos, Reason: reason}
}

func (p *fieldParser) number() (int, error) {
	n, next := scanNumber(p.text, p.pos)
	if !n.OK {
		if n.Digits > maxDigits {
			return 0, p.fail(ErrNumberTooLong)
		}
		return 0, p.fail(ErrIllegalChar)
	}
	p.pos = next
	return n.Value, nil
}

// commit marks [start, end] in the occurrence map, clamped to the map.
func (p *fieldParser) commit(start, end int) {
	lo := max(0, start)
	hi := maxSlot
	if end != Wildcard {
		hi = min(maxSlot, end)
	}
	for i := lo; i <= hi; i++ {
		p.spec.Occurs[i] = true
	}
	p.spec.Ranges = append(p.spec.Ranges, Range{Start: start, End: end})
}

func (p *fieldParser) field() error {
	switch c := p.peek(); {
	case isDigit(c):
		return p.numberHead()
	case c == '*':
		p.pos++
		return p.asteriskHead()
	case c == 0:
		return p.fail(ErrEmptyField)
	default:
		return p.fail(ErrIllegalChar)
	}
}

func (p *fieldParser) numberHead() error {
	start, err := p.number()
	if err != nil {
		return err
	}
	p.spec.Start, p.spec.End = start, NoEnd
	switch p.peek() {
	case 0:
		p.commit(start, start)
		return nil
	case '-':
		p.pos++
		return p.rangeEnd(start)
	case '/':
		p.spec.End = Wildcard
		p.commit(start, Wildcard)
		return p.step(start)
	case ',':
		p.commit(start, start)
		p.pos++
		return p.field()
	default:
		return p.fail(ErrIllegalChar)
	}
}

func (p *fieldParser) asteriskHead() error {
	p.spec.Start = Wildcard
	switch p.peek() {
	case 0:
		p.spec.End = Wildcard
		p.commit(Wildcard, Wildcard)
		return nil
	case '-':
		p.pos++
		return p.rangeEnd(Wildcard)
	case '/':
		p.spec.End = Wildcard
		p.commit(Wildcard, Wildcard)
		return p.step(Wildcard)
	case ',':
		p.spec.End = Wildcard
		p.commit(Wildcard, Wildcard)
		p.pos++
		return p.field()
	default:
		return p.fail(ErrIllegalChar)
	}
}

func (p *fieldParser) rangeEnd(start int) error {
	switch c := p.peek(); {
	case isDigit(c):
		at := p.pos
		end, err := p.number()
		if err != nil {
			return err
		}
		if start != Wildcard && start > end {
			p.pos = at
			return p.fail(ErrBadRange)
		}
		p.spec.End = end
		return p.rangeTail(start, end)
	case c == '*':
		p.pos++
		p.spec.End = Wildcard
		return p.rangeTail(start, Wildcard)
	case c == 0:
		return p.fail(ErrDanglingRange)
	default:
		return p.fail(ErrIllegalChar)
	}
}

func (p *fieldParser) rangeTail(start, end int) error {
	switch p.peek() {
	case 0:
		p.commit(start, end)
		return nil
	case '/':
		p.commit(start, end)
		return p.step(start)
	case ',':
		p.commit(start, end)
		p.pos++
		return p.field()
	default:
		return p.fail(ErrIllegalChar)
	}
}

func (p *fieldParser) step(base int) error {
	p.pos++ // '/'
	if !isDigit(p.peek()) {
		return p.fail(ErrMissingStep)
	}
	n, err := p.number()
	if err != nil {
		return err
	}
	p.spec.Step = n
	p.spec.StepBase = base
	p.spec.Ranges[len(p.spec.Ranges)-1].Step = n
	if p.peek() != 0 {
		return p.fail(ErrTrailingText)
	}
	return nil
}
