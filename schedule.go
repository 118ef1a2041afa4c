package minicron

import (
	"fmt"
	"strings"
)

const (
	// maxFieldLen bounds a single time field token.
	maxFieldLen = 32
	// MaxCommandLen bounds the command text of a schedule line.
	MaxCommandLen = 1024
)

// Schedule holds the five compiled time fields of a schedule line. It is
// immutable once parsed.
type Schedule struct {
	Minute     FieldSpec
	Hour       FieldSpec
	DayOfMonth FieldSpec
	Month      FieldSpec
	DayOfWeek  FieldSpec
}

// Field returns the compiled spec of f.
func (s *Schedule) Field(f Field) *FieldSpec {
	switch f {
	case Minute:
		return &s.Minute
	case Hour:
		return &s.Hour
	case DayOfMonth:
		return &s.DayOfMonth
	case Month:
		return &s.Month
	case DayOfWeek:
		return &s.DayOfWeek
	default:
		return nil
	}
}

// String renders the schedule back into its five source fields.
func (s *Schedule) String() string {
	texts := make([]string, 0, len(Fields))
	for _, f := range Fields {
		texts = append(texts, s.Field(f).Text)
	}
	return strings.Join(texts, " ")
}

// ParseSchedule compiles exactly five whitespace separated time fields.
func ParseSchedule(spec string) (*Schedule, error) {
	toks := strings.Fields(spec)
	if len(toks) != len(Fields) {
		return nil, fmt.Errorf("schedule %q: expected %d fields, got %d", spec, len(Fields), len(toks))
	}
	return compileFields(toks)
}

func compileFields(toks []string) (*Schedule, error) {
	sched := &Schedule{}
	for i, f := range Fields {
		if len(toks[i]) > maxFieldLen {
			return nil, &FieldError{Field: f, Err: ErrFieldTooLong}
		}
		spec, err := f.Compile(toks[i])
		if err != nil {
			return nil, err
		}
		*sched.Field(f) = spec
	}
	return sched, nil
}

// Entry is one parsed schedule line: when to run and what to run.
type Entry struct {
	Schedule *Schedule
	// Command is the raw text after the fifth field. It is tokenized on
	// every fire.
	Command string
}

// ParseLine splits a schedule line into its five time fields and the trailing
// command, then compiles the fields. Fields may be separated by runs of
// spaces.
func ParseLine(line string) (*Entry, error) {
	line = strings.TrimRight(line, "\r\n")

	toks := make([]string, 0, len(Fields))
	pos := 0
	for len(toks) < len(Fields) {
		for pos < len(line) && line[pos] == ' ' {
			pos++
		}
		end := pos
		for end < len(line) && line[end] != ' ' {
			end++
		}
		if end == pos {
			return nil, fmt.Errorf("%w: found %d", ErrTooFewFields, len(toks))
		}
		toks = append(toks, line[pos:end])
		pos = end
	}

	sched, err := compileFields(toks)
	if err != nil {
		return nil, err
	}

	command := strings.TrimLeft(line[pos:], " ")
	switch {
	case strings.TrimSpace(command) == "":
		return nil, ErrEmptyCommand
	case len(command) > MaxCommandLen:
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrCommandTooLong, len(command), MaxCommandLen)
	}

	return &Entry{Schedule: sched, Command: command}, nil
}
