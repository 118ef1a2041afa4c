package minicron

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	t.Run("daily at 04:30", func(t *testing.T) {
		entry, err := ParseLine("30 4 * * * /usr/bin/backup --all\n")
		require.NoError(t, err)
		assert.Equal(t, "/usr/bin/backup --all", entry.Command)
		assert.Equal(t, []int{30}, marked(entry.Schedule.Minute))
		assert.Equal(t, []int{4}, marked(entry.Schedule.Hour))
		assert.Equal(t, "30 4 * * *", entry.Schedule.String())
	})

	t.Run("runs of spaces separate fields", func(t *testing.T) {
		entry, err := ParseLine("  */5   *  1-15 *    2,4   echo  hi\r\n")
		require.NoError(t, err)
		assert.Equal(t, "*/5 * 1-15 * 2,4", entry.Schedule.String())
		assert.Equal(t, "echo  hi", entry.Command, "command text is kept verbatim")
	})

	t.Run("quoted command is not tokenized yet", func(t *testing.T) {
		entry, err := ParseLine(`* * * * * echo "a b`)
		require.NoError(t, err)
		assert.Equal(t, `echo "a b`, entry.Command)
	})

	t.Run("too few fields", func(t *testing.T) {
		for _, line := range []string{"", "* * *", "* * * *  "} {
			_, err := ParseLine(line)
			assert.ErrorIs(t, err, ErrTooFewFields, line)
		}
	})

	t.Run("empty command", func(t *testing.T) {
		for _, line := range []string{"* * * * *", "* * * * *    ", "* * * * *\n"} {
			_, err := ParseLine(line)
			assert.ErrorIs(t, err, ErrEmptyCommand, line)
		}
	})

	t.Run("command too long", func(t *testing.T) {
		_, err := ParseLine("* * * * * " + strings.Repeat("x", MaxCommandLen+1))
		assert.ErrorIs(t, err, ErrCommandTooLong)

		_, err = ParseLine("* * * * * " + strings.Repeat("x", MaxCommandLen))
		assert.NoError(t, err)
	})

	t.Run("field too long", func(t *testing.T) {
		_, err := ParseLine(strings.Repeat("1,", 20) + "1 * * * * true")
		assert.ErrorIs(t, err, ErrFieldTooLong)
	})

	t.Run("bad field names the field", func(t *testing.T) {
		_, err := ParseLine("* 25 * * * true")
		var ferr *FieldError
		require.ErrorAs(t, err, &ferr)
		assert.Equal(t, Hour, ferr.Field)
		assert.ErrorIs(t, err, ErrOutOfRange)

		_, err = ParseLine("* * * 1- * true")
		require.ErrorAs(t, err, &ferr)
		assert.Equal(t, Month, ferr.Field)
		assert.ErrorIs(t, err, ErrDanglingRange)
	})
}

func TestParseSchedule(t *testing.T) {
	sched, err := ParseSchedule("0 12 * * 2-6")
	require.NoError(t, err)
	assert.Equal(t, "0 12 * * 2-6", sched.String())
	assert.Equal(t, span(2, 6), marked(sched.DayOfWeek))

	_, err = ParseSchedule("0 12 * *")
	assert.Error(t, err)

	_, err = ParseSchedule("0 12 * * * true")
	assert.Error(t, err)

	assert.Nil(t, sched.Field(NoField))
}
