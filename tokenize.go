package minicron

const (
	// MaxArgs bounds the argv built from a command, the executable included.
	MaxArgs = 127
	// MaxArgLen bounds a single argument in bytes.
	MaxArgLen = 255
)

// Tokenize splits a command into argv. Tokens are separated by runs of
// spaces. A token that starts with a double or single quote runs to the
// matching quote and keeps everything in between verbatim, including spaces
// and the other quote character. There are no escapes.
func Tokenize(command string) ([]string, error) {
	var args []string
	pos := 0
	for {
		for pos < len(command) && command[pos] == ' ' {
			pos++
		}
		if pos == len(command) {
			break
		}

		start := pos
		var tok string
		switch sep := command[pos]; sep {
		case '"', '\'':
			end := pos + 1
			for end < len(command) && command[end] != sep {
				end++
			}
			if end == len(command) {
				return nil, &TokenizeError{Command: command, Pos: start, Reason: ErrUnterminatedQuote}
			}
			tok = command[pos+1 : end]
			pos = end + 1
		default:
			end := pos
			for end < len(command) && command[end] != ' ' {
				end++
			}
			tok = command[pos:end]
			pos = end
		}

		if len(tok) > MaxArgLen {
			return nil, &TokenizeError{Command: command, Pos: start, Reason: ErrArgTooLong}
		}
		if len(args) == MaxArgs {
			return nil, &TokenizeError{Command: command, Pos: start, Reason: ErrTooManyArgs}
		}
		args = append(args, tok)
	}

	if len(args) == 0 {
		return nil, &TokenizeError{Command: command, Reason: ErrEmptyCommand}
	}
	return args, nil
}
