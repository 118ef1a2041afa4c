package minicron

// maxDigits bounds a digit run so the accumulated value can never overflow an int.
const maxDigits = 9

// number is the outcome of scanning a digit run. OK is false when the run is
// empty or longer than maxDigits, so a literal 0 never needs a second look at
// the source text.
type number struct {
	Value  int
	Digits int
	OK     bool
}

// scanNumber consumes the digit run of s starting at pos and returns it along
// with the index of the first byte after the run.
func scanNumber(s string, pos int) (number, int) {
	var n number
	end := pos
	for end < len(s) && isDigit(s[end]) {
		if n.Digits < maxDigits {
			n.Value = n.Value*10 + int(s[end]-'0')
		}
		n.Digits++
		end++
	}
	n.OK = n.Digits > 0 && n.Digits <= maxDigits
	if !n.OK {
		n.Value = 0
	}
	return n, end
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }
