package eval

import (
	"strconv"
	"strings"

	"github.com/vimeh/gridcore/grid"
)

// errCode extracts the leading error code from a descriptive error string
// such as "#N/A! UPPER requires exactly 1 argument", so that two errors of
// the same kind compare equal regardless of their message suffix.
func errCode(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

// errValue builds an error Value whose Err carries the full descriptive
// text (code, optionally followed by a message).
func errValue(code string, message string) grid.Value {
	if message == "" {
		return grid.Err(code)
	}
	return grid.Err(code + " " + message)
}

// BareError strips any message suffix, leaving only the symbolic code, as
// required for the value a listener observes in Computed.
func BareError(v grid.Value) grid.Value {
	if !v.IsError() {
		return v
	}
	return grid.Err(errCode(v.Err))
}

// sameErrorCode reports whether two error values carry the same symbolic
// code; errors compare equal only to themselves by exact code match.
func sameErrorCode(a, b grid.Value) bool {
	return a.IsError() && b.IsError() && errCode(a.Err) == errCode(b.Err)
}

// coerceLoose implements the use-site numeric coercion of §4.4: number to
// itself, boolean to 0 or 1, text via parseNumberOrZero, empty to 0.
func coerceLoose(v grid.Value) float64 {
	switch v.Kind {
	case grid.KindNumber:
		return v.Number
	case grid.KindBoolean:
		if v.Boolean {
			return 1
		}
		return 0
	case grid.KindText:
		return parseNumberOrZero(v.Text)
	default:
		return 0
	}
}

// coerceStrict reports whether v coerces to a number "cleanly": always for
// number/boolean/empty, and for text only when the entire string is a valid
// numeral.
func coerceStrict(v grid.Value) (float64, bool) {
	switch v.Kind {
	case grid.KindNumber:
		return v.Number, true
	case grid.KindBoolean:
		if v.Boolean {
			return 1, true
		}
		return 0, true
	case grid.KindEmpty:
		return 0, true
	case grid.KindText:
		n, ok := parseNumberStrict(v.Text)
		return n, ok
	default:
		return 0, false
	}
}

// parseNumberOrZero parses text that, once surrounding whitespace is
// trimmed, consists entirely of an optional sign, digits, and an optional
// decimal portion; any other text (including a numeral followed by other
// characters) yields 0.
func parseNumberOrZero(s string) float64 {
	s = strings.TrimSpace(s)
	n, ok := parseNumberStrict(s)
	if ok {
		return n
	}
	return 0
}

// parseNumberStrict reports whether the entirety of s is a valid numeral
// (optional sign, digits, optional decimal part).
func parseNumberStrict(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	i, digits := 0, 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		digits++
	}
	if i < len(s) && s[i] == '.' {
		for i++; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
			digits++
		}
	}
	if digits == 0 || i != len(s) {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// toBool coerces v to a boolean truth value for use in logical contexts.
func toBool(v grid.Value) bool {
	if v.Kind == grid.KindBoolean {
		return v.Boolean
	}
	return coerceLoose(v) != 0
}

// toText renders v for string concatenation and text-producing builtins.
func toText(v grid.Value) string {
	switch v.Kind {
	case grid.KindText:
		return v.Text
	case grid.KindNumber:
		return formatNumber(v.Number)
	case grid.KindBoolean:
		if v.Boolean {
			return "TRUE"
		}
		return "FALSE"
	case grid.KindError:
		return v.Err
	default:
		return ""
	}
}

// formatNumber renders a float without a trailing ".0" for whole numbers,
// matching typical spreadsheet cell display.
func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// rawEqual implements raw (non-numeric) equality: same kind and same
// underlying representation. Values of different kinds are never raw-equal.
func rawEqual(a, b grid.Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case grid.KindNumber:
		return a.Number == b.Number
	case grid.KindText:
		return a.Text == b.Text
	case grid.KindBoolean:
		return a.Boolean == b.Boolean
	case grid.KindEmpty:
		return true
	case grid.KindError:
		return errCode(a.Err) == errCode(b.Err)
	default:
		return false
	}
}

// isNumericCell reports whether a value contributes to a numeric
// aggregation, and the number it contributes: numbers count, and so does
// text that parses cleanly as a numeral (literal cells are stored as text);
// other text, booleans, empty values and errors are skipped.
func isNumericCell(v grid.Value) (float64, bool) {
	switch v.Kind {
	case grid.KindNumber:
		return v.Number, true
	case grid.KindText:
		return parseNumberStrict(v.Text)
	default:
		return 0, false
	}
}
