package pivot

import (
	"strconv"
	"strings"

	"github.com/vimeh/gridcore/grid"
)

// pivotText renders a cell value as the text used for grouping keys,
// filter matching, and header labels.
func pivotText(v grid.Value) string {
	switch v.Kind {
	case grid.KindNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case grid.KindText:
		return v.Text
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

// numericCoercible reports whether v belongs in a value field's numeric
// stream: numbers and booleans always do, text only if it parses as a
// clean numeral. Empty cells deliberately do NOT coerce here, unlike the
// evaluator's use-site rule (empty -> 0): a pivot stream needs to tell a
// blank cell apart from a present zero so that an all-blank group falls
// through to the aggregator's own empty-stream rule instead of silently
// participating as a zero.
func numericCoercible(v grid.Value) (float64, bool) {
	switch v.Kind {
	case grid.KindNumber:
		return v.Number, true
	case grid.KindBoolean:
		if v.Boolean {
			return 1, true
		}
		return 0, true
	case grid.KindText:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// aggregate applies spec's aggregator to the raw values collected for one
// (rowKey, columnKey, valueField) cell.
func aggregate(spec ValueField, values []grid.Value) float64 {
	switch spec.Aggregator {
	case Sum:
		sum := 0.0
		for _, v := range values {
			if n, ok := numericCoercible(v); ok {
				sum += n
			}
		}
		return sum
	case Average:
		sum, count := 0.0, 0
		for _, v := range values {
			if n, ok := numericCoercible(v); ok {
				sum += n
				count++
			}
		}
		if count == 0 {
			return 0
		}
		return sum / float64(count)
	case Count:
		count := 0
		for _, v := range values {
			if _, ok := numericCoercible(v); ok {
				count++
			}
		}
		return float64(count)
	case CountA:
		count := 0
		for _, v := range values {
			if v.Kind != grid.KindEmpty {
				count++
			}
		}
		return float64(count)
	case Min:
		min, any := 0.0, false
		for _, v := range values {
			if n, ok := numericCoercible(v); ok {
				if !any || n < min {
					min = n
				}
				any = true
			}
		}
		return min
	case Max:
		max, any := 0.0, false
		for _, v := range values {
			if n, ok := numericCoercible(v); ok {
				if !any || n > max {
					max = n
				}
				any = true
			}
		}
		return max
	case Product:
		product := 1.0
		for _, v := range values {
			if n, ok := numericCoercible(v); ok {
				product *= n
			}
		}
		return product
	default:
		return 0
	}
}
