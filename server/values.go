package server

import (
	"strconv"

	"github.com/vimeh/gridcore/engine"
	"github.com/vimeh/gridcore/grid"
)

// displayValue renders a cell's computed value the way a client should
// show it.
func displayValue(v grid.Value) string {
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

// displaySnapshot mirrors displayValue for the event-payload copy of a
// value, whose Kind is a bare int rather than grid.Kind.
func displaySnapshot(v engine.ValueSnapshot) string {
	switch grid.Kind(v.Kind) {
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
