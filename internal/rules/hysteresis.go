package rules

type Decision int

const (
	Hold Decision = iota
	Rise
	Fall
)

func (d Decision) String() string {
	switch d {
	case Rise:
		return "rise"
	case Fall:
		return "fall"
	default:
		return "hold"
	}
}

// Decide classifies current against reference with a dead band on both sides.
// Rise is checked first, so with a zero band equality counts as Rise.
func Decide(current, reference, band float64) Decision {
	if band < 0 {
		band = 0
	}
	if current >= reference+band {
		return Rise
	}
	if current <= reference-band {
		return Fall
	}
	return Hold
}
