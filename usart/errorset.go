package usart

// ErrorSet holds the receive errors flagged for one character.
type ErrorSet struct {
	Framing bool
	Noise   bool
	Overrun bool
	Parity  bool
}

// DecodeErrors maps an SR snapshot to an ErrorSet.
func DecodeErrors(sr uint32) ErrorSet {
	return ErrorSet{
		Framing: sr&SR_FE != 0,
		Noise:   sr&SR_NF != 0,
		Overrun: sr&SR_ORE != 0,
		Parity:  sr&SR_PE != 0,
	}
}

// Any reports whether at least one error is set.
func (e ErrorSet) Any() bool { return e.Framing || e.Noise || e.Overrun || e.Parity }

// Bits is the inverse of DecodeErrors.
func (e ErrorSet) Bits() uint32 {
	var sr uint32
	if e.Framing {
		sr |= SR_FE
	}
	if e.Noise {
		sr |= SR_NF
	}
	if e.Overrun {
		sr |= SR_ORE
	}
	if e.Parity {
		sr |= SR_PE
	}
	return sr
}

func (e ErrorSet) String() string {
	if !e.Any() {
		return "none"
	}
	s := ""
	add := func(on bool, name string) {
		if !on {
			return
		}
		if s != "" {
			s += "|"
		}
		s += name
	}
	add(e.Framing, "framing")
	add(e.Noise, "noise")
	add(e.Overrun, "overrun")
	add(e.Parity, "parity")
	return s
}
