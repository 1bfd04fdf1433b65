package usart

import (
	"strconv"

	"github.com/jangala-dev/tinygo-stm32usart/internal/mathx"
)

// Timing is a baud rate divider split the way BRR holds it.
type Timing struct {
	Frequency uint32
	Divider   uint32
	Over8     bool
	Mantissa  uint32
	Fraction  uint32
}

// ComputeTiming derives the BRR fields for baud from a peripheral clock of
// freq Hz. With over8 the 8x oversampling mode is chosen when the divider is
// below 16. The divider is rounded to the nearest integer, so the achieved
// rate can differ from the requested one.
func ComputeTiming(freq, baud uint32, over8 bool) (Timing, error) {
	if baud == 0 {
		return Timing{}, newError(ErrInvalidBaudRate, "start", "zero baud rate")
	}
	// 64-bit so that freq + baud/2 cannot wrap; the result never exceeds freq.
	div := uint32(mathx.RoundDiv(uint64(freq), uint64(baud)))
	t := Timing{Frequency: freq, Divider: div, Over8: over8 && div < 16}
	base := uint32(16)
	if t.Over8 {
		base = 8
	}
	t.Mantissa = t.Divider / base
	t.Fraction = t.Divider % base
	if t.Mantissa == 0 || t.Mantissa > maxMantissa {
		return Timing{}, newError(ErrInvalidBaudRate, "start",
			strconv.FormatUint(uint64(baud), 10)+" Bd unreachable from "+strconv.FormatUint(uint64(freq), 10)+" Hz")
	}
	return t, nil
}

// BRR is the baud rate register value.
func (t Timing) BRR() uint32 {
	return t.Mantissa<<BRR_Mantissa_Pos | t.Fraction<<BRR_Fraction_Pos
}

// Achieved is the baud rate the divider really produces.
func (t Timing) Achieved() uint32 {
	if t.Divider == 0 {
		return 0
	}
	return t.Frequency / t.Divider
}
