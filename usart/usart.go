// Package usart is an interrupt-driven, non-blocking low-level driver for the
// STM32 USARTv1 peripheral. A LowLevel engine runs at most one read and one
// write transfer at a time, moves every character from its interrupt handler
// and reports progress to a Sink. Buffering, blocking and retry policy belong
// to the consumer (see package serial).
package usart

import "strconv"

// Parity defines the parity setting used for UART communication.
type Parity uint8

const (
	// ParityNone disables parity generation and checking.
	ParityNone Parity = iota
	// ParityEven sets even parity (total number of 1 bits is even).
	ParityEven
	// ParityOdd sets odd parity (total number of 1 bits is odd).
	ParityOdd
)

func (p Parity) String() string {
	switch p {
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	default:
		return "none"
	}
}

// StopBits selects the number of stop bits.
type StopBits uint8

const (
	StopBits1 StopBits = iota
	StopBits2
)

func (s StopBits) String() string {
	if s == StopBits2 {
		return "2"
	}
	return "1"
}

// Character length limits of USARTv1, in bits, parity included.
const (
	MinCharacterLength = 7
	MaxCharacterLength = 9
)

// Format is a character frame: data bits, parity and stop bits.
type Format struct {
	DataBits uint8
	Parity   Parity
	StopBits StopBits
}

// Format8N1 is the usual 8 data bits, no parity, one stop bit.
var Format8N1 = Format{DataBits: 8, Parity: ParityNone, StopBits: StopBits1}

// RealLength is the frame width the hardware sees: parity occupies a data bit
// position.
func (f Format) RealLength() int {
	if f.Parity != ParityNone {
		return int(f.DataBits) + 1
	}
	return int(f.DataBits)
}

func (f Format) String() string {
	p := byte('N')
	switch f.Parity {
	case ParityEven:
		p = 'E'
	case ParityOdd:
		p = 'O'
	}
	return strconv.Itoa(int(f.DataBits)) + string(p) + strconv.Itoa(int(f.StopBits)+1)
}

// ParseFormat parses the "8N1" notation produced by Format.String. It checks
// the syntax only; Start decides whether the hardware can do it.
func ParseFormat(s string) (Format, error) {
	if len(s) != 3 || s[0] < '0' || s[0] > '9' {
		return Format{}, newError(ErrInvalidFormat, "parse", s)
	}
	f := Format{DataBits: s[0] - '0'}
	switch s[1] {
	case 'N', 'n':
		f.Parity = ParityNone
	case 'E', 'e':
		f.Parity = ParityEven
	case 'O', 'o':
		f.Parity = ParityOdd
	default:
		return Format{}, newError(ErrInvalidFormat, "parse", s)
	}
	switch s[2] {
	case '1':
		f.StopBits = StopBits1
	case '2':
		f.StopBits = StopBits2
	default:
		return Format{}, newError(ErrInvalidFormat, "parse", s)
	}
	return f, nil
}

// Sink receives the events of a started LowLevel. Every method is called from
// interrupt context, except TransmitStartEvent which runs in the context that
// called StartWrite. Implementations must not block.
type Sink interface {
	// ReceiveErrorEvent reports line errors of the character just stored.
	ReceiveErrorEvent(errs ErrorSet)
	// ReadCompleteEvent reports that the read buffer is full; n bytes were stored.
	ReadCompleteEvent(n int)
	// WriteCompleteEvent reports that n bytes were handed to the transmitter.
	WriteCompleteEvent(n int)
	// TransmitStartEvent reports that an idle line is about to become busy.
	TransmitStartEvent()
	// TransmitCompleteEvent reports that the last bit left the shift register.
	TransmitCompleteEvent()
}
