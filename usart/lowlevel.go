package usart

import "github.com/jangala-dev/tinygo-stm32usart/internal/mathx"

// ReadState is the receive side of a started LowLevel.
type ReadState uint8

const (
	ReadIdle ReadState = iota
	ReadActive
)

func (s ReadState) String() string {
	if s == ReadActive {
		return "active"
	}
	return "idle"
}

// WriteState is the transmit side of a started LowLevel. WriteDraining means
// the buffer was handed over and the last character is still being shifted
// out.
type WriteState uint8

const (
	WriteIdle WriteState = iota
	WriteActive
	WriteDraining
)

func (s WriteState) String() string {
	switch s {
	case WriteActive:
		return "active"
	case WriteDraining:
		return "draining"
	default:
		return "idle"
	}
}

// transfer is the descriptor of one direction. The task side fills it in
// before it sets the interrupt enable bit; from then on only the interrupt
// handler moves pos, until it clears the descriptor and reports completion.
type transfer struct {
	active bool
	buf    []byte
	pos    int
}

// LowLevel is the transfer engine of one USART. One read and one write may be
// in progress at the same time; characters move only in HandleInterrupt.
//
// Task-context calls on one LowLevel must be serialised by the caller.
type LowLevel struct {
	p    *Peripheral
	sink Sink // non-nil exactly while started

	rx transfer
	tx transfer

	stats Stats
}

// New returns an engine for p. The engine does not own p.
func New(p *Peripheral) *LowLevel {
	return &LowLevel{p: p}
}

// Peripheral returns the descriptor driven by l.
func (l *LowLevel) Peripheral() *Peripheral { return l.p }

// Started reports whether Start succeeded and Stop has not been called since.
func (l *LowLevel) Started() bool { return l.sink != nil }

// Reading reports whether a read is in progress.
func (l *LowLevel) Reading() bool { return l.rx.active }

// Writing reports whether a write is in progress. A draining line is not
// writing.
func (l *LowLevel) Writing() bool { return l.tx.active }

// ReadState reports the receive side.
func (l *LowLevel) ReadState() ReadState {
	if l.rx.active {
		return ReadActive
	}
	return ReadIdle
}

// WriteState reports the transmit side. Draining is read back from TCIE, so it
// cannot disagree with the hardware.
func (l *LowLevel) WriteState() WriteState {
	switch {
	case l.tx.active:
		return WriteActive
	case l.sink != nil && l.p.tcie.Get():
		return WriteDraining
	default:
		return WriteIdle
	}
}

// Start powers up and configures the peripheral and enables its interrupt
// line. It returns the achieved baud rate, which can differ from baud because
// the divider is rounded.
func (l *LowLevel) Start(sink Sink, baud uint32, f Format) (uint32, error) {
	if l.sink != nil {
		return 0, newError(ErrAlreadyStarted, "start", l.p.name)
	}
	if sink == nil {
		return 0, newError(ErrInvalidArgument, "start", "nil sink")
	}
	t, err := ComputeTiming(l.p.frequency, baud, l.p.over8)
	if err != nil {
		return 0, err
	}
	// The lower bound is one above the hardware minimum.
	length := f.RealLength()
	if !mathx.Between(length, MinCharacterLength+1, MaxCharacterLength) || f.StopBits > StopBits2 {
		return 0, newError(ErrInvalidFormat, "start", f.String())
	}

	l.p.EnableClock(true)
	l.p.Reset()
	l.p.ConfigureInterruptPriority()
	l.sink = sink

	regs := l.p.regs
	regs.SetBRR(t.BRR())
	var cr2 uint32
	if f.StopBits == StopBits2 {
		cr2 = 1 << CR2_STOP_1_Pos
	}
	regs.SetCR2(cr2)
	cr1 := uint32(CR1_RE | CR1_TE | CR1_UE)
	if t.Over8 {
		cr1 |= CR1_OVER8
	}
	if length == MaxCharacterLength {
		cr1 |= CR1_M
	}
	if f.Parity != ParityNone {
		cr1 |= CR1_PCE
	}
	if f.Parity == ParityOdd {
		cr1 |= CR1_PS
	}
	regs.SetCR1(cr1)
	l.p.EnableInterrupt(true)
	return t.Achieved(), nil
}

// StartRead arms reception into buf. Characters are stored by the interrupt
// handler; ReadCompleteEvent fires once buf is full. In 9-bit format every
// character takes two bytes (low, high) so len(buf) must be even. buf must
// stay untouched until completion or StopRead.
func (l *LowLevel) StartRead(buf []byte) error {
	if len(buf) == 0 {
		return newError(ErrInvalidArgument, "read", "empty buffer")
	}
	if l.sink == nil {
		return newError(ErrNotStarted, "read", l.p.name)
	}
	if l.rx.active {
		return newError(ErrBusy, "read", l.p.name)
	}
	if l.p.Is9BitFormatEnabled() && len(buf)%2 != 0 {
		return newError(ErrInvalidArgument, "read", "odd size in 9-bit format")
	}

	l.rx = transfer{active: true, buf: buf}
	l.p.EnableRxneInterrupt(true)
	return nil
}

// StartWrite arms transmission of buf. If the line is idle, TransmitStartEvent
// is delivered before the first character is taken. buf must stay untouched
// until completion or StopWrite.
func (l *LowLevel) StartWrite(buf []byte) error {
	if len(buf) == 0 {
		return newError(ErrInvalidArgument, "write", "empty buffer")
	}
	if l.sink == nil {
		return newError(ErrNotStarted, "write", l.p.name)
	}
	if l.tx.active {
		return newError(ErrBusy, "write", l.p.name)
	}
	if l.p.Is9BitFormatEnabled() && len(buf)%2 != 0 {
		return newError(ErrInvalidArgument, "write", "odd size in 9-bit format")
	}

	l.tx = transfer{active: true, buf: buf}
	// A drain notification of the previous write is superseded by this one.
	l.p.EnableTcInterrupt(false)

	// Once TXE starts being serviced there is no other edge telling the
	// consumer that the line went from idle to busy.
	if l.p.regs.SR()&SR_TC != 0 {
		l.sink.TransmitStartEvent()
	}

	l.p.EnableTxeInterrupt(true)
	return nil
}

// StopRead cancels the read in progress and returns the number of bytes
// stored so far. It returns 0 when no read is in progress.
func (l *LowLevel) StopRead() int {
	if !l.rx.active {
		return 0
	}
	l.p.EnableRxneInterrupt(false)
	n := l.rx.pos
	l.rx = transfer{}
	return n
}

// StopWrite cancels the write in progress and returns the number of bytes
// handed to the transmitter so far. TransmitCompleteEvent still follows once
// the line is idle. It returns 0 when no write is in progress.
func (l *LowLevel) StopWrite() int {
	if !l.tx.active {
		return 0
	}
	l.p.EnableTxeInterrupt(false)
	l.p.EnableTcInterrupt(true)
	n := l.tx.pos
	l.tx = transfer{}
	return n
}

// Stop disables the interrupt line, resets the peripheral and gates its
// clock. Both directions must be stopped first.
func (l *LowLevel) Stop() error {
	if l.sink == nil {
		return newError(ErrNotStarted, "stop", l.p.name)
	}
	if l.rx.active || l.tx.active {
		return newError(ErrBusy, "stop", l.p.name)
	}
	l.teardown()
	return nil
}

// Close tears the peripheral down like Stop, without the busy check. Transfers
// in progress are dropped without events.
func (l *LowLevel) Close() {
	if l.sink == nil {
		return
	}
	l.teardown()
	l.rx = transfer{}
	l.tx = transfer{}
}

func (l *LowLevel) teardown() {
	l.p.EnableInterrupt(false)
	l.p.Reset()
	l.p.EnableClock(false)
	l.sink = nil
}

// HandleInterrupt services the USART interrupt. It must be installed as the
// handler of the peripheral's IRQ and is never called by the application.
//
// One pending condition is served per iteration, receive before transmit
// before transmit-complete. Every branch either clears its flag in hardware
// or disables its enable bit, so the loop ends.
func (l *LowLevel) HandleInterrupt() {
	regs := l.p.regs
	nineBit := l.p.Is9BitFormatEnabled()
	l.dbgISR()
	for {
		sr := regs.SR()
		pending := sr & regs.CR1() & watched
		if pending == 0 {
			return
		}
		switch {
		case pending&SR_RXNE != 0:
			l.receive(sr, nineBit)
		case pending&SR_TXE != 0:
			l.transmit(nineBit)
		default:
			l.p.EnableTcInterrupt(false)
			l.dbgEvent(evTransmitComplete)
			l.sink.TransmitCompleteEvent()
		}
	}
}

// receive stores one character. sr is the status snapshot taken with it, so
// its error flags belong to this character.
func (l *LowLevel) receive(sr uint32, nineBit bool) {
	c := l.p.regs.DR() // acknowledges RXNE and the error flags
	if !l.rx.active {
		l.p.EnableRxneInterrupt(false)
		return
	}
	buf, pos := l.rx.buf, l.rx.pos
	buf[pos] = byte(c)
	pos++
	if nineBit {
		buf[pos] = byte(c >> 8)
		pos++
	}
	l.rx.pos = pos
	l.dbgRx(sr)

	if sr&SR_ERRORS != 0 {
		l.sink.ReceiveErrorEvent(DecodeErrors(sr))
	}
	if l.rx.active && l.rx.pos == len(l.rx.buf) {
		n := l.StopRead()
		l.dbgEvent(evReadComplete)
		l.sink.ReadCompleteEvent(n)
	}
}

// transmit hands the next character to DR, which clears TXE.
func (l *LowLevel) transmit(nineBit bool) {
	if !l.tx.active {
		l.p.EnableTxeInterrupt(false)
		return
	}
	buf, pos := l.tx.buf, l.tx.pos
	c := uint32(buf[pos])
	pos++
	if nineBit {
		c |= uint32(buf[pos]) << 8
		pos++
	}
	l.tx.pos = pos
	l.p.regs.SetDR(c)
	l.dbgTx()

	if pos == len(buf) {
		n := l.StopWrite()
		l.dbgEvent(evWriteComplete)
		l.sink.WriteCompleteEvent(n)
	}
}
