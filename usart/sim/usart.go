package sim

import "github.com/jangala-dev/tinygo-stm32usart/usart"

const rxErrors = usart.SR_FE | usart.SR_NF | usart.SR_ORE | usart.SR_PE

// USART is a simulated USARTv1 register block. It implements usart.Registers.
//
// The transmitter has a holding register (DR writes) and a shift register;
// Step moves one character out of the shifter per call. A written character
// goes straight to an idle shifter, which sets TXE again at once, as on the
// real peripheral.
type USART struct {
	chip *Chip
	name string
	base uintptr
	irq  int

	enableReg uintptr
	enableBit uint8
	resetReg  uintptr
	resetBit  uint8

	// registers, guarded by chip.mu
	sr, brr, cr1, cr2 uint32
	rdr               uint32
	tdr               uint32
	tdrFull           bool
	shifter           uint32
	shifting          bool

	wire    []uint16
	peer    *USART
	resets  int
	dropped int
}

func (u *USART) resetLocked() {
	u.sr = usart.ResetSR
	u.brr, u.cr1, u.cr2 = 0, 0, 0
	u.rdr, u.tdr, u.shifter = 0, 0, 0
	u.tdrFull, u.shifting = false, false
}

func (u *USART) clockedLocked() bool {
	return u.chip.words[u.enableReg]&(1<<u.enableBit) != 0
}

func (u *USART) Name() string { return u.name }

func (u *USART) SR() uint32 {
	u.chip.mu.Lock()
	defer u.chip.mu.Unlock()
	if !u.clockedLocked() {
		return 0
	}
	return u.sr
}

// DR returns the received character and clears RXNE and the error flags.
func (u *USART) DR() uint32 {
	u.chip.mu.Lock()
	defer u.chip.mu.Unlock()
	if !u.clockedLocked() {
		return 0
	}
	u.sr &^= usart.SR_RXNE | rxErrors
	return u.rdr
}

// SetDR queues a character for transmission and clears TXE and TC.
func (u *USART) SetDR(v uint32) {
	u.chip.mu.Lock()
	defer u.chip.mu.Unlock()
	if !u.clockedLocked() || u.cr1&usart.CR1_UE == 0 || u.cr1&usart.CR1_TE == 0 {
		return
	}
	u.tdr = v & u.charMaskLocked()
	u.tdrFull = true
	u.sr &^= usart.SR_TXE | usart.SR_TC
	u.loadShifterLocked()
}

func (u *USART) loadShifterLocked() {
	if u.shifting || !u.tdrFull {
		return
	}
	u.shifter, u.shifting = u.tdr, true
	u.tdrFull = false
	u.sr |= usart.SR_TXE
}

func (u *USART) charMaskLocked() uint32 {
	if u.cr1&usart.CR1_M != 0 {
		return 0x1FF
	}
	return 0xFF
}

func (u *USART) BRR() uint32 { return u.read(&u.brr) }
func (u *USART) CR1() uint32 { return u.read(&u.cr1) }
func (u *USART) CR2() uint32 { return u.read(&u.cr2) }

func (u *USART) SetBRR(v uint32) { u.write(&u.brr, v) }
func (u *USART) SetCR2(v uint32) { u.write(&u.cr2, v) }

// SetCR1 writes CR1. Enabling an interrupt source may dispatch the handler.
func (u *USART) SetCR1(v uint32) {
	u.write(&u.cr1, v)
	u.chip.Core.Raise()
}

func (u *USART) read(r *uint32) uint32 {
	u.chip.mu.Lock()
	defer u.chip.mu.Unlock()
	if !u.clockedLocked() {
		return 0
	}
	return *r
}

func (u *USART) write(r *uint32, v uint32) {
	u.chip.mu.Lock()
	defer u.chip.mu.Unlock()
	if u.clockedLocked() {
		*r = v
	}
}

// Receive puts a character on the RX line, flagged with errs. A character
// arriving while RXNE is still set is lost and sets ORE. Characters reaching a
// disabled receiver are dropped.
func (u *USART) Receive(c uint16, errs usart.ErrorSet) {
	u.receive(c, errs)
	u.chip.Core.Raise()
}

func (u *USART) receive(c uint16, errs usart.ErrorSet) {
	u.chip.mu.Lock()
	defer u.chip.mu.Unlock()
	if !u.clockedLocked() || u.cr1&usart.CR1_UE == 0 || u.cr1&usart.CR1_RE == 0 {
		u.dropped++
		return
	}
	if u.sr&usart.SR_RXNE != 0 {
		u.sr |= usart.SR_ORE
		u.dropped++
		return
	}
	u.rdr = uint32(c) & u.charMaskLocked()
	u.sr |= usart.SR_RXNE | errs.Bits()
}

// Step shifts one character out, refills the shifter from the holding
// register and sets TC once both are empty.
func (u *USART) Step() {
	u.step()
	u.chip.Core.Raise()
}

func (u *USART) step() {
	u.chip.mu.Lock()
	var out uint16
	sent := false
	if u.shifting {
		out, sent = uint16(u.shifter), true
		u.shifting = false
		u.wire = append(u.wire, out)
	}
	u.loadShifterLocked()
	if !u.shifting && !u.tdrFull && u.clockedLocked() {
		u.sr |= usart.SR_TC
	}
	peer := u.peer
	u.chip.mu.Unlock()

	if sent && peer != nil {
		peer.receive(out, usart.ErrorSet{})
	}
}

// Connect wires this transmitter to the receiver of peer (which may be u).
// Both blocks must belong to the same chip.
func (u *USART) Connect(peer *USART) {
	u.chip.mu.Lock()
	u.peer = peer
	u.chip.mu.Unlock()
}

// Wire returns the characters transmitted so far.
func (u *USART) Wire() []uint16 {
	u.chip.mu.Lock()
	defer u.chip.mu.Unlock()
	return append([]uint16(nil), u.wire...)
}

// ClearWire forgets the transmitted characters.
func (u *USART) ClearWire() {
	u.chip.mu.Lock()
	u.wire = nil
	u.chip.mu.Unlock()
}

// Idle reports that nothing is waiting in or being shifted out of the
// transmitter.
func (u *USART) Idle() bool {
	u.chip.mu.Lock()
	defer u.chip.mu.Unlock()
	return !u.shifting && !u.tdrFull
}

// Clocked reports the RCC enable bit of the block.
func (u *USART) Clocked() bool {
	u.chip.mu.Lock()
	defer u.chip.mu.Unlock()
	return u.clockedLocked()
}

// Resets counts RCC reset pulses seen by the block.
func (u *USART) Resets() int {
	u.chip.mu.Lock()
	defer u.chip.mu.Unlock()
	return u.resets
}

// Dropped counts received characters that were lost.
func (u *USART) Dropped() int {
	u.chip.mu.Lock()
	defer u.chip.mu.Unlock()
	return u.dropped
}

// Drain steps the chip until this transmitter is idle with TC set, or max
// steps passed. It returns the number of steps taken.
func (u *USART) Drain(max int) int {
	n := 0
	for n < max && !(u.Idle() && u.SR()&usart.SR_TC != 0) {
		u.chip.Step()
		n++
	}
	return n
}
