//go:build stm32f4

package usart

import (
	"device/arm"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"
)

// MMIO is the Platform of the chip the program runs on.
var MMIO Platform = mmio{}

type mmio struct{}

func (mmio) Registers(base uintptr) Registers {
	return (*mmioRegs)(unsafe.Pointer(base))
}

func (mmio) Bit(alias uintptr) Bit {
	return mmioBit{w: (*volatile.Register32)(unsafe.Pointer(alias))}
}

func (mmio) Interrupt(irq int) Interrupt { return nvicLine(irq) }

// mmioRegs overlays the USARTv1 register block.
type mmioRegs struct {
	sr   volatile.Register32
	dr   volatile.Register32
	brr  volatile.Register32
	cr1  volatile.Register32
	cr2  volatile.Register32
	cr3  volatile.Register32
	gtpr volatile.Register32
}

func (r *mmioRegs) SR() uint32      { return r.sr.Get() }
func (r *mmioRegs) DR() uint32      { return r.dr.Get() }
func (r *mmioRegs) SetDR(v uint32)  { r.dr.Set(v) }
func (r *mmioRegs) BRR() uint32     { return r.brr.Get() }
func (r *mmioRegs) SetBRR(v uint32) { r.brr.Set(v) }
func (r *mmioRegs) CR1() uint32     { return r.cr1.Get() }
func (r *mmioRegs) SetCR1(v uint32) { r.cr1.Set(v) }
func (r *mmioRegs) CR2() uint32     { return r.cr2.Get() }
func (r *mmioRegs) SetCR2(v uint32) { r.cr2.Set(v) }

// mmioBit is a bit-band alias word. Bit 0 of the word is the target bit.
type mmioBit struct{ w *volatile.Register32 }

func (b mmioBit) Set(on bool) {
	if on {
		b.w.Set(1)
	} else {
		b.w.Set(0)
	}
}

func (b mmioBit) Get() bool { return b.w.Get()&1 != 0 }

// nvicLine drives one NVIC line. STM32F4 implements the top four priority
// bits.
type nvicLine int

func (n nvicLine) Enable()                    { arm.EnableIRQ(uint32(n)) }
func (n nvicLine) Disable()                   { arm.DisableIRQ(uint32(n)) }
func (n nvicLine) SetPriority(priority uint8) { arm.SetPriority(uint32(n), uint32(priority)<<4) }

// CriticalSection masks interrupts between Lock and Unlock. It is the
// sync.Locker a consumer uses around task-side LowLevel calls.
type CriticalSection struct {
	state interrupt.State
}

func (c *CriticalSection) Lock()   { c.state = interrupt.Disable() }
func (c *CriticalSection) Unlock() { interrupt.Restore(c.state) }
