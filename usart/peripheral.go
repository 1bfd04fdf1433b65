package usart

import (
	"strconv"
	"sync"

	"github.com/jangala-dev/tinygo-stm32usart/usart/bitband"
)

// Bus domain boundaries of the STM32F4 peripheral map. A peripheral below
// APB2Base is clocked from APB1, below AHB1Base from APB2, otherwise from AHB.
const (
	APB1Base uintptr = 0x40000000
	APB2Base uintptr = 0x40010000
	AHB1Base uintptr = 0x40020000
)

// KernelBasePriority is the NVIC priority given to USART interrupts: the
// highest level from which kernel services may still be called.
const KernelBasePriority uint8 = 1

// Clocks are the bus frequencies in Hz.
type Clocks struct {
	AHB  uint32
	APB1 uint32
	APB2 uint32
}

// Params are the construction-time facts of one USART instance.
type Params struct {
	Name string
	Base uintptr
	IRQ  int

	// RCC enable and reset registers and the bit of this instance in them.
	EnableReg uintptr
	EnableBit uint8
	ResetReg  uintptr
	ResetBit  uint8

	Clocks Clocks

	// Over8 reports that CR1.OVER8 exists on this chip generation.
	Over8 bool

	// Priority defaults to KernelBasePriority when zero.
	Priority uint8
}

// Peripheral is the hardware resource descriptor of one USART instance. All of
// its addresses are fixed at construction.
type Peripheral struct {
	name      string
	base      uintptr
	frequency uint32
	over8     bool
	priority  uint8

	regs   Registers
	rxneie Bit
	tcie   Bit
	txeie  Bit
	clock  Bit
	reset  Bit
	irq    Interrupt
}

// frequencyOf selects the peripheral clock from the bus the base sits on.
func frequencyOf(base uintptr, c Clocks) uint32 {
	switch {
	case base < APB2Base:
		return c.APB1
	case base < AHB1Base:
		return c.APB2
	default:
		return c.AHB
	}
}

// Frequency is the peripheral clock of the instance.
func (p Params) Frequency() uint32 { return frequencyOf(p.Base, p.Clocks) }

type claimKey struct {
	plat Platform
	base uintptr
}

var claimMu sync.Mutex

var claims = map[claimKey]string{}

// claim records base as owned on plat. A base can be owned once.
func claim(plat Platform, base uintptr, name string) error {
	claimMu.Lock()
	defer claimMu.Unlock()
	k := claimKey{plat, base}
	if owner, ok := claims[k]; ok {
		return newError(ErrAliased, "claim", name+" aliases "+owner+" at 0x"+strconv.FormatUint(uint64(base), 16))
	}
	claims[k] = name
	return nil
}

// NewPeripheral builds the descriptor of one USART on plat and claims its
// register block.
func NewPeripheral(plat Platform, p Params) (*Peripheral, error) {
	if plat == nil {
		return nil, newError(ErrInvalidArgument, "new", "nil platform")
	}
	cr1 := p.Base + OffsetCR1
	rxneie, err := bitband.Alias(cr1, CR1_RXNEIE_Pos)
	if err != nil {
		return nil, newError(ErrInvalidArgument, "new", p.Name+": "+err.Error())
	}
	enable, err := bitband.Alias(p.EnableReg, p.EnableBit)
	if err != nil {
		return nil, newError(ErrInvalidArgument, "new", p.Name+" enable: "+err.Error())
	}
	reset, err := bitband.Alias(p.ResetReg, p.ResetBit)
	if err != nil {
		return nil, newError(ErrInvalidArgument, "new", p.Name+" reset: "+err.Error())
	}
	if err := claim(plat, p.Base, p.Name); err != nil {
		return nil, err
	}
	prio := p.Priority
	if prio == 0 {
		prio = KernelBasePriority
	}
	return &Peripheral{
		name:      p.Name,
		base:      p.Base,
		frequency: p.Frequency(),
		over8:     p.Over8,
		priority:  prio,
		regs:      plat.Registers(p.Base),
		rxneie:    plat.Bit(rxneie),
		tcie:      plat.Bit(bitband.MustAlias(cr1, CR1_TCIE_Pos)),
		txeie:     plat.Bit(bitband.MustAlias(cr1, CR1_TXEIE_Pos)),
		clock:     plat.Bit(enable),
		reset:     plat.Bit(reset),
		irq:       plat.Interrupt(p.IRQ),
	}, nil
}

func (p *Peripheral) Name() string         { return p.name }
func (p *Peripheral) Base() uintptr        { return p.base }
func (p *Peripheral) Frequency() uint32    { return p.frequency }
func (p *Peripheral) Over8() bool          { return p.over8 }
func (p *Peripheral) Registers() Registers { return p.regs }

// EnableClock gates the peripheral clock in RCC.
func (p *Peripheral) EnableClock(on bool) { p.clock.Set(on) }

// Reset pulses the RCC reset bit. The clock must be enabled. The write of 0
// follows the write of 1 immediately; the bus orders them.
func (p *Peripheral) Reset() {
	p.reset.Set(true)
	p.reset.Set(false)
}

// EnableInterrupt enables or disables the NVIC line.
func (p *Peripheral) EnableInterrupt(on bool) {
	if on {
		p.irq.Enable()
	} else {
		p.irq.Disable()
	}
}

// ConfigureInterruptPriority sets the NVIC priority of the line.
func (p *Peripheral) ConfigureInterruptPriority() { p.irq.SetPriority(p.priority) }

func (p *Peripheral) EnableRxneInterrupt(on bool) { p.rxneie.Set(on) }
func (p *Peripheral) EnableTxeInterrupt(on bool)  { p.txeie.Set(on) }
func (p *Peripheral) EnableTcInterrupt(on bool)   { p.tcie.Set(on) }

// Is9BitFormatEnabled reports a real 9-bit frame: M set without parity. With
// parity the ninth bit is the parity bit and characters still fit a byte.
func (p *Peripheral) Is9BitFormatEnabled() bool {
	return p.regs.CR1()&(CR1_M|CR1_PCE) == CR1_M
}
