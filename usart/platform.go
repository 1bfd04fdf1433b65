package usart

// Registers is the register block of one USARTv1 instance. Only named fields
// are exposed; a block is owned by exactly one Peripheral.
//
// Reading DR acknowledges a received character (clears RXNE and the error
// flags); writing DR hands a character to the transmitter (clears TXE).
type Registers interface {
	SR() uint32
	DR() uint32
	SetDR(v uint32)
	BRR() uint32
	SetBRR(v uint32)
	CR1() uint32
	SetCR1(v uint32)
	CR2() uint32
	SetCR2(v uint32)
}

// Bit is one register bit reached through its bit-band alias word. Set never
// reads or rewrites the other bits of the register, so it is safe from both
// task and interrupt context without masking.
type Bit interface {
	Set(on bool)
	Get() bool
}

// Interrupt is one NVIC interrupt line.
type Interrupt interface {
	Enable()
	Disable()
	SetPriority(priority uint8)
}

// Platform turns the addresses of a chip into capabilities. The MMIO platform
// overlays them on memory; package sim models them in software.
type Platform interface {
	Registers(base uintptr) Registers
	Bit(alias uintptr) Bit
	Interrupt(irq int) Interrupt
}
