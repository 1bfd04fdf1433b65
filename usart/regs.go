package usart

// USARTv1 register offsets from the peripheral base.
const (
	OffsetSR   = 0x00
	OffsetDR   = 0x04
	OffsetBRR  = 0x08
	OffsetCR1  = 0x0C
	OffsetCR2  = 0x10
	OffsetCR3  = 0x14
	OffsetGTPR = 0x18
)

// SR bits.
const (
	SR_PE   = 1 << 0
	SR_FE   = 1 << 1
	SR_NF   = 1 << 2
	SR_ORE  = 1 << 3
	SR_IDLE = 1 << 4
	SR_RXNE = 1 << 5
	SR_TC   = 1 << 6
	SR_TXE  = 1 << 7

	SR_ERRORS = SR_FE | SR_NF | SR_ORE | SR_PE
)

// CR1 bit positions and masks.
const (
	CR1_RE_Pos     = 2
	CR1_TE_Pos     = 3
	CR1_RXNEIE_Pos = 5
	CR1_TCIE_Pos   = 6
	CR1_TXEIE_Pos  = 7
	CR1_PS_Pos     = 9
	CR1_PCE_Pos    = 10
	CR1_M_Pos      = 12
	CR1_UE_Pos     = 13
	CR1_OVER8_Pos  = 15

	CR1_RE     = 1 << CR1_RE_Pos
	CR1_TE     = 1 << CR1_TE_Pos
	CR1_RXNEIE = 1 << CR1_RXNEIE_Pos
	CR1_TCIE   = 1 << CR1_TCIE_Pos
	CR1_TXEIE  = 1 << CR1_TXEIE_Pos
	CR1_PS     = 1 << CR1_PS_Pos
	CR1_PCE    = 1 << CR1_PCE_Pos
	CR1_M      = 1 << CR1_M_Pos
	CR1_UE     = 1 << CR1_UE_Pos
	CR1_OVER8  = 1 << CR1_OVER8_Pos
)

// CR2 STOP field: 0b00 one stop bit, 0b10 two stop bits.
const (
	CR2_STOP_Pos   = 12
	CR2_STOP_1_Pos = 13
	CR2_STOP       = 0x3 << CR2_STOP_Pos
)

// BRR fields.
const (
	BRR_Fraction_Pos = 0
	BRR_Mantissa_Pos = 4
	BRR_Mantissa     = 0xFFF << BRR_Mantissa_Pos
	BRR_Fraction     = 0xF << BRR_Fraction_Pos

	maxMantissa = BRR_Mantissa >> BRR_Mantissa_Pos
)

// ResetSR is the status register value after reset: transmitter empty and idle.
const ResetSR = SR_TXE | SR_TC

// watched is the set of conditions the interrupt handler services. The bits
// line up in SR and CR1 (RXNE/RXNEIE, TC/TCIE, TXE/TXEIE).
const watched = SR_RXNE | SR_TXE | SR_TC
