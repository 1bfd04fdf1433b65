// Package bitband maps single bits of Cortex-M3/M4 peripheral registers to
// their bit-band alias words. A write to an alias word sets or clears exactly
// one register bit without a read-modify-write of the enclosing register.
package bitband

import "errors"

const (
	// PeripheralBase is the first address of the bit-band peripheral region.
	PeripheralBase uintptr = 0x40000000
	// PeripheralEnd is one past the last bit-banded peripheral address.
	PeripheralEnd uintptr = 0x40100000
	// AliasBase is the first alias word of the peripheral region.
	AliasBase uintptr = 0x42000000

	wordBits  = 32
	wordBytes = 4
)

var (
	ErrOutOfRange = errors.New("bitband: address outside peripheral region")
	ErrInvalidBit = errors.New("bitband: bit position out of range")
)

// Alias returns the alias word address of bit of the byte at addr.
// Register addresses are word aligned, so bit is 0..31 of that word.
func Alias(addr uintptr, bit uint8) (uintptr, error) {
	if bit >= wordBits {
		return 0, ErrInvalidBit
	}
	if addr < PeripheralBase || addr >= PeripheralEnd {
		return 0, ErrOutOfRange
	}
	return AliasBase + (addr-PeripheralBase)*wordBits + uintptr(bit)*wordBytes, nil
}

// MustAlias is Alias for construction-time constants. It panics on error.
func MustAlias(addr uintptr, bit uint8) uintptr {
	a, err := Alias(addr, bit)
	if err != nil {
		panic(err)
	}
	return a
}

// Decode is the inverse of Alias: it returns the word-aligned register address
// and the bit within it that alias refers to.
func Decode(alias uintptr) (reg uintptr, bit uint8, err error) {
	end := AliasBase + (PeripheralEnd-PeripheralBase)*wordBits
	if alias < AliasBase || alias >= end || alias%wordBytes != 0 {
		return 0, 0, ErrOutOfRange
	}
	off := (alias - AliasBase) / wordBytes // bit index across the region
	byteAddr := PeripheralBase + off/8
	reg = byteAddr &^ (wordBytes - 1)
	bit = uint8(off%8) + uint8(byteAddr-reg)*8
	return reg, bit, nil
}
