package usart_test

import (
	"errors"
	"testing"

	"github.com/jangala-dev/tinygo-stm32usart/usart"
)

func TestComputeTiming_16MHz115200(t *testing.T) {
	tm, err := usart.ComputeTiming(16000000, 115200, true)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if tm.Divider != 139 || tm.Over8 || tm.Mantissa != 8 || tm.Fraction != 11 {
		t.Fatalf("got %+v; want divider 139, 16x, mantissa 8, fraction 11", tm)
	}
	if got := tm.BRR(); got != 0x8B {
		t.Fatalf("BRR = %#x; want 0x8b", got)
	}
	if got := tm.Achieved(); got != 115107 {
		t.Fatalf("achieved = %d; want 115107", got)
	}
}

func TestComputeTiming_Over8OnlyBelow16(t *testing.T) {
	cases := []struct {
		freq, baud uint32
		over8      bool
		wantOver8  bool
		mant, frac uint32
	}{
		// divider 12: 8x mode when the chip has it
		{16000000, 1333333, true, true, 1, 4},
		{16000000, 1333333, false, false, 0, 0}, // mantissa 0 in 16x, rejected below
		{16000000, 1000000, true, false, 1, 0},
		{84000000, 9600, true, false, 546, 14},
	}
	for _, c := range cases {
		tm, err := usart.ComputeTiming(c.freq, c.baud, c.over8)
		if c.mant == 0 {
			if !errors.Is(err, usart.ErrInvalidBaudRate) {
				t.Fatalf("%d/%d over8=%v: err=%v; want invalid baud rate", c.freq, c.baud, c.over8, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%d/%d: unexpected err: %v", c.freq, c.baud, err)
		}
		if tm.Over8 != c.wantOver8 || tm.Mantissa != c.mant || tm.Fraction != c.frac {
			t.Fatalf("%d/%d over8=%v: got %+v; want over8=%v mantissa=%d fraction=%d",
				c.freq, c.baud, c.over8, tm, c.wantOver8, c.mant, c.frac)
		}
	}
}

func TestComputeTiming_Rejects(t *testing.T) {
	cases := []struct {
		name       string
		freq, baud uint32
	}{
		{"zero baud", 16000000, 0},
		{"too fast", 16000000, 20000000},
		{"too slow", 84000000, 1200},
	}
	for _, c := range cases {
		if _, err := usart.ComputeTiming(c.freq, c.baud, true); !errors.Is(err, usart.ErrInvalidBaudRate) {
			t.Fatalf("%s: err=%v; want %v", c.name, err, usart.ErrInvalidBaudRate)
		}
	}
}

// The achieved rate always follows from the divider actually programmed.
func TestComputeTiming_AchievedMatchesDivider(t *testing.T) {
	freqs := []uint32{8000000, 16000000, 42000000, 84000000, 90000000}
	bauds := []uint32{2400, 9600, 19200, 57600, 115200, 230400, 460800, 921600, 3000000}
	for _, f := range freqs {
		for _, b := range bauds {
			for _, over8 := range []bool{false, true} {
				tm, err := usart.ComputeTiming(f, b, over8)
				if err != nil {
					continue
				}
				base := uint32(16)
				if tm.Over8 {
					base = 8
				}
				if tm.Mantissa*base+tm.Fraction != tm.Divider {
					t.Fatalf("%d/%d: mantissa/fraction %d/%d do not rebuild divider %d", f, b, tm.Mantissa, tm.Fraction, tm.Divider)
				}
				if tm.Achieved() != f/tm.Divider {
					t.Fatalf("%d/%d: achieved %d; want %d", f, b, tm.Achieved(), f/tm.Divider)
				}
				if want := (f + b/2) / b; tm.Divider != want {
					t.Fatalf("%d/%d: divider %d; want %d", f, b, tm.Divider, want)
				}
			}
		}
	}
}
