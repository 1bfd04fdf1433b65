package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jangala-dev/tinygo-stm32usart/board"
	"github.com/jangala-dev/tinygo-stm32usart/internal/mathx"
	"github.com/jangala-dev/tinygo-stm32usart/usart"
)

var (
	baudOpts = struct {
		freq  uint32
		over8 bool
		board string
		usart string
	}{}

	baudCmd = &cobra.Command{
		Use:   "baud [flags] RATE...",
		Short: "Print BRR settings for baud rates",
		Long:  "Print the divider, BRR fields and achieved rate for each requested baud rate, from --freq or from the clock of a board's USART.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			freq, over8 := baudOpts.freq, baudOpts.over8
			if baudOpts.board != "" {
				p, err := boardParams(baudOpts.board, baudOpts.usart)
				if err != nil {
					return err
				}
				freq, over8 = p.Frequency(), p.Over8
			}
			rates := make([]uint32, 0, len(args))
			for _, a := range args {
				r, err := strconv.ParseUint(a, 10, 32)
				if err != nil {
					return fmt.Errorf("rate %q: %w", a, err)
				}
				rates = append(rates, uint32(r))
			}
			printBaudTable(cmd.OutOrStdout(), freq, over8, rates)
			return nil
		},
	}
)

func init() {
	baudCmd.Flags().Uint32VarP(&baudOpts.freq, "freq", "f", 42000000, "peripheral clock in Hz")
	baudCmd.Flags().BoolVar(&baudOpts.over8, "over8", true, "chip supports 8x oversampling")
	baudCmd.Flags().StringVarP(&baudOpts.board, "board", "b", "", "take the clock from this board")
	baudCmd.Flags().StringVarP(&baudOpts.usart, "usart", "u", "USART2", "USART of --board")
}

func boardParams(name, instance string) (usart.Params, error) {
	b, err := board.Lookup(name)
	if err != nil {
		return usart.Params{}, err
	}
	return b.Params(instance)
}

func printBaudTable(w io.Writer, freq uint32, over8 bool, rates []uint32) {
	fmt.Fprintf(w, "clock %d Hz\n", freq)
	fmt.Fprintf(w, "%8s %8s %4s %8s %8s %6s %10s %8s\n", "baud", "divider", "ovs", "mantissa", "fraction", "BRR", "achieved", "error")
	for _, r := range rates {
		t, err := usart.ComputeTiming(freq, r, over8)
		if err != nil {
			fmt.Fprintf(w, "%8d %s\n", r, err)
			continue
		}
		ovs := 16
		if t.Over8 {
			ovs = 8
		}
		a := t.Achieved()
		// error in hundredths of a percent
		e := mathx.RoundDiv(uint64(mathx.AbsDiff(a, r))*10000, uint64(r))
		fmt.Fprintf(w, "%8d %8d %4d %8d %8d %#6x %10d %5d.%02d%%\n",
			r, t.Divider, ovs, t.Mantissa, t.Fraction, t.BRR(), a, e/100, e%100)
	}
}
