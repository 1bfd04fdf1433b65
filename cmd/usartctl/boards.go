package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jangala-dev/tinygo-stm32usart/board"
)

var (
	boardsOpts = struct {
		file string
	}{}

	boardsCmd = &cobra.Command{
		Use:   "boards [NAME]",
		Short: "List boards and their USARTs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tab := board.Default()
			if boardsOpts.file != "" {
				f, err := os.Open(boardsOpts.file)
				if err != nil {
					return err
				}
				defer f.Close()
				if tab, err = board.Load(f); err != nil {
					return err
				}
			}
			if len(args) == 1 {
				b, err := tab.Lookup(args[0])
				if err != nil {
					return err
				}
				return printBoard(cmd.OutOrStdout(), b)
			}
			for i := range tab.Boards {
				if err := printBoard(cmd.OutOrStdout(), &tab.Boards[i]); err != nil {
					return err
				}
			}
			return nil
		},
	}
)

func init() {
	boardsCmd.Flags().StringVar(&boardsOpts.file, "file", "", "read boards from a YAML table instead of the built-in one")
}

func printBoard(w io.Writer, b *board.Board) error {
	c := b.ChipInfo()
	fmt.Fprintf(w, "%s (%s) AHB %d APB1 %d APB2 %d Hz\n", b.Name, c.Name, b.Clocks.AHB, b.Clocks.APB1, b.Clocks.APB2)
	for _, name := range b.USARTs() {
		p, err := b.Params(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %-6s base %#x irq %2d clock %9d Hz  enable %#x[%d] reset %#x[%d]\n",
			p.Name, p.Base, p.IRQ, p.Frequency(), p.EnableReg, p.EnableBit, p.ResetReg, p.ResetBit)
	}
	return nil
}
