// Command usartctl is a host companion for the usart driver: it prints baud
// rate divider tables, lists the built-in boards and runs scripted sessions
// against a simulated chip.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "usartctl",
	Short:         "STM32 USARTv1 driver companion",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(baudCmd, boardsCmd, simCmd)
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("usartctl: ")
	if err := rootCmd.Execute(); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}
