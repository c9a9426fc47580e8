package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDisasmCmd(o *options) *cobra.Command {
	var stats bool
	cmd := &cobra.Command{
		Use:   "disasm",
		Short: "Disassemble the program",
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, _, err := readProgram(o.program)
			if err != nil {
				return err
			}
			for _, line := range prog.Disassemble() {
				fmt.Println(line)
			}
			if stats {
				s := prog.Analyze()
				fmt.Printf("\n%d instructions, %d basic blocks, %d invalid\n", s.InstructionCount, s.BasicBlockCount, s.InvalidCount)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&stats, "stats", false, "print instruction statistics")
	return cmd
}
