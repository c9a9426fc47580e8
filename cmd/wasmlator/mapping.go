package main

import (
	"fmt"

	"github.com/BjoernBoss/wasmlator-sub001/mapping"
	"github.com/spf13/cobra"
)

func newMappingCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Inspect the mapping store of a program",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "List the translated addresses and their units",
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.cfg.Mapping.Path == "" {
				return fmt.Errorf("no mapping store configured, use --mapping")
			}
			_, blob, err := readProgram(o.program)
			if err != nil {
				return err
			}
			store, err := mapping.Open(o.cfg.Mapping.Path, blob)
			if err != nil {
				return err
			}
			defer store.Close()

			units, err := store.Units()
			if err != nil {
				return err
			}
			entries, err := store.List()
			if err != nil {
				return err
			}
			fmt.Printf("program %x: %d units, %d addresses\n", mapping.ProgramHash(blob), len(units), len(entries))
			for _, e := range entries {
				fmt.Printf("0x%016x %s %s\n", e.Address, e.Unit, e.Export)
			}
			return nil
		},
	})
	return cmd
}
