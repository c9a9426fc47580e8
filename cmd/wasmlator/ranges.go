package main

import (
	"fmt"

	"github.com/BjoernBoss/wasmlator-sub001/gen"
	"github.com/BjoernBoss/wasmlator-sub001/mapping"
	"github.com/spf13/cobra"
)

func newRangesCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ranges",
		Short: "Print the resolved scaffolds of the superblock at the entry address",
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, blob, err := readProgram(o.program)
			if err != nil {
				return err
			}
			store, err := mapping.Open("", blob)
			if err != nil {
				return err
			}
			defer store.Close()

			cfg := o.cfg.Translate
			cfg.MaxDepth = 0
			var trees []string
			s := &session{prog: prog, store: store, cfg: cfg, maxUnits: 1, observe: func(sb *gen.SuperBlock) {
				trees = append(trees, sb.Tree().String())
			}}
			if _, err := s.translate(cmd.Context(), o.entry); err != nil {
				return err
			}
			for _, t := range trees {
				fmt.Print(t)
			}
			return nil
		},
	}
}
