package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BjoernBoss/wasmlator-sub001/gen"
	"github.com/BjoernBoss/wasmlator-sub001/mapping"
	"github.com/BjoernBoss/wasmlator-sub001/pvm/program"
	"github.com/BjoernBoss/wasmlator-sub001/telemetry"
	"github.com/spf13/cobra"
)

func newTranslateCmd(o *options) *cobra.Command {
	var (
		out     string
		wat     bool
		units   int
		stepped bool
		expect  string
	)
	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate a program starting at the entry address",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("out") {
				o.cfg.Output.Dir = out
			}
			if cmd.Flags().Changed("wat") {
				o.cfg.Output.Wat = wat
			}

			ctx := cmd.Context()
			client, err := telemetry.NewClient(ctx, o.cfg.Telemetry.Endpoint)
			if err != nil {
				return err
			}
			defer client.Close(ctx)

			prog, blob, err := readProgram(o.program)
			if err != nil {
				return err
			}
			store, err := mapping.Open(o.cfg.Mapping.Path, blob)
			if err != nil {
				return err
			}
			defer store.Close()

			s := &session{prog: prog, store: store, cfg: o.cfg.Translate, maxUnits: units}
			results, runErr := s.run(ctx, o.entry)
			for _, r := range results {
				if err := writeResult(o.cfg.Output.Dir, o.cfg.Output.Wat, r); err != nil {
					return err
				}
				fmt.Printf("%s root=0x%x exports=%d links=%d superblocks=%d irreducible=%d\n",
					r.Name, r.Root, len(r.Unit.Exports), len(r.Unit.Links), r.Unit.Stats.Superblocks, r.Unit.Stats.Irreducible)
				if stepped {
					printStepped(r.Translator.Stepped)
				}
			}
			if runErr != nil {
				return runErr
			}
			if expect != "" && len(results) > 0 {
				return checkExpected(expect, results[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", ".", "output directory")
	cmd.Flags().BoolVar(&wat, "wat", false, "also write a text listing of every unit")
	cmd.Flags().IntVar(&units, "units", 1, "maximum number of units to translate")
	cmd.Flags().BoolVar(&stepped, "stepped", false, "print the opcodes left to the host per unit")
	cmd.Flags().StringVar(&expect, "expect", "", "golden summary of the first unit")
	return cmd
}

func writeResult(dir string, wat bool, r *result) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	base := filepath.Join(dir, r.Name)
	if err := os.WriteFile(base+".wasm", r.Binary, 0644); err != nil {
		return fmt.Errorf("failed to write unit: %w", err)
	}
	data, err := summary(r)
	if err != nil {
		return err
	}
	if err := os.WriteFile(base+".json", data, 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if wat {
		if err := os.WriteFile(base+".wat", []byte(r.Module.Text()), 0644); err != nil {
			return fmt.Errorf("failed to write listing: %w", err)
		}
	}
	return nil
}

func printStepped(stepped map[byte]int) {
	for op := 0; op < 256; op++ {
		if n := stepped[byte(op)]; n > 0 {
			fmt.Printf("  stepped %-24s %d\n", program.OpcodeToString(byte(op)), n)
		}
	}
}

func checkExpected(path string, r *result) error {
	expected, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read expected summary: %w", err)
	}
	actual, err := summary(r)
	if err != nil {
		return err
	}
	diff, equal, err := gen.DiffSummary(expected, actual)
	if err != nil {
		return err
	}
	if !equal {
		fmt.Print(diff)
		return fmt.Errorf("summary of %s differs from %s", r.Name, path)
	}
	return nil
}
