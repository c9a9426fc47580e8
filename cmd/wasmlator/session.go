package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/BjoernBoss/wasmlator-sub001/gen"
	"github.com/BjoernBoss/wasmlator-sub001/log"
	"github.com/BjoernBoss/wasmlator-sub001/mapping"
	"github.com/BjoernBoss/wasmlator-sub001/pvm/program"
	"github.com/BjoernBoss/wasmlator-sub001/pvm/wasmgen"
	"github.com/BjoernBoss/wasmlator-sub001/wasm"
	"golang.org/x/crypto/blake2b"
)

// session translates one program into as many units as requested,
// recording every unit in the mapping store.
type session struct {
	prog     *program.Program
	store    *mapping.Store
	cfg      gen.Config
	maxUnits int

	// observe is handed to every driver.
	observe func(sb *gen.SuperBlock)
}

type result struct {
	Name       string
	Root       uint64
	Module     *wasm.Module
	Binary     []byte
	Unit       *gen.Unit
	Translator *wasmgen.Translator
}

func readProgram(path string) (*program.Program, []byte, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("no program given, use --program")
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read program: %w", err)
	}
	prog, err := program.DecodeCorePart(blob)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return prog, blob, nil
}

// unitName derives the unit name from the encoded module.
func unitName(binary []byte) string {
	sum := blake2b.Sum256(binary)
	return "unit-" + hex.EncodeToString(sum[:8])
}

func (s *session) translate(ctx context.Context, root uint64) (*result, error) {
	mod := wasm.NewModule()
	tr := wasmgen.New(s.prog)
	d, err := gen.NewDriver(mod, tr, s.store, s.cfg)
	if err != nil {
		return nil, err
	}
	d.Observe = s.observe
	if err := d.Run(ctx, root); err != nil {
		return nil, err
	}
	unit, err := d.Close(ctx)
	if err != nil {
		return nil, err
	}
	binary, err := mod.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode unit at 0x%x: %w", root, err)
	}
	return &result{Name: unitName(binary), Root: root, Module: mod, Binary: binary, Unit: unit, Translator: tr}, nil
}

// run translates entry and then the linked addresses no unit exports yet,
// until maxUnits units were produced.
func (s *session) run(ctx context.Context, entry uint64) ([]*result, error) {
	var results []*result
	queue := []uint64{entry}
	queued := map[uint64]bool{entry: true}

	for len(queue) > 0 && len(results) < s.maxUnits {
		root := queue[0]
		queue = queue[1:]
		if s.store.Contains(root) {
			continue
		}

		r, err := s.translate(ctx, root)
		if err != nil {
			return results, err
		}
		if err := s.store.Define(r.Name, r.Unit.Exports); err != nil {
			return results, err
		}
		results = append(results, r)
		log.Info(log.CliMonitoring, "unit translated", "name", r.Name, "root", fmt.Sprintf("0x%x", root),
			"exports", len(r.Unit.Exports), "links", len(r.Unit.Links), "bytes", len(r.Binary))

		for _, l := range r.Unit.Links {
			if l.AlreadyExists || queued[l.Address] {
				continue
			}
			queued[l.Address] = true
			queue = append(queue, l.Address)
		}
	}
	if len(queue) > 0 {
		log.Warn(log.CliMonitoring, "unit limit reached", "pending", len(queue))
	}
	return results, nil
}

func summary(r *result) ([]byte, error) {
	return json.MarshalIndent(r.Unit, "", "  ")
}
