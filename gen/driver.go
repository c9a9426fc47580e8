package gen

import (
	"context"
	"fmt"

	"github.com/BjoernBoss/wasmlator-sub001/log"
	"github.com/BjoernBoss/wasmlator-sub001/transerrors"
	"github.com/BjoernBoss/wasmlator-sub001/wasm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/BjoernBoss/wasmlator-sub001/gen"

type Stats struct {
	Superblocks  int `json:"superblocks"`
	Instructions int `json:"instructions"`
	Chunks       int `json:"chunks"`
	Ranges       int `json:"ranges"`
	Irreducible  int `json:"irreducible"`
	Inline       int `json:"inline"`
	Linked       int `json:"linked"`
	Existing     int `json:"existing"`
}

// Link is a link table slot of a closed unit.
type Link struct {
	Address       uint64 `json:"address"`
	Slot          uint32 `json:"slot"`
	AlreadyExists bool   `json:"already_exists"`
}

// Unit is what the host loader needs to bind a closed translation unit.
type Unit struct {
	Exports []Export `json:"exports"`
	Links   []Link   `json:"links"`
	Edges   []Edge   `json:"-"`
	Startup bool     `json:"startup"`
	Stats   Stats    `json:"stats"`
}

// Driver translates the addresses of one unit into one module.
type Driver struct {
	mw        *ModuleWriter
	tr        Translator
	cfg       Config
	addresses *Addresses
	resolver  Resolver
	tracer    trace.Tracer
	stats     Stats
	closed    bool

	// Observe, if set, is called with every superblock after its code was
	// produced.
	Observe func(sb *SuperBlock)
}

func NewDriver(mod *wasm.Module, tr Translator, mapping Mapping, cfg Config) (*Driver, error) {
	mw := newModuleWriter(mod)
	d := &Driver{
		mw:        mw,
		tr:        tr,
		cfg:       cfg,
		addresses: NewAddresses(mw, mapping, cfg.MaxDepth),
		resolver:  ExpansionResolver{},
		tracer:    otel.Tracer(tracerName),
	}
	if err := tr.Setup(mw); err != nil {
		return nil, fmt.Errorf("translator setup: %w", err)
	}
	return d, nil
}

// SetResolver replaces the range resolver used for all following blocks.
func (d *Driver) SetResolver(r Resolver) {
	d.resolver = r
}

func (d *Driver) Addresses() *Addresses {
	return d.addresses
}

// Run translates address and everything it pulls in within the depth budget.
func (d *Driver) Run(ctx context.Context, address uint64) error {
	if d.closed {
		return transerrors.ErrSUnitClosed
	}
	ctx, span := d.tracer.Start(ctx, "translate", trace.WithAttributes(attribute.String("root", fmt.Sprintf("0x%x", address))))
	defer span.End()

	p, err := d.addresses.PushRoot(address)
	if err != nil {
		return err
	}
	if !p.ThisModule() {
		log.Warn(log.GenMonitoring, "root is not placed in this unit", "address", fmt.Sprintf("0x%x", address), "kind", p.Kind)
	}
	for !d.addresses.Empty() {
		next, depth, fn, err := d.addresses.Start()
		if err != nil {
			return err
		}
		if err := d.process(ctx, next, depth, fn); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("translate 0x%x: %w", next, err)
		}
	}
	return nil
}

func (d *Driver) process(ctx context.Context, address uint64, depth uint32, fn *wasm.Function) error {
	_, span := d.tracer.Start(ctx, "superblock", trace.WithAttributes(
		attribute.String("address", fmt.Sprintf("0x%x", address)),
		attribute.Int("depth", int(depth)),
	))
	defer span.End()

	sink := wasm.NewSink(fn)
	sb := NewSuperBlock(address, d.cfg.SingleStep, d.resolver)
	w := newWriter(sink, sb, d.addresses, d.mw, d.cfg.SingleStep)
	if err := d.tr.Started(w); err != nil {
		return err
	}

	for {
		cont, err := sb.Push(d.tr.Fetch(sb.NextAddress()))
		if err != nil {
			return err
		}
		if !cont && !sb.Incomplete() {
			break
		}
	}
	if err := sb.SetupRanges(); err != nil {
		return err
	}
	log.Debug(log.GenMonitoring, "superblock formed", "address", fmt.Sprintf("0x%x", address), "instructions", sb.Len(), "ranges", len(sb.Ranges()), "depth", depth)

	chunks := 0
	for sb.Next(sink, d.mw) {
		chunk := sb.Chunk()
		if err := d.tr.Produce(w, chunk[0].Address, chunk); err != nil {
			return err
		}
		chunks++
	}
	if err := d.tr.Completed(w); err != nil {
		return err
	}
	if err := sink.Close(); err != nil {
		return err
	}

	d.stats.Superblocks++
	d.stats.Instructions += sb.Len()
	d.stats.Chunks += chunks
	d.stats.Ranges += len(sb.Ranges())
	d.stats.Irreducible += sb.Irreducible()
	span.SetAttributes(
		attribute.Int("instructions", sb.Len()),
		attribute.Int("chunks", chunks),
		attribute.Int("ranges", len(sb.Ranges())),
		attribute.Int("irreducible", sb.Irreducible()),
	)
	if d.Observe != nil {
		d.Observe(sb)
	}
	return nil
}

// Close finalizes the unit. The driver cannot be used afterwards.
func (d *Driver) Close(ctx context.Context) (*Unit, error) {
	if d.closed {
		return nil, transerrors.ErrSUnitClosed
	}
	d.closed = true
	_, span := d.tracer.Start(ctx, "close")
	defer span.End()

	exports, err := d.addresses.Close()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	unit := &Unit{Exports: exports, Edges: d.addresses.Edges(), Startup: d.mw.mod.Start() != nil}
	for _, address := range d.addresses.sortedAddresses() {
		p := d.addresses.places[address]
		switch {
		case p.ThisModule():
			d.stats.Inline++
		case p.AlreadyExists:
			d.stats.Existing++
			unit.Links = append(unit.Links, Link{Address: address, Slot: p.Slot, AlreadyExists: true})
		default:
			d.stats.Linked++
			unit.Links = append(unit.Links, Link{Address: address, Slot: p.Slot})
		}
	}
	unit.Stats = d.stats
	span.SetAttributes(
		attribute.Int("exports", len(exports)),
		attribute.Int("links", len(unit.Links)),
	)
	log.Info(log.GenMonitoring, "unit closed", "exports", len(exports), "links", len(unit.Links), "superblocks", d.stats.Superblocks, "irreducible", d.stats.Irreducible)
	return unit, nil
}
