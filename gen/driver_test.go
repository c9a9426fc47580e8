package gen

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/BjoernBoss/wasmlator-sub001/transerrors"
	"github.com/BjoernBoss/wasmlator-sub001/wasm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/exp/rand"
)

// chain jumps from every even node to the next even node.
func chain(n int) []node {
	nodes := make([]node, 2*n+1)
	for i := 0; i < n; i++ {
		nodes[2*i] = node{kind: InstJumpDirect, target: 2*i + 2}
		nodes[2*i+1] = node{kind: InstEndOfBlock}
	}
	nodes[2*n] = node{kind: InstEndOfBlock}
	return nodes
}

func TestRandomGraphs(t *testing.T) {
	configs := []Config{
		{MaxDepth: 4},
		{MaxDepth: 1},
		{MaxDepth: 0},
		{MaxDepth: 2, SingleStep: true},
	}
	rng := rand.New(rand.NewSource(11))
	for round := 0; round < 60; round++ {
		nodes := randomGraph(rng, 4+rng.Intn(40))
		seed := rng.Uint64()
		want, wantEnd := referenceWalk(nodes, seed, 300)

		for _, cfg := range configs {
			name := fmt.Sprintf("round %d depth %d single %v", round, cfg.MaxDepth, cfg.SingleStep)
			h := newHost(t, nodes, cfg, seed, 300)
			got, end := h.run(addressOf(0))
			require.Equal(t, want, got, name)
			require.Equal(t, wantEnd, end, name)

			for i, mod := range h.modules {
				_, err := mod.Encode()
				require.NoError(t, err, name)
				if !cfg.SingleStep {
					require.Empty(t, h.translators[i].unresolved, name)
				}
			}
		}
	}
}

func TestScenarioIrreducibleExecution(t *testing.T) {
	nodes := []node{
		{kind: InstConditionalDirect, target: 2},
		{kind: InstPrimitive},
		{kind: InstPrimitive},
		{kind: InstConditionalDirect, target: 1},
		{kind: InstEndOfBlock},
	}
	for seed := uint64(0); seed < 32; seed++ {
		want, wantEnd := referenceWalk(nodes, seed, 64)
		h := newHost(t, nodes, DefaultConfig(), seed, 64)
		got, end := h.run(addressOf(0))
		require.Equal(t, want, got)
		require.Equal(t, wantEnd, end)
		require.Len(t, h.units, 1)
		require.Equal(t, 1, h.units[0].Stats.Irreducible)
	}
}

func TestDriverDepthBudget(t *testing.T) {
	nodes := chain(6)
	for maxDepth := uint32(0); maxDepth <= 3; maxDepth++ {
		_, unit, _ := translate(t, nodes, addressOf(0), Config{MaxDepth: maxDepth}, nil)
		require.Len(t, unit.Exports, int(maxDepth)+1)
		require.Equal(t, []Link{{Address: addressOf(2 * int(maxDepth+1)), Slot: 0}}, unit.Links)
		require.False(t, unit.Startup)
	}

	// the host translates the linked addresses lazily and keeps going
	h := newHost(t, nodes, Config{MaxDepth: 1}, 0, 100)
	trace, end := h.run(addressOf(0))
	require.Equal(t, endExit, end)
	require.Equal(t, []uint64{addressOf(0), addressOf(2), addressOf(4), addressOf(6), addressOf(8), addressOf(10), addressOf(12)}, trace)
	require.Len(t, h.units, 4)
}

func TestDriverExistingAddress(t *testing.T) {
	nodes := chain(2)
	mod, unit, _ := translate(t, nodes, addressOf(0), DefaultConfig(), mappingSet{addressOf(2): true})
	require.Equal(t, []Export{{Name: FunctionName(addressOf(0)), Address: addressOf(0)}}, unit.Exports)
	require.Equal(t, []Link{{Address: addressOf(2), Slot: 0, AlreadyExists: true}}, unit.Links)
	require.True(t, unit.Startup)
	require.NotNil(t, mod.Start())
	require.Equal(t, 1, unit.Stats.Existing)

	// the jump uses the slot directly, without filling it on first use
	body := mod.Lookup(FunctionName(addressOf(0))).Body()
	for _, in := range body {
		require.NotEqual(t, wasm.OpRefIsNull, in.Op)
	}
}

func TestDriverSingleStep(t *testing.T) {
	nodes := []node{
		{kind: InstPrimitive},
		{kind: InstConditionalDirect, target: 0},
		{kind: InstEndOfBlock},
	}
	_, unit, tr := translate(t, nodes, addressOf(0), Config{MaxDepth: 4, SingleStep: true}, nil)
	require.Len(t, unit.Exports, 1)
	require.Empty(t, unit.Links)
	require.Equal(t, 1, unit.Stats.Instructions)
	require.Len(t, tr.chunks, 1)
}

func TestDriverClosed(t *testing.T) {
	mod := wasm.NewModule()
	d, err := NewDriver(mod, &graphTranslator{nodes: chain(1)}, nil, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, d.Run(context.Background(), addressOf(0)))
	_, err = d.Close(context.Background())
	require.NoError(t, err)

	_, err = d.Close(context.Background())
	require.ErrorIs(t, err, transerrors.ErrSUnitClosed)
	require.ErrorIs(t, d.Run(context.Background(), addressOf(0)), transerrors.ErrSUnitClosed)
}

type failingResolver struct{}

func (failingResolver) Resolve([]Span) ([]Span, error) {
	return nil, transerrors.ErrSIrreducibleNoCandidate
}

func TestDriverResolverFailure(t *testing.T) {
	nodes := []node{{kind: InstPrimitive}, {kind: InstJumpDirect, target: 0}}
	d, err := NewDriver(wasm.NewModule(), &graphTranslator{nodes: nodes}, nil, DefaultConfig())
	require.NoError(t, err)
	d.SetResolver(failingResolver{})
	err = d.Run(context.Background(), addressOf(0))
	require.ErrorIs(t, err, transerrors.ErrSIrreducibleNoCandidate)
}

func TestDriverSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(context.Background())

	d, err := NewDriver(wasm.NewModule(), &graphTranslator{nodes: chain(2)}, nil, DefaultConfig())
	require.NoError(t, err)
	d.tracer = provider.Tracer("test")
	require.NoError(t, d.Run(context.Background(), addressOf(0)))
	_, err = d.Close(context.Background())
	require.NoError(t, err)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Equal(t, []string{"superblock", "superblock", "superblock", "translate", "close"}, names)
}

func TestDriverObserve(t *testing.T) {
	d, err := NewDriver(wasm.NewModule(), &graphTranslator{nodes: chain(2)}, nil, DefaultConfig())
	require.NoError(t, err)
	var starts []uint64
	d.Observe = func(sb *SuperBlock) {
		starts = append(starts, sb.Instructions()[0].Address)
	}
	require.NoError(t, d.Run(context.Background(), addressOf(0)))
	require.Equal(t, []uint64{addressOf(0), addressOf(2), addressOf(4)}, starts)
}

func TestUnitSummary(t *testing.T) {
	_, unit, _ := translate(t, chain(3), addressOf(0), Config{MaxDepth: 1}, mappingSet{addressOf(2): true})
	actual, err := json.Marshal(unit)
	require.NoError(t, err)

	expected := `{
		"exports": [{"name": "addr_0x0000000000001000", "address": 4096}],
		"links": [{"address": 4104, "slot": 0, "already_exists": true}],
		"startup": true,
		"stats": {
			"superblocks": 1, "instructions": 1, "chunks": 1, "ranges": 0,
			"irreducible": 0, "inline": 1, "linked": 0, "existing": 1
		}
	}`
	diff, same, err := DiffSummary([]byte(expected), actual)
	require.NoError(t, err)
	require.True(t, same, diff)
}
