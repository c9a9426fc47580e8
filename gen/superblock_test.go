package gen

import (
	"testing"

	"github.com/BjoernBoss/wasmlator-sub001/transerrors"
	"github.com/BjoernBoss/wasmlator-sub001/wasm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inst(i int, kind InstType, target int) Instruction {
	in := Instruction{Address: addressOf(i), Size: graphStride, Type: kind}
	if kind == InstJumpDirect || kind == InstConditionalDirect {
		in.Target = addressOf(target)
	}
	return in
}

// build pushes the nodes the way the driver fetches them.
func build(t *testing.T, nodes []node, singleStep bool) *SuperBlock {
	t.Helper()
	tr := &graphTranslator{nodes: nodes}
	sb := NewSuperBlock(addressOf(0), singleStep, nil)
	for {
		cont, err := sb.Push(tr.Fetch(sb.NextAddress()))
		require.NoError(t, err)
		if !cont && !sb.Incomplete() {
			break
		}
	}
	require.NoError(t, sb.SetupRanges())
	return sb
}

// emit runs the chunk emitter without a producer and returns the chunks.
func emit(t *testing.T, sb *SuperBlock) ([][]Instruction, *wasm.Sink) {
	t.Helper()
	mod := wasm.NewModule()
	mw := newModuleWriter(mod)
	sink := wasm.NewSink(mod.Function("block", mw.block, false))
	var chunks [][]Instruction
	for sb.Next(sink, mw) {
		chunks = append(chunks, append([]Instruction(nil), sb.Chunk()...))
	}
	require.NoError(t, sink.Close())
	return chunks, sink
}

func TestPushStrands(t *testing.T) {
	sb := NewSuperBlock(addressOf(0), false, nil)
	cont, err := sb.Push(inst(0, InstPrimitive, 0))
	require.NoError(t, err)
	require.True(t, cont)
	require.Equal(t, addressOf(1), sb.NextAddress())

	cont, err = sb.Push(inst(1, InstConditionalDirect, 0))
	require.NoError(t, err)
	require.True(t, cont)

	cont, err = sb.Push(inst(2, InstJumpDirect, 0))
	require.NoError(t, err)
	require.False(t, cont)
	require.False(t, sb.Incomplete())

	_, err = sb.Push(Instruction{Address: addressOf(3), Type: InstPrimitive})
	require.ErrorIs(t, err, transerrors.ErrSZeroSizeInstruction)
}

func TestPushInvalidEndsStrand(t *testing.T) {
	sb := NewSuperBlock(addressOf(0), false, nil)
	cont, err := sb.Push(Instruction{Address: addressOf(0), Type: InstInvalid})
	require.NoError(t, err)
	require.False(t, cont)
	require.False(t, sb.Incomplete())
	require.Equal(t, 1, sb.Len())
}

func TestSingleStepPush(t *testing.T) {
	sb := build(t, []node{{kind: InstPrimitive}, {kind: InstPrimitive}}, true)
	require.Equal(t, 1, sb.Len())
	require.Empty(t, sb.Ranges())
}

func TestSuperblockExtension(t *testing.T) {
	// the branch at 0 jumps over the unconditional jump, so the block
	// continues after the first strand; the second jump back to 1 ends it
	nodes := []node{
		{kind: InstConditionalDirect, target: 2},
		{kind: InstJumpDirect, target: 5},
		{kind: InstPrimitive},
		{kind: InstJumpDirect, target: 1},
		{kind: InstPrimitive},
	}
	sb := build(t, nodes, false)
	require.Equal(t, 4, sb.Len())
}

func TestSuperblockLateExtension(t *testing.T) {
	// the target of the first branch only becomes adjacent after the
	// strand opened by the second branch was collected
	nodes := []node{
		{kind: InstConditionalDirect, target: 4},
		{kind: InstConditionalDirect, target: 3},
		{kind: InstEndOfBlock},
		{kind: InstEndOfBlock},
		{kind: InstEndOfBlock},
		{kind: InstPrimitive},
	}
	sb := build(t, nodes, false)
	require.Equal(t, 5, sb.Len())
}

func TestScenarioStraightLine(t *testing.T) {
	sb := build(t, []node{{kind: InstPrimitive}, {kind: InstPrimitive}, {kind: InstEndOfBlock}}, false)
	require.Empty(t, sb.Ranges())
	chunks, _ := emit(t, sb)
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0], 3)
}

func TestScenarioForwardSkip(t *testing.T) {
	nodes := []node{
		{kind: InstConditionalDirect, target: 3},
		{kind: InstPrimitive},
		{kind: InstPrimitive},
		{kind: InstEndOfBlock},
	}
	sb := build(t, nodes, false)
	require.Equal(t, []InstRange{{First: 0, Last: 2, Origin: 0, Kind: RangeForward}}, sb.Ranges())
	require.Equal(t, addressOf(3), sb.TargetAddress(sb.Ranges()[0]))

	chunks, sink := emit(t, sb)
	require.Len(t, chunks, 2)
	require.Len(t, chunks[0], 3)
	require.Equal(t, addressOf(3), chunks[1][0].Address)

	code := sink.Instructions()
	require.Equal(t, wasm.OpBlock, code[0].Op)
	require.Equal(t, wasm.OpEnd, code[1].Op)
}

func TestScenarioBackwardLoop(t *testing.T) {
	nodes := []node{
		{kind: InstPrimitive},
		{kind: InstJumpDirect, target: 0},
	}
	sb := build(t, nodes, false)
	require.Equal(t, []InstRange{{First: 0, Last: 1, Origin: 0, Kind: RangeBackward}}, sb.Ranges())
	require.Equal(t, addressOf(0), sb.TargetAddress(sb.Ranges()[0]))

	chunks, sink := emit(t, sb)
	require.Len(t, chunks, 1)
	code := sink.Instructions()
	require.Equal(t, wasm.OpLoop, code[0].Op)
	require.True(t, code[0].Label.IsLoop())
	// the loop is closed before the not reachable trap
	require.Equal(t, wasm.OpEnd, code[1].Op)
	require.Equal(t, wasm.OpUnreachable, code[len(code)-1].Op)
}

func TestScenarioSharedExit(t *testing.T) {
	nodes := []node{
		{kind: InstConditionalDirect, target: 3},
		{kind: InstConditionalDirect, target: 5},
		{kind: InstConditionalDirect, target: 5},
		{kind: InstPrimitive},
		{kind: InstPrimitive},
		{kind: InstEndOfBlock},
	}
	sb := build(t, nodes, false)
	require.Equal(t, []InstRange{
		{First: 0, Last: 4, Origin: 0, Kind: RangeForward},
		{First: 0, Last: 2, Origin: 1, Kind: RangeForward},
	}, sb.Ranges())
	require.Zero(t, sb.Irreducible())
}

func TestScenarioIrreducible(t *testing.T) {
	nodes := []node{
		{kind: InstConditionalDirect, target: 2},
		{kind: InstPrimitive},
		{kind: InstPrimitive},
		{kind: InstConditionalDirect, target: 1},
		{kind: InstEndOfBlock},
	}
	sb := build(t, nodes, false)
	require.Equal(t, []InstRange{
		{First: 0, Last: 3, Origin: 0, Kind: RangeBackward},
		{First: 0, Last: 1, Origin: 1, Kind: RangeForward},
		{First: 0, Last: 0, Origin: 0, Kind: RangeGuard},
	}, sb.Ranges())
	require.Equal(t, 1, sb.Irreducible())
	require.Equal(t, addressOf(1), sb.TargetAddress(sb.Ranges()[0]))

	_, sink := emit(t, sb)
	code := sink.Instructions()
	ops := make([]wasm.Opcode, 0, 8)
	for _, in := range code[:8] {
		ops = append(ops, in.Op)
	}
	// loop, block, guard block, guard check
	assert.Equal(t, []wasm.Opcode{
		wasm.OpLoop, wasm.OpBlock, wasm.OpBlock,
		wasm.OpLocalGet, wasm.OpIf, wasm.OpI32Const, wasm.OpLocalSet, wasm.OpBr,
	}, ops)
	assert.Equal(t, int64(1), code[7].Value)
	require.Len(t, sink.Function().Locals(), 1)
}

func TestTrailingInvalid(t *testing.T) {
	nodes := []node{{kind: InstPrimitive}, {kind: InstPrimitive}}
	sb := build(t, nodes, false)
	require.Equal(t, 3, sb.Len())

	chunks, sink := emit(t, sb)
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0], 2)
	code := sink.Instructions()
	require.Equal(t, uint64(addressOf(2)), uint64(code[0].Value))
	require.Equal(t, "not_decodable", code[1].Func.Name)
}

func TestSingleStepResult(t *testing.T) {
	sb := build(t, []node{{kind: InstPrimitive}, {kind: InstEndOfBlock}}, true)
	chunks, sink := emit(t, sb)
	require.Len(t, chunks, 1)
	code := sink.Instructions()
	require.Len(t, code, 1)
	require.Equal(t, wasm.OpI64Const, code[0].Op)
	require.Equal(t, int64(addressOf(1)), code[0].Value)
}

func TestTree(t *testing.T) {
	nodes := []node{
		{kind: InstConditionalDirect, target: 2},
		{kind: InstPrimitive},
		{kind: InstPrimitive},
		{kind: InstConditionalDirect, target: 1},
		{kind: InstEndOfBlock},
	}
	out := build(t, nodes, false).Tree().String()
	assert.Contains(t, out, "loop [0,3] -> 0x1004")
	assert.Contains(t, out, "guard [0,0] -> 0x1004")
	assert.Contains(t, out, "block [0,1] -> 0x1008")
	assert.Contains(t, out, "4: 0x1010 endOfBlock")
}
