package gen

import (
	"github.com/BjoernBoss/wasmlator-sub001/wasm"
)

const (
	mapModule     = "map"
	contextModule = "ctx"
	linkTableName = "linked_addresses"
	startupName   = "_setup_imports"
)

// ModuleWriter owns the module level objects shared by every block of a
// unit: the block prototype, the mapping imports and the trap imports.
type ModuleWriter struct {
	mod            *wasm.Module
	block          *wasm.Prototype
	functions      *wasm.Table
	lookup         *wasm.Function
	notDecodableFn *wasm.Function
	notReachableFn *wasm.Function
}

func newModuleWriter(mod *wasm.Module) *ModuleWriter {
	mw := &ModuleWriter{mod: mod}
	mw.block = mod.Prototype(nil, []wasm.ValType{wasm.I64})
	mw.functions = mod.ImportTable(mapModule, "functions", wasm.FuncRef, 1)
	mw.lookup = mod.ImportFunction(mapModule, "lookup", mod.Prototype([]wasm.ValType{wasm.I64}, []wasm.ValType{wasm.I32}))

	trap := mod.Prototype([]wasm.ValType{wasm.I64}, nil)
	mw.notDecodableFn = mod.ImportFunction(contextModule, "not_decodable", trap)
	mw.notReachableFn = mod.ImportFunction(contextModule, "not_reachable", trap)
	return mw
}

func (mw *ModuleWriter) Module() *wasm.Module {
	return mw.mod
}

// BlockPrototype is the signature of every translated block: no
// parameters, the next guest address as result.
func (mw *ModuleWriter) BlockPrototype() *wasm.Prototype {
	return mw.block
}

func (mw *ModuleWriter) notDecodable(sink *wasm.Sink, address uint64) {
	sink.Add(wasm.U64Const(address), wasm.Call(mw.notDecodableFn), wasm.Op(wasm.OpUnreachable))
}

func (mw *ModuleWriter) notReachable(sink *wasm.Sink, address uint64) {
	sink.Add(wasm.U64Const(address), wasm.Call(mw.notReachableFn), wasm.Op(wasm.OpUnreachable))
}
