package gen

import (
	"github.com/BjoernBoss/wasmlator-sub001/wasm"
)

// addressWriter emits the transfers that leave the current block. Return
// values travel as i64 guest addresses; an address the mapping does not
// know yet is returned to the host unchanged.
type addressWriter struct {
	sink       *wasm.Sink
	addresses  *Addresses
	mw         *ModuleWriter
	singleStep bool

	addrTemp  wasm.Variable
	indexTemp wasm.Variable
	hasAddr   bool
	hasIndex  bool
}

func (w *addressWriter) addrLocal() wasm.Variable {
	if !w.hasAddr {
		w.addrTemp = w.sink.Local(wasm.I64, "addr_temp")
		w.hasAddr = true
	}
	return w.addrTemp
}

func (w *addressWriter) indexLocal() wasm.Variable {
	if !w.hasIndex {
		w.indexTemp = w.sink.Local(wasm.I32, "index_temp")
		w.hasIndex = true
	}
	return w.indexTemp
}

// lookup resolves the address in addr_temp to an index of the mapping
// table, returning the address to the caller if it is not translated.
func (w *addressWriter) lookup() wasm.Variable {
	index := w.indexLocal()
	w.sink.Add(wasm.LocalGet(w.addrLocal()), wasm.Call(w.mw.lookup), wasm.LocalTee(index), wasm.Op(wasm.OpI32Eqz))
	miss := w.sink.If("")
	w.sink.Add(wasm.LocalGet(w.addrLocal()), wasm.Op(wasm.OpReturn))
	w.sink.End(miss)
	return index
}

// ensureLink fills an empty link slot on first use.
func (w *addressWriter) ensureLink(p Placement, address uint64) {
	if p.AlreadyExists {
		return
	}
	w.sink.Add(wasm.I32Const(int32(p.Slot)), wasm.TableGet(w.addresses.links), wasm.Op(wasm.OpRefIsNull))
	empty := w.sink.If("")
	w.sink.Add(wasm.U64Const(address), wasm.LocalSet(w.addrLocal()))
	index := w.lookup()
	w.sink.Add(
		wasm.I32Const(int32(p.Slot)),
		wasm.LocalGet(index),
		wasm.TableGet(w.mw.functions),
		wasm.TableSet(w.addresses.links),
	)
	w.sink.End(empty)
}

// landing forwards any returned address other than next.
func (w *addressWriter) landing(next uint64) {
	temp := w.addrLocal()
	w.sink.Add(wasm.LocalTee(temp), wasm.U64Const(next), wasm.Op(wasm.OpI64Ne))
	other := w.sink.If("")
	w.sink.Add(wasm.LocalGet(temp), wasm.Op(wasm.OpReturn))
	w.sink.End(other)
}

func (w *addressWriter) makeCall(address uint64, next uint64) error {
	if w.singleStep {
		w.sink.Add(wasm.U64Const(address), wasm.Op(wasm.OpReturn))
		return nil
	}
	p, err := w.addresses.PushLocal(address)
	if err != nil {
		return err
	}
	if p.ThisModule() {
		w.sink.Add(wasm.Call(p.Function))
	} else {
		w.ensureLink(p, address)
		w.sink.Add(wasm.I32Const(int32(p.Slot)), wasm.CallIndirect(w.addresses.links, w.mw.block))
	}
	w.landing(next)
	return nil
}

func (w *addressWriter) makeJump(address uint64) error {
	if w.singleStep {
		w.sink.Add(wasm.U64Const(address), wasm.Op(wasm.OpReturn))
		return nil
	}
	p, err := w.addresses.PushLocal(address)
	if err != nil {
		return err
	}
	if p.ThisModule() {
		w.sink.Add(wasm.ReturnCall(p.Function))
		return nil
	}
	w.ensureLink(p, address)
	w.sink.Add(wasm.I32Const(int32(p.Slot)), wasm.ReturnCallIndirect(w.addresses.links, w.mw.block))
	return nil
}

// makeCallIndirect expects the i64 target on the stack.
func (w *addressWriter) makeCallIndirect(next uint64) {
	if w.singleStep {
		w.sink.Add(wasm.Op(wasm.OpReturn))
		return
	}
	w.sink.Add(wasm.LocalSet(w.addrLocal()))
	index := w.lookup()
	w.sink.Add(wasm.LocalGet(index), wasm.CallIndirect(w.mw.functions, w.mw.block))
	w.landing(next)
}

// makeJumpIndirect expects the i64 target on the stack.
func (w *addressWriter) makeJumpIndirect() {
	if w.singleStep {
		w.sink.Add(wasm.Op(wasm.OpReturn))
		return
	}
	w.sink.Add(wasm.LocalSet(w.addrLocal()))
	index := w.lookup()
	w.sink.Add(wasm.LocalGet(index), wasm.ReturnCallIndirect(w.mw.functions, w.mw.block))
}

// makeReturn expects the i64 return address on the stack.
func (w *addressWriter) makeReturn() {
	w.sink.Add(wasm.Op(wasm.OpReturn))
}
