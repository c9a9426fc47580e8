package gen

import (
	"github.com/BjoernBoss/wasmlator-sub001/wasm"
)

// Writer is handed to the producer for the duration of one superblock.
type Writer struct {
	sink    *wasm.Sink
	block   *SuperBlock
	addr    *addressWriter
	mw      *ModuleWriter
	address uint64
}

func newWriter(sink *wasm.Sink, block *SuperBlock, addresses *Addresses, mw *ModuleWriter, singleStep bool) *Writer {
	return &Writer{
		sink:    sink,
		block:   block,
		mw:      mw,
		address: block.start,
		addr: &addressWriter{
			sink:       sink,
			addresses:  addresses,
			mw:         mw,
			singleStep: singleStep,
		},
	}
}

func (w *Writer) Sink() *wasm.Sink {
	return w.sink
}

func (w *Writer) Module() *ModuleWriter {
	return w.mw
}

// Address is the start address of the superblock being written.
func (w *Writer) Address() uint64 {
	return w.address
}

// HasTarget reports whether address can be reached by a structured branch
// from the current position.
func (w *Writer) HasTarget(address uint64) bool {
	f, _ := w.block.label(address)
	return f != nil
}

// Jump transfers control to address, as a branch if possible.
func (w *Writer) Jump(address uint64) error {
	if f, t := w.block.label(address); f != nil {
		if t.irreducible {
			w.sink.Add(wasm.I32Const(1), wasm.LocalSet(t.guard))
		}
		w.sink.Add(wasm.Br(f.label))
		return nil
	}
	return w.addr.makeJump(address)
}

// Call invokes address and continues with the following code if the
// callee returns next.
func (w *Writer) Call(address uint64, next uint64) error {
	return w.addr.makeCall(address, next)
}

// JumpIndirect expects the i64 destination on the stack.
func (w *Writer) JumpIndirect() {
	w.addr.makeJumpIndirect()
}

// CallIndirect expects the i64 destination on the stack.
func (w *Writer) CallIndirect(next uint64) {
	w.addr.makeCallIndirect(next)
}

// Return expects the i64 return address on the stack.
func (w *Writer) Return() {
	w.addr.makeReturn()
}

// NotDecodable traps with the given address.
func (w *Writer) NotDecodable(address uint64) {
	w.mw.notDecodable(w.sink, address)
}
