package gen

import "fmt"

type InstType uint8

const (
	InstInvalid InstType = iota
	InstPrimitive
	InstJumpDirect
	InstConditionalDirect
	InstEndOfBlock
)

func (t InstType) String() string {
	switch t {
	case InstInvalid:
		return "invalid"
	case InstPrimitive:
		return "primitive"
	case InstJumpDirect:
		return "jumpDirect"
	case InstConditionalDirect:
		return "conditionalDirect"
	case InstEndOfBlock:
		return "endOfBlock"
	default:
		return fmt.Sprintf("InstType(%d)", uint8(t))
	}
}

// Instruction is what the decoder reports about one guest instruction.
// Data is an opaque handle for the producer; Target is only meaningful
// for direct jumps and conditional branches.
type Instruction struct {
	Data    uint64
	Target  uint64
	Address uint64
	Size    uint64
	Type    InstType
}

func (i Instruction) branches() bool {
	return i.Type == InstJumpDirect || i.Type == InstConditionalDirect
}

// Translator is the guest specific collaborator: it decodes instructions
// and produces the code for each chunk through the Writer.
type Translator interface {
	// Setup is called once per unit before any block is produced.
	Setup(w *ModuleWriter) error
	Started(w *Writer) error
	Completed(w *Writer) error
	Fetch(address uint64) Instruction
	Produce(w *Writer, address uint64, chunk []Instruction) error
}

// Mapping knows which guest addresses were exported by previously closed units.
type Mapping interface {
	Contains(address uint64) bool
}

// Config holds the translation parameters of a unit.
type Config struct {
	MaxDepth   uint32 `toml:"max_depth"`
	SingleStep bool   `toml:"single_step"`
}

func DefaultConfig() Config {
	return Config{MaxDepth: 4}
}
