package program

import (
	"fmt"
	"strings"
)

func reg(r int) string {
	return fmt.Sprintf("r%d", r)
}

// String renders the instruction as "mnemonic operands" with registers as
// rN, immediates in hex and offsets as absolute pcs.
func (i Inst) String() string {
	name := strings.ToLower(OpcodeToString(i.Opcode))
	if !Valid(i.Opcode) {
		return name
	}
	var args []string
	switch FormatOf(i.Opcode) {
	case FormatOneImm:
		args = []string{fmt.Sprintf("%d", uint32(i.ImmX))}
	case FormatOneRegExtImm, FormatOneRegOneImm:
		args = []string{reg(i.RegA), fmt.Sprintf("0x%x", i.ImmX)}
	case FormatTwoImm:
		args = []string{fmt.Sprintf("0x%x", i.ImmX), fmt.Sprintf("0x%x", i.ImmY)}
	case FormatOneOffset:
		args = []string{fmt.Sprintf("@%d", i.Target)}
	case FormatOneRegTwoImm:
		args = []string{reg(i.RegA), fmt.Sprintf("0x%x", i.ImmX), fmt.Sprintf("0x%x", i.ImmY)}
	case FormatOneRegImmOffset:
		args = []string{reg(i.RegA), fmt.Sprintf("0x%x", i.ImmX), fmt.Sprintf("@%d", i.Target)}
	case FormatTwoRegs:
		args = []string{reg(i.RegD), reg(i.RegA)}
	case FormatTwoRegsOneImm:
		args = []string{reg(i.RegA), reg(i.RegB), fmt.Sprintf("0x%x", i.ImmX)}
	case FormatTwoRegsOneOffset:
		args = []string{reg(i.RegA), reg(i.RegB), fmt.Sprintf("@%d", i.Target)}
	case FormatTwoRegsTwoImm:
		args = []string{reg(i.RegA), reg(i.RegB), fmt.Sprintf("0x%x", i.ImmX), fmt.Sprintf("0x%x", i.ImmY)}
	case FormatThreeRegs:
		args = []string{reg(i.RegD), reg(i.RegA), reg(i.RegB)}
	}
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, ", ")
}

// Disassemble lists every instruction start, marking basic block starts
// with a leading label line.
func (p *Program) Disassemble() []string {
	var lines []string
	starts := true
	for _, inst := range p.Instructions() {
		if starts {
			lines = append(lines, fmt.Sprintf("@%d:", inst.PC))
		}
		lines = append(lines, fmt.Sprintf("  %6d  %s", inst.PC, inst))
		starts = IsBasicBlockTerminator(inst.Opcode)
	}
	return lines
}
