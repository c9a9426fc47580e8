package program

import "github.com/BjoernBoss/wasmlator-sub001/gen"

// ProgramStats contains statistics about a PVM program
type ProgramStats struct {
	InstructionCount   int          // decodable instructions
	BasicBlockCount    int          // instructions following a terminator, plus the entry
	InvalidCount       int          // bitmask positions without a known opcode
	OpcodeDistribution map[byte]int // per opcode
	KindDistribution   map[gen.InstType]int
}

// Analyze walks all bitmask positions and classifies the instructions
// found there the same way Fetch does.
func (p *Program) Analyze() *ProgramStats {
	stats := &ProgramStats{
		OpcodeDistribution: make(map[byte]int),
		KindDistribution:   make(map[gen.InstType]int),
	}

	startsBlock := true
	for pc := uint64(0); pc < uint64(len(p.Code)); pc++ {
		if !p.K[pc] {
			continue
		}
		inst := p.Fetch(pc)
		if inst.Type == gen.InstInvalid {
			stats.InvalidCount++
			startsBlock = true
			continue
		}
		stats.InstructionCount++
		stats.OpcodeDistribution[p.Code[pc]]++
		stats.KindDistribution[inst.Type]++
		if startsBlock {
			stats.BasicBlockCount++
		}
		startsBlock = IsBasicBlockTerminator(p.Code[pc])
	}
	return stats
}

// Instructions decodes every instruction start in pc order.
func (p *Program) Instructions() []Inst {
	var out []Inst
	for pc := uint64(0); pc < uint64(len(p.Code)); pc++ {
		if p.K[pc] {
			out = append(out, p.Decode(pc))
		}
	}
	return out
}
