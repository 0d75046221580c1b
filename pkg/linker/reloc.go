package linker

import "fmt"

// RelocInstr is one decoded relocation instruction. Wide instructions
// (SetPosition, LgByImport) occupy two words; Wide carries the combined
// operand for those.
type RelocInstr struct {
	Opcode  uint8
	Operand uint16
	Wide    uint32
	Words   int
}

// RelocDecoder walks a raw instruction stream. Unknown opcodes and
// truncated wide operands are hard errors: a partially relocated binary is
// worse than none.
type RelocDecoder struct {
	words []uint16
	pos   int
	name  string
}

func NewRelocDecoder(words []uint16, name string) *RelocDecoder {
	return &RelocDecoder{words: words, name: name}
}

func (d *RelocDecoder) Done() bool {
	return d.pos >= len(d.words)
}

func (d *RelocDecoder) Next() (RelocInstr, error) {
	word := d.words[d.pos]
	instr := RelocInstr{
		Opcode:  RelocOpcode(word),
		Operand: RelocOperand(word),
		Words:   1,
	}

	switch instr.Opcode {
	case RelocSetPosition, RelocLgByImport:
		if d.pos+1 >= len(d.words) {
			return instr, fmt.Errorf(
				"%s: truncated wide relocation at instruction %d", d.name, d.pos)
		}
		instr.Wide = WideOperand(word, d.words[d.pos+1])
		instr.Words = 2
	case RelocBySectC, RelocBySectD, RelocSmByImport,
		RelocSmSetSectC, RelocSmSetSectD:
		// single word
	default:
		return instr, fmt.Errorf("%s: unsupported relocation opcode 0x%02x at instruction %d",
			d.name, instr.Opcode, d.pos)
	}

	d.pos += instr.Words
	return instr, nil
}

// FixupCount is how many 4-byte fixup targets the instruction describes.
func (in RelocInstr) FixupCount() int {
	switch in.Opcode {
	case RelocBySectC, RelocBySectD:
		return int(in.Operand) + 1
	case RelocSmByImport, RelocLgByImport:
		return 1
	}
	return 0
}

// ScanRelocations walks an input section's stream to find which imported
// symbols it references, by local import index. No address side effects.
func ScanRelocations(isec *InputSection) ([]uint32, error) {
	var indices []uint32
	d := NewRelocDecoder(isec.Relocs, isec.File.File.Name)
	for !d.Done() {
		instr, err := d.Next()
		if err != nil {
			return nil, err
		}
		switch instr.Opcode {
		case RelocSmByImport:
			indices = append(indices, uint32(instr.Operand))
		case RelocLgByImport:
			indices = append(indices, instr.Wide)
		}
	}
	return indices, nil
}

// CountFixups totals the fixup targets described by a raw stream.
func CountFixups(words []uint16, name string) (int, error) {
	total := 0
	d := NewRelocDecoder(words, name)
	for !d.Done() {
		instr, err := d.Next()
		if err != nil {
			return 0, err
		}
		total += instr.FixupCount()
	}
	return total, nil
}
