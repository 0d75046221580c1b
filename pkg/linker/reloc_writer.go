package linker

import (
	"encoding/binary"
	"fmt"
)

// RelocWriter re-encodes every input section's relocation bytecode against
// the final layout and the combined import table. It runs after section
// payloads are assembled (it patches pointer words in place) and after
// import indices are assigned.
type RelocWriter struct {
	ctx *Context

	instrs  []uint16
	headers []RelocHeader

	// Emission state, reset per output section.
	relocAddr uint32 // position implied by emitted instructions
	posKnown  bool
	lastOp    int // opcode of the last emitted instruction, -1 if none
	sectC     int // output section index loaded in register C, -1 if unset
	sectD     int
}

func NewRelocWriter(ctx *Context) *RelocWriter {
	return &RelocWriter{ctx: ctx}
}

// Generate produces the relocation headers and the concatenated instruction
// stream for all output sections.
func (w *RelocWriter) Generate() ([]RelocHeader, []uint16, error) {
	for _, osec := range w.ctx.OutputSections {
		if err := w.processSection(osec); err != nil {
			return nil, nil, err
		}
	}
	return w.headers, w.instrs, nil
}

func (w *RelocWriter) processSection(osec *OutputSection) error {
	instrStart := len(w.instrs)
	w.relocAddr = 0
	w.posKnown = false
	w.lastOp = -1
	w.sectC = -1
	w.sectD = -1

	for _, isec := range osec.Members {
		if len(isec.Relocs) == 0 {
			continue
		}
		if err := w.processMember(osec, isec); err != nil {
			return err
		}
	}

	count := len(w.instrs) - instrStart
	if count > 0 {
		w.headers = append(w.headers, RelocHeader{
			SectionIndex:     osec.Idx,
			RelocCount:       uint32(count),
			FirstRelocOffset: uint32(instrStart * 2),
		})
	}
	return nil
}

// processMember decodes one member's stream and re-emits it in the output
// coordinate space: positions gain the member's offset, section registers
// are remapped to output section indices, import indices to the combined
// numbering.
func (w *RelocWriter) processMember(osec *OutputSection, isec *InputSection) error {
	file := isec.File

	// Register defaults: the module's first code and first data section.
	inputC := file.firstSectionOfKind(PEFCodeSection)
	inputD := file.firstSectionOfKind(PEFUnpackedDataSection)

	pos := isec.Offset
	d := NewRelocDecoder(isec.Relocs, file.File.Name)
	for !d.Done() {
		instr, err := d.Next()
		if err != nil {
			return err
		}

		switch instr.Opcode {
		case RelocSetPosition:
			pos = isec.Offset + instr.Wide
			w.posKnown = false

		case RelocSmSetSectC:
			inputC = int(instr.Operand)
		case RelocSmSetSectD:
			inputD = int(instr.Operand)

		case RelocBySectC, RelocBySectD:
			inputIdx := inputC
			if instr.Opcode == RelocBySectD {
				inputIdx = inputD
			}
			target, err := file.sectionByIndex(inputIdx)
			if err != nil {
				return err
			}
			run := uint32(instr.Operand) + 1
			if err := w.patchSectionRun(osec, pos, run, target.Offset); err != nil {
				return err
			}
			w.emitPosition(pos)
			w.emitBySect(instr.Opcode == RelocBySectC, target.OutputSection)
			w.emitRun(instr.Opcode, run)
			pos = w.relocAddr

		case RelocSmByImport, RelocLgByImport:
			idx := uint32(instr.Operand)
			if instr.Opcode == RelocLgByImport {
				idx = instr.Wide
			}
			imp, err := file.LocalImport(idx)
			if err != nil {
				return err
			}
			sym := w.ctx.SymTab.Find(imp.Name)
			if sym == nil {
				return fmt.Errorf("%s: relocation against unknown symbol %s",
					file.File.Name, imp.Name)
			}
			switch sym.Kind {
			case SymbolImported:
				w.emitPosition(pos)
				w.emitByImport(sym.ImportIndex)
			case SymbolDefined:
				// The reference resolved inside the link: rewrite the import
				// fixup as a section-relative pointer fixup.
				if err := w.emitResolved(osec, pos, sym); err != nil {
					return err
				}
			default:
				if !w.ctx.Args.AllowUndefined {
					return fmt.Errorf("%s: relocation against undefined symbol %s",
						file.File.Name, imp.Name)
				}
				// Tolerated undefined reference: leave the word untouched.
			}
			pos += 4
		}
	}
	return nil
}

// patchSectionRun rebases a run of pointer words: each stored value is an
// offset into the target input section, which now lives delta bytes into
// its output section.
func (w *RelocWriter) patchSectionRun(osec *OutputSection, pos, run, delta uint32) error {
	end := uint64(pos) + uint64(run)*4
	if end > uint64(len(osec.Buf)) {
		return fmt.Errorf("%s: relocation run at 0x%x overruns section (size 0x%x)",
			osec.Name, pos, len(osec.Buf))
	}
	for i := uint32(0); i < run; i++ {
		word := osec.Buf[pos+4*i:]
		binary.BigEndian.PutUint32(word, binary.BigEndian.Uint32(word)+delta)
	}
	return nil
}

// emitResolved turns a resolved cross-module reference into a one-pointer
// run against the defining section. The stored word is an addend relative
// to the symbol, so the symbol's offset within its output section is added
// to it; the runtime then adds the section's address like any other
// section fixup.
func (w *RelocWriter) emitResolved(osec *OutputSection, pos uint32, sym *Symbol) error {
	if sym.InputSection == nil {
		return fmt.Errorf("relocation against absolute symbol %s", sym.Name)
	}
	target := sym.InputSection.OutputSection

	if uint64(pos)+4 > uint64(len(osec.Buf)) {
		return fmt.Errorf("%s: relocation at 0x%x overruns section (size 0x%x)",
			osec.Name, pos, len(osec.Buf))
	}
	word := osec.Buf[pos:]
	binary.BigEndian.PutUint32(word,
		binary.BigEndian.Uint32(word)+sym.InputSection.Offset+sym.Value)

	w.emitPosition(pos)
	useC := target.Kind == PEFCodeSection
	w.emitBySect(useC, target)
	if useC {
		w.emitRun(RelocBySectC, 1)
	} else {
		w.emitRun(RelocBySectD, 1)
	}
	return nil
}

// emitPosition emits SetPosition only when the implied position drifted.
func (w *RelocWriter) emitPosition(pos uint32) {
	if w.posKnown && w.relocAddr == pos {
		return
	}
	first, second := ComposeWideReloc(RelocSetPosition, pos)
	w.instrs = append(w.instrs, first, second)
	w.relocAddr = pos
	w.posKnown = true
	w.lastOp = int(RelocSetPosition)
}

// emitBySect loads the wanted output section into the register the coming
// run uses, if it is not already there.
func (w *RelocWriter) emitBySect(useC bool, target *OutputSection) {
	idx := int(target.Idx)
	if useC {
		if w.sectC != idx {
			w.instrs = append(w.instrs, ComposeReloc(RelocSmSetSectC, uint16(idx)))
			w.sectC = idx
			w.lastOp = int(RelocSmSetSectC)
		}
	} else if w.sectD != idx {
		w.instrs = append(w.instrs, ComposeReloc(RelocSmSetSectD, uint16(idx)))
		w.sectD = idx
		w.lastOp = int(RelocSmSetSectD)
	}
}

// emitRun appends a pointer-run instruction. When the previous emitted
// instruction is the same run opcode the positions are necessarily
// contiguous (a position drift would have emitted SetPosition in between),
// so the runs coalesce if the combined length still fits in the operand.
func (w *RelocWriter) emitRun(opcode uint8, run uint32) {
	if w.lastOp == int(opcode) {
		n := len(w.instrs)
		combined := uint32(RelocOperand(w.instrs[n-1])) + 1 + run
		if combined <= 0x400 {
			w.instrs[n-1] = ComposeReloc(opcode, uint16(combined-1))
			w.relocAddr += 4 * run
			return
		}
	}
	w.instrs = append(w.instrs, ComposeReloc(opcode, uint16(run-1)))
	w.relocAddr += 4 * run
	w.lastOp = int(opcode)
}

func (w *RelocWriter) emitByImport(index uint32) {
	if index < 256 {
		w.instrs = append(w.instrs, ComposeReloc(RelocSmByImport, uint16(index)))
		w.lastOp = int(RelocSmByImport)
	} else {
		first, second := ComposeWideReloc(RelocLgByImport, index)
		w.instrs = append(w.instrs, first, second)
		w.lastOp = int(RelocLgByImport)
	}
	w.relocAddr += 4
}

func (f *ObjectFile) firstSectionOfKind(kind uint8) int {
	for i := range f.SectionHdrs {
		if f.SectionHdrs[i].SectionKind == kind {
			return i
		}
	}
	return -1
}

func (f *ObjectFile) sectionByIndex(idx int) (*InputSection, error) {
	if idx < 0 || idx >= len(f.InputSections) || f.InputSections[idx] == nil {
		return nil, fmt.Errorf("%s: relocation targets invalid section %d",
			f.File.Name, idx)
	}
	return f.InputSections[idx], nil
}
