package linker

import (
	"sort"
	"testing"
)

// objBuilder emits PEF object containers for tests, through the same format
// helpers the production code uses. Imports, when present, hang off a single
// stub library record named "stub".
type objSection struct {
	kind   uint8
	align  uint8 // power of two
	data   []byte
	relocs []uint16
}

type objExport struct {
	name    string
	class   uint8
	section int16
	value   uint32
}

type objImport struct {
	name  string
	class uint8
}

type objBuilder struct {
	sections []objSection
	imports  []objImport
	exports  []objExport
}

func (b *objBuilder) build(t *testing.T, name string) *File {
	t.Helper()
	loader := b.buildLoader()

	sectionCount := len(b.sections) + 1
	headerEnd := ContainerHeaderSize + sectionCount*SectionHeaderSize

	offs := make([]uint32, len(b.sections))
	off := (uint32(headerEnd) + 15) &^ 15
	for i := range b.sections {
		offs[i] = off
		off = (off + uint32(len(b.sections[i].data)) + 15) &^ 15
	}
	loaderOff := off

	var w ByteWriter
	w.U32(PEFTag1)
	w.U32(PEFTag2)
	w.U32(PEFPowerPCArch)
	w.U32(PEFVersion)
	for i := 0; i < 4; i++ {
		w.U32(0)
	}
	w.U16(uint16(sectionCount))
	w.U16(uint16(len(b.sections)))
	w.U32(0)

	for i := range b.sections {
		s := &b.sections[i]
		writeSectionHeader(&w, &SectionHeader{
			NameOffset:      -1,
			TotalLength:     uint32(len(s.data)),
			UnpackedLength:  uint32(len(s.data)),
			ContainerLength: uint32(len(s.data)),
			ContainerOffset: offs[i],
			SectionKind:     s.kind,
			ShareKind:       PEFProcessShare,
			Alignment:       s.align,
		})
	}
	writeSectionHeader(&w, &SectionHeader{
		NameOffset:      -1,
		TotalLength:     uint32(len(loader)),
		UnpackedLength:  uint32(len(loader)),
		ContainerLength: uint32(len(loader)),
		ContainerOffset: loaderOff,
		SectionKind:     PEFLoaderSection,
		ShareKind:       PEFGlobalShare,
		Alignment:       2,
	})

	for i := range b.sections {
		w.Pad(16)
		w.Raw(b.sections[i].data)
	}
	w.Pad(16)
	w.Raw(loader)

	return &File{Name: name, Content: w.Bytes()}
}

func (b *objBuilder) buildLoader() []byte {
	st := newStringTable()

	libCount := 0
	libNameOff := uint32(0)
	if len(b.imports) > 0 {
		libCount = 1
		libNameOff = st.Add("stub")
	}
	impOffs := make([]uint32, len(b.imports))
	for i := range b.imports {
		impOffs[i] = st.Add(b.imports[i].name)
	}

	type expEntry struct {
		objExport
		nameOff uint32
		hash    uint32
	}
	exps := make([]expEntry, len(b.exports))
	for i, e := range b.exports {
		exps[i] = expEntry{e, st.Add(e.name), ExportHashWord(e.name)}
	}
	power := ExportHashTablePower(len(exps))
	slotCount := 1 << power
	sort.SliceStable(exps, func(i, j int) bool {
		return exps[i].hash%uint32(slotCount) < exps[j].hash%uint32(slotCount)
	})

	var hdrs []RelocHeader
	var instrs []uint16
	for i := range b.sections {
		words := b.sections[i].relocs
		if len(words) == 0 {
			continue
		}
		hdrs = append(hdrs, RelocHeader{
			SectionIndex:     uint16(i),
			RelocCount:       uint32(len(words)),
			FirstRelocOffset: uint32(len(instrs) * 2),
		})
		instrs = append(instrs, words...)
	}

	relocHdrOff := LoaderInfoSize +
		libCount*ImportedLibrarySize + len(b.imports)*ImportedSymbolSize
	stringsOff := relocHdrOff + len(hdrs)*RelocHeaderSize + len(instrs)*2
	hashOff := (stringsOff + len(st.buf) + 3) &^ 3

	var w ByteWriter
	w.I32(-1)
	w.U32(0)
	w.I32(-1)
	w.U32(0)
	w.I32(-1)
	w.U32(0)
	w.U32(uint32(libCount))
	w.U32(uint32(len(b.imports)))
	w.U32(uint32(len(hdrs)))
	w.U32(uint32(relocHdrOff))
	w.U32(uint32(stringsOff))
	w.U32(uint32(hashOff))
	w.U32(power)
	w.U32(uint32(len(exps)))

	if libCount == 1 {
		w.U32(libNameOff)
		w.U32(0)
		w.U32(0)
		w.U32(uint32(len(b.imports)))
		w.U32(0)
		w.U8(0)
		w.U8(0)
		w.U16(0)
	}
	for i := range b.imports {
		w.U32(ComposeImportedSymbol(b.imports[i].class, impOffs[i]))
	}
	for _, hdr := range hdrs {
		w.U16(hdr.SectionIndex)
		w.U16(0)
		w.U32(hdr.RelocCount)
		w.U32(hdr.FirstRelocOffset)
	}
	for _, instr := range instrs {
		w.U16(instr)
	}
	w.Raw(st.buf)
	w.Pad(4)

	next := 0
	for slot := 0; slot < slotCount; slot++ {
		first := next
		for next < len(exps) && int(exps[next].hash%uint32(slotCount)) == slot {
			next++
		}
		w.U32(ComposeHashSlot(uint32(next-first), uint32(first)))
	}
	for i := range exps {
		w.U32(exps[i].hash)
	}
	for i := range exps {
		w.U32(ComposeExportedSymbol(exps[i].class, exps[i].nameOff))
		w.U32(exps[i].value)
		w.I16(exps[i].section)
	}
	return w.Bytes()
}

// buildStubLibrary makes an import library container exporting the given
// names, all as code symbols at value 0.
func buildStubLibrary(t *testing.T, filename string, names ...string) *SharedLibrary {
	t.Helper()
	b := &objBuilder{}
	for _, name := range names {
		b.exports = append(b.exports, objExport{
			name: name, class: PEFCodeSymbol, section: -1, value: 0,
		})
	}
	lib, err := NewSharedLibrary(b.build(t, filename), false)
	if err != nil {
		t.Fatalf("building stub library %s: %v", filename, err)
	}
	return lib
}
