package linker

import (
	"fmt"
	"sort"
)

// ImportGroup is one imported library together with the symbols resolved
// from it, in final import-index order. PEF requires each library's imports
// to be contiguous in the combined table.
type ImportGroup struct {
	Library *SharedLibrary
	Symbols []*Symbol
}

// CollectImports groups the imported symbols by library, libraries in
// first-use order, and assigns every symbol its index in the combined
// import table. Must run before relocation rewriting, which emits those
// indices.
func CollectImports(ctx *Context) []ImportGroup {
	var groups []ImportGroup
	byLib := make(map[*SharedLibrary]int)

	for _, sym := range ctx.SymTab.Imported() {
		gi, ok := byLib[sym.Library]
		if !ok {
			gi = len(groups)
			byLib[sym.Library] = gi
			groups = append(groups, ImportGroup{Library: sym.Library})
		}
		groups[gi].Symbols = append(groups[gi].Symbols, sym)
	}

	index := uint32(0)
	for gi := range groups {
		for _, sym := range groups[gi].Symbols {
			sym.ImportIndex = index
			index++
		}
	}
	return groups
}

// stringTable interns loader names, deduplicating exact repeats. Offsets
// are relative to the string table start.
type stringTable struct {
	buf     []byte
	offsets map[string]uint32
}

func newStringTable() *stringTable {
	return &stringTable{offsets: make(map[string]uint32)}
}

func (st *stringTable) Add(name string) uint32 {
	if off, ok := st.offsets[name]; ok {
		return off
	}
	off := uint32(len(st.buf))
	st.offsets[name] = off
	st.buf = append(st.buf, name...)
	st.buf = append(st.buf, 0)
	return off
}

type export struct {
	sym      *Symbol
	nameOff  uint32
	hashWord uint32
	value    uint32
	section  int16
}

// BuildLoader serializes the loader section: info header, imported library
// table, imported symbol table, relocation headers and instructions, string
// table, and the export hash/key/symbol tables.
func BuildLoader(ctx *Context, groups []ImportGroup, relocHdrs []RelocHeader, instrs []uint16) ([]byte, error) {
	strings := newStringTable()

	libNameOffs := make([]uint32, len(groups))
	totalImports := 0
	for gi := range groups {
		libNameOffs[gi] = strings.Add(groups[gi].Library.LibraryName)
		totalImports += len(groups[gi].Symbols)
	}
	importNameOffs := make([][]uint32, len(groups))
	for gi := range groups {
		importNameOffs[gi] = make([]uint32, len(groups[gi].Symbols))
		for si, sym := range groups[gi].Symbols {
			importNameOffs[gi][si] = strings.Add(sym.Name)
		}
	}

	exports, err := buildExports(ctx, strings)
	if err != nil {
		return nil, err
	}
	power := ExportHashTablePower(len(exports))
	slotCount := 1 << power

	// Stable slot order keeps each hash chain contiguous in the key and
	// export tables while preserving definition order within a chain.
	sort.SliceStable(exports, func(i, j int) bool {
		return exports[i].hashWord%uint32(slotCount) < exports[j].hashWord%uint32(slotCount)
	})

	mainSection, mainOffset, err := findEntry(ctx)
	if err != nil {
		return nil, err
	}

	relocHdrOff := LoaderInfoSize +
		len(groups)*ImportedLibrarySize +
		totalImports*ImportedSymbolSize
	stringsOff := relocHdrOff + len(relocHdrs)*RelocHeaderSize + len(instrs)*2
	hashOff := stringsOff + len(strings.buf)
	hashOff = (hashOff + 3) &^ 3

	var w ByteWriter

	w.I32(mainSection)
	w.U32(mainOffset)
	w.I32(-1) // init
	w.U32(0)
	w.I32(-1) // term
	w.U32(0)
	w.U32(uint32(len(groups)))
	w.U32(uint32(totalImports))
	w.U32(uint32(len(relocHdrs)))
	w.U32(uint32(relocHdrOff))
	w.U32(uint32(stringsOff))
	w.U32(uint32(hashOff))
	w.U32(power)
	w.U32(uint32(len(exports)))

	first := uint32(0)
	for gi := range groups {
		g := &groups[gi]
		var options uint8
		if g.Library.Weak {
			options |= PEFWeakImportLibMask
		}
		w.U32(libNameOffs[gi])
		w.U32(g.Library.Hdr.OldImpVersion)
		w.U32(g.Library.Hdr.CurrentVersion)
		w.U32(uint32(len(g.Symbols)))
		w.U32(first)
		w.U8(options)
		w.U8(0)
		w.U16(0)
		first += uint32(len(g.Symbols))
	}

	for gi := range groups {
		for si, sym := range groups[gi].Symbols {
			w.U32(ComposeImportedSymbol(sym.Class, importNameOffs[gi][si]))
		}
	}

	for _, hdr := range relocHdrs {
		w.U16(hdr.SectionIndex)
		w.U16(0)
		w.U32(hdr.RelocCount)
		w.U32(hdr.FirstRelocOffset)
	}
	for _, instr := range instrs {
		w.U16(instr)
	}

	w.Raw(strings.buf)
	w.Pad(4)
	if w.Len() != hashOff {
		return nil, fmt.Errorf("loader layout drift: hash table at %d, expected %d",
			w.Len(), hashOff)
	}

	writeExportTables(&w, exports, slotCount)
	return w.Bytes(), nil
}

func buildExports(ctx *Context, strings *stringTable) ([]export, error) {
	defined := ctx.SymTab.Defined()
	exports := make([]export, 0, len(defined))
	for _, sym := range defined {
		e := export{
			sym:      sym,
			nameOff:  strings.Add(sym.Name),
			hashWord: ExportHashWord(sym.Name),
		}
		if sym.InputSection != nil {
			e.value = sym.InputSection.Offset + sym.Value
			e.section = int16(sym.InputSection.OutputSection.Idx)
		} else {
			e.value = sym.Value
			e.section = -1
		}
		if e.nameOff > 0x00FFFFFF {
			return nil, fmt.Errorf("loader string table too large for export %s", sym.Name)
		}
		exports = append(exports, e)
	}
	return exports, nil
}

func writeExportTables(w *ByteWriter, exports []export, slotCount int) {
	next := 0
	for slot := 0; slot < slotCount; slot++ {
		first := next
		for next < len(exports) &&
			int(exports[next].hashWord%uint32(slotCount)) == slot {
			next++
		}
		w.U32(ComposeHashSlot(uint32(next-first), uint32(first)))
	}
	for i := range exports {
		w.U32(exports[i].hashWord)
	}
	for i := range exports {
		e := &exports[i]
		w.U32(ComposeExportedSymbol(e.sym.Class, e.nameOff))
		w.U32(e.value)
		w.I16(e.section)
	}
}

// findEntry locates the entry-point symbol. A missing or undefined entry is
// an error unless undefined symbols are tolerated.
func findEntry(ctx *Context) (int32, uint32, error) {
	sym := ctx.SymTab.Find(ctx.Args.Entry)
	if sym == nil || sym.Kind != SymbolDefined {
		if ctx.Args.AllowUndefined {
			return -1, 0, nil
		}
		return 0, 0, fmt.Errorf("entry symbol not defined: %s", ctx.Args.Entry)
	}
	if sym.InputSection == nil {
		return 0, 0, fmt.Errorf("entry symbol %s has no section", ctx.Args.Entry)
	}
	return int32(sym.InputSection.OutputSection.Idx),
		sym.InputSection.Offset + sym.Value, nil
}
