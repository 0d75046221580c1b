package linker

import "fmt"

// LocalImport is one entry of an object module's own imported symbol table.
// Relocation instructions reference imports by index into this table; the
// rewrite pass remaps those indices to the combined output numbering.
type LocalImport struct {
	Name  string
	Class uint8
}

type ObjectFile struct {
	InputFile

	// Indexed by container section index; loader and debug sections stay nil.
	InputSections []*InputSection
	LocalImports  []LocalImport
	Symbols       []*Symbol
}

func NewObjectFile(file *File) (*ObjectFile, error) {
	f, err := NewInputFile(file)
	if err != nil {
		return nil, err
	}
	return &ObjectFile{InputFile: *f}, nil
}

// Parse materializes input sections, registers the module's definitions and
// declares every symbol its relocations import.
func (o *ObjectFile) Parse(ctx *Context) error {
	if err := o.parseInputSections(ctx); err != nil {
		return err
	}
	if !o.HasLoader {
		// An object with no loader section defines and references nothing.
		return nil
	}
	if err := o.parseLocalImports(); err != nil {
		return err
	}
	if err := o.parseRelocations(); err != nil {
		return err
	}
	if err := o.parseExports(ctx); err != nil {
		return err
	}
	return o.declareImportReferences(ctx)
}

func (o *ObjectFile) parseInputSections(ctx *Context) error {
	o.InputSections = make([]*InputSection, len(o.SectionHdrs))
	for i := range o.SectionHdrs {
		switch o.SectionHdrs[i].SectionKind {
		case PEFLoaderSection, PEFDebugSection:
			continue
		}
		contents, err := o.SectionBytes(uint32(i))
		if err != nil {
			return err
		}
		o.InputSections[i] = NewInputSection(o, uint32(i), contents)
		if ctx.Args.Verbose {
			fmt.Printf("  section %d: kind=%d size=0x%x align=%d\n",
				i, o.SectionHdrs[i].SectionKind,
				o.SectionHdrs[i].TotalLength, o.SectionHdrs[i].Alignment)
		}
	}
	return nil
}

func (o *ObjectFile) parseLocalImports() error {
	info := &o.LoaderInfo
	r := o.LoaderReader()
	base := LoaderInfoSize + int(info.ImportedLibraryCount)*ImportedLibrarySize
	if err := r.Seek(base); err != nil {
		return err
	}

	o.LocalImports = make([]LocalImport, info.TotalImportedSymbolCount)
	for i := range o.LocalImports {
		v, err := r.U32()
		if err != nil {
			return err
		}
		name, err := o.LoaderString(ImportedSymbolNameOffset(v))
		if err != nil {
			return err
		}
		o.LocalImports[i] = LocalImport{
			Name:  name,
			Class: ImportedSymbolClass(v),
		}
	}
	return nil
}

// parseRelocations attaches each section's raw instruction words.
func (o *ObjectFile) parseRelocations() error {
	info := &o.LoaderInfo
	r := o.LoaderReader()
	if err := r.Seek(int(info.RelocInstrOffset)); err != nil {
		return err
	}

	headers := make([]RelocHeader, info.RelocSectionCount)
	for i := range headers {
		hdr := &headers[i]
		var err error
		if hdr.SectionIndex, err = r.U16(); err != nil {
			return err
		}
		if hdr.ReservedA, err = r.U16(); err != nil {
			return err
		}
		if hdr.RelocCount, err = r.U32(); err != nil {
			return err
		}
		if hdr.FirstRelocOffset, err = r.U32(); err != nil {
			return err
		}
	}
	instrBase := r.Pos()

	for i := range headers {
		hdr := &headers[i]
		if int(hdr.SectionIndex) >= len(o.InputSections) ||
			o.InputSections[hdr.SectionIndex] == nil {
			return fmt.Errorf("%s: relocation header references invalid section %d",
				o.File.Name, hdr.SectionIndex)
		}
		if err := r.Seek(instrBase + int(hdr.FirstRelocOffset)); err != nil {
			return err
		}
		words := make([]uint16, hdr.RelocCount)
		for j := range words {
			var err error
			if words[j], err = r.U16(); err != nil {
				return err
			}
		}
		o.InputSections[hdr.SectionIndex].Relocs = words
	}
	return nil
}

// parseExports registers every exported symbol as a definition.
func (o *ObjectFile) parseExports(ctx *Context) error {
	info := &o.LoaderInfo
	r := o.LoaderReader()
	exportTable := int(info.ExportHashOffset) +
		(1<<info.ExportHashTablePower)*HashSlotSize +
		int(info.ExportedSymbolCount)*HashKeySize
	if err := r.Seek(exportTable); err != nil {
		return err
	}

	for i := uint32(0); i < info.ExportedSymbolCount; i++ {
		classAndName, err := r.U32()
		if err != nil {
			return err
		}
		value, err := r.U32()
		if err != nil {
			return err
		}
		sectionIndex, err := r.I16()
		if err != nil {
			return err
		}
		name, err := o.LoaderString(ExportedSymbolNameOffset(classAndName))
		if err != nil {
			return err
		}

		var isec *InputSection
		if sectionIndex >= 0 {
			if int(sectionIndex) >= len(o.InputSections) ||
				o.InputSections[sectionIndex] == nil {
				return fmt.Errorf("%s: symbol %s references invalid section %d",
					o.File.Name, name, sectionIndex)
			}
			isec = o.InputSections[sectionIndex]
		}

		sym := ctx.SymTab.DefineSymbol(ctx, name, o, value, isec,
			sectionIndex, ExportedSymbolClass(classAndName))
		o.Symbols = append(o.Symbols, sym)
	}
	return nil
}

// declareImportReferences scans every section's relocations and registers
// the referenced names as undefined, to be resolved by later modules or by
// shared libraries.
func (o *ObjectFile) declareImportReferences(ctx *Context) error {
	for _, isec := range o.InputSections {
		if isec == nil || len(isec.Relocs) == 0 {
			continue
		}
		indices, err := ScanRelocations(isec)
		if err != nil {
			return err
		}
		for _, idx := range indices {
			imp, err := o.LocalImport(idx)
			if err != nil {
				return err
			}
			ctx.SymTab.DeclareUndefined(imp.Name, o, imp.Class)
		}
	}
	return nil
}

func (o *ObjectFile) LocalImport(idx uint32) (LocalImport, error) {
	if idx >= uint32(len(o.LocalImports)) {
		return LocalImport{}, fmt.Errorf("%s: import index %d out of range (%d imports)",
			o.File.Name, idx, len(o.LocalImports))
	}
	return o.LocalImports[idx], nil
}
