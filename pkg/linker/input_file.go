package linker

import "fmt"

// InputFile holds the parsed container-level view of one input: the
// container header, the section header table and the raw loader section.
// ObjectFile and SharedLibrary build on top of it.
type InputFile struct {
	File        *File
	Hdr         ContainerHeader
	SectionHdrs []SectionHeader

	HasLoader   bool
	LoaderHdr   SectionHeader
	LoaderData  []byte
	LoaderInfo  LoaderInfoHeader
}

func NewInputFile(file *File) (*InputFile, error) {
	f := &InputFile{File: file}

	if !CheckMagic(file.Content) {
		return nil, fmt.Errorf("%s: not a PEF container", file.Name)
	}

	r := NewByteReader(file.Content, file.Name)
	if err := f.parseContainerHeader(r); err != nil {
		return nil, err
	}
	if err := f.parseSectionHeaders(r); err != nil {
		return nil, err
	}
	if err := f.parseLoader(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *InputFile) parseContainerHeader(r *ByteReader) error {
	fields := []*uint32{
		&f.Hdr.Tag1, &f.Hdr.Tag2, &f.Hdr.Architecture, &f.Hdr.FormatVersion,
		&f.Hdr.DateTimeStamp, &f.Hdr.OldDefVersion, &f.Hdr.OldImpVersion,
		&f.Hdr.CurrentVersion,
	}
	for _, field := range fields {
		v, err := r.U32()
		if err != nil {
			return err
		}
		*field = v
	}

	var err error
	if f.Hdr.SectionCount, err = r.U16(); err != nil {
		return err
	}
	if f.Hdr.InstSectionCount, err = r.U16(); err != nil {
		return err
	}
	if f.Hdr.ReservedA, err = r.U32(); err != nil {
		return err
	}

	if f.Hdr.FormatVersion != PEFVersion {
		return fmt.Errorf("%s: unsupported format version %d",
			f.File.Name, f.Hdr.FormatVersion)
	}
	return nil
}

func (f *InputFile) parseSectionHeaders(r *ByteReader) error {
	if err := r.Seek(ContainerHeaderSize); err != nil {
		return err
	}

	f.SectionHdrs = make([]SectionHeader, f.Hdr.SectionCount)
	for i := range f.SectionHdrs {
		hdr := &f.SectionHdrs[i]
		var err error
		if hdr.NameOffset, err = r.I32(); err != nil {
			return err
		}
		for _, field := range []*uint32{
			&hdr.DefaultAddress, &hdr.TotalLength, &hdr.UnpackedLength,
			&hdr.ContainerLength, &hdr.ContainerOffset,
		} {
			if *field, err = r.U32(); err != nil {
				return err
			}
		}
		for _, field := range []*uint8{
			&hdr.SectionKind, &hdr.ShareKind, &hdr.Alignment, &hdr.ReservedA,
		} {
			if *field, err = r.U8(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *InputFile) parseLoader() error {
	for i := range f.SectionHdrs {
		if f.SectionHdrs[i].SectionKind != PEFLoaderSection {
			continue
		}
		data, err := f.SectionBytes(uint32(i))
		if err != nil {
			return err
		}
		f.HasLoader = true
		f.LoaderHdr = f.SectionHdrs[i]
		f.LoaderData = data
		return f.parseLoaderInfo()
	}
	return nil
}

func (f *InputFile) parseLoaderInfo() error {
	if len(f.LoaderData) < LoaderInfoSize {
		return fmt.Errorf("%s: loader section too small", f.File.Name)
	}

	r := f.LoaderReader()
	info := &f.LoaderInfo
	var err error
	if info.MainSection, err = r.I32(); err != nil {
		return err
	}
	if info.MainOffset, err = r.U32(); err != nil {
		return err
	}
	if info.InitSection, err = r.I32(); err != nil {
		return err
	}
	if info.InitOffset, err = r.U32(); err != nil {
		return err
	}
	if info.TermSection, err = r.I32(); err != nil {
		return err
	}
	if info.TermOffset, err = r.U32(); err != nil {
		return err
	}
	for _, field := range []*uint32{
		&info.ImportedLibraryCount, &info.TotalImportedSymbolCount,
		&info.RelocSectionCount, &info.RelocInstrOffset,
		&info.LoaderStringsOffset, &info.ExportHashOffset,
		&info.ExportHashTablePower, &info.ExportedSymbolCount,
	} {
		if *field, err = r.U32(); err != nil {
			return err
		}
	}
	return nil
}

func (f *InputFile) SectionBytes(idx uint32) ([]byte, error) {
	if idx >= uint32(len(f.SectionHdrs)) {
		return nil, fmt.Errorf("%s: section index %d out of range",
			f.File.Name, idx)
	}
	hdr := &f.SectionHdrs[idx]
	end := uint64(hdr.ContainerOffset) + uint64(hdr.ContainerLength)
	if end > uint64(len(f.File.Content)) {
		return nil, fmt.Errorf("%s: section %d extends past end of file",
			f.File.Name, idx)
	}
	return f.File.Content[hdr.ContainerOffset:end], nil
}

func (f *InputFile) LoaderReader() *ByteReader {
	return NewByteReader(f.LoaderData, f.File.Name+"(loader)")
}

// LoaderString reads a null-terminated name from the loader string table.
func (f *InputFile) LoaderString(nameOffset uint32) (string, error) {
	r := f.LoaderReader()
	return r.CString(int(f.LoaderInfo.LoaderStringsOffset + nameOffset))
}
