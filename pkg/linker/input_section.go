package linker

// InputSection is one instantiated section of one object module. Its
// relocation words stay attached to it until the rewrite pass.
type InputSection struct {
	File     *ObjectFile
	Shndx    uint32 // container section index in File
	Contents []byte
	Relocs   []uint16 // raw instruction words, decoded big-endian

	OutputSection *OutputSection
	Offset        uint32 // member offset within OutputSection, set by layout
}

func NewInputSection(file *ObjectFile, shndx uint32, contents []byte) *InputSection {
	return &InputSection{
		File:     file,
		Shndx:    shndx,
		Contents: contents,
	}
}

func (i *InputSection) Shdr() *SectionHeader {
	return &i.File.SectionHdrs[i.Shndx]
}

func (i *InputSection) Kind() uint8 {
	return i.Shdr().SectionKind
}

func (i *InputSection) Size() uint32 {
	return i.Shdr().TotalLength
}

func (i *InputSection) Alignment() uint32 {
	return 1 << i.Shdr().Alignment
}

// Addr is the section's virtual address after layout.
func (i *InputSection) Addr() uint32 {
	return i.OutputSection.VirtAddr + i.Offset
}
