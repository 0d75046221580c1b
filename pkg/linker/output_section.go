package linker

import "github.com/kirkbrauer/pefld/pkg/utils"

// OutputSection merges input sections of a compatible kind. Members are laid
// out in insertion order, which is file-input order.
type OutputSection struct {
	Name    string
	Kind    uint8
	Members []*InputSection

	Size     uint32
	AlignPow uint8 // power-of-two exponent, max over members
	VirtAddr uint32
	FileOff  uint32
	Idx      uint16 // index in ctx.OutputSections after empty ones drop

	Buf []byte // payload assembled by the writer, patched by relocation
}

func NewOutputSection(name string, kind uint8) *OutputSection {
	return &OutputSection{
		Name: name,
		Kind: kind,
	}
}

func (o *OutputSection) AddMember(isec *InputSection) {
	isec.OutputSection = o
	o.Members = append(o.Members, isec)
}

// FinalizeLayout assigns member offsets: each member is placed at the
// previous end rounded up to its own alignment. Section alignment is the
// maximum over members, size the final cumulative offset.
func (o *OutputSection) FinalizeLayout() {
	offset := uint64(0)
	for _, isec := range o.Members {
		offset = utils.AlignTo(offset, uint64(isec.Alignment()))
		isec.Offset = uint32(offset)
		offset += uint64(isec.Size())
		if isec.Shdr().Alignment > o.AlignPow {
			o.AlignPow = isec.Shdr().Alignment
		}
	}
	o.Size = uint32(offset)
}

func (o *OutputSection) Alignment() uint32 {
	return 1 << o.AlignPow
}

func (o *OutputSection) ShareKind() uint8 {
	if o.Kind == PEFCodeSection {
		return PEFGlobalShare
	}
	return PEFProcessShare
}
