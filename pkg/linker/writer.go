package linker

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kirkbrauer/pefld/pkg/utils"
)

// AssembleSections materializes every output section's payload by copying
// member contents to their assigned offsets. Pattern-data members were
// routed into the data section and are written as plain bytes.
func AssembleSections(ctx *Context) {
	for _, osec := range ctx.OutputSections {
		osec.Buf = make([]byte, osec.Size)
		for _, isec := range osec.Members {
			copy(osec.Buf[isec.Offset:], isec.Contents)
		}
	}
}

// WriteResult runs the back half of the link: payload assembly, import
// numbering, relocation rewriting, loader synthesis and the final container
// write. Nothing is committed to disk until the whole container exists in
// memory.
func WriteResult(ctx *Context) error {
	AssembleSections(ctx)
	groups := CollectImports(ctx)

	relocHdrs, instrs, err := NewRelocWriter(ctx).Generate()
	if err != nil {
		return err
	}
	loader, err := BuildLoader(ctx, groups, relocHdrs, instrs)
	if err != nil {
		return err
	}

	ComposeContainer(ctx, loader)
	return commit(ctx)
}

// ComposeContainer lays the whole output file into ctx.Buf: container
// header, section headers (payload sections first, loader last), then the
// payloads at 16-byte aligned offsets.
func ComposeContainer(ctx *Context, loader []byte) {
	sectionCount := len(ctx.OutputSections) + 1
	headerEnd := ContainerHeaderSize + sectionCount*SectionHeaderSize

	off := uint32(utils.AlignTo(uint64(headerEnd), 16))
	for _, osec := range ctx.OutputSections {
		osec.FileOff = off
		off = uint32(utils.AlignTo(uint64(off)+uint64(osec.Size), 16))
	}
	loaderOff := off

	var w ByteWriter

	w.U32(PEFTag1)
	w.U32(PEFTag2)
	w.U32(PEFPowerPCArch)
	w.U32(PEFVersion)
	w.U32(0) // dateTimeStamp: zero for reproducible output
	w.U32(0) // oldDefVersion
	w.U32(0) // oldImpVersion
	w.U32(0) // currentVersion
	w.U16(uint16(sectionCount))
	w.U16(uint16(len(ctx.OutputSections))) // instantiated sections
	w.U32(0)

	for _, osec := range ctx.OutputSections {
		writeSectionHeader(&w, &SectionHeader{
			NameOffset:      -1,
			DefaultAddress:  osec.VirtAddr,
			TotalLength:     osec.Size,
			UnpackedLength:  osec.Size,
			ContainerLength: osec.Size,
			ContainerOffset: osec.FileOff,
			SectionKind:     osec.Kind,
			ShareKind:       osec.ShareKind(),
			Alignment:       osec.AlignPow,
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
	// The payload offsets above were computed from the header-region size;
	// the serialized headers must land exactly there.
	utils.Assert(w.Len() == headerEnd)

	for _, osec := range ctx.OutputSections {
		w.Pad(16)
		w.Raw(osec.Buf)
	}
	w.Pad(16)
	w.Raw(loader)

	ctx.Buf = w.Bytes()
}

func writeSectionHeader(w *ByteWriter, hdr *SectionHeader) {
	w.I32(hdr.NameOffset)
	w.U32(hdr.DefaultAddress)
	w.U32(hdr.TotalLength)
	w.U32(hdr.UnpackedLength)
	w.U32(hdr.ContainerLength)
	w.U32(hdr.ContainerOffset)
	w.U8(hdr.SectionKind)
	w.U8(hdr.ShareKind)
	w.U8(hdr.Alignment)
	w.U8(hdr.ReservedA)
}

// commit writes ctx.Buf next to the final path and renames it into place,
// so a failed link never leaves a truncated output file.
func commit(ctx *Context) error {
	dir := filepath.Dir(ctx.Args.Output)
	tmp, err := os.CreateTemp(dir, ".pefld-*")
	if err != nil {
		return fmt.Errorf("cannot create output in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(ctx.Buf); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", ctx.Args.Output, err)
	}
	if err := tmp.Chmod(0o755); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", ctx.Args.Output, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", ctx.Args.Output, err)
	}
	return os.Rename(tmp.Name(), ctx.Args.Output)
}
