package linker

import (
	"fmt"

	"github.com/kirkbrauer/pefld/pkg/utils"
)

// ReadInputFiles loads every object and library argument in command-line
// order. Objects register symbols immediately; libraries are only parsed
// here and resolved afterwards.
func ReadInputFiles(ctx *Context, remaining []string) {
	for _, arg := range remaining {
		var ok bool
		if arg, ok = utils.RemovePrefix(arg, "--weak-l"); ok {
			readLibrary(ctx, arg, true)
			continue
		}
		if arg, ok = utils.RemovePrefix(arg, "-l"); ok {
			readLibrary(ctx, arg, false)
			continue
		}
		readObject(ctx, MustNewFile(arg))
	}
}

func readObject(ctx *Context, file *File) {
	if GetArchFromContent(file.Content) != ArchPowerPC {
		ctx.Errorf("%s: not a PowerPC PEF file", file.Name)
		return
	}
	obj, err := NewObjectFile(file)
	if err != nil {
		ctx.Errorf("%v", err)
		return
	}
	if ctx.Args.Verbose {
		fmt.Printf("parsing object file: %s\n", file.Name)
	}
	if err := obj.Parse(ctx); err != nil {
		ctx.Errorf("%v", err)
		return
	}
	ctx.Objs = append(ctx.Objs, obj)
}

func readLibrary(ctx *Context, name string, weak bool) {
	file := FindLibrary(ctx, name)
	if file == nil {
		if weak {
			ctx.Warnf("cannot find weak library -l%s, skipping", name)
		} else {
			ctx.MissingLibs = append(ctx.MissingLibs, name)
		}
		return
	}
	lib, err := NewSharedLibrary(file, weak)
	if err != nil {
		ctx.Errorf("%v", err)
		return
	}
	if ctx.Args.Verbose {
		fmt.Printf("parsing shared library: %s (%s)\n", file.Name, lib.LibraryName)
	}
	ctx.SharedLibs = append(ctx.SharedLibs, lib)
}

// ResolveLibraries promotes remaining undefined symbols to imports. Strong
// libraries are tried before weak ones, each group in command-line order;
// the first library exporting a name wins.
func ResolveLibraries(ctx *Context) {
	for _, weak := range []bool{false, true} {
		for _, lib := range ctx.SharedLibs {
			if lib.Weak != weak {
				continue
			}
			for _, sym := range ctx.SymTab.Undefined() {
				export, found, err := lib.FindExport(sym.Name)
				if err != nil {
					ctx.Errorf("%v", err)
					continue
				}
				if found {
					ctx.SymTab.ResolveImport(ctx, sym.Name, lib, export.Class, weak)
				}
			}
		}
	}
}

// CheckUndefined turns leftover undefined symbols into diagnostics. A
// missing strong library only matters if symbols actually went unresolved.
func CheckUndefined(ctx *Context) {
	undefined := ctx.SymTab.Undefined()
	if len(undefined) == 0 {
		for _, name := range ctx.MissingLibs {
			ctx.Warnf("cannot find library -l%s (no symbols were needed from it)", name)
		}
		return
	}
	for _, name := range ctx.MissingLibs {
		ctx.Errorf("cannot find library: -l%s", name)
	}
	if ctx.Args.AllowUndefined {
		return
	}
	for _, sym := range undefined {
		ctx.Errorf("undefined symbol: %s\n>>> referenced by %s",
			sym.Name, sym.File.File.Name)
	}
}

// CreateOutputSections builds the canonical output sections in their fixed
// order, routes every input section by kind and freezes the layout.
func CreateOutputSections(ctx *Context) {
	code := NewOutputSection(".text", PEFCodeSection)
	data := NewOutputSection(".data", PEFUnpackedDataSection)
	cnst := NewOutputSection(".rodata", PEFConstantSection)

	for _, obj := range ctx.Objs {
		for _, isec := range obj.InputSections {
			if isec == nil {
				continue
			}
			switch isec.Kind() {
			case PEFCodeSection, PEFExecutableDataSection:
				code.AddMember(isec)
			case PEFUnpackedDataSection, PEFPatternDataSection:
				data.AddMember(isec)
			case PEFConstantSection:
				cnst.AddMember(isec)
			default:
				ctx.Errorf("%s: section %d has unsupported kind %d",
					isec.File.File.Name, isec.Shndx, isec.Kind())
			}
		}
	}

	ctx.OutputSections = ctx.OutputSections[:0]
	for _, osec := range []*OutputSection{code, data, cnst} {
		if len(osec.Members) == 0 {
			continue
		}
		osec.Idx = uint16(len(ctx.OutputSections))
		ctx.OutputSections = append(ctx.OutputSections, osec)
	}

	for _, osec := range ctx.OutputSections {
		osec.FinalizeLayout()
	}
	AssignAddresses(ctx)
}

// AssignAddresses gives each output section a virtual address: the code
// section starts at the configured code base, the first non-code section at
// the data base, and later sections follow sequentially. Every base is
// aligned up to the section's own requirement first. No overlap, no
// reordering.
func AssignAddresses(ctx *Context) {
	addr := ctx.Args.BaseCode
	dataSeen := false
	for _, osec := range ctx.OutputSections {
		if osec.Kind != PEFCodeSection && !dataSeen {
			dataSeen = true
			if ctx.Args.BaseData > addr {
				addr = ctx.Args.BaseData
			}
		}
		addr = utils.AlignTo(addr, uint64(osec.Alignment()))
		osec.VirtAddr = uint32(addr)
		addr += uint64(osec.Size)

		if ctx.Args.Verbose {
			fmt.Printf("  %s: va=0x%x size=0x%x align=%d\n",
				osec.Name, osec.VirtAddr, osec.Size, osec.Alignment())
		}
	}
}
