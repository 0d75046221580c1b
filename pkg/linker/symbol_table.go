package linker

import "fmt"

// SymbolTable maps names to symbol slots. Iteration order is first-insertion
// order, which keeps export tables and diagnostics deterministic.
type SymbolTable struct {
	symbols map[string]*Symbol
	order   []*Symbol
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		symbols: make(map[string]*Symbol),
	}
}

func (t *SymbolTable) insert(name string) (*Symbol, bool) {
	if sym, ok := t.symbols[name]; ok {
		return sym, false
	}
	sym := NewSymbol(name)
	t.symbols[name] = sym
	t.order = append(t.order, sym)
	return sym, true
}

func (t *SymbolTable) Find(name string) *Symbol {
	return t.symbols[name]
}

// DefineSymbol registers a definition. An undefined slot is promoted in
// place. A second definition is a duplicate-symbol error (first definition
// wins) unless undefined symbols are tolerated.
func (t *SymbolTable) DefineSymbol(ctx *Context, name string, file *ObjectFile,
	value uint32, isec *InputSection, sectionIndex int16, class uint8) *Symbol {
	sym, inserted := t.insert(name)
	if !inserted && sym.Kind == SymbolDefined {
		if !ctx.Args.AllowUndefined {
			ctx.Errorf("duplicate symbol: %s\n>>> defined in %s\n>>> defined in %s",
				name, sym.File.File.Name, file.File.Name)
		}
		return sym
	}

	sym.Kind = SymbolDefined
	sym.File = file
	sym.Value = value
	sym.InputSection = isec
	sym.SectionIndex = sectionIndex
	sym.Class = class
	sym.Library = nil
	sym.Weak = false

	if ctx.Args.Verbose {
		fmt.Printf("  defined symbol: %s (section=%d, value=0x%x)\n",
			name, sectionIndex, value)
	}
	return sym
}

// DeclareUndefined records a reference. Returns nil if the name is already
// defined; an existing undefined slot is shared.
func (t *SymbolTable) DeclareUndefined(name string, file *ObjectFile, classHint uint8) *Symbol {
	sym, inserted := t.insert(name)
	if !inserted {
		if sym.Kind == SymbolUndefined {
			return sym
		}
		return nil
	}
	sym.File = file
	sym.Class = classHint
	return sym
}

// ResolveImport promotes an undefined slot to an import from lib. Returns
// nil without touching the slot if the name is already defined or already
// imported from another library (first resolution wins).
func (t *SymbolTable) ResolveImport(ctx *Context, name string, lib *SharedLibrary,
	class uint8, weak bool) *Symbol {
	sym := t.symbols[name]
	if sym == nil || sym.Kind != SymbolUndefined {
		if sym != nil && sym.Kind == SymbolImported && ctx.Args.Verbose {
			fmt.Printf("  %s already imported from %s, ignoring %s\n",
				name, sym.Library.LibraryName, lib.LibraryName)
		}
		return nil
	}

	sym.Kind = SymbolImported
	sym.Library = lib
	sym.Class = class
	sym.Weak = weak

	if ctx.Args.Verbose {
		fmt.Printf("  imported symbol: %s <- %s\n", name, lib.LibraryName)
	}
	return sym
}

func (t *SymbolTable) kindSlice(kind SymbolKind) []*Symbol {
	var res []*Symbol
	for _, sym := range t.order {
		if sym.Kind == kind {
			res = append(res, sym)
		}
	}
	return res
}

func (t *SymbolTable) Defined() []*Symbol {
	return t.kindSlice(SymbolDefined)
}

func (t *SymbolTable) Undefined() []*Symbol {
	return t.kindSlice(SymbolUndefined)
}

func (t *SymbolTable) Imported() []*Symbol {
	return t.kindSlice(SymbolImported)
}
