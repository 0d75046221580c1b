package linker

import "math"

type SymbolKind uint8

const (
	SymbolUndefined SymbolKind = iota
	SymbolDefined
	SymbolImported
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolDefined:
		return "defined"
	case SymbolImported:
		return "imported"
	}
	return "undefined"
}

const InvalidImportIndex = math.MaxUint32

// Symbol is one slot in the global table. All holders share the same
// pointer, so promoting the slot in place (undefined -> defined or
// undefined -> imported) is observed everywhere without replacement.
type Symbol struct {
	Name  string
	Kind  SymbolKind
	Class uint8

	// Defined: the module and section that own the definition. A nil
	// InputSection with SectionIndex -1 marks an absolute symbol.
	File         *ObjectFile
	InputSection *InputSection
	SectionIndex int16
	Value        uint32

	// Imported: the providing stub and the combined import table position,
	// assigned during loader synthesis. The address itself is bound by the
	// runtime loader, never by the linker.
	Library     *SharedLibrary
	Weak        bool
	ImportIndex uint32
}

func NewSymbol(name string) *Symbol {
	return &Symbol{
		Name:         name,
		SectionIndex: -1,
		ImportIndex:  InvalidImportIndex,
	}
}

// VirtualAddress is only meaningful for defined symbols after layout.
func (s *Symbol) VirtualAddress() uint32 {
	if s.InputSection != nil {
		return s.InputSection.Addr() + s.Value
	}
	return s.Value
}
