package linker

import (
	"strings"
	"testing"
)

func dummyObject(name string) *ObjectFile {
	return &ObjectFile{InputFile: InputFile{File: &File{Name: name}}}
}

func TestSymbolPromotionSharesSlot(t *testing.T) {
	ctx := NewContext()
	st := ctx.SymTab
	objA := dummyObject("a.o")
	objB := dummyObject("b.o")

	ref := st.DeclareUndefined("foo", objA, PEFDataSymbol)
	if ref == nil || ref.Kind != SymbolUndefined {
		t.Fatal("declaration did not create an undefined slot")
	}

	def := st.DefineSymbol(ctx, "foo", objB, 8, nil, -1, PEFDataSymbol)
	if def != ref {
		t.Error("definition replaced the slot instead of promoting it")
	}
	if ref.Kind != SymbolDefined || ref.Value != 8 {
		t.Errorf("promoted slot = %v kind, value 0x%x", ref.Kind, ref.Value)
	}
	if len(st.Undefined()) != 0 {
		t.Error("promoted symbol still listed as undefined")
	}
	if ctx.HasErrors() {
		t.Errorf("unexpected diagnostics: %v", ctx.Errors)
	}
}

func TestDuplicateDefinitionFirstWins(t *testing.T) {
	ctx := NewContext()
	st := ctx.SymTab

	first := st.DefineSymbol(ctx, "foo", dummyObject("a.o"), 4, nil, -1, PEFCodeSymbol)
	second := st.DefineSymbol(ctx, "foo", dummyObject("b.o"), 12, nil, -1, PEFCodeSymbol)

	if first != second {
		t.Error("duplicate created a second slot")
	}
	if first.Value != 4 {
		t.Errorf("value = 0x%x, first definition should win", first.Value)
	}
	if !strings.Contains(strings.Join(ctx.Errors, "\n"), "duplicate symbol: foo") {
		t.Errorf("diagnostics = %v", ctx.Errors)
	}
}

func TestDuplicateToleratedWithAllowUndefined(t *testing.T) {
	ctx := NewContext()
	ctx.Args.AllowUndefined = true
	st := ctx.SymTab

	st.DefineSymbol(ctx, "foo", dummyObject("a.o"), 4, nil, -1, PEFCodeSymbol)
	st.DefineSymbol(ctx, "foo", dummyObject("b.o"), 12, nil, -1, PEFCodeSymbol)
	if ctx.HasErrors() {
		t.Errorf("unexpected diagnostics: %v", ctx.Errors)
	}
}

func TestResolveImportOnlyPromotesUndefined(t *testing.T) {
	ctx := NewContext()
	st := ctx.SymTab
	libA := &SharedLibrary{LibraryName: "A"}
	libB := &SharedLibrary{LibraryName: "B"}

	st.DefineSymbol(ctx, "local", dummyObject("a.o"), 0, nil, -1, PEFCodeSymbol)
	if st.ResolveImport(ctx, "local", libA, PEFCodeSymbol, false) != nil {
		t.Error("defined symbol was demoted to an import")
	}

	st.DeclareUndefined("ext", dummyObject("a.o"), PEFCodeSymbol)
	sym := st.ResolveImport(ctx, "ext", libA, PEFCodeSymbol, false)
	if sym == nil || sym.Kind != SymbolImported || sym.Library != libA {
		t.Fatal("undefined symbol was not promoted to an import")
	}
	if st.ResolveImport(ctx, "ext", libB, PEFCodeSymbol, false) != nil {
		t.Error("second library re-resolved an already imported symbol")
	}
	if sym.Library != libA {
		t.Error("first-resolution-wins violated")
	}
}

func TestDeclareAfterDefineReturnsNil(t *testing.T) {
	ctx := NewContext()
	st := ctx.SymTab
	st.DefineSymbol(ctx, "foo", dummyObject("a.o"), 0, nil, -1, PEFCodeSymbol)
	if st.DeclareUndefined("foo", dummyObject("b.o"), PEFCodeSymbol) != nil {
		t.Error("declaration against a defined name should be a no-op")
	}
}

func TestKindSlicesPreserveInsertionOrder(t *testing.T) {
	ctx := NewContext()
	st := ctx.SymTab
	obj := dummyObject("a.o")

	for _, name := range []string{"c", "a", "b"} {
		st.DefineSymbol(ctx, name, obj, 0, nil, -1, PEFCodeSymbol)
	}
	defined := st.Defined()
	want := []string{"c", "a", "b"}
	for i, sym := range defined {
		if sym.Name != want[i] {
			t.Fatalf("order = %v", defined)
		}
	}
}
