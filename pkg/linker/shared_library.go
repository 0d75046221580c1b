package linker

import (
	"path/filepath"
	"strings"
)

// SharedLibrary is an import library stub: only its loader section matters,
// and only for export lookups.
type SharedLibrary struct {
	InputFile

	LibraryName string
	Weak        bool
}

// Export is the result of a successful export-table lookup.
type Export struct {
	Class        uint8
	Value        uint32
	SectionIndex int16
}

func NewSharedLibrary(file *File, weak bool) (*SharedLibrary, error) {
	f, err := NewInputFile(file)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(file.Name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.TrimPrefix(stem, "lib")
	return &SharedLibrary{
		InputFile:   *f,
		LibraryName: stem,
		Weak:        weak,
	}, nil
}

// FindExport looks name up in the library's export hash table. The chain is
// scanned by hash key first; equal keys still require a name comparison,
// since different names can share a key.
func (l *SharedLibrary) FindExport(name string) (Export, bool, error) {
	info := &l.LoaderInfo
	if !l.HasLoader || info.ExportedSymbolCount == 0 {
		return Export{}, false, nil
	}

	hashWord := ExportHashWord(name)
	slotCount := uint32(1) << info.ExportHashTablePower
	slotIndex := hashWord % slotCount

	r := l.LoaderReader()
	if err := r.Seek(int(info.ExportHashOffset) + int(slotIndex)*HashSlotSize); err != nil {
		return Export{}, false, err
	}
	slot, err := r.U32()
	if err != nil {
		return Export{}, false, err
	}

	chainCount := HashSlotChainCount(slot)
	firstIndex := HashSlotFirstIndex(slot)
	if chainCount == 0 {
		return Export{}, false, nil
	}

	keyTable := int(info.ExportHashOffset) + int(slotCount)*HashSlotSize
	symTable := keyTable + int(info.ExportedSymbolCount)*HashKeySize

	for i := uint32(0); i < chainCount; i++ {
		keyIndex := firstIndex + i
		if keyIndex >= info.ExportedSymbolCount {
			break
		}

		if err := r.Seek(keyTable + int(keyIndex)*HashKeySize); err != nil {
			return Export{}, false, err
		}
		key, err := r.U32()
		if err != nil {
			return Export{}, false, err
		}
		if key != hashWord {
			continue
		}

		if err := r.Seek(symTable + int(keyIndex)*ExportedSymbolSize); err != nil {
			return Export{}, false, err
		}
		classAndName, err := r.U32()
		if err != nil {
			return Export{}, false, err
		}
		value, err := r.U32()
		if err != nil {
			return Export{}, false, err
		}
		sectionIndex, err := r.I16()
		if err != nil {
			return Export{}, false, err
		}

		exportName, err := l.LoaderString(ExportedSymbolNameOffset(classAndName))
		if err != nil {
			return Export{}, false, err
		}
		if exportName != name {
			continue
		}

		return Export{
			Class:        ExportedSymbolClass(classAndName),
			Value:        value,
			SectionIndex: sectionIndex,
		}, true, nil
	}
	return Export{}, false, nil
}
