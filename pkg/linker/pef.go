package linker

// PEF (Preferred Executable Format) constants and fixed-size structures.
// Reference: "Mac OS Runtime Architectures" (Apple Computer, Inc.).
// All on-disk integers are big-endian.

const (
	PEFTag1    uint32 = 0x4A6F7921 // 'Joy!'
	PEFTag2    uint32 = 0x70656666 // 'peff'
	PEFVersion uint32 = 1
)

const (
	PEFPowerPCArch uint32 = 0x70777063 // 'pwpc'
	PEFM68KArch    uint32 = 0x6D36386B // 'm68k'
)

// Section kinds.
const (
	PEFCodeSection uint8 = iota
	PEFUnpackedDataSection
	PEFPatternDataSection
	PEFConstantSection
	PEFLoaderSection
	PEFDebugSection
	PEFExecutableDataSection
	PEFExceptionSection
	PEFTracebackSection
)

// Section sharing kinds.
const (
	PEFProcessShare   uint8 = 1
	PEFGlobalShare    uint8 = 4
	PEFProtectedShare uint8 = 5
)

// Symbol classes.
const (
	PEFCodeSymbol uint8 = iota
	PEFDataSymbol
	PEFTVectorSymbol
	PEFTOCSymbol
	PEFGlueSymbol
)

// Imported library option bits.
const (
	PEFWeakImportLibMask uint8 = 0x40
	PEFInitLibBeforeMask uint8 = 0x80
)

// Relocation instruction words are 16 bits: opcode in the top 6 bits,
// operand in the low 10 bits. Wide instructions carry a second word.
const (
	RelocBySectDWithSkip uint8 = 0x00
	RelocBySectCWithSkip uint8 = 0x01
	RelocSetPosition     uint8 = 0x08 // wide: 26-bit absolute offset
	RelocLgByImport      uint8 = 0x12 // wide: 26-bit import index
	RelocLgRepeat        uint8 = 0x18
	RelocLgSetOrBySect   uint8 = 0x19
	RelocBySectC         uint8 = 0x20
	RelocBySectD         uint8 = 0x21
	RelocTVector12       uint8 = 0x22
	RelocTVector8        uint8 = 0x23
	RelocVTable8         uint8 = 0x24
	RelocImportRun       uint8 = 0x25
	RelocSmRepeat        uint8 = 0x28
	RelocSmSetSectC      uint8 = 0x29
	RelocSmSetSectD      uint8 = 0x2A
	RelocSmByImport      uint8 = 0x2B
)

func RelocOpcode(instr uint16) uint8 {
	return uint8(instr >> 10)
}

func RelocOperand(instr uint16) uint16 {
	return instr & 0x3FF
}

func ComposeReloc(opcode uint8, operand uint16) uint16 {
	return uint16(opcode)<<10 | operand&0x3FF
}

// SetPosition and LgByImport split a wide operand across two words:
// the first word holds the high 10 bits, the second the low 16.
func ComposeWideReloc(opcode uint8, val uint32) (uint16, uint16) {
	return ComposeReloc(opcode, uint16(val>>16)), uint16(val)
}

func WideOperand(first, second uint16) uint32 {
	return uint32(RelocOperand(first))<<16 | uint32(second)
}

// Structure sizes. These are on-disk contracts with the runtime loader.
const (
	ContainerHeaderSize = 40
	SectionHeaderSize   = 28
	LoaderInfoSize      = 56
	ImportedLibrarySize = 24
	ImportedSymbolSize  = 4
	RelocHeaderSize     = 12
	ExportedSymbolSize  = 10
	HashSlotSize        = 4
	HashKeySize         = 4
)

type ContainerHeader struct {
	Tag1             uint32
	Tag2             uint32
	Architecture     uint32
	FormatVersion    uint32
	DateTimeStamp    uint32
	OldDefVersion    uint32
	OldImpVersion    uint32
	CurrentVersion   uint32
	SectionCount     uint16
	InstSectionCount uint16
	ReservedA        uint32
}

type SectionHeader struct {
	NameOffset      int32
	DefaultAddress  uint32
	TotalLength     uint32
	UnpackedLength  uint32
	ContainerLength uint32
	ContainerOffset uint32
	SectionKind     uint8
	ShareKind       uint8
	Alignment       uint8 // power of two
	ReservedA       uint8
}

// LoaderInfoHeader heads the loader section. The blocks that follow, in
// order: imported library table, imported symbol table, relocation headers,
// relocation instructions, string table, export hash slots, export key
// table, exported symbol table. RelocInstrOffset is the offset of the first
// relocation header; each header's FirstRelocOffset is relative to the start
// of the instruction stream, which begins right after the last header.
type LoaderInfoHeader struct {
	MainSection              int32
	MainOffset               uint32
	InitSection              int32
	InitOffset               uint32
	TermSection              int32
	TermOffset               uint32
	ImportedLibraryCount     uint32
	TotalImportedSymbolCount uint32
	RelocSectionCount        uint32
	RelocInstrOffset         uint32
	LoaderStringsOffset      uint32
	ExportHashOffset         uint32
	ExportHashTablePower     uint32
	ExportedSymbolCount      uint32
}

type ImportedLibrary struct {
	NameOffset          uint32
	OldImpVersion       uint32
	CurrentVersion      uint32
	ImportedSymbolCount uint32
	FirstImportedSymbol uint32
	Options             uint8
	ReservedA           uint8
	ReservedB           uint16
}

type RelocHeader struct {
	SectionIndex     uint16
	ReservedA        uint16
	RelocCount       uint32 // instruction words, not fixups
	FirstRelocOffset uint32
}

type ExportedSymbol struct {
	ClassAndName uint32 // class in the top 8 bits, name offset in the low 24
	SymbolValue  uint32
	SectionIndex int16 // -1 absolute, -2 reexport
}

// Imported symbols pack class into the top 4 bits, name offset in the rest.
func ComposeImportedSymbol(class uint8, nameOffset uint32) uint32 {
	return uint32(class)<<28 | nameOffset&0x0FFFFFFF
}

func ImportedSymbolClass(v uint32) uint8 {
	return uint8(v >> 28)
}

func ImportedSymbolNameOffset(v uint32) uint32 {
	return v & 0x0FFFFFFF
}

func ComposeExportedSymbol(class uint8, nameOffset uint32) uint32 {
	return uint32(class)<<24 | nameOffset&0x00FFFFFF
}

func ExportedSymbolClass(v uint32) uint8 {
	return uint8(v >> 24)
}

func ExportedSymbolNameOffset(v uint32) uint32 {
	return v & 0x00FFFFFF
}

// Export hash table parameters.
const (
	ExponentLimit     = 16
	AverageChainLimit = 10
)

// Hash slots pack a chain count (14 bits) over a first key index (18 bits).
func ComposeHashSlot(chainCount, firstIndex uint32) uint32 {
	return (chainCount&0x3FFF)<<18 | firstIndex&0x3FFFF
}

func HashSlotChainCount(v uint32) uint32 {
	return v >> 18 & 0x3FFF
}

func HashSlotFirstIndex(v uint32) uint32 {
	return v & 0x3FFFF
}

// ExportHashWord computes the 32-bit hash key for an exported name:
// the name length in the top 16 bits over a folded hash of the bytes.
func ExportHashWord(name string) uint32 {
	var h int32
	for i := 0; i < len(name); i++ {
		h = (h<<1 - h>>16) ^ int32(name[i])
	}
	return uint32(len(name))<<16 | uint32(h^h>>16)&0xFFFF
}

// ExportHashTablePower picks the table size exponent so that the average
// chain stays short. Zero (a single slot) is valid.
func ExportHashTablePower(exportCount int) uint32 {
	power := uint32(0)
	for power < ExponentLimit && exportCount>>power > AverageChainLimit {
		power++
	}
	return power
}
