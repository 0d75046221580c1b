package linker

import "encoding/binary"

type FileType uint8

const (
	FileTypeUnknown FileType = iota
	FileTypeEmpty
	FileTypePEF
)

func GetFileTypeFromContent(content []byte) FileType {
	if len(content) == 0 {
		return FileTypeEmpty
	}
	if CheckMagic(content) {
		return FileTypePEF
	}
	return FileTypeUnknown
}

type Architecture uint8

const (
	ArchNone Architecture = iota
	ArchPowerPC
	ArchM68K
)

func (a Architecture) String() string {
	switch a {
	case ArchPowerPC:
		return "pwpc"
	case ArchM68K:
		return "m68k"
	}
	return "none"
}

func GetArchFromContent(content []byte) Architecture {
	if GetFileTypeFromContent(content) != FileTypePEF || len(content) < 12 {
		return ArchNone
	}
	switch binary.BigEndian.Uint32(content[8:]) {
	case PEFPowerPCArch:
		return ArchPowerPC
	case PEFM68KArch:
		return ArchM68K
	}
	return ArchNone
}
