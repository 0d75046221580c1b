package linker

import "encoding/binary"

// A PEF container opens with the tags 'Joy!' then 'peff'.
func CheckMagic(content []byte) bool {
	if len(content) < 8 {
		return false
	}
	return binary.BigEndian.Uint32(content) == PEFTag1 &&
		binary.BigEndian.Uint32(content[4:]) == PEFTag2
}
