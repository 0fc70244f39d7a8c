package winevt

import (
	"encoding/binary"
	"unicode/utf16"
)

// UTF16ToString decodes s up to the first NUL.
func UTF16ToString(s []uint16) string {
	for i, v := range s {
		if v == 0 {
			s = s[:i]
			break
		}
	}
	return string(utf16.Decode(s))
}

// UTF16BytesToString decodes little-endian UTF-16 bytes up to the first NUL.
func UTF16BytesToString(b []byte) string {
	s := make([]uint16, len(b)/2)
	for i := range s {
		s[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return UTF16ToString(s)
}

// StringToUTF16Bytes encodes s as NUL-terminated little-endian UTF-16.
func StringToUTF16Bytes(s string) []byte {
	u := utf16.Encode([]rune(s))
	b := make([]byte, 2*len(u)+2)
	for i, v := range u {
		binary.LittleEndian.PutUint16(b[2*i:], v)
	}
	return b
}
