//go:build windows
// +build windows

package windows

import (
	"encoding/binary"
	"math"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/runreveal/winevt"
)

// variantSize is sizeof(EVT_VARIANT): an 8 byte union, a count and a type.
const variantSize = 16

// decodeVariants reads count EVT_VARIANT structures from the start of buf.
// Pointer members refer to memory inside buf, so buf must stay alive until
// decoding returns.
func decodeVariants(buf []byte, count uint32) []winevt.Variant {
	if int(count)*variantSize > len(buf) {
		count = uint32(len(buf) / variantSize)
	}
	out := make([]winevt.Variant, count)
	for i := range out {
		elem := buf[i*variantSize : (i+1)*variantSize]
		data := binary.LittleEndian.Uint64(elem[0:8])
		n := binary.LittleEndian.Uint32(elem[8:12])
		typ := winevt.VarType(binary.LittleEndian.Uint32(elem[12:16]))
		out[i] = winevt.Variant{Type: typ, Value: decodeValue(typ, data, n)}
	}
	return out
}

func ptr(data uint64) unsafe.Pointer {
	return unsafe.Pointer(uintptr(data))
}

func decodeValue(typ winevt.VarType, data uint64, n uint32) any {
	if typ&winevt.VarTypeArray != 0 {
		return nil
	}
	switch typ {
	case winevt.VarTypeString, winevt.VarTypeEvtXML:
		if data == 0 {
			return nil
		}
		return windows.UTF16PtrToString((*uint16)(ptr(data)))
	case winevt.VarTypeAnsiString:
		if data == 0 {
			return nil
		}
		return windows.BytePtrToString((*byte)(ptr(data)))
	case winevt.VarTypeSByte:
		return int64(int8(data))
	case winevt.VarTypeInt16:
		return int64(int16(data))
	case winevt.VarTypeInt32:
		return int64(int32(data))
	case winevt.VarTypeInt64:
		return int64(data)
	case winevt.VarTypeByte:
		return uint64(uint8(data))
	case winevt.VarTypeUInt16:
		return uint64(uint16(data))
	case winevt.VarTypeUInt32, winevt.VarTypeHexInt32:
		return uint64(uint32(data))
	case winevt.VarTypeUInt64, winevt.VarTypeHexInt64, winevt.VarTypeSizeT, winevt.VarTypeFileTime:
		return data
	case winevt.VarTypeSingle:
		return float64(math.Float32frombits(uint32(data)))
	case winevt.VarTypeDouble:
		return math.Float64frombits(data)
	case winevt.VarTypeBoolean:
		return uint32(data) != 0
	case winevt.VarTypeBinary:
		if data == 0 {
			return nil
		}
		b := make([]byte, n)
		copy(b, unsafe.Slice((*byte)(ptr(data)), n))
		return b
	case winevt.VarTypeGUID:
		if data == 0 {
			return nil
		}
		var g [16]byte
		copy(g[:], unsafe.Slice((*byte)(ptr(data)), 16))
		return g
	case winevt.VarTypeSysTime:
		if data == 0 {
			return nil
		}
		return *(*winevt.SystemTime)(ptr(data))
	case winevt.VarTypeSID:
		if data == 0 {
			return nil
		}
		return (*windows.SID)(ptr(data)).String()
	}
	return nil
}
