package winevt

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const capabilitySIDPrefix = "S-1-15-3-"

// unknownValue is rendered for values that cannot be decoded.
const unknownValue = "?"

// decodeVariant converts one variant into a Go value. It never fails.
func (r *Renderer) decodeVariant(v Variant, preserveSID bool) any {
	if v.Type&VarTypeArray != 0 {
		return unknownValue
	}
	switch v.Type {
	case VarTypeNull:
		return nil
	case VarTypeString, VarTypeAnsiString, VarTypeEvtXML:
		s, ok := v.Value.(string)
		if !ok {
			return "(NULL)"
		}
		return s
	case VarTypeSByte, VarTypeInt16, VarTypeInt32, VarTypeInt64:
		if n, ok := v.Value.(int64); ok {
			return n
		}
	case VarTypeByte, VarTypeUInt16, VarTypeUInt32, VarTypeUInt64, VarTypeSizeT:
		if n, ok := v.Value.(uint64); ok {
			return n
		}
	case VarTypeSingle, VarTypeDouble:
		if f, ok := v.Value.(float64); ok {
			return fmt.Sprintf("%f", f)
		}
	case VarTypeBoolean:
		if b, ok := v.Value.(bool); ok {
			return b
		}
	case VarTypeBinary:
		if b, ok := v.Value.([]byte); ok {
			return strings.ToUpper(hex.EncodeToString(b))
		}
	case VarTypeGUID:
		if g, ok := v.Value.([16]byte); ok {
			return FormatGUID(g)
		}
	case VarTypeFileTime:
		if ft, ok := v.Value.(uint64); ok {
			return FormatFileTime(ft)
		}
	case VarTypeSysTime:
		if st, ok := v.Value.(SystemTime); ok {
			return FormatSystemTime(st)
		}
	case VarTypeSID:
		if sid, ok := v.Value.(string); ok {
			if preserveSID {
				return sid
			}
			return r.resolveSID(sid)
		}
	case VarTypeHexInt32, VarTypeHexInt64:
		if n, ok := v.Value.(uint64); ok {
			if n == 0 {
				return "0"
			}
			return fmt.Sprintf("%#x", n)
		}
	}
	return unknownValue
}

// resolveSID maps a SID string to DOMAIN\account. Capability SIDs and SIDs
// that cannot be looked up are returned unchanged.
func (r *Renderer) resolveSID(sid string) string {
	if strings.HasPrefix(sid, capabilitySIDPrefix) {
		return sid
	}
	domain, account, err := r.api.LookupAccountSid("", sid)
	if err != nil {
		return sid
	}
	return domain + `\` + account
}

// FormatGUID renders a GUID in its in-memory layout as {XXXXXXXX-XXXX-...}.
func FormatGUID(g [16]byte) string {
	var u uuid.UUID
	// Data1, Data2 and Data3 are little-endian in memory.
	binary.BigEndian.PutUint32(u[0:], binary.LittleEndian.Uint32(g[0:]))
	binary.BigEndian.PutUint16(u[4:], binary.LittleEndian.Uint16(g[4:]))
	binary.BigEndian.PutUint16(u[6:], binary.LittleEndian.Uint16(g[6:]))
	copy(u[8:], g[8:])
	return "{" + strings.ToUpper(u.String()) + "}"
}

// GUIDBytes is the inverse of FormatGUID for a parsed UUID.
func GUIDBytes(u uuid.UUID) [16]byte {
	var g [16]byte
	binary.LittleEndian.PutUint32(g[0:], binary.BigEndian.Uint32(u[0:]))
	binary.LittleEndian.PutUint16(g[4:], binary.BigEndian.Uint16(u[4:]))
	binary.LittleEndian.PutUint16(g[6:], binary.BigEndian.Uint16(u[6:]))
	copy(g[8:], u[8:])
	return g
}

// ticksPerSecond is the FILETIME resolution (100ns intervals).
const ticksPerSecond = 10_000_000

// epochDelta is the number of seconds between 1601-01-01 and 1970-01-01.
const epochDelta = 11644473600

// FileTimeToTime converts FILETIME ticks to a UTC time.
func FileTimeToTime(ticks uint64) time.Time {
	sec := int64(ticks/ticksPerSecond) - epochDelta
	nsec := int64(ticks%ticksPerSecond) * 100
	return time.Unix(sec, nsec).UTC()
}

// TimeToFileTime converts t to FILETIME ticks.
func TimeToFileTime(t time.Time) uint64 {
	return uint64(t.Unix()+epochDelta)*ticksPerSecond + uint64(t.Nanosecond()/100)
}

// FormatFileTime renders ticks as "YYYY-MM-DD HH:MM:SS.fffffffZ" keeping the
// full 100ns precision.
func FormatFileTime(ticks uint64) string {
	t := FileTimeToTime(ticks)
	return fmt.Sprintf("%s.%07dZ", t.Format("2006-01-02 15:04:05"), ticks%ticksPerSecond)
}

// FormatSystemTime renders st as "YYYY-MM-DD HH:MM:SS.mmmZ".
func FormatSystemTime(st SystemTime) string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d.%03dZ",
		st.Year, st.Month, st.Day, st.Hour, st.Minute, st.Second, st.Milliseconds)
}
