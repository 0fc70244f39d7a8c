// Package winevt implements the query, subscription and rendering protocol
// that sits on top of the Windows Event Log API.
//
// The operating system is only reached through the API interface. The real
// binding lives in x/windows and an in-memory implementation for tests lives
// in winevttest.
package winevt

import (
	"fmt"
	"strconv"
)

// Handle is an opaque EVT_HANDLE (or kernel event handle for signals).
type Handle uintptr

// Infinite is the timeout value that blocks until the OS has data.
const Infinite uint32 = 0xFFFFFFFF

// Errno is a Win32 error code returned by a failing API call.
type Errno uint32

const (
	ErrorFileNotFound                 Errno = 2
	ErrorInvalidData                  Errno = 13
	ErrorInsufficientBuffer           Errno = 122
	ErrorNoMoreItems                  Errno = 259
	ErrorCancelled                    Errno = 1223
	ErrorTimeout                      Errno = 1460
	ErrorResourceLangNotFound         Errno = 1815
	ErrorEvtInvalidQuery              Errno = 15001
	ErrorEvtPublisherMetadataNotFound Errno = 15002
	ErrorEvtChannelNotFound           Errno = 15007
	ErrorEvtMessageNotFound           Errno = 15027
	ErrorEvtMessageIDNotFound         Errno = 15028
	ErrorEvtUnresolvedValueInsert     Errno = 15029
	ErrorEvtUnresolvedParameterInsert Errno = 15030
	ErrorEvtMessageLocaleNotFound     Errno = 15033
	ErrorMUIFileNotFound              Errno = 15100
)

func (e Errno) Error() string {
	return "winevt: error code " + strconv.FormatUint(uint64(e), 10)
}

// QueryFlag selects the EvtQuery mode.
type QueryFlag uint32

const (
	QueryChannelPath         QueryFlag = 0x1
	QueryFilePath            QueryFlag = 0x2
	QueryForwardDirection    QueryFlag = 0x100
	QueryReverseDirection    QueryFlag = 0x200
	QueryTolerateQueryErrors QueryFlag = 0x1000

	DefaultQueryFlags = QueryChannelPath | QueryTolerateQueryErrors
)

// SubscribeFlag selects where a subscription starts.
type SubscribeFlag uint32

const (
	SubscribeToFutureEvents      SubscribeFlag = 1
	SubscribeStartAtOldestRecord SubscribeFlag = 2
	SubscribeStartAfterBookmark  SubscribeFlag = 3
)

// SeekFlag selects the reference point for EvtSeek.
type SeekFlag uint32

const (
	SeekRelativeToFirst    SeekFlag = 1
	SeekRelativeToLast     SeekFlag = 2
	SeekRelativeToCurrent  SeekFlag = 3
	SeekRelativeToBookmark SeekFlag = 4
	SeekOriginMask         SeekFlag = 7
	SeekStrict             SeekFlag = 0x10000
)

// RenderFlag selects what EvtRender produces.
type RenderFlag uint32

const (
	RenderEventValues RenderFlag = 0
	RenderEventXML    RenderFlag = 1
	RenderBookmark    RenderFlag = 2
)

// RenderContextFlag selects which properties a render context extracts.
type RenderContextFlag uint32

const (
	RenderContextValues RenderContextFlag = 0
	RenderContextSystem RenderContextFlag = 1
	RenderContextUser   RenderContextFlag = 2
)

// FormatMessageFlag selects the EvtFormatMessage projection.
type FormatMessageFlag uint32

const (
	FormatMessageEvent FormatMessageFlag = 1
)

// ChannelConfigPropertyID identifies an EvtGetChannelConfigProperty value.
type ChannelConfigPropertyID uint32

const (
	ChannelConfigType ChannelConfigPropertyID = 2
)

// Channel types reported by ChannelConfigType.
const (
	ChannelTypeAdmin       = 0
	ChannelTypeOperational = 1
	ChannelTypeAnalytic    = 2
	ChannelTypeDebug       = 3
)

// RemoteLogin carries EVT_RPC_LOGIN credentials.
type RemoteLogin struct {
	Server   string
	User     string
	Domain   string
	Password string
	Flags    AuthFlag
}

// VarType is an EVT_VARIANT_TYPE.
type VarType uint32

const (
	VarTypeNull VarType = iota
	VarTypeString
	VarTypeAnsiString
	VarTypeSByte
	VarTypeByte
	VarTypeInt16
	VarTypeUInt16
	VarTypeInt32
	VarTypeUInt32
	VarTypeInt64
	VarTypeUInt64
	VarTypeSingle
	VarTypeDouble
	VarTypeBoolean
	VarTypeBinary
	VarTypeGUID
	VarTypeSizeT
	VarTypeFileTime
	VarTypeSysTime
	VarTypeSID
	VarTypeHexInt32
	VarTypeHexInt64
	VarTypeEvtHandle VarType = 32
	VarTypeEvtXML    VarType = 35

	VarTypeArray VarType = 128
	VarTypeMask  VarType = 0x7f
)

// SystemTime mirrors the Win32 SYSTEMTIME structure.
type SystemTime struct {
	Year         uint16
	Month        uint16
	DayOfWeek    uint16
	Day          uint16
	Hour         uint16
	Minute       uint16
	Second       uint16
	Milliseconds uint16
}

// Variant is a decoded EVT_VARIANT. Value holds:
//
//	string      String, AnsiString, EvtXML, SID (S-1-... form)
//	int64       SByte, Int16, Int32, Int64
//	uint64      Byte, UInt16, UInt32, UInt64, SizeT, HexInt32, HexInt64, FileTime
//	float64     Single, Double
//	bool        Boolean
//	[]byte      Binary
//	[16]byte    GUID in its in-memory layout
//	SystemTime  SysTime
//
// A nil Value on a pointer type means the OS returned a null pointer.
type Variant struct {
	Type  VarType
	Value any
}

func (v Variant) String() string {
	return fmt.Sprintf("%d:%v", v.Type, v.Value)
}

// API is the set of operating system calls the protocol depends on. Every
// failing call returns an Errno.
type API interface {
	Query(session Handle, path, query string, flags QueryFlag) (Handle, error)
	Subscribe(session, signal Handle, path, query string, bookmark Handle, flags SubscribeFlag) (Handle, error)
	// Next fills events with up to len(events) result handles.
	Next(results Handle, events []Handle, timeout uint32) (int, error)
	Seek(results Handle, position int64, bookmark Handle, timeout uint32, flags SeekFlag) error
	Cancel(h Handle) error
	Close(h Handle) error

	CreateBookmark(xml string) (Handle, error)
	UpdateBookmark(bookmark, event Handle) error

	CreateRenderContext(paths []string, flags RenderContextFlag) (Handle, error)
	// Render writes into buf and returns the bytes used and the property
	// count. When buf is too small it returns ErrorInsufficientBuffer and the
	// required size as used.
	Render(context, fragment Handle, flags RenderFlag, buf []byte) (used uint32, count uint32, err error)
	// Values decodes the EVT_VARIANT array written by a successful values
	// render.
	Values(buf []byte, count uint32) []Variant

	OpenPublisherMetadata(session Handle, publisher string, locale uint32) (Handle, error)
	// FormatMessage follows the same sizing contract as Render, counted in
	// UTF-16 code units.
	FormatMessage(publisher, event Handle, flags FormatMessageFlag, buf []uint16) (used uint32, err error)

	OpenSession(login RemoteLogin) (Handle, error)
	OpenChannelEnum(session Handle) (Handle, error)
	NextChannelPath(enum Handle, buf []uint16) (used uint32, err error)
	OpenChannelConfig(session Handle, path string) (Handle, error)
	ChannelConfigProperty(config Handle, id ChannelConfigPropertyID) (Variant, error)

	CreateSignal() (Handle, error)
	// WaitSignal reports whether the signal fired before the timeout.
	WaitSignal(signal Handle, timeout uint32) (bool, error)
	CloseSignal(signal Handle) error

	LookupAccountSid(system, sid string) (domain, account string, err error)
	ErrorMessage(code Errno) string
}
