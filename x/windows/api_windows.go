//go:build windows
// +build windows

// Package windows binds winevt.API to wevtapi.dll.
package windows

import (
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/runreveal/winevt"
)

var (
	modwevtapi = windows.NewLazySystemDLL("wevtapi.dll")

	procEvtQuery                    = modwevtapi.NewProc("EvtQuery")
	procEvtSubscribe                = modwevtapi.NewProc("EvtSubscribe")
	procEvtNext                     = modwevtapi.NewProc("EvtNext")
	procEvtSeek                     = modwevtapi.NewProc("EvtSeek")
	procEvtCancel                   = modwevtapi.NewProc("EvtCancel")
	procEvtClose                    = modwevtapi.NewProc("EvtClose")
	procEvtCreateBookmark           = modwevtapi.NewProc("EvtCreateBookmark")
	procEvtUpdateBookmark           = modwevtapi.NewProc("EvtUpdateBookmark")
	procEvtCreateRenderContext      = modwevtapi.NewProc("EvtCreateRenderContext")
	procEvtRender                   = modwevtapi.NewProc("EvtRender")
	procEvtOpenPublisherMetadata    = modwevtapi.NewProc("EvtOpenPublisherMetadata")
	procEvtFormatMessage            = modwevtapi.NewProc("EvtFormatMessage")
	procEvtOpenSession              = modwevtapi.NewProc("EvtOpenSession")
	procEvtOpenChannelEnum          = modwevtapi.NewProc("EvtOpenChannelEnum")
	procEvtNextChannelPath          = modwevtapi.NewProc("EvtNextChannelPath")
	procEvtOpenChannelConfig        = modwevtapi.NewProc("EvtOpenChannelConfig")
	procEvtGetChannelConfigProperty = modwevtapi.NewProc("EvtGetChannelConfigProperty")
)

// evtRPCLogin is EVT_RPC_LOGIN.
type evtRPCLogin struct {
	Server   *uint16
	User     *uint16
	Domain   *uint16
	Password *uint16
	Flags    uint32
}

const evtRPCLoginClass = 1

// API calls wevtapi.dll directly.
type API struct{}

var _ winevt.API = API{}

// New returns the wevtapi.dll binding. It fails when the DLL cannot be
// loaded, e.g. on Windows versions without the Event Log API.
func New() (API, error) {
	if err := modwevtapi.Load(); err != nil {
		return API{}, err
	}
	return API{}, nil
}

// errno converts the error returned by LazyProc.Call into a winevt.Errno.
func errno(err error) error {
	if e, ok := err.(syscall.Errno); ok && e != 0 {
		return winevt.Errno(e)
	}
	return winevt.Errno(windows.ERROR_INVALID_FUNCTION)
}

func utf16Ptr(s string) (*uint16, error) {
	if s == "" {
		return nil, nil
	}
	p, err := windows.UTF16PtrFromString(s)
	if err != nil {
		return nil, winevt.Errno(windows.ERROR_INVALID_PARAMETER)
	}
	return p, nil
}

func handleCall(proc *windows.LazyProc, args ...uintptr) (winevt.Handle, error) {
	r1, _, err := proc.Call(args...)
	if r1 == 0 {
		return 0, errno(err)
	}
	return winevt.Handle(r1), nil
}

func boolCall(proc *windows.LazyProc, args ...uintptr) error {
	r1, _, err := proc.Call(args...)
	if r1 == 0 {
		return errno(err)
	}
	return nil
}

func (API) Query(session winevt.Handle, path, query string, flags winevt.QueryFlag) (winevt.Handle, error) {
	p, err := utf16Ptr(path)
	if err != nil {
		return 0, err
	}
	q, err := utf16Ptr(query)
	if err != nil {
		return 0, err
	}
	return handleCall(procEvtQuery,
		uintptr(session),
		uintptr(unsafe.Pointer(p)),
		uintptr(unsafe.Pointer(q)),
		uintptr(flags),
	)
}

func (API) Subscribe(session, signal winevt.Handle, path, query string, bookmark winevt.Handle, flags winevt.SubscribeFlag) (winevt.Handle, error) {
	p, err := utf16Ptr(path)
	if err != nil {
		return 0, err
	}
	q, err := utf16Ptr(query)
	if err != nil {
		return 0, err
	}
	return handleCall(procEvtSubscribe,
		uintptr(session),
		uintptr(signal),
		uintptr(unsafe.Pointer(p)),
		uintptr(unsafe.Pointer(q)),
		uintptr(bookmark),
		0,
		0,
		uintptr(flags),
	)
}

func (API) Next(results winevt.Handle, events []winevt.Handle, timeout uint32) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	var returned uint32
	err := boolCall(procEvtNext,
		uintptr(results),
		uintptr(len(events)),
		uintptr(unsafe.Pointer(&events[0])),
		uintptr(timeout),
		0,
		uintptr(unsafe.Pointer(&returned)),
	)
	if err != nil {
		return 0, err
	}
	return int(returned), nil
}

// Seek passes position in a single register, which limits it to 64-bit
// builds.
func (API) Seek(results winevt.Handle, position int64, bookmark winevt.Handle, timeout uint32, flags winevt.SeekFlag) error {
	return boolCall(procEvtSeek,
		uintptr(results),
		uintptr(position),
		uintptr(bookmark),
		uintptr(timeout),
		uintptr(flags),
	)
}

func (API) Cancel(h winevt.Handle) error {
	return boolCall(procEvtCancel, uintptr(h))
}

func (API) Close(h winevt.Handle) error {
	return boolCall(procEvtClose, uintptr(h))
}

func (API) CreateBookmark(xml string) (winevt.Handle, error) {
	p, err := utf16Ptr(xml)
	if err != nil {
		return 0, err
	}
	return handleCall(procEvtCreateBookmark, uintptr(unsafe.Pointer(p)))
}

func (API) UpdateBookmark(bookmark, event winevt.Handle) error {
	return boolCall(procEvtUpdateBookmark, uintptr(bookmark), uintptr(event))
}

func (API) CreateRenderContext(paths []string, flags winevt.RenderContextFlag) (winevt.Handle, error) {
	var ptrs []*uint16
	for _, path := range paths {
		p, err := utf16Ptr(path)
		if err != nil {
			return 0, err
		}
		ptrs = append(ptrs, p)
	}
	var first uintptr
	if len(ptrs) > 0 {
		first = uintptr(unsafe.Pointer(&ptrs[0]))
	}
	return handleCall(procEvtCreateRenderContext, uintptr(len(ptrs)), first, uintptr(flags))
}

func (API) Render(context, fragment winevt.Handle, flags winevt.RenderFlag, buf []byte) (uint32, uint32, error) {
	var used, count uint32
	var p uintptr
	if len(buf) > 0 {
		p = uintptr(unsafe.Pointer(&buf[0]))
	}
	err := boolCall(procEvtRender,
		uintptr(context),
		uintptr(fragment),
		uintptr(flags),
		uintptr(len(buf)),
		p,
		uintptr(unsafe.Pointer(&used)),
		uintptr(unsafe.Pointer(&count)),
	)
	return used, count, err
}

func (API) Values(buf []byte, count uint32) []winevt.Variant {
	return decodeVariants(buf, count)
}

func (API) OpenPublisherMetadata(session winevt.Handle, publisher string, locale uint32) (winevt.Handle, error) {
	p, err := utf16Ptr(publisher)
	if err != nil {
		return 0, err
	}
	return handleCall(procEvtOpenPublisherMetadata,
		uintptr(session),
		uintptr(unsafe.Pointer(p)),
		0,
		uintptr(locale),
		0,
	)
}

func (API) FormatMessage(publisher, event winevt.Handle, flags winevt.FormatMessageFlag, buf []uint16) (uint32, error) {
	var used uint32
	var p uintptr
	if len(buf) > 0 {
		p = uintptr(unsafe.Pointer(&buf[0]))
	}
	err := boolCall(procEvtFormatMessage,
		uintptr(publisher),
		uintptr(event),
		0,
		0,
		0,
		uintptr(flags),
		uintptr(len(buf)),
		p,
		uintptr(unsafe.Pointer(&used)),
	)
	return used, err
}

func (API) OpenSession(login winevt.RemoteLogin) (winevt.Handle, error) {
	var l evtRPCLogin
	var err error
	for _, f := range []struct {
		dst **uint16
		s   string
	}{
		{&l.Server, login.Server},
		{&l.User, login.User},
		{&l.Domain, login.Domain},
		{&l.Password, login.Password},
	} {
		if *f.dst, err = utf16Ptr(f.s); err != nil {
			return 0, err
		}
	}
	l.Flags = uint32(login.Flags)
	return handleCall(procEvtOpenSession, evtRPCLoginClass, uintptr(unsafe.Pointer(&l)), 0, 0)
}

func (API) OpenChannelEnum(session winevt.Handle) (winevt.Handle, error) {
	return handleCall(procEvtOpenChannelEnum, uintptr(session), 0)
}

func (API) NextChannelPath(enum winevt.Handle, buf []uint16) (uint32, error) {
	var used uint32
	var p uintptr
	if len(buf) > 0 {
		p = uintptr(unsafe.Pointer(&buf[0]))
	}
	err := boolCall(procEvtNextChannelPath, uintptr(enum), uintptr(len(buf)), p, uintptr(unsafe.Pointer(&used)))
	return used, err
}

func (API) OpenChannelConfig(session winevt.Handle, path string) (winevt.Handle, error) {
	p, err := utf16Ptr(path)
	if err != nil {
		return 0, err
	}
	return handleCall(procEvtOpenChannelConfig, uintptr(session), uintptr(unsafe.Pointer(p)), 0)
}

func (API) ChannelConfigProperty(config winevt.Handle, id winevt.ChannelConfigPropertyID) (winevt.Variant, error) {
	buf := make([]byte, variantSize)
	for {
		var used uint32
		err := boolCall(procEvtGetChannelConfigProperty,
			uintptr(config),
			uintptr(id),
			0,
			uintptr(len(buf)),
			uintptr(unsafe.Pointer(&buf[0])),
			uintptr(unsafe.Pointer(&used)),
		)
		if err == winevt.ErrorInsufficientBuffer && int(used) > len(buf) {
			buf = make([]byte, used)
			continue
		}
		if err != nil {
			return winevt.Variant{}, err
		}
		return decodeVariants(buf, 1)[0], nil
	}
}

func (API) CreateSignal() (winevt.Handle, error) {
	h, err := windows.CreateEvent(nil, 0, 1, nil)
	if err != nil {
		return 0, errno(err)
	}
	return winevt.Handle(h), nil
}

func (API) WaitSignal(signal winevt.Handle, timeout uint32) (bool, error) {
	ev, err := windows.WaitForSingleObject(windows.Handle(signal), timeout)
	switch {
	case err != nil:
		return false, errno(err)
	case ev == windows.WAIT_OBJECT_0:
		return true, nil
	case ev == uint32(windows.WAIT_TIMEOUT):
		return false, nil
	}
	return false, winevt.Errno(ev)
}

func (API) CloseSignal(signal winevt.Handle) error {
	if err := windows.CloseHandle(windows.Handle(signal)); err != nil {
		return errno(err)
	}
	return nil
}

func (API) LookupAccountSid(system, sid string) (string, string, error) {
	s, err := windows.StringToSid(sid)
	if err != nil {
		return "", "", errno(err)
	}
	account, domain, _, err := s.LookupAccount(system)
	if err != nil {
		return "", "", errno(err)
	}
	return domain, account, nil
}

func (API) ErrorMessage(code winevt.Errno) string {
	buf := make([]uint16, 512)
	flags := uint32(windows.FORMAT_MESSAGE_FROM_SYSTEM | windows.FORMAT_MESSAGE_IGNORE_INSERTS)
	n, err := windows.FormatMessage(flags, 0, uint32(code), 0, buf, nil)
	if err != nil || n == 0 {
		return code.Error()
	}
	return strings.TrimRight(windows.UTF16ToString(buf[:n]), "\r\n ")
}
