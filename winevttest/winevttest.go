// Package winevttest provides an in-memory winevt.API for tests.
//
// Channels hold events in record order. Queries and subscriptions walk that
// order, bookmarks record (channel, record id), and every handle handed out
// is tracked so tests can assert that nothing leaked.
package winevttest

import (
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/runreveal/winevt"
)

const (
	errorInvalidHandle winevt.Errno = 6
	errorNotFound      winevt.Errno = 1168
	errorNoneMapped    winevt.Errno = 1332
)

// Event is a record stored in a fake channel.
type Event struct {
	RecordID     uint64
	Channel      string
	Provider     string
	ProviderGUID [16]byte
	EventID      uint16
	Qualifiers   *uint16
	Version      uint8
	Level        uint8
	Task         uint16
	Opcode       uint8
	Keywords     uint64
	Created      time.Time
	ActivityID   *[16]byte
	ProcessID    uint32
	ThreadID     uint32
	Computer     string
	UserSID      string

	// XML overrides the generated XML rendering.
	XML string
	// Messages maps an LCID to a message template. Key 0 is used when the
	// requested locale has no entry.
	Messages map[uint32]string
	// MessageErr is returned by FormatMessage, together with the message
	// when the error is ErrorEvtUnresolvedValueInsert.
	MessageErr winevt.Errno
	Inserts    []winevt.Variant
	// RenderErr makes every EvtRender of this event fail.
	RenderErr winevt.Errno
}

type object interface{}

type queryObj struct {
	channel   string
	events    []*Event
	pos       int
	cancelled bool
}

type subObj struct {
	channel   string
	filter    func(*Event) bool
	pos       int
	signal    winevt.Handle
	cancelled bool
}

type eventObj struct{ ev *Event }

type bookmarkObj struct {
	channel  string
	recordID uint64
	set      bool
}

type contextObj struct {
	paths []string
	flags winevt.RenderContextFlag
}

type metaObj struct {
	provider string
	locale   uint32
}

type sessionObj struct{ login winevt.RemoteLogin }

type enumObj struct {
	names []string
	pos   int
}

type configObj struct{ path string }

type signalObj struct{ c chan struct{} }

// API is an in-memory winevt.API. The exported fields may be set before use
// to inject failures.
type API struct {
	mu       sync.Mutex
	channels map[string][]*Event
	types    map[string]uint32
	handles  map[winevt.Handle]object
	next     winevt.Handle
	rendered map[uint64][]winevt.Variant
	renderID uint64

	// Accounts maps SID strings to DOMAIN and account names.
	Accounts map[string][2]string
	// MissingPublishers makes OpenPublisherMetadata fail for these providers.
	MissingPublishers map[string]bool
	// SessionErr makes OpenSession fail.
	SessionErr winevt.Errno
	// NextErr is returned by the next call to Next, then cleared.
	NextErr winevt.Errno

	// Logins records every OpenSession call.
	Logins []winevt.RemoteLogin
	// Locales records the LCID of every OpenPublisherMetadata call.
	Locales []uint32
	// NextCalls counts calls to Next.
	NextCalls int
	// NextTimeout is the timeout of the last Next call.
	NextTimeout uint32
	// ResizedRenders counts renders that reported ErrorInsufficientBuffer.
	ResizedRenders int
}

var _ winevt.API = (*API)(nil)

func New() *API {
	return &API{
		channels: map[string][]*Event{},
		types:    map[string]uint32{},
		handles:  map[winevt.Handle]object{},
		rendered: map[uint64][]winevt.Variant{},
		next:     0x100,
	}
}

// AddChannel registers an empty channel of the given type.
func (f *API) AddChannel(name string, typ uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[name]; !ok {
		f.channels[name] = nil
	}
	f.types[name] = typ
}

// AddEvent appends ev to channel, assigning the next record id when
// RecordID is zero, and signals subscriptions on that channel.
func (f *API) AddEvent(channel string, ev Event) *Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	evs := f.channels[channel]
	if ev.RecordID == 0 {
		ev.RecordID = uint64(len(evs) + 1)
		if len(evs) > 0 {
			ev.RecordID = evs[len(evs)-1].RecordID + 1
		}
	}
	ev.Channel = channel
	if ev.Provider == "" {
		ev.Provider = "TestProvider"
	}
	if ev.Computer == "" {
		ev.Computer = "testhost"
	}
	if ev.Created.IsZero() {
		ev.Created = time.Date(2023, 11, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(ev.RecordID) * time.Second)
	}
	p := &ev
	f.channels[channel] = append(evs, p)

	for _, o := range f.handles {
		if s, ok := o.(*subObj); ok && s.channel == channel {
			if sig, ok := f.handles[s.signal].(*signalObj); ok {
				select {
				case sig.c <- struct{}{}:
				default:
				}
			}
		}
	}
	return p
}

// OpenHandles returns the number of handles not yet closed.
func (f *API) OpenHandles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

func (f *API) alloc(o object) winevt.Handle {
	f.next++
	f.handles[f.next] = o
	return f.next
}

var eventIDFilter = regexp.MustCompile(`EventID\s*=\s*(\d+)`)

// compileFilter supports "*" and predicates on EventID, which is all tests
// need.
func compileFilter(query string) (func(*Event) bool, error) {
	q := strings.TrimSpace(query)
	if q == "" || q == "*" {
		return func(*Event) bool { return true }, nil
	}
	if !strings.HasPrefix(q, "*") && !strings.HasPrefix(q, "Event") {
		return nil, winevt.ErrorEvtInvalidQuery
	}
	m := eventIDFilter.FindAllStringSubmatch(q, -1)
	if len(m) == 0 {
		return func(*Event) bool { return true }, nil
	}
	ids := map[uint16]bool{}
	for _, sm := range m {
		n, err := strconv.ParseUint(sm[1], 10, 16)
		if err != nil {
			return nil, winevt.ErrorEvtInvalidQuery
		}
		ids[uint16(n)] = true
	}
	return func(ev *Event) bool { return ids[ev.EventID] }, nil
}

func (f *API) Query(session winevt.Handle, path, query string, flags winevt.QueryFlag) (winevt.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	evs, ok := f.channels[path]
	if !ok {
		if flags&winevt.QueryFilePath != 0 {
			return 0, winevt.ErrorFileNotFound
		}
		return 0, winevt.ErrorEvtChannelNotFound
	}
	filter, err := compileFilter(query)
	if err != nil {
		return 0, err
	}
	q := &queryObj{channel: path}
	for _, ev := range evs {
		if filter(ev) {
			q.events = append(q.events, ev)
		}
	}
	if flags&winevt.QueryReverseDirection != 0 {
		for i, j := 0, len(q.events)-1; i < j; i, j = i+1, j-1 {
			q.events[i], q.events[j] = q.events[j], q.events[i]
		}
	}
	return f.alloc(q), nil
}

func (f *API) Subscribe(session, signal winevt.Handle, path, query string, bookmark winevt.Handle, flags winevt.SubscribeFlag) (winevt.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	evs, ok := f.channels[path]
	if !ok {
		return 0, winevt.ErrorEvtChannelNotFound
	}
	filter, err := compileFilter(query)
	if err != nil {
		return 0, err
	}
	s := &subObj{channel: path, filter: filter, signal: signal}
	switch flags {
	case winevt.SubscribeToFutureEvents:
		s.pos = len(evs)
	case winevt.SubscribeStartAtOldestRecord:
		s.pos = 0
	case winevt.SubscribeStartAfterBookmark:
		bm, ok := f.handles[bookmark].(*bookmarkObj)
		if !ok {
			return 0, errorInvalidHandle
		}
		if bm.set && bm.channel == path {
			for i, ev := range evs {
				if ev.RecordID == bm.recordID {
					s.pos = i + 1
				}
			}
		}
	default:
		return 0, winevt.Errno(87)
	}
	if sig, ok := f.handles[signal].(*signalObj); ok && s.pos < len(evs) {
		select {
		case sig.c <- struct{}{}:
		default:
		}
	}
	return f.alloc(s), nil
}

func (f *API) Next(results winevt.Handle, events []winevt.Handle, timeout uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NextCalls++
	f.NextTimeout = timeout
	if f.NextErr != 0 {
		err := f.NextErr
		f.NextErr = 0
		return 0, err
	}
	n := 0
	switch o := f.handles[results].(type) {
	case *queryObj:
		if o.cancelled {
			return 0, winevt.ErrorCancelled
		}
		for n < len(events) && o.pos < len(o.events) {
			events[n] = f.alloc(&eventObj{ev: o.events[o.pos]})
			o.pos++
			n++
		}
	case *subObj:
		if o.cancelled {
			return 0, winevt.ErrorCancelled
		}
		evs := f.channels[o.channel]
		for n < len(events) && o.pos < len(evs) {
			ev := evs[o.pos]
			o.pos++
			if o.filter(ev) {
				events[n] = f.alloc(&eventObj{ev: ev})
				n++
			}
		}
	default:
		return 0, errorInvalidHandle
	}
	if n == 0 {
		return 0, winevt.ErrorNoMoreItems
	}
	return n, nil
}

func (f *API) Seek(results winevt.Handle, position int64, bookmark winevt.Handle, timeout uint32, flags winevt.SeekFlag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.handles[results].(*queryObj)
	if !ok {
		return errorInvalidHandle
	}
	var base int64
	switch flags & winevt.SeekOriginMask {
	case winevt.SeekRelativeToFirst:
		base = 0
	case winevt.SeekRelativeToLast:
		base = int64(len(q.events)) - 1
	case winevt.SeekRelativeToCurrent:
		base = int64(q.pos)
	case winevt.SeekRelativeToBookmark:
		bm, ok := f.handles[bookmark].(*bookmarkObj)
		if !ok {
			return errorInvalidHandle
		}
		base = -1
		for i, ev := range q.events {
			if bm.set && bm.channel == q.channel && ev.RecordID == bm.recordID {
				base = int64(i)
			}
		}
		if base < 0 {
			return errorNotFound
		}
	default:
		return winevt.Errno(87)
	}
	pos := base + position
	if pos < 0 || pos > int64(len(q.events)) {
		if flags&winevt.SeekStrict != 0 {
			return errorNotFound
		}
		if pos < 0 {
			pos = 0
		} else {
			pos = int64(len(q.events))
		}
	}
	q.pos = int(pos)
	return nil
}

func (f *API) Cancel(h winevt.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch o := f.handles[h].(type) {
	case *queryObj:
		o.cancelled = true
	case *subObj:
		o.cancelled = true
	default:
		return errorInvalidHandle
	}
	return nil
}

func (f *API) Close(h winevt.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.handles[h]
	if !ok {
		return errorInvalidHandle
	}
	if _, ok := o.(*signalObj); ok {
		return errorInvalidHandle
	}
	delete(f.handles, h)
	return nil
}

var (
	bookmarkChannel = regexp.MustCompile(`Channel='([^']*)'`)
	bookmarkRecord  = regexp.MustCompile(`RecordId='(\d+)'`)
)

func (f *API) CreateBookmark(text string) (winevt.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bm := &bookmarkObj{}
	if strings.TrimSpace(text) != "" {
		if !strings.Contains(text, "<BookmarkList") {
			return 0, winevt.ErrorInvalidData
		}
		ch := bookmarkChannel.FindStringSubmatch(text)
		rec := bookmarkRecord.FindStringSubmatch(text)
		if ch != nil && rec != nil {
			id, err := strconv.ParseUint(rec[1], 10, 64)
			if err != nil {
				return 0, winevt.ErrorInvalidData
			}
			bm.channel, bm.recordID, bm.set = ch[1], id, true
		}
	}
	return f.alloc(bm), nil
}

func (f *API) UpdateBookmark(bookmark, event winevt.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bm, ok := f.handles[bookmark].(*bookmarkObj)
	if !ok {
		return errorInvalidHandle
	}
	ev, ok := f.handles[event].(*eventObj)
	if !ok {
		return errorInvalidHandle
	}
	bm.channel, bm.recordID, bm.set = ev.ev.Channel, ev.ev.RecordID, true
	return nil
}

func (f *API) CreateRenderContext(paths []string, flags winevt.RenderContextFlag) (winevt.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if flags > winevt.RenderContextUser {
		return 0, winevt.Errno(87)
	}
	return f.alloc(&contextObj{paths: paths, flags: flags}), nil
}

func (f *API) Render(context, fragment winevt.Handle, flags winevt.RenderFlag, buf []byte) (uint32, uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch flags {
	case winevt.RenderBookmark:
		bm, ok := f.handles[fragment].(*bookmarkObj)
		if !ok {
			return 0, 0, errorInvalidHandle
		}
		return f.writeText(buf, renderBookmark(bm))
	case winevt.RenderEventXML:
		ev, ok := f.handles[fragment].(*eventObj)
		if !ok {
			return 0, 0, errorInvalidHandle
		}
		if ev.ev.RenderErr != 0 {
			return 0, 0, ev.ev.RenderErr
		}
		return f.writeText(buf, renderXML(ev.ev))
	case winevt.RenderEventValues:
		ctx, ok := f.handles[context].(*contextObj)
		if !ok {
			return 0, 0, errorInvalidHandle
		}
		ev, ok := f.handles[fragment].(*eventObj)
		if !ok {
			return 0, 0, errorInvalidHandle
		}
		if ev.ev.RenderErr != 0 {
			return 0, 0, ev.ev.RenderErr
		}
		vals := contextValues(ctx, ev.ev)
		need := variantsSize(vals)
		if len(vals) > 0 && need < 8 {
			need = 8
		}
		if uint32(len(buf)) < need {
			f.ResizedRenders++
			return need, 0, winevt.ErrorInsufficientBuffer
		}
		if len(vals) > 0 {
			f.renderID++
			f.rendered[f.renderID] = vals
			binary.LittleEndian.PutUint64(buf, f.renderID)
		}
		return need, uint32(len(vals)), nil
	}
	return 0, 0, winevt.Errno(87)
}

func (f *API) writeText(buf []byte, s string) (uint32, uint32, error) {
	b := winevt.StringToUTF16Bytes(s)
	if len(buf) < len(b) {
		f.ResizedRenders++
		return uint32(len(b)), 0, winevt.ErrorInsufficientBuffer
	}
	copy(buf, b)
	return uint32(len(b)), 0, nil
}

func (f *API) Values(buf []byte, count uint32) []winevt.Variant {
	if count == 0 || len(buf) < 8 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := binary.LittleEndian.Uint64(buf)
	vals := f.rendered[id]
	delete(f.rendered, id)
	if int(count) < len(vals) {
		vals = vals[:count]
	}
	return vals
}

func (f *API) OpenPublisherMetadata(session winevt.Handle, publisher string, locale uint32) (winevt.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Locales = append(f.Locales, locale)
	if publisher == "" || f.MissingPublishers[publisher] {
		return 0, winevt.ErrorEvtPublisherMetadataNotFound
	}
	return f.alloc(&metaObj{provider: publisher, locale: locale}), nil
}

func (f *API) FormatMessage(publisher, event winevt.Handle, flags winevt.FormatMessageFlag, buf []uint16) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, ok := f.handles[publisher].(*metaObj)
	if !ok {
		return 0, errorInvalidHandle
	}
	ev, ok := f.handles[event].(*eventObj)
	if !ok {
		return 0, errorInvalidHandle
	}
	if ev.ev.MessageErr != 0 && ev.ev.MessageErr != winevt.ErrorEvtUnresolvedValueInsert {
		return 0, ev.ev.MessageErr
	}
	msg, ok := ev.ev.Messages[meta.locale]
	if !ok {
		msg, ok = ev.ev.Messages[0]
	}
	if !ok {
		return 0, winevt.ErrorEvtMessageNotFound
	}
	b := winevt.StringToUTF16Bytes(msg)
	need := uint32(len(b) / 2)
	if uint32(len(buf)) < need {
		return need, winevt.ErrorInsufficientBuffer
	}
	for i := 0; i < int(need); i++ {
		buf[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	if ev.ev.MessageErr != 0 {
		return need, ev.ev.MessageErr
	}
	return need, nil
}

func (f *API) OpenSession(login winevt.RemoteLogin) (winevt.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Logins = append(f.Logins, login)
	if f.SessionErr != 0 {
		return 0, f.SessionErr
	}
	return f.alloc(&sessionObj{login: login}), nil
}

func (f *API) OpenChannelEnum(session winevt.Handle) (winevt.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.channels))
	for name := range f.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return f.alloc(&enumObj{names: names}), nil
}

func (f *API) NextChannelPath(enum winevt.Handle, buf []uint16) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.handles[enum].(*enumObj)
	if !ok {
		return 0, errorInvalidHandle
	}
	if e.pos >= len(e.names) {
		return 0, winevt.ErrorNoMoreItems
	}
	b := winevt.StringToUTF16Bytes(e.names[e.pos])
	need := uint32(len(b) / 2)
	if uint32(len(buf)) < need {
		return need, winevt.ErrorInsufficientBuffer
	}
	for i := 0; i < int(need); i++ {
		buf[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	e.pos++
	return need, nil
}

func (f *API) OpenChannelConfig(session winevt.Handle, path string) (winevt.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[path]; !ok {
		return 0, winevt.ErrorEvtChannelNotFound
	}
	return f.alloc(&configObj{path: path}), nil
}

func (f *API) ChannelConfigProperty(config winevt.Handle, id winevt.ChannelConfigPropertyID) (winevt.Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.handles[config].(*configObj)
	if !ok {
		return winevt.Variant{}, errorInvalidHandle
	}
	if id != winevt.ChannelConfigType {
		return winevt.Variant{Type: winevt.VarTypeNull}, nil
	}
	return winevt.Variant{Type: winevt.VarTypeUInt32, Value: uint64(f.types[c.path])}, nil
}

func (f *API) CreateSignal() (winevt.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alloc(&signalObj{c: make(chan struct{}, 1)}), nil
}

func (f *API) WaitSignal(signal winevt.Handle, timeout uint32) (bool, error) {
	f.mu.Lock()
	sig, ok := f.handles[signal].(*signalObj)
	f.mu.Unlock()
	if !ok {
		return false, errorInvalidHandle
	}
	if timeout == winevt.Infinite {
		<-sig.c
		return true, nil
	}
	select {
	case <-sig.c:
		return true, nil
	case <-time.After(time.Duration(timeout) * time.Millisecond):
		return false, nil
	}
}

func (f *API) CloseSignal(signal winevt.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.handles[signal].(*signalObj); !ok {
		return errorInvalidHandle
	}
	delete(f.handles, signal)
	return nil
}

func (f *API) LookupAccountSid(system, sid string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.Accounts[sid]
	if !ok {
		return "", "", errorNoneMapped
	}
	return acct[0], acct[1], nil
}

var errorMessages = map[winevt.Errno]string{
	winevt.ErrorFileNotFound:                 "The system cannot find the file specified.",
	winevt.ErrorInvalidData:                  "The data is invalid.",
	winevt.ErrorEvtChannelNotFound:           "The specified channel could not be found.",
	winevt.ErrorEvtInvalidQuery:              "The specified query is invalid.",
	winevt.ErrorEvtPublisherMetadataNotFound: "The publisher metadata cannot be found in the resource.",
}

func (f *API) ErrorMessage(code winevt.Errno) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("error %d", uint32(code))
}

func renderBookmark(bm *bookmarkObj) string {
	if !bm.set {
		return "<BookmarkList>\r\n</BookmarkList>"
	}
	return fmt.Sprintf("<BookmarkList>\r\n  <Bookmark Channel='%s' RecordId='%d' IsCurrent='true'/>\r\n</BookmarkList>",
		bm.channel, bm.recordID)
}

func escape(s string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}

func renderXML(ev *Event) string {
	if ev.XML != "" {
		return ev.XML
	}
	var sb strings.Builder
	sb.WriteString("<Event xmlns='http://schemas.microsoft.com/win/2004/08/events/event'><System>")
	fmt.Fprintf(&sb, "<Provider Name='%s'/>", escape(ev.Provider))
	fmt.Fprintf(&sb, "<EventID>%d</EventID>", ev.EventID)
	fmt.Fprintf(&sb, "<Level>%d</Level><Task>%d</Task><Keywords>0x%x</Keywords>", ev.Level, ev.Task, ev.Keywords)
	fmt.Fprintf(&sb, "<TimeCreated SystemTime='%s'/>", ev.Created.UTC().Format("2006-01-02T15:04:05.0000000Z"))
	fmt.Fprintf(&sb, "<EventRecordID>%d</EventRecordID>", ev.RecordID)
	fmt.Fprintf(&sb, "<Channel>%s</Channel><Computer>%s</Computer>", escape(ev.Channel), escape(ev.Computer))
	sb.WriteString("</System><EventData>")
	for _, v := range ev.Inserts {
		fmt.Fprintf(&sb, "<Data>%s</Data>", escape(fmt.Sprint(v.Value)))
	}
	sb.WriteString("</EventData></Event>")
	return sb.String()
}

func guidVariant(g *[16]byte) winevt.Variant {
	if g == nil {
		return winevt.Variant{Type: winevt.VarTypeNull}
	}
	return winevt.Variant{Type: winevt.VarTypeGUID, Value: *g}
}

func contextValues(ctx *contextObj, ev *Event) []winevt.Variant {
	switch ctx.flags {
	case winevt.RenderContextUser:
		return ev.Inserts
	case winevt.RenderContextSystem:
		qual := winevt.Variant{Type: winevt.VarTypeNull}
		if ev.Qualifiers != nil {
			qual = winevt.Variant{Type: winevt.VarTypeUInt16, Value: uint64(*ev.Qualifiers)}
		}
		user := winevt.Variant{Type: winevt.VarTypeNull}
		if ev.UserSID != "" {
			user = winevt.Variant{Type: winevt.VarTypeSID, Value: ev.UserSID}
		}
		provGUID := ev.ProviderGUID
		return []winevt.Variant{
			{Type: winevt.VarTypeString, Value: ev.Provider},
			guidVariant(&provGUID),
			{Type: winevt.VarTypeUInt16, Value: uint64(ev.EventID)},
			qual,
			{Type: winevt.VarTypeByte, Value: uint64(ev.Level)},
			{Type: winevt.VarTypeUInt16, Value: uint64(ev.Task)},
			{Type: winevt.VarTypeByte, Value: uint64(ev.Opcode)},
			{Type: winevt.VarTypeHexInt64, Value: ev.Keywords},
			{Type: winevt.VarTypeFileTime, Value: winevt.TimeToFileTime(ev.Created)},
			{Type: winevt.VarTypeUInt64, Value: ev.RecordID},
			guidVariant(ev.ActivityID),
			{Type: winevt.VarTypeNull},
			{Type: winevt.VarTypeUInt32, Value: uint64(ev.ProcessID)},
			{Type: winevt.VarTypeUInt32, Value: uint64(ev.ThreadID)},
			{Type: winevt.VarTypeString, Value: ev.Channel},
			{Type: winevt.VarTypeString, Value: ev.Computer},
			user,
			{Type: winevt.VarTypeByte, Value: uint64(ev.Version)},
		}
	default:
		out := make([]winevt.Variant, len(ctx.paths))
		for i, p := range ctx.paths {
			switch p {
			case "Event/System/Provider/@Name":
				out[i] = winevt.Variant{Type: winevt.VarTypeString, Value: ev.Provider}
			case "Event/System/EventID":
				out[i] = winevt.Variant{Type: winevt.VarTypeUInt16, Value: uint64(ev.EventID)}
			case "Event/System/Channel":
				out[i] = winevt.Variant{Type: winevt.VarTypeString, Value: ev.Channel}
			default:
				out[i] = winevt.Variant{Type: winevt.VarTypeNull}
			}
		}
		return out
	}
}

// variantsSize approximates the bytes EvtRender would need for vals.
func variantsSize(vals []winevt.Variant) uint32 {
	size := uint32(16 * len(vals))
	for _, v := range vals {
		switch x := v.Value.(type) {
		case string:
			size += uint32(2 * (len(x) + 1))
		case []byte:
			size += uint32(len(x))
		case [16]byte:
			size += 16
		case winevt.SystemTime:
			size += 16
		}
	}
	return size
}
