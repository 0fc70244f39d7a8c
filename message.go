package winevt

import (
	"fmt"
	"regexp"
	"strconv"
)

// initialMessageSize is the first buffer guess for EvtFormatMessage, in
// UTF-16 code units.
const initialMessageSize = 4096

// RenderMessage formats the record's message in locale. When the publisher
// metadata or the message resource is unavailable the message is empty and
// no error is returned.
func (r *Renderer) RenderMessage(h Handle, locale Locale, session Handle) (string, error) {
	provider, err := r.providerName(h)
	if err != nil {
		return "", err
	}

	meta, err := r.reg.Acquire(KindPublisherMetadata, func() (Handle, error) {
		return r.api.OpenPublisherMetadata(session, provider, locale.LCID())
	})
	if err != nil {
		logDegraded("EvtOpenPublisherMetadata", err)
		return "", nil
	}
	defer meta.Release()

	buf := make([]uint16, initialMessageSize)
	used, err := r.api.FormatMessage(meta.Handle(), h, FormatMessageEvent, buf)
	if code, _ := ErrnoOf(err); code == ErrorInsufficientBuffer {
		buf = make([]uint16, used)
		used, err = r.api.FormatMessage(meta.Handle(), h, FormatMessageEvent, buf)
	}
	if int(used) > len(buf) {
		used = uint32(len(buf))
	}
	if err != nil {
		code, ok := ErrnoOf(err)
		switch {
		case ok && code == ErrorEvtUnresolvedValueInsert:
			// the partially formatted message is still usable
		case ok && IsMessageNotFound(code):
			logDegraded("EvtFormatMessage", err)
			return "", nil
		default:
			return "", renderError(r.api, "EvtFormatMessage", err)
		}
	}
	return UTF16ToString(buf[:used]), nil
}

var insertPlaceholder = regexp.MustCompile(`%(\d+)`)

// ExpandInserts replaces %N placeholders left in message with the N-th
// insert value. If any placeholder has no matching value, every placeholder
// becomes "?".
func ExpandInserts(message string, inserts []any) string {
	for _, m := range insertPlaceholder.FindAllStringSubmatch(message, -1) {
		if n, err := strconv.Atoi(m[1]); err != nil || n < 1 || n > len(inserts) {
			return insertPlaceholder.ReplaceAllLiteralString(message, unknownValue)
		}
	}
	return insertPlaceholder.ReplaceAllStringFunc(message, func(m string) string {
		n, _ := strconv.Atoi(m[1:])
		switch v := inserts[n-1].(type) {
		case nil:
			return ""
		case string:
			return v
		default:
			return fmt.Sprint(v)
		}
	})
}
