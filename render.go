package winevt

import (
	"log/slog"

	"github.com/pkg/errors"
)

// initialRenderSize is the first buffer guess for EvtRender, in bytes.
const initialRenderSize = 4096

// Renderer turns a result handle into its XML, system fields, formatted
// message and insert values. It keeps no state between calls.
type Renderer struct {
	reg *Registry
	api API
}

func NewRenderer(reg *Registry) *Renderer {
	return &Renderer{reg: reg, api: reg.api}
}

// render calls EvtRender, growing the buffer once when the first guess is
// too small.
func (r *Renderer) render(context, h Handle, flags RenderFlag) ([]byte, uint32, error) {
	buf := make([]byte, initialRenderSize)
	used, count, err := r.api.Render(context, h, flags, buf)
	if code, _ := ErrnoOf(err); code == ErrorInsufficientBuffer {
		buf = make([]byte, used)
		used, count, err = r.api.Render(context, h, flags, buf)
	}
	if err != nil {
		return nil, 0, renderError(r.api, "EvtRender", err)
	}
	if int(used) > len(buf) {
		used = uint32(len(buf))
	}
	return buf[:used], count, nil
}

// RenderXML returns the XML serialization of the record.
func (r *Renderer) RenderXML(h Handle) (string, error) {
	buf, _, err := r.render(0, h, RenderEventXML)
	if err != nil {
		return "", err
	}
	return UTF16BytesToString(buf), nil
}

// values renders h through a new render context built from paths and flags.
func (r *Renderer) values(h Handle, paths []string, flags RenderContextFlag) ([]Variant, error) {
	ctx, err := r.reg.Acquire(KindRenderContext, func() (Handle, error) {
		return r.api.CreateRenderContext(paths, flags)
	})
	if err != nil {
		return nil, err
	}
	defer ctx.Release()

	buf, count, err := r.render(ctx.Handle(), h, RenderEventValues)
	if err != nil {
		return nil, err
	}
	return r.api.Values(buf, count), nil
}

// RenderInsertValues decodes the record's user data values in order.
// Types without a decoding render as "?".
func (r *Renderer) RenderInsertValues(h Handle, preserveSID bool) ([]any, error) {
	vals, err := r.values(h, nil, RenderContextUser)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = r.decodeVariant(v, preserveSID)
	}
	return out, nil
}

// providerName reads Event/System/Provider/@Name from the record.
func (r *Renderer) providerName(h Handle) (string, error) {
	vals, err := r.values(h, []string{"Event/System/Provider/@Name"}, RenderContextValues)
	if err != nil {
		return "", err
	}
	if len(vals) == 0 {
		return "", nil
	}
	s, _ := vals[0].Value.(string)
	return s, nil
}

func logDegraded(op string, err error) {
	var code Errno
	if errors.As(err, &code) {
		slog.Debug("message rendering degraded", "op", op, "code", uint32(code))
		return
	}
	slog.Debug("message rendering degraded", "op", op, "err", err)
}
