package winevt

import (
	"log/slog"
	"sync"
)

// Kind names the OS object a handle refers to.
type Kind int

const (
	KindQuery Kind = iota
	KindSubscription
	KindEvent
	KindBookmark
	KindRenderContext
	KindPublisherMetadata
	KindSession
	KindChannelEnum
	KindChannelConfig
	KindSignal
)

var kindNames = [...]string{
	KindQuery:             "EvtQuery",
	KindSubscription:      "EvtSubscribe",
	KindEvent:             "EvtNext",
	KindBookmark:          "EvtCreateBookmark",
	KindRenderContext:     "EvtCreateRenderContext",
	KindPublisherMetadata: "EvtOpenPublisherMetadata",
	KindSession:           "EvtOpenSession",
	KindChannelEnum:       "EvtOpenChannelEnum",
	KindChannelConfig:     "EvtOpenChannelConfig",
	KindSignal:            "CreateEvent",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Registry owns the lifetime of every handle acquired on behalf of one
// object and counts acquisitions against releases.
type Registry struct {
	api API

	mu       sync.Mutex
	acquired int
	released int
}

func NewRegistry(api API) *Registry {
	return &Registry{api: api}
}

// API returns the OS collaborator handles are acquired from.
func (r *Registry) API() API { return r.api }

// Acquire calls open and wraps the resulting handle in a Guard. A failing
// open is reported as an *OsResourceError.
func (r *Registry) Acquire(kind Kind, open func() (Handle, error)) (*Guard, error) {
	h, err := open()
	if err != nil {
		return nil, osError(r.api, kind.String(), err)
	}
	r.count(1, 0)
	return &Guard{reg: r, kind: kind, h: h}, nil
}

// ReleaseAll closes every non-zero handle in the batch and empties it.
func (r *Registry) ReleaseAll(b *Batch) {
	if b == nil {
		return
	}
	for i := 0; i < b.n; i++ {
		if b.handles[i] != 0 {
			r.release(KindEvent, b.handles[i])
			b.handles[i] = 0
		}
	}
	b.n = 0
}

// Acquired returns the number of handles acquired so far.
func (r *Registry) Acquired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acquired
}

// Released returns the number of handles released so far.
func (r *Registry) Released() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

// Live returns the number of handles not yet released.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acquired - r.released
}

func (r *Registry) count(acq, rel int) {
	r.mu.Lock()
	r.acquired += acq
	r.released += rel
	r.mu.Unlock()
}

func (r *Registry) release(kind Kind, h Handle) {
	var err error
	if kind == KindSignal {
		err = r.api.CloseSignal(h)
	} else {
		err = r.api.Close(h)
	}
	if err != nil {
		slog.Debug("handle release failed", "kind", kind.String(), "err", err)
	}
	r.count(0, 1)
}

// Guard owns exactly one handle and releases it at most once.
type Guard struct {
	reg  *Registry
	kind Kind
	h    Handle
}

// Handle returns the guarded handle, or zero once released.
func (g *Guard) Handle() Handle {
	if g == nil {
		return 0
	}
	return g.h
}

// Release closes the handle. Releasing twice, or releasing a nil Guard, is
// a no-op.
func (g *Guard) Release() {
	if g == nil || g.h == 0 {
		return
	}
	h := g.h
	g.h = 0
	g.reg.release(g.kind, h)
}
