package winevt

import (
	"sync/atomic"
)

// MaxBatch is the largest number of result handles fetched at once.
const MaxBatch = 10

// Batch holds the result handles returned by the last fetch.
type Batch struct {
	handles []Handle
	n       int
}

// NewBatch returns a batch holding at most size handles. Sizes outside
// [1, MaxBatch] are clamped.
func NewBatch(size int) *Batch {
	if size < 1 || size > MaxBatch {
		size = MaxBatch
	}
	return &Batch{handles: make([]Handle, size)}
}

// Handles returns the handles from the last fetch in delivery order.
func (b *Batch) Handles() []Handle { return b.handles[:b.n] }

func (b *Batch) Len() int { return b.n }

func (b *Batch) Cap() int { return len(b.handles) }

// Outcome is the result of a fetch.
type Outcome int

const (
	// Ready means the batch holds at least one handle.
	Ready Outcome = iota
	// Exhausted means nothing is available right now.
	Exhausted
	// Cancelled means the fetch was cancelled.
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Ready:
		return "ready"
	case Exhausted:
		return "exhausted"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Cursor fetches batches from a query or subscription handle.
type Cursor struct {
	reg       *Registry
	timeout   uint32
	cancelled atomic.Bool
}

func NewCursor(reg *Registry, timeout uint32) *Cursor {
	return &Cursor{reg: reg, timeout: timeout}
}

// SetTimeout changes the fetch timeout in milliseconds.
func (c *Cursor) SetTimeout(timeout uint32) { c.timeout = timeout }

// Cancel makes the current and every later fetch report Cancelled.
func (c *Cursor) Cancel() { c.cancelled.Store(true) }

func (c *Cursor) IsCancelled() bool { return c.cancelled.Load() }

// FetchNext releases whatever the batch still holds, then asks the OS for up
// to b.Cap() handles from src.
func (c *Cursor) FetchNext(src Handle, b *Batch) (Outcome, error) {
	c.reg.ReleaseAll(b)
	if c.cancelled.Load() {
		return Cancelled, nil
	}

	n, err := c.reg.api.Next(src, b.handles, c.timeout)
	if err != nil {
		code, _ := ErrnoOf(err)
		switch code {
		case ErrorNoMoreItems, ErrorTimeout:
			return Exhausted, nil
		case ErrorCancelled:
			return Cancelled, nil
		}
		return Exhausted, osError(c.reg.api, "EvtNext", err)
	}
	if n > len(b.handles) {
		n = len(b.handles)
	}
	b.n = n
	c.reg.count(n, 0)

	if c.cancelled.Load() {
		c.reg.ReleaseAll(b)
		return Cancelled, nil
	}
	if n == 0 {
		return Exhausted, nil
	}
	return Ready, nil
}
