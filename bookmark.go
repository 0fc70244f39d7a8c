package winevt

// Bookmark is a resumable position within a channel.
type Bookmark struct {
	reg    *Registry
	r      *Renderer
	guard  *Guard
	closed bool
}

// NewBookmark creates an empty bookmark.
func NewBookmark(api API) (*Bookmark, error) {
	return BookmarkFromXML(api, "")
}

// BookmarkFromXML recreates a bookmark from a string produced by Render.
func BookmarkFromXML(api API, xml string) (*Bookmark, error) {
	reg := NewRegistry(api)
	g, err := reg.Acquire(KindBookmark, func() (Handle, error) {
		return api.CreateBookmark(xml)
	})
	if err != nil {
		return nil, err
	}
	return &Bookmark{reg: reg, r: NewRenderer(reg), guard: g}, nil
}

// Handle returns the OS bookmark handle.
func (b *Bookmark) Handle() Handle { return b.guard.Handle() }

// Update moves the bookmark to the given result handle.
func (b *Bookmark) Update(event Handle) error {
	if b.closed {
		return ErrClosed
	}
	if err := b.reg.api.UpdateBookmark(b.guard.Handle(), event); err != nil {
		return osError(b.reg.api, "EvtUpdateBookmark", err)
	}
	return nil
}

// UpdateBatch applies Update to each handle of the batch in delivery order.
func (b *Bookmark) UpdateBatch(batch *Batch) error {
	for _, h := range batch.Handles() {
		if err := b.Update(h); err != nil {
			return err
		}
	}
	return nil
}

// Render serializes the bookmark to XML.
func (b *Bookmark) Render() (string, error) {
	if b.closed {
		return "", ErrClosed
	}
	buf, _, err := b.r.render(0, b.guard.Handle(), RenderBookmark)
	if err != nil {
		return "", err
	}
	return UTF16BytesToString(buf), nil
}

// Close releases the bookmark handle. Calling Close again is a no-op.
func (b *Bookmark) Close() error {
	b.closed = true
	b.guard.Release()
	return nil
}

// Registry exposes handle accounting for the bookmark.
func (b *Bookmark) Registry() *Registry { return b.reg }
