package winevt

// Record is one rendered result.
type Record struct {
	// Handle is only valid inside the callback that received the record.
	Handle Handle `json:"-"`
	// XML is set when rendering as XML, System otherwise.
	XML     string        `json:"xml,omitempty"`
	System  *SystemFields `json:"system,omitempty"`
	Message string        `json:"message"`
	Inserts []any         `json:"inserts"`
}

// State is the lifecycle state of a Query or Subscription.
type State int

const (
	StateCreated State = iota
	StateActive
	StateExhausted
	StateCancelled
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateExhausted:
		return "exhausted"
	case StateCancelled:
		return "cancelled"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// renderOptions are shared by Query and Subscription.
type renderOptions struct {
	renderAsXML        bool
	preserveQualifiers bool
	preserveSID        bool
	expandInserts      bool
	locale             Locale
}

// renderRecord produces all projections of h.
func renderRecord(r *Renderer, h, session Handle, o renderOptions) (Record, error) {
	rec := Record{Handle: h}
	var err error
	if o.renderAsXML {
		rec.XML, err = r.RenderXML(h)
	} else {
		rec.System, err = r.RenderSystem(h, SystemOptions{
			PreserveQualifiers: o.preserveQualifiers,
			PreserveSID:        o.preserveSID,
		})
	}
	if err != nil {
		return Record{}, err
	}
	if rec.Message, err = r.RenderMessage(h, o.locale, session); err != nil {
		return Record{}, err
	}
	if rec.Inserts, err = r.RenderInsertValues(h, o.preserveSID); err != nil {
		return Record{}, err
	}
	if o.expandInserts {
		rec.Message = ExpandInserts(rec.Message, rec.Inserts)
	}
	return rec, nil
}
