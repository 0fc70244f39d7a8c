package winevt

import (
	"fmt"
)

// Indexes into the values produced by a system render context.
const (
	sysProviderName = iota
	sysProviderGUID
	sysEventID
	sysQualifiers
	sysLevel
	sysTask
	sysOpcode
	sysKeywords
	sysTimeCreated
	sysEventRecordID
	sysActivityID
	sysRelatedActivityID
	sysProcessID
	sysThreadID
	sysChannel
	sysComputer
	sysUserID
	sysVersion
)

// SystemFields is the decomposed System section of a record. Fields the OS
// does not supply keep their zero value.
type SystemFields struct {
	ProviderName      string  `json:"ProviderName"`
	ProviderGUID      string  `json:"ProviderGuid,omitempty"`
	EventID           uint32  `json:"EventID"`
	Qualifiers        *uint16 `json:"Qualifiers,omitempty"`
	Version           uint8   `json:"Version"`
	Level             uint8   `json:"Level"`
	Task              uint16  `json:"Task"`
	Opcode            uint8   `json:"Opcode"`
	Keywords          string  `json:"Keywords"`
	TimeCreated       string  `json:"TimeCreated"`
	EventRecordID     uint64  `json:"EventRecordID"`
	ActivityID        string  `json:"ActivityID,omitempty"`
	RelatedActivityID string  `json:"RelatedActivityID,omitempty"`
	ProcessID         uint32  `json:"ProcessID"`
	ThreadID          uint32  `json:"ThreadID"`
	Channel           string  `json:"Channel"`
	Computer          string  `json:"Computer"`
	UserID            string  `json:"UserID,omitempty"`
}

// SystemOptions controls the presentation of system fields.
type SystemOptions struct {
	// PreserveQualifiers exposes Qualifiers separately instead of merging
	// them into the high word of EventID.
	PreserveQualifiers bool
	// PreserveSID keeps UserID as a SID string instead of DOMAIN\account.
	PreserveSID bool
}

// RenderSystem renders the System section of the record.
func (r *Renderer) RenderSystem(h Handle, opts SystemOptions) (*SystemFields, error) {
	vals, err := r.values(h, nil, RenderContextSystem)
	if err != nil {
		return nil, err
	}
	get := func(i int) Variant {
		if i < len(vals) {
			return vals[i]
		}
		return Variant{Type: VarTypeNull}
	}

	sf := &SystemFields{
		ProviderName:      variantString(get(sysProviderName)),
		ProviderGUID:      variantGUID(get(sysProviderGUID)),
		Version:           uint8(variantUint(get(sysVersion))),
		Level:             uint8(variantUint(get(sysLevel))),
		Task:              uint16(variantUint(get(sysTask))),
		Opcode:            uint8(variantUint(get(sysOpcode))),
		Keywords:          fmt.Sprintf("0x%016x", variantUint(get(sysKeywords))),
		EventRecordID:     variantUint(get(sysEventRecordID)),
		ActivityID:        variantGUID(get(sysActivityID)),
		RelatedActivityID: variantGUID(get(sysRelatedActivityID)),
		ProcessID:         uint32(variantUint(get(sysProcessID))),
		ThreadID:          uint32(variantUint(get(sysThreadID))),
		Channel:           variantString(get(sysChannel)),
		Computer:          variantString(get(sysComputer)),
	}

	if ts := get(sysTimeCreated); ts.Type == VarTypeFileTime {
		if ticks, ok := ts.Value.(uint64); ok {
			t := FileTimeToTime(ticks)
			sf.TimeCreated = fmt.Sprintf("%s.%07dZ", t.Format("2006-01-02T15:04:05"), ticks%ticksPerSecond)
		}
	}

	id := uint32(variantUint(get(sysEventID)))
	q := get(sysQualifiers)
	if q.Type != VarTypeNull {
		qual := uint16(variantUint(q))
		if opts.PreserveQualifiers {
			sf.Qualifiers = &qual
		} else {
			id = uint32(qual)<<16 | id
		}
	}
	sf.EventID = id

	if u := get(sysUserID); u.Type == VarTypeSID {
		if sid, ok := u.Value.(string); ok {
			if opts.PreserveSID {
				sf.UserID = sid
			} else {
				sf.UserID = r.resolveSID(sid)
			}
		}
	}
	return sf, nil
}

func variantString(v Variant) string {
	s, _ := v.Value.(string)
	return s
}

func variantUint(v Variant) uint64 {
	switch n := v.Value.(type) {
	case uint64:
		return n
	case int64:
		return uint64(n)
	}
	return 0
}

func variantGUID(v Variant) string {
	if g, ok := v.Value.([16]byte); ok && v.Type == VarTypeGUID {
		return FormatGUID(g)
	}
	return ""
}
