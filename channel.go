package winevt

// initialChannelPathSize is the first buffer guess for EvtNextChannelPath.
const initialChannelPathSize = 256

// ChannelEnumerator lists the channels registered on a machine.
type ChannelEnumerator struct {
	api API
	// ForceEnumerate includes analytic and debug channels.
	ForceEnumerate bool
	// Session targets a remote machine when set.
	Session *Session

	reg *Registry
}

func NewChannelEnumerator(api API) *ChannelEnumerator {
	return &ChannelEnumerator{api: api, reg: NewRegistry(api)}
}

// Registry exposes handle accounting for the enumerator.
func (c *ChannelEnumerator) Registry() *Registry { return c.reg }

// Each calls fn with every channel path. Iteration stops at the first error
// returned by fn.
func (c *ChannelEnumerator) Each(fn func(path string) error) error {
	session, err := c.Session.open(c.reg)
	if err != nil {
		return err
	}
	defer session.Release()

	enum, err := c.reg.Acquire(KindChannelEnum, func() (Handle, error) {
		return c.api.OpenChannelEnum(session.Handle())
	})
	if err != nil {
		return err
	}
	defer enum.Release()

	buf := make([]uint16, initialChannelPathSize)
	for {
		used, err := c.api.NextChannelPath(enum.Handle(), buf)
		if code, _ := ErrnoOf(err); code == ErrorInsufficientBuffer {
			buf = make([]uint16, used)
			used, err = c.api.NextChannelPath(enum.Handle(), buf)
		}
		if err != nil {
			if code, _ := ErrnoOf(err); code == ErrorNoMoreItems {
				return nil
			}
			return osError(c.api, "EvtNextChannelPath", err)
		}
		if int(used) > len(buf) {
			used = uint32(len(buf))
		}
		path := UTF16ToString(buf[:used])

		ok, err := c.subscribable(session.Handle(), path)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := fn(path); err != nil {
			return err
		}
	}
}

// All returns every channel path.
func (c *ChannelEnumerator) All() ([]string, error) {
	var out []string
	err := c.Each(func(path string) error {
		out = append(out, path)
		return nil
	})
	return out, err
}

// subscribable reports whether the channel should be listed: analytic and
// debug channels are skipped unless ForceEnumerate is set.
func (c *ChannelEnumerator) subscribable(session Handle, path string) (bool, error) {
	if c.ForceEnumerate {
		return true, nil
	}
	cfg, err := c.reg.Acquire(KindChannelConfig, func() (Handle, error) {
		return c.api.OpenChannelConfig(session, path)
	})
	if err != nil {
		return false, err
	}
	defer cfg.Release()

	v, err := c.api.ChannelConfigProperty(cfg.Handle(), ChannelConfigType)
	if err != nil {
		return false, osError(c.api, "EvtGetChannelConfigProperty", err)
	}
	switch variantUint(v) {
	case ChannelTypeAnalytic, ChannelTypeDebug:
		return false, nil
	}
	return true, nil
}
