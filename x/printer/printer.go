// Package printer writes encoded event records to an io.Writer, one per
// line by default.
package printer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/runreveal/winevt/flow"
)

// Printer is a flow.Destination. Each Send is written with a single Write
// call so batches from concurrent workers never interleave.
type Printer struct {
	mu     sync.Mutex
	writer io.Writer
	delim  []byte
	indent string
	topic  bool
}

type Option func(*Printer)

func WithDelim(delim []byte) Option {
	return func(p *Printer) {
		p.delim = delim
	}
}

// WithIndent re-indents JSON values. Values that are not valid JSON are
// written unchanged.
func WithIndent(indent string) Option {
	return func(p *Printer) {
		p.indent = indent
	}
}

// WithTopic prefixes every record with its topic (the channel name for
// event log sources) and a tab.
func WithTopic(b bool) Option {
	return func(p *Printer) {
		p.topic = b
	}
}

func NewPrinter(writer io.Writer, opts ...Option) *Printer {
	p := &Printer{
		writer: writer,
		delim:  []byte("\n"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Printer) Send(ctx context.Context, ack func(), msgs ...flow.Message[[]byte]) error {
	var buf bytes.Buffer
	for _, m := range msgs {
		if p.topic && m.Topic != "" {
			buf.WriteString(m.Topic)
			buf.WriteByte('\t')
		}
		if p.indent == "" || json.Indent(&buf, m.Value, "", p.indent) != nil {
			buf.Write(m.Value)
		}
		buf.Write(p.delim)
	}
	if buf.Len() > 0 {
		p.mu.Lock()
		_, err := p.writer.Write(buf.Bytes())
		p.mu.Unlock()
		if err != nil {
			return errors.Wrap(err, "printer")
		}
	}
	flow.Ack(ack)
	return nil
}
