package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/runreveal/winevt"
	"github.com/runreveal/winevt/flow"
	"github.com/runreveal/winevt/x/eventlog"
	"github.com/runreveal/winevt/x/printer"
)

var errStop = errors.New("stop")

func addSessionFlags(cmd *cobra.Command, c *SessionConfig) {
	cmd.Flags().StringVar(&c.Server, "server", "", "remote computer to connect to")
	cmd.Flags().StringVar(&c.Domain, "domain", "", "domain of the remote user")
	cmd.Flags().StringVar(&c.Username, "user", "", "remote user name")
	cmd.Flags().StringVar(&c.Password, "password", "", "remote user password")
	cmd.Flags().StringVar(&c.Auth, "auth", "default", "default, negotiate, kerberos or ntlm")
}

type queryArgs struct {
	channel       string
	xpath         string
	file          bool
	reverse       bool
	seek          string
	offset        int64
	max           int
	systemOnly    bool
	expandInserts bool
	locale        string
	timeout       time.Duration
	pretty        bool
	remote        SessionConfig
}

// runQuery prints matching records as JSON lines to w.
func runQuery(api winevt.API, a queryArgs, w io.Writer) error {
	flags := winevt.DefaultQueryFlags
	if a.file {
		flags = winevt.QueryFilePath | winevt.QueryTolerateQueryErrors
	}
	if a.reverse {
		flags |= winevt.QueryReverseDirection
	}
	opts := []winevt.QueryOption{winevt.WithQueryFlags(flags)}
	sess, err := a.remote.session()
	if err != nil {
		return err
	}
	if sess != nil {
		opts = append(opts, winevt.WithQuerySession(sess))
	}
	if a.timeout > 0 {
		opts = append(opts, winevt.WithQueryFetchTimeout(a.timeout))
	}

	q, err := winevt.NewQuery(api, a.channel, a.xpath, opts...)
	if err != nil {
		return err
	}
	defer q.Close()
	q.RenderAsXML = !a.systemOnly
	q.ExpandInserts = a.expandInserts
	if err := q.SetLocale(a.locale); err != nil {
		return err
	}
	if a.seek != "" {
		flag, err := winevt.ParseSeekFlag(a.seek)
		if err != nil {
			return err
		}
		q.Offset = a.offset
		if err := q.Seek(flag); err != nil {
			return err
		}
	}

	var popts []printer.Option
	if a.pretty {
		popts = append(popts, printer.WithIndent("  "))
	}
	p := printer.NewPrinter(w, popts...)
	n := 0
	err = q.Each(func(rec winevt.Record) error {
		bts, err := eventlog.MarshalEvent(eventlog.FromRecord(a.channel, rec))
		if err != nil {
			return err
		}
		if err := p.Send(context.Background(), nil, flow.Message[[]byte]{Value: bts}); err != nil {
			return err
		}
		n++
		if a.max > 0 && n >= a.max {
			return errStop
		}
		return nil
	})
	if errors.Is(err, errStop) {
		return nil
	}
	return err
}

func NewQueryCommand() *cobra.Command {
	var a queryArgs
	cmd := &cobra.Command{
		Use:   "query",
		Short: "print the records of a channel or log file that match a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := newAPI()
			if err != nil {
				return err
			}
			return runQuery(api, a, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&a.channel, "channel", "", "channel name, or log file path with --file")
	cmd.Flags().StringVar(&a.xpath, "query", "*", "XPath query")
	cmd.Flags().BoolVar(&a.file, "file", false, "treat --channel as a .evtx file path")
	cmd.Flags().BoolVar(&a.reverse, "reverse", false, "newest records first")
	cmd.Flags().StringVar(&a.seek, "seek", "", "first, last or current")
	cmd.Flags().Int64Var(&a.offset, "offset", 0, "offset applied with --seek")
	cmd.Flags().IntVar(&a.max, "max", 0, "stop after this many records")
	cmd.Flags().BoolVar(&a.systemOnly, "system", false, "render system fields instead of XML")
	cmd.Flags().BoolVar(&a.expandInserts, "inserts", false, "include insertion strings")
	cmd.Flags().StringVar(&a.locale, "locale", "", "message locale, see the locales command")
	cmd.Flags().BoolVar(&a.pretty, "pretty", false, "indent the JSON output")
	cmd.Flags().DurationVar(&a.timeout, "timeout", 0, "give up on a fetch after this long")
	addSessionFlags(cmd, &a.remote)
	if err := cmd.MarkFlagRequired("channel"); err != nil {
		panic(err)
	}
	return cmd
}

func runChannels(api winevt.API, force bool, remote SessionConfig, w io.Writer) error {
	sess, err := remote.session()
	if err != nil {
		return err
	}
	e := winevt.NewChannelEnumerator(api)
	e.ForceEnumerate = force
	e.Session = sess
	return e.Each(func(path string) error {
		_, err := fmt.Fprintln(w, path)
		return err
	})
}

func NewChannelsCommand() *cobra.Command {
	var force bool
	var remote SessionConfig
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "list the channels that can be subscribed to",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := newAPI()
			if err != nil {
				return err
			}
			return runChannels(api, force, remote, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "include analytic and debug channels")
	addSessionFlags(cmd, &remote)
	return cmd
}

func printLocales(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tLANGID\tDESCRIPTION")
	for _, l := range append([]winevt.Locale{winevt.NeutralLocale}, winevt.Locales()...) {
		fmt.Fprintf(tw, "%s\t0x%04x\t%s\n", l.Code, l.LangID, l.Description)
	}
	return tw.Flush()
}

func NewLocalesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "locales",
		Short: "list the locales accepted by --locale and the locale setting",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printLocales(cmd.OutOrStdout())
		},
	}
}

