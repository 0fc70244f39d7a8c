package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"path"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/runreveal/lib/await"
	"github.com/runreveal/lib/loader"
	"github.com/spf13/cobra"

	"github.com/runreveal/winevt/cmd/winevtd/internal/queue"
	"github.com/runreveal/winevt/flow"
	"github.com/runreveal/winevt/x/eventlog"
)

var (
	version = "dev"
)

func init() {
	replace := func(groups []string, a slog.Attr) slog.Attr {
		// Remove the directory from the source's filename.
		if a.Key == slog.SourceKey {
			source := a.Value.Any().(*slog.Source)
			source.File = filepath.Base(source.File)
		}
		return a
	}
	level := slog.LevelInfo
	if _, ok := os.LookupEnv("WINEVTD_DEBUG"); ok {
		level = slog.LevelDebug
	}

	h := slog.NewTextHandler(
		os.Stderr,
		&slog.HandlerOptions{
			Level:       level,
			AddSource:   true,
			ReplaceAttr: replace,
		},
	)

	slog.SetDefault(slog.New(h))
}

func main() {
	slog.Info(fmt.Sprintf("starting %s", path.Base(os.Args[0])), "version", version)
	rootCmd := NewRootCommand()
	rootCmd.AddCommand(
		NewRunCommand(),
		NewQueryCommand(),
		NewChannelsCommand(),
		NewLocalesCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		slog.Error(fmt.Sprintf("%+v", err))
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   path.Base(os.Args[0]),
		Short: `winevtd forwards Windows event log records`,
		Long: `winevtd follows Windows event log channels, locally or on a remote
machine, and forwards every record to one or more destinations. Its position
in each channel is checkpointed so that a restart resumes where it stopped.`,
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
}

type MonConfig struct {
	Addr  string `json:"addr"`
	PProf struct {
		Path string `json:"path"`
	} `json:"pprof"`
	Metrics struct {
		Path string `json:"path"`
	} `json:"metrics"`
}

type Config struct {
	Sources      map[string]loader.Loader[flow.Source[eventlog.Event]] `json:"sources"`
	Destinations map[string]loader.Loader[flow.Destination[[]byte]]    `json:"destinations"`

	Monitoring MonConfig `json:"monitoring"`
}

func monitoringServer(cfg MonConfig) *http.Server {
	mux := http.NewServeMux()
	if cfg.PProf.Path != "" {
		prefix := cfg.PProf.Path
		mux.HandleFunc(prefix, pprof.Index)
		mux.HandleFunc(prefix+"cmdline", pprof.Cmdline)
		mux.HandleFunc(prefix+"profile", pprof.Profile)
		mux.HandleFunc(prefix+"symbol", pprof.Symbol)
		mux.HandleFunc(prefix+"trace", pprof.Trace)
	}
	if cfg.Metrics.Path != "" {
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	}
	return &http.Server{Addr: cfg.Addr, Handler: mux}
}

func NewRunCommand() *cobra.Command {
	var config Config
	var configFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the forwarding daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			bts, err := os.ReadFile(configFile)
			if err != nil {
				return err
			}
			err = loader.LoadConfig(bts, &config)
			if err != nil {
				return err
			}

			w := await.New(await.WithSignals)

			if config.Monitoring.Addr != "" {
				w.AddNamed(await.ListenAndServe(monitoringServer(config.Monitoring)), "monitoring")
			}

			srcs := map[string]queue.Source{}
			for k, v := range config.Sources {
				src, err := v.Configure()
				if err != nil {
					return err
				}
				srcs[k] = queue.Source{Name: k, Source: src}
			}

			dsts := map[string]queue.Destination{}
			for k, v := range config.Destinations {
				dst, err := v.Configure()
				if err != nil {
					return err
				}
				dsts[k] = queue.Destination{Name: k, Destination: dst}
			}

			q := queue.New(queue.WithSources(srcs), queue.WithDestinations(dsts))
			if err := q.Validate(); err != nil {
				return err
			}
			w.AddNamed(q, "queue")
			err = w.Run(context.Background())
			slog.Error(fmt.Sprintf("closing: %+v", err))
			return err
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "config.json", "where to load the configuration from")
	err := cmd.MarkFlagRequired("config")
	if err != nil {
		panic(err)
	}

	return cmd
}
