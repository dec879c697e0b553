// Package engine ties configuration, datasets, pipeline files, sinks and
// the descriptor server together for the command line.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"benchml/internal/bench"
	"benchml/internal/cache"
	"benchml/internal/config"
	"benchml/internal/dataset"
	"benchml/internal/pipeline"
	"benchml/internal/spec"
	"benchml/internal/telemetry"
	"benchml/internal/transport"
	"benchml/sink"
	"benchml/sink/kafka"
	"benchml/sink/stdout"
)

type Engine struct {
	cfg      config.EngineConfig
	log      *slog.Logger
	metrics  *telemetry.Metrics
	registry *prometheus.Registry
	cache    cache.Cache
	closers  []func() error
}

func (e *Engine) Logger() *slog.Logger           { return e.log }
func (e *Engine) Registry() *prometheus.Registry { return e.registry }
func (e *Engine) Config() config.EngineConfig    { return e.cfg }

// Compile builds the modules of a pipeline file with the engine's logger,
// cache and metrics attached.
func (e *Engine) Compile(path string) ([]*pipeline.Module, spec.File, error) {
	opts := []pipeline.Option{pipeline.WithLogger(e.log), pipeline.WithMetrics(e.metrics)}
	if e.cache != nil {
		opts = append(opts, pipeline.WithCache(e.cache))
	}
	return pipeline.CompileFile(path, opts...)
}

// Datasets discovers the benchmark datasets under the configured root,
// filtered by the configured CEL expression unless filter overrides it.
func (e *Engine) Datasets(filter string) ([]*dataset.Dataset, error) {
	if filter == "" {
		filter = e.cfg.Data.Filter
	}
	f, err := dataset.NewFilter(filter)
	if err != nil {
		return nil, err
	}
	return dataset.Discover(e.cfg.Data.Root, f)
}

// Sinks opens every sink named by the pipeline file. With none named the
// records go to stdout.
func (e *Engine) Sinks(file spec.File) (sink.Adapter, error) {
	names := file.Sinks
	if len(names) == 0 {
		names = []string{"stdout"}
	}
	var out sink.Multi
	for _, name := range names {
		a, err := sink.NewAdapter(name)
		if err != nil {
			_ = out.Close()
			return nil, err
		}
		switch name {
		case "stdout":
			err = a.Configure(stdout.Config{Pretty: file.SinkConfigs.Stdout.Pretty})
		case "kafka":
			kc := file.SinkConfigs.Kafka
			err = a.Configure(kafka.Config{Brokers: kc.Brokers, Topic: kc.Topic, Acks: kc.Acks, Log: e.log})
		default:
			err = fmt.Errorf("no config block for sink %q", name)
		}
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("sink %s: %w", name, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// Run benchmarks the pipeline file at path over the discovered datasets.
func (e *Engine) Run(ctx context.Context, path, filter string) ([]sink.Record, error) {
	mods, file, err := e.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	ds, err := e.Datasets(filter)
	if err != nil {
		return nil, fmt.Errorf("datasets: %w", err)
	}
	if len(ds) == 0 {
		e.log.Warn("no datasets found", "root", e.cfg.Data.Root)
	}
	s, err := e.Sinks(file)
	if err != nil {
		return nil, err
	}
	opts := bench.OptionsFrom(file.Bench)
	opts.Log, opts.Sink = e.log, s
	r := bench.New(opts)
	e.log.Info("benchmark started", "run", r.RunID(), "modules", len(mods), "datasets", len(ds))

	recs, err := r.Run(ctx, ds, mods)
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return recs, err
}

// ServeBackend serves the local descriptor backend until ctx is done.
func (e *Engine) ServeBackend(ctx context.Context) error {
	srv, err := transport.StartServer(e.cfg.Backend.Listen, transport.ServerOptions{
		Backend: e.cfg.Backend.Local,
		Timeout: e.cfg.Backend.Timeout,
		Log:     e.log,
	})
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	e.log.Info("descriptor backend listening", "addr", srv.Addr().String(), "backend", e.cfg.Backend.Local)

	go func() {
		<-ctx.Done()
		srv.Stop()
	}()
	if err := srv.Serve(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (e *Engine) Close() error {
	errs := []error{transport.CloseShared()}
	for _, c := range e.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
