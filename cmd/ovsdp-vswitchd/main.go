// Command ovsdp-vswitchd is the datapath process: it loads its
// configuration, provisions vports and per-core pipelines, starts the
// Prometheus exporter, and runs until a shutdown signal arrives.
// Structured the way this corpus's tzsp_server command wires
// config/logger/server together: flag parsing, a cancellable root
// context, and signal-driven graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ovsdp/ovsdp/pkg/bufpool"
	"github.com/ovsdp/ovsdp/pkg/control"
	"github.com/ovsdp/ovsdp/pkg/flowtable"
	"github.com/ovsdp/ovsdp/pkg/ovsconfig"
	"github.com/ovsdp/ovsdp/pkg/ovslog"
	"github.com/ovsdp/ovsdp/pkg/ovsmetrics"
	"github.com/ovsdp/ovsdp/pkg/pipeline"
	"github.com/ovsdp/ovsdp/pkg/vport"
	"github.com/ovsdp/ovsdp/pkg/vportio"
)

// controlDispatchInterval is the ticker period driving each pipeline's
// request-ring dispatcher, independent of the pipeline's own poll
// interval since the control channel has no hard latency budget.
const controlDispatchInterval = time.Millisecond

func main() {
	configPath := flag.String("config", "ovsdp.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("ovsdp-vswitchd version dev")
		os.Exit(0)
	}

	cfg, err := ovsconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := ovslog.New(ovslog.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	entry := log.Entry()
	entry.Info("starting ovsdp-vswitchd")
	entry.WithField("file", *configPath).Info("configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := vport.NewRegistry()
	pool := bufpool.New(cfg.Pipelines.FlowTableSize*4, cfg.Pipelines.NumPipelines, 64)

	pollInterval := time.Duration(cfg.Pipelines.PollIntervalMicros) * time.Microsecond

	pipelines := make([]*pipeline.Pipeline, cfg.Pipelines.NumPipelines)
	channels := make([]*control.Channel, cfg.Pipelines.NumPipelines)
	handlers := make([]*control.Handler, cfg.Pipelines.NumPipelines)
	for i := range pipelines {
		core := i
		ch := control.NewChannel(core, control.DefaultRingCapacity)
		pl := pipeline.New(core, flowtable.New(), reg, pool, log.WithPipeline(core), cfg.Pipelines.BurstSize, pollInterval, ch)
		channels[core] = ch
		pipelines[core] = pl
		handlers[core] = &control.Handler{
			Registry: reg,
			Table:    pl.Table(),
			NewIOPort: func(t vport.Type, name string) (vport.IOPort, error) {
				return vportio.New(t, name, pool, core)
			},
		}
	}

	if err := provisionVports(cfg, reg, pool, pipelines); err != nil {
		entry.WithField("error", err).Error("failed to provision vports")
		os.Exit(1)
	}

	for _, pl := range pipelines {
		pl.Launch()
		entry.WithField("pipeline", pl.ID()).Info("pipeline launched")
	}

	for i := range pipelines {
		go runControlLoop(ctx, handlers[i], channels[i], pool, pipelines[i].ID())
		entry.WithField("pipeline", pipelines[i].ID()).Info("control dispatcher running")
	}

	errCh := make(chan error, 1)
	if cfg.Metrics.Enabled {
		go func() {
			if err := ovsmetrics.Serve(ctx, cfg.Metrics.ListenAddr); err != nil && ctx.Err() == nil {
				errCh <- err
			}
		}()
		entry.WithField("addr", cfg.Metrics.ListenAddr).Info("metrics listening")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		entry.Info("received shutdown signal")
	case err := <-errCh:
		entry.WithField("error", err).Error("metrics server failed")
	}

	cancel()
	for _, pl := range pipelines {
		pl.Stop()
	}
	entry.Info("ovsdp-vswitchd terminated")
}

// runControlLoop drains one pipeline's request ring and tops up its
// packet-alloc ring until ctx is cancelled, the daemon-facing half of
// the control channel spec.md §2 and §4.5 describe. Each pipeline gets
// its own dispatcher goroutine since each owns its own flow table and
// request ring.
func runControlLoop(ctx context.Context, h *control.Handler, ch *control.Channel, pool *bufpool.Pool, core int) {
	ticker := time.NewTicker(controlDispatchInterval)
	defer ticker.Stop()

	occupied := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.DispatchBatch(ch)
			control.ReplenishPacketAlloc(ch, pool, core, &occupied)
		}
	}
}

func provisionVports(cfg *ovsconfig.Config, reg *vport.Registry, pool *bufpool.Pool, pipelines []*pipeline.Pipeline) error {
	for i, vc := range cfg.Vports {
		t, err := vportio.ParseType(vc.Type)
		if err != nil {
			return fmt.Errorf("vport %q: %w", vc.Name, err)
		}
		core := i % len(pipelines)
		io, err := vportio.New(t, vc.Device, pool, core)
		if err != nil {
			return fmt.Errorf("vport %q: %w", vc.Name, err)
		}
		id := vport.ID(vc.ID)
		if vc.AutoID {
			id = vport.AnyID
		}
		allocated, err := reg.Add(t, id, vc.Name, io, core)
		if err != nil {
			return fmt.Errorf("vport %q: %w", vc.Name, err)
		}
		v, _ := reg.Get(allocated)
		pl := pipelines[core]
		if err := pl.AddJob(v); err != nil {
			return fmt.Errorf("vport %q: assign to pipeline: %w", vc.Name, err)
		}
	}
	return nil
}
