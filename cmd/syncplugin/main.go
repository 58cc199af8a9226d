// Copyright 2025 James Ross
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/trek-e/stash2plex-sync/internal/admin"
	"github.com/trek-e/stash2plex-sync/internal/breaker"
	"github.com/trek-e/stash2plex-sync/internal/config"
	"github.com/trek-e/stash2plex-sync/internal/dispatch"
	"github.com/trek-e/stash2plex-sync/internal/dlq"
	"github.com/trek-e/stash2plex-sync/internal/metrics"
	"github.com/trek-e/stash2plex-sync/internal/obslog"
	"github.com/trek-e/stash2plex-sync/internal/outage"
	"github.com/trek-e/stash2plex-sync/internal/pathmap"
	"github.com/trek-e/stash2plex-sync/internal/pathpriv"
	"github.com/trek-e/stash2plex-sync/internal/ratelimit"
	"github.com/trek-e/stash2plex-sync/internal/reaper"
	"github.com/trek-e/stash2plex-sync/internal/reconcile"
	"github.com/trek-e/stash2plex-sync/internal/recovery"
	"github.com/trek-e/stash2plex-sync/internal/sourceapi"
	"github.com/trek-e/stash2plex-sync/internal/syncjob"
	"github.com/trek-e/stash2plex-sync/internal/targetapi"
	"github.com/trek-e/stash2plex-sync/internal/worker"
	"github.com/trek-e/stash2plex-sync/internal/writer"
)

var version = "dev"

// deps bundles everything built from config that both run modes share.
type deps struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *syncjob.Store
	brk      *breaker.CircuitBreaker
	hist     *outage.History
	limiter  *ratelimit.Limiter
	rec      *recovery.Scheduler
	source   *sourceapi.Client
	target   *targetapi.Client
	wr       *writer.Writer
	pm       *pathmap.Mapper
	sched    *reconcile.Scheduler
	engine   *reconcile.Engine
	recoverer *dlq.Recoverer
}

func main() {
	var mode string
	var configPath string
	var claimLimit int
	var adminCmd string
	var adminN int
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&mode, "mode", "invoke", "Run mode: invoke|daemon|admin")
	fs.StringVar(&configPath, "config", "", "Path to YAML config")
	fs.IntVar(&claimLimit, "claim-limit", 25, "Max jobs claimed per invoke-mode run")
	fs.StringVar(&adminCmd, "admin-cmd", "stats", "Admin command: stats|peek-dlq|purge-pending")
	fs.IntVar(&adminN, "n", 10, "Number of items for admin peek-dlq")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logLevel := "info"
	if cfg.DebugLogging {
		logLevel = "debug"
	}
	logger, err := obslog.NewLogger(logLevel, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	d, err := build(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", obslog.Err(err))
	}
	defer d.store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obslog.String("signal", sig.String()))
		cancel()
		select {
		case sig2 := <-sigCh:
			logger.Warn("second signal received, exiting immediately", obslog.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()

	switch mode {
	case "invoke":
		runInvoke(ctx, d, claimLimit)
	case "daemon":
		runDaemon(ctx, d)
	case "admin":
		runAdmin(ctx, d, adminCmd, adminN)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", mode)
		os.Exit(1)
	}
}

func runAdmin(ctx context.Context, d *deps, cmd string, n int) {
	switch cmd {
	case "stats":
		stats, err := admin.Stats(ctx, d.store)
		if err != nil {
			d.log.Fatal("admin stats failed", obslog.Err(err))
		}
		fmt.Println(admin.FormatStats(stats))
	case "peek-dlq":
		items, err := admin.PeekDLQ(ctx, d.store, time.Time{}, n)
		if err != nil {
			d.log.Fatal("admin peek-dlq failed", obslog.Err(err))
		}
		for _, it := range items {
			fmt.Printf("%s scene=%s attempts=%d error=%q\n", it.ID, it.SceneID, it.Attempts, it.LastError)
		}
	case "purge-pending":
		n, err := admin.PurgeDLQ(ctx, d.store)
		if err != nil {
			d.log.Fatal("admin purge-pending failed", obslog.Err(err))
		}
		fmt.Printf("purged %d pending jobs\n", n)
	default:
		fmt.Fprintf(os.Stderr, "unknown admin-cmd %q\n", cmd)
		os.Exit(1)
	}
}

// build wires every component from configuration, mirroring the
// dependency graph worker.New/reconcile.New/dlq.New expect.
func build(cfg *config.Config, logger *zap.Logger) (*deps, error) {
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	store, err := syncjob.Open(cfg.QueuePath)
	if err != nil {
		return nil, err
	}

	brk, err := breaker.New(filepath.Join(cfg.StateDir, "breaker.json"),
		time.Duration(cfg.Breaker.CooldownSeconds*float64(time.Second)), cfg.Breaker.FailureThreshold)
	if err != nil {
		return nil, err
	}
	hist, err := outage.Load(filepath.Join(cfg.StateDir, "outage.json"))
	if err != nil {
		return nil, err
	}
	limiter, err := ratelimit.Load(filepath.Join(cfg.StateDir, "ratelimit.json"), ratelimit.DefaultConfig)
	if err != nil {
		return nil, err
	}
	rec, err := recovery.New(filepath.Join(cfg.StateDir, "recovery.json"), brk, hist, limiter)
	if err != nil {
		return nil, err
	}

	source := sourceapi.New(cfg.Source.URL, cfg.Source.APIKey, 30*time.Second)
	target := targetapi.New(cfg.Target.URL, cfg.Target.Token,
		time.Duration(cfg.Target.ConnectTimeout*float64(time.Second)),
		time.Duration(cfg.Target.ReadTimeout*float64(time.Second)))
	wr := writer.New(target, cfg.Sync, cfg.MaxTags, cfg.PreserveTargetEdits)

	rules := make([]pathmap.Rule, len(cfg.PathMappings))
	for i, m := range cfg.PathMappings {
		rules[i] = pathmap.Rule{
			Name:            m.Name,
			SourcePattern:   m.SourcePattern,
			TargetPattern:   m.TargetPattern,
			CaseInsensitive: m.CaseInsensitive,
		}
	}
	pm, err := pathmap.New(rules)
	if err != nil {
		return nil, fmt.Errorf("build path mapper: %w", err)
	}

	sched, err := reconcile.NewScheduler(filepath.Join(cfg.StateDir, "reconcile_schedule.json"), cfg.Reconcile.Interval)
	if err != nil {
		return nil, err
	}
	sectionKey := firstLibrarySection(cfg.Target)
	lookup := reconcile.NewSearchingLookup(target, sectionKey, pm, cfg.StrictMatching)
	engine := reconcile.New(source, store, lookup)

	recoverer := dlq.New(store, target, source)

	logger.Info("initialized",
		obslog.String("version", version),
		obslog.String("target_url", cfg.Target.URL),
		obslog.Bool("obfuscate_paths", cfg.ObfuscatePaths))

	return &deps{
		cfg: cfg, log: logger, store: store, brk: brk, hist: hist, limiter: limiter,
		rec: rec, source: source, target: target, wr: wr, pm: pm,
		sched: sched, engine: engine, recoverer: recoverer,
	}, nil
}

func firstLibrarySection(t config.Target) string {
	libs := t.Libraries()
	if len(libs) == 0 {
		return "1"
	}
	return libs[0]
}

func newWorker(d *deps) *worker.Worker {
	var obfs *pathpriv.Obfuscator
	if d.cfg.ObfuscatePaths {
		obfs = pathpriv.New()
	}
	return worker.New(worker.Config{
		Concurrency:       4,
		MaxRetries:        d.cfg.MaxRetries,
		LibrarySectionKey: firstLibrarySection(d.cfg.Target),
		StrictMatching:    d.cfg.StrictMatching,
		ExcludeGlobs:      d.cfg.ExcludeGlobs,
	}, d.store, d.brk, d.limiter, d.rec, d.source, d.target, d.wr, d.pm, obfs, d.log)
}

// runInvoke implements the default short-lived mode: read one hook event
// from stdin, dispatch it, drain whatever is now claimable, and report
// the result on stdout. The host starts one process per hook delivery,
// so this never loops.
func runInvoke(ctx context.Context, d *deps, claimLimit int) {
	var in dispatch.Input
	if err := json.NewDecoder(os.Stdin).Decode(&in); err != nil {
		writeOutput(dispatch.Output{Error: fmt.Sprintf("invalid input: %v", err)})
		os.Exit(1)
	}

	out, err := dispatch.Handle(ctx, d.store, in)
	if err != nil {
		d.log.Error("dispatch failed", obslog.Err(err))
		writeOutput(dispatch.Output{Error: err.Error()})
		os.Exit(1)
	}

	w := newWorker(d)
	if err := w.Run(ctx, claimLimit); err != nil {
		d.log.Error("worker run failed", obslog.Err(err))
	}

	rp := reaper.New(d.store, d.log)
	rp.ReapOnce(ctx)

	if d.sched.IsStartupDue(time.Now()) {
		runReconcilePass(ctx, d)
	}

	writeOutput(out)
}

func writeOutput(out dispatch.Output) {
	_ = json.NewEncoder(os.Stdout).Encode(out)
}

// runDaemon implements the long-lived mode for deployments that prefer a
// single persistent process over a subprocess per hook event: it polls
// the queue continuously and runs reconcile/DLQ-recovery passes on a cron
// schedule instead of the invoke-mode "check once per request" approach.
func runDaemon(ctx context.Context, d *deps) {
	if d.cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(d.cfg.MetricsAddr); err != nil {
				d.log.Error("metrics server stopped", obslog.Err(err))
			}
		}()
	}

	c := cron.New()
	if _, err := c.AddFunc(d.cfg.ReconcileCron, func() {
		if d.sched.IsDue(time.Now()) {
			runReconcilePass(ctx, d)
		}
	}); err != nil {
		d.log.Error("failed to schedule reconcile cron", obslog.Err(err))
	}
	if _, err := c.AddFunc("@daily", func() { purgeExpiredTerminalJobs(ctx, d) }); err != nil {
		d.log.Error("failed to schedule retention purge cron", obslog.Err(err))
	}
	c.Start()
	defer c.Stop()

	rp := reaper.New(d.store, d.log)
	go rp.Run(ctx, time.Minute)

	w := newWorker(d)
	ticker := time.NewTicker(time.Duration(d.cfg.PollInterval * float64(time.Second)))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("daemon shutting down")
			return
		case <-ticker.C:
			if err := w.Run(ctx, 100); err != nil {
				d.log.Error("worker run failed", obslog.Err(err))
			}
			if res, err := d.recoverer.RecoverSince(ctx, time.Now().Add(-24*time.Hour)); err != nil {
				d.log.Error("dlq recovery failed", obslog.Err(err))
			} else if res.Recovered > 0 {
				d.log.Info("recovered dead-lettered jobs",
					obslog.Int("recovered", res.Recovered),
					obslog.Int("skipped", res.Skipped))
			}
		}
	}
}

// purgeExpiredTerminalJobs enforces dlq_retention_days by deleting
// Completed/Failed jobs last touched before the retention window, run
// once a day from daemon mode. Invoke mode never runs this itself — a
// per-hook-event process has no business paying for a table scan on
// every invocation.
func purgeExpiredTerminalJobs(ctx context.Context, d *deps) {
	cutoff := time.Now().Add(-time.Duration(d.cfg.DLQRetentionDays) * 24 * time.Hour)
	n, err := d.store.PurgeTerminalOlderThan(ctx, cutoff)
	if err != nil {
		d.log.Error("retention purge failed", obslog.Err(err))
		return
	}
	if n > 0 {
		d.log.Info("purged expired terminal jobs", obslog.Int("count", int(n)))
	}
}

func runReconcilePass(ctx context.Context, d *deps) {
	result, err := d.engine.Run(ctx, d.cfg.Reconcile.Scope)
	if err != nil {
		d.log.Error("reconcile pass failed", obslog.Err(err))
		return
	}
	metrics.ReconcileGapsFound.Add(float64(result.GapsFound))
	d.log.Info("reconcile pass complete",
		obslog.Int("scenes_scanned", result.ScenesScanned),
		obslog.Int("gaps_found", result.GapsFound),
		obslog.Int("jobs_enqueued", result.JobsEnqueued))
	d.sched.RecordRun(time.Now())
}
