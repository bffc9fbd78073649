// Command flowload runs declarative HTTP flows as a load test, or once as a
// functional check.
//
// Usage:
//
//	flowload -config flow.yaml [flags]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"flowload/internal/collector"
	"flowload/internal/config"
	"flowload/internal/coordinator"
	"flowload/internal/core"
	flowhttp "flowload/internal/http"
	"flowload/internal/log"
	"flowload/internal/pacing"
	"flowload/internal/progress"
	"flowload/internal/store"
)

const (
	ExitSuccess  = 0
	ExitFailures = 1
	ExitError    = 2
)

type options struct {
	configPath    string
	actors        int
	duration      time.Duration
	output        string
	quiet         bool
	verbose       bool
	maxIterations int
	warmup        int
	spawnRate     int
	rps           int
	once          bool
	validateOnly  bool
	logLevel      string
	logFormat     string
	metricsAddr   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("flowload", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "path to YAML or JSON flow file (required)")
	fs.IntVar(&o.actors, "actors", 5, "number of actors to spawn")
	fs.DurationVar(&o.duration, "duration", 10*time.Second, "test duration (0 = until interrupted or iterations exhausted)")
	fs.StringVar(&o.output, "output", "text", "output format: text, json")
	fs.BoolVar(&o.quiet, "quiet", false, "suppress progress output during the run")
	fs.BoolVar(&o.verbose, "verbose", false, "dump every request and response to stderr")
	fs.IntVar(&o.maxIterations, "max-iterations", 0, "max iterations per actor (0 = unlimited)")
	fs.IntVar(&o.warmup, "warmup", 0, "per-actor warmup iterations excluded from results")
	fs.IntVar(&o.spawnRate, "spawn-rate", 0, "actors started per second (0 = all at once)")
	fs.IntVar(&o.rps, "rps", 0, "global cap on iterations per second across actors (0 = none)")
	fs.BoolVar(&o.once, "once", false, "run init, the steps once and cleanup, then report each step")
	fs.BoolVar(&o.validateOnly, "validate", false, "validate the flow file and exit")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&o.logFormat, "log-format", "console", "log format: console, json")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.configPath == "" {
		fs.Usage()
		return nil, errors.New("-config is required")
	}
	if o.output != "text" && o.output != "json" {
		return nil, fmt.Errorf("-output must be 'text' or 'json', got %q", o.output)
	}
	if !o.once && !o.validateOnly && o.actors < 1 {
		return nil, errors.New("-actors must be >= 1")
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}

	if err := log.Init(o.logLevel, o.logFormat, stderr); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}
	defer log.Sync()

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}
	if o.validateOnly {
		fmt.Fprintf(stdout, "%s: configuration is valid\n", o.configPath)
		return ExitSuccess
	}

	var debug *flowhttp.DebugLogger
	if o.verbose {
		debug = flowhttp.NewDebugLogger(stderr)
	}

	if o.once {
		return runOnce(ctx, cfg, debug, stdout)
	}
	return runLoad(ctx, o, cfg, debug, stdout, stderr)
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	warnings, err := config.Validate(cfg)
	for _, w := range warnings {
		log.L().Warn("config warning", zap.String("warning", w))
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// runOnce executes the flow a single time and prints a line per step.
func runOnce(ctx context.Context, cfg *config.Config, debug *flowhttp.DebugLogger, stdout io.Writer) int {
	exec := flowhttp.NewExecutor(cfg,
		flowhttp.WithDebug(debug),
		flowhttp.WithActorID(1),
		flowhttp.WithDataStore(store.New()),
	)

	var steps []flowhttp.StepResult
	initResults, err := exec.RunInit(ctx)
	steps = append(steps, initResults...)

	result := flowhttp.FlowResult{ServiceName: cfg.ServiceName, Success: err == nil}
	if err == nil {
		result = exec.ExecuteFlow(ctx)
	}
	steps = append(steps, result.Steps...)

	cleanupResults, _ := exec.RunCleanup(context.WithoutCancel(ctx))
	steps = append(steps, cleanupResults...)

	for _, r := range initResults {
		if !r.Success {
			result.Success = false
		}
	}

	fmt.Fprintf(stdout, "%s\n", result.ServiceName)
	for _, r := range steps {
		status := "PASS"
		switch {
		case r.Skipped:
			status = "SKIP"
		case !r.Success:
			status = "FAIL"
		}
		fmt.Fprintf(stdout, "  %-4s %-20s %3d  %s", status, r.Name, r.StatusCode, collector.FormatDuration(r.Duration))
		if r.Attempts > 1 {
			fmt.Fprintf(stdout, "  (%d attempts)", r.Attempts)
		}
		if r.Error != "" {
			fmt.Fprintf(stdout, "  %s", r.Error)
		}
		fmt.Fprintln(stdout)
	}
	if result.Error != "" {
		fmt.Fprintf(stdout, "error: %s\n", result.Error)
	}

	if !result.Success {
		return ExitFailures
	}
	return ExitSuccess
}

func runLoad(ctx context.Context, o *options, cfg *config.Config, debug *flowhttp.DebugLogger, stdout, stderr io.Writer) int {
	coll := collector.New()
	reporters := core.Reporters{coll}

	if o.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		prom, err := collector.NewPromReporter(reg)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return ExitError
		}
		reporters = append(reporters, prom)

		srv := serveMetrics(o.metricsAddr, reg)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	var limiter *pacing.Limiter
	if o.rps > 0 {
		limiter = pacing.NewLimiter(o.rps)
	}
	workflow := &flowhttp.Workflow{Config: cfg, Debug: debug, Limiter: limiter}
	coord := coordinator.New(reporters, coordinator.WithSpawnRate(o.spawnRate))

	runnerConfig := core.RunnerConfig{MaxIterations: o.maxIterations, WarmupIters: o.warmup}

	prog := progress.New(coll, o.quiet || o.verbose, progress.WithOutput(stderr), progress.WithActors(coord.ActiveActors))
	prog.Printf("flowload starting: %d actors, duration %v, service %q", o.actors, o.duration, cfg.ServiceName)

	runCtx := ctx
	if o.duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.duration)
		defer cancel()
	}

	prog.Start()
	coord.Spawn(runCtx, o.actors, workflow, runnerConfig)
	coord.Wait()
	coll.Close()
	prog.Stop()

	metrics := coll.Compute()
	if o.output == "json" {
		if err := collector.FormatJSON(stdout, metrics); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return ExitError
		}
	} else {
		collector.FormatText(stdout, metrics)
	}

	if err := coord.Err(); err != nil {
		fmt.Fprintf(stderr, "\nactors stopped with errors:\n%v\n", err)
		return ExitFailures
	}
	return ExitSuccess
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.L().Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	log.L().Info("serving metrics", zap.String("addr", addr))
	return srv
}
