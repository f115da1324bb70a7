package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"voxelcraft.ai/gametest/internal/config"
	"voxelcraft.ai/gametest/internal/gametest/registry"
	"voxelcraft.ai/gametest/internal/gametest/runner"
	"voxelcraft.ai/gametest/internal/harness"
	"voxelcraft.ai/gametest/internal/host/catalogs"
	"voxelcraft.ai/gametest/internal/metrics"
	"voxelcraft.ai/gametest/internal/persistence/indexdb"
	persistlog "voxelcraft.ai/gametest/internal/persistence/log"
	"voxelcraft.ai/gametest/internal/transport/observer"
)

func main() {
	var (
		cfgPath    = flag.String("config", "./configs/harness.yaml", "harness config path (empty for defaults)")
		configDir  = flag.String("configs", "", "catalog directory (overrides configs_dir)")
		scenarios  = flag.String("scenarios", "", "comma-separated scenario directories (overrides scenario_dirs)")
		suites     = flag.String("suite", "", "comma-separated suites to run")
		tags       = flag.String("tag", "", "comma-separated tags; a test runs if it has any of them")
		name       = flag.String("name", "", "glob over test names")
		dataDir    = flag.String("data", "", "runtime data directory (overrides data_dir)")
		obsAddr    = flag.String("observer", "", "observer websocket listen address (empty to disable)")
		metricsAdr = flag.String("metrics", "", "prometheus listen address (empty to disable)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite run index")
		disableLog = flag.Bool("disable_log", false, "disable the compressed run log")
		list       = flag.Bool("list", false, "list the selected tests and exit")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[gametest] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*cfgPath)
	if err != nil && !(errors.Is(err, os.ErrNotExist) && !isSet("config")) {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	if err != nil {
		cfg, _ = config.Load("")
	}
	if isSet("configs") {
		cfg.ConfigsDir = *configDir
	}
	if isSet("scenarios") {
		cfg.ScenarioDirs = splitList(*scenarios)
	}
	if isSet("suite") {
		cfg.Suites = splitList(*suites)
	}
	if isSet("tag") {
		cfg.Tags = splitList(*tags)
	}
	if isSet("name") {
		cfg.Name = *name
	}
	if isSet("data") {
		cfg.DataDir = *dataDir
	}
	if isSet("observer") {
		cfg.ObserverAddr = *obsAddr
	}
	if isSet("metrics") {
		cfg.MetricsAddr = *metricsAdr
	}
	cfg.DisableDB = cfg.DisableDB || *disableDB
	cfg.DisableLog = cfg.DisableLog || *disableLog
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	cats, err := catalogs.Load(cfg.ConfigsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(2)
	}

	reg := registry.New()
	if err := harness.LoadScenarios(cfg, reg, log.New(os.Stdout, "[script] ", log.LstdFlags|log.Lmicroseconds)); err != nil {
		fmt.Fprintln(os.Stderr, "load scenarios:", err)
		os.Exit(2)
	}
	logger.Printf("registered %d tests in %d suites", reg.Len(), len(reg.Suites()))
	filter := registry.Filter{Suites: cfg.Suites, Tags: cfg.Tags, Name: cfg.Name}

	if *list {
		for _, d := range reg.Select(filter) {
			fmt.Printf("%s rotations=%d max_ticks=%d required=%v tags=%s source=%s\n",
				d.ID(), len(d.Rotations()), d.MaxTicks, d.Required, strings.Join(d.Tags, ","), d.Source)
		}
		return
	}

	ctx, cancel := signalContext()
	defer cancel()

	var sinks runner.MultiSink
	var closers []func()

	if !cfg.DisableLog {
		runLog := persistlog.NewRunLogger(cfg.DataDir)
		sinks = append(sinks, runLog)
		closers = append(closers, func() {
			if err := runLog.Close(); err != nil {
				logger.Printf("run log: %v", err)
			}
		})
	}
	if !cfg.DisableDB {
		idx, err := indexdb.OpenSQLite(cfg.IndexPath())
		if err != nil {
			logger.Printf("index disabled: %v", err)
		} else {
			if err := idx.UpsertCatalogs(cfg.ConfigsDir, cats); err != nil {
				logger.Printf("index catalogs: %v", err)
			}
			sinks = append(sinks, idx)
			closers = append(closers, func() {
				st := idx.Stats()
				if st.DropRunTotal+st.DropStepTotal+st.DropSummaryTotal > 0 {
					logger.Printf("index dropped events: runs=%d steps=%d summaries=%d", st.DropRunTotal, st.DropStepTotal, st.DropSummaryTotal)
				}
				if err := idx.Close(); err != nil {
					logger.Printf("index close: %v", err)
				}
			})
		}
	}
	if cfg.MetricsAddr != "" {
		sinks = append(sinks, metrics.Sink{})
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		closers = append(closers, serve(ctx, logger, "metrics", cfg.MetricsAddr, mux))
	}
	if cfg.ObserverAddr != "" {
		obs := observer.NewServer(reg, logger)
		sinks = append(sinks, obs)
		mux := http.NewServeMux()
		mux.HandleFunc("/observer/bootstrap", obs.BootstrapHandler())
		mux.HandleFunc("/observer/ws", obs.WSHandler())
		closers = append(closers, serve(ctx, logger, "observer", cfg.ObserverAddr, mux))
	}

	d := harness.NewDriver(cfg, reg, cats, sinks, logger)
	sum, runErr := d.Run(ctx, filter)

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}

	fmt.Printf("%d runs: %d passed, %d failed, %d timed out (%d required not passed)\n",
		sum.Total(), sum.Passed, sum.Failed, sum.TimedOut, sum.RequiredFailed)
	if runErr != nil {
		logger.Printf("batch interrupted: %v", runErr)
	}
	if !sum.OK() || runErr != nil {
		os.Exit(1)
	}
}

// serve starts an http server for the batch and returns its shutdown func.
func serve(ctx context.Context, logger *log.Logger, what, addr string, h http.Handler) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("%s listening on %s", what, addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("%s: %v", what, err)
		}
	}()
	stop := func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return stop
}

func isSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
