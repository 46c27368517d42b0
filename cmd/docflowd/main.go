// Command docflowd is the process entrypoint: it wires config, logging, the
// database, the plugin registry, the router/executor, the orchestrator, the
// optional file watcher and the optional HTTP surface together, then blocks
// until a signal requests graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/buildbeaver/docflow/internal/executor"
	"github.com/buildbeaver/docflow/internal/httpapi"
	"github.com/buildbeaver/docflow/internal/logger"
	"github.com/buildbeaver/docflow/internal/model"
	"github.com/buildbeaver/docflow/internal/pipeline"
	"github.com/buildbeaver/docflow/internal/plugin"
	"github.com/buildbeaver/docflow/internal/registry"
	"github.com/buildbeaver/docflow/internal/router"
	"github.com/buildbeaver/docflow/internal/store"
	"github.com/buildbeaver/docflow/internal/watchconfig"
	"github.com/buildbeaver/docflow/internal/watcher"

	_ "github.com/buildbeaver/docflow/plugins/echo"
	_ "github.com/buildbeaver/docflow/plugins/frontmatter_tagger"
)

// version is overridden at build time via -ldflags.
var version = "dev"

// config holds the CLI flags and mirrored environment variables: listen
// address, database path, plugin directory, watch-config path, log level
// and job concurrency.
type config struct {
	httpAddr      string
	dbPath        string
	pluginDir     string
	watchConfig   string
	logLevels     string
	maxConcurrent int
	serveHTTP     bool
}

func configFromFlags() config {
	var c config
	flag.StringVar(&c.httpAddr, "addr", envOr("DOCFLOW_HTTP_ADDR", ":8090"), "address for the HTTP command/event surface")
	flag.StringVar(&c.dbPath, "db", envOr("DOCFLOW_DB_PATH", "docflow.db"), "path to the sqlite database file")
	flag.StringVar(&c.pluginDir, "plugin-dir", envOr("DOCFLOW_PLUGIN_DIR", "./plugins"), "directory of plugin sub-directories to load")
	flag.StringVar(&c.watchConfig, "watch-config", envOr("DOCFLOW_WATCH_CONFIG", ""), "path to a YAML file of watches; empty disables the file watcher")
	flag.StringVar(&c.logLevels, "log-level", envOr("DOCFLOW_LOG_LEVEL", ""), "default or \"subsystem=level,...\" log level configuration")
	flag.IntVar(&c.maxConcurrent, "max-concurrent-jobs", pipeline.DefaultMaxConcurrent, "maximum number of jobs driven concurrently")
	flag.BoolVar(&c.serveHTTP, "serve-http", true, "serve the HTTP command/event surface")
	flag.Parse()
	return c
}

func envOr(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return fallback
}

func main() {
	fmt.Printf("docflowd v%s\n", version)
	cfg := configFromFlags()

	logRegistry, err := logger.NewLogRegistry(logger.LogLevelConfig(cfg.logLevels))
	if err != nil {
		log.Fatalf("error parsing log level configuration: %s", err)
	}
	logFactory := logger.MakeLogFactory(logRegistry)
	mainLog := logFactory("main")

	db, err := store.Open(store.ConnectionString(fmt.Sprintf("file:%s?_foreign_keys=on", cfg.dbPath)), logFactory)
	if err != nil {
		log.Fatalf("error opening database: %s", err)
	}
	st := store.New(db)

	reg := registry.New(logFactory)
	loaded, err := plugin.LoadAll(cfg.pluginDir)
	if err != nil {
		log.Fatalf("error loading plugins from %q: %s", cfg.pluginDir, err)
	}
	for _, l := range loaded {
		if err := reg.Register(l.Processor); err != nil {
			log.Fatalf("error registering processor from %s: %s", l.Dir, err)
		}
		mainLog.Infof("loaded processor %q from %s", l.Processor.Name(), l.Dir)
	}
	for _, m := range reg.ValidateDependencies() {
		mainLog.Warnf("processor %q requires unregistered processor %q", m.Processor, m.Missing)
	}

	rtr := router.New(logFactory, reg)
	clock := func() model.Time { return model.NewTime(time.Now()) }
	ex := executor.New(logFactory, reg, rtr, st, clock, nil)

	p := pipeline.New(logFactory, st, reg, ex, clock, pipeline.Config{MaxConcurrentJobs: cfg.maxConcurrent})
	ex.SetEventSink(p.HandleExecutorEvent)

	if cfg.watchConfig != "" {
		configs, err := watchconfig.Load(cfg.watchConfig)
		if err != nil {
			log.Fatalf("error loading watch configuration: %s", err)
		}
		w := watcher.New(logFactory, time.Now, configs, p.OnFileDetected)
		p.SetWatcher(w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		log.Fatalf("error starting pipeline: %s", err)
	}

	var httpServer *httpapi.Server
	if cfg.serveHTTP {
		handler := httpapi.NewRouter(httpapi.Deps{Jobs: p, Events: p}, logFactory)
		httpServer = httpapi.NewServer(handler, httpapi.Config{Address: cfg.httpAddr}, logFactory)
		httpServer.Start()
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	mainLog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if httpServer != nil {
		if err := httpServer.Stop(shutdownCtx); err != nil {
			mainLog.Warnf("error stopping HTTP server: %s", err)
		}
	}
	p.Stop()
	mainLog.Info("shutdown complete")
}
