package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/servemon/servemon/internal/api"
	"github.com/servemon/servemon/internal/config"
	"github.com/servemon/servemon/internal/model"
	"github.com/servemon/servemon/internal/store"
	"github.com/servemon/servemon/internal/telemetry"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	switch cmd {
	case "start":
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)
		cmdStart()
	case "stop":
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)
		cmdStop()
	case "status":
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)
		cmdStatus()
	case "run":
		// Foreground mode (also used internally by daemon child)
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)
		cmdRun()
	case "version":
		fmt.Printf("servemon %s\n", version)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	exe := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, `Servemon — Telemetry daemon for model-serving APIs (%s)

Usage:
  %s <command> [flags]

Commands:
  start          Start daemon (background)
  stop           Stop daemon
  status         Show daemon status
  run            Run in foreground
  version        Print version

Flags:
  -config PATH        Config file path (default: config.yaml)
  -listen ADDR        Listen address (default: 127.0.0.1:9931)
  -db PATH            SQLite database path
  -sample-interval N  Sampling interval in seconds
  -retention-hours N  Hours of telemetry to retain
  -pid-file P         PID file path
  -log-file P         Log file path

Examples:
  %s start
  %s start -config /etc/servemon/config.yaml
  %s stop
  %s run
`, version, exe, exe, exe, exe, exe)
}

// ---------------------------------------------------------------------------
// run: foreground server (also used by daemon child)
// ---------------------------------------------------------------------------

func cmdRun() {
	cfg := config.Load()

	// Open store
	db, err := store.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	// Collector rebuilds counter accumulators from the store
	collector := telemetry.NewCollector(db)

	// Alert engine with default + configured rules
	alerts := telemetry.NewAlertEngine(db)
	registerAlertRules(alerts, cfg)

	// Health registry with the built-in probes
	health := telemetry.NewHealthRegistry(collector)
	registerHealthChecks(health, db)

	// WebSocket hub for alert/sample streaming
	hub := api.NewHub()
	go hub.Run()

	alerts.SetNotifier(func(a model.ActiveAlert) {
		log.Printf("[alerts] ALERT %s: %s = %.2f (threshold %.2f)",
			a.RuleName, a.MetricName, a.CurrentValue, a.Threshold)
		hub.BroadcastAlert(a)
	})

	// Background sampling loop
	sched := telemetry.NewScheduler(collector, alerts, health, cfg.SampleInterval())
	sched.SetBroadcast(hub.BroadcastSample)
	sched.Start()

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	// Retention purge goroutine
	go runRetentionPurge(ctx, db, cfg.RetentionHours)

	// Build HTTP router
	router := api.NewRouter(collector, db, alerts, health, hub, cfg.SummaryWindowHours)

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: router,
	}

	// Start server
	go func() {
		log.Printf("Servemon %s listening on http://%s", version, cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Wait for signal
	<-ctx.Done()
	log.Println("shutting down...")

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sched.Stop()
	srv.Shutdown(shutCtx)

	// Clean up PID file
	os.Remove(cfg.PidFile)
	log.Println("goodbye")
}

func registerAlertRules(alerts *telemetry.AlertEngine, cfg *config.Config) {
	for _, r := range telemetry.DefaultRules() {
		if err := alerts.AddRule(r); err != nil {
			log.Printf("[startup] default alert rule %s: %v", r.Name, err)
		}
	}
	for _, rc := range cfg.Alerts {
		if err := alerts.AddRule(rc.Rule()); err != nil {
			log.Printf("[startup] configured alert rule %s: %v", rc.Name, err)
		}
	}
	log.Printf("[startup] %d alert rules registered", len(alerts.Rules()))
}

func registerHealthChecks(health *telemetry.HealthRegistry, db *store.Store) {
	checks := []telemetry.HealthCheck{
		&telemetry.DiskSpaceCheck{},
		&telemetry.MemoryCheck{},
		&telemetry.StoreCheck{Store: db},
	}
	for _, c := range checks {
		if err := health.Register(c); err != nil {
			log.Printf("[startup] health check %s: %v", c.Name(), err)
		}
	}
}

func runRetentionPurge(ctx context.Context, db *store.Store, hours int) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour).UnixMilli()
			n, err := db.PurgeOlderThan(cutoff)
			if err != nil {
				log.Printf("[purge] error: %v", err)
			} else if n > 0 {
				log.Printf("[purge] removed %d old rows", n)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// PID file helpers
// ---------------------------------------------------------------------------

func writePidFile(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644)
}

func readPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in %s", path)
	}
	return pid, nil
}
