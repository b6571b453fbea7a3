// Command hedgeledgerd runs the hedge-to-ledger posting engine: an HTTP
// service that turns hedge business events plus precomputed amount
// packages into balanced, idempotent journal entries.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/treasuryops/hedgeledger/pkg/api"
	"github.com/treasuryops/hedgeledger/pkg/audit"
	"github.com/treasuryops/hedgeledger/pkg/config"
	"github.com/treasuryops/hedgeledger/pkg/engine"
	"github.com/treasuryops/hedgeledger/pkg/lock"
	"github.com/treasuryops/hedgeledger/pkg/observability"
	"github.com/treasuryops/hedgeledger/pkg/refdata"
	"github.com/treasuryops/hedgeledger/pkg/rulebook"
	"github.com/treasuryops/hedgeledger/pkg/store"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServer(stdout, stderr)
	}

	switch args[1] {
	case "server", "serve":
		return runServer(stdout, stderr)
	case "check":
		return runCheck(stdout, stderr)
	case "health":
		return runHealth(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			return runServer(stdout, stderr)
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "hedgeledgerd — hedge-to-ledger posting engine")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  hedgeledgerd <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  server   Run the posting service (default)")
	fmt.Fprintln(w, "  check    Validate the rulebook and reference data files")
	fmt.Fprintln(w, "  health   Check a running server over HTTP")
	fmt.Fprintln(w, "  help     Show this help")
	fmt.Fprintln(w, "")
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func runServer(stdout, stderr io.Writer) int {
	ctx := context.Background()
	cfg := config.Load()
	logger := newLogger(cfg)

	// Posting store: sqlite for single-node, postgres for shared.
	var postingStore store.PostingStore
	switch cfg.DBDriver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("DB Ping failed: %v", err)
		}
		ps := store.NewPostgresPostingStore(db)
		if err := ps.Migrate(ctx); err != nil {
			log.Fatalf("Failed to migrate posting store: %v", err)
		}
		postingStore = ps
		logger.Info("posting store ready", "driver", "postgres")
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open sqlite: %v", err)
		}
		ss, err := store.NewSQLitePostingStore(db)
		if err != nil {
			log.Fatalf("Failed to init posting store: %v", err)
		}
		postingStore = ss
		logger.Info("posting store ready", "driver", "sqlite", "path", cfg.SQLitePath)
	default:
		log.Fatalf("Unknown DB_DRIVER %q (want sqlite or postgres)", cfg.DBDriver)
	}

	// Audit trail: always a local sqlite file, hash-chained.
	auditDB, err := sql.Open("sqlite", cfg.AuditDBPath)
	if err != nil {
		log.Fatalf("Failed to open audit db: %v", err)
	}
	trail, err := audit.NewSQLiteTrail(auditDB)
	if err != nil {
		log.Fatalf("Failed to init audit trail: %v", err)
	}

	// Entity profile: ledger restrictions, export policy and per-entity
	// config file overrides.
	var profile *config.EntityProfile
	if cfg.EntityCode != "" {
		profile, err = config.LoadProfile(cfg.ProfilesDir, cfg.EntityCode)
		if err != nil {
			log.Fatalf("Failed to load entity profile: %v", err)
		}
		logger.Info("entity profile loaded",
			"entity", profile.Code, "ledgers", profile.Ledgers, "export_enabled", profile.Export.Enabled)
	}

	rulebookPath := cfg.RulebookPath
	refdataPath := cfg.RefDataPath
	if profile != nil && profile.RulebookPath != "" {
		rulebookPath = profile.RulebookPath
	}
	if profile != nil && profile.RefDataPath != "" {
		refdataPath = profile.RefDataPath
	}

	rules, err := rulebook.LoadFile(rulebookPath)
	if err != nil {
		log.Fatalf("Failed to load rulebook: %v", err)
	}
	ref, err := refdata.LoadFile(refdataPath)
	if err != nil {
		log.Fatalf("Failed to load reference data: %v", err)
	}

	// Posting lock: shared Redis lock when configured, in-process otherwise.
	var locker lock.Locker
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("Redis ping failed: %v", err)
		}
		locker = lock.NewRedisLocker(client, 30*time.Second)
		logger.Info("posting lock ready", "mode", "redis", "addr", cfg.RedisAddr)
	} else {
		locker = lock.NewKeyedMutex()
		logger.Info("posting lock ready", "mode", "in-process")
	}

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "hedgeledger",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.TelemetryEnabled,
		Insecure:       cfg.Environment == "development",
	})
	if err != nil {
		log.Fatalf("Failed to init observability: %v", err)
	}

	engineCfg := engine.Config{
		Rules:     rules,
		Lints:     rules,
		Periods:   ref,
		Accounts:  ref,
		Templates: ref,
		Store:     postingStore,
		Locker:    locker,
		Trail:     trail,
		Logger:    logger,
		Metrics:   obs,
	}
	if profile != nil {
		engineCfg.Ledgers = profile.Ledgers
	}
	eng, err := engine.New(engineCfg)
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}

	service := api.NewPostingService(eng, postingStore, trail, logger)
	if profile != nil {
		service.SetExportPolicy(api.ExportPolicy{
			Enabled:   profile.Export.Enabled,
			BatchSize: profile.Export.BatchSize,
		})
	}
	limiter := api.NewGlobalRateLimiter(50, 100)
	defer limiter.Stop()
	handler := api.RequestLogger(logger, limiter.Middleware(service.Routes()))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Reload the rulebook and serve until signalled.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("hedgeledgerd listening", "port", cfg.Port, "environment", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if err := rules.Reload(); err != nil {
					logger.Error("rulebook reload failed", "error", err)
				} else {
					logger.Info("rulebook reloaded", "path", rulebookPath)
				}
				continue
			}
			logger.Info("shutting down", "signal", sig.String())
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown failed", "error", err)
			}
			if err := obs.Shutdown(shutdownCtx); err != nil {
				logger.Error("observability shutdown failed", "error", err)
			}
			return 0
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(stderr, "server error: %v\n", err)
				return 1
			}
			return 0
		}
	}
}

// runCheck validates the configured rulebook and reference data without
// starting the server.
func runCheck(stdout, stderr io.Writer) int {
	cfg := config.Load()
	failed := false

	rules, err := rulebook.LoadFile(cfg.RulebookPath)
	if err != nil {
		fmt.Fprintf(stderr, "rulebook: FAIL (%v)\n", err)
		failed = true
	} else {
		active, _ := rules.ActiveRules(context.Background(), time.Now())
		lints, _ := rules.Lints(context.Background())
		fmt.Fprintf(stdout, "rulebook: OK (%d rules active today, %d lints)\n", len(active), len(lints))
	}

	if _, err := refdata.LoadFile(cfg.RefDataPath); err != nil {
		fmt.Fprintf(stderr, "refdata: FAIL (%v)\n", err)
		failed = true
	} else {
		fmt.Fprintln(stdout, "refdata: OK")
	}

	if cfg.ProfilesDir != "" {
		profiles, err := config.LoadAllProfiles(cfg.ProfilesDir)
		if err != nil {
			fmt.Fprintf(stderr, "profiles: FAIL (%v)\n", err)
			failed = true
		} else {
			fmt.Fprintf(stdout, "profiles: OK (%d entities)\n", len(profiles))
		}
	}

	if failed {
		return 1
	}
	return 0
}

// runHealth probes a running server's /healthz endpoint.
func runHealth(stdout, stderr io.Writer) int {
	cfg := config.Load()
	url := fmt.Sprintf("http://localhost:%s/healthz", cfg.Port)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(stderr, "health: FAIL (%v)\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "health: FAIL (status %d)\n", resp.StatusCode)
		return 1
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		fmt.Fprintf(stderr, "health: FAIL (bad response: %v)\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "health: %s\n", body["status"])
	return 0
}
