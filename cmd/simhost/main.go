package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/beyawnko/Majestik-World/internal/config"
	"github.com/beyawnko/Majestik-World/internal/gateway"
	"github.com/beyawnko/Majestik-World/internal/logging"
	"github.com/beyawnko/Majestik-World/internal/persist"
	"github.com/beyawnko/Majestik-World/internal/replay"
	"github.com/beyawnko/Majestik-World/internal/report"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(name string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m        Majestik-World simulation host     \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mhost:\033[0m %s \033[90m(abi %d)\033[0m\n\n", name, gateway.ABIVersion)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

// ── Host logic ────────────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/simhost.toml"
	if p := os.Getenv("MAJESTIK_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Host.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Load the replay script
	script, err := replay.Load(cfg.Replay.Script)
	if err != nil {
		return err
	}
	printOK(fmt.Sprintf("script %s: %d ticks", cfg.Replay.Script, script.TotalTicks()))

	// 4. Optional PostgreSQL sink for saves and the delta journal
	var (
		saves   *persist.SaveRepo
		journal *persist.JournalWriter
		initCfg []byte
	)
	if cfg.Database.Enabled {
		printSection("database")
		dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		db, err := persist.Open(dbCtx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		schema, err := persist.Migrate(dbCtx, db.Pool)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK(fmt.Sprintf("schema at version %d", schema))

		saves = persist.NewSaveRepo(db)
		if cfg.Database.Journal {
			runID := fmt.Sprintf("%s-%d", script.Name, cfg.Host.StartTime)
			journal = persist.NewJournalWriter(persist.NewJournalRepo(db), runID, 0)
			printOK("journaling as " + runID)
		}
		if cfg.Replay.Resume {
			row, err := saves.Load(dbCtx, cfg.Replay.SaveName)
			if err != nil {
				return fmt.Errorf("load save: %w", err)
			}
			if row == nil {
				return fmt.Errorf("save %q not found", cfg.Replay.SaveName)
			}
			initCfg = row.Config
			printOK(fmt.Sprintf("resuming %q at tick %d", row.Name, row.Tick))
		}
		fmt.Println()
	}

	// 5. Run
	printSection("replay")
	gw := gateway.New(gateway.WithLogger(log.Named("gateway")))
	opts := []replay.Option{
		replay.WithLogger(log.Named("replay")),
		replay.WithReleaseLag(cfg.Replay.ReleaseLag),
	}
	if journal != nil {
		opts = append(opts, replay.WithSink(journal))
	}
	rep, err := replay.NewRunner(gw, opts...).Run(ctx, script, initCfg)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if err := report.Write(os.Stdout, report.Printer(cfg.Host.Language), rep); err != nil {
		return err
	}

	if saves != nil && cfg.Replay.SaveName != "" {
		tick := rep.Ticks[len(rep.Ticks)-1].Tick
		if err := saves.Store(ctx, cfg.Replay.SaveName, tick, rep.Final); err != nil {
			return fmt.Errorf("store save: %w", err)
		}
		log.Info("world saved", zap.String("name", cfg.Replay.SaveName), zap.Uint64("tick", tick))
	}

	stats := gw.Arena().Stats()
	log.Info("host finished",
		zap.Uint64("published", stats.Published),
		zap.Uint64("released", stats.Released),
		zap.Uint64("reclaimed", stats.Reclaimed),
		zap.Int("live", stats.Live),
	)
	return nil
}
