// ABOUTME: Entry point for pnm-store, an inspection tool for session databases
// ABOUTME: Reads and writes partitions, tears sessions down and runs the stale scan on demand

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/pnm-localstore/internal/config"
	"github.com/2389/pnm-localstore/internal/engine"
	"github.com/2389/pnm-localstore/internal/engine/memory"
	"github.com/2389/pnm-localstore/internal/engine/redis"
	"github.com/2389/pnm-localstore/internal/engine/sqlite"
	"github.com/2389/pnm-localstore/internal/partition"
	"github.com/2389/pnm-localstore/internal/sessionstore"
)

// Version is set by goreleaser at build time.
var version = "dev"

// getConfigPath returns the path to the config file.
// Priority: PNM_STORE_CONFIG env var > XDG_CONFIG_HOME/pnm/store.yaml > ~/.config/pnm/store.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PNM_STORE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "store.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "pnm", "store.yaml")
}

// getDataPath returns the default directory for SQLite session databases.
// Priority: XDG_DATA_HOME/pnm/stores > ~/.local/share/pnm/stores
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "stores" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "pnm", "stores")
}

func usage() {
	fmt.Println("Usage: pnm-store <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  put SESSION USER PARTITION KEY VALUE   Store a JSON (or plain string) value")
	fmt.Println("  get SESSION USER PARTITION KEY         Print a stored value")
	fmt.Println("  getall SESSION USER PARTITION          Print every value in a partition")
	fmt.Println("  teardown SESSION USER                  Delete a session database")
	fmt.Println("  scan                                   Delete stale session databases")
	fmt.Println("  list                                   List session databases")
	fmt.Println("  partitions                             List partition names")
	fmt.Println("  version                                Print the version")
	fmt.Println()
	fmt.Println("put and teardown open the session like a client would: they create the")
	fmt.Println("database if needed and run the stale scan. get and getall require an")
	fmt.Println("existing database.")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Args[1], os.Args[2:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string) error {
	switch command {
	case "partitions":
		for _, p := range partition.All() {
			fmt.Println(p)
		}
		return nil
	case "version":
		fmt.Println(version)
		return nil
	case "put", "get", "getall", "teardown", "scan", "list":
	default:
		usage()
		return fmt.Errorf("unknown command: %s", command)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	eng, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening storage engine: %w", err)
	}
	defer eng.Close()

	switch command {
	case "scan":
		return runScan(ctx, eng, cfg, logger)
	case "list":
		return runList(ctx, eng)
	}

	return runSession(ctx, eng, cfg, logger, command, args)
}

// loadConfig reads the config file, falling back to defaults when none exists.
func loadConfig() (*config.Config, error) {
	path := getConfigPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return config.Default(getDataPath())
	}
	return config.Load(path)
}

func openEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.Engine, error) {
	switch cfg.Storage.Engine {
	case config.EngineSQLite:
		return sqlite.New(sqlite.Config{
			Dir:    cfg.Storage.Dir,
			Driver: cfg.Storage.Driver,
			Logger: logger,
		})
	case config.EngineRedis:
		return redis.New(ctx, redis.Config{
			URL:       cfg.Storage.RedisURL,
			Namespace: cfg.Storage.RedisNamespace,
			Logger:    logger,
		})
	case config.EngineMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}

func runSession(ctx context.Context, eng engine.Engine, cfg *config.Config, logger *slog.Logger, command string, args []string) error {
	want := map[string]int{"put": 5, "get": 4, "getall": 3, "teardown": 2}[command]
	if len(args) != want {
		usage()
		return fmt.Errorf("%s expects %d arguments, got %d", command, want, len(args))
	}

	if command == "get" || command == "getall" {
		if err := requireDatabase(ctx, eng, args[0], args[1]); err != nil {
			return err
		}
	}

	m := sessionstore.New(eng,
		sessionstore.WithLogger(logger),
		sessionstore.WithRetention(cfg.Retention),
	)
	if err := m.Init(ctx, args[0], args[1]); err != nil {
		return err
	}
	defer m.Wait()
	defer func() {
		if err := m.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("closing session database", "error", err)
		}
	}()

	if command == "teardown" {
		if err := m.Teardown(ctx); err != nil {
			return err
		}
		color.Green("✓ deleted %s", sessionstoreName(args[0], args[1]))
		return nil
	}

	p, err := partition.Parse(args[2])
	if err != nil {
		return err
	}

	switch command {
	case "put":
		if err := m.Put(ctx, p, args[3], parseValue(args[4])); err != nil {
			return err
		}
		color.Green("✓ stored %s/%s", p, args[3])
	case "get":
		v, err := m.Get(ctx, p, args[3])
		if errors.Is(err, sessionstore.ErrNotFound) {
			return fmt.Errorf("%s/%s not found", p, args[3])
		}
		if err != nil {
			return err
		}
		fmt.Println(string(v))
	case "getall":
		values, err := m.GetAll(ctx, p)
		if err != nil {
			return err
		}
		for _, v := range values {
			fmt.Println(string(v))
		}
	}
	return nil
}

func runScan(ctx context.Context, eng engine.Engine, cfg *config.Config, logger *slog.Logger) error {
	s := sessionstore.NewScanner(eng, sessionstore.ScannerConfig{
		Retention: cfg.Retention,
		Logger:    logger,
	})
	report := s.Scan(ctx, "")
	if report.Unsupported {
		return fmt.Errorf("storage engine %q cannot enumerate databases", cfg.Storage.Engine)
	}

	gray := color.New(color.FgHiBlack)
	for _, c := range report.Candidates {
		switch c.Action {
		case sessionstore.ActionDeleted:
			color.New(color.FgYellow).Printf("  deleted  ")
			fmt.Print(c.Name)
			gray.Printf(" (%s)\n", c.Reason)
		case sessionstore.ActionKept:
			color.New(color.FgGreen).Printf("  kept     ")
			fmt.Println(c.Name)
		case sessionstore.ActionErrored:
			color.New(color.FgRed).Printf("  error    ")
			fmt.Print(c.Name)
			gray.Printf(" (%v)\n", c.Err)
		}
	}
	fmt.Printf("scanned %d, deleted %d, kept %d, errors %d\n",
		report.Scanned, report.Deleted, report.Kept, report.Errored)
	return report.Err
}

func runList(ctx context.Context, eng engine.Engine) error {
	names, err := engine.ListNames(ctx, eng, sessionstore.NamePrefix)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

// requireDatabase fails when the session database does not exist, so read
// commands never create one or start a scan. Engines that cannot enumerate
// are trusted.
func requireDatabase(ctx context.Context, eng engine.Engine, sessionID, userID string) error {
	name, err := sessionstore.DatabaseName(sessionID, userID)
	if err != nil {
		return err
	}
	names, err := engine.ListNames(ctx, eng, name)
	if errors.Is(err, engine.ErrEnumerationUnsupported) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("listing databases: %w", err)
	}
	if !slices.Contains(names, name) {
		return fmt.Errorf("no session database %s", name)
	}
	return nil
}

// parseValue keeps valid JSON as-is and treats anything else as a plain string.
func parseValue(arg string) any {
	if json.Valid([]byte(arg)) {
		return json.RawMessage(arg)
	}
	return arg
}

func sessionstoreName(sessionID, userID string) string {
	name, err := sessionstore.DatabaseName(sessionID, userID)
	if err != nil {
		return sessionID + "/" + userID
	}
	return name
}
