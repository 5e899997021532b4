package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/trackflow/internal/analytics"
	"github.com/joescharf/trackflow/internal/board"
	"github.com/joescharf/trackflow/internal/output"
	"github.com/joescharf/trackflow/internal/remote"
	"github.com/joescharf/trackflow/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	logger    *slog.Logger
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "trackflow",
	Short: "TrackFlow - a kanban issue tracker",
	Long: `trackflow tracks issues on a four-column kanban board
(open, in progress, review, closed) with users, labels, filtering,
bulk status changes and analytics.

Running bare 'trackflow' shows the board.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	if dataStore != nil {
		_ = dataStore.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return boardRun()
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/trackflow/config.yaml)")
	rootCmd.PersistentFlags().String("backend", "", "Storage backend: sqlite, memory, remote")
	_ = viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TRACKFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	defaultDir, _ := configDirFunc()
	setConfigDefaults(defaultDir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setConfigDefaults registers every config key with its default value.
func setConfigDefaults(dir string) {
	viper.SetDefault("backend", "sqlite")
	viper.SetDefault("state_dir", dir)
	viper.SetDefault("db_path", filepath.Join(dir, "trackflow.db"))
	viper.SetDefault("seed_file", "")
	viper.SetDefault("remote.url", "http://localhost:8080")
	viper.SetDefault("remote.timeout", remote.DefaultTimeout)
	viper.SetDefault("port", 8080)
	viper.SetDefault("log.level", "warn")
	viper.SetDefault("analytics.recent_days", analytics.DefaultRecentDays)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	logger = newLogger(viper.GetString("log.level"), verbose)

	// Initialize store lazily, only when commands actually need it.
	// This allows config/version commands to run without a db.
}

// newLogger builds a text logger on stderr. Verbose forces debug level.
func newLogger(level string, verbose bool) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	s, err := openStore(context.Background(), viper.GetString("backend"))
	if err != nil {
		return nil, err
	}
	dataStore = s
	return dataStore, nil
}

// openStore opens the configured backend.
func openStore(ctx context.Context, backend string) (store.Store, error) {
	switch backend {
	case "", "sqlite":
		dbPath := viper.GetString("db_path")
		s, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		logger.Debug("opened sqlite store", "path", dbPath)
		return s, nil

	case "memory":
		s := store.NewMemoryStore()
		seed, err := configuredSeed()
		if err != nil {
			return nil, err
		}
		res, err := store.ApplySeed(ctx, s, seed)
		if err != nil {
			return nil, fmt.Errorf("seed memory store: %w", err)
		}
		logger.Debug("seeded memory store", "users", res.Users, "labels", res.Labels, "issues", res.Issues)
		return s, nil

	case "remote":
		url := viper.GetString("remote.url")
		if url == "" {
			return nil, fmt.Errorf("remote backend requires remote.url")
		}
		logger.Debug("using remote store", "url", url)
		return remote.NewClient(url, viper.GetDuration("remote.timeout")), nil

	default:
		return nil, fmt.Errorf("unknown backend %q (want sqlite, memory or remote)", backend)
	}
}

// configuredSeed returns the seed_file contents, or the bundled demo data.
func configuredSeed() (*store.Seed, error) {
	if path := viper.GetString("seed_file"); path != "" {
		return store.LoadSeed(path)
	}
	return store.DemoSeed()
}

func newAggregator() *analytics.Aggregator {
	return analytics.NewAggregator(viper.GetInt("analytics.recent_days"))
}

// newController loads a board controller over the shared store. Toasts go
// to the terminal.
func newController(ctx context.Context) (*board.Controller, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	c := board.NewController(s, ui, logger)
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	return c, nil
}
