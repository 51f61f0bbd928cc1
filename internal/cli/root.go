// Package cli implements the taskorchestrator command-line interface.
package cli

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskorchestrator/taskorchestrator/internal/config"
	"github.com/taskorchestrator/taskorchestrator/internal/store"
	"github.com/taskorchestrator/taskorchestrator/internal/store/driver"
)

var (
	cfgFile string
	dbPath  string
	verbose bool
	quiet   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "taskorchestrator",
	Short: "MCP task orchestration server",
	Long: `taskorchestrator manages hierarchical work for AI agents: projects
hold features, features hold tasks, and every container moves through a
configurable status flow with dependency checks and cascade rules.

The server speaks the Model Context Protocol over stdin/stdout, one
JSON-RPC message per line. All logging goes to stderr so stdout stays
a clean protocol channel.

Quick start:
  taskorchestrator serve            Start the MCP server on stdio
  taskorchestrator config show      Print the effective configuration
  taskorchestrator version          Show version information`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initEnv)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .taskorchestrator/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path or postgres:// DSN (default is .taskorchestrator/orchestrator.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "errors only")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initEnv binds TASKORCH_* environment variables under the flags.
func initEnv() {
	viper.SetEnvPrefix("TASKORCH")
	viper.AutomaticEnv()

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
}

// newLogger builds the process logger on stderr: readable text on a
// terminal, JSON lines otherwise. stdout is reserved for the protocol.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// loadConfig resolves the engine configuration, honoring --config and
// TASKORCH_CONFIG before the standard search path.
func loadConfig(logger *slog.Logger) *config.Config {
	path := cfgFile
	if path == "" {
		path = viper.GetString("config")
	}
	if path == "" {
		return config.Load(logger)
	}

	cfg, err := config.LoadFile(path, logger)
	if err != nil {
		logger.Warn("cannot load config file, using defaults", "path", path, "error", err)
		return config.Default()
	}
	return cfg
}

// resolveDSN returns the database location: --db, then TASKORCH_DB,
// then orchestrator.db next to the config file.
func resolveDSN() string {
	if dbPath != "" {
		return dbPath
	}
	if p := viper.GetString("db"); p != "" {
		return p
	}
	root := os.Getenv(config.EnvConfigDir)
	if root == "" {
		root = "."
	}
	return filepath.Join(root, config.Dir, "orchestrator.db")
}

// openStore opens the store for a DSN, picking PostgreSQL for
// postgres:// URLs and SQLite for plain paths.
func openStore(dsn string) (*store.Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return store.OpenDSN(driver.DialectPostgres, dsn)
	}
	return store.Open(dsn)
}
