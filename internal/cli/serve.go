package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskorchestrator/taskorchestrator/internal/cascade"
	"github.com/taskorchestrator/taskorchestrator/internal/lock"
	"github.com/taskorchestrator/taskorchestrator/internal/mcp"
	"github.com/taskorchestrator/taskorchestrator/internal/progression"
	"github.com/taskorchestrator/taskorchestrator/internal/template"
	"github.com/taskorchestrator/taskorchestrator/internal/tools"
	"github.com/taskorchestrator/taskorchestrator/internal/validation"
)

// newServeCmd creates the serve command for the MCP server.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long: `Start the task orchestration server.

The server reads JSON-RPC 2.0 requests from stdin and writes responses
to stdout, one JSON object per line, as MCP clients expect. Register it
with a client like:

  {"command": "taskorchestrator", "args": ["serve"]}

The database is created on first start. Point --db at a file path for
SQLite or at a postgres:// DSN for PostgreSQL.

The server stops when stdin closes or on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg := loadConfig(logger)

			dsn := resolveDSN()
			st, err := openStore(dsn)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() { _ = st.Close() }()

			logger.Info("store ready", "dsn", dsn, "dialect", st.Dialect())

			flows := cfg.FlowSet(logger)
			prog := progression.NewService(flows, st, st, st, st)
			valid := validation.NewValidator(prog)

			deps := tools.Deps{
				Repos:     st,
				Progress:  prog,
				Validate:  valid,
				Cascades:  cascade.NewService(st, prog, valid, cfg, logger),
				Templates: template.NewEngine(st),
				Locks:     lock.NewKeyedLock(),
				Logger:    logger,
			}

			registry := mcp.NewRegistry()
			tools.Register(registry, deps)

			ctx, cancel := setupSignalHandler(logger)
			defer cancel()

			info := mcp.ServerInfo{Name: "taskorchestrator", Version: version}
			return mcp.NewServer(registry, info, logger).Run(ctx)
		},
	}
}
