package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gilkh/livret/internal/logging"
	"github.com/gilkh/livret/internal/middleware"
	"github.com/gilkh/livret/internal/pollers"
	"github.com/gilkh/livret/internal/server"
	"github.com/gilkh/livret/internal/version"
)

const limiterSweepInterval = 10 * time.Minute

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the export API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :$PORT)")
	return cmd
}

func runServe(ctx context.Context, addr string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.InfoWithComponent(logging.ComponentStartup, "Starting livret", "version", version.String())

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logging.ErrorWithComponent(logging.ComponentStartup, "Failed to release resources", "error", err)
		}
	}()

	passwordLimiter := middleware.NewKeyedLimiter(a.server.ExportPasswordRate)
	var exportLimiter *middleware.KeyedLimiter
	if a.server.ExportRate > 0 {
		exportLimiter = middleware.NewKeyedLimiter(a.server.ExportRate)
	}

	manager := pollers.NewManager()
	manager.Register(pollers.NewHealthSummary(a.monitor, a.server.HealthLogInterval))
	if len(a.checks) > 0 {
		manager.Register(pollers.NewDependencyCheck(a.server.DependencyInterval, a.checks...))
	}
	manager.Register(pollers.NewLimiterSweeper("password_limiter_sweeper", passwordLimiter, limiterSweepInterval))
	if exportLimiter != nil {
		manager.Register(pollers.NewLimiterSweeper("export_limiter_sweeper", exportLimiter, limiterSweepInterval))
	}
	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := manager.Stop(); err != nil {
			logging.WarnWithComponent(logging.ComponentPoller, "Failed to stop jobs", "error", err)
		}
	}()

	h := a.handlers(passwordLimiter, exportLimiter)
	h.Jobs = manager
	if h.ReadOnly() {
		logging.InfoWithComponent(logging.ComponentStartup, "Data source is read-only, editing routes disabled", "source", a.server.DBType)
	}

	router := server.NewRouter(h, server.Options{
		GinMode:     a.server.GinMode,
		CORSOrigins: a.server.CORSOrigins,
		UploadsDir:  a.render.UploadsDir,
	})

	if addr == "" {
		addr = ":" + a.server.Port
	}
	return server.Run(ctx, addr, router)
}
