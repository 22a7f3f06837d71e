package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/scheduler"
	"github.com/kozaktomas/facegate/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance API server",
	Long: `Start the Facegate HTTP API.
The server accepts attendance captures and face enrollments, reports daily
status and weekly clearance, and recomputes clearance on a weekly schedule.
Without DATABASE_URL it runs on an in-memory store.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Bool("no-scheduler", false, "Do not run the weekly clearance recompute")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}

	if a.cfg.Clearance.Schedule != "" && !mustGetBool(cmd, "no-scheduler") {
		sched, err := scheduler.New(a.clearance, a.cfg.Clearance.Schedule, a.cfg.Clearance.Concurrency, nil, a.logger)
		if err != nil {
			return err
		}
		sched.Start(ctx)
		defer sched.Stop()
	}

	server := web.NewServer(&a.cfg.Web, web.Deps{
		Engine:    a.engine,
		Clearance: a.clearance,
		Sites:     a.store,
		Gatherer:  a.registry,
		Logger:    a.logger,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		a.saveIndex()

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("error during shutdown", zap.Error(err))
		}
	}()

	fmt.Printf("Starting Facegate API on http://%s\n", a.cfg.Web.Addr())
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
