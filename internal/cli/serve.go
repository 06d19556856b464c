package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cuivienor/hls-ladder/internal/db"
	"github.com/cuivienor/hls-ladder/internal/httpapi"
	"github.com/cuivienor/hls-ladder/internal/logging"
	"github.com/cuivienor/hls-ladder/internal/service"
	"github.com/cuivienor/hls-ladder/internal/tui"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *options) *cobra.Command {
	var withTUI bool
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the conversion worker and the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts, withTUI, debug)
		},
	}
	cmd.Flags().BoolVar(&withTUI, "tui", false, "Show the dashboard while serving")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	return cmd
}

func serve(ctx context.Context, opts *options, withTUI, debug bool) error {
	cfg := opts.cfg

	// the dashboard owns the terminal, so the log only goes to its file then
	logger, err := logging.NewForJob(cfg.ServiceLogPath(), !withTUI, nil)
	if err != nil {
		return err
	}
	defer logger.Close()
	logger.SetDebug(debug)

	database, err := db.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	svc := service.New(cfg, db.NewSQLiteRepository(database), service.Options{Logger: logger})

	addr := cfg.Addr()
	if opts.server != "" {
		addr = opts.server
	}
	server := httpapi.NewServer(addr, httpapi.NewHandler(svc), cfg.OutputRoot())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := svc.Run(ctx); err != nil {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("admin API listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	if withTUI {
		p := tea.NewProgram(tui.NewApp(tui.FromService(svc)), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			runErr = fmt.Errorf("dashboard: %w", err)
		}
	} else {
		select {
		case <-ctx.Done():
		case runErr = <-errCh:
		}
	}

	logger.Info("shutting down")
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown: %v", err)
	}
	<-workerDone
	return runErr
}

func newTUICmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Show the dashboard for a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := tea.NewProgram(tui.NewApp(opts.client()), tea.WithAltScreen())
			_, err := p.Run()
			return err
		},
	}
}
