package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/trackflow/internal/api"
	"github.com/joescharf/trackflow/internal/daemon"
	"github.com/joescharf/trackflow/internal/web"
)

const (
	shutdownTimeout = 10 * time.Second
	stopTimeout     = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API and web board server",
	Long: `Start an HTTP server with the REST API under /api/v1 and the web board
at /. By default it listens on port 8080; use --port to change it.

'serve' runs in the foreground. Use 'serve start' to run it in the
background, 'serve stop' to stop it and 'serve status' to check on it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun()
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.PersistentFlags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

// pidFile returns the PID file tracking the background server.
func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "trackflow-serve.pid"))
}

// serveLogPath is where the background server writes its output.
func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "trackflow-serve.log")
}

// newServeHandler wires the API and the web board over the shared store.
func newServeHandler() (http.Handler, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	srv := api.NewServer(s, newTriager(), newAggregator(), logger)
	handler, err := web.Mount(srv.Router())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize web handler: %w", err)
	}
	return handler, nil
}

func serveRun() error {
	handler, err := newServeHandler()
	if err != nil {
		return err
	}

	pf := pidFile()
	if err := pf.Acquire(); err != nil {
		return err
	}
	defer func() { _ = pf.Release() }()

	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()
	ui.Info("Serving TrackFlow at http://localhost%s", addr)
	logger.Info("server started", "addr", addr, "backend", viper.GetString("backend"))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	args := []string{"serve", "--port", strconv.Itoa(viper.GetInt("port"))}
	if cfg := viper.ConfigFileUsed(); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if backend := viper.GetString("backend"); backend != "" {
		args = append(args, "--backend", backend)
	}

	if dryRun {
		ui.DryRunMsg("Would start: %s %v (log: %s)", exe, args, serveLogPath())
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(serveLogPath()), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	// The child writes its own PID file once it has opened the store; record
	// it here too so status works immediately.
	if err := pf.WritePID(child.Process.Pid); err != nil {
		return err
	}
	_ = child.Process.Release()

	ui.Success("Server started (PID %d) on port %d", child.Process.Pid, viper.GetInt("port"))
	ui.Info("Logs: %s", serveLogPath())
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		return fmt.Errorf("server is not running")
	}

	if dryRun {
		ui.DryRunMsg("Would stop server (PID %d)", pid)
		return nil
	}

	err := pf.Stop(sigTERM(), stopTimeout)
	if errors.Is(err, daemon.ErrNotRunning) {
		return fmt.Errorf("server is not running")
	}
	if err != nil {
		ui.Warning("Server did not stop gracefully, killing PID %d", pid)
		if err := pf.Signal(sigKILL()); err != nil {
			return fmt.Errorf("kill server: %w", err)
		}
		_ = pf.Remove()
	}
	ui.Success("Server stopped (PID %d)", pid)
	return nil
}

func serveStatusRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		ui.Info("Server is not running")
		return nil
	}
	ui.Success("Server running (PID %d) on port %d", pid, viper.GetInt("port"))
	ui.Info("Logs: %s", serveLogPath())
	return nil
}
