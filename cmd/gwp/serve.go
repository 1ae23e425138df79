package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jaakkos/gwp/internal/app"
)

var (
	servePort     int
	serveNoNotify bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard and the MCP HTTP endpoint",
	Long: `Serve the dashboard at /dashboard, its JSON API under /api, the MCP
streamable HTTP endpoint at /mcp and a health check at /health.

Collections are loaded at startup and reloaded whenever "gwp refresh" touches
the refresh signal file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBundle(func(ctx context.Context, b *serverBundle) error {
			port := b.pol.HTTPPort()
			if cmd.Flags().Changed("port") {
				port = servePort
			}
			return runServe(ctx, b, port, !serveNoNotify)
		})
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the GWP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBundle(func(ctx context.Context, b *serverBundle) error {
			return runStdio(ctx, b)
		})
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP port (default from config, 0 picks a free port)")
	serveCmd.Flags().BoolVar(&serveNoNotify, "no-notify", false, "Do not watch the refresh signal file")
}

// withBundle loads the policy, sets up logging and the services, and runs fn
// with a context cancelled on SIGINT/SIGTERM.
func withBundle(fn func(ctx context.Context, b *serverBundle) error) error {
	pol, err := loadPolicy()
	if err != nil {
		return err
	}
	logger := setupLogger(pol.LogFile())
	logger.Printf("Starting gwp %s (backend %s)", Version, pol.APIBaseURL())
	logger.Printf("Log file: %s", pol.LogFile())

	b, err := newServerBundle(pol, logger)
	if err != nil {
		return err
	}
	defer b.cleanup()

	// Keep running when daemonized (nohup, launchd).
	signal.Ignore(syscall.SIGHUP)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = fn(ctx, b)
	logger.Println("Server stopped")
	return err
}

// runServe serves HTTP until ctx is cancelled. The initial load and the
// notifier run alongside the server; a failed load leaves the affected views
// empty until the next refresh.
func runServe(ctx context.Context, b *serverBundle, port int, notify bool) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	srv := newHTTPServer(b, ln.Addr().(*net.TCPAddr).Port)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			b.logger.Printf("HTTP shutdown error: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		initialLoad(ctx, b.store, b.logger)
		return nil
	})
	if notify {
		notifier := app.NewNotifier(b.pol.SignalFilePath(), b.store, b.logger,
			app.WithPollInterval(b.pol.RefreshInterval()))
		g.Go(func() error {
			notifier.Start(ctx)
			return nil
		})
	}
	return g.Wait()
}

// runStdio serves the MCP tools over stdin/stdout until the client goes away
// or ctx is cancelled.
func runStdio(ctx context.Context, b *serverBundle) error {
	initialLoad(ctx, b.store, b.logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	notifier := app.NewNotifier(b.pol.SignalFilePath(), b.store, b.logger,
		app.WithPollInterval(b.pol.RefreshInterval()))
	done := make(chan struct{})
	go func() {
		defer close(done)
		notifier.Start(ctx)
	}()

	b.logger.Println("Stdio ready")
	stdioSrv := server.NewStdioServer(b.mcpServer())
	err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout)
	cancel()
	<-done
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

// newHTTPServer routes the MCP endpoint, the health check and the dashboard.
func newHTTPServer(b *serverBundle, port int) *http.Server {
	baseURL := fmt.Sprintf("http://localhost:%d", port)
	b.logger.Printf("HTTP server on :%d", port)
	b.logger.Printf("  MCP:       %s/mcp", baseURL)
	b.logger.Printf("  Dashboard: %s/dashboard", baseURL)

	mux := http.NewServeMux()
	mux.Handle("/mcp", server.NewStreamableHTTPServer(b.mcpServer()))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","port":%d,"version":%q}`, port, Version)
	})
	b.dashboard().RegisterRoutes(mux)

	return &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
}

// initialLoad fetches every collection once. Failures are logged per
// collection by the store.
func initialLoad(ctx context.Context, store *app.Store, logger *log.Logger) {
	if err := store.RefreshAll(ctx); err != nil {
		logger.Printf("Warning: initial load incomplete: %v", err)
	}
}
