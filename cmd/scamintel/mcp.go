package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	scamintelmcp "github.com/hurttlocker/scamintel/internal/mcp"
	"github.com/hurttlocker/scamintel/internal/observe"
)

var mcpHTTPAddr string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the engine as a Model Context Protocol server",
	Long: `Serve extraction and session tools over MCP.

Without --http the server speaks stdio (for desktop agent hosts). With
--http it serves streamable HTTP on /mcp and Prometheus metrics on /metrics.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpHTTPAddr, "http", "", "Listen address for streamable HTTP (e.g., :8080); empty = stdio")
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observe.Default()
	a, err := newApp(ctx, resolved, logger, metrics)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := scamintelmcp.NewServer(scamintelmcp.ServerConfig{
		Pipeline: a.pipeline,
		Sessions: a.sessions,
		Reporter: a.reporter,
		Metrics:  metrics,
		Logger:   logger,
		Version:  version,
	})

	if mcpHTTPAddr == "" {
		logger.Info("serving MCP over stdio", zap.String("version", version))
		return server.ServeStdio(srv)
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", server.NewStreamableHTTPServer(srv, server.WithEndpointPath("/mcp")))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})

	httpSrv := &http.Server{
		Addr:              mcpHTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over HTTP", zap.String("addr", mcpHTTPAddr), zap.String("version", version))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
