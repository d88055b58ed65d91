package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"google.golang.org/grpc"

	"github.com/erg0nix/kontekst-governor/internal/config"
	grpcsvc "github.com/erg0nix/kontekst-governor/internal/grpc"
	"github.com/erg0nix/kontekst-governor/internal/mcp"
)

func PIDFile(dataDir string) string {
	return filepath.Join(dataDir, "server.pid")
}

// RunServer serves the Governor over gRPC until a signal or a Shutdown request arrives.
func RunServer(cfg config.Config) error {
	slog.SetDefault(config.NewLogger(cfg.Log, os.Stderr))

	services, err := NewServices(cfg)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.Bind)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", cfg.Bind, err)
	}

	pidFile := PIDFile(cfg.DataDir)
	if err := writePIDFile(pidFile); err != nil {
		slog.Warn("failed to write PID file", "error", err)
	}
	defer os.Remove(pidFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownCh := make(chan struct{}, 1)
	grpcServer := grpc.NewServer()
	grpcsvc.RegisterGovernorServer(grpcServer, &grpcsvc.GovernorHandler{
		Governor:  services.Governor,
		Source:    services.Source,
		Bind:      cfg.Bind,
		DataDir:   cfg.DataDir,
		StartTime: time.Now(),
		StopFunc: func() {
			select {
			case shutdownCh <- struct{}{}:
			default:
			}
		},
	})

	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()
	go services.Monitor.Run(monitorCtx)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()

	slog.Info("governor listening", "address", cfg.Bind, "session", services.Governor.SessionID(), "total", cfg.Budget.Total)

	select {
	case <-ctx.Done():
		slog.Info("received signal, shutting down")
	case <-shutdownCh:
		slog.Info("shutdown requested via rpc")
	case err := <-serveErr:
		return fmt.Errorf("server: serve: %w", err)
	}

	cancelMonitor()

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		slog.Warn("drain timeout, forcing shutdown")
		grpcServer.Stop()
	}

	return nil
}

// RunMCP serves the Governor as MCP tools over stdio. The process owns one session.
func RunMCP(cfg config.Config) error {
	// stdout carries the protocol; logs go to stderr only.
	slog.SetDefault(config.NewLogger(cfg.Log, os.Stderr))

	services, err := NewServices(cfg)
	if err != nil {
		return err
	}

	server, _ := mcp.NewServer(services.Governor, services.Source)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go services.Monitor.Run(ctx)

	slog.Info("governor mcp server starting on stdio", "session", services.Governor.SessionID())

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
	}
	return nil
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write pid file: mkdir: %w", err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}
