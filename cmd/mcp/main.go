package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	mcpadapter "github.com/kirillkom/glossary-rag-gateway/internal/adapters/mcp"
	"github.com/kirillkom/glossary-rag-gateway/internal/bootstrap"
	"github.com/kirillkom/glossary-rag-gateway/internal/config"
	"github.com/kirillkom/glossary-rag-gateway/internal/observability/logging"
)

type CLI struct {
	Run     RunCmd     `cmd:"" default:"withargs" help:"Serve the glossary tools over MCP."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

type RunCmd struct {
	Transport string `help:"Transport: stdio, sse or streamable-http." enum:"stdio,sse,streamable-http" default:"stdio"`
	MountPath string `name:"mount-path" help:"HTTP path the transport is mounted on."`
	Toolset   string `help:"Toolset to expose (catalog or retrieval). Overrides MCP_TOOLSET."`
	Addr      string `help:"Listen address for HTTP transports. Overrides MCP_LISTEN_ADDR."`
}

func (c *RunCmd) Run() error {
	cfg := config.Load()
	if c.Toolset != "" {
		cfg.MCP.Toolset = strings.ToLower(strings.TrimSpace(c.Toolset))
	}
	if c.Addr != "" {
		cfg.MCP.ListenAddr = c.Addr
	}
	// stdout carries protocol frames on the stdio transport.
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.MCP.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tools, err := bootstrap.NewToolServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer tools.Close()

	if cfg.MCP.MetricsPort != "" {
		metricsServer := &http.Server{
			Addr:              ":" + cfg.MCP.MetricsPort,
			Handler:           tools.Metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("mcp_metrics_listening", "port", cfg.MCP.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("mcp_metrics_failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	slog.Info("mcp_toolset_selected", "toolset", cfg.MCP.Toolset, "transport", c.Transport)
	return mcpadapter.Serve(ctx, tools.Server, mcpadapter.ServeOptions{
		Transport: c.Transport,
		Addr:      cfg.MCP.ListenAddr,
		MountPath: c.MountPath,
	})
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("%s %s\n", mcpadapter.ServerName, bootstrap.Version)
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("glossary-mcp"),
		kong.Description("MCP tool gateway for glossary datasets."),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
