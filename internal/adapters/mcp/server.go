// Package mcpadapter serves the glossary tool gateway over the Model Context
// Protocol.
package mcpadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/ports"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/usecase"
)

const (
	ServerName = "glossary-rag-gateway"

	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"

	defaultStreamablePath = "/mcp"
	shutdownTimeout       = 10 * time.Second
)

// NewServer registers the tools of one toolset.
func NewServer(gateway Gateway, toolset, version string) (*server.MCPServer, error) {
	names, err := usecase.ToolsFor(toolset)
	if err != nil {
		return nil, err
	}

	s := server.NewMCPServer(ServerName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	table := newToolTable(gateway)
	for _, name := range names {
		entry, ok := table[name]
		if !ok {
			return nil, domain.WrapError(domain.ErrConfig, "register tools", fmt.Errorf("no handler for tool %q", name))
		}
		s.AddTool(entry.tool, entry.handler)
	}
	return s, nil
}

type ServeOptions struct {
	Transport string
	Addr      string
	MountPath string
}

// Serve blocks until ctx is cancelled or the transport fails.
func Serve(ctx context.Context, s *server.MCPServer, opts ServeOptions) error {
	switch opts.Transport {
	case "", TransportStdio:
		slog.Info("mcp_server_started", "transport", TransportStdio)
		err := server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("serve stdio: %w", err)
		}
		return nil
	case TransportSSE:
		sse := server.NewSSEServer(s, server.WithStaticBasePath(normalizeMountPath(opts.MountPath, "")))
		return serveHTTP(ctx, TransportSSE, opts.Addr, sse.Start, sse.Shutdown)
	case TransportStreamableHTTP:
		streamable := server.NewStreamableHTTPServer(s,
			server.WithEndpointPath(normalizeMountPath(opts.MountPath, defaultStreamablePath)),
		)
		return serveHTTP(ctx, TransportStreamableHTTP, opts.Addr, streamable.Start, streamable.Shutdown)
	default:
		return domain.WrapError(domain.ErrConfig, "serve", fmt.Errorf("unsupported transport %q", opts.Transport))
	}
}

func serveHTTP(
	ctx context.Context,
	transport, addr string,
	start func(string) error,
	shutdown func(context.Context) error,
) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("mcp_server_started", "transport", transport, "addr", addr)
		errCh <- start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve %s: %w", transport, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", transport, err)
	}
	return nil
}

func normalizeMountPath(path, fallback string) string {
	path = strings.TrimSpace(path)
	if path == "" || path == "/" {
		return fallback
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(path, "/")
}

// sessionCaller identifies a client by its MCP session.
type sessionCaller struct {
	id string
}

func (c sessionCaller) ClientID() string { return c.id }

func callerFromContext(ctx context.Context) ports.Caller {
	session := server.ClientSessionFromContext(ctx)
	if session == nil {
		return sessionCaller{}
	}
	return sessionCaller{id: session.SessionID()}
}
