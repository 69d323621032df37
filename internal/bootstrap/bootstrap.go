package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/glossary-rag-gateway/internal/adapters/mcp"
	"github.com/kirillkom/glossary-rag-gateway/internal/config"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/ports"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/usecase"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/validation"
	"github.com/kirillkom/glossary-rag-gateway/internal/infrastructure/glossaryapi"
	"github.com/kirillkom/glossary-rag-gateway/internal/infrastructure/llm/openai"
	"github.com/kirillkom/glossary-rag-gateway/internal/infrastructure/queue/nats"
	"github.com/kirillkom/glossary-rag-gateway/internal/infrastructure/ragflow"
	"github.com/kirillkom/glossary-rag-gateway/internal/infrastructure/ratelimit"
	"github.com/kirillkom/glossary-rag-gateway/internal/infrastructure/resilience"
	"github.com/kirillkom/glossary-rag-gateway/internal/infrastructure/upstream"
	"github.com/kirillkom/glossary-rag-gateway/internal/observability/audit"
	"github.com/kirillkom/glossary-rag-gateway/internal/observability/metrics"
)

// Version is reported to MCP clients.
var Version = "dev"

const parseJobTimeout = 2 * time.Minute

// App is the gateway API process.
type App struct {
	Config config.Config

	GlossaryUC *usecase.GlossaryUseCase
	AnswerUC   *usecase.AnswerUseCase

	closeFn func()
}

func New(_ context.Context, cfg config.Config) (*App, error) {
	if err := cfg.ValidateGateway(); err != nil {
		return nil, err
	}

	ragflowCaller, err := upstream.New(upstream.Options{
		BaseURL:    cfg.RAGFlowBaseURL,
		APIKey:     cfg.RAGFlowAPIKey,
		Timeout:    cfg.HTTPTimeout,
		Resilience: resiliencePolicy(cfg.RetryAttempts, cfg.RetryWait, cfg.UpstreamBreakerEnabled),
	})
	if err != nil {
		return nil, fmt.Errorf("init ragflow caller: %w", err)
	}
	openAICaller, err := upstream.New(upstream.Options{
		BaseURL:    openai.NormalizeBaseURL(cfg.OpenAIBaseURL),
		APIKey:     cfg.OpenAIAPIKey,
		Timeout:    cfg.HTTPTimeout,
		Resilience: resiliencePolicy(cfg.RetryAttempts, cfg.RetryWait, cfg.UpstreamBreakerEnabled),
	})
	if err != nil {
		ragflowCaller.Close()
		return nil, fmt.Errorf("init llm caller: %w", err)
	}

	backend := ragflow.New(ragflowCaller)
	completion := openai.New(openAICaller, cfg.OpenAIModel)

	closers := []func(){ragflowCaller.Close, openAICaller.Close}

	var dispatcher ports.ParseDispatcher = usecase.NewDirectParseDispatcher(backend)
	if cfg.NATSURL != "" {
		queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			Executor: resilience.NewExecutor(resiliencePolicy(cfg.RetryAttempts, cfg.RetryWait, cfg.UpstreamBreakerEnabled)),
		})
		if err != nil {
			closeAll(closers)
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		dispatcher = queue
		closers = append(closers, queue.Close)
		slog.Info("parse_dispatch_configured", "mode", "nats", "subject", cfg.NATSSubject)
	} else {
		slog.Info("parse_dispatch_configured", "mode", "inline")
	}

	glossaryUC := usecase.NewGlossaryUseCase(backend, dispatcher)
	answerUC := usecase.NewAnswerUseCase(backend, completion, usecase.AnswerSettings{
		SimilarityThreshold:    cfg.RAGAnswerSimilarityThreshold,
		VectorSimilarityWeight: cfg.RAGAnswerVectorSimilarityWeight,
		DefaultModel:           cfg.OpenAIModel,
	})

	return &App{
		Config:     cfg,
		GlossaryUC: glossaryUC,
		AnswerUC:   answerUC,
		closeFn:    func() { closeAll(closers) },
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// Worker consumes parse jobs from NATS.
type Worker struct {
	Config config.Config

	Queue     ports.ParseQueue
	Processor ports.ParseJobProcessor
	Metrics   *metrics.WorkerMetrics

	closeFn func()
}

func NewWorker(_ context.Context, cfg config.Config) (*Worker, error) {
	if err := cfg.ValidateWorker(); err != nil {
		return nil, err
	}

	ragflowCaller, err := upstream.New(upstream.Options{
		BaseURL:    cfg.RAGFlowBaseURL,
		APIKey:     cfg.RAGFlowAPIKey,
		Timeout:    cfg.HTTPTimeout,
		Resilience: resiliencePolicy(cfg.RetryAttempts, cfg.RetryWait, cfg.UpstreamBreakerEnabled),
	})
	if err != nil {
		return nil, fmt.Errorf("init ragflow caller: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{})
	if err != nil {
		ragflowCaller.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	backend := ragflow.New(ragflowCaller)
	// The worker only triggers parsing; it never dispatches new jobs.
	processor := usecase.NewGlossaryUseCase(backend, usecase.NewDirectParseDispatcher(backend))

	return &Worker{
		Config:    cfg,
		Queue:     queue,
		Processor: processor,
		Metrics:   metrics.NewWorkerMetrics("worker"),
		closeFn: func() {
			queue.Close()
			ragflowCaller.Close()
		},
	}, nil
}

// HandleParseJob runs one job under parseJobTimeout and records worker metrics.
func (w *Worker) HandleParseJob(ctx context.Context, job domain.ParseJob) error {
	w.Metrics.StartParseJob()
	start := time.Now()

	// Shutdown must not abort a job that was already handed to the worker.
	processCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), parseJobTimeout)
	defer cancel()

	err := w.Processor.ProcessParseJob(processCtx, job)
	w.Metrics.FinishParseJob(time.Since(start), err)
	return err
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

// ToolServer is the MCP process.
type ToolServer struct {
	Config config.Config

	Gateway *usecase.ToolGatewayUseCase
	Server  *server.MCPServer
	Metrics *metrics.ToolMetrics

	closeFn func()
}

func NewToolServer(_ context.Context, cfg config.Config) (*ToolServer, error) {
	if err := cfg.ValidateToolServer(); err != nil {
		return nil, err
	}
	mcpCfg := cfg.MCP

	tools, err := usecase.ToolsFor(mcpCfg.Toolset)
	if err != nil {
		return nil, err
	}
	overrides, err := mcpCfg.ToolRateLimits()
	if err != nil {
		return nil, err
	}
	limiter, err := ratelimit.NewLimiter(ratelimit.Config{
		Capacity:  mcpCfg.RateLimitCapacity,
		Interval:  mcpCfg.RateLimitInterval,
		Overrides: overrides,
	}, tools)
	if err != nil {
		return nil, fmt.Errorf("init rate limiter: %w", err)
	}

	validator, err := validation.New(validation.Rules{
		DatasetIDPattern: mcpCfg.DatasetIDPattern,
		MaxQueryLength:   mcpCfg.MaxQueryLength,
		MaxTerms:         mcpCfg.MaxTerms,
		MaxTermLength:    mcpCfg.MaxTermLength,
	})
	if err != nil {
		return nil, fmt.Errorf("init validator: %w", err)
	}

	caller, err := upstream.New(upstream.Options{
		BaseURL:    mcpCfg.APIBaseURL,
		APIKey:     mcpCfg.APIKey,
		Timeout:    mcpCfg.HTTPTimeout,
		Resilience: resiliencePolicy(mcpCfg.RetryAttempts, mcpCfg.RetryWait, cfg.UpstreamBreakerEnabled),
	})
	if err != nil {
		return nil, fmt.Errorf("init glossary api caller: %w", err)
	}
	api := glossaryapi.New(caller)

	toolMetrics := metrics.NewToolMetrics("mcp")
	gateway := usecase.NewToolGatewayUseCase(
		api,
		limiter,
		validator,
		audit.NewLogger(slog.Default()),
		toolMetrics,
		usecase.ToolGatewaySettings{
			SearchTopK:             mcpCfg.SearchTopK,
			DefinitionTopK:         mcpCfg.DefinitionTopK,
			SimilarityThreshold:    mcpCfg.SimilarityThreshold,
			VectorSimilarityWeight: mcpCfg.VectorSimilarityWeight,
		},
	)

	mcpServer, err := mcpadapter.NewServer(gateway, mcpCfg.Toolset, Version)
	if err != nil {
		api.Close()
		return nil, fmt.Errorf("init mcp server: %w", err)
	}

	return &ToolServer{
		Config:  cfg,
		Gateway: gateway,
		Server:  mcpServer,
		Metrics: toolMetrics,
		closeFn: api.Close,
	}, nil
}

func (t *ToolServer) Close() {
	if t.closeFn != nil {
		t.closeFn()
	}
}

func resiliencePolicy(attempts int, wait time.Duration, breakerEnabled bool) resilience.Policy {
	policy := resilience.DefaultPolicy()
	policy.Attempts = attempts
	policy.Delay = wait
	policy.Breaker.Enabled = breakerEnabled
	return policy
}

func closeAll(closers []func()) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}
