package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/glossary-rag-gateway/internal/config"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
	"github.com/kirillkom/glossary-rag-gateway/internal/observability/metrics"
)

func toolServerConfig(toolset string) config.Config {
	return config.Config{
		UpstreamBreakerEnabled: true,
		MCP: config.MCPConfig{
			APIBaseURL:             "http://127.0.0.1:8080",
			APIKey:                 "mcp-key",
			Toolset:                toolset,
			HTTPTimeout:            time.Second,
			RetryAttempts:          1,
			RateLimitCapacity:      10,
			RateLimitInterval:      time.Minute,
			ToolRateLimitsRaw:      `{"search_terms": 2}`,
			MaxQueryLength:         256,
			MaxTerms:               10,
			MaxTermLength:          128,
			DatasetIDPattern:       `^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`,
			SearchTopK:             8,
			DefinitionTopK:         12,
			SimilarityThreshold:    0.2,
			VectorSimilarityWeight: 0.3,
		},
	}
}

func TestNewToolServerServesSelectedToolset(t *testing.T) {
	tools, err := NewToolServer(context.Background(), toolServerConfig("catalog"))
	if err != nil {
		t.Fatalf("NewToolServer() error = %v", err)
	}
	t.Cleanup(tools.Close)

	response := tools.Server.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("marshal tools/list: %v", err)
	}
	for _, name := range []string{"list_glossaries", "get_glossary", "search_terms", "retrieve_definitions"} {
		if !strings.Contains(string(raw), name) {
			t.Fatalf("expected %s in %s", name, raw)
		}
	}
	if strings.Contains(string(raw), "retrieve_docs") {
		t.Fatalf("retrieval tool leaked into catalog toolset")
	}
}

func TestNewToolServerRejectsInvalidConfig(t *testing.T) {
	cfg := toolServerConfig("catalog")
	cfg.MCP.APIKey = ""
	if _, err := NewToolServer(context.Background(), cfg); !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig for missing key, got %v", err)
	}

	cfg = toolServerConfig("catalog")
	cfg.MCP.ToolRateLimitsRaw = `{"search_terms": 0}`
	if _, err := NewToolServer(context.Background(), cfg); !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig for zero override, got %v", err)
	}
}

func TestNewRunsParseInlineWithoutNATS(t *testing.T) {
	app, err := New(context.Background(), config.Config{
		RAGFlowBaseURL:                  "http://127.0.0.1:9380",
		RAGFlowAPIKey:                   "ragflow-key",
		OpenAIBaseURL:                   "http://127.0.0.1:9999",
		OpenAIAPIKey:                    "openai-key",
		OpenAIModel:                     "gpt-4o-mini",
		RetryAttempts:                   1,
		RAGAnswerSimilarityThreshold:    0.2,
		RAGAnswerVectorSimilarityWeight: 0.3,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(app.Close)
	if app.GlossaryUC == nil || app.AnswerUC == nil {
		t.Fatalf("expected use cases to be wired")
	}
}

func TestNewRequiresCompletionKey(t *testing.T) {
	_, err := New(context.Background(), config.Config{RAGFlowAPIKey: "ragflow-key"})
	if !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

type parseProcessorFake struct {
	jobs     []domain.ParseJob
	deadline bool
	ctxErr   error
	err      error
}

func (f *parseProcessorFake) ProcessParseJob(ctx context.Context, job domain.ParseJob) error {
	f.jobs = append(f.jobs, job)
	_, f.deadline = ctx.Deadline()
	f.ctxErr = ctx.Err()
	return f.err
}

func TestWorkerHandleParseJobAppliesTimeout(t *testing.T) {
	processor := &parseProcessorFake{}
	worker := &Worker{Processor: processor, Metrics: metrics.NewWorkerMetrics("worker")}

	job := domain.ParseJob{DatasetID: "ds-1", DocumentIDs: []string{"doc-1"}}
	if err := worker.HandleParseJob(context.Background(), job); err != nil {
		t.Fatalf("HandleParseJob() error = %v", err)
	}
	if len(processor.jobs) != 1 || processor.jobs[0].DatasetID != "ds-1" {
		t.Fatalf("unexpected jobs %+v", processor.jobs)
	}
	if !processor.deadline {
		t.Fatalf("expected a bounded context")
	}

	processor.err = errors.New("parse failed")
	if err := worker.HandleParseJob(context.Background(), job); !errors.Is(err, processor.err) {
		t.Fatalf("expected processor error, got %v", err)
	}
}

func TestWorkerHandleParseJobSurvivesShutdown(t *testing.T) {
	processor := &parseProcessorFake{}
	worker := &Worker{Processor: processor, Metrics: metrics.NewWorkerMetrics("worker")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job := domain.ParseJob{DatasetID: "ds-1", DocumentIDs: []string{"doc-1"}}
	if err := worker.HandleParseJob(ctx, job); err != nil {
		t.Fatalf("HandleParseJob() error = %v", err)
	}
	if processor.ctxErr != nil {
		t.Fatalf("expected a live context after shutdown, got %v", processor.ctxErr)
	}
	if !processor.deadline {
		t.Fatalf("expected the job timeout to still apply")
	}
}
