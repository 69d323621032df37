package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
)

func TestRecordWritesStructuredEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	logger.Record(context.Background(), domain.ToolInvocationAudit{
		Tool:      "search_terms",
		RequestID: "abc123",
		ClientID:  "session-1",
		Status:    domain.InvocationError,
		Duration:  12345678 * time.Nanosecond,
		Arguments: map[string]any{"dataset_id": "ds-1", "query_length": 6},
		Error:     "Upstream request failed with status 502: Bad Gateway",
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log record: %v", err)
	}
	if record["level"] != "WARN" || record["msg"] != "tool_invocation" || record["event"] != "tool_invocation" {
		t.Fatalf("unexpected record header %v", record)
	}
	if record["duration_ms"] != 12.35 {
		t.Fatalf("expected duration rounded to 2 decimals, got %v", record["duration_ms"])
	}
	if record["client_id"] != "session-1" || record["timestamp"] != "2024-01-02T03:04:05Z" {
		t.Fatalf("unexpected record %v", record)
	}
	args, _ := record["arguments"].(map[string]any)
	if args["dataset_id"] != "ds-1" {
		t.Fatalf("unexpected arguments %v", record["arguments"])
	}
}

func TestRecordOmitsEmptyOptionalFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	logger.Record(context.Background(), domain.ToolInvocationAudit{
		Tool:      "list_glossaries",
		RequestID: "r1",
		Status:    domain.InvocationSuccess,
	})

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log record: %v", err)
	}
	if record["level"] != "INFO" {
		t.Fatalf("expected INFO, got %v", record["level"])
	}
	if _, ok := record["client_id"]; ok {
		t.Fatalf("client_id must be omitted when empty")
	}
	if _, ok := record["error"]; ok {
		t.Fatalf("error must be omitted on success")
	}
}
