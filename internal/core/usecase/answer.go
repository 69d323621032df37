package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/ports"
	"github.com/kirillkom/glossary-rag-gateway/internal/observability/logging"
)

const (
	DefaultAnswerTopN      = 6
	DefaultMaxContextChars = 6000
)

type AnswerSettings struct {
	SimilarityThreshold    float64
	VectorSimilarityWeight float64
	DefaultModel           string
}

// AnswerUseCase answers a question from the passages of one glossary.
type AnswerUseCase struct {
	retrieval  ports.RetrievalBackend
	completion ports.CompletionBackend
	settings   AnswerSettings
}

func NewAnswerUseCase(
	retrieval ports.RetrievalBackend,
	completion ports.CompletionBackend,
	settings AnswerSettings,
) *AnswerUseCase {
	return &AnswerUseCase{
		retrieval:  retrieval,
		completion: completion,
		settings:   settings,
	}
}

func (uc *AnswerUseCase) Answer(ctx context.Context, req domain.AnswerRequest) (*domain.Answer, error) {
	datasetID := strings.TrimSpace(req.DatasetID)
	if datasetID == "" {
		return nil, newDetailError(domain.ErrInvalidInput, "answer", "dataset_id is required")
	}
	if strings.TrimSpace(req.Question) == "" {
		return nil, newDetailError(domain.ErrInvalidInput, "answer", "question is required")
	}
	topN := req.TopN
	if topN <= 0 {
		topN = DefaultAnswerTopN
	}
	budget := req.MaxContextChars
	if budget <= 0 {
		budget = DefaultMaxContextChars
	}

	// Over-fetch so filtering and ordering happen here with one threshold.
	result, err := uc.retrieval.Retrieve(ctx, domain.RetrievalQuery{
		DatasetID:              datasetID,
		Question:               req.Question,
		TopK:                   domain.MaxTopK,
		SimilarityThreshold:    uc.settings.SimilarityThreshold,
		VectorSimilarityWeight: uc.settings.VectorSimilarityWeight,
		Keyword:                false,
		Highlight:              false,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	selected := SelectChunks(result.Chunks, uc.settings.SimilarityThreshold, topN)
	contexts, references := BuildContext(selected, budget)

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = uc.settings.DefaultModel
	}

	slog.Debug("answer_context_built",
		"request_id", logging.RequestIDFromContext(ctx),
		"dataset_id", datasetID,
		"retrieved", len(result.Chunks),
		"selected", len(selected),
		"cited", len(contexts),
		"model", model,
	)

	text, err := uc.completion.Chat(ctx, buildAnswerMessages(req.Question, contexts), model)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, newDetailError(domain.ErrUpstream, "generate answer", "LLM provider returned an empty message")
	}

	return &domain.Answer{
		Answer:     text,
		References: references,
	}, nil
}
