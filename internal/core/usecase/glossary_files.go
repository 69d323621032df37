package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
	"github.com/kirillkom/glossary-rag-gateway/internal/observability/logging"
)

// Files are passed to the backend as-is; the backend parses them.
var allowedFileSuffixes = map[string]bool{
	".txt":  true,
	".pdf":  true,
	".docx": true,
}

// IngestFiles uploads source files into a dataset and schedules parsing for
// every document the backend accepted. Empty files are skipped.
func (uc *GlossaryUseCase) IngestFiles(ctx context.Context, datasetID string, files []domain.UploadFile) (*domain.FileIngestion, error) {
	const op = "ingest files"
	datasetID = strings.TrimSpace(datasetID)
	if datasetID == "" {
		return nil, newDetailError(domain.ErrInvalidInput, op, "dataset_id is required")
	}
	if len(files) == 0 {
		return nil, newDetailError(domain.ErrInvalidInput, op, "No files uploaded.")
	}

	outbound := make([]domain.UploadFile, 0, len(files))
	for _, file := range files {
		if strings.TrimSpace(file.Name) == "" {
			return nil, newDetailError(domain.ErrInvalidInput, op, "Uploaded file is missing a filename.")
		}
		suffix := strings.ToLower(path.Ext(file.Name))
		if suffix == ".csv" {
			return nil, newDetailError(domain.ErrInvalidInput, op, "Unsupported file type: .csv. Send CSV glossaries as terms.")
		}
		if !allowedFileSuffixes[suffix] {
			return nil, newDetailError(domain.ErrInvalidInput, op, "Unsupported file type: %s", suffix)
		}
		if len(file.Data) == 0 {
			continue
		}
		if file.ContentType == "" {
			file.ContentType = "application/octet-stream"
		}
		outbound = append(outbound, file)
	}
	if len(outbound) == 0 {
		return nil, newDetailError(domain.ErrInvalidInput, op, "No valid files to ingest.")
	}

	docs, err := uc.backend.UploadDocuments(ctx, datasetID, outbound)
	if err != nil {
		return nil, fmt.Errorf("upload documents: %w", err)
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.ID != "" {
			ids = append(ids, doc.ID)
		}
	}
	if len(ids) > 0 {
		if err := uc.parser.DispatchParse(ctx, domain.ParseJob{DatasetID: datasetID, DocumentIDs: ids}); err != nil {
			return nil, fmt.Errorf("dispatch parse: %w", err)
		}
	}

	slog.Info("glossary_files_ingested",
		"request_id", logging.RequestIDFromContext(ctx),
		"dataset_id", datasetID,
		"files", len(outbound),
		"documents", len(ids),
	)
	if docs == nil {
		docs = []domain.Document{}
	}
	return &domain.FileIngestion{Documents: docs}, nil
}
