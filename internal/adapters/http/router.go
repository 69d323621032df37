package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/routers"

	"github.com/kirillkom/glossary-rag-gateway/internal/config"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/ports"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/usecase"
	"github.com/kirillkom/glossary-rag-gateway/internal/observability/metrics"
)

const (
	serviceName    = "api"
	answerEndpoint = "/rag/answer"

	maxRequestBodyBytes = 8 << 20
	maxUploadBodyBytes  = 64 << 20

	defaultRetrieveTopK           = 8
	defaultSimilarityThreshold    = 0.2
	defaultVectorSimilarityWeight = 0.3
	defaultRetrieveHighlight      = true
)

type Router struct {
	glossaries ports.GlossaryService
	answers    ports.AnswerService

	apiKey             string
	rateLimitRPS       float64
	rateLimitBurst     int
	maxInFlight        int
	queueTimeout       time.Duration
	corsAllowedOrigins []string

	metrics *metrics.HTTPServerMetrics
	openAPI routers.Router
}

func NewRouter(cfg config.Config, glossaries ports.GlossaryService, answers ports.AnswerService) *Router {
	openAPI, err := loadOpenAPIRouter()
	if err != nil {
		panic(fmt.Sprintf("embedded openapi spec: %v", err))
	}

	return &Router{
		glossaries: glossaries,
		answers:    answers,

		apiKey:             cfg.APIKey,
		rateLimitRPS:       cfg.APIRateLimitRPS,
		rateLimitBurst:     cfg.APIRateLimitBurst,
		maxInFlight:        cfg.APIMaxInFlight,
		queueTimeout:       cfg.APIQueueTimeout,
		corsAllowedOrigins: cfg.CORSAllowedOrigins,

		metrics: metrics.NewHTTPServerMetrics(serviceName),
		openAPI: openAPI,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("GET /metrics", rt.metrics.Handler())
	mux.HandleFunc("GET /openapi.yaml", rt.serveOpenAPISpec)
	mux.HandleFunc("POST /glossaries", rt.createGlossary)
	mux.HandleFunc("GET /glossaries", rt.listGlossaries)
	mux.HandleFunc("POST /glossaries/{dataset_id}/terms", rt.ingestTerms)
	mux.HandleFunc("POST /glossaries/{dataset_id}/files", rt.ingestFiles)
	mux.HandleFunc("POST /glossaries/{dataset_id}/retrieve", rt.retrieve)
	mux.HandleFunc("POST "+answerEndpoint, rt.answer)

	onReject := rt.metrics.RecordRejected

	var handler http.Handler = mux
	handler = openAPIValidationMiddleware(rt.openAPI, handler)
	handler = backpressureMiddleware(handler, rt.maxInFlight, rt.queueTimeout, onReject)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst, onReject)
	handler = authMiddleware(rt.apiKey, handler)
	handler = corsMiddleware(rt.corsAllowedOrigins, handler)
	handler = rt.metrics.Middleware(handler)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createGlossaryRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	ChunkMethod *string `json:"chunk_method"`
}

func (rt *Router) createGlossary(w http.ResponseWriter, r *http.Request) {
	var req createGlossaryRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	dataset, err := rt.glossaries.EnsureGlossary(r.Context(), domain.DatasetSpec{
		Name:        req.Name,
		Description: derefString(req.Description),
		ChunkMethod: derefString(req.ChunkMethod),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataset)
}

func (rt *Router) listGlossaries(w http.ResponseWriter, r *http.Request) {
	list, err := rt.glossaries.ListGlossaries(r.Context(), strings.TrimSpace(r.URL.Query().Get("name")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type ingestTermsRequest struct {
	Terms  []domain.TermEntry `json:"terms"`
	Upsert bool               `json:"upsert"`
}

func (rt *Router) ingestTerms(w http.ResponseWriter, r *http.Request) {
	var req ingestTermsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	ingestion, err := rt.glossaries.IngestTerms(r.Context(), r.PathValue("dataset_id"), req.Terms)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestion)
}

func (rt *Router) ingestFiles(w http.ResponseWriter, r *http.Request) {
	files, ok := readUploadedFiles(w, r)
	if !ok {
		return
	}

	ingestion, err := rt.glossaries.IngestFiles(r.Context(), r.PathValue("dataset_id"), files)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestion)
}

// readUploadedFiles collects every part sent under the "files" or "file"
// form field. Other fields are ignored.
func readUploadedFiles(w http.ResponseWriter, r *http.Request) ([]domain.UploadFile, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodyBytes)
	reader, err := r.MultipartReader()
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Request body must be multipart/form-data.")
		return nil, false
	}

	var files []domain.UploadFile
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return files, true
		}
		if err != nil {
			writeUploadError(w, err)
			return nil, false
		}
		if name := part.FormName(); name != "files" && name != "file" {
			_ = part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			writeUploadError(w, err)
			return nil, false
		}
		files = append(files, domain.UploadFile{
			Name:        part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		})
	}
}

func writeUploadError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		writeDetail(w, http.StatusRequestEntityTooLarge, "Request body is too large.")
		return
	}
	writeDetail(w, http.StatusBadRequest, "Multipart body could not be read.")
}

type retrieveRequest struct {
	Question               string   `json:"question"`
	TopK                   *int     `json:"top_k"`
	SimilarityThreshold    *float64 `json:"similarity_threshold"`
	VectorSimilarityWeight *float64 `json:"vector_similarity_weight"`
	Keyword                *bool    `json:"keyword"`
	Highlight              *bool    `json:"highlight"`
}

func (req retrieveRequest) toQuery(datasetID string) domain.RetrievalQuery {
	query := domain.RetrievalQuery{
		DatasetID:              datasetID,
		Question:               req.Question,
		TopK:                   defaultRetrieveTopK,
		SimilarityThreshold:    defaultSimilarityThreshold,
		VectorSimilarityWeight: defaultVectorSimilarityWeight,
		Highlight:              defaultRetrieveHighlight,
	}
	if req.TopK != nil {
		query.TopK = *req.TopK
	}
	if req.SimilarityThreshold != nil {
		query.SimilarityThreshold = *req.SimilarityThreshold
	}
	if req.VectorSimilarityWeight != nil {
		query.VectorSimilarityWeight = *req.VectorSimilarityWeight
	}
	if req.Keyword != nil {
		query.Keyword = *req.Keyword
	}
	if req.Highlight != nil {
		query.Highlight = *req.Highlight
	}
	return query
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := rt.glossaries.Retrieve(r.Context(), req.toQuery(r.PathValue("dataset_id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type answerRequest struct {
	DatasetID       string  `json:"dataset_id"`
	Question        string  `json:"question"`
	TopN            *int    `json:"top_n"`
	MaxContextChars *int    `json:"max_context_chars"`
	Model           *string `json:"model"`
}

func (rt *Router) answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	input := domain.AnswerRequest{
		DatasetID:       req.DatasetID,
		Question:        req.Question,
		TopN:            usecase.DefaultAnswerTopN,
		MaxContextChars: usecase.DefaultMaxContextChars,
		Model:           derefString(req.Model),
	}
	if req.TopN != nil {
		input.TopN = *req.TopN
	}
	if req.MaxContextChars != nil {
		input.MaxContextChars = *req.MaxContextChars
	}

	start := time.Now()
	answer, err := rt.answers.Answer(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.metrics.RecordRAGObservation(answerEndpoint, len(answer.References), time.Since(start))

	writeJSON(w, http.StatusOK, answer)
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, out any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(out); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			writeDetail(w, http.StatusRequestEntityTooLarge, "Request body is too large.")
		case errors.Is(err, io.EOF):
			writeDetail(w, http.StatusBadRequest, "Request body is required.")
		default:
			writeDetail(w, http.StatusBadRequest, "Request body is not valid JSON.")
		}
		return false
	}
	return true
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
