package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coursemate/coursemate-backend/internal/pkg/ctxutil"
	"github.com/coursemate/coursemate-backend/internal/pkg/logger"
	"github.com/coursemate/coursemate-backend/internal/types"
)

const maxErrorBodyBytes = 1024

// Document is one embedded chunk as stored in the collection.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  types.Metadata
}

// QueryResult carries one similarity hit. Distance is a relative ranking
// signal only, not a normalized probability.
type QueryResult struct {
	ID       string
	Content  string
	Metadata types.Metadata
	Distance float64
}

type Store struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client

	mu           sync.Mutex
	collectionID string
}

func NewStore(log *logger.Logger, cfg Config) (*Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	s := &Store{
		log:     log.With("service", "ChromaStore"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	log.Info(
		"Chroma store configured",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"vector_dim", cfg.VectorDim,
	)
	return s, nil
}

// Heartbeat is the connectivity probe used before writes.
func (s *Store) Heartbeat(ctx context.Context) error {
	const op = "heartbeat"
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, s.baseURL+"/api/v1/heartbeat", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build heartbeat request failed", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "chroma heartbeat failed", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorRequestFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("chroma heartbeat returned status=%d", resp.StatusCode),
		}
	}
	return nil
}

// Add upserts documents. IDs are caller-stable, so re-adding the same ID
// replaces the previous copy.
func (s *Store) Add(ctx context.Context, docs []Document) error {
	const op = "add"
	if len(docs) == 0 {
		return nil
	}

	ids := make([]string, 0, len(docs))
	embeddings := make([][]float32, 0, len(docs))
	metadatas := make([]map[string]any, 0, len(docs))
	documents := make([]string, 0, len(docs))
	for _, d := range docs {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			return opErr(op, OperationErrorValidation, "document id is required", nil)
		}
		if len(d.Embedding) == 0 {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("document %q has empty embedding", id), nil)
		}
		if s.cfg.VectorDim > 0 && len(d.Embedding) != s.cfg.VectorDim {
			return opErr(
				op,
				OperationErrorValidation,
				fmt.Sprintf(
					"document %q dimension mismatch: expected=%d got=%d",
					id,
					s.cfg.VectorDim,
					len(d.Embedding),
				),
				nil,
			)
		}
		ids = append(ids, id)
		embeddings = append(embeddings, d.Embedding)
		metadatas = append(metadatas, coerceMetadata(d.Metadata))
		documents = append(documents, d.Content)
	}

	collectionID, err := s.ensureCollection(ctx)
	if err != nil {
		return err
	}
	req := map[string]any{
		"ids":        ids,
		"embeddings": embeddings,
		"metadatas":  metadatas,
		"documents":  documents,
	}
	return s.doJSON(ctx, op, http.MethodPost, s.collectionPath(collectionID, "/upsert"), req, nil)
}

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

// Query runs a similarity search. where follows ComposeWhere conventions.
func (s *Store) Query(ctx context.Context, embedding []float32, nResults int, where map[string]any) ([]QueryResult, error) {
	const op = "query"
	if len(embedding) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query embedding required", nil)
	}
	if s.cfg.VectorDim > 0 && len(embedding) != s.cfg.VectorDim {
		return nil, opErr(
			op,
			OperationErrorValidation,
			fmt.Sprintf("query embedding dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(embedding)),
			nil,
		)
	}
	if nResults <= 0 {
		nResults = 5
	}

	collectionID, err := s.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}
	req := map[string]any{
		"query_embeddings": [][]float32{embedding},
		"n_results":        nResults,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if len(where) > 0 {
		req["where"] = where
	}

	var resp queryResponse
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath(collectionID, "/query"), req, &resp); err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return []QueryResult{}, nil
	}

	hits := resp.IDs[0]
	out := make([]QueryResult, 0, len(hits))
	for i, id := range hits {
		r := QueryResult{ID: id}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			r.Content = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			r.Metadata = parseMetadata(resp.Metadatas[0][i])
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			r.Distance = resp.Distances[0][i]
		}
		out = append(out, r)
	}
	return out, nil
}

type getResponse struct {
	IDs []string `json:"ids"`
}

// GetIDs returns document IDs matching where, up to limit.
func (s *Store) GetIDs(ctx context.Context, where map[string]any, limit int) ([]string, error) {
	const op = "get"
	collectionID, err := s.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}
	req := map[string]any{
		"include": []string{},
	}
	if len(where) > 0 {
		req["where"] = where
	}
	if limit > 0 {
		req["limit"] = limit
	}
	var resp getResponse
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath(collectionID, "/get"), req, &resp); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

// DeleteWhere removes every document matching where.
func (s *Store) DeleteWhere(ctx context.Context, where map[string]any) error {
	const op = "delete"
	if len(where) == 0 {
		return opErr(op, OperationErrorValidation, "refusing to delete without a filter", nil)
	}
	collectionID, err := s.ensureCollection(ctx)
	if err != nil {
		return err
	}
	req := map[string]any{"where": where}
	return s.doJSON(ctx, op, http.MethodPost, s.collectionPath(collectionID, "/delete"), req, nil)
}

type collectionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ensureCollection lazily resolves the collection on first use with
// get-or-create semantics, so a wiped backend is recreated transparently.
func (s *Store) ensureCollection(ctx context.Context) (string, error) {
	const op = "ensure_collection"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collectionID != "" {
		return s.collectionID, nil
	}

	req := map[string]any{
		"name":          s.cfg.Collection,
		"get_or_create": true,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
	}
	var resp collectionResponse
	if err := s.doJSON(ctx, op, http.MethodPost, "/api/v1/collections", req, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.ID) == "" {
		return "", opErr(op, OperationErrorDecodeFailed, "collection response missing id", nil)
	}
	s.collectionID = resp.ID
	s.log.Info("Chroma collection ready", "collection", s.cfg.Collection, "collection_id", resp.ID)
	return s.collectionID, nil
}

func (s *Store) collectionPath(collectionID, suffix string) string {
	return "/api/v1/collections/" + collectionID + suffix
}

func (s *Store) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "chroma request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorRequestFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("chroma http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}
	if out == nil {
		return nil
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode chroma response failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

// coerceMetadata renders every scalar to its string form. Chroma constrains
// metadata values to primitives, and a single wire type keeps round-trips
// predictable across backend versions.
func coerceMetadata(meta types.Metadata) map[string]any {
	out := make(map[string]any, len(meta))
	for key, value := range meta {
		out[key] = value.Coerce()
	}
	return out
}

// parseMetadata re-parses stored scalars to their natural types.
func parseMetadata(raw map[string]any) types.Metadata {
	if len(raw) == 0 {
		return types.Metadata{}
	}
	out := make(types.Metadata, len(raw))
	for key, value := range raw {
		switch typed := value.(type) {
		case string:
			out[key] = types.ParseMeta(typed)
		case bool:
			out[key] = types.MetaFlag(typed)
		case float64:
			out[key] = types.MetaNum(typed)
		case json.Number:
			if f, err := typed.Float64(); err == nil {
				out[key] = types.MetaNum(f)
			} else {
				out[key] = types.MetaStr(typed.String())
			}
		case int:
			out[key] = types.MetaNum(float64(typed))
		case int64:
			out[key] = types.MetaNum(float64(typed))
		default:
			out[key] = types.MetaStr(fmt.Sprintf("%v", typed))
		}
	}
	return out
}

// CoerceFilterValue renders a filter operand the same way write-side metadata
// is rendered, so equality filters match stored values.
func CoerceFilterValue(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case types.MetaValue:
		return typed.Coerce()
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprintf("%v", typed)
	}
}
