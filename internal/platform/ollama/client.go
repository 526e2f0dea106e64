package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coursemate/coursemate-backend/internal/pkg/ctxutil"
	"github.com/coursemate/coursemate-backend/internal/pkg/logger"
)

const (
	defaultBaseURL    = "http://localhost:11434"
	defaultEmbedModel = "nomic-embed-text"
	defaultGenModel   = "llama3.1"
	maxErrorBodyBytes = 1024
)

type Config struct {
	BaseURL    string
	EmbedModel string
	GenModel   string
	Timeout    time.Duration
}

func ResolveConfigFromEnv() Config {
	cfg := Config{
		BaseURL:    strings.TrimSpace(os.Getenv("OLLAMA_URL")),
		EmbedModel: strings.TrimSpace(os.Getenv("OLLAMA_EMBED_MODEL")),
		GenModel:   strings.TrimSpace(os.Getenv("OLLAMA_GEN_MODEL")),
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = defaultEmbedModel
	}
	if cfg.GenModel == "" {
		cfg.GenModel = defaultGenModel
	}
	if v := strings.TrimSpace(os.Getenv("OLLAMA_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.Timeout = time.Duration(parsed) * time.Second
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return cfg
}

type OperationErrorCode string

const (
	OperationErrorValidation      OperationErrorCode = "validation_failed"
	OperationErrorEncodeFailed    OperationErrorCode = "encode_failed"
	OperationErrorDecodeFailed    OperationErrorCode = "decode_failed"
	OperationErrorTransportFailed OperationErrorCode = "transport_failed"
	OperationErrorTimeout         OperationErrorCode = "timeout"
	OperationErrorRequestFailed   OperationErrorCode = "request_failed"
	OperationErrorEmptyResult     OperationErrorCode = "empty_result"
)

type OperationError struct {
	Code       OperationErrorCode
	Operation  string
	StatusCode int
	Message    string
	Cause      error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "ollama operation failed"
	}
	if e.Message != "" {
		return fmt.Sprintf(
			"ollama operation failed (op=%s code=%s status=%d): %s",
			e.Operation,
			e.Code,
			e.StatusCode,
			e.Message,
		)
	}
	return fmt.Sprintf(
		"ollama operation failed (op=%s code=%s status=%d): %v",
		e.Operation,
		e.Code,
		e.StatusCode,
		e.Cause,
	)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func opErr(op string, code OperationErrorCode, msg string, cause error) error {
	return &OperationError{Code: code, Operation: op, Message: msg, Cause: cause}
}

type Client struct {
	log  *logger.Logger
	cfg  Config
	http *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("ollama base url required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		log:  log.With("service", "OllamaClient"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the embedding vector for text. A success status without a
// numeric vector field is treated as a backend failure.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	const op = "embed"
	if strings.TrimSpace(text) == "" {
		return nil, opErr(op, OperationErrorValidation, "text required", nil)
	}
	var resp embedResponse
	if err := c.doJSON(ctx, op, "/api/embeddings", embedRequest{
		Model:  c.cfg.EmbedModel,
		Prompt: text,
	}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, opErr(op, OperationErrorEmptyResult, "response missing embedding vector", nil)
	}
	return resp.Embedding, nil
}

type GenerateRequest struct {
	Prompt      string
	System      string
	Temperature float64
	TopP        float64
	NumPredict  int
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate runs a non-streaming completion.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	const op = "generate"
	if strings.TrimSpace(req.Prompt) == "" {
		return "", opErr(op, OperationErrorValidation, "prompt required", nil)
	}
	var resp generateResponse
	if err := c.doJSON(ctx, op, "/api/generate", generateRequest{
		Model:  c.cfg.GenModel,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
		Options: generateOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.NumPredict,
		},
	}, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Response) == "" {
		return "", opErr(op, OperationErrorEmptyResult, "response missing completion text", nil)
	}
	return resp.Response, nil
}

func (c *Client) doJSON(ctx context.Context, op, path string, in any, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(in); err != nil {
		return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodPost, c.cfg.BaseURL+path, &buf)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "ollama request failed", err)
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
			Message:    fmt.Sprintf("ollama http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode ollama response failed", err)
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
