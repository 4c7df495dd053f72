// Package restclient talks to the backend's request/response endpoints that
// sit next to the session WebSocket.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"aicca-realtime/internal/pkg/logger"
	"aicca-realtime/internal/transfer"

	"github.com/go-playground/validator/v10"
)

const module = "RestClient"

const (
	InfoEndpoint         = "/api/info"
	ToolsEndpoint        = "/api/tools"
	AnalyzeEndpoint      = "/api/analyze"
	UploadEndpoint       = "/api/upload"
	BatchAnalyzeEndpoint = "/api/batch/analyze"
	ExecuteToolEndpoint  = "/api/tools/execute"

	DefaultUploadPurpose = "analysis"
)

var ErrHTTPStatus = errors.New("unexpected http status")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d, body: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrHTTPStatus }

type Client struct {
	baseURL string
	http    *http.Client
	logger  logger.ILogger
}

func NewClient(baseURL string, timeout time.Duration, log logger.ILogger) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  log,
	}
}

var validate = validator.New()

func (c *Client) Info(ctx context.Context) (*APIInfo, error) {
	var out APIInfo
	if err := c.do(ctx, http.MethodGet, InfoEndpoint, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Tools(ctx context.Context) (*ToolList, error) {
	var out ToolList
	if err := c.do(ctx, http.MethodGet, ToolsEndpoint, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalysisResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid analyze request: %w", err)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var out AnalysisResult
	if err := c.do(ctx, http.MethodPost, AnalyzeEndpoint, bytes.NewReader(body), "application/json", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload posts the file as multipart form data. An empty purpose means "analysis".
func (c *Client) Upload(ctx context.Context, file transfer.File, purpose string) (*UploadResponse, error) {
	if file.Content == nil {
		return nil, fmt.Errorf("upload %s: no content", file.Name)
	}
	if purpose == "" {
		purpose = DefaultUploadPurpose
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	if file.Type != "" {
		header.Set("Content-Type", file.Type)
	} else {
		header.Set("Content-Type", "application/octet-stream")
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return nil, fmt.Errorf("copy %s: %w", file.Name, err)
	}
	if err := writer.WriteField("purpose", purpose); err != nil {
		return nil, fmt.Errorf("write purpose: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	var out UploadResponse
	if err := c.do(ctx, http.MethodPost, UploadEndpoint, &buf, writer.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) BatchAnalyze(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid batch request: %w", err)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var out BatchResponse
	if err := c.do(ctx, http.MethodPost, BatchAnalyzeEndpoint, bytes.NewReader(body), "application/json", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ExecuteTool(ctx context.Context, req ToolExecutionRequest) (*ToolExecutionResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid tool request: %w", err)
	}
	if req.Parameters == nil {
		req.Parameters = map[string]interface{}{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var out ToolExecutionResponse
	if err := c.do(ctx, http.MethodPost, ExecuteToolEndpoint, bytes.NewReader(body), "application/json", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn(module, "Request failed", map[string]interface{}{
			"method": method,
			"path":   path,
			"error":  err.Error(),
		})
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug(module, "Request finished", map[string]interface{}{
		"method":      method,
		"path":        path,
		"status":      res.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%s %s: %w", method, path, &StatusError{StatusCode: res.StatusCode, Body: string(resBody)})
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resBody, out); err != nil {
		return fmt.Errorf("unmarshal %s response: %w", path, err)
	}
	return nil
}
