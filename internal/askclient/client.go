// Package askclient talks to the external question-answering backend that
// owns document ingestion, retrieval and answer generation.
package askclient

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

var (
	// ErrBackendUnavailable covers transport failures, timeouts and cancellation.
	ErrBackendUnavailable = errors.New("answer backend unavailable")
	// ErrBackendRejected covers non-2xx replies and malformed 2xx bodies.
	ErrBackendRejected = errors.New("answer backend rejected the request")
)

// maxResponseBytes caps how much of a backend reply is read.
const maxResponseBytes = 10 << 20

//go:embed schema.json
var askResponseSchema []byte

// StatusError is returned for a non-2xx reply. errors.Is(err, ErrBackendRejected) holds.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("answer backend HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrBackendRejected }

// HistoryTurn is one prior exchange sent with a question.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AskRequest struct {
	UserID    string        `json:"user_id"`
	Question  string        `json:"question"`
	Historics []HistoryTurn `json:"historics"`
}

type AskResponse struct {
	Question       string
	Response       string
	Context        string
	ContextLength  int
	SourcesCount   int
	Sources        []string
	ProcessingTime *float64
}

// askWire mirrors the JSON body; every field but response may be absent.
type askWire struct {
	Question       string            `json:"question"`
	Response       string            `json:"response"`
	Context        *string           `json:"context"`
	ContextLength  *int              `json:"context_length"`
	SourcesCount   *int              `json:"sources_count"`
	Sources        []json.RawMessage `json:"sources"`
	ProcessingTime *float64          `json:"processing_time"`
}

type Client struct {
	baseURL string
	http    *http.Client
	schema  *gojsonschema.Schema
	log     *zap.Logger
}

// New builds a client for the backend at baseURL. timeout bounds every call.
func New(baseURL string, timeout time.Duration, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid answer backend URL %q", baseURL)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(askResponseSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile ask response schema: %w", err)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		schema:  schema,
		log:     log.Named("askclient"),
	}, nil
}

// Ask sends one question with its history and returns the parsed answer.
func (c *Client) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	if req.Historics == nil {
		req.Historics = []HistoryTurn{}
	}
	start := time.Now()
	body, err := c.do(ctx, http.MethodPost, "/ask", nil, req)
	if err != nil {
		return nil, err
	}

	result, err := c.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable ask response: %v", ErrBackendRejected, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: ask response violates schema: %s", ErrBackendRejected, strings.Join(msgs, "; "))
	}

	var wire askWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: undecodable ask response: %v", ErrBackendRejected, err)
	}

	resp := &AskResponse{
		Question:       wire.Question,
		Response:       wire.Response,
		Sources:        decodeSources(wire.Sources),
		ProcessingTime: wire.ProcessingTime,
	}
	if wire.Context != nil {
		resp.Context = *wire.Context
	}
	resp.ContextLength = len(resp.Context)
	if wire.ContextLength != nil {
		resp.ContextLength = *wire.ContextLength
	}
	resp.SourcesCount = len(resp.Sources)
	if wire.SourcesCount != nil {
		resp.SourcesCount = *wire.SourcesCount
	}

	c.log.Debug("ask answered",
		zap.String("user_id", req.UserID),
		zap.Int("history", len(req.Historics)),
		zap.Int("sources", resp.SourcesCount),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

// ProcessAllPDFs asks the backend to ingest every document for the user.
// customPath overrides the backend's default document folder when set.
func (c *Client) ProcessAllPDFs(ctx context.Context, userID string, customPath *string) (json.RawMessage, error) {
	payload := struct {
		UserID        string  `json:"user_id"`
		CustomPDFPath *string `json:"custom_pdf_path,omitempty"`
	}{UserID: userID, CustomPDFPath: customPath}
	return c.doJSON(ctx, http.MethodPost, "/pdfs/process-all", nil, payload)
}

// Stats returns the backend's collection statistics for the user.
func (c *Client) Stats(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodGet, "/stat", url.Values{"user_id": {userID}}, nil)
}

// DeleteFile removes every indexed chunk of fileName for the user.
func (c *Client) DeleteFile(ctx context.Context, userID, fileName string) (json.RawMessage, error) {
	payload := struct {
		UserID   string `json:"user_id"`
		FileName string `json:"file_name"`
	}{UserID: userID, FileName: fileName}
	return c.doJSON(ctx, http.MethodDelete, "/files", nil, payload)
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, payload any) (json.RawMessage, error) {
	body, err := c.do(ctx, method, path, query, payload)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: %s returned invalid JSON", ErrBackendRejected, path)
	}
	return json.RawMessage(body), nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("answer backend call failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %w", ErrBackendUnavailable, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("answer backend responded with non-2xx",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// decodeSources keeps string labels as-is and renders anything else as compact JSON.
func decodeSources(raw []json.RawMessage) []string {
	sources := make([]string, 0, len(raw))
	for _, item := range raw {
		if string(item) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			sources = append(sources, s)
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, item); err != nil {
			sources = append(sources, string(item))
			continue
		}
		sources = append(sources, buf.String())
	}
	return sources
}
