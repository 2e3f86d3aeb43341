package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var _ Engine = (*WhisperClient)(nil)

const (
	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"
	authSchemeBearer    = "Bearer"

	endpointTranscriptions = "v1/audio/transcriptions"

	defaultEngineTimeout = 5 * time.Minute
	errorSnippetLimit    = 400
)

// WhisperClient implements Engine by posting audio to an OpenAI-compatible
// whisper inference server (faster-whisper-server, speaches, etc.).
type WhisperClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
}

// NewWhisperClient creates an engine client for the server at baseURL using
// the given model identifier. apiKey may be empty for unauthenticated servers.
func NewWhisperClient(baseURL, model, apiKey string) *WhisperClient {
	return &WhisperClient{
		httpClient: &http.Client{Timeout: defaultEngineTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the audio file as multipart form data and returns the
// recognized text, trimmed.
func (c *WhisperClient) Transcribe(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 - path is a worker-owned temp file
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer func() { _ = f.Close() }()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", c.model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("write format field: %w", err)
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", fmt.Errorf("copy audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	u, err := url.JoinPath(c.baseURL, endpointTranscriptions)
	if err != nil {
		return "", fmt.Errorf("join url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(headerContentType, mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set(headerAuthorization, authSchemeBearer+" "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("inference request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippetLimit))
		return "", fmt.Errorf("inference server status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode inference response: %w", err)
	}
	return strings.TrimSpace(parsed.Text), nil
}
