package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"batch-transcription-service/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.BatchAPI = (*BatchAdapter)(nil)

// BatchAdapter implements adapter.BatchAPI against an OpenAI-compatible
// /v1 batch surface (files + batches endpoints). The base URL is
// configurable so compatible gateways can be used unchanged.
type BatchAdapter struct {
	apiKey string
	base   string // e.g., https://api.openai.com/v1
	client *http.Client
}

func NewBatchAdapter(apiKey, baseURL string, timeout time.Duration) (*BatchAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("batch api key empty")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &BatchAdapter{
		apiKey: apiKey,
		base:   strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
	}, nil
}

// manifestLine is one request of the newline-delimited batch input file.
type manifestLine struct {
	CustomID string       `json:"custom_id"`
	Method   string       `json:"method"`
	URL      string       `json:"url"`
	Body     manifestBody `json:"body"`
}

type manifestBody struct {
	Model          string `json:"model"`
	AudioURL       string `json:"url"`
	ResponseFormat string `json:"response_format"`
}

func (o *BatchAdapter) CreateBatch(ctx context.Context, requests []adapter.ManifestRequest, completionWindow string) (string, error) {
	if len(requests) == 0 {
		return "", errors.New("empty manifest")
	}

	var manifest bytes.Buffer
	enc := json.NewEncoder(&manifest)
	for _, r := range requests {
		line := manifestLine{
			CustomID: r.CustomID,
			Method:   http.MethodPost,
			URL:      "/v1/audio/transcriptions",
			Body: manifestBody{
				Model:          r.Model,
				AudioURL:       r.AudioURL,
				ResponseFormat: "verbose_json",
			},
		}
		if err := enc.Encode(&line); err != nil {
			return "", fmt.Errorf("encode manifest: %w", err)
		}
	}

	fileID, err := o.uploadManifest(ctx, manifest.Bytes())
	if err != nil {
		return "", err
	}

	reqBody := struct {
		InputFileID      string `json:"input_file_id"`
		Endpoint         string `json:"endpoint"`
		CompletionWindow string `json:"completion_window"`
	}{InputFileID: fileID, Endpoint: "/v1/audio/transcriptions", CompletionWindow: completionWindow}

	var created struct {
		ID string `json:"id"`
	}
	if err := o.call(ctx, http.MethodPost, "/batches", reqBody, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("batch create returned no id")
	}
	return created.ID, nil
}

func (o *BatchAdapter) uploadManifest(ctx context.Context, jsonl []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("purpose", "batch")
	part, err := writer.CreateFormFile("file", "manifest.jsonl")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(jsonl); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/files", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", o.apiError(resp)
	}

	var uploaded struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", err
	}
	if uploaded.ID == "" {
		return "", errors.New("file upload returned no id")
	}
	return uploaded.ID, nil
}

type remoteBatchPayload struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	OutputFileID string `json:"output_file_id"`
	ErrorFileID  string `json:"error_file_id"`
	Errors       struct {
		Data []struct {
			Message string `json:"message"`
		} `json:"data"`
	} `json:"errors"`
}

func (o *BatchAdapter) RetrieveBatch(ctx context.Context, externalID string) (*adapter.RemoteBatch, error) {
	var payload remoteBatchPayload
	if err := o.call(ctx, http.MethodGet, "/batches/"+externalID, nil, &payload); err != nil {
		return nil, err
	}
	rb := &adapter.RemoteBatch{
		ID:           payload.ID,
		Status:       payload.Status,
		OutputFileID: payload.OutputFileID,
		ErrorFileID:  payload.ErrorFileID,
	}
	if len(payload.Errors.Data) > 0 {
		rb.ErrorMessage = payload.Errors.Data[0].Message
	}
	return rb, nil
}

func (o *BatchAdapter) CancelBatch(ctx context.Context, externalID string) error {
	return o.call(ctx, http.MethodPost, "/batches/"+externalID+"/cancel", nil, nil)
}

// resultLine is one record of the consolidated output artifact.
type resultLine struct {
	CustomID string `json:"custom_id"`
	Response struct {
		StatusCode int `json:"status_code"`
		Body       struct {
			Text     string                  `json:"text"`
			Language string                  `json:"language"`
			Segments []adapter.RemoteSegment `json:"segments"`
		} `json:"body"`
	} `json:"response"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (o *BatchAdapter) DownloadResults(ctx context.Context, outputFileID string) ([]adapter.BatchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.base+"/files/"+outputFileID+"/content", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, o.apiError(resp)
	}

	var results []adapter.BatchResult
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var line resultLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return nil, fmt.Errorf("parse result line: %w", err)
		}
		res := adapter.BatchResult{
			CustomID: line.CustomID,
			Text:     line.Response.Body.Text,
			Language: line.Response.Body.Language,
			Segments: line.Response.Body.Segments,
		}
		switch {
		case line.Error != nil && line.Error.Message != "":
			res.Error = line.Error.Message
		case line.Response.StatusCode >= 300:
			res.Error = fmt.Sprintf("remote request failed with http %d", line.Response.StatusCode)
		}
		results = append(results, res)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	return results, nil
}

// call performs one JSON request/response round trip.
func (o *BatchAdapter) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, o.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return o.apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (o *BatchAdapter) apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := ""
	if json.Unmarshal(raw, &payload) == nil {
		msg = payload.Error.Message
	}
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

// APIError carries the remote status code and message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("batch api http %d: %s", e.Status, FriendlyMessage(e.Status, e.Message))
}

// FriendlyMessage translates well-known remote failures into clearer
// guidance; everything else passes through verbatim.
func FriendlyMessage(status int, msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case status == http.StatusUnauthorized || strings.Contains(lower, "invalid api key") || strings.Contains(lower, "incorrect api key"):
		return "authentication failed: check batch.api_key"
	case status == http.StatusTooManyRequests || strings.Contains(lower, "rate limit"):
		return "remote rate limit hit; the poller will retry on the next tick"
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not exist") || strings.Contains(lower, "invalid")):
		return "unknown transcription model: " + msg
	default:
		return msg
	}
}
