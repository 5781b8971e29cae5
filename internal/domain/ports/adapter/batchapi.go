package adapter

import (
	"context"
	"io"
)

// ManifestRequest is one line of the newline-delimited manifest submitted to
// the external batch transcription API.
type ManifestRequest struct {
	CustomID string
	Model    string
	AudioURL string
}

// RemoteBatch is the external API's view of a batch.
type RemoteBatch struct {
	ID           string
	Status       string // remote vocabulary: validating, in_progress, completed, failed, expired, ...
	OutputFileID string
	ErrorFileID  string
	ErrorMessage string
}

// BatchResult is one line of the consolidated results artifact.
type BatchResult struct {
	CustomID string
	Text     string
	Language string
	Segments []RemoteSegment
	Error    string // non-empty when the remote service reports a per-request failure
}

type RemoteSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// BatchAPI is the narrow contract with the hosted asynchronous transcription
// service. Implementations must keep each call bounded by ctx.
type BatchAPI interface {
	// CreateBatch uploads the manifest and creates the remote batch,
	// returning the external batch id.
	CreateBatch(ctx context.Context, requests []ManifestRequest, completionWindow string) (string, error)
	// RetrieveBatch fetches the remote batch by external id.
	RetrieveBatch(ctx context.Context, externalID string) (*RemoteBatch, error)
	// CancelBatch requests remote cancellation; best-effort.
	CancelBatch(ctx context.Context, externalID string) error
	// DownloadResults streams and parses the consolidated output artifact.
	DownloadResults(ctx context.Context, outputFileID string) ([]BatchResult, error)
}

// ObjectStore holds raw item audio at fetchable URLs for the remote
// manifest.
type ObjectStore interface {
	// Put stores the object and returns a URL resolvable by the remote
	// service until the owning job is deleted.
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
	// Delete removes a previously stored object; keys are the URLs
	// returned by Put.
	Delete(ctx context.Context, url string) error
}
