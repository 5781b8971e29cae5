package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"batch-transcription-service/internal/domain/ports/adapter"
)

var _ adapter.ObjectStore = (*LocalStore)(nil)

// LocalStore keeps objects on the local filesystem. Intended for dev and
// tests; the returned URLs are only fetchable when publicBaseURL points at
// something that serves dir.
type LocalStore struct {
	dir           string
	publicBaseURL string
}

func NewLocalStore(dir, publicBaseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create local store dir: %w", err)
	}
	return &LocalStore{
		dir:           dir,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}, nil
}

func (s *LocalStore) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	path := filepath.Join(s.dir, filepath.Clean("/"+name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + name, nil
	}
	return "file://" + path, nil
}

func (s *LocalStore) Delete(ctx context.Context, objectURL string) error {
	var rel string
	switch {
	case strings.HasPrefix(objectURL, "file://"):
		return os.Remove(strings.TrimPrefix(objectURL, "file://"))
	case s.publicBaseURL != "" && strings.HasPrefix(objectURL, s.publicBaseURL):
		rel = strings.TrimPrefix(objectURL, s.publicBaseURL)
	default:
		u, err := url.Parse(objectURL)
		if err != nil {
			return fmt.Errorf("bad object url %q: %w", objectURL, err)
		}
		rel = u.Path
	}
	return os.Remove(filepath.Join(s.dir, filepath.Clean("/"+rel)))
}
