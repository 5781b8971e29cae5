package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"batch-transcription-service/internal/domain/ports/adapter"
)

var _ adapter.ObjectStore = (*S3Store)(nil)

var sseAlgorithm = "AES256"

// S3Store keeps item audio in an S3 bucket at URLs the remote batch service
// can fetch until the owning job is deleted.
type S3Store struct {
	s3     *s3.S3
	bucket string
	region string
	prefix string
}

// NewS3Store returns an ObjectStore backed by AWS S3.
func NewS3Store(awsSession *session.Session, bucket, region, prefix string) *S3Store {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Store{
		s3:     s3.New(awsSession),
		bucket: bucket,
		region: region,
		prefix: prefix,
	}
}

func (s *S3Store) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	// PutObject needs a seekable body; buffer the audio.
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	key := s.prefix + name
	_, err = s.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(data),
		ContentLength:        aws.Int64(size),
		ContentType:          aws.String(contentType),
		ServerSideEncryption: aws.String(sseAlgorithm),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}

func (s *S3Store) Delete(ctx context.Context, objectURL string) error {
	key, err := s.keyFromURL(objectURL)
	if err != nil {
		return err
	}
	_, err = s.s3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) keyFromURL(objectURL string) (string, error) {
	u, err := url.Parse(objectURL)
	if err != nil {
		return "", fmt.Errorf("bad object url %q: %w", objectURL, err)
	}
	return strings.TrimPrefix(u.Path, "/"), nil
}
