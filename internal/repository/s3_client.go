package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"gmail-archiver/internal/domain"
)

const (
	keyPrefix       = "gmail"
	jsonContentType = "application/json"
)

// s3API is the minimal S3 interface required by ObjectWriter.
// *s3.Client from aws-sdk-go-v2 satisfies this interface.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ObjectWriter stores message records as JSON objects in one bucket.
type ObjectWriter struct {
	api    s3API
	bucket string
}

func NewObjectWriter(api s3API, bucket string) (*ObjectWriter, error) {
	if api == nil {
		return nil, errors.New("repository: s3 api must not be nil")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("repository: bucket name must not be empty")
	}
	return &ObjectWriter{api: api, bucket: bucket}, nil
}

// MessageKey returns the object key for a message within a namespace.
func MessageKey(namespace, messageID string) string {
	return fmt.Sprintf("%s/%s/message_%s.json", keyPrefix, namespace, messageID)
}

// WriteMessage serializes rec and puts it at its key, replacing any object
// already stored there. It returns the key written.
func (w *ObjectWriter) WriteMessage(ctx context.Context, namespace string, rec domain.MessageRecord) (string, error) {
	if strings.TrimSpace(namespace) == "" {
		return "", errors.New("repository: WriteMessage: namespace is required")
	}
	if strings.TrimSpace(rec.ID) == "" {
		return "", errors.New("repository: WriteMessage: message id is required")
	}

	body, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return "", fmt.Errorf("repository: WriteMessage encode %q: %w", rec.ID, err)
	}

	key := MessageKey(namespace, rec.ID)
	_, err = w.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(w.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(jsonContentType),
	})
	if err != nil {
		return "", fmt.Errorf("repository: WriteMessage put s3://%s/%s: %w", w.bucket, key, err)
	}
	return key, nil
}
