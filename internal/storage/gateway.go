package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/stanstork/designauto/internal/models"
)

const (
	PurposeInput  = "input"
	PurposeOutput = "output"

	DefaultDownloadTTL = 15 * time.Minute
	DefaultUploadTTL   = 20 * time.Minute

	keyTimeLayout = "20060102150405"
)

var (
	ErrNotFound = errors.New("object not found")
	ErrUpload   = errors.New("upload failed")
)

// UploadError reports a per-object upload failure.
type UploadError struct {
	Bucket string
	Key    string
	Reason string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload of %s/%s failed: %s", e.Bucket, e.Key, e.Reason)
}

func (e *UploadError) Is(target error) bool {
	return target == ErrUpload
}

// Gateway is the object storage the automation engine reads inputs from and
// writes outputs to.
type Gateway interface {
	// EnsureBucket creates the bucket; an existing bucket is not an error.
	EnsureBucket(ctx context.Context, bucket string) error
	// PutObject stores size bytes read from body and returns the object id.
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (string, error)
	// SignedDownloadURL returns a credential-free read url valid for ttl.
	SignedDownloadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	// Reference returns the work item argument that lets the engine read
	// (verb get) or write (verb put) the object.
	Reference(ctx context.Context, bucket, key, verb string) (models.Argument, error)
}

// ObjectKey names an object after the submission time, its purpose and the
// base name of the client's file. Two submissions of the same file name in the
// same second produce the same key.
func ObjectKey(now time.Time, purpose, originalName string) string {
	base := filepath.Base(strings.ReplaceAll(originalName, `\`, "/"))
	return now.UTC().Format(keyTimeLayout) + "_" + purpose + "_" + base
}
