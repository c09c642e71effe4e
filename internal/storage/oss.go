package storage

import (
	"context"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/designauto/internal/aps"
	"github.com/stanstork/designauto/internal/models"
)

// OSS stores objects in the platform's own object storage service.
type OSS struct {
	client    *aps.Client
	policy    string
	uploadTTL time.Duration
	logger    zerolog.Logger
}

func NewOSS(client *aps.Client, policy string, uploadTTL time.Duration, logger zerolog.Logger) *OSS {
	if policy == "" {
		policy = aps.PolicyTransient
	}
	if uploadTTL <= 0 {
		uploadTTL = DefaultUploadTTL
	}
	return &OSS{
		client:    client,
		policy:    policy,
		uploadTTL: uploadTTL,
		logger:    logger.With().Str("component", "storage").Str("driver", "oss").Logger(),
	}
}

func (s *OSS) EnsureBucket(ctx context.Context, bucket string) error {
	err := s.client.CreateBucket(ctx, bucket, s.policy)
	if err == nil {
		s.logger.Info().Str("bucket", bucket).Str("policy", s.policy).Msg("created bucket")
		return nil
	}
	if errors.Is(err, aps.ErrConflict) {
		return nil
	}
	s.logger.Error().Err(err).Str("bucket", bucket).Msg("failed to create bucket")
	return errors.Wrapf(err, "cannot create bucket %s", bucket)
}

func (s *OSS) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, _ string) (string, error) {
	details, err := s.client.UploadObject(ctx, bucket, key, body, size, s.uploadTTL)
	if err != nil {
		s.logger.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("failed to upload object")
		return "", &UploadError{Bucket: bucket, Key: key, Reason: err.Error()}
	}
	if details.ObjectID == "" {
		return "", &UploadError{Bucket: bucket, Key: key, Reason: "platform returned no object id"}
	}
	s.logger.Info().Str("object_id", details.ObjectID).Str("size", humanize.Bytes(uint64(size))).Msg("uploaded object")
	return details.ObjectID, nil
}

func (s *OSS) SignedDownloadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultDownloadTTL
	}
	u, err := s.client.SignedDownloadURL(ctx, bucket, key, ttl)
	if err != nil {
		if errors.Is(err, aps.ErrNotFound) {
			return "", errors.Wrapf(ErrNotFound, "%s/%s", bucket, key)
		}
		s.logger.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("failed to sign download url")
		return "", err
	}
	return u, nil
}

// Reference binds the object by URN; the engine authenticates with the
// application's current bearer token.
func (s *OSS) Reference(ctx context.Context, bucket, key, verb string) (models.Argument, error) {
	tok, err := s.client.Tokens().Token(ctx)
	if err != nil {
		return models.Argument{}, err
	}
	arg := models.Argument{
		URL:     aps.ObjectURN(bucket, key),
		Headers: map[string]string{"Authorization": tok.Bearer()},
	}
	if verb == models.VerbPut {
		arg.Verb = models.VerbPut
	}
	return arg, nil
}
