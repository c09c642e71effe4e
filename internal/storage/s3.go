package storage

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/designauto/internal/models"
)

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// objectStore is the subset of the MinIO client used by S3.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PresignedGetObject(ctx context.Context, bucket, key string, expires time.Duration, params url.Values) (*url.URL, error)
	PresignedPutObject(ctx context.Context, bucket, key string, expires time.Duration) (*url.URL, error)
}

// S3 stores objects in any S3 compatible service. Work item arguments are
// pre-signed URLs, so the engine needs no credentials.
type S3 struct {
	store     objectStore
	region    string
	uploadTTL time.Duration
	logger    zerolog.Logger
}

func NewS3(cfg S3Config, uploadTTL time.Duration, logger zerolog.Logger) (*S3, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create s3 client")
	}
	return newS3(client, cfg.Region, uploadTTL, logger), nil
}

func newS3(store objectStore, region string, uploadTTL time.Duration, logger zerolog.Logger) *S3 {
	if uploadTTL <= 0 {
		uploadTTL = DefaultUploadTTL
	}
	return &S3{
		store:     store,
		region:    region,
		uploadTTL: uploadTTL,
		logger:    logger.With().Str("component", "storage").Str("driver", "s3").Logger(),
	}
}

func (s *S3) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.store.BucketExists(ctx, bucket)
	if err != nil {
		return errors.Wrapf(err, "cannot check bucket %s", bucket)
	}
	if exists {
		return nil
	}
	if err := s.store.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		switch minio.ToErrorResponse(err).Code {
		case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
			return nil
		}
		s.logger.Error().Err(err).Str("bucket", bucket).Msg("failed to create bucket")
		return errors.Wrapf(err, "cannot create bucket %s", bucket)
	}
	s.logger.Info().Str("bucket", bucket).Msg("created bucket")
	return nil
}

func (s *S3) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (string, error) {
	info, err := s.store.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		s.logger.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("failed to upload object")
		return "", &UploadError{Bucket: bucket, Key: key, Reason: err.Error()}
	}
	s.logger.Info().Str("bucket", bucket).Str("key", key).Str("size", humanize.Bytes(uint64(info.Size))).Msg("uploaded object")
	return bucket + "/" + info.Key, nil
}

func (s *S3) SignedDownloadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultDownloadTTL
	}
	if _, err := s.store.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", errors.Wrapf(ErrNotFound, "%s/%s", bucket, key)
		}
		return "", errors.Wrapf(err, "cannot stat %s/%s", bucket, key)
	}
	u, err := s.store.PresignedGetObject(ctx, bucket, key, ttl, nil)
	if err != nil {
		return "", errors.Wrapf(err, "cannot sign %s/%s", bucket, key)
	}
	return u.String(), nil
}

func (s *S3) Reference(ctx context.Context, bucket, key, verb string) (models.Argument, error) {
	if verb == models.VerbPut {
		u, err := s.store.PresignedPutObject(ctx, bucket, key, s.uploadTTL)
		if err != nil {
			return models.Argument{}, errors.Wrapf(err, "cannot sign upload for %s/%s", bucket, key)
		}
		return models.Argument{URL: u.String(), Verb: models.VerbPut}, nil
	}
	u, err := s.store.PresignedGetObject(ctx, bucket, key, s.uploadTTL, nil)
	if err != nil {
		return models.Argument{}, errors.Wrapf(err, "cannot sign %s/%s", bucket, key)
	}
	return models.Argument{URL: u.String()}, nil
}
