package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"cloudimg/internal/core/domain"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

type S3Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	AccessKey      string
	SecretKey      string
	Insecure       bool
	ForcePathStyle bool
}

// S3 stores records as JSON objects in a bucket, so several machines can share one cache.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.Region != "" {
			endpoint = fmt.Sprintf("s3.%s.amazonaws.com", cfg.Region)
		} else {
			endpoint = "s3.amazonaws.com"
		}
	}

	var creds *credentials.Credentials
	if cfg.AccessKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{},
		})
	}

	options := &minio.Options{
		Creds:  creds,
		Secure: !cfg.Insecure,
		Region: cfg.Region,
	}
	if cfg.ForcePathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}

	client, err := minio.New(endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("s3: check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("s3: bucket %q does not exist", cfg.Bucket)
	}

	return &S3{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (s *S3) Get(ctx context.Context, identifier string) (domain.UploadRecord, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.object(identifier), minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return domain.UploadRecord{}, domain.ErrRecordNotFound
		}
		return domain.UploadRecord{}, fmt.Errorf("s3: get record: %w", err)
	}
	defer obj.Close()

	buf, err := io.ReadAll(io.LimitReader(obj, 1<<20))
	if err != nil {
		if isNotFound(err) {
			return domain.UploadRecord{}, domain.ErrRecordNotFound
		}
		return domain.UploadRecord{}, fmt.Errorf("s3: read record: %w", err)
	}

	return decodeRecord(buf)
}

// Create refuses to replace an existing object. Backends without conditional writes still get the
// stat check.
func (s *S3) Create(ctx context.Context, record domain.UploadRecord) error {
	object := s.object(record.Identifier)

	_, err := s.client.StatObject(ctx, s.bucket, object, minio.StatObjectOptions{})
	if err == nil {
		return domain.ErrRecordExists
	}
	if !isNotFound(err) {
		return fmt.Errorf("s3: stat record: %w", err)
	}

	options := minio.PutObjectOptions{ContentType: "application/json"}
	options.SetMatchETagExcept("*")

	return s.put(ctx, object, record, options)
}

func (s *S3) Put(ctx context.Context, record domain.UploadRecord) error {
	return s.put(ctx, s.object(record.Identifier), record, minio.PutObjectOptions{ContentType: "application/json"})
}

func (s *S3) Close() error {
	return nil
}

func (s *S3) put(ctx context.Context, object string, record domain.UploadRecord, options minio.PutObjectOptions) error {
	buf, err := encodeRecord(record)
	if err != nil {
		return err
	}

	info, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(buf), int64(len(buf)), options)
	if err != nil {
		if isPreconditionFailed(err) {
			return domain.ErrRecordExists
		}
		return fmt.Errorf("s3: put record: %w", err)
	}

	log.Debug().Str("object", object).Str("etag", info.ETag).Msg("stored upload record")

	return nil
}

func (s *S3) object(identifier string) string {
	return path.Join(s.prefix, "records", recordName(identifier))
}

func isNotFound(err error) bool {
	errResp := minio.ErrorResponse{}
	if errors.As(err, &errResp) {
		return errResp.StatusCode == http.StatusNotFound || errResp.Code == "NoSuchKey"
	}
	return false
}

func isPreconditionFailed(err error) bool {
	errResp := minio.ErrorResponse{}
	if errors.As(err, &errResp) {
		if errResp.StatusCode == http.StatusPreconditionFailed {
			return true
		}
		return errResp.StatusCode == http.StatusConflict && errResp.Code == "ConditionalRequestConflict"
	}
	return false
}
