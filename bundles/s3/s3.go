package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"version-registry/bundles"
	"version-registry/config"
)

// ErrIncompleteS3Config is returned when the S3 configuration is incomplete
var ErrIncompleteS3Config = errors.New("incomplete S3 configuration")

// S3Store implements the bundle store on an S3-compatible bucket. R2 and
// minio work through the endpoint override.
type S3Store struct {
	S3Client *s3.Client
	Timeout  time.Duration
	Bucket   string
}

// New creates a new s3-backed bundle store. Static credentials from the
// configuration take precedence; with an empty key id the SDK's default
// credential chain is used instead.
func New() (*S3Store, error) {
	s3cfg := config.Cfg.Storage.S3

	if strings.TrimSpace(s3cfg.Bucket) == "" ||
		strings.TrimSpace(s3cfg.Region) == "" ||
		strings.TrimSpace(s3cfg.Timeout) == "" {
		return nil, fmt.Errorf("%w", ErrIncompleteS3Config)
	}

	var client *s3.Client
	if strings.TrimSpace(s3cfg.KeyID) != "" {
		client = s3.New(s3.Options{
			UsePathStyle: true,
			BaseEndpoint: aws.String(s3cfg.Endpoint),
			Region:       s3cfg.Region,
			Credentials: aws.NewCredentialsCache(
				credentials.NewStaticCredentialsProvider(
					s3cfg.KeyID,
					s3cfg.AccessKey,
					"",
				),
			),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(
			context.Background(),
			awsconfig.WithRegion(s3cfg.Region),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
		}

		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = true
			if s3cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(s3cfg.Endpoint)
			}
		})
	}

	timeoutDuration, err := time.ParseDuration(s3cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid S3 timeout value: %w", err)
	}

	return &S3Store{
		S3Client: client,
		Timeout:  timeoutDuration,
		Bucket:   s3cfg.Bucket,
	}, nil
}

// StoreBundle uploads bundle content to the bucket
func (s *S3Store) StoreBundle(
	ctx context.Context,
	key string,
	content io.Reader,
) error {
	uploader := manager.NewUploader(s.S3Client)

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	result, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
		Body:   content,
	})
	if err != nil {
		var mu manager.MultiUploadFailure
		if errors.As(err, &mu) {
			log.Error().
				Msg(fmt.Sprintf("multi-upload failure (upload_id: %s): %v", mu.UploadID(), mu))

			return fmt.Errorf(
				"multi-upload failure (upload_id: %s): %w",
				mu.UploadID(),
				mu,
			)
		}

		log.Error().Err(err).Msg("upload failure")

		return fmt.Errorf("upload failure: %w", err)
	}
	log.Info().
		Str("location", result.Location).
		Msg("successfully uploaded bundle to s3 bucket")

	return nil
}

// GetBundle retrieves a bundle stream and its size from the bucket. The
// stream stays valid for as long as ctx does, so no store timeout is
// applied here.
func (s *S3Store) GetBundle(
	ctx context.Context,
	key string,
) (io.ReadCloser, int64, error) {
	object, err := s.S3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, 0, bundles.ErrBundleNotFound
		}

		return nil, 0, fmt.Errorf("failed to get bundle from S3: %w", err)
	}

	return object.Body, aws.ToInt64(object.ContentLength), nil
}

// DeleteBundle deletes a bundle from the bucket
func (s *S3Store) DeleteBundle(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	// S3 deletes are idempotent, so probe first to keep not-found
	// semantics consistent with the other backends.
	_, err := s.S3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return bundles.ErrBundleNotFound
		}

		return fmt.Errorf("failed to check bundle existence: %w", err)
	}

	_, err = s.S3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete bundle from S3: %w", err)
	}

	return nil
}

// CreateUpload starts a native S3 multipart upload
func (s *S3Store) CreateUpload(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	out, err := s.S3Client.CreateMultipartUpload(
		ctx,
		&s3.CreateMultipartUploadInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(key),
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart upload: %w", err)
	}

	return aws.ToString(out.UploadId), nil
}

// UploadPart uploads one part of a multipart upload
func (s *S3Store) UploadPart(
	ctx context.Context,
	key, uploadID string,
	partNumber int32,
	body io.Reader,
) (bundles.Part, error) {
	// Part bodies need a known length for signing; buffer them.
	data, err := io.ReadAll(body)
	if err != nil {
		return bundles.Part{}, fmt.Errorf("failed to read part content: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	out, err := s.S3Client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(s.Bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
		Body:       manager.ReadSeekCloser(bytes.NewReader(data)),
	})
	if err != nil {
		if isNoSuchUpload(err) {
			return bundles.Part{}, bundles.ErrUploadNotFound
		}

		return bundles.Part{}, fmt.Errorf("failed to upload part: %w", err)
	}

	return bundles.Part{
		Number: partNumber,
		ETag:   aws.ToString(out.ETag),
	}, nil
}

// CompleteUpload finishes a multipart upload from the collected parts
func (s *S3Store) CompleteUpload(
	ctx context.Context,
	key, uploadID string,
	parts []bundles.Part,
) (string, error) {
	completed := make([]types.CompletedPart, 0, len(parts))
	for _, part := range parts {
		completed = append(completed, types.CompletedPart{
			ETag:       aws.String(part.ETag),
			PartNumber: aws.Int32(part.Number),
		})
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	out, err := s.S3Client.CompleteMultipartUpload(
		ctx,
		&s3.CompleteMultipartUploadInput{
			Bucket:   aws.String(s.Bucket),
			Key:      aws.String(key),
			UploadId: aws.String(uploadID),
			MultipartUpload: &types.CompletedMultipartUpload{
				Parts: completed,
			},
		},
	)
	if err != nil {
		if isNoSuchUpload(err) {
			return "", bundles.ErrUploadNotFound
		}

		return "", fmt.Errorf("failed to complete multipart upload: %w", err)
	}

	return aws.ToString(out.ETag), nil
}

// AbortUpload aborts a multipart upload
func (s *S3Store) AbortUpload(ctx context.Context, key, uploadID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	_, err := s.S3Client.AbortMultipartUpload(
		ctx,
		&s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.Bucket),
			Key:      aws.String(key),
			UploadId: aws.String(uploadID),
		},
	)
	if err != nil {
		if isNoSuchUpload(err) {
			return bundles.ErrUploadNotFound
		}

		return fmt.Errorf("failed to abort multipart upload: %w", err)
	}

	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound

	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

func isNoSuchUpload(err error) bool {
	var noSuchUpload *types.NoSuchUpload

	return errors.As(err, &noSuchUpload)
}
