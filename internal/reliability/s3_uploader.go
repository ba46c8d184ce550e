// Package reliability holds report export to object storage and database
// maintenance jobs.
package reliability

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3Config locates the report bucket. Endpoint and static keys are optional;
// without keys the default AWS credential chain is used.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// objectUploader is the part of manager.Uploader the uploader uses.
type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3ReportUploader uploads run reports to an S3-compatible bucket.
type S3ReportUploader struct {
	bucket   string
	uploader objectUploader
	log      zerolog.Logger
}

// NewS3ReportUploader builds an uploader from cfg.
func NewS3ReportUploader(ctx context.Context, cfg S3Config, log zerolog.Logger) (*S3ReportUploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("report bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// S3-compatible stores (R2, MinIO) address buckets by path
			o.UsePathStyle = true
		}
	})

	return newS3ReportUploader(cfg.Bucket, manager.NewUploader(client), log), nil
}

func newS3ReportUploader(bucket string, uploader objectUploader, log zerolog.Logger) *S3ReportUploader {
	return &S3ReportUploader{
		bucket:   bucket,
		uploader: uploader,
		log:      log.With().Str("service", "s3_report_uploader").Logger(),
	}
}

// Upload stores body under key.
func (u *S3ReportUploader) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to bucket %s: %w", key, u.bucket, err)
	}
	u.log.Debug().Str("bucket", u.bucket).Str("key", key).Int("bytes", len(body)).Msg("Uploaded object")
	return nil
}
