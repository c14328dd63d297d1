package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3 uploads results to a bucket
type S3 struct {
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

// NewS3 creates an uploader. Static credentials are taken from
// AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY when set, otherwise the default
// credential chain applies.
func NewS3(opts Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	cfg := &aws.Config{}
	if opts.Region != "" {
		cfg.Region = aws.String(opts.Region)
	}
	if key, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"); key != "" && secret != "" {
		cfg.Credentials = credentials.NewStaticCredentials(key, secret, "")
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}

	return &S3{
		uploader: s3manager.NewUploader(sess),
		bucket:   opts.Bucket,
		prefix:   opts.Prefix,
	}, nil
}

// Save uploads data and returns the object location
func (s *S3) Save(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	input := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(s.prefix, name)),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	out, err := s.uploader.UploadWithContext(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to upload result: %w", err)
	}
	return out.Location, nil
}

func objectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
