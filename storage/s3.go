// Package storage holds the external storage collaborators: S3 object
// storage for generated composites and the MongoDB connector.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/raushankrgupta/fitview-tryon/errs"
)

// Folders generated images may be written to. Anything else is rejected so
// callers cannot write to arbitrary bucket prefixes.
var allowedFolders = map[string]bool{
	"tryon_results": true,
	"user_photos":   true,
}

const presignExpiry = 1 * time.Hour

// S3 uploads generated images and resolves stored object keys to presigned
// delivery URLs.
type S3 struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewS3 initializes the S3 client from the default AWS credential chain.
func NewS3(ctx context.Context, region, bucket string) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3: bucket name is not set")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("s3: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
	}, nil
}

// Save uploads PNG bytes under folder/filename and returns the object key.
// The folder must be on the allow-list.
func (s *S3) Save(ctx context.Context, data []byte, folder, filename string) (string, error) {
	if !allowedFolders[folder] {
		return "", fmt.Errorf("storage folder %q is not allowed: %w", folder, errs.ErrInvalidInput)
	}

	objectKey := fmt.Sprintf("%s/%s", folder, filename)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("image/png"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objectKey, err)
	}
	return objectKey, nil
}

// Load fetches the bytes of a stored object key.
func (s *S3) Load(ctx context.Context, objectKey string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", objectKey, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", objectKey, err)
	}
	return data, nil
}

// ResolveURL generates a presigned GET URL for a stored object key.
func (s *S3) ResolveURL(ctx context.Context, objectKey string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", objectKey, err)
	}
	return req.URL, nil
}
