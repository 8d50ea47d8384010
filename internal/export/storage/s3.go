// Package storage signs download access to export artifacts. The artifacts
// themselves are written by the export pipeline; this service only ever
// issues pre-signed GETs against the recorded object key.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"assessor/pkg/platform/sentinel"
)

const downloadTTL = 15 * time.Minute

// S3 issues pre-signed download URLs for artifacts in the export bucket.
type S3 struct {
	presign *s3.PresignClient
	bucket  string
}

// NewS3 constructs the production artifact signer.
func NewS3(client *s3.Client, bucket string) *S3 {
	return &S3{presign: s3.NewPresignClient(client), bucket: bucket}
}

// SignDownload returns a time-limited GET URL for the given object key.
func (s *S3) SignDownload(ctx context.Context, objectKey string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(downloadTTL))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w: %v", objectKey, sentinel.ErrUnavailable, err)
	}
	return req.URL, nil
}
