// Package storage archives operational snapshots (backup manifests, nightly
// reports) to S3. The database itself is backed up by the hosting layer;
// what lives here is the system's own record of what it was managing.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the slice of the S3 client the archive uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive writes JSON documents to a bucket under date-partitioned keys.
type S3Archive struct {
	client s3API
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Archive creates an archive writer using the default AWS credential
// chain.
func NewS3Archive(ctx context.Context, bucket, prefix, region string) (*S3Archive, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &S3Archive{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

// Put marshals doc and uploads it as <prefix>/<yyyy>/<mm>/<dd>/<name>.json.
// Returns the object key.
func (a *S3Archive) Put(ctx context.Context, name string, doc interface{}) (string, error) {
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", name, err)
	}

	day := a.now().UTC()
	key := fmt.Sprintf("%s/%04d/%02d/%02d/%s.json", a.prefix, day.Year(), day.Month(), day.Day(), name)

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("uploading s3://%s/%s: %w", a.bucket, key, err)
	}
	return key, nil
}
