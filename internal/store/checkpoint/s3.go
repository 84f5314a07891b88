// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// S3Backend is the optional off-box checkpoint mirror named but left as a
// stub (type S3Archive, no aws-sdk-go-v2 import) in the teacher's
// pkg/archive/s3Backend.go; this is the concrete implementation clasp
// actually wires into Checkpointer.Remote.
package checkpoint

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config names the bucket/prefix a Checkpointer mirrors snapshots to, and
// optionally a static key pair overriding the default credential chain
// (environment, shared config file, EC2/ECS instance role).
type S3Config struct {
	Bucket          string
	Prefix          string
	AccessKeyID     string // optional; empty selects the default credential chain
	SecretAccessKey string
}

// S3Backend uploads checkpoint files to S3, implementing Remote.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Backend resolves AWS credentials and builds an S3Backend.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: loading AWS config: %w", err)
	}

	return &S3Backend{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Upload reads localPath and PUTs it to bucket/prefix/key.
func (b *S3Backend) Upload(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("checkpoint: opening %s for upload: %w", localPath, err)
	}
	defer f.Close()

	objectKey := key
	if b.prefix != "" {
		objectKey = b.prefix + "/" + key
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("checkpoint: uploading %s to s3://%s/%s: %w", localPath, b.bucket, objectKey, err)
	}
	return nil
}

// Download fetches bucket/prefix/key into localPath, used to restore a
// checkpoint on a fresh node with no local snapshot history.
func (b *S3Backend) Download(ctx context.Context, key, localPath string) error {
	objectKey := key
	if b.prefix != "" {
		objectKey = b.prefix + "/" + key
	}

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("checkpoint: downloading s3://%s/%s: %w", b.bucket, objectKey, err)
	}
	defer out.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("checkpoint: creating %s: %w", localPath, err)
	}
	defer f.Close()

	if _, err := f.ReadFrom(out.Body); err != nil {
		return fmt.Errorf("checkpoint: writing %s: %w", localPath, err)
	}
	return nil
}
