//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of databarc.
//
// databarc is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// databarc is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with databarc. If not, see https://www.gnu.org/licenses/.

package writers

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// This file implements an S3 uploader for exported files, so aggregation
// output can land in an object store alongside the database.

// S3UploaderError provides structured error information for S3 uploader
// operations.
type S3UploaderError struct {
	Op  string // Operation that failed (e.g., "create_aws_config", "put_object")
	Key string // Object key involved, when known
	Err error  // Underlying error
}

func (e *S3UploaderError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("s3 uploader %s [%s]: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("s3 uploader %s: %v", e.Op, e.Err)
}

func (e *S3UploaderError) Unwrap() error {
	return e.Err
}

// S3UploaderStats holds counters about the uploader's activity.
type S3UploaderStats struct {
	ObjectsUploaded int64
	BytesUploaded   int64
	UploadDuration  time.Duration
	LastUploadTime  time.Time
	ErrorCount      int64
}

// S3UploaderOptions configures the uploader.
type S3UploaderOptions struct {
	Bucket         string          // S3 bucket name
	Prefix         string          // Key prefix for uploaded objects
	Region         string          // AWS region
	Profile        string          // AWS profile to use
	Credentials    aws.Credentials // Explicit credentials
	EndpointURL    string          // Custom S3 endpoint (for S3-compatible services)
	ForcePathStyle bool            // Use path-style addressing
	ContentType    string          // Content type for uploaded objects
}

// S3UploaderOption represents a configuration function for S3UploaderOptions.
type S3UploaderOption func(*S3UploaderOptions)

func WithS3Bucket(bucket string) S3UploaderOption {
	return func(opts *S3UploaderOptions) { opts.Bucket = bucket }
}

func WithS3Prefix(prefix string) S3UploaderOption {
	return func(opts *S3UploaderOptions) { opts.Prefix = prefix }
}

func WithS3Region(region string) S3UploaderOption {
	return func(opts *S3UploaderOptions) { opts.Region = region }
}

func WithS3Profile(profile string) S3UploaderOption {
	return func(opts *S3UploaderOptions) { opts.Profile = profile }
}

func WithS3Credentials(creds aws.Credentials) S3UploaderOption {
	return func(opts *S3UploaderOptions) { opts.Credentials = creds }
}

func WithS3Endpoint(endpoint string) S3UploaderOption {
	return func(opts *S3UploaderOptions) { opts.EndpointURL = endpoint }
}

func WithS3PathStyle(pathStyle bool) S3UploaderOption {
	return func(opts *S3UploaderOptions) { opts.ForcePathStyle = pathStyle }
}

func WithS3ContentType(contentType string) S3UploaderOption {
	return func(opts *S3UploaderOptions) { opts.ContentType = contentType }
}

// S3Uploader uploads local files to an S3 bucket.
type S3Uploader struct {
	client *s3.Client
	opts   *S3UploaderOptions
	stats  S3UploaderStats
}

// NewS3Uploader creates an uploader with configurable options.
func NewS3Uploader(options ...S3UploaderOption) (*S3Uploader, error) {
	opts := &S3UploaderOptions{
		ContentType: "application/octet-stream",
	}
	for _, option := range options {
		option(opts)
	}
	if opts.Bucket == "" {
		return nil, &S3UploaderError{Op: "validate_options", Err: fmt.Errorf("bucket is required")}
	}

	cfg, err := createAWSConfig(opts)
	if err != nil {
		return nil, &S3UploaderError{Op: "create_aws_config", Err: err}
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	return &S3Uploader{client: client, opts: opts}, nil
}

func createAWSConfig(opts *S3UploaderOptions) (aws.Config, error) {
	configOpts := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		configOpts = append(configOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	cfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return aws.Config{}, err
	}
	if opts.Credentials.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				opts.Credentials.AccessKeyID,
				opts.Credentials.SecretAccessKey,
				opts.Credentials.SessionToken,
			),
		)
	}
	return cfg, nil
}

// Upload sends a local file to the bucket under the configured prefix and
// returns the object key.
func (u *S3Uploader) Upload(ctx context.Context, filename string) (string, error) {
	start := time.Now()

	file, err := os.Open(filename)
	if err != nil {
		u.stats.ErrorCount++
		return "", &S3UploaderError{Op: "open_file", Err: err}
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		u.stats.ErrorCount++
		return "", &S3UploaderError{Op: "stat_file", Err: err}
	}

	key := path.Join(u.opts.Prefix, filepath.Base(filename))
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.opts.Bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(u.opts.ContentType),
	})
	if err != nil {
		u.stats.ErrorCount++
		return "", &S3UploaderError{Op: "put_object", Key: key, Err: err}
	}

	u.stats.ObjectsUploaded++
	u.stats.BytesUploaded += info.Size()
	u.stats.UploadDuration += time.Since(start)
	u.stats.LastUploadTime = time.Now()
	return key, nil
}

// Stats returns uploader activity counters.
func (u *S3Uploader) Stats() S3UploaderStats {
	return u.stats
}
