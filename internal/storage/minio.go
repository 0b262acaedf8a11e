package storage

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/autopeer-io/agentupgrade/pkg/log"
	"github.com/autopeer-io/agentupgrade/pkg/options"
)

type minioProvider struct {
	client     *minio.Client
	bucketName string
	region     string
}

// NewMinIOProvider returns a Provider backed by an S3 compatible object store.
func NewMinIOProvider(opts *options.S3Options) (Provider, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure:    opts.UseSSL,
		Region:    opts.Region,
		Transport: transport,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create minio client")
	}

	return &minioProvider{
		client:     client,
		bucketName: opts.BucketName,
		region:     opts.Region,
	}, nil
}

func (p *minioProvider) CheckBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucketName)
	if err != nil {
		return errors.Wrapf(err, "failed to check bucket %s", p.bucketName)
	}
	if exists {
		return nil
	}

	log.Info("Bucket does not exist, creating", "bucket", p.bucketName)
	if err := p.client.MakeBucket(ctx, p.bucketName, minio.MakeBucketOptions{Region: p.region}); err != nil {
		return errors.Wrapf(err, "failed to create bucket %s", p.bucketName)
	}
	return nil
}

func (p *minioProvider) Upload(ctx context.Context, key string, r io.Reader, size int64, progress Reporter) error {
	putOpts := minio.PutObjectOptions{ContentType: "application/octet-stream"}
	if progress != nil {
		putOpts.Progress = NewProgressReader(size, progress)
	}

	info, err := p.client.PutObject(ctx, p.bucketName, key, r, size, putOpts)
	if err != nil {
		return errors.Wrapf(err, "failed to upload %s", key)
	}

	log.Debug("Staged WPK file", "bucket", info.Bucket, "key", info.Key, "size", info.Size, "etag", info.ETag)
	return nil
}

func (p *minioProvider) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := p.client.PresignedGetObject(ctx, p.bucketName, key, expiry, url.Values{})
	if err != nil {
		return "", errors.Wrapf(err, "failed to presign %s", key)
	}
	return u.String(), nil
}
