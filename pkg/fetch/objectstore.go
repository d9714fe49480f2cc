package fetch

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
)

// ObjectStoreConfig locates an S3-compatible endpoint.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// ObjectStoreFetcher reads s3://bucket/key artifacts from a MinIO or S3
// compatible store.
type ObjectStoreFetcher struct {
	Client *minio.Client
}

// NewObjectStoreFetcher connects to the endpoint in cfg. No request is made
// until the first Fetch.
func NewObjectStoreFetcher(cfg ObjectStoreConfig) (*ObjectStoreFetcher, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "object store endpoint required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "object store %s", cfg.Endpoint)
	}
	return &ObjectStoreFetcher{Client: client}, nil
}

func (f *ObjectStoreFetcher) Fetch(ctx context.Context, req dist.Requirement) (*Response, error) {
	loc, err := Location(req)
	if err != nil {
		return nil, err
	}
	bucket, key, err := ParseObjectURL(loc)
	if err != nil {
		return nil, err
	}

	obj, err := f.Client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, objectError(err, loc)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, objectError(err, loc)
	}
	return &Response{Body: obj, Size: info.Size, Filename: path.Base(key)}, nil
}

// ParseObjectURL splits s3://bucket/key.
func ParseObjectURL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "s3" {
		return "", "", errors.New(errors.ErrCodeInvalidRequirement, "not an s3 URL: %s", raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", errors.New(errors.ErrCodeInvalidRequirement, "s3 URL needs bucket and key: %s", raw)
	}
	return u.Host, key, nil
}

func objectError(err error, loc string) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return errors.Wrap(errors.ErrCodeNotFound, err, "%s", loc)
	}
	return errors.Wrap(errors.ErrCodeFetch, err, "get %s", loc)
}
