// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jcodagnone/fieldex/classifier"
	"github.com/jcodagnone/fieldex/utils/httputils"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// modelPrefix is the object prefix of the stored models.
const modelPrefix = "models/"

// MinioConfig holds the object storage connection settings.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	// Trace writes every request and response to stderr.
	Trace bool `yaml:"trace"`
}

// MinioStore keeps models in an S3 compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to the object storage and creates the bucket if
// needed.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio: bucket is required")
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	}

	if cfg.Trace {
		transport, err := minio.DefaultTransport(cfg.UseSSL)
		if err != nil {
			return nil, fmt.Errorf("minio transport: %w", err)
		}

		opts.Transport = &httputils.LoggingRoundTripper{Transport: transport, Writer: os.Stderr}
	}

	client, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}

		log.Printf("Created model bucket %s", cfg.Bucket)
	}

	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

func objectName(version string) string {
	return modelPrefix + version + extension
}

// versionOf is the inverse of objectName. ok is false for foreign objects.
func versionOf(key string) (string, bool) {
	if !strings.HasPrefix(key, modelPrefix) || !strings.HasSuffix(key, extension) {
		return "", false
	}

	v := strings.TrimSuffix(strings.TrimPrefix(key, modelPrefix), extension)

	return v, ValidateVersion(v) == nil
}

func (s *MinioStore) Save(ctx context.Context, m *classifier.Model) error {
	if err := m.Validate(); err != nil {
		return err
	}

	if err := ValidateVersion(m.Version); err != nil {
		return err
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return fmt.Errorf("encoding model %s: %w", m.Version, err)
	}

	_, err := s.client.PutObject(ctx, s.bucket, objectName(m.Version), &buf, int64(buf.Len()),
		minio.PutObjectOptions{ContentType: "application/gzip"})
	if err != nil {
		return fmt.Errorf("failed to upload model %s: %w", m.Version, err)
	}

	return nil
}

func (s *MinioStore) Load(ctx context.Context, version string) (*classifier.Model, error) {
	if err := ValidateVersion(version); err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, objectName(version), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.notFound(version, err)
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		return nil, s.notFound(version, err)
	}

	m, err := classifier.ReadModel(obj)
	if err != nil {
		return nil, fmt.Errorf("reading model %s: %w", version, err)
	}

	return m, nil
}

func (s *MinioStore) notFound(version string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%s: %w", version, ErrNotFound)
	}

	return fmt.Errorf("failed to get model %s: %w", version, err)
}

// List uses the object modification time as training time.
func (s *MinioStore) List(ctx context.Context) ([]Info, error) {
	var ret []Info

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: modelPrefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing models: %w", obj.Err)
		}

		if v, ok := versionOf(obj.Key); ok {
			ret = append(ret, Info{Version: v, TrainedAt: obj.LastModified, Size: obj.Size})
		}
	}

	sortInfos(ret)

	return ret, nil
}

func (s *MinioStore) Latest(ctx context.Context) (*classifier.Model, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	if len(infos) == 0 {
		return nil, ErrNotFound
	}

	return s.Load(ctx, infos[0].Version)
}
