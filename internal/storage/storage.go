// Package storage хранит report'ы tasks в объектном хранилище (MinIO / S3).
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/shaiso/Feedline/internal/domain"
)

// refScheme — префикс ссылки на report в Task.ResultRef.
const refScheme = "s3://"

// ErrInvalidRef — ResultRef не указывает на объект.
var ErrInvalidRef = errors.New("invalid result ref")

// Config — параметры подключения к MinIO.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool

	// Region задаёт регион явно (без запроса location бакета).
	Region string
}

// ReportStore сохраняет report'ы в бакет.
type ReportStore struct {
	client *minio.Client
	bucket string
}

// NewReportStore создаёт ReportStore.
func NewReportStore(cfg Config) (*ReportStore, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("minio endpoint is not configured")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("minio bucket is not configured")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	return &ReportStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket создаёт бакет, если его нет.
func (s *ReportStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// ReportKey возвращает ключ объекта report task.
func ReportKey(publicID, taskName string) string {
	return "entries/" + publicID + "/tasks/" + taskName + "/report.json"
}

// Put сохраняет report и возвращает ссылку s3://<bucket>/<key>.
// Повторный Put перезаписывает объект.
func (s *ReportStore) Put(ctx context.Context, publicID, taskName string, report *domain.Report) (string, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	key := ReportKey(publicID, taskName)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}

	return refScheme + s.bucket + "/" + key, nil
}

// Get читает report по ссылке из Task.ResultRef.
func (s *ReportStore) Get(ctx context.Context, ref string) (*domain.Report, error) {
	bucket, key, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()

	var report domain.Report
	if err := json.NewDecoder(obj).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &report, nil
}

// ParseRef разбирает s3://<bucket>/<key>.
func ParseRef(ref string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(ref, refScheme)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return bucket, key, nil
}
