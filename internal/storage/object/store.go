// Package object implements the object store gateway: an S3-compatible
// (MinIO) backend for raw uploads, processed artifacts, and ZIP archives,
// with presigned URL issuance and prefix retention rules.
package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

// ErrKind classifies a Store failure so callers can distinguish NotFound
// from Transient (retryable) from Permanent.
type ErrKind int

const (
	KindUnknown ErrKind = iota
	KindNotFound
	KindTransient
	KindPermanent
)

// Error wraps an underlying storage failure with its classification.
type Error struct {
	Kind ErrKind
	Op   string
	Key  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("object store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller should retry the operation.
func (e *Error) Retryable() bool { return e.Kind == KindTransient }

const (
	prefixRaw       = "raw"
	prefixProcessed = "processed"
	prefixArchives  = "archives"
)

// Store is the Object Store Gateway.
type Store struct {
	client    *minio.Client
	bucket    string
	retention time.Duration
}

// New connects to the MinIO/S3-compatible endpoint, ensures the target
// bucket exists, and applies the retention rules for raw/, processed/,
// and archives/ via EnsureRetention before returning the Store.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool, retentionDays int) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	days := retentionDays
	if days <= 0 {
		days = 1
	}

	s := &Store{
		client:    client,
		bucket:    bucket,
		retention: time.Duration(days) * 24 * time.Hour,
	}

	if err := s.EnsureRetention(ctx, days); err != nil {
		return nil, err
	}

	return s, nil
}

// EnsureRetention idempotently configures one-day (or configured)
// expiry rules on the raw/, processed/, and archives/ prefixes.
func (s *Store) EnsureRetention(ctx context.Context, days int) error {
	cfg := lifecycle.NewConfiguration()
	for _, prefix := range []string{prefixRaw + "/", prefixProcessed + "/", prefixArchives + "/"} {
		cfg.Rules = append(cfg.Rules, lifecycle.Rule{
			ID:     "expire-" + prefix,
			Status: "Enabled",
			RuleFilter: lifecycle.Filter{
				Prefix: prefix,
			},
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(days),
			},
		})
	}

	if err := s.client.SetBucketLifecycle(ctx, s.bucket, cfg); err != nil {
		return classify("ensure-retention", "", err)
	}
	return nil
}

// RawKey returns the canonical key for a job's original upload.
func RawKey(jobID, originalName string) string {
	return path.Join(prefixRaw, jobID, originalName)
}

// ProcessedKey returns the canonical key for one operation's output.
func ProcessedKey(jobID, operation, ext string) string {
	return path.Join(prefixProcessed, jobID, operation+"."+ext)
}

// ArchiveKey returns the canonical key for a job's ZIP bundle.
func ArchiveKey(jobID string) string {
	return path.Join(prefixArchives, jobID+".zip")
}

// DownloadFilename builds the suggested attachment name for a signed URL:
// pixtools_{op}_{stem}.{ext}, where stem is originalName with its
// extension stripped. op is empty for the archive bundle.
func DownloadFilename(op, originalName, ext string) string {
	stem := strings.TrimSuffix(path.Base(originalName), path.Ext(originalName))
	if op == "" {
		return fmt.Sprintf("pixtools_%s.%s", stem, ext)
	}
	return fmt.Sprintf("pixtools_%s_%s.%s", op, stem, ext)
}

// PutRaw uploads the client's original bytes under raw/{job_id}/{name}.
func (s *Store) PutRaw(ctx context.Context, key string, data io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, data, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return classify("put-raw", key, err)
	}
	return nil
}

// PutProcessed uploads a processed artifact under processed/{job_id}/{op}.{ext}.
func (s *Store) PutProcessed(ctx context.Context, key string, data io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, data, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return classify("put-processed", key, err)
	}
	return nil
}

// Get downloads the object at key.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify("get", key, err)
	}
	// minio-go defers the network round trip to the first Read/Stat call,
	// so force it now to surface NotFound eagerly instead of on first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, classify("get", key, err)
	}
	return obj, nil
}

// Sign issues a short-lived signed URL for key. It never returns a URL
// for a key that manifestly does not exist yet, but callers must still
// tolerate a signed URL 404ing later if the object expired between
// signing and use. downloadFilename, if non-empty, suggests an
// attachment filename via Content-Disposition.
func (s *Store) Sign(ctx context.Context, key string, ttl time.Duration, downloadFilename string) (string, error) {
	reqParams := make(map[string][]string)
	if downloadFilename != "" {
		reqParams["response-content-disposition"] = []string{
			fmt.Sprintf(`attachment; filename="%s"`, downloadFilename),
		}
	}

	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return "", classify("sign", key, err)
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, reqParams)
	if err != nil {
		return "", classify("sign", key, err)
	}
	return u.String(), nil
}

// Delete removes the object at key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return classify("delete", key, err)
	}
	return nil
}

// Ping verifies connectivity for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func classify(op, key string, err error) error {
	if err == nil {
		return nil
	}

	resp := minio.ToErrorResponse(err)
	kind := KindTransient
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		kind = KindNotFound
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		kind = KindPermanent
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			kind = KindTransient
		}
	}

	return &Error{Kind: kind, Op: op, Key: key, Err: err}
}
