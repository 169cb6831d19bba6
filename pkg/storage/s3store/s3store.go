// Package s3store is an AWS S3-backed storage.Store. In compliance mode
// it applies an S3 Object Lock retention period that neither the bucket
// owner nor root can shorten or remove before it expires, giving
// EnforcesRetention=true its teeth.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/ledgerseal/auditcore/pkg/auditerr"
	"github.com/ledgerseal/auditcore/pkg/storage"
)

// Config holds S3Store construction options.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string // custom endpoint for MinIO/LocalStack
	Prefix   string

	// ComplianceMode, when true, applies S3 Object Lock in COMPLIANCE
	// mode (no principal, including the bucket owner, can shorten or
	// remove the lock before it expires). When false, GOVERNANCE mode
	// is used, which a sufficiently privileged principal can override.
	ComplianceMode bool
}

// Store is an AWS S3-backed storage.Store.
type Store struct {
	client         *s3.Client
	bucket         string
	prefix         string
	complianceMode bool
}

// New creates an S3-backed store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("s3store: load aws config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}

	return &Store{
		client:         s3.NewFromConfig(awsCfg, clientOpts),
		bucket:         cfg.Bucket,
		prefix:         cfg.Prefix,
		complianceMode: cfg.ComplianceMode,
	}, nil
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Store(ctx context.Context, key string, data []byte, opts storage.StoreOptions) (*storage.StoredObject, error) {
	fullKey := s.key(key)

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(fullKey)})
	if err == nil {
		return nil, auditerr.New("s3store.Store", auditerr.KindAlreadyExists, errors.New("object already exists"))
	}
	if !isNotFound(err) {
		return nil, auditerr.New("s3store.Store", auditerr.KindStorageFailure, err)
	}

	hash := storage.ContentHash(data)
	metadata := make(map[string]string, len(opts.Metadata)+1)
	for k, v := range opts.Metadata {
		metadata[k] = v
	}
	metadata["content-hash"] = fmt.Sprintf("%x", hash)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(fullKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(defaultContentType(opts.ContentType)),
		Metadata:    metadata,
	}

	if opts.Retention != nil {
		mode := types.ObjectLockModeGovernance
		if s.complianceMode {
			mode = types.ObjectLockModeCompliance
		}
		until := time.Now().UTC().AddDate(0, 0, opts.Retention.Days)
		input.ObjectLockMode = mode
		input.ObjectLockRetainUntilDate = aws.Time(until)
	}

	_, err = s.client.PutObject(ctx, input)
	if err != nil {
		return nil, auditerr.New("s3store.Store", auditerr.KindStorageFailure, err)
	}

	return &storage.StoredObject{
		Key:         key,
		ContentHash: hash,
		Size:        int64(len(data)),
		StoredAt:    time.Now().UTC(),
		Retention:   opts.Retention,
	}, nil
}

func (s *Store) Retrieve(ctx context.Context, key string) (*storage.RetrievedObject, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(s.key(key))})
	if err != nil {
		if isNotFound(err) {
			return nil, auditerr.New("s3store.Retrieve", auditerr.KindNotFound, err)
		}
		return nil, auditerr.New("s3store.Retrieve", auditerr.KindStorageFailure, err)
	}
	defer out.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, auditerr.New("s3store.Retrieve", auditerr.KindStorageFailure, err)
	}

	meta := make(map[string]string, len(out.Metadata))
	for k, v := range out.Metadata {
		meta[k] = v
	}
	return &storage.RetrievedObject{Data: buf.Bytes(), Metadata: meta}, nil
}

func (s *Store) VerifyIntegrity(ctx context.Context, key string) (bool, error) {
	obj, err := s.Retrieve(ctx, key)
	if err != nil {
		return false, err
	}
	storedHex, ok := obj.Metadata["content-hash"]
	if !ok {
		return false, auditerr.New("s3store.VerifyIntegrity", auditerr.KindIntegrityFailed, errors.New("object missing content-hash metadata"))
	}
	var stored [32]byte
	if _, err := fmt.Sscanf(storedHex, "%x", &stored); err != nil {
		return false, auditerr.New("s3store.VerifyIntegrity", auditerr.KindIntegrityFailed, err)
	}
	recomputed := storage.ContentHash(obj.Data)
	return storage.ConstantTimeEqual(recomputed, stored), nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(s.key(key))})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, auditerr.New("s3store.Exists", auditerr.KindStorageFailure, err)
	}
	return true, nil
}

func (s *Store) List(ctx context.Context, prefix string, limit int) ([]string, error) {
	var keys []string
	var continuation *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.key(prefix)),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, auditerr.New("s3store.List", auditerr.KindStorageFailure, err)
		}
		for _, obj := range out.Contents {
			k := aws.ToString(obj.Key)
			if len(s.prefix) > 0 {
				k = k[len(s.prefix):]
			}
			keys = append(keys, k)
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		continuation = out.NextContinuationToken
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (s *Store) ApplyLegalHold(ctx context.Context, key string) error {
	_, err := s.client.PutObjectLegalHold(ctx, &s3.PutObjectLegalHoldInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
		LegalHold: &types.ObjectLockLegalHold{
			Status: types.ObjectLockLegalHoldStatusOn,
		},
	})
	if err != nil {
		if isNotFound(err) {
			return auditerr.New("s3store.ApplyLegalHold", auditerr.KindNotFound, err)
		}
		return auditerr.New("s3store.ApplyLegalHold", auditerr.KindStorageFailure, err)
	}
	return nil
}

func (s *Store) RemoveLegalHold(ctx context.Context, key string) error {
	_, err := s.client.PutObjectLegalHold(ctx, &s3.PutObjectLegalHoldInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
		LegalHold: &types.ObjectLockLegalHold{
			Status: types.ObjectLockLegalHoldStatusOff,
		},
	})
	if err != nil {
		if isNotFound(err) {
			return auditerr.New("s3store.RemoveLegalHold", auditerr.KindNotFound, err)
		}
		return auditerr.New("s3store.RemoveLegalHold", auditerr.KindStorageFailure, err)
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return auditerr.New("s3store.HealthCheck", auditerr.KindConnectionFailed, err)
	}
	return nil
}

func (s *Store) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		ProviderName:      "s3",
		SupportsWORM:      s.complianceMode,
		SupportsLegalHold: true,
		SupportsRetention: true,
		EnforcesRetention: s.complianceMode,
		MaxObjectSize:     5 * 1024 * 1024 * 1024 * 1024, // 5TB S3 object cap
	}
}

func defaultContentType(ct string) string {
	if ct == "" {
		return "application/json"
	}
	return ct
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 404
	}
	return false
}
