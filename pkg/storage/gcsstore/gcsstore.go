//go:build gcp

// Package gcsstore is a Google Cloud Storage-backed storage.Store. It
// uses bucket-level retention policies plus per-object temporary holds
// for legal hold, which GCS only offers in governance mode (a project
// owner can always remove a hold) — EnforcesRetention is therefore
// always false.
package gcsstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/ledgerseal/auditcore/pkg/auditerr"
	auditstorage "github.com/ledgerseal/auditcore/pkg/storage"
)

// Config holds Store construction options.
type Config struct {
	Bucket string
	Prefix string
}

// Store is a GCS-backed storage.Store.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed store using application default credentials.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcsstore: new client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *Store) object(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + key)
}

func (s *Store) Store(ctx context.Context, key string, data []byte, opts auditstorage.StoreOptions) (*auditstorage.StoredObject, error) {
	obj := s.object(key)

	if _, err := obj.Attrs(ctx); err == nil {
		return nil, auditerr.New("gcsstore.Store", auditerr.KindAlreadyExists, errors.New("object already exists"))
	} else if !errors.Is(err, storage.ErrObjectNotExist) {
		return nil, auditerr.New("gcsstore.Store", auditerr.KindStorageFailure, err)
	}

	hash := auditstorage.ContentHash(data)
	metadata := make(map[string]string, len(opts.Metadata)+1)
	for k, v := range opts.Metadata {
		metadata[k] = v
	}
	metadata["content-hash"] = fmt.Sprintf("%x", hash)

	w := obj.NewWriter(ctx)
	w.ContentType = defaultContentType(opts.ContentType)
	w.Metadata = metadata
	if opts.Retention != nil {
		w.Retention = &storage.ObjectRetention{
			Mode:        "Unlocked",
			RetainUntil: time.Now().UTC().AddDate(0, 0, opts.Retention.Days),
		}
	}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, auditerr.New("gcsstore.Store", auditerr.KindStorageFailure, err)
	}
	if err := w.Close(); err != nil {
		return nil, auditerr.New("gcsstore.Store", auditerr.KindStorageFailure, err)
	}

	return &auditstorage.StoredObject{
		Key:         key,
		ContentHash: hash,
		Size:        int64(len(data)),
		StoredAt:    time.Now().UTC(),
		Retention:   opts.Retention,
	}, nil
}

func (s *Store) Retrieve(ctx context.Context, key string) (*auditstorage.RetrievedObject, error) {
	obj := s.object(key)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, auditerr.New("gcsstore.Retrieve", auditerr.KindNotFound, err)
		}
		return nil, auditerr.New("gcsstore.Retrieve", auditerr.KindStorageFailure, err)
	}

	reader, err := obj.NewReader(ctx)
	if err != nil {
		return nil, auditerr.New("gcsstore.Retrieve", auditerr.KindStorageFailure, err)
	}
	defer reader.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, reader); err != nil {
		return nil, auditerr.New("gcsstore.Retrieve", auditerr.KindStorageFailure, err)
	}

	return &auditstorage.RetrievedObject{Data: buf.Bytes(), Metadata: attrs.Metadata}, nil
}

func (s *Store) VerifyIntegrity(ctx context.Context, key string) (bool, error) {
	obj, err := s.Retrieve(ctx, key)
	if err != nil {
		return false, err
	}
	storedHex, ok := obj.Metadata["content-hash"]
	if !ok {
		return false, auditerr.New("gcsstore.VerifyIntegrity", auditerr.KindIntegrityFailed, errors.New("object missing content-hash metadata"))
	}
	var stored [32]byte
	if _, err := fmt.Sscanf(storedHex, "%x", &stored); err != nil {
		return false, auditerr.New("gcsstore.VerifyIntegrity", auditerr.KindIntegrityFailed, err)
	}
	recomputed := auditstorage.ContentHash(obj.Data)
	return auditstorage.ConstantTimeEqual(recomputed, stored), nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, auditerr.New("gcsstore.Exists", auditerr.KindStorageFailure, err)
	}
	return true, nil
}

func (s *Store) List(ctx context.Context, prefix string, limit int) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix + prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, auditerr.New("gcsstore.List", auditerr.KindStorageFailure, err)
		}
		keys = append(keys, attrs.Name[len(s.prefix):])
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (s *Store) ApplyLegalHold(ctx context.Context, key string) error {
	_, err := s.object(key).Update(ctx, storage.ObjectAttrsToUpdate{TemporaryHold: true})
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return auditerr.New("gcsstore.ApplyLegalHold", auditerr.KindNotFound, err)
		}
		return auditerr.New("gcsstore.ApplyLegalHold", auditerr.KindStorageFailure, err)
	}
	return nil
}

func (s *Store) RemoveLegalHold(ctx context.Context, key string) error {
	_, err := s.object(key).Update(ctx, storage.ObjectAttrsToUpdate{TemporaryHold: false})
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return auditerr.New("gcsstore.RemoveLegalHold", auditerr.KindNotFound, err)
		}
		return auditerr.New("gcsstore.RemoveLegalHold", auditerr.KindStorageFailure, err)
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.Bucket(s.bucket).Attrs(ctx)
	if err != nil {
		return auditerr.New("gcsstore.HealthCheck", auditerr.KindConnectionFailed, err)
	}
	return nil
}

func (s *Store) Capabilities() auditstorage.Capabilities {
	return auditstorage.Capabilities{
		ProviderName:      "gcs",
		SupportsWORM:      false,
		SupportsLegalHold: true,
		SupportsRetention: true,
		EnforcesRetention: false,
		MaxObjectSize:     5 * 1024 * 1024 * 1024 * 1024,
	}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func defaultContentType(ct string) string {
	if ct == "" {
		return "application/json"
	}
	return ct
}
