// Package snapshot persists the knowledge record set to a single JSON file.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cloo-solutions/kbsearch/internal/domain"
	"github.com/cloo-solutions/kbsearch/internal/logging"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTTL is how long a saved snapshot stays usable
	DefaultTTL = 40 * time.Minute
	// DefaultPath is where the snapshot lives relative to the working directory
	DefaultPath = "data/knowledge.json"
)

// document is the on-disk layout. Timestamp is epoch milliseconds.
type document struct {
	Timestamp int64                    `json:"timestamp"`
	Data      []domain.KnowledgeRecord `json:"data"`
	Count     int                      `json:"count"`
}

// FileStore keeps one snapshot in a JSON file.
type FileStore struct {
	path string
	ttl  time.Duration
	now  func() time.Time
	log  *logrus.Entry
}

// NewFileStore creates a FileStore. Zero values fall back to defaults.
func NewFileStore(path string, ttl time.Duration) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &FileStore{
		path: path,
		ttl:  ttl,
		now:  time.Now,
		log:  logging.Component("snapshot").WithField("path", path),
	}
}

// Path returns the snapshot file location
func (s *FileStore) Path() string {
	return s.path
}

// TTL returns the configured time to live
func (s *FileStore) TTL() time.Duration {
	return s.ttl
}

// Load returns the saved snapshot if it exists, parses and is younger than
// the TTL. Any other condition is reported as (nil, false), never an error.
func (s *FileStore) Load(ctx context.Context) (*domain.Snapshot, bool) {
	snap, err := s.Read(ctx)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.log.Info("no local snapshot, sync required")
		} else {
			s.log.WithError(err).Warn("local snapshot unreadable, sync required")
		}
		return nil, false
	}

	if !snap.Fresh(s.now(), s.ttl) {
		s.log.WithField("captured_at", snap.CapturedAt).Info("local snapshot expired, sync required")
		return nil, false
	}

	s.log.WithField("records", snap.Count()).Info("loaded local snapshot")
	return snap, true
}

// Read returns the saved snapshot regardless of its age.
func (s *FileStore) Read(ctx context.Context) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "snapshot file is not valid JSON", err)
	}
	if doc.Data == nil {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "snapshot file has no data")
	}

	return domain.NewSnapshot(time.UnixMilli(doc.Timestamp), doc.Data), nil
}

// Save writes records as a new snapshot stamped with the current time. The
// file is replaced atomically so a concurrent reader never sees a partial
// document. Failures are returned as CACHE_PERSIST_ERROR.
func (s *FileStore) Save(ctx context.Context, records []domain.KnowledgeRecord) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeCachePersist, "snapshot save cancelled", err)
	}

	snap := domain.NewSnapshot(s.now(), records)

	doc := document{
		Timestamp: snap.CapturedAt.UnixMilli(),
		Data:      snap.Records,
		Count:     snap.Count(),
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeCachePersist, "failed to encode snapshot", err)
	}

	if err := writeFileAtomic(s.path, payload); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeCachePersist, "failed to write snapshot", err)
	}

	s.log.WithField("records", snap.Count()).Info("saved local snapshot")
	return snap, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
