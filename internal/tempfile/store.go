package tempfile

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"doclingapi/internal/models"
)

const (
	// FilePrefix marks files owned by this service inside a shared temp directory.
	FilePrefix = "docling-upload-"

	DefaultTTL             = time.Hour
	DefaultCleanupInterval = 10 * time.Minute
)

// Store hands out transient files that let a path-based converter read an upload.
// Every file is owned by exactly one request.
type Store struct {
	dir    string
	suffix string
	log    logrus.FieldLogger
}

// NewStore creates the directory if needed. Files get the given suffix (".pdf").
func NewStore(dir, suffix string, log logrus.FieldLogger) (*Store, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &Store{dir: dir, suffix: suffix, log: log}, nil
}

// Dir returns the directory files are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Create writes r to a new uniquely named file.
// On failure nothing is left behind.
func (s *Store) Create(r io.Reader, originalName string) (*models.TempFile, error) {
	path := filepath.Join(s.dir, FilePrefix+uuid.NewString()+s.suffix)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	return &models.TempFile{
		OriginalName: originalName,
		StoredPath:   path,
		Size:         n,
	}, nil
}

// Remove deletes the file. Errors are logged and dropped.
func (s *Store) Remove(f *models.TempFile) {
	if f == nil || f.StoredPath == "" {
		return
	}
	if err := os.Remove(f.StoredPath); err != nil && !os.IsNotExist(err) {
		s.log.WithError(err).WithFields(logrus.Fields{
			"path":   f.StoredPath,
			"upload": f.OriginalName,
		}).Warn("remove temp file failed")
	}
}

// StartCleaner removes files left behind by a crashed process once they are older than ttl.
func (s *Store) StartCleaner(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	go s.cleanupLoop(ctx, interval, ttl)
}

func (s *Store) cleanupLoop(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CleanupExpired(ttl); err != nil {
				s.log.WithError(err).Warn("cleanup temp files error")
			}
		}
	}
}

// CleanupExpired removes owned files whose modification time is older than ttl
// and returns how many were deleted.
func (s *Store) CleanupExpired(ttl time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read temp dir: %w", err)
	}
	cutoff := time.Now().Add(-ttl)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), FilePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.log.WithError(err).WithField("path", path).Warn("remove expired temp file failed")
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.WithField("count", removed).Info("removed expired temp files")
	}
	return removed, nil
}
