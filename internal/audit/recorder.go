// Package audit records per-stage build metrics into rotated CSV reports.
package audit

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/archive"
	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/logging"
)

// ArchivePrefix names rotated report archives.
const ArchivePrefix = "audit_archive"

// Recorder appends records to <dir>/<category>/<category>.csv. The first
// write of a recorder rotates any reports left by earlier runs.
type Recorder struct {
	dir       string
	retention int
	now       func() time.Time
	logger    *zap.Logger

	mu      sync.Mutex
	rotated bool
}

// NewRecorder creates a recorder rooted at dir. retention <= 0 keeps every archive.
func NewRecorder(dir string, retention int, logger *zap.Logger) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIO, fmt.Sprintf("creating audit dir %s", dir), err)
	}
	return &Recorder{dir: dir, retention: retention, now: time.Now, logger: logging.OrNop(logger)}, nil
}

// Dir returns the reports directory
func (r *Recorder) Dir() string { return r.dir }

// Rotate archives every existing report CSV and removes the originals.
// It returns the archive path, or "" when there was nothing to archive.
func (r *Recorder) Rotate(now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotate(now)
}

func (r *Recorder) rotate(now time.Time) (string, error) {
	r.rotated = true

	files, err := filepath.Glob(filepath.Join(r.dir, "*", "*.csv"))
	if err != nil {
		return "", err
	}
	var reports []string
	for _, f := range files {
		if filepath.Base(filepath.Dir(f)) != "archives" {
			reports = append(reports, f)
		}
	}
	if len(reports) == 0 {
		return "", nil
	}

	archivesDir := filepath.Join(r.dir, "archives")
	dest := archive.Name(archivesDir, ArchivePrefix, now)
	if err := archive.Create(dest, r.dir, reports); err != nil {
		return "", apperrors.Wrap(apperrors.CodeIO, "archiving audit reports", err)
	}
	for _, f := range reports {
		if err := os.Remove(f); err != nil {
			return "", apperrors.Wrap(apperrors.CodeIO, "removing rotated report", err)
		}
	}
	r.logger.Info("Rotated audit reports", zap.String("archive", dest), zap.Int("files", len(reports)))

	removed, err := archive.Prune(archivesDir, ArchivePrefix, r.retention)
	if err != nil {
		return dest, apperrors.Wrap(apperrors.CodeIO, "pruning audit archives", err)
	}
	if len(removed) > 0 {
		r.logger.Debug("Pruned audit archives", zap.Strings("removed", removed))
	}
	return dest, nil
}

// Record appends rec to its category CSV, writing the header for a new file.
func (r *Recorder) Record(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.rotated {
		if _, err := r.rotate(r.now()); err != nil {
			return err
		}
	}

	category := rec.AuditCategory()
	path := filepath.Join(r.dir, category, category+".csv")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, "creating audit category dir", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIO, fmt.Sprintf("opening %s", path), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIO, fmt.Sprintf("stat %s", path), err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(rec.AuditHeaders()); err != nil {
			return apperrors.Wrap(apperrors.CodeIO, "writing audit header", err)
		}
	}
	if err := w.Write(rec.AuditRow()); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, "writing audit row", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, "flushing audit row", err)
	}
	return nil
}
