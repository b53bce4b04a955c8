package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/archive"
	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/fsutil"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/logging"
)

const (
	progressID   = "progress"
	progressFile = progressID + ".json"
)

// Checkpoint is the persisted outcome of one generation.
type Checkpoint struct {
	PromptHash string            `json:"prompt_hash"`
	Content    string            `json:"generated_content"`
	TokensUsed int               `json:"tokens_used"`
	Timestamp  time.Time         `json:"timestamp"`
	Context    map[string]string `json:"context,omitempty"`
}

// sameContent compares everything except the timestamp.
func sameContent(a, b Checkpoint) bool {
	a.Timestamp, b.Timestamp = time.Time{}, time.Time{}
	x, errA := json.Marshal(a)
	y, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(x, y)
}

// Progress records how far a run got.
type Progress struct {
	RunID      string    `json:"run_id"`
	DreadLevel int       `json:"dread_level"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CheckpointStore keeps one JSON file per generation id under dir.
type CheckpointStore struct {
	dir    string
	mu     sync.Mutex
	now    func() time.Time
	logger *zap.Logger
}

// NewCheckpointStore creates the store directory if needed.
func NewCheckpointStore(dir string, logger *zap.Logger) (*CheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIO, fmt.Sprintf("creating checkpoint dir %s", dir), err)
	}
	return &CheckpointStore{dir: dir, now: time.Now, logger: logging.OrNop(logger)}, nil
}

// Dir returns the store directory
func (s *CheckpointStore) Dir() string { return s.dir }

func (s *CheckpointStore) path(id string) (string, error) {
	if id == "" || filepath.Base(id) != id || id == progressID {
		return "", apperrors.Newf(apperrors.CodeIO, "invalid checkpoint id %q", id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// Save writes cp under id. Saving content identical to the stored checkpoint
// is a no-op and reports false. Different content archives the previous file
// before replacing it.
func (s *CheckpointStore) Save(id string, cp Checkpoint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(id)
	if err != nil {
		return false, err
	}
	if cp.Timestamp.IsZero() {
		cp.Timestamp = s.now()
	}

	prev, found, err := s.read(path)
	if err != nil {
		return false, err
	}
	if found {
		if sameContent(prev, cp) {
			return false, nil
		}
		dest := archive.Name(filepath.Join(s.dir, "archives"), "checkpoint_"+id, s.now())
		if err := archive.Create(dest, s.dir, []string{path}); err != nil {
			return false, apperrors.Wrap(apperrors.CodeIO, fmt.Sprintf("archiving checkpoint %s", id), err)
		}
		s.logger.Debug("Archived superseded checkpoint", zap.String("id", id), zap.String("archive", dest))
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encoding checkpoint %s: %w", id, err)
	}
	if err := fsutil.WriteFileAtomic(path, data); err != nil {
		return false, apperrors.Wrap(apperrors.CodeIO, fmt.Sprintf("writing checkpoint %s", id), err)
	}
	return true, nil
}

// Load returns the checkpoint stored under id, if any.
func (s *CheckpointStore) Load(id string) (Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(id)
	if err != nil {
		return Checkpoint{}, false, err
	}
	return s.read(path)
}

func (s *CheckpointStore) read(path string) (Checkpoint, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, apperrors.Wrap(apperrors.CodeIO, fmt.Sprintf("reading %s", path), err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		// A corrupt checkpoint is treated as absent and will be rewritten.
		s.logger.Warn("Ignoring unreadable checkpoint", zap.String("path", path), zap.Error(err))
		return Checkpoint{}, false, nil
	}
	return cp, true, nil
}

// SaveProgress replaces the run progress record.
func (s *CheckpointStore) SaveProgress(p Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now()
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(s.dir, progressFile), data); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, "writing progress", err)
	}
	return nil
}

// LoadProgress returns the last saved progress record.
func (s *CheckpointStore) LoadProgress() (Progress, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, progressFile))
	if errors.Is(err, os.ErrNotExist) {
		return Progress{}, false, nil
	}
	if err != nil {
		return Progress{}, false, apperrors.Wrap(apperrors.CodeIO, "reading progress", err)
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return Progress{}, false, apperrors.Wrap(apperrors.CodeIO, "decoding progress", err)
	}
	return p, true, nil
}
