package sequence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// Statically assert that FileStore implements the Store interface.
var _ Store = (*FileStore)(nil)

// FileStore keeps one JSON file per sequence under a single directory.
// Writes go through a temp file and rename, so a crash mid-write never
// leaves a half-written sequence behind.
type FileStore struct {
	dir string
	log *zap.Logger
	mu  sync.Mutex
}

// NewFileStore creates the storage directory if it does not exist yet.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sequence directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{dir: dir, log: logger.Named("sequence_files")}, nil
}

// validID rejects anything that could escape the storage directory when
// joined into a file name.
func validID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) read(path string) (Sequence, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Sequence{}, err
	}
	var seq Sequence
	if err := json.Unmarshal(raw, &seq); err != nil {
		return Sequence{}, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return seq, nil
}

// List returns every readable sequence sorted by name. Unreadable files are
// skipped with a warning instead of failing the whole listing.
func (s *FileStore) List(ctx context.Context) ([]Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading sequence directory: %w", err)
	}

	out := make([]Sequence, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		seq, err := s.read(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.log.Warn("Skipping unreadable sequence file.",
				zap.String("file", entry.Name()),
				zap.Error(err))
			continue
		}
		out = append(out, seq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get loads a single sequence by ID.
func (s *FileStore) Get(ctx context.Context, id string) (Sequence, error) {
	if !validID(id) {
		return Sequence{}, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.read(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return Sequence{}, ErrNotFound
	}
	if err != nil {
		return Sequence{}, err
	}
	return seq, nil
}

// Save validates and persists seq. A sequence without an ID gets a fresh one
// along with its CreatedAt; UpdatedAt is bumped on every save.
func (s *FileStore) Save(ctx context.Context, seq Sequence) (Sequence, error) {
	if err := seq.Validate(); err != nil {
		return Sequence{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	switch {
	case seq.ID == "":
		seq.ID = uuid.NewString()
		seq.CreatedAt = now
	case !validID(seq.ID):
		return Sequence{}, ErrNotFound
	case seq.CreatedAt.IsZero():
		seq.CreatedAt = now
	}
	seq.UpdatedAt = now

	raw, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return Sequence{}, fmt.Errorf("encoding sequence: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".seq-*.tmp")
	if err != nil {
		return Sequence{}, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Sequence{}, fmt.Errorf("writing sequence: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Sequence{}, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(seq.ID)); err != nil {
		os.Remove(tmpName)
		return Sequence{}, fmt.Errorf("storing sequence: %w", err)
	}
	return seq, nil
}

// Delete removes a stored sequence.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting sequence: %w", err)
	}
	return nil
}
