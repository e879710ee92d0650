package progress

import (
	"fmt"
	"os"
	"sync"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/hexhaunt/promptq-cli/api/schemas"
)

// FileSink appends events to a JSONL file, one event per line. Write
// failures are logged and swallowed so a full disk cannot take the queue
// down with it.
type FileSink struct {
	log    *zap.Logger
	mu     sync.Mutex
	f      *os.File
	closed bool
}

// NewFileSink opens (or creates) path for appending.
func NewFileSink(path string, logger *zap.Logger) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening progress file: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSink{log: logger.Named("progress_file"), f: f}, nil
}

// Post implements Sink.
func (s *FileSink) Post(ev schemas.ProgressEvent) {
	line, err := json.Marshal(ev)
	if err != nil {
		s.log.Warn("Failed to encode progress event.", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, err := s.f.Write(append(line, '\n')); err != nil {
		s.log.Warn("Failed to write progress event.", zap.Error(err))
	}
}

// Close flushes and closes the underlying file. Subsequent posts are
// silently discarded.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}
