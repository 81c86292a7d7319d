package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// TokenSource supplies the bearer token attached to backend requests. Clear is
// called when the backend rejects the token with 401.
type TokenSource interface {
	Token() string
	Clear()
}

// StaticTokenSource holds a token taken from configuration.
type StaticTokenSource struct {
	mu    sync.RWMutex
	token string
}

// NewStaticTokenSource wraps a fixed token. An empty token disables auth.
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: strings.TrimSpace(token)}
}

func (s *StaticTokenSource) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *StaticTokenSource) Clear() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// FileTokenSource reads the persisted credential file and reloads it whenever the
// file is rewritten. A missing file means no token.
type FileTokenSource struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewFileTokenSource loads the token stored at path.
func NewFileTokenSource(path string, logger *slog.Logger) (*FileTokenSource, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("token file path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileTokenSource{path: filepath.Clean(path), logger: logger}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileTokenSource) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Clear drops the in-memory token. The file is left alone; a later rewrite of
// the file restores a token.
func (s *FileTokenSource) Clear() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// Watch reloads the token on changes to the file until ctx is cancelled. The
// parent directory is watched so that atomic rename-into-place writes are seen.
func (s *FileTokenSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create token watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if err := s.reload(); err != nil {
					s.logger.Warn("token reload failed", slog.String("path", s.path), slog.Any("error", err))
					continue
				}
				s.logger.Debug("token reloaded", slog.String("path", s.path), slog.Bool("present", s.Token() != ""))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("token watcher error", slog.Any("error", err))
		}
	}
}

func (s *FileTokenSource) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read token file: %w", err)
	}
	s.mu.Lock()
	s.token = strings.TrimSpace(string(data))
	s.mu.Unlock()
	return nil
}
