package chat

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// PromptStore holds the system prompt. When backed by a file the prompt is
// reloaded whenever the file changes; a failed reload keeps the previous
// prompt.
type PromptStore struct {
	mu        sync.RWMutex
	prompt    string
	path      string
	watcher   *fsnotify.Watcher
	logger    *slog.Logger
	done      chan struct{}
	closeOnce sync.Once
}

// NewPromptStore returns a store for path. An empty path yields a store that
// always returns fallback.
func NewPromptStore(path, fallback string, logger *slog.Logger) (*PromptStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &PromptStore{
		prompt: fallback,
		logger: logger.With("component", "chat", "prompt_file", path),
		done:   make(chan struct{}),
	}
	if path == "" {
		return p, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	p.path = abs
	if err := p.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors and config-map mounts replace the file
	// rather than writing it in place.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching prompt file: %w", err)
	}
	p.watcher = watcher
	go p.processEvents()
	return p, nil
}

// Prompt returns the current system prompt.
func (p *PromptStore) Prompt() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.prompt
}

// Close stops watching the prompt file.
func (p *PromptStore) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		if p.watcher != nil {
			err = p.watcher.Close()
		}
	})
	return err
}

func (p *PromptStore) reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("reading prompt file: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return fmt.Errorf("prompt file %s is empty", p.path)
	}
	p.mu.Lock()
	p.prompt = prompt
	p.mu.Unlock()
	return nil
}

func (p *PromptStore) processEvents() {
	for {
		select {
		case <-p.done:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := p.reload(); err != nil {
				p.logger.Warn("prompt reload failed, keeping previous prompt", "error", err)
				continue
			}
			p.logger.Info("system prompt reloaded")
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("prompt watcher error", "error", err)
		}
	}
}
