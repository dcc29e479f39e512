package blueprint

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/orchd-dev/orchd/internal/document"
)

// Loader reads blueprints from a directory and caches them. Cache entries
// are invalidated explicitly, typically when a watcher sees the file change.
type Loader struct {
	dir          string
	defaultModel string

	mu    sync.RWMutex
	cache map[string]*Blueprint
}

// NewLoader creates a Loader over dir. defaultModel is applied to blueprints
// that do not declare their own model.
func NewLoader(dir, defaultModel string) *Loader {
	return &Loader{
		dir:          dir,
		defaultModel: defaultModel,
		cache:        make(map[string]*Blueprint),
	}
}

// Load returns the blueprint for id, reading from cache when possible.
func (l *Loader) Load(id string) (*Blueprint, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	l.mu.RLock()
	if bp, ok := l.cache[id]; ok {
		l.mu.RUnlock()
		return bp, nil
	}
	l.mu.RUnlock()

	bp, err := l.read(id)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[id] = bp
	l.mu.Unlock()
	return bp, nil
}

// Exists reports whether a blueprint file exists for id.
func (l *Loader) Exists(id string) bool {
	if ValidateID(id) != nil {
		return false
	}
	_, err := os.Stat(l.path(id))
	return err == nil
}

// List returns the ids of all blueprints present on disk.
func (l *Loader) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".md") || strings.HasPrefix(name, ".") {
			continue
		}
		id := strings.TrimSuffix(name, ".md")
		if ValidateID(id) == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Invalidate drops the cache entry for id so the next Load rereads disk.
func (l *Loader) Invalidate(id string) {
	l.mu.Lock()
	delete(l.cache, id)
	l.mu.Unlock()
}

// ClearCache drops all cached blueprints.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]*Blueprint)
	l.mu.Unlock()
}

func (l *Loader) path(id string) string {
	return filepath.Join(l.dir, id+".md")
}

func (l *Loader) read(id string) (*Blueprint, error) {
	data, err := os.ReadFile(l.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{ID: id, Reason: "blueprint not found"}
		}
		return nil, &LoadError{ID: id, Reason: "read failed", Err: err}
	}

	doc, err := document.Parse(string(data))
	if err != nil {
		return nil, &LoadError{ID: id, Reason: "parse failed", Err: err}
	}

	bp := &Blueprint{ID: id}
	if doc.Frontmatter != nil {
		if err := document.Decode(doc.Frontmatter, bp); err != nil {
			return nil, &LoadError{ID: id, Reason: "invalid frontmatter", Err: err}
		}
	}
	bp.ID = id
	bp.SystemPrompt = strings.TrimSpace(doc.Body)
	bp.applyDefaults(l.defaultModel)

	if err := bp.validate(); err != nil {
		return nil, err
	}
	return bp, nil
}
