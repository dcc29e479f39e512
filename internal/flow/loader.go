package flow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/orchd-dev/orchd/internal/stringutil"
)

// Loader reads flow definitions from a directory of YAML files. Like the
// blueprint loader it caches parsed flows until invalidated.
type Loader struct {
	dir string

	mu    sync.RWMutex
	cache map[string]*Flow
}

// NewLoader creates a Loader over dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, cache: make(map[string]*Flow)}
}

// Load returns the validated flow with the given id.
func (l *Loader) Load(id string) (*Flow, error) {
	l.mu.RLock()
	if f, ok := l.cache[id]; ok {
		l.mu.RUnlock()
		return f, nil
	}
	l.mu.RUnlock()

	f, err := l.read(id)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[id] = f
	l.mu.Unlock()
	return f, nil
}

// Exists reports whether a flow file exists for id.
func (l *Loader) Exists(id string) bool {
	_, err := os.Stat(l.path(id))
	return err == nil
}

// List returns the ids of all flow files present on disk.
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
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if strings.HasSuffix(name, ".yaml") {
			ids = append(ids, strings.TrimSuffix(name, ".yaml"))
		} else if strings.HasSuffix(name, ".yml") {
			ids = append(ids, strings.TrimSuffix(name, ".yml"))
		}
	}
	return ids, nil
}

// Invalidate drops the cache entry for id.
func (l *Loader) Invalidate(id string) {
	l.mu.Lock()
	delete(l.cache, id)
	l.mu.Unlock()
}

// ClearCache drops all cached flows.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]*Flow)
	l.mu.Unlock()
}

func (l *Loader) path(id string) string {
	p := filepath.Join(l.dir, id+".yaml")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	alt := filepath.Join(l.dir, id+".yml")
	if _, err := os.Stat(alt); err == nil {
		return alt
	}
	return p
}

func (l *Loader) read(id string) (*Flow, error) {
	data, err := os.ReadFile(l.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("flow %q not found", id)
		}
		return nil, fmt.Errorf("failed to read flow %q: %w", id, err)
	}

	f := &Flow{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("failed to parse flow %q: %w", id, err)
	}
	f.ID = id
	if f.Name == "" {
		f.Name = stringutil.KebabToTitle(id)
	}
	if f.MaxParallelism <= 0 {
		f.MaxParallelism = 4
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}
