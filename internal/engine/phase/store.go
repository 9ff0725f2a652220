package phase

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk layout of phases.yaml.
type catalogFile struct {
	Version int          `yaml:"version"`
	Phases  []Definition `yaml:"phases"`
}

// LoadFile reads and compiles a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read phase catalog %s: %w", path, err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse phase catalog %s: %w", path, err)
	}
	c, err := NewCatalog(f.Phases)
	if err != nil {
		return nil, fmt.Errorf("invalid phase catalog %s: %w", path, err)
	}
	return c, nil
}

// WriteFile writes a catalog to a YAML file.
func WriteFile(path string, c *Catalog) error {
	data, err := yaml.Marshal(catalogFile{Version: 1, Phases: c.Definitions()})
	if err != nil {
		return fmt.Errorf("failed to marshal phase catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Store holds the current catalog and allows it to be swapped at runtime.
type Store struct {
	cur atomic.Pointer[Catalog]
}

// NewStore creates a store holding c, or the default catalog when c is nil.
func NewStore(c *Catalog) *Store {
	if c == nil {
		c = Default()
	}
	s := &Store{}
	s.cur.Store(c)
	return s
}

// Load returns the current catalog.
func (s *Store) Load() *Catalog {
	return s.cur.Load()
}

// Swap replaces the current catalog.
func (s *Store) Swap(c *Catalog) {
	if c != nil {
		s.cur.Store(c)
	}
}

// OpenStore loads the catalog at path into a store, falling back to the
// default catalog when the file does not exist.
func OpenStore(path string) (*Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewStore(nil), nil
	}
	c, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewStore(c), nil
}

// Watcher reloads a catalog file into a Store whenever it changes.
// Invalid edits are logged and the previous catalog stays active.
type Watcher struct {
	path      string
	store     *Store
	logger    zerolog.Logger
	fsWatcher *fsnotify.Watcher
	done      chan struct{}
	onReload  func(*Catalog)

	debounceMu sync.Mutex
	debounce   *time.Timer
	closeOnce  sync.Once
}

// NewWatcher watches the directory containing path. The file itself does
// not need to exist yet.
func NewWatcher(path string, store *Store, logger zerolog.Logger, onReload func(*Catalog)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}
	if err := fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}

	w := &Watcher{
		path:      filepath.Clean(path),
		store:     store,
		logger:    logger.With().Str("component", "phase-watcher").Logger(),
		fsWatcher: fsWatcher,
		done:      make(chan struct{}),
		onReload:  onReload,
	}
	go w.processEvents()
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
		w.debounceMu.Lock()
		if w.debounce != nil {
			w.debounce.Stop()
		}
		w.debounceMu.Unlock()
	})
	return err
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	// Editors often save by writing a temp file and renaming it over the target.
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(100*time.Millisecond, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	c, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Msg("keeping previous phase catalog")
		return
	}
	w.store.Swap(c)
	w.logger.Info().Int("phases", len(c.phases)).Msg("phase catalog reloaded")
	if w.onReload != nil {
		w.onReload(c)
	}
}
