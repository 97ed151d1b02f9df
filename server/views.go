package server

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
)

// ViewEngine renders a named view with the given data.
type ViewEngine interface {
	Render(w io.Writer, name string, data any) error
}

// Extensions that the html engine treats as templates.
var templateExtensions = []string{".html", ".gohtml", ".tmpl"}

// HTMLEngine is a [ViewEngine] backed by html/template. Every template file below the view
// directory is parsed once; a file "users/list.html" is rendered as the view "users/list".
type HTMLEngine struct {
	dir    string
	logger *slog.Logger

	mu        sync.RWMutex
	templates *template.Template
	loadErr   error

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHTMLEngine parses all templates in dir. Parse errors do not prevent the engine from being
// created: they are logged and returned by every subsequent call to Render until a reload succeeds.
func NewHTMLEngine(dir string, logger *slog.Logger) *HTMLEngine {
	if logger == nil {
		logger = slog.Default()
	}
	engine := &HTMLEngine{dir: dir, logger: logger}
	if err := engine.Load(); err != nil {
		logger.Error("Could not load views", "dir", dir, "error", err)
	}
	return engine
}

// Dir returns the directory the templates are loaded from.
func (engine *HTMLEngine) Dir() string {
	return engine.dir
}

// Load (re)parses all templates from disk.
func (engine *HTMLEngine) Load() error {
	root := template.New("")
	err := filepath.WalkDir(engine.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isTemplate(path) {
			return nil
		}
		rel, err := filepath.Rel(engine.dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("cannot read view %q: %w", path, err)
		}
		if _, err := root.New(name).Parse(string(content)); err != nil {
			return fmt.Errorf("cannot parse view %q: %w", name, err)
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("cannot load views from %q: %w", engine.dir, err)
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if err != nil {
		engine.loadErr = err
		return err
	}
	engine.templates = root
	engine.loadErr = nil
	return nil
}

// Render executes the named view. Output is buffered so a failing template never writes a
// partial response.
func (engine *HTMLEngine) Render(w io.Writer, name string, data any) error {
	engine.mu.RLock()
	templates, loadErr := engine.templates, engine.loadErr
	engine.mu.RUnlock()

	if loadErr != nil {
		return loadErr
	}
	var tmpl *template.Template
	if templates != nil {
		tmpl = templates.Lookup(name)
	}
	if tmpl == nil {
		return fmt.Errorf("%w: %q", ErrViewNotFound, name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("cannot render view %q: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Watch reloads the templates whenever a file below the view directory changes. Bursts of
// changes are collapsed into one reload after delay. The watcher runs until Close is called.
func (engine *HTMLEngine) Watch(delay time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("cannot create watcher: %w", err)
	}
	err = filepath.WalkDir(engine.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := watcher.Add(path); err != nil {
				return fmt.Errorf("cannot add directory %q to watcher: %w", path, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("cannot watch views: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	engine.cancel = cancel
	engine.done = make(chan struct{})
	debouncer := debounce.New(delay)

	go func() {
		defer close(engine.done)
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = watcher.Add(event.Name)
					}
				}
				debouncer(func() {
					if err := engine.Load(); err != nil {
						engine.logger.Error("Could not reload views", "error", err)
					} else {
						engine.logger.Debug("Views reloaded", "trigger", event.Name)
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				engine.logger.Warn("View watcher error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Close stops watching for changes. It is safe to call Close on an engine that is not watching.
func (engine *HTMLEngine) Close() error {
	if engine.cancel == nil {
		return nil
	}
	engine.cancel()
	<-engine.done
	engine.cancel = nil
	return nil
}

func isTemplate(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range templateExtensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

var _ io.Closer = (*HTMLEngine)(nil)
