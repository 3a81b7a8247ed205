// Package deploy deploys process definition files from disk and keeps a directory
// deployed by watching it for changes.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pbinitiative/zenorchestrator/internal/log"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
)

type Deployer interface {
	DeployYaml(ctx context.Context, data []byte, deployment string) ([]model.ProcessDefinition, error)
}

// IsDefinitionFile reports whether path looks like a YAML definition file.
func IsDefinitionFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// File deploys the definitions of one file, named after the file.
func File(ctx context.Context, deployer Deployer, path string) ([]model.ProcessDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	definitions, err := deployer.DeployYaml(ctx, data, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to deploy %s: %w", path, err)
	}
	return definitions, nil
}

// Directory deploys every definition file below dir. A broken file does not stop the others.
func Directory(ctx context.Context, deployer Deployer, dir string) ([]model.ProcessDefinition, error) {
	var (
		res     []model.ProcessDefinition
		errJoin error
	)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsDefinitionFile(path) {
			return nil
		}
		definitions, err := File(ctx, deployer, path)
		if err != nil {
			errJoin = errors.Join(errJoin, err)
			return nil
		}
		res = append(res, definitions...)
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	return res, errJoin
}

// Watcher redeploys definition files of a directory tree when they are written.
type Watcher struct {
	deployer Deployer
	dir      string
	// Debounce collapses the burst of events an editor produces when saving
	Debounce time.Duration
	// OnDeploy is called after every attempted deployment
	OnDeploy func(path string, definitions []model.ProcessDefinition, err error)

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewWatcher(deployer Deployer, dir string) *Watcher {
	return &Watcher{
		deployer: deployer,
		dir:      dir,
		Debounce: 300 * time.Millisecond,
		timers:   map[string]*time.Timer{},
	}
}

// Run watches until ctx is done. ready is closed once the watches are registered.
func (w *Watcher) Run(ctx context.Context, ready chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	err = filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	if ready != nil {
		close(ready)
	}
	log.Info("watching %s for process definitions", w.dir)

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("definition watcher error: %s", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := watcher.Add(event.Name); err != nil {
				log.Error("failed to watch %s: %s", event.Name, err)
			}
			return
		}
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !IsDefinitionFile(event.Name) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[event.Name]; ok {
		timer.Stop()
	}
	path := event.Name
	w.timers[path] = time.AfterFunc(w.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.deploy(ctx, path)
	})
}

func (w *Watcher) deploy(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	definitions, err := File(ctx, w.deployer, path)
	if err != nil {
		log.Error("%s", err)
	} else {
		for _, d := range definitions {
			log.Info("deployed %s version %d from %s", d.Key, d.Version, path)
		}
	}
	if w.OnDeploy != nil {
		w.OnDeploy(path, definitions, err)
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
}
