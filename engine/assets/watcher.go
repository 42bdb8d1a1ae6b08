package assets

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
)

/** @brief A compiled shader stage that changed on disk. */
type ShaderChange struct {
	Path    string
	Name    string
	Stage   metadata.ShaderStage
	Removed bool
}

// Watcher reports changes to compiled shaders under a directory tree.
type Watcher struct {
	fsnotify *fsnotify.Watcher
	changes  chan ShaderChange
	errors   chan error

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewWatcher(dir string) (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating shader watcher")
	}

	w := &Watcher{
		fsnotify: fsWatch,
		changes:  make(chan ShaderChange, 16),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
	if err := w.watchRecursive(dir); err != nil {
		fsWatch.Close()
		return nil, errors.Wrapf(err, "watching `%s`", dir)
	}

	w.wg.Add(1)
	go w.start()

	core.LogInfo("watching shaders in `%s`", dir)
	return w, nil
}

// Changes is closed by Close.
func (w *Watcher) Changes() <-chan ShaderChange {
	return w.changes
}

func (w *Watcher) Errors() <-chan error {
	return w.errors
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		err = w.fsnotify.Close()
	})
	return err
}

func (w *Watcher) start() {
	defer w.wg.Done()
	defer close(w.changes)
	defer close(w.errors)

	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			w.handleEvent(e)

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %s", err)
			select {
			case w.errors <- err:
			default:
			}

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(e fsnotify.Event) {
	if e.Op&fsnotify.Create != 0 {
		if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
			if err := w.watchRecursive(e.Name); err != nil {
				core.LogWarn("watching new directory `%s`: %s", e.Name, err)
			}
			return
		}
	}

	name, stage, ok := ParseShaderPath(e.Name)
	if !ok {
		return
	}
	change := ShaderChange{Path: e.Name, Name: name, Stage: stage}
	switch {
	case e.Op&(fsnotify.Create|fsnotify.Write) != 0:
	case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		change.Removed = true
	default:
		return
	}

	core.LogDebug("shader `%s` changed (%s)", e.Name, e.Op)
	select {
	case w.changes <- change:
	case <-w.done:
	}
}

// watchRecursive adds all directories under the given one to the watch list.
func (w *Watcher) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return nil
		}
		return w.fsnotify.Add(walkPath)
	})
}
