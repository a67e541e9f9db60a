package persist

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/confd-io/confd/internal/logger"
)

// SchemaWatcher watches a directory of schema files (.yang/.yin) for
// changes made outside an explicit module-install request: an admin
// dropping or removing a file directly on disk. It reports only the
// module name and whether the change looks like an install or an
// uninstall; it carries no schema content of its own, since this
// implementation never parses YANG text (see internal/yang's package
// doc) — the caller is responsible for resolving the name against its
// own compiled module catalog before acting on the event.
type SchemaWatcher struct {
	w    *fsnotify.Watcher
	done chan struct{}
}

// WatchSchemaDir starts watching dir and runs onChange from a single
// internal goroutine for every Create/Write (installed=true) or
// Remove/Rename (installed=false) event on a .yang or .yin file.
func WatchSchemaDir(dir string, onChange func(module string, installed bool)) (*SchemaWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}

	sw := &SchemaWatcher{w: w, done: make(chan struct{})}
	go sw.run(onChange)
	return sw, nil
}

func (sw *SchemaWatcher) run(onChange func(module string, installed bool)) {
	defer close(sw.done)
	for {
		select {
		case ev, ok := <-sw.w.Events:
			if !ok {
				return
			}
			module, ok := moduleFromSchemaPath(ev.Name)
			if !ok {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				onChange(module, true)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				onChange(module, false)
			}
		case err, ok := <-sw.w.Errors:
			if !ok {
				return
			}
			logger.Warn("schema directory watch error", "error", err)
		}
	}
}

// Close stops the watch and waits for the run goroutine to exit.
func (sw *SchemaWatcher) Close() error {
	err := sw.w.Close()
	<-sw.done
	return err
}

func moduleFromSchemaPath(path string) (string, bool) {
	ext := filepath.Ext(path)
	if ext != ".yang" && ext != ".yin" {
		return "", false
	}
	return strings.TrimSuffix(filepath.Base(path), ext), true
}
