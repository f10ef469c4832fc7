package agent

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/hbanerjee74/skill-builder/internal/logging"
)

// WorkspaceWatcher reports file writes inside skill workspaces so callers
// can refresh partial-output detection without polling. Events carry the
// path relative to the workspace root; slow consumers lose events rather
// than blocking the watch loop.
type WorkspaceWatcher struct {
	root    string
	fs      *fsnotify.Watcher
	log     *logging.Logger
	changes chan string
	done    chan struct{}
}

// NewWorkspaceWatcher starts watching under root. Individual skill
// directories are added with Watch.
func NewWorkspaceWatcher(root string, log *logging.Logger) (*WorkspaceWatcher, error) {
	if log == nil {
		log = logging.NewNop()
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &WorkspaceWatcher{
		root:    root,
		fs:      fs,
		log:     log,
		changes: make(chan string, 64),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Watch adds one skill's workspace directory to the watch set.
func (w *WorkspaceWatcher) Watch(skill string) error {
	return w.fs.Add(filepath.Join(w.root, skill))
}

// Changes returns the channel of workspace-relative changed paths.
func (w *WorkspaceWatcher) Changes() <-chan string {
	return w.changes
}

func (w *WorkspaceWatcher) loop() {
	defer close(w.changes)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			rel, err := filepath.Rel(w.root, ev.Name)
			if err != nil {
				rel = ev.Name
			}
			select {
			case w.changes <- rel:
			default:
				w.log.Debug("dropping workspace change event", "path", rel)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("workspace watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *WorkspaceWatcher) Close() error {
	close(w.done)
	return w.fs.Close()
}
