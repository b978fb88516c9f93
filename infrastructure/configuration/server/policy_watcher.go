package server

import (
	"context"
	"os"
	"path/filepath"
	"sshcore/application/logging"
	infraLogging "sshcore/infrastructure/logging"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PolicyReloader is implemented by settings.NegotiationPolicy.
type PolicyReloader interface {
	Reload(path string) error
}

// PolicyWatcher reloads the negotiation policy whenever its file changes.
// New connections pick the reloaded policy up; established ones keep the
// algorithms they negotiated.
//
// Uses fsnotify for instant updates, with polling as fallback.
type PolicyWatcher struct {
	policy   PolicyReloader
	path     string
	interval time.Duration
	logger   logging.Logger

	// mu guards the last observed file state; ForceCheck may run
	// concurrently with Watch.
	mu      sync.Mutex
	modTime time.Time
	size    int64
}

func NewPolicyWatcher(policy PolicyReloader, path string, interval time.Duration, logger logging.Logger) *PolicyWatcher {
	if logger == nil {
		logger = infraLogging.NewLogLogger()
	}
	if interval <= 0 {
		interval = DefaultPolicyPollInterval
	}
	return &PolicyWatcher{
		policy:   policy,
		path:     path,
		interval: interval,
		logger:   logger,
	}
}

// Watch blocks until ctx is cancelled.
func (w *PolicyWatcher) Watch(ctx context.Context) {
	w.mu.Lock()
	w.modTime, w.size = w.stat()
	w.mu.Unlock()

	// Watch the directory: atomic writes (temp file, then rename) lose a
	// watch on the file itself.
	var fsEvents <-chan fsnotify.Event
	var fsErrors <-chan error
	dir, file := filepath.Split(w.path)
	if dir == "" {
		dir = "."
	}
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if addErr := watcher.Add(dir); addErr == nil {
			fsEvents = watcher.Events
			fsErrors = watcher.Errors
			w.logger.Printf("policy watcher: watching %s for changes to %s", dir, file)
		} else {
			w.logger.Printf("policy watcher: fsnotify watch failed: %v (using polling)", addErr)
		}
	} else {
		w.logger.Printf("policy watcher: fsnotify unavailable: %v (using polling)", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if filepath.Base(event.Name) != file {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.reload("detected change (op=" + event.Op.String() + ")")
			}
		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			w.logger.Printf("policy watcher: fsnotify error: %v", err)
		case <-ticker.C:
			if w.changed() {
				w.reload("file changed on disk")
			}
		}
	}
}

// ForceCheck reloads the policy immediately, e.g. on SIGHUP.
func (w *PolicyWatcher) ForceCheck() {
	w.reload("reload requested")
}

func (w *PolicyWatcher) changed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	modTime, size := w.stat()
	return !modTime.Equal(w.modTime) || size != w.size
}

func (w *PolicyWatcher) reload(why string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.modTime, w.size = w.stat()
	if err := w.policy.Reload(w.path); err != nil {
		w.logger.Printf("policy watcher: %s, keeping previous policy: %v", why, err)
		return
	}
	w.logger.Printf("policy watcher: %s, policy reloaded from %s", why, w.path)
}

func (w *PolicyWatcher) stat() (time.Time, int64) {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}, -1
	}
	return info.ModTime(), info.Size()
}
