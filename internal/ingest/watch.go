package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultSettle = 500 * time.Millisecond

// Watch ingests files that appear in dir until ctx is cancelled. Writes to the
// same file are coalesced until it has been quiet for settle; each path is
// ingested at most once per run. Files already present when Watch starts are
// treated as ingested, so editing them does not add a second copy.
func (in *Ingestor) Watch(ctx context.Context, dir string, settle time.Duration) error {
	if settle <= 0 {
		settle = defaultSettle
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	fmt.Fprintf(in.out, "Watching %s for new files...\n", dir)

	done, err := existingFiles(dir)
	if err != nil {
		return err
	}
	ready := make(chan string, 16)
	pending := make(map[string]*time.Timer)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !Supported(ev.Name) {
				continue
			}
			path := filepath.Clean(ev.Name)
			if done[path] {
				continue
			}
			if t, ok := pending[path]; ok {
				t.Reset(settle)
				continue
			}
			pending[path] = time.AfterFunc(settle, func() {
				select {
				case ready <- path:
				case <-ctx.Done():
				}
			})
		case path := <-ready:
			delete(pending, path)
			if done[path] {
				continue
			}
			done[path] = true
			if _, err := in.IngestFile(ctx, path); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				in.log.Error("ingest watched file failed", "file", path, "error", err)
				fmt.Fprintf(in.out, "Failed: %s: %v\n", filepath.Base(path), err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.log.Warn("watcher error", "error", err)
		}
	}
}

func existingFiles(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read library %s: %w", dir, err)
	}
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() && Supported(e.Name()) {
			seen[filepath.Clean(filepath.Join(dir, e.Name()))] = true
		}
	}
	return seen, nil
}
