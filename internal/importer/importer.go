// Package importer ingests swim-time export files dropped into a watched
// directory. Meet-management tools export results as JSON; any *.json file
// appearing in the import directory is parsed, written to the local store
// through the sync engine (so it is enqueued for push like any other local
// edit), and consumed on success.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/jarnaez728/swimsync/internal/record"
)

// Sink receives parsed swim times. The sync engine satisfies this.
type Sink interface {
	SaveSwimTime(ctx context.Context, st *record.SwimTime) error
}

// Importer watches one directory for dropped swim-time JSON files.
type Importer struct {
	dir    string
	sink   Sink
	logger *log.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// New creates an importer for dir. If logger is nil a stderr logger is used.
func New(dir string, sink Sink, logger *log.Logger) (*Importer, error) {
	if dir == "" {
		return nil, fmt.Errorf("import directory cannot be empty")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[importer] ", log.LstdFlags)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Importer{
		dir:     dir,
		sink:    sink,
		logger:  logger,
		watcher: watcher,
		done:    make(chan struct{}),
	}, nil
}

// Start ingests any files already present, then begins watching for new
// ones. Events are processed until Stop is called.
func (im *Importer) Start(ctx context.Context) error {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.running {
		return fmt.Errorf("importer already running")
	}

	if err := os.MkdirAll(im.dir, 0755); err != nil {
		return fmt.Errorf("failed to create import directory: %w", err)
	}
	if err := im.watcher.Add(im.dir); err != nil {
		return fmt.Errorf("failed to watch import directory %s: %w", im.dir, err)
	}

	// Catch up on files dropped while we weren't watching.
	entries, err := os.ReadDir(im.dir)
	if err != nil {
		return fmt.Errorf("failed to read import directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		im.ingestFile(ctx, filepath.Join(im.dir, entry.Name()))
	}

	im.running = true
	im.wg.Add(1)
	go im.processEvents(ctx)
	return nil
}

// Stop stops watching and blocks until the event loop has exited.
func (im *Importer) Stop() error {
	im.mu.Lock()
	if !im.running {
		im.mu.Unlock()
		return nil
	}
	im.running = false
	im.mu.Unlock()

	close(im.done)
	if err := im.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	im.wg.Wait()
	return nil
}

func (im *Importer) processEvents(ctx context.Context) {
	defer im.wg.Done()

	for {
		select {
		case <-im.done:
			return

		case event, ok := <-im.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			im.ingestFile(ctx, event.Name)

		case err, ok := <-im.watcher.Errors:
			if !ok {
				return
			}
			im.logger.Printf("Watcher error: %v", err)
		}
	}
}

// ingestFile parses one export file and feeds its swim times to the sink.
// The file is removed once every entry was ingested; a partly failed file
// stays behind for inspection.
func (im *Importer) ingestFile(ctx context.Context, path string) {
	times, err := ReadExportFile(path)
	if err != nil {
		im.logger.Printf("WARNING: failed to read export %s: %v", filepath.Base(path), err)
		return
	}

	failed := 0
	for _, st := range times {
		if err := im.sink.SaveSwimTime(ctx, st); err != nil {
			im.logger.Printf("WARNING: failed to import swim time %s: %v", st.ID, err)
			failed++
		}
	}

	if failed == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			im.logger.Printf("WARNING: failed to consume %s: %v", filepath.Base(path), err)
		}
		im.logger.Printf("Imported %d swim times from %s", len(times), filepath.Base(path))
		return
	}
	im.logger.Printf("Imported %d/%d swim times from %s (file kept)",
		len(times)-failed, len(times), filepath.Base(path))
}

// ReadExportFile parses a swim-time export: either a single object or an
// array of objects in the record's JSON shape. Entries without an id get a
// fresh one so re-exports from tools that don't track ids still import.
func ReadExportFile(path string) ([]*record.SwimTime, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// Not an array; try a single object.
		raw = []json.RawMessage{data}
	}

	times := make([]*record.SwimTime, 0, len(raw))
	for i, entry := range raw {
		var st record.SwimTime
		if err := json.Unmarshal(entry, &st); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if st.ID == "" {
			st.ID = record.NewID()
		}
		if err := st.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		times = append(times, &st)
	}
	return times, nil
}
