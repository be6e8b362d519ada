package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// FileStore keeps preferences in memory and persists them to a YAML file
// in the background. Consecutive writes are coalesced: the writer always
// saves the latest snapshot.
type FileStore struct {
	*MemoryStore

	path  string
	dirty chan struct{}
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
	log   zerolog.Logger
}

// OpenFileStore loads path if it exists and starts the background writer.
func OpenFileStore(path string, log zerolog.Logger) (*FileStore, error) {
	fs := &FileStore{
		MemoryStore: NewMemoryStore(),
		path:        path,
		dirty:       make(chan struct{}, 1),
		done:        make(chan struct{}),
		log:         log,
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fs.values); err != nil {
			return nil, fmt.Errorf("failed to parse preferences file %s: %w", path, err)
		}
		if fs.values == nil {
			fs.values = make(map[string]string)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read preferences file %s: %w", path, err)
	}

	fs.wg.Add(1)
	go fs.writer()
	return fs, nil
}

// Set updates the value and schedules a save. It never blocks on I/O.
func (fs *FileStore) Set(key, value string) {
	fs.MemoryStore.Set(key, value)
	select {
	case fs.dirty <- struct{}{}:
	default:
	}
}

func (fs *FileStore) writer() {
	defer fs.wg.Done()
	for {
		select {
		case <-fs.dirty:
			if err := fs.save(); err != nil {
				fs.log.Warn().Err(err).Str("path", fs.path).Msg("failed to save preferences")
			}
		case <-fs.done:
			select {
			case <-fs.dirty:
				if err := fs.save(); err != nil {
					fs.log.Warn().Err(err).Str("path", fs.path).Msg("failed to save preferences")
				}
			default:
			}
			return
		}
	}
}

func (fs *FileStore) save() error {
	data, err := yaml.Marshal(fs.snapshot())
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return os.Rename(tmp, fs.path)
}

// Close flushes any pending write and stops the writer.
func (fs *FileStore) Close() error {
	fs.once.Do(func() { close(fs.done) })
	fs.wg.Wait()
	return nil
}
