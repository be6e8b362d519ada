// Package library owns the pool of imported media files and the state
// derived from it: tracks, session ranges and sessions. Every change to the
// pool rebuilds the derived state from scratch.
package library

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"multicam/ffprobe"
	"multicam/grouper"
	"multicam/models"
	"multicam/orchestrator"
	"multicam/rangeindex"
)

// DefaultProbeSlots bounds the number of concurrent probe processes.
const DefaultProbeSlots = 4

const rebuildTaskID = "rebuild"

var fileNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("multicam/library"))

// FileID returns the stable id of the file at path.
func FileID(path string) string {
	return uuid.NewSHA1(fileNamespace, []byte(path)).String()
}

// ImportResult reports what an import added to the pool.
type ImportResult struct {
	Added   []models.MediaFile  `json:"added"`
	Skipped []string            `json:"skipped,omitempty"`
	Failed  []models.Diagnostic `json:"failed,omitempty"`
}

// Library is safe for concurrent use.
type Library struct {
	mu          sync.RWMutex
	files       map[string]models.MediaFile
	tracks      []models.Track
	ranges      []models.TimeRange
	sessions    []models.Session
	diagnostics []models.Diagnostic

	prober     ffprobe.Prober
	grouper    *grouper.Grouper
	indexer    *rangeindex.Indexer
	probeSlots int
	log        zerolog.Logger
}

// New creates an empty library that probes files with prober.
func New(prober ffprobe.Prober) *Library {
	return &Library{
		files:      make(map[string]models.MediaFile),
		prober:     prober,
		grouper:    grouper.New(),
		indexer:    rangeindex.New(),
		probeSlots: DefaultProbeSlots,
		log:        zerolog.Nop(),
	}
}

// SetGapEpsilon sets the continuity epsilon used when grouping.
func (l *Library) SetGapEpsilon(eps float64) *Library {
	l.grouper.SetGapEpsilon(eps)
	return l
}

// SetSessionGap sets the gap that separates recording sessions.
func (l *Library) SetSessionGap(gap float64) *Library {
	l.indexer.SetSessionGap(gap)
	return l
}

// SetProbeSlots sets the number of concurrent probes during an import.
func (l *Library) SetProbeSlots(n int) *Library {
	if n > 0 {
		l.probeSlots = n
	}
	return l
}

// SetLogger sets the logger.
func (l *Library) SetLogger(log zerolog.Logger) *Library {
	l.log = log
	l.grouper.SetLogger(log)
	return l
}

// Import probes paths concurrently and adds the results to the pool. Paths
// already in the pool are skipped. A path that cannot be probed is reported
// in ImportResult.Failed and does not stop the import.
//
// The probes and the final rebuild run as one task graph: the rebuild
// depends on every probe, so a cancelled import leaves the pool unchanged.
func (l *Library) Import(ctx context.Context, paths []string) (*ImportResult, error) {
	res := &ImportResult{}

	l.mu.RLock()
	pending := make([]string, 0, len(paths))
	for _, p := range lo.Uniq(paths) {
		if _, exists := l.files[FileID(p)]; exists {
			res.Skipped = append(res.Skipped, p)
			continue
		}
		pending = append(pending, p)
	}
	l.mu.RUnlock()

	if len(pending) == 0 {
		return res, nil
	}

	var (
		mu     sync.Mutex
		probed = make(map[string]models.MediaFile, len(pending))
	)

	orch := orchestrator.NewDAGOrchestrator([]orchestrator.ResourceConstraint{
		{Type: orchestrator.ResourceProbe, MaxSlots: l.probeSlots},
		{Type: orchestrator.ResourceCPU, MaxSlots: 1},
	})

	probeIDs := make([]string, 0, len(pending))
	for _, path := range pending {
		path := path
		taskID := "probe:" + path
		probeIDs = append(probeIDs, taskID)

		err := orch.AddTask(&orchestrator.Task{
			ID:       taskID,
			Resource: orchestrator.ResourceProbe,
			Run: func(ctx context.Context) error {
				result, err := l.prober.Probe(ctx, path)
				if ctx.Err() != nil {
					return ctx.Err()
				}
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					l.log.Warn().Err(err).Str("path", path).Msg("probe failed")
					res.Failed = append(res.Failed, models.DiagnosticFrom(models.NewError(models.KindMissingMetadata, path, err)))
					return nil
				}
				probed[path] = result.ToMediaFile(FileID(path), path)
				return nil
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to schedule probe: %w", err)
		}
	}

	err := orch.AddTask(&orchestrator.Task{
		ID:           rebuildTaskID,
		Resource:     orchestrator.ResourceCPU,
		Dependencies: probeIDs,
		Run: func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			for _, path := range pending {
				if f, ok := probed[path]; ok {
					res.Added = append(res.Added, f)
				}
			}
			l.Add(res.Added...)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule rebuild: %w", err)
	}

	if _, err := orch.Execute(ctx); err != nil {
		if status, _ := orch.GetTaskStatus(rebuildTaskID); status != orchestrator.TaskCompleted {
			return nil, fmt.Errorf("import cancelled: %w", err)
		}
	}

	sort.Slice(res.Failed, func(i, j int) bool { return res.Failed[i].Subject < res.Failed[j].Subject })
	l.log.Info().
		Int("added", len(res.Added)).
		Int("skipped", len(res.Skipped)).
		Int("failed", len(res.Failed)).
		Msg("import complete")
	return res, nil
}

// Add inserts files into the pool, replacing files with the same id, and
// rebuilds the derived state.
func (l *Library) Add(files ...models.MediaFile) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, f := range files {
		l.files[f.ID] = f
	}
	l.rebuildLocked()
}

// Remove deletes files by id and rebuilds the derived state. It reports the
// number of files removed.
func (l *Library) Remove(ids ...string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if _, ok := l.files[id]; ok {
			delete(l.files, id)
			removed++
		}
	}
	if removed > 0 {
		l.rebuildLocked()
	}
	return removed
}

// Rebuild recomputes the derived state from the current pool.
func (l *Library) Rebuild() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rebuildLocked()
}

func (l *Library) rebuildLocked() {
	files := l.filesLocked()

	grouped := l.grouper.Group(files)
	valid := lo.Filter(files, func(f models.MediaFile, _ int) bool { return f.Validate() == nil })

	l.tracks = grouped.Tracks
	l.diagnostics = grouped.Rejected
	l.ranges = l.indexer.Index(valid)
	l.sessions = rangeindex.Sessions(l.ranges, l.tracks)

	l.log.Debug().
		Int("files", len(files)).
		Int("tracks", len(l.tracks)).
		Int("sessions", len(l.sessions)).
		Msg("library rebuilt")
}

// filesLocked returns the pool ordered by path.
func (l *Library) filesLocked() []models.MediaFile {
	files := lo.Values(l.files)
	sort.Slice(files, func(i, j int) bool {
		if files[i].Path != files[j].Path {
			return files[i].Path < files[j].Path
		}
		return files[i].ID < files[j].ID
	})
	return files
}

// Files returns the pool ordered by path.
func (l *Library) Files() []models.MediaFile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filesLocked()
}

// File returns the file with the given id.
func (l *Library) File(id string) (models.MediaFile, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.files[id]
	return f, ok
}

// Tracks returns the current tracks.
func (l *Library) Tracks() []models.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Track(nil), l.tracks...)
}

// Ranges returns the current session ranges.
func (l *Library) Ranges() []models.TimeRange {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.TimeRange(nil), l.ranges...)
}

// Sessions returns the current sessions.
func (l *Library) Sessions() []models.Session {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Session(nil), l.sessions...)
}

// Session returns the session with the given index.
func (l *Library) Session(index int) (models.Session, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.sessions) {
		return models.Session{}, false
	}
	return l.sessions[index], true
}

// Diagnostics returns the files excluded by the last rebuild.
func (l *Library) Diagnostics() []models.Diagnostic {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Diagnostic(nil), l.diagnostics...)
}
