package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/mirrorlens/mirrorlens/internal/events"
	"github.com/mirrorlens/mirrorlens/internal/logging"
	"github.com/mirrorlens/mirrorlens/internal/metrics"
	"github.com/mirrorlens/mirrorlens/internal/remote"
)

// syncExtensions are the file extensions mirrored and embedded.
var syncExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// IsSyncable reports whether a remote file name is eligible for mirroring.
func IsSyncable(name string) bool {
	return syncExtensions[strings.ToLower(filepath.Ext(name))]
}

// Drive is the remote-store surface the syncer needs.
type Drive interface {
	ListFilesRecursive(ctx context.Context, token string) ([]remote.File, error)
	DownloadFile(ctx context.Context, id, token string) ([]byte, error)
}

// ImageEmbedder is the embedding-provider surface the syncer needs.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, data []byte) ([]float32, error)
}

// Stats summarizes one sync run.
type Stats struct {
	Files      int `json:"files"`
	Downloaded int `json:"downloaded"`
	Embedded   int `json:"embedded"`
	Evicted    int `json:"evicted"`
}

// Syncer reconciles a user's local mirror against the remote listing.
type Syncer struct {
	store       *Store
	drive       Drive
	embedder    ImageEmbedder
	broadcaster *events.Broadcaster
	workers     int
}

// NewSyncer creates a syncer. workers bounds the parallel download+embed
// fan-out; broadcaster may be nil.
func NewSyncer(store *Store, drive Drive, embedder ImageEmbedder, broadcaster *events.Broadcaster, workers int) *Syncer {
	if workers <= 0 {
		workers = 4
	}
	return &Syncer{
		store:       store,
		drive:       drive,
		embedder:    embedder,
		broadcaster: broadcaster,
		workers:     workers,
	}
}

// Sync fetches the full remote listing and reconciles the user's mirror:
// entries that left the remote are evicted (maps and local file), new
// eligible files are downloaded and embedded. A failure to obtain the
// listing aborts the run with the prior cache untouched; individual file
// failures are logged and skipped, and remain candidates for the next run.
// An embedding is never recomputed once present for an ID, even if the
// remote bytes changed under that ID.
func (s *Syncer) Sync(ctx context.Context, userID, token string) (*UserCache, Stats, error) {
	start := time.Now()

	listing, err := s.drive.ListFilesRecursive(ctx, token)
	if err != nil {
		// Eviction must never run against a partial listing; valid entries
		// would be wrongly treated as stale.
		metrics.RecordSyncRun("error", 0)
		return nil, Stats{}, fmt.Errorf("list remote files: %w", err)
	}

	eligible := make([]remote.File, 0, len(listing))
	for _, f := range listing {
		if IsSyncable(f.Name) {
			eligible = append(eligible, f)
		}
	}
	currentIDs := make(map[string]bool, len(eligible))
	for _, f := range eligible {
		currentIDs[f.ID] = true
	}

	unlock := s.store.Lock(userID)
	defer unlock()

	cache, err := s.store.Load(userID)
	if err != nil {
		metrics.RecordSyncRun("error", 0)
		return nil, Stats{}, err
	}

	stats := Stats{Files: len(eligible)}

	// Eviction pass: drop everything no longer present remotely.
	for id, name := range cache.Names {
		if currentIDs[id] {
			continue
		}
		if err := s.store.RemoveFile(userID, name); err != nil {
			logging.Warn("failed to remove mirrored file",
				zap.String("user", userID), zap.String("name", name), zap.Error(err))
		}
		delete(cache.Embeddings, id)
		delete(cache.Names, id)
		stats.Evicted++
		s.publish(events.Event{Type: events.EventEvicted, UserID: userID, FileID: id, Name: name})
	}

	// Ingestion pass: capture renames, then download and embed what is
	// missing. Files are independent units of work, so the download+embed
	// step fans out across a bounded worker pool.
	type work struct {
		file         remote.File
		needDownload bool
		needEmbed    bool
	}
	var pending []work
	for _, f := range eligible {
		if old, ok := cache.Names[f.ID]; ok && old != f.Name {
			// Renamed under the same ID: the bytes get re-downloaded under
			// the new name, so the old file would otherwise be orphaned.
			if err := s.store.RemoveFile(userID, old); err != nil {
				logging.Warn("failed to remove renamed file",
					zap.String("user", userID), zap.String("name", old), zap.Error(err))
			}
		}
		cache.Names[f.ID] = f.Name
		_, hasEmbedding := cache.Embeddings[f.ID]
		w := work{
			file:         f,
			needDownload: !s.store.HasFile(userID, f.Name),
			needEmbed:    !hasEmbedding,
		}
		if w.needDownload || w.needEmbed {
			pending = append(pending, w)
		}
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(s.workers)
	for _, w := range pending {
		p.Go(func() {
			f := w.file
			if w.needDownload {
				data, err := s.drive.DownloadFile(ctx, f.ID, token)
				if err != nil {
					logging.Warn("download failed, skipping until next sync",
						zap.String("user", userID), zap.String("name", f.Name), zap.Error(err))
					return
				}
				if _, err := s.store.WriteFile(userID, f.Name, data); err != nil {
					logging.Warn("failed to persist mirrored file",
						zap.String("user", userID), zap.String("name", f.Name), zap.Error(err))
					return
				}
				metrics.RecordDownload()
				mu.Lock()
				stats.Downloaded++
				mu.Unlock()
				s.publish(events.Event{Type: events.EventDownloaded, UserID: userID, FileID: f.ID, Name: f.Name})
			}

			if !w.needEmbed {
				return
			}
			data, err := os.ReadFile(s.store.FilePath(userID, f.Name))
			if err != nil {
				logging.Warn("failed to read mirrored file for embedding",
					zap.String("user", userID), zap.String("name", f.Name), zap.Error(err))
				return
			}
			vector, err := s.embedder.EmbedImage(ctx, data)
			if err != nil {
				logging.Warn("embedding failed, skipping until next sync",
					zap.String("user", userID), zap.String("name", f.Name), zap.Error(err))
				return
			}
			metrics.RecordEmbedded()
			mu.Lock()
			cache.Embeddings[f.ID] = vector
			stats.Embedded++
			mu.Unlock()
			s.publish(events.Event{Type: events.EventEmbedded, UserID: userID, FileID: f.ID, Name: f.Name})
		})
	}
	p.Wait()

	if err := s.store.Save(userID, cache); err != nil {
		metrics.RecordSyncRun("error", 0)
		return nil, Stats{}, err
	}

	metrics.RecordSyncRun("ok", time.Since(start))
	metrics.RecordEvicted(stats.Evicted)
	metrics.SetMirrorEntries(userID, len(cache.Names))
	s.publish(events.Event{Type: events.EventSyncDone, UserID: userID, Count: len(cache.Names)})

	logging.Info("sync complete",
		zap.String("user", userID),
		zap.Int("files", stats.Files),
		zap.Int("downloaded", stats.Downloaded),
		zap.Int("embedded", stats.Embedded),
		zap.Int("evicted", stats.Evicted),
		zap.Duration("took", time.Since(start)))

	return cache, stats, nil
}

func (s *Syncer) publish(e events.Event) {
	if s.broadcaster != nil {
		s.broadcaster.Publish(e)
	}
}
