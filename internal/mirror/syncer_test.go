package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/mirrorlens/mirrorlens/internal/remote"
)

type fakeDrive struct {
	mu        sync.Mutex
	listing   []remote.File
	listErr   error
	failIDs   map[string]bool
	downloads map[string]int
}

func (d *fakeDrive) ListFilesRecursive(ctx context.Context, token string) ([]remote.File, error) {
	if d.listErr != nil {
		return nil, d.listErr
	}
	return d.listing, nil
}

func (d *fakeDrive) DownloadFile(ctx context.Context, id, token string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.downloads == nil {
		d.downloads = make(map[string]int)
	}
	d.downloads[id]++
	if d.failIDs[id] {
		return nil, errors.New("download failed")
	}
	return []byte("content-" + id), nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *fakeEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0}, nil
}

func newTestSyncer(t *testing.T, drive *fakeDrive, embedder *fakeEmbedder) (*Syncer, *Store) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return NewSyncer(store, drive, embedder, nil, 2), store
}

func TestSyncDownloadsAndEmbeds(t *testing.T) {
	drive := &fakeDrive{listing: []remote.File{
		{ID: "id1", Name: "dog1.jpg"},
		{ID: "id2", Name: "car_red.png"},
		{ID: "id3", Name: "notes.txt"}, // not eligible
	}}
	embedder := &fakeEmbedder{}
	syncer, store := newTestSyncer(t, drive, embedder)

	cache, stats, err := syncer.Sync(context.Background(), "u1", "tok")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if stats.Downloaded != 2 || stats.Embedded != 2 || stats.Evicted != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(cache.Names) != 2 {
		t.Fatalf("expected 2 entries, got %v", cache.Names)
	}
	if _, ok := cache.Names["id3"]; ok {
		t.Error("non-image file must not be mirrored")
	}
	if !store.HasFile("u1", "dog1.jpg") || !store.HasFile("u1", "car_red.png") {
		t.Error("mirrored files missing on disk")
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	drive := &fakeDrive{listing: []remote.File{
		{ID: "id1", Name: "dog1.jpg"},
	}}
	embedder := &fakeEmbedder{}
	syncer, _ := newTestSyncer(t, drive, embedder)

	first, _, err := syncer.Sync(context.Background(), "u1", "tok")
	if err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	second, stats, err := syncer.Sync(context.Background(), "u1", "tok")
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}

	if stats.Downloaded != 0 || stats.Embedded != 0 {
		t.Errorf("second sync should not re-download or re-embed: %+v", stats)
	}
	if drive.downloads["id1"] != 1 {
		t.Errorf("expected 1 download, got %d", drive.downloads["id1"])
	}
	if embedder.calls != 1 {
		t.Errorf("expected 1 embedding call, got %d", embedder.calls)
	}
	if len(first.Names) != len(second.Names) || first.Names["id1"] != second.Names["id1"] {
		t.Errorf("caches differ: %v vs %v", first.Names, second.Names)
	}
}

func TestSyncEvictsMissingEntries(t *testing.T) {
	drive := &fakeDrive{listing: []remote.File{
		{ID: "id1", Name: "dog1.jpg"},
		{ID: "id2", Name: "car_red.jpg"},
	}}
	embedder := &fakeEmbedder{}
	syncer, store := newTestSyncer(t, drive, embedder)

	if _, _, err := syncer.Sync(context.Background(), "u1", "tok"); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	// Remote now only has id2.
	drive.listing = []remote.File{{ID: "id2", Name: "car_red.jpg"}}
	cache, stats, err := syncer.Sync(context.Background(), "u1", "tok")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if stats.Evicted != 1 {
		t.Fatalf("expected 1 eviction, got %+v", stats)
	}
	if _, ok := cache.Names["id1"]; ok {
		t.Error("id1 should be evicted from names")
	}
	if _, ok := cache.Embeddings["id1"]; ok {
		t.Error("id1 should be evicted from embeddings")
	}
	if store.HasFile("u1", "dog1.jpg") {
		t.Error("evicted local file should be removed")
	}
	if cache.Names["id2"] != "car_red.jpg" {
		t.Error("id2 should be retained unchanged")
	}
}

func TestSyncEmptyListingEvictsEverything(t *testing.T) {
	drive := &fakeDrive{listing: []remote.File{
		{ID: "id1", Name: "dog1.jpg"},
		{ID: "id2", Name: "cat2.jpg"},
	}}
	embedder := &fakeEmbedder{}
	syncer, store := newTestSyncer(t, drive, embedder)

	if _, _, err := syncer.Sync(context.Background(), "u1", "tok"); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	drive.listing = nil
	cache, _, err := syncer.Sync(context.Background(), "u1", "tok")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if len(cache.Names) != 0 || len(cache.Embeddings) != 0 {
		t.Fatalf("cache should be empty, got %v / %v", cache.Names, cache.Embeddings)
	}
	if store.HasFile("u1", "dog1.jpg") || store.HasFile("u1", "cat2.jpg") {
		t.Error("local files should all be removed")
	}
}

func TestSyncListingFailureLeavesCacheUntouched(t *testing.T) {
	drive := &fakeDrive{listing: []remote.File{
		{ID: "id1", Name: "dog1.jpg"},
	}}
	embedder := &fakeEmbedder{}
	syncer, store := newTestSyncer(t, drive, embedder)

	if _, _, err := syncer.Sync(context.Background(), "u1", "tok"); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	drive.listErr = errors.New("remote unavailable")
	if _, _, err := syncer.Sync(context.Background(), "u1", "tok"); err == nil {
		t.Fatal("expected error when listing fails")
	}

	cache, err := store.Load("u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cache.Names["id1"] != "dog1.jpg" {
		t.Error("prior cache must survive a failed listing")
	}
	if !store.HasFile("u1", "dog1.jpg") {
		t.Error("prior local file must survive a failed listing")
	}
}

func TestSyncDownloadFailureIsIsolated(t *testing.T) {
	drive := &fakeDrive{
		listing: []remote.File{
			{ID: "id1", Name: "dog1.jpg"},
			{ID: "id2", Name: "cat2.jpg"},
		},
		failIDs: map[string]bool{"id1": true},
	}
	embedder := &fakeEmbedder{}
	syncer, _ := newTestSyncer(t, drive, embedder)

	cache, stats, err := syncer.Sync(context.Background(), "u1", "tok")
	if err != nil {
		t.Fatalf("per-item failure must not abort the run: %v", err)
	}
	if stats.Downloaded != 1 || stats.Embedded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if _, ok := cache.Embeddings["id1"]; ok {
		t.Error("failed file must not get an embedding")
	}

	// The failed file stays a candidate: the next sync retries it.
	drive.failIDs = nil
	_, stats, err = syncer.Sync(context.Background(), "u1", "tok")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Downloaded != 1 || stats.Embedded != 1 {
		t.Fatalf("expected retry of failed file, got %+v", stats)
	}
	if drive.downloads["id1"] != 2 {
		t.Errorf("expected 2 download attempts for id1, got %d", drive.downloads["id1"])
	}
}

func TestSyncEmbeddingFailureIsIsolated(t *testing.T) {
	drive := &fakeDrive{listing: []remote.File{
		{ID: "id1", Name: "dog1.jpg"},
		{ID: "id2", Name: "cat2.jpg"},
	}}
	embedder := &fakeEmbedder{err: errors.New("embedding service down")}
	syncer, store := newTestSyncer(t, drive, embedder)

	cache, stats, err := syncer.Sync(context.Background(), "u1", "tok")
	if err != nil {
		t.Fatalf("per-item failure must not abort the run: %v", err)
	}
	if stats.Downloaded != 2 || stats.Embedded != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	// Files land on disk even when embedding fails; only the vector is missing.
	if !store.HasFile("u1", "dog1.jpg") || !store.HasFile("u1", "cat2.jpg") {
		t.Error("downloaded files should persist despite embedding failure")
	}
	if len(cache.Embeddings) != 0 {
		t.Errorf("no embeddings expected, got %v", cache.Embeddings)
	}

	// The entries stay candidates: the next sync embeds without re-downloading.
	embedder.err = nil
	cache, stats, err = syncer.Sync(context.Background(), "u1", "tok")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Downloaded != 0 || stats.Embedded != 2 {
		t.Fatalf("expected embed-only retry, got %+v", stats)
	}
	if _, ok := cache.Embeddings["id1"]; !ok {
		t.Error("id1 should be embedded on retry")
	}
	if drive.downloads["id1"] != 1 || drive.downloads["id2"] != 1 {
		t.Errorf("retry must not re-download: %v", drive.downloads)
	}
}

func TestSyncCapturesRename(t *testing.T) {
	drive := &fakeDrive{listing: []remote.File{
		{ID: "id1", Name: "dog1.jpg"},
	}}
	embedder := &fakeEmbedder{}
	syncer, store := newTestSyncer(t, drive, embedder)

	if _, _, err := syncer.Sync(context.Background(), "u1", "tok"); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	drive.listing = []remote.File{{ID: "id1", Name: "doggo.jpg"}}
	cache, _, err := syncer.Sync(context.Background(), "u1", "tok")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if cache.Names["id1"] != "doggo.jpg" {
		t.Errorf("rename not captured: %q", cache.Names["id1"])
	}
	// The embedding survives the rename; the id did not change.
	if _, ok := cache.Embeddings["id1"]; !ok {
		t.Error("embedding should survive a rename")
	}
	if store.HasFile("u1", "dog1.jpg") {
		t.Error("old-name file should be removed after a rename")
	}
	if !store.HasFile("u1", "doggo.jpg") {
		t.Error("renamed file should be mirrored under its new name")
	}
}

func TestIsSyncable(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"dog.jpg", true},
		{"dog.JPEG", true},
		{"chart.PNG", true},
		{"notes.txt", false},
		{"archive.tar.gz", false},
		{"noext", false},
	}
	for _, c := range cases {
		if got := IsSyncable(c.name); got != c.want {
			t.Errorf("IsSyncable(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestSyncUsersDoNotInterfere(t *testing.T) {
	drive := &fakeDrive{listing: []remote.File{
		{ID: "id1", Name: "dog1.jpg"},
	}}
	embedder := &fakeEmbedder{}
	syncer, store := newTestSyncer(t, drive, embedder)

	for i := 0; i < 2; i++ {
		user := fmt.Sprintf("u%d", i+1)
		if _, _, err := syncer.Sync(context.Background(), user, "tok"); err != nil {
			t.Fatalf("Sync %s: %v", user, err)
		}
	}

	for _, user := range []string{"u1", "u2"} {
		cache, err := store.Load(user)
		if err != nil {
			t.Fatalf("Load %s: %v", user, err)
		}
		if cache.Names["id1"] != "dog1.jpg" {
			t.Errorf("%s missing entry: %v", user, cache.Names)
		}
	}
}
