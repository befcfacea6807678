package search

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/mirrorlens/mirrorlens/internal/mirror"
)

type fakeTextEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (e *fakeTextEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.vector, nil
}

// unit2 builds a 2-d unit vector whose dot product with [1,0] equals cos.
func unit2(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

func newTestEngine(t *testing.T, embedder TextEmbedder, cache *mirror.UserCache) *Engine {
	t.Helper()
	store, err := mirror.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if cache != nil {
		if err := store.Save("u1", cache); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	return NewEngine(store, embedder)
}

func TestSearchFilenameBeforeSemantic(t *testing.T) {
	// dog1.jpg matches the query by name even though cat2.jpg scores higher
	// semantically; filename matches rank first regardless.
	cache := mirror.NewUserCache()
	cache.Names["id1"] = "dog1.jpg"
	cache.Names["id2"] = "cat2.jpg"
	cache.Embeddings["id1"] = unit2(0.9)
	cache.Embeddings["id2"] = unit2(0.95)

	embedder := &fakeTextEmbedder{vector: []float32{1, 0}}
	engine := newTestEngine(t, embedder, cache)

	results, err := engine.Search(context.Background(), "u1", "dog", FilterAll)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	if results[0].DisplayName != "dog1.jpg" || results[0].Match != MatchFilename {
		t.Errorf("first result should be the filename match: %+v", results[0])
	}
	if results[0].Score != 1.0 {
		t.Errorf("filename match score should be 1.0, got %v", results[0].Score)
	}
	if results[1].DisplayName != "cat2.jpg" || results[1].Match != MatchSemantic {
		t.Errorf("second result should be the semantic match: %+v", results[1])
	}
	if math.Abs(results[1].Score-0.95) > 1e-3 {
		t.Errorf("expected semantic score ~0.95, got %v", results[1].Score)
	}
}

func TestSearchFilenameMatchesSortedByName(t *testing.T) {
	cache := mirror.NewUserCache()
	cache.Names["id1"] = "Zebra_dog.jpg"
	cache.Names["id2"] = "alpha_DOG.jpg"
	cache.Names["id3"] = "middog.jpg"
	for id := range cache.Names {
		cache.Embeddings[id] = unit2(0.5)
	}

	embedder := &fakeTextEmbedder{vector: []float32{1, 0}}
	engine := newTestEngine(t, embedder, cache)

	results, err := engine.Search(context.Background(), "u1", "dog", FilterAll)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"alpha_DOG.jpg", "middog.jpg", "Zebra_dog.jpg"}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for i, name := range want {
		if results[i].DisplayName != name {
			t.Errorf("position %d: expected %s, got %s", i, name, results[i].DisplayName)
		}
	}
}

func TestSearchSemanticSortedByScoreDescending(t *testing.T) {
	cache := mirror.NewUserCache()
	cache.Names["id1"] = "a.jpg"
	cache.Names["id2"] = "b.jpg"
	cache.Names["id3"] = "c.jpg"
	cache.Embeddings["id1"] = unit2(0.2)
	cache.Embeddings["id2"] = unit2(0.8)
	cache.Embeddings["id3"] = unit2(0.5)

	embedder := &fakeTextEmbedder{vector: []float32{1, 0}}
	engine := newTestEngine(t, embedder, cache)

	results, err := engine.Search(context.Background(), "u1", "sunset", FilterAll)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not descending: %v then %v", results[i-1].Score, results[i].Score)
		}
	}
	if results[0].DisplayName != "b.jpg" {
		t.Errorf("highest score should rank first, got %s", results[0].DisplayName)
	}
}

func TestSearchCosineBounds(t *testing.T) {
	cache := mirror.NewUserCache()
	cache.Names["same"] = "same.jpg"
	cache.Names["opposite"] = "opposite.jpg"
	cache.Embeddings["same"] = []float32{3, 0} // same direction as query, larger magnitude
	cache.Embeddings["opposite"] = []float32{-2, 0}

	embedder := &fakeTextEmbedder{vector: []float32{1, 0}}
	engine := newTestEngine(t, embedder, cache)

	results, err := engine.Search(context.Background(), "u1", "anything", FilterAll)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.Score < -1.0001 || r.Score > 1.0001 {
			t.Errorf("score out of [-1,1]: %+v", r)
		}
	}
	if math.Abs(results[0].Score-1.0) > 1e-6 {
		t.Errorf("identical-direction vector should score 1.0, got %v", results[0].Score)
	}
	if math.Abs(results[1].Score-(-1.0)) > 1e-6 {
		t.Errorf("opposite vector should score -1.0, got %v", results[1].Score)
	}
}

func TestSearchSkipsEntriesWithoutEmbedding(t *testing.T) {
	cache := mirror.NewUserCache()
	cache.Names["id1"] = "dog1.jpg" // no embedding: not a candidate at all
	cache.Names["id2"] = "dog2.jpg"
	cache.Embeddings["id2"] = unit2(0.5)

	embedder := &fakeTextEmbedder{vector: []float32{1, 0}}
	engine := newTestEngine(t, embedder, cache)

	results, err := engine.Search(context.Background(), "u1", "dog", FilterAll)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].DisplayName != "dog2.jpg" {
		t.Fatalf("unembedded entry must be excluded even from filename matching: %+v", results)
	}
}

func TestSearchFilterRestrictsCandidates(t *testing.T) {
	cache := mirror.NewUserCache()
	cache.Names["id1"] = "dog.jpg"
	cache.Names["id2"] = "dog.mp4"
	cache.Embeddings["id1"] = unit2(0.5)
	cache.Embeddings["id2"] = unit2(0.5)

	embedder := &fakeTextEmbedder{vector: []float32{1, 0}}
	engine := newTestEngine(t, embedder, cache)

	results, err := engine.Search(context.Background(), "u1", "dog", FilterVideo)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].DisplayName != "dog.mp4" {
		t.Fatalf("expected only the video candidate: %+v", results)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	embedder := &fakeTextEmbedder{vector: []float32{1, 0}}
	engine := newTestEngine(t, embedder, nil)

	if _, err := engine.Search(context.Background(), "u1", "   ", FilterAll); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestSearchEmptyCandidateSet(t *testing.T) {
	embedder := &fakeTextEmbedder{vector: []float32{1, 0}}
	engine := newTestEngine(t, embedder, nil)

	results, err := engine.Search(context.Background(), "u1", "dog", FilterAll)
	if err != nil {
		t.Fatalf("empty candidate set is not an error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %+v", results)
	}
	if embedder.calls != 0 {
		t.Errorf("no embedding call expected with no candidates, got %d", embedder.calls)
	}
}

func TestSearchQueryEmbeddingFailureIsFatal(t *testing.T) {
	cache := mirror.NewUserCache()
	cache.Names["id1"] = "a.jpg"
	cache.Embeddings["id1"] = unit2(0.5)

	embedder := &fakeTextEmbedder{err: errors.New("provider down")}
	engine := newTestEngine(t, embedder, cache)

	if _, err := engine.Search(context.Background(), "u1", "sunset", FilterAll); err == nil {
		t.Fatal("query embedding failure must fail the search call")
	}
}
