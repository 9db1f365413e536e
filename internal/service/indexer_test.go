package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kotaro/photoinsight/internal/domain"
	"github.com/kotaro/photoinsight/internal/progress"
	"github.com/kotaro/photoinsight/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestPhotoRepo opens a throwaway sqlite database with the schema migrated.
func newTestPhotoRepo(t *testing.T) *repository.PhotoRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&domain.Photo{}, &domain.SeasonMembership{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return repository.NewPhotoRepository(db)
}

// fakeEmbedder returns a fixed vector, or nil for paths in failPaths.
type fakeEmbedder struct {
	failPaths map[string]bool
	calls     int
}

func (f *fakeEmbedder) EmbedImage(ctx context.Context, path string) []float32 {
	f.calls++
	if f.failPaths[path] {
		return nil
	}
	return []float32{0.1, 0.2, 0.3, 0.4}
}

// fakeVectorStore records upserted vectors in memory.
type fakeVectorStore struct {
	mu        sync.Mutex
	vectors   map[string][]float32
	rejectAll bool
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{vectors: make(map[string][]float32)}
}

func (f *fakeVectorStore) AddVector(ctx context.Context, vector []float32, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectAll {
		return false
	}
	f.vectors[id] = vector
	return true
}

func (f *fakeVectorStore) Count(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.vectors)), nil
}

// eventCollector records every event it observes.
type eventCollector struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *eventCollector) Notify(event progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *eventCollector) byName(name progress.EventName) []progress.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []progress.Event
	for _, e := range c.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// writeImageDir populates a directory with the named files and returns their paths.
func writeImageDir(t *testing.T, names ...string) (string, []string) {
	t.Helper()

	dir := t.TempDir()
	var paths []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("fake image bytes"), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
		paths = append(paths, path)
	}
	return dir, paths
}

// noPace disables the inter-item delay so tests run instantly.
var noPace = &IndexerOptions{Pace: 0}

func TestIndexDirectory(t *testing.T) {
	repo := newTestPhotoRepo(t)
	vectors := newFakeVectorStore()
	embed := &fakeEmbedder{}
	dir, _ := writeImageDir(t, "a.jpg", "b.PNG", "c.webp", "notes.txt")

	svc := NewIndexerService(repo, vectors, embed, nil, noPace)
	obs := &eventCollector{}

	stats, err := svc.IndexDirectory(context.Background(), dir, obs)
	if err != nil {
		t.Fatalf("IndexDirectory failed: %v", err)
	}

	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3 (unsupported extension must be ignored)", stats.Total)
	}
	if stats.Indexed != 3 || stats.Skipped != 0 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want 3 indexed", stats)
	}

	photos, err := repo.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(photos) != 3 {
		t.Fatalf("stored %d rows, want 3", len(photos))
	}
	for _, p := range photos {
		if !p.FullyIndexed() {
			t.Errorf("photo %s has no vector reference", p.Filename)
		}
	}

	count, _ := vectors.Count(context.Background())
	if count != 3 {
		t.Errorf("vector store holds %d entries, want 3", count)
	}

	if found := obs.byName(progress.EventNewImageFound); len(found) != 3 {
		t.Errorf("got %d new_image_found events, want 3", len(found))
	}
	if complete := obs.byName(progress.EventIndexingComplete); len(complete) != 1 {
		t.Errorf("got %d indexing_complete events, want 1", len(complete))
	}
}

func TestIndexDirectoryRerunSkips(t *testing.T) {
	repo := newTestPhotoRepo(t)
	vectors := newFakeVectorStore()
	dir, _ := writeImageDir(t, "a.jpg", "b.jpg")

	svc := NewIndexerService(repo, vectors, &fakeEmbedder{}, nil, noPace)

	if _, err := svc.IndexDirectory(context.Background(), dir, nil); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	stats, err := svc.IndexDirectory(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if stats.Skipped != 2 || stats.Indexed != 0 {
		t.Errorf("rerun stats = %+v, want 2 skipped", stats)
	}

	total, err := repo.CountPhotos(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("rerun created duplicate rows: %d, want 2", total)
	}
	count, _ := vectors.Count(context.Background())
	if count != 2 {
		t.Errorf("rerun created duplicate vectors: %d, want 2", count)
	}
}

func TestIndexDirectoryEmbedFailureIsRetryable(t *testing.T) {
	repo := newTestPhotoRepo(t)
	vectors := newFakeVectorStore()
	dir, paths := writeImageDir(t, "a.jpg", "b.jpg", "c.jpg")

	embed := &fakeEmbedder{failPaths: map[string]bool{paths[1]: true}}
	svc := NewIndexerService(repo, vectors, embed, nil, noPace)

	stats, err := svc.IndexDirectory(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("IndexDirectory failed: %v", err)
	}
	if stats.Indexed != 2 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want 2 indexed 1 failed", stats)
	}

	// The failed row exists but carries no vector reference
	failed, err := repo.GetByPath(context.Background(), paths[1])
	if err != nil {
		t.Fatal(err)
	}
	if failed == nil {
		t.Fatal("failed item should still have a metadata row")
	}
	if failed.FullyIndexed() {
		t.Error("failed item must not be marked fully indexed")
	}

	// A later run with a healthy embedder picks it up
	embed.failPaths = nil
	stats, err = svc.IndexDirectory(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("retry run failed: %v", err)
	}
	if stats.Indexed != 1 || stats.Skipped != 2 {
		t.Errorf("retry stats = %+v, want 1 indexed 2 skipped", stats)
	}

	total, _ := repo.CountPhotos(context.Background())
	if total != 3 {
		t.Errorf("retry created duplicate rows: %d, want 3", total)
	}
}

func TestIndexDirectoryVectorStoreRejection(t *testing.T) {
	repo := newTestPhotoRepo(t)
	vectors := newFakeVectorStore()
	vectors.rejectAll = true
	dir, paths := writeImageDir(t, "a.jpg")

	svc := NewIndexerService(repo, vectors, &fakeEmbedder{}, nil, noPace)

	stats, err := svc.IndexDirectory(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("IndexDirectory failed: %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("stats = %+v, want 1 failed", stats)
	}

	photo, err := repo.GetByPath(context.Background(), paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if photo.FullyIndexed() {
		t.Error("row must not reference a vector the store rejected")
	}

	// Store recovers, item is retried
	vectors.rejectAll = false
	stats, err = svc.IndexDirectory(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("retry run failed: %v", err)
	}
	if stats.Indexed != 1 {
		t.Errorf("retry stats = %+v, want 1 indexed", stats)
	}
}

func TestIndexDirectoryUnreadableRoot(t *testing.T) {
	svc := NewIndexerService(newTestPhotoRepo(t), newFakeVectorStore(), &fakeEmbedder{}, nil, noPace)
	obs := &eventCollector{}

	_, err := svc.IndexDirectory(context.Background(), "/nowhere/does-not-exist", obs)
	if err == nil {
		t.Fatal("expected error for unreadable root")
	}
	if errs := obs.byName(progress.EventError); len(errs) != 1 {
		t.Errorf("got %d error events, want 1", len(errs))
	}
}

func TestIndexDirectoryCancellation(t *testing.T) {
	repo := newTestPhotoRepo(t)
	dir, _ := writeImageDir(t, "a.jpg", "b.jpg")

	svc := NewIndexerService(repo, newFakeVectorStore(), &fakeEmbedder{}, nil, noPace)
	obs := &eventCollector{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := svc.IndexDirectory(ctx, dir, obs)
	if err == nil {
		t.Fatal("expected context error")
	}
	if stats.Indexed != 0 {
		t.Errorf("canceled run indexed %d items, want 0", stats.Indexed)
	}
	if errs := obs.byName(progress.EventError); len(errs) != 1 {
		t.Errorf("got %d error events, want 1", len(errs))
	}
}
