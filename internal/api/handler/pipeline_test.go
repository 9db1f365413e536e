package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kotaro/photoinsight/internal/domain"
	"github.com/kotaro/photoinsight/internal/repository"
	"github.com/kotaro/photoinsight/internal/service"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

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

// blockingEmbedder parks every call until released.
type blockingEmbedder struct {
	release chan struct{}
}

func (e *blockingEmbedder) EmbedImage(ctx context.Context, path string) []float32 {
	<-e.release
	return []float32{1, 2, 3}
}

type memVectorStore struct {
	vectors map[string][]float32
}

func (m *memVectorStore) AddVector(ctx context.Context, vector []float32, id string) bool {
	if m.vectors == nil {
		m.vectors = make(map[string][]float32)
	}
	m.vectors[id] = vector
	return true
}

func (m *memVectorStore) Count(ctx context.Context) (uint64, error) {
	return uint64(len(m.vectors)), nil
}

type fixedClassifier struct{ season domain.Season }

func (f *fixedClassifier) ClassifySeason(ctx context.Context, path string) (domain.Season, bool) {
	return f.season, true
}

func newTestHandler(t *testing.T, embed service.Embedder) (*PipelineHandler, *repository.PhotoRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := newTestPhotoRepo(t)
	vectors := &memVectorStore{}
	opts := &service.IndexerOptions{Pace: 0}

	indexer := service.NewIndexerService(repo, vectors, embed, nil, opts)
	seasons := service.NewSeasonService(repo, &fixedClassifier{season: domain.SeasonSpring}, nil, opts)
	return NewPipelineHandler(indexer, seasons, repo, vectors, nil, nil), repo
}

func performJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStartIndexValidation(t *testing.T) {
	h, _ := newTestHandler(t, &blockingEmbedder{release: make(chan struct{})})
	r := gin.New()
	r.POST("/api/v1/index", h.StartIndex)

	w := performJSON(r, http.MethodPost, "/api/v1/index", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing directory: status = %d, want 400", w.Code)
	}
}

func TestStartIndexRejectsConcurrentRun(t *testing.T) {
	embed := &blockingEmbedder{release: make(chan struct{})}
	h, _ := newTestHandler(t, embed)
	r := gin.New()
	r.POST("/api/v1/index", h.StartIndex)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	payload, err := json.Marshal(IndexRequest{Directory: dir})
	if err != nil {
		t.Fatal(err)
	}
	body := string(payload)

	w := performJSON(r, http.MethodPost, "/api/v1/index", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("first trigger: status = %d, want 202: %s", w.Code, w.Body.String())
	}

	// The background run is parked inside the embedder, so the lock is held
	w = performJSON(r, http.MethodPost, "/api/v1/index", body)
	if w.Code != http.StatusConflict {
		t.Errorf("second trigger: status = %d, want 409", w.Code)
	}

	// A closed channel releases this run and every later one immediately
	close(embed.release)

	deadline := time.After(2 * time.Second)
	for {
		w = performJSON(r, http.MethodPost, "/api/v1/index", body)
		if w.Code == http.StatusAccepted {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("run never released the guard, last status = %d", w.Code)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestGetStats(t *testing.T) {
	h, repo := newTestHandler(t, &blockingEmbedder{release: make(chan struct{})})
	r := gin.New()
	r.GET("/api/v1/stats", h.GetStats)

	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	photo, err := repo.CreateBase(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.AttachVectorID(context.Background(), photo, "vec-1"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := repo.AddSeasonMembership(context.Background(), domain.SeasonSpring, photo.ID); err != nil {
		t.Fatal(err)
	}

	w := performJSON(r, http.MethodGet, "/api/v1/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var stats struct {
		TotalPhotos   int64            `json:"total_photos"`
		IndexedPhotos int64            `json:"indexed_photos"`
		Seasons       map[string]int64 `json:"seasons"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if stats.TotalPhotos != 1 || stats.IndexedPhotos != 1 {
		t.Errorf("counts = %+v, want 1/1", stats)
	}
	if stats.Seasons["Spring"] != 1 {
		t.Errorf("Spring count = %d, want 1", stats.Seasons["Spring"])
	}
	if stats.Seasons["Winter"] != 0 {
		t.Errorf("Winter count = %d, want 0", stats.Seasons["Winter"])
	}
}
