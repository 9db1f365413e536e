package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kotaro/photoinsight/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestRepo opens a throwaway sqlite database with the schema migrated.
func newTestRepo(t *testing.T) *PhotoRepository {
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
	return NewPhotoRepository(db)
}

// writeTestFile creates a file of the given size and returns its path.
func writeTestFile(t *testing.T, name string, size int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

func TestCreateBaseAndGetByPath(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// 1.5 MB file should round to 1.5
	path := writeTestFile(t, "photo.jpg", 1536*1024)

	photo, err := repo.CreateBase(ctx, path)
	if err != nil {
		t.Fatalf("CreateBase failed: %v", err)
	}
	if photo.ID == 0 {
		t.Error("expected non-zero ID after insert")
	}
	if photo.Filename != "photo.jpg" {
		t.Errorf("Filename = %q, want %q", photo.Filename, "photo.jpg")
	}
	if photo.SizeMB != 1.5 {
		t.Errorf("SizeMB = %v, want 1.5", photo.SizeMB)
	}
	if photo.VectorID != nil {
		t.Error("fresh record must not carry a vector id")
	}
	if photo.FullyIndexed() {
		t.Error("fresh record must not be fully indexed")
	}

	got, err := repo.GetByPath(ctx, path)
	if err != nil {
		t.Fatalf("GetByPath failed: %v", err)
	}
	if got == nil || got.ID != photo.ID {
		t.Errorf("GetByPath returned %+v, want record %d", got, photo.ID)
	}
}

func TestGetByPathUnknownReturnsNil(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.GetByPath(context.Background(), "/nowhere/missing.jpg")
	if err != nil {
		t.Fatalf("GetByPath failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown path, got %+v", got)
	}
}

func TestCreateBaseVanishedFile(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.CreateBase(context.Background(), "/nowhere/vanished.jpg")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAttachVectorID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	path := writeTestFile(t, "photo.jpg", 1024)
	photo, err := repo.CreateBase(ctx, path)
	if err != nil {
		t.Fatalf("CreateBase failed: %v", err)
	}

	if err := repo.AttachVectorID(ctx, photo, "vec-1"); err != nil {
		t.Fatalf("AttachVectorID failed: %v", err)
	}
	if !photo.FullyIndexed() {
		t.Error("record should be fully indexed after attach")
	}

	// Same id again is a no-op
	if err := repo.AttachVectorID(ctx, photo, "vec-1"); err != nil {
		t.Errorf("re-attaching same id should succeed, got %v", err)
	}

	// Different id trips the guard
	if err := repo.AttachVectorID(ctx, photo, "vec-2"); err == nil {
		t.Error("expected conflict error for different vector id")
	}

	// Persisted state survives a reload
	got, err := repo.GetByPath(ctx, path)
	if err != nil {
		t.Fatalf("GetByPath failed: %v", err)
	}
	if got.VectorID == nil || *got.VectorID != "vec-1" {
		t.Errorf("stored vector id = %v, want vec-1", got.VectorID)
	}
}

func TestListFullyIndexed(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	dir := t.TempDir()
	var indexed *domain.Photo
	for i, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		photo, err := repo.CreateBase(ctx, path)
		if err != nil {
			t.Fatalf("CreateBase failed: %v", err)
		}
		if i == 1 {
			indexed = photo
		}
	}

	if err := repo.AttachVectorID(ctx, indexed, "vec-b"); err != nil {
		t.Fatalf("AttachVectorID failed: %v", err)
	}

	photos, err := repo.ListFullyIndexed(ctx)
	if err != nil {
		t.Fatalf("ListFullyIndexed failed: %v", err)
	}
	if len(photos) != 1 || photos[0].ID != indexed.ID {
		t.Errorf("ListFullyIndexed = %+v, want only record %d", photos, indexed.ID)
	}

	count, err := repo.CountFullyIndexed(ctx)
	if err != nil {
		t.Fatalf("CountFullyIndexed failed: %v", err)
	}
	if count != 1 {
		t.Errorf("CountFullyIndexed = %d, want 1", count)
	}

	total, err := repo.CountPhotos(ctx)
	if err != nil {
		t.Fatalf("CountPhotos failed: %v", err)
	}
	if total != 3 {
		t.Errorf("CountPhotos = %d, want 3", total)
	}
}

func TestAddSeasonMembershipIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	path := writeTestFile(t, "photo.jpg", 1024)
	photo, err := repo.CreateBase(ctx, path)
	if err != nil {
		t.Fatalf("CreateBase failed: %v", err)
	}

	first, created, err := repo.AddSeasonMembership(ctx, domain.SeasonWinter, photo.ID)
	if err != nil {
		t.Fatalf("AddSeasonMembership failed: %v", err)
	}
	if !created {
		t.Error("first add should report created=true")
	}

	second, created, err := repo.AddSeasonMembership(ctx, domain.SeasonWinter, photo.ID)
	if err != nil {
		t.Fatalf("repeated AddSeasonMembership failed: %v", err)
	}
	if created {
		t.Error("repeated add should report created=false")
	}
	if second.ID != first.ID {
		t.Errorf("repeated add returned row %d, want existing row %d", second.ID, first.ID)
	}

	count, err := repo.CountSeasonMembers(ctx, domain.SeasonWinter)
	if err != nil {
		t.Fatalf("CountSeasonMembers failed: %v", err)
	}
	if count != 1 {
		t.Errorf("CountSeasonMembers = %d, want 1", count)
	}
}

func TestSeasonMembershipsAreNonExclusive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	path := writeTestFile(t, "photo.jpg", 1024)
	photo, err := repo.CreateBase(ctx, path)
	if err != nil {
		t.Fatalf("CreateBase failed: %v", err)
	}

	for _, season := range []domain.Season{domain.SeasonSpring, domain.SeasonAutumn} {
		if _, created, err := repo.AddSeasonMembership(ctx, season, photo.ID); err != nil || !created {
			t.Fatalf("AddSeasonMembership(%s) = created=%v, err=%v", season, created, err)
		}
	}

	for _, season := range []domain.Season{domain.SeasonSpring, domain.SeasonAutumn} {
		members, err := repo.ListSeasonMembers(ctx, season, 10, 0)
		if err != nil {
			t.Fatalf("ListSeasonMembers(%s) failed: %v", season, err)
		}
		if len(members) != 1 || members[0].ID != photo.ID {
			t.Errorf("ListSeasonMembers(%s) = %+v, want photo %d", season, members, photo.ID)
		}
	}
}

func TestListSeasonMembersPagination(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	dir := t.TempDir()
	var ids []uint
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		photo, err := repo.CreateBase(ctx, path)
		if err != nil {
			t.Fatalf("CreateBase failed: %v", err)
		}
		if _, _, err := repo.AddSeasonMembership(ctx, domain.SeasonSummer, photo.ID); err != nil {
			t.Fatalf("AddSeasonMembership failed: %v", err)
		}
		ids = append(ids, photo.ID)
	}

	page, err := repo.ListSeasonMembers(ctx, domain.SeasonSummer, 2, 2)
	if err != nil {
		t.Fatalf("ListSeasonMembers failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	if page[0].ID != ids[2] || page[1].ID != ids[3] {
		t.Errorf("page = [%d %d], want [%d %d]", page[0].ID, page[1].ID, ids[2], ids[3])
	}
}
