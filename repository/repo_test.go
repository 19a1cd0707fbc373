package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"worker-hls/entities"
)

var heroTarget = entities.Target{
	Table:         "hero_video",
	IDColumn:      "id",
	SourceColumn:  "video_path",
	PointerColumn: "video_hls_path",
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	stmts := []string{
		`CREATE TABLE hero_video (id INTEGER PRIMARY KEY, video_path TEXT, video_hls_path TEXT, description TEXT)`,
		`INSERT INTO hero_video (id, video_path, video_hls_path) VALUES (1, '/uploads/intro.mp4', '/hls/intro.m3u8')`,
		`INSERT INTO hero_video (id, video_path, video_hls_path) VALUES (2, '/uploads/clip.mp4', NULL)`,
		`INSERT INTO hero_video (id, video_path, video_hls_path) VALUES (3, '/uploads/clip.mp4', NULL)`,
		`INSERT INTO hero_video (id, video_path, video_hls_path) VALUES (4, NULL, NULL)`,
		`INSERT INTO hero_video (id, video_path, video_hls_path) VALUES (5, '/uploads/hero_a.mp4', NULL)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return db
}

func TestFindOwnerFirstMatchWins(t *testing.T) {
	r := NewRepo(openTestDB(t), MatchLike)

	owner, err := r.FindOwner(context.Background(), heroTarget, "clip.mp4")
	if err != nil {
		t.Fatalf("FindOwner: %v", err)
	}
	if owner == nil {
		t.Fatal("expected an owner")
	}
	if owner.RowID != "2" {
		t.Errorf("row id = %s, want the lowest matching id 2", owner.RowID)
	}
	if owner.Pointer != nil {
		t.Errorf("pointer = %v, want nil", *owner.Pointer)
	}
	if owner.SourceValue != "/uploads/clip.mp4" || owner.Table != "hero_video" {
		t.Errorf("unexpected owner: %+v", owner)
	}
}

func TestFindOwnerNotFound(t *testing.T) {
	r := NewRepo(openTestDB(t), MatchLike)
	owner, err := r.FindOwner(context.Background(), heroTarget, "missing.mp4")
	if err != nil {
		t.Fatalf("FindOwner: %v", err)
	}
	if owner != nil {
		t.Fatalf("expected nil owner, got %+v", owner)
	}
}

func TestFindOwnerEscapesWildcards(t *testing.T) {
	r := NewRepo(openTestDB(t), MatchLike)
	// "_" must not act as a single-character wildcard and match "hero_a.mp4".
	owner, err := r.FindOwner(context.Background(), heroTarget, "hero_b.mp4")
	if err != nil {
		t.Fatalf("FindOwner: %v", err)
	}
	if owner != nil {
		t.Fatalf("wildcard leaked into match: %+v", owner)
	}
	owner, err = r.FindOwner(context.Background(), heroTarget, "hero_a.mp4")
	if err != nil || owner == nil || owner.RowID != "5" {
		t.Fatalf("expected row 5, got %+v, %v", owner, err)
	}
}

func TestFindOwnerExactMode(t *testing.T) {
	db := openTestDB(t)
	if err := db.Exec(`INSERT INTO hero_video (id, video_path) VALUES (6, '/uploads/myclip.mp4.bak')`).Error; err != nil {
		t.Fatal(err)
	}
	like := NewRepo(db, MatchLike)
	exact := NewRepo(db, MatchExact)

	owner, err := like.FindOwner(context.Background(), heroTarget, "clip.mp4")
	if err != nil || owner == nil {
		t.Fatalf("like: %+v %v", owner, err)
	}

	owner, err = exact.FindOwner(context.Background(), heroTarget, "myclip.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if owner != nil {
		t.Fatalf("exact mode should not match a longer value: %+v", owner)
	}

	owner, err = exact.FindOwner(context.Background(), heroTarget, "intro.mp4")
	if err != nil || owner == nil || owner.RowID != "1" {
		t.Fatalf("exact: %+v %v", owner, err)
	}
}

func TestListCandidates(t *testing.T) {
	r := NewRepo(openTestDB(t), MatchLike)
	owners, err := r.ListCandidates(context.Background(), heroTarget)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(owners) != 4 {
		t.Fatalf("got %d candidates, want 4 (NULL source skipped)", len(owners))
	}
	if owners[0].RowID != "1" || owners[0].CurrentPointer() != "/hls/intro.m3u8" {
		t.Errorf("first = %+v", owners[0])
	}
	if owners[1].RowID != "2" || owners[1].Pointer != nil {
		t.Errorf("second = %+v", owners[1])
	}
}

func TestUpdatePointer(t *testing.T) {
	db := openTestDB(t)
	r := NewRepo(db, MatchLike)
	ctx := context.Background()

	owner, err := r.FindOwner(ctx, heroTarget, "clip.mp4")
	if err != nil || owner == nil {
		t.Fatalf("FindOwner: %+v %v", owner, err)
	}
	if err := r.UpdatePointer(ctx, *owner, "/hls/clip.m3u8"); err != nil {
		t.Fatalf("UpdatePointer: %v", err)
	}

	var pointers []string
	if err := db.Raw(`SELECT COALESCE(video_hls_path, '') FROM hero_video WHERE id IN (2, 3) ORDER BY id`).Scan(&pointers).Error; err != nil {
		t.Fatal(err)
	}
	if len(pointers) != 2 || pointers[0] != "/hls/clip.m3u8" || pointers[1] != "" {
		t.Fatalf("only row 2 should be updated, got %v", pointers)
	}

	missing := *owner
	missing.RowID = "99"
	err = r.UpdatePointer(ctx, missing, "/hls/clip.m3u8")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}
