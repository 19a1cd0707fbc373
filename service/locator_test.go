package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"worker-hls/entities"
)

type fakeOwners struct {
	mu      sync.Mutex
	calls   int
	missing int
	errs    map[string]error
	rows    map[string]entities.OwningRecord
}

func (f *fakeOwners) FindOwner(_ context.Context, target entities.Target, fileName string) (*entities.OwningRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[target.Table]; err != nil {
		return nil, err
	}
	if f.calls <= f.missing {
		return nil, nil
	}
	row, ok := f.rows[target.Table+"/"+fileName]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

var (
	heroTarget  = entities.Target{Table: "hero_video", IDColumn: "id", SourceColumn: "video_path", PointerColumn: "video_hls_path"}
	promoTarget = entities.Target{Table: "promo", IDColumn: "id", SourceColumn: "video", PointerColumn: "video_hls_path"}
)

func TestLocate(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "direct.mp4"), "v")
	writeFile(t, filepath.Join(root, "2024", "05", "Nested.MP4"), "v")
	writeFile(t, filepath.Join(root, ".trash", "hidden.mp4"), "v")

	l := &Locator{UploadDir: root}
	tests := []struct {
		name  string
		want  string
		found bool
	}{
		{name: "direct.mp4", want: filepath.Join(root, "direct.mp4"), found: true},
		{name: "/some/db/prefix/direct.mp4", want: filepath.Join(root, "direct.mp4"), found: true},
		{name: "nested.mp4", want: filepath.Join(root, "2024", "05", "Nested.MP4"), found: true},
		{name: "hidden.mp4"},
		{name: "absent.mp4"},
	}
	for _, tt := range tests {
		got, found := l.Locate(tt.name)
		if found != tt.found || got != tt.want {
			t.Errorf("Locate(%q) = %q, %v; want %q, %v", tt.name, got, found, tt.want, tt.found)
		}
	}
}

func TestFindOwnerTriesTargetsInOrder(t *testing.T) {
	owners := &fakeOwners{
		errs: map[string]error{"hero_video": errors.New("no such table")},
		rows: map[string]entities.OwningRecord{
			"promo/clip.mp4": {Table: "promo", RowID: "9"},
		},
	}
	l := &Locator{Targets: []entities.Target{heroTarget, promoTarget}, Owners: owners}

	owner, err := l.FindOwner(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatalf("FindOwner: %v", err)
	}
	if owner == nil || owner.Table != "promo" || owner.RowID != "9" {
		t.Fatalf("owner = %+v", owner)
	}

	owner, err = l.FindOwner(context.Background(), "other.mp4")
	if owner != nil || err == nil {
		t.Fatalf("owner = %+v, err = %v; want the target error", owner, err)
	}
}

func TestResolveOwnerRetriesUntilRowAppears(t *testing.T) {
	owners := &fakeOwners{
		missing: 2,
		rows: map[string]entities.OwningRecord{
			"hero_video/clip.mp4": {Table: "hero_video", RowID: "1"},
		},
	}
	l := &Locator{Targets: []entities.Target{heroTarget}, Owners: owners, Retries: 5, InitialDelay: time.Millisecond}

	owner, err := l.ResolveOwner(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatalf("ResolveOwner: %v", err)
	}
	if owner.RowID != "1" || owners.calls != 3 {
		t.Fatalf("owner = %+v after %d calls", owner, owners.calls)
	}
}

func TestResolveOwnerGivesUp(t *testing.T) {
	owners := &fakeOwners{}
	l := &Locator{Targets: []entities.Target{heroTarget}, Owners: owners, Retries: 3, InitialDelay: time.Millisecond}

	_, err := l.ResolveOwner(context.Background(), "clip.mp4")
	if !errors.Is(err, ErrOwnerNotFound) {
		t.Fatalf("err = %v, want ErrOwnerNotFound", err)
	}
	if owners.calls != 3 {
		t.Fatalf("calls = %d, want 3", owners.calls)
	}
}
