package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"exhume/internal/store"
	"exhume/internal/testsupport"
)

const evidenceID = 7

func fsDiscovery(runID, path string) store.Discovery {
	return store.Discovery{
		DiscoveredBy:     "fs_extractor",
		RunID:            runID,
		ExtractorVersion: "1.0",
		FSPath:           path,
		FSInode:          "1234-128-1",
		FSModified:       time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestInsertWithDiscoveryDeduplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	img := store.Image{RelPath: "a.jpg", Filename: "a.jpg", SHA256: "ABC123", SizeBytes: 10}
	id, wasNew, err := st.InsertWithDiscovery(ctx, evidenceID, img, fsDiscovery("run-1", "/a.jpg"))
	if err != nil {
		t.Fatalf("InsertWithDiscovery failed: %v", err)
	}
	if !wasNew || id == 0 {
		t.Fatalf("expected new image, got id=%d wasNew=%v", id, wasNew)
	}

	dup := store.Image{RelPath: "b.jpg", Filename: "b.jpg", SHA256: "abc123", PHash: "ffee", SizeBytes: 10}
	carvedOffset := int64(4096)
	carve := store.Discovery{DiscoveredBy: "foremost_carver", RunID: "carve-1", CarvedOffset: &carvedOffset}
	id2, wasNew, err := st.InsertWithDiscovery(ctx, evidenceID, dup, carve)
	if err != nil {
		t.Fatalf("InsertWithDiscovery duplicate failed: %v", err)
	}
	if wasNew || id2 != id {
		t.Fatalf("expected existing image %d, got id=%d wasNew=%v", id, id2, wasNew)
	}

	found, err := st.FindBySHA256(ctx, evidenceID, "abc123")
	if err != nil {
		t.Fatalf("FindBySHA256 failed: %v", err)
	}
	if found == nil || found.RelPath != "a.jpg" {
		t.Fatalf("unexpected image %#v", found)
	}
	if found.PHash != "ffee" {
		t.Fatalf("expected phash back-filled, got %q", found.PHash)
	}
	if found.FirstDiscoveredBy != "fs_extractor" {
		t.Fatalf("first discoverer = %q", found.FirstDiscoveredBy)
	}

	sources, err := st.ImageSources(ctx, id)
	if err != nil {
		t.Fatalf("ImageSources failed: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 discoveries, got %d", len(sources))
	}
	var sawCarve bool
	for _, d := range sources {
		if d.DiscoveredBy == "foremost_carver" {
			sawCarve = true
			if d.CarvedOffset == nil || *d.CarvedOffset != 4096 {
				t.Fatalf("carved offset not preserved: %#v", d.CarvedOffset)
			}
		}
		if d.DiscoveredBy == "fs_extractor" {
			if d.FSInode != "1234-128-1" || !d.FSModified.Equal(time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)) {
				t.Fatalf("filesystem metadata not preserved: %#v", d)
			}
			if !d.FSAccessed.IsZero() {
				t.Fatalf("expected absent atime to stay zero, got %v", d.FSAccessed)
			}
		}
	}
	if !sawCarve {
		t.Fatal("carver discovery missing")
	}
}

func TestInsertWithDiscoveryKeepsExistingPHash(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := store.Image{RelPath: "a.png", Filename: "a.png", SHA256: "d1", PHash: "0001"}
	if _, _, err := st.InsertWithDiscovery(ctx, evidenceID, first, fsDiscovery("r1", "/a.png")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	second := store.Image{RelPath: "b.png", Filename: "b.png", SHA256: "d1", PHash: "9999"}
	if _, _, err := st.InsertWithDiscovery(ctx, evidenceID, second, fsDiscovery("r1", "/b.png")); err != nil {
		t.Fatalf("insert duplicate: %v", err)
	}
	found, err := st.FindBySHA256(ctx, evidenceID, "d1")
	if err != nil || found == nil {
		t.Fatalf("FindBySHA256: %v %#v", err, found)
	}
	if found.PHash != "0001" {
		t.Fatalf("existing phash overwritten: %q", found.PHash)
	}
}

func TestInsertWithDiscoveryRepeatIsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	img := store.Image{RelPath: "x.gif", Filename: "x.gif", SHA256: "feed"}
	for i := 0; i < 3; i++ {
		if _, _, err := st.InsertWithDiscovery(ctx, evidenceID, img, fsDiscovery("run-x", "/x.gif")); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	stats, err := st.Stats(ctx, evidenceID)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Images != 1 || stats.Discoveries != 1 {
		t.Fatalf("expected 1 image and 1 discovery, got %+v", stats)
	}
}

func TestInsertWithDiscoveryRequiresFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	tests := []struct {
		name string
		img  store.Image
		disc store.Discovery
	}{
		{"no sha", store.Image{Filename: "a"}, fsDiscovery("r", "/a")},
		{"no run", store.Image{Filename: "a", SHA256: "aa"}, store.Discovery{DiscoveredBy: "fs_extractor"}},
		{"no extractor", store.Image{Filename: "a", SHA256: "aa"}, store.Discovery{RunID: "r"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := st.InsertWithDiscovery(ctx, evidenceID, tc.img, tc.disc)
			if !errors.Is(err, store.ErrMissingField) {
				t.Fatalf("expected ErrMissingField, got %v", err)
			}
		})
	}
}

func TestDeleteDiscoveriesByRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	img := store.Image{RelPath: "a.jpg", Filename: "a.jpg", SHA256: "01"}
	other := store.Image{RelPath: "b.jpg", Filename: "b.jpg", SHA256: "02"}
	if _, _, err := st.InsertWithDiscovery(ctx, evidenceID, img, fsDiscovery("run-a", "/a.jpg")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, _, err := st.InsertWithDiscovery(ctx, evidenceID, other, fsDiscovery("run-a", "/b.jpg")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, _, err := st.InsertWithDiscovery(ctx, evidenceID, img, fsDiscovery("run-b", "/a.jpg")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	deleted, err := st.DeleteDiscoveriesByRun(ctx, evidenceID, "run-a")
	if err != nil {
		t.Fatalf("DeleteDiscoveriesByRun failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}
	remaining, err := st.RunDiscoveries(ctx, evidenceID, "run-b")
	if err != nil {
		t.Fatalf("RunDiscoveries failed: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected run-b untouched, got %d", len(remaining))
	}
	images, err := st.Images(ctx, evidenceID)
	if err != nil {
		t.Fatalf("Images failed: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("image rows must survive discovery deletion, got %d", len(images))
	}
}

func TestTxRollbackDiscardsWrites(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	img := store.Image{RelPath: "a.jpg", Filename: "a.jpg", SHA256: "tx"}
	if _, _, err := tx.InsertWithDiscovery(ctx, evidenceID, img, fsDiscovery("r", "/a.jpg")); err != nil {
		t.Fatalf("tx insert: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	found, err := st.FindBySHA256(ctx, evidenceID, "tx")
	if err != nil {
		t.Fatalf("FindBySHA256 failed: %v", err)
	}
	if found != nil {
		t.Fatalf("expected rollback to discard image, found %#v", found)
	}
}

func TestTxFailedRecordLeavesNoImage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := st.DB().Exec(`CREATE TRIGGER reject_carved BEFORE INSERT ON image_discoveries
		WHEN NEW.discovered_by = 'carver' BEGIN SELECT RAISE(ABORT, 'rejected'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	bad := store.Image{RelPath: "bad.jpg", Filename: "bad.jpg", SHA256: "bad"}
	if _, _, err := tx.InsertWithDiscovery(ctx, evidenceID, bad, store.Discovery{DiscoveredBy: "carver", RunID: "r"}); err == nil {
		t.Fatal("expected discovery insert to fail")
	}
	good := store.Image{RelPath: "good.jpg", Filename: "good.jpg", SHA256: "good"}
	if _, _, err := tx.InsertWithDiscovery(ctx, evidenceID, good, fsDiscovery("r", "/good.jpg")); err != nil {
		t.Fatalf("insert after failed record: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	found, err := st.FindBySHA256(ctx, evidenceID, "bad")
	if err != nil {
		t.Fatalf("FindBySHA256 failed: %v", err)
	}
	if found != nil {
		t.Fatalf("expected failed record to leave no image, found %#v", found)
	}
	found, err = st.FindBySHA256(ctx, evidenceID, "good")
	if err != nil || found == nil {
		t.Fatalf("expected committed image, got %#v, %v", found, err)
	}
}

func TestStatsCountsMultiSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	shared := store.Image{RelPath: "s.jpg", Filename: "s.jpg", SHA256: "shared", PHash: "00ff"}
	only := store.Image{RelPath: "o.jpg", Filename: "o.jpg", SHA256: "only"}
	if _, _, err := st.InsertWithDiscovery(ctx, evidenceID, shared, fsDiscovery("fs", "/s.jpg")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, _, err := st.InsertWithDiscovery(ctx, evidenceID, only, fsDiscovery("fs", "/o.jpg")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	off := int64(512)
	carve := store.Discovery{DiscoveredBy: "scalpel_carver", RunID: "carve", CarvedOffset: &off}
	if _, _, err := st.InsertWithDiscovery(ctx, evidenceID, shared, carve); err != nil {
		t.Fatalf("insert: %v", err)
	}

	stats, err := st.Stats(ctx, evidenceID)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Images != 2 || stats.Discoveries != 3 || stats.MultiSource != 1 || stats.WithPHash != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.ByExtractor["fs_extractor"] != 2 || stats.ByExtractor["scalpel_carver"] != 1 {
		t.Fatalf("unexpected per-extractor counts %v", stats.ByExtractor)
	}
	if stats.FirstByExtractor["fs_extractor"] != 2 {
		t.Fatalf("unexpected first-discoverer counts %v", stats.FirstByExtractor)
	}
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	if _, err := st.DB().Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := store.Open(cfg.Paths.DatabasePath); !errors.Is(err, store.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
