package checkout

import (
	"context"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing/filemode"

	"github.com/djencks/isogit/internal/index"
	"github.com/djencks/isogit/internal/object"
)

func newTestApplier(fs billy.Filesystem, store *object.FakeStore, idx *index.Store) *applier {
	return &applier{
		fs:       fs,
		store:    store,
		index:    idx,
		progress: newProgressCounter(nil, "", PhaseUpdating, 0),
	}
}

func TestApplier_PhasesRunInOrder(t *testing.T) {
	fs := memfs.New()
	store := object.NewFakeStore()
	idx := index.NewStore(memfs.New())
	blob := store.AddBlob([]byte("fresh"))

	// Existing state: olddir/stale.txt tracked and on disk.
	if err := util.WriteFile(fs, "olddir/stale.txt", []byte("stale"), 0o644); err != nil {
		t.Fatalf("seeding worktree: %v", err)
	}

	a := newTestApplier(fs, store, idx)
	ops := []Op{
		{Kind: OpDelete, Path: "olddir/stale.txt"},
		{Kind: OpRmdir, Path: "olddir"},
		{Kind: OpMkdir, Path: "newdir"},
		{Kind: OpCreate, Path: "newdir/f.txt", Hash: blob, Mode: filemode.Regular},
	}
	if err := a.apply(context.Background(), ops); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if _, err := fs.Lstat("olddir"); err == nil {
		t.Error("olddir should have been removed")
	}
	data, err := util.ReadFile(fs, "newdir/f.txt")
	if err != nil || string(data) != "fresh" {
		t.Errorf("newdir/f.txt = %q, %v", data, err)
	}
	if len(a.warnings) != 0 {
		t.Errorf("unexpected warnings: %v", a.warnings)
	}
}

func TestApplier_RmdirSkipsNonEmpty(t *testing.T) {
	fs := memfs.New()
	idx := index.NewStore(memfs.New())
	if err := util.WriteFile(fs, "dir/untracked.txt", []byte("keep me"), 0o644); err != nil {
		t.Fatalf("seeding worktree: %v", err)
	}

	a := newTestApplier(fs, object.NewFakeStore(), idx)
	err := a.apply(context.Background(), []Op{{Kind: OpRmdir, Path: "dir"}})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if _, err := fs.Lstat("dir/untracked.txt"); err != nil {
		t.Error("untracked file should survive the skipped rmdir")
	}
	if len(a.warnings) != 1 || !strings.Contains(a.warnings[0], "not empty") {
		t.Errorf("expected not-empty warning, got %v", a.warnings)
	}
}

func TestApplier_ChmodUpdateRecordsDeclaredMode(t *testing.T) {
	fs := memfs.New()
	store := object.NewFakeStore()
	idx := index.NewStore(memfs.New())
	blob := store.AddBlob([]byte("#!/bin/sh\n"))

	if err := util.WriteFile(fs, "run.sh", []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatalf("seeding worktree: %v", err)
	}

	a := newTestApplier(fs, store, idx)
	ops := []Op{{Kind: OpUpdate, Path: "run.sh", Hash: blob, Mode: filemode.Executable, Chmod: true}}
	if err := a.apply(context.Background(), ops); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if len(a.warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", a.warnings)
	}

	loaded, err := idx.Load()
	if err != nil {
		t.Fatalf("loading index: %v", err)
	}
	if len(loaded.Entries) != 1 || loaded.Entries[0].Mode != filemode.Executable {
		t.Errorf("index entry mode not the declared executable: %v", loaded.Entries)
	}
}

func TestApplier_SymlinkWrite(t *testing.T) {
	fs := memfs.New()
	store := object.NewFakeStore()
	idx := index.NewStore(memfs.New())
	blob := store.AddBlob([]byte("target/file"))

	a := newTestApplier(fs, store, idx)
	ops := []Op{{Kind: OpCreate, Path: "link", Hash: blob, Mode: filemode.Symlink}}
	if err := a.apply(context.Background(), ops); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if len(a.warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", a.warnings)
	}

	target, err := fs.Readlink("link")
	if err != nil {
		t.Fatalf("readlink failed: %v", err)
	}
	if target != "target/file" {
		t.Errorf("link target = %q", target)
	}
}

func TestApplier_InvalidModeIsWarned(t *testing.T) {
	fs := memfs.New()
	store := object.NewFakeStore()
	idx := index.NewStore(memfs.New())
	blob := store.AddBlob([]byte("data"))

	a := newTestApplier(fs, store, idx)
	ops := []Op{
		{Kind: OpCreate, Path: "bad", Hash: blob, Mode: filemode.Submodule},
		{Kind: OpCreate, Path: "good", Hash: blob, Mode: filemode.Regular},
	}
	if err := a.apply(context.Background(), ops); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	// The bad op is logged, the rest of the batch still lands.
	if len(a.warnings) != 1 || !strings.Contains(a.warnings[0], "invalid blob mode") {
		t.Errorf("expected invalid-mode warning, got %v", a.warnings)
	}
	if _, err := util.ReadFile(fs, "good"); err != nil {
		t.Errorf("good file missing: %v", err)
	}
}

func TestApplier_MissingBlobIsWarned(t *testing.T) {
	fs := memfs.New()
	store := object.NewFakeStore()
	idx := index.NewStore(memfs.New())
	missing := object.HashBlob([]byte("never added"))

	a := newTestApplier(fs, store, idx)
	ops := []Op{{Kind: OpCreate, Path: "f", Hash: missing, Mode: filemode.Regular}}
	if err := a.apply(context.Background(), ops); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if len(a.warnings) != 1 {
		t.Errorf("expected a warning for the unreadable blob, got %v", a.warnings)
	}
}

func TestApplier_CreateIndexOnly(t *testing.T) {
	fs := memfs.New()
	store := object.NewFakeStore()
	idx := index.NewStore(memfs.New())
	blob := store.AddBlob([]byte("already here"))

	if err := util.WriteFile(fs, "present.txt", []byte("already here"), 0o644); err != nil {
		t.Fatalf("seeding worktree: %v", err)
	}

	a := newTestApplier(fs, store, idx)
	ops := []Op{{Kind: OpCreateIndex, Path: "present.txt", Hash: blob, Mode: filemode.Regular}}
	if err := a.apply(context.Background(), ops); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	loaded, err := idx.Load()
	if err != nil {
		t.Fatalf("loading index: %v", err)
	}
	if len(loaded.Entries) != 1 || loaded.Entries[0].Name != "present.txt" {
		t.Errorf("unexpected index entries: %v", loaded.Entries)
	}
	if loaded.Entries[0].Size != uint32(len("already here")) {
		t.Errorf("stat info not captured, size = %d", loaded.Entries[0].Size)
	}
}
