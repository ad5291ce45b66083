package index

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
)

func TestStore_Load_Missing(t *testing.T) {
	s := NewStore(memfs.New())

	idx, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(idx.Entries) != 0 {
		t.Errorf("expected empty index, got %d entries", len(idx.Entries))
	}
	if idx.Version != 2 {
		t.Errorf("expected version 2, got %d", idx.Version)
	}
}

func TestStore_AcquireRoundTrip(t *testing.T) {
	fs := memfs.New()
	s := NewStore(fs)
	oid := plumbing.NewHash("ce013625030ba8dba906f756967f9e9ca394464a")

	err := s.Acquire(context.Background(), func(f *File) error {
		f.Insert("b.txt", oid, filemode.Regular, nil)
		f.Insert("a.txt", oid, filemode.Executable, nil)
		return nil
	})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	idx, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(idx.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(idx.Entries))
	}
	if idx.Entries[0].Name != "a.txt" || idx.Entries[1].Name != "b.txt" {
		t.Errorf("entries not sorted: %q, %q", idx.Entries[0].Name, idx.Entries[1].Name)
	}
	if idx.Entries[0].Mode != filemode.Executable {
		t.Errorf("expected executable mode, got %s", idx.Entries[0].Mode)
	}
	if idx.Entries[0].Hash != oid {
		t.Errorf("unexpected hash %s", idx.Entries[0].Hash)
	}

	if _, err := fs.Stat("index.lock"); !os.IsNotExist(err) {
		t.Errorf("lock file not released: %v", err)
	}
}

func TestStore_Acquire_InsertReplacesAndDeletes(t *testing.T) {
	s := NewStore(memfs.New())
	oldHash := plumbing.NewHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	newHash := plumbing.NewHash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	err := s.Acquire(context.Background(), func(f *File) error {
		f.Insert("a.txt", oldHash, filemode.Regular, nil)
		f.Insert("gone.txt", oldHash, filemode.Regular, nil)
		return nil
	})
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}

	err = s.Acquire(context.Background(), func(f *File) error {
		f.Insert("a.txt", newHash, filemode.Regular, nil)
		f.Delete("gone.txt")
		f.Delete("never-existed.txt")
		return nil
	})
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}

	idx, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(idx.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(idx.Entries))
	}
	if idx.Entries[0].Hash != newHash {
		t.Errorf("entry not replaced, hash %s", idx.Entries[0].Hash)
	}
}

func TestStore_Acquire_ErrorDropsChanges(t *testing.T) {
	s := NewStore(memfs.New())
	boom := errors.New("boom")

	err := s.Acquire(context.Background(), func(f *File) error {
		f.Insert("a.txt", plumbing.ZeroHash, filemode.Regular, nil)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	idx, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(idx.Entries) != 0 {
		t.Errorf("expected no entries after failed acquire, got %d", len(idx.Entries))
	}
}

func TestStore_Acquire_LockContention(t *testing.T) {
	fs := memfs.New()
	s := NewStore(fs)

	if err := util.WriteFile(fs, "index.lock", nil, 0o644); err != nil {
		t.Fatalf("planting lock file: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := s.Acquire(ctx, func(f *File) error { return nil })
	if err == nil {
		t.Fatal("expected lock acquisition to fail while lock is held")
	}
}
