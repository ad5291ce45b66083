// Package index wraps the git index file with the exclusive lock protocol
// the checkout applier relies on. The on-disk codec is go-git's
// plumbing/format/index; this package adds lock acquisition, a mutation
// API, and atomic commit via rename.
package index

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	format "github.com/go-git/go-git/v5/plumbing/format/index"
)

const (
	lockSuffix   = ".lock"
	lockRetries  = 100
	lockInterval = 50 * time.Millisecond
)

// Store manages the index file of a repository. Acquire is the only way to
// mutate it; Load provides a read-only snapshot for planning.
type Store struct {
	fs   billy.Filesystem
	path string
}

// NewStore creates a Store for the index file inside the given gitdir
// filesystem.
func NewStore(fs billy.Filesystem) *Store {
	return &Store{fs: fs, path: "index"}
}

// File is a locked, mutable index. It is safe for concurrent use by the
// applier's parallel phases.
type File struct {
	mu  sync.Mutex
	idx *format.Index
}

// Load reads the current index without taking the lock. A missing index
// file yields an empty index.
func (s *Store) Load() (*format.Index, error) {
	idx := &format.Index{Version: 2}

	f, err := s.fs.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err := format.NewDecoder(f).Decode(idx); err != nil {
		return nil, fmt.Errorf("failed to decode index: %w", err)
	}
	return idx, nil
}

// Acquire takes the exclusive index lock, loads a fresh copy of the index,
// and hands it to fn. When fn succeeds the new index is encoded into the
// lock file which is renamed over the index; on failure the lock is
// dropped and the index left untouched. The index is re-read on every
// acquisition, so state written by other lock holders is always observed.
func (s *Store) Acquire(ctx context.Context, fn func(*File) error) error {
	lockPath := s.path + lockSuffix

	lock, err := s.lock(ctx, lockPath)
	if err != nil {
		return err
	}

	release := func() {
		_ = lock.Close()
		_ = s.fs.Remove(lockPath)
	}

	idx, err := s.Load()
	if err != nil {
		release()
		return err
	}

	file := &File{idx: idx}
	if err := fn(file); err != nil {
		release()
		return err
	}

	file.sort()
	if err := format.NewEncoder(lock).Encode(file.idx); err != nil {
		release()
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := lock.Close(); err != nil {
		_ = s.fs.Remove(lockPath)
		return fmt.Errorf("failed to close index lock: %w", err)
	}
	if err := s.fs.Rename(lockPath, s.path); err != nil {
		_ = s.fs.Remove(lockPath)
		return fmt.Errorf("failed to commit index: %w", err)
	}
	return nil
}

func (s *Store) lock(ctx context.Context, lockPath string) (billy.File, error) {
	for i := 0; i < lockRetries; i++ {
		f, err := s.fs.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create index lock: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("index lock: %w", ctx.Err())
		case <-time.After(lockInterval):
		}
	}
	return nil, fmt.Errorf("index is locked by another process (%s exists)", lockPath)
}

// Insert adds or replaces the entry for path. Stat information is taken
// from info when present; mode is stored as declared, not as observed on
// disk.
func (f *File) Insert(path string, h plumbing.Hash, mode filemode.FileMode, info os.FileInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.removeLocked(path)
	entry := &format.Entry{
		Name: path,
		Hash: h,
		Mode: mode,
	}
	if info != nil {
		entry.Size = uint32(info.Size())
		entry.ModifiedAt = info.ModTime()
		entry.CreatedAt = info.ModTime()
	}
	f.idx.Entries = append(f.idx.Entries, entry)
}

// Delete removes the entry for path if present.
func (f *File) Delete(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(path)
}

// Entries returns the current entries, for assertions in tests.
func (f *File) Entries() []*format.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*format.Entry, len(f.idx.Entries))
	copy(out, f.idx.Entries)
	return out
}

func (f *File) removeLocked(path string) {
	for i, e := range f.idx.Entries {
		if e.Name == path {
			f.idx.Entries = append(f.idx.Entries[:i], f.idx.Entries[i+1:]...)
			return
		}
	}
}

// sort restores the name ordering the index format requires before
// encoding.
func (f *File) sort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	sort.Slice(f.idx.Entries, func(i, j int) bool {
		return f.idx.Entries[i].Name < f.idx.Entries[j].Name
	})
}
