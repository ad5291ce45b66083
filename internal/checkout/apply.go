package checkout

import (
	"context"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"golang.org/x/sync/errgroup"

	"github.com/djencks/isogit/internal/index"
	"github.com/djencks/isogit/internal/object"
)

// applyWorkers bounds the fan-out inside the parallel phases.
const applyWorkers = 8

// applier executes a plan in four strictly sequential phases: deletions,
// rmdirs, mkdirs, then creates and updates. The index lock is held around
// phase 1 and phase 4; phases 2 and 3 touch only the filesystem. Failures
// in phases 1-3 abort; phase 4 failures are collected as warnings so a
// single unwritable file cannot stop the rest of a large checkout.
type applier struct {
	fs       billy.Filesystem
	store    object.Store
	index    *index.Store
	progress *progressCounter

	mu       sync.Mutex
	warnings []string
}

func (a *applier) warn(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.warnings = append(a.warnings, fmt.Sprintf(format, args...))
}

func (a *applier) apply(ctx context.Context, ops []Op) error {
	var deletes, rmdirs, mkdirs, writes []Op
	for _, op := range ops {
		switch op.Kind {
		case OpDelete, OpDeleteIndex:
			deletes = append(deletes, op)
		case OpRmdir:
			rmdirs = append(rmdirs, op)
		case OpMkdir:
			mkdirs = append(mkdirs, op)
		case OpBlobToTree:
			// The stale file entry leaves the index while the lock is held
			// in phase 1; the file-to-directory swap happens in phase 3,
			// which is also where the op counts towards progress.
			deletes = append(deletes, op)
			mkdirs = append(mkdirs, op)
		case OpCreate, OpCreateIndex, OpUpdate, OpDirToBlob:
			writes = append(writes, op)
		}
	}

	if len(deletes) > 0 {
		err := a.index.Acquire(ctx, func(f *index.File) error {
			g, _ := errgroup.WithContext(ctx)
			g.SetLimit(applyWorkers)
			for _, op := range deletes {
				op := op
				g.Go(func() error {
					if op.Kind == OpDelete {
						if err := a.fs.Remove(op.Path); err != nil && !os.IsNotExist(err) {
							return fmt.Errorf("failed to delete %s: %w", op.Path, err)
						}
						a.progress.tick()
					}
					f.Delete(op.Path)
					return nil
				})
			}
			return g.Wait()
		})
		if err != nil {
			return err
		}
		for _, op := range deletes {
			if op.Kind == OpDeleteIndex {
				a.progress.tick()
			}
		}
	}

	// Rmdirs run strictly in plan order: the reducer placed every rmdir
	// after its children's deletes, so parents empty out as we go.
	for _, op := range rmdirs {
		empty, err := a.dirEmpty(op.Path)
		if err != nil {
			return err
		}
		if !empty {
			a.warn("skipping rmdir of %s: directory not empty", op.Path)
			a.progress.tick()
			continue
		}
		if err := a.fs.Remove(op.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove directory %s: %w", op.Path, err)
		}
		a.progress.tick()
	}

	if len(mkdirs) > 0 {
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(applyWorkers)
		for _, op := range mkdirs {
			op := op
			g.Go(func() error {
				if op.Kind == OpBlobToTree {
					if err := a.fs.Remove(op.Path); err != nil && !os.IsNotExist(err) {
						return fmt.Errorf("failed to replace file %s with directory: %w", op.Path, err)
					}
				}
				if err := a.fs.MkdirAll(op.Path, 0o755); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", op.Path, err)
				}
				a.progress.tick()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	if len(writes) > 0 {
		err := a.index.Acquire(ctx, func(f *index.File) error {
			g, _ := errgroup.WithContext(ctx)
			g.SetLimit(applyWorkers)
			for _, op := range writes {
				op := op
				g.Go(func() error {
					if err := a.applyWrite(f, op); err != nil {
						a.warn("failed to apply %s %s: %v", op.Kind, op.Path, err)
					}
					a.progress.tick()
					return nil
				})
			}
			return g.Wait()
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// applyWrite materializes one create/update op and refreshes its index
// entry. The index entry always records the declared mode, never the mode
// the filesystem reports, which keeps executables stable on filesystems
// that do not track the executable bit.
func (a *applier) applyWrite(f *index.File, op Op) error {
	if op.Kind == OpCreateIndex {
		info, err := a.fs.Lstat(op.Path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", op.Path, err)
		}
		f.Insert(op.Path, op.Hash, op.Mode, info)
		return nil
	}

	if op.Kind == OpDirToBlob {
		// Children were deleted in phase 1, so the directory is empty now.
		if err := a.fs.Remove(op.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to replace directory with file: %w", err)
		}
	}
	if op.Chmod {
		// File modes are only set on create.
		if err := a.fs.Remove(op.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove for mode change: %w", err)
		}
	}

	obj, err := a.store.ReadObject(op.Hash)
	if err != nil {
		return err
	}
	if obj.Type != object.BlobObject {
		return fmt.Errorf("object %s is a %s, expected blob", op.Hash, obj.Type)
	}

	if dir := path.Dir(op.Path); dir != "." {
		if err := a.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create parent directory: %w", err)
		}
	}

	switch op.Mode {
	case filemode.Regular, filemode.Deprecated:
		if err := util.WriteFile(a.fs, op.Path, obj.Data, 0o644); err != nil {
			return err
		}
	case filemode.Executable:
		if err := util.WriteFile(a.fs, op.Path, obj.Data, 0o777); err != nil {
			return err
		}
	case filemode.Symlink:
		if err := a.fs.Remove(op.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := a.fs.Symlink(string(obj.Data), op.Path); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid blob mode %s", op.Mode)
	}

	info, err := a.fs.Lstat(op.Path)
	if err != nil {
		return fmt.Errorf("failed to stat %s after write: %w", op.Path, err)
	}
	f.Insert(op.Path, op.Hash, op.Mode, info)
	return nil
}

func (a *applier) dirEmpty(p string) (bool, error) {
	infos, err := a.fs.ReadDir(p)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to list %s: %w", p, err)
	}
	return len(infos) == 0, nil
}
