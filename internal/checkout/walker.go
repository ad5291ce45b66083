package checkout

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	format "github.com/go-git/go-git/v5/plumbing/format/index"

	"github.com/djencks/isogit/internal/object"
	"github.com/djencks/isogit/internal/pathspec"
)

// entryKind classifies a walk entry after mode normalization.
type entryKind int

const (
	kindNone entryKind = iota
	kindTree
	kindBlob
	kindGitlink
	kindSpecial
)

func (k entryKind) String() string {
	switch k {
	case kindTree:
		return "tree"
	case kindBlob:
		return "blob"
	case kindGitlink:
		return "commit"
	case kindSpecial:
		return "special"
	default:
		return "none"
	}
}

func kindOfMode(m filemode.FileMode) entryKind {
	switch m {
	case filemode.Dir:
		return kindTree
	case filemode.Regular, filemode.Deprecated, filemode.Executable, filemode.Symlink:
		return kindBlob
	case filemode.Submodule:
		return kindGitlink
	default:
		return kindSpecial
	}
}

// commitEntry is the COMMIT presence at one path.
type commitEntry struct {
	exists bool
	mode   filemode.FileMode
	hash   plumbing.Hash
}

func (e commitEntry) kind() entryKind {
	if !e.exists {
		return kindNone
	}
	return kindOfMode(e.mode)
}

// stageEntry is the STAGE presence at one path. Directories are implicit
// in the index, so a tree entry carries no mode or hash.
type stageEntry struct {
	exists bool
	tree   bool
	mode   filemode.FileMode
	hash   plumbing.Hash
}

func (e stageEntry) kind() entryKind {
	if !e.exists {
		return kindNone
	}
	if e.tree {
		return kindTree
	}
	return kindOfMode(e.mode)
}

// workdirEntry is the WORK presence at one path. Content hashing reads the
// file, so it is memoized and must only be requested when the presence key
// alone cannot decide the op. The root entry is synthesized with a nil
// FileInfo.
type workdirEntry struct {
	exists bool
	path   string
	fs     billy.Filesystem
	info   os.FileInfo

	hashed bool
	hash   plumbing.Hash
}

func (e *workdirEntry) mode() filemode.FileMode {
	if !e.exists {
		return filemode.Empty
	}
	if e.info == nil {
		return filemode.Dir
	}
	m, err := filemode.NewFromOSFileMode(e.info.Mode())
	if err != nil {
		return filemode.Empty
	}
	return m
}

func (e *workdirEntry) kind() entryKind {
	if !e.exists {
		return kindNone
	}
	if m := e.mode(); m != filemode.Empty {
		return kindOfMode(m)
	}
	return kindSpecial
}

// contentHash computes the blob oid of the workdir entry, reading the
// symlink target for links and the file contents otherwise.
func (e *workdirEntry) contentHash() (plumbing.Hash, error) {
	if e.hashed {
		return e.hash, nil
	}
	var data []byte
	if e.mode() == filemode.Symlink {
		target, err := e.fs.Readlink(e.path)
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("failed to read link %s: %w", e.path, err)
		}
		data = []byte(target)
	} else {
		var err error
		data, err = util.ReadFile(e.fs, e.path)
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("failed to read %s: %w", e.path, err)
		}
	}
	e.hash = object.HashBlob(data)
	e.hashed = true
	return e.hash, nil
}

// stageView is an immutable directory-shaped view over the flat index
// entry list.
type stageView struct {
	entries map[string]*format.Entry
	dirs    map[string]map[string]bool
}

func newStageView(idx *format.Index) *stageView {
	v := &stageView{
		entries: make(map[string]*format.Entry),
		dirs:    make(map[string]map[string]bool),
	}
	for _, e := range idx.Entries {
		v.entries[e.Name] = e
		dir := "."
		rest := e.Name
		for {
			name, tail, more := strings.Cut(rest, "/")
			if v.dirs[dir] == nil {
				v.dirs[dir] = make(map[string]bool)
			}
			v.dirs[dir][name] = true
			if !more {
				break
			}
			dir = joinPath(dir, name)
			rest = tail
		}
	}
	return v
}

func (v *stageView) at(path string) stageEntry {
	if e, ok := v.entries[path]; ok {
		return stageEntry{exists: true, mode: e.Mode, hash: e.Hash}
	}
	if _, ok := v.dirs[path]; ok {
		return stageEntry{exists: true, tree: true}
	}
	return stageEntry{}
}

// walker produces the plan by a synchronized pre-order traversal over the
// commit tree, the working directory, and the stage.
type walker struct {
	store    object.Store
	fs       billy.Filesystem
	matcher  *pathspec.Matcher
	ignore   gitignore.Matcher
	stage    *stageView
	planner  *planner
	progress *progressCounter
}

// run walks the three sources from the root tree and returns the reduced
// plan in deterministic order.
func (w *walker) run(rootTree plumbing.Hash) ([]Op, error) {
	root := commitEntry{exists: true, mode: filemode.Dir, hash: rootTree}
	stageRoot := stageEntry{exists: true, tree: true}
	workRoot := &workdirEntry{exists: true, path: ".", fs: w.fs}
	return w.walk(".", root, stageRoot, workRoot)
}

func (w *walker) walk(path string, c commitEntry, s stageEntry, wd *workdirEntry) ([]Op, error) {
	if !w.matcher.WorthWalking(path) {
		return nil, nil
	}

	op, err := w.planner.mapEntry(path, c, s, wd)
	if err != nil {
		return nil, err
	}
	w.progress.tick()

	names, commitChildren, workChildren, err := w.children(path, c, wd)
	if err != nil {
		return nil, err
	}

	var children []Op
	for _, name := range names {
		childPath := joinPath(path, name)

		cc := commitEntry{}
		if te, ok := commitChildren[name]; ok {
			cc = commitEntry{exists: true, mode: te.Mode, hash: te.Hash}
		}
		sc := w.stage.at(childPath)
		wc := &workdirEntry{path: childPath, fs: w.fs}
		if info, ok := workChildren[name]; ok {
			wc.exists = true
			wc.info = info
		}

		ops, err := w.walk(childPath, cc, sc, wc)
		if err != nil {
			return nil, err
		}
		children = append(children, ops...)
	}

	return reduceOps(op, children), nil
}

// children merges the child name sets of the three sources at path and
// returns them in ascending order. The gitdir and ignored entries are
// dropped from the workdir listing.
func (w *walker) children(path string, c commitEntry, wd *workdirEntry) ([]string, map[string]object.TreeEntry, map[string]os.FileInfo, error) {
	names := make(map[string]bool)

	var commitChildren map[string]object.TreeEntry
	if c.kind() == kindTree {
		obj, err := w.store.ReadObject(c.hash)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to read tree at %s: %w", path, err)
		}
		if obj.Type != object.TreeObject {
			return nil, nil, nil, fmt.Errorf("object at %s is a %s, expected tree", path, obj.Type)
		}
		entries, err := object.ParseTree(obj.Data)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to parse tree at %s: %w", path, err)
		}
		commitChildren = make(map[string]object.TreeEntry, len(entries))
		for _, te := range entries {
			commitChildren[te.Name] = te
			names[te.Name] = true
		}
	}

	var workChildren map[string]os.FileInfo
	if wd.exists && wd.kind() == kindTree {
		infos, err := w.fs.ReadDir(path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to list %s: %w", path, err)
		}
		workChildren = make(map[string]os.FileInfo, len(infos))
		for _, info := range infos {
			name := info.Name()
			if path == "." && name == ".git" {
				continue
			}
			childPath := joinPath(path, name)
			if w.ignore != nil && w.ignore.Match(strings.Split(childPath, "/"), info.IsDir()) {
				continue
			}
			workChildren[name] = info
			names[name] = true
		}
	}

	for name := range w.stage.dirs[path] {
		names[name] = true
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	return sorted, commitChildren, workChildren, nil
}

func joinPath(dir, name string) string {
	if dir == "." {
		return name
	}
	return dir + "/" + name
}
