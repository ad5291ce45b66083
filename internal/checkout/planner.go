package checkout

import (
	"fmt"

	"github.com/djencks/isogit/internal/pathspec"
)

// planner turns one walk triple into at most one plan op. The dispatch is
// a single switch on the 3-bit presence key stage|commit|workdir; every
// cell of the decision table is its own case so each is testable.
type planner struct {
	matcher  *pathspec.Matcher
	warnings []string
}

func newPlanner(matcher *pathspec.Matcher) *planner {
	return &planner{matcher: matcher}
}

func (p *planner) warn(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

func (p *planner) mapEntry(path string, c commitEntry, s stageEntry, w *workdirEntry) (*Op, error) {
	if path == "." {
		return nil, nil
	}
	if !p.matcher.Matches(path) {
		return nil, nil
	}

	key := 0
	if s.exists {
		key |= 0b100
	}
	if c.exists {
		key |= 0b010
	}
	if w.exists {
		key |= 0b001
	}

	switch key {
	case 0b000:
		// Unreachable: the walker only yields paths present somewhere.
		return nil, nil
	case 0b001:
		// Untracked workdir file, leave it alone.
		return nil, nil
	case 0b010:
		return p.planCreate(path, c)
	case 0b011:
		return p.planCreateOverWorkdir(path, c, w)
	case 0b100:
		return &Op{Kind: OpDeleteIndex, Path: path}, nil
	case 0b101:
		return p.planDelete(path, s, w)
	case 0b110, 0b111:
		return p.planUpdate(path, c, s, w)
	}
	return nil, nil
}

// planCreate handles key 010: the commit introduces an entry that exists
// nowhere else.
func (p *planner) planCreate(path string, c commitEntry) (*Op, error) {
	switch c.kind() {
	case kindTree:
		return &Op{Kind: OpMkdir, Path: path}, nil
	case kindBlob:
		return &Op{Kind: OpCreate, Path: path, Hash: c.hash, Mode: c.mode}, nil
	case kindGitlink:
		p.warn("ignoring submodule at %s: submodule support is not implemented", path)
		return nil, nil
	default:
		return p.errorOp(path, c, stageEntry{}, nil), nil
	}
}

// planCreateOverWorkdir handles key 011: the commit introduces an entry
// but the working directory already has something at the path.
func (p *planner) planCreateOverWorkdir(path string, c commitEntry, w *workdirEntry) (*Op, error) {
	switch {
	case c.kind() == kindTree && w.kind() == kindTree:
		return nil, nil
	case c.kind() == kindTree && w.kind() == kindBlob,
		c.kind() == kindBlob && w.kind() == kindTree:
		return &Op{Kind: OpConflict, Path: path}, nil
	case c.kind() == kindBlob && w.kind() == kindBlob:
		wh, err := w.contentHash()
		if err != nil {
			return nil, err
		}
		if c.hash != wh {
			return &Op{Kind: OpConflict, Path: path}, nil
		}
		if c.mode != w.mode() {
			return &Op{Kind: OpConflict, Path: path}, nil
		}
		// Contents already match; only the index needs the entry.
		return &Op{Kind: OpCreateIndex, Path: path, Hash: c.hash, Mode: c.mode}, nil
	case c.kind() == kindGitlink && w.kind() == kindTree:
		// A directory occupies the submodule slot; skipped, like all
		// submodule handling.
		p.warn("ignoring submodule at %s: submodule support is not implemented", path)
		return nil, nil
	case c.kind() == kindGitlink && w.kind() == kindBlob:
		return &Op{Kind: OpConflict, Path: path}, nil
	default:
		return p.errorOp(path, c, stageEntry{}, w), nil
	}
}

// planDelete handles key 101: the commit no longer has the entry but both
// stage and workdir do.
func (p *planner) planDelete(path string, s stageEntry, w *workdirEntry) (*Op, error) {
	switch s.kind() {
	case kindTree:
		return &Op{Kind: OpRmdir, Path: path}, nil
	case kindBlob:
		if w.kind() != kindBlob {
			// The file was replaced by something unhashable; refuse to
			// guess and surface it as a conflict.
			return &Op{Kind: OpConflict, Path: path}, nil
		}
		wh, err := w.contentHash()
		if err != nil {
			return nil, err
		}
		if wh != s.hash {
			return &Op{Kind: OpConflict, Path: path}, nil
		}
		return &Op{Kind: OpDelete, Path: path}, nil
	default:
		return p.errorOp(path, commitEntry{}, s, w), nil
	}
}

// planUpdate handles keys 111 and 110: the entry exists in both stage and
// commit, with the workdir either present or missing.
func (p *planner) planUpdate(path string, c commitEntry, s stageEntry, w *workdirEntry) (*Op, error) {
	switch {
	case s.kind() == kindTree && c.kind() == kindTree:
		return nil, nil
	case s.kind() == kindBlob && c.kind() == kindBlob:
		if w.exists {
			if w.kind() != kindBlob {
				return &Op{Kind: OpConflict, Path: path}, nil
			}
			wh, err := w.contentHash()
			if err != nil {
				return nil, err
			}
			// Tolerate a workdir that already matches the incoming commit,
			// not only the stage.
			if wh != s.hash && wh != c.hash {
				return &Op{Kind: OpConflict, Path: path}, nil
			}
		}
		if c.mode != s.mode {
			return &Op{Kind: OpUpdate, Path: path, Hash: c.hash, Mode: c.mode, Chmod: true}, nil
		}
		if c.hash != s.hash {
			return &Op{Kind: OpUpdate, Path: path, Hash: c.hash, Mode: c.mode}, nil
		}
		return nil, nil
	case s.kind() == kindTree && c.kind() == kindBlob:
		return &Op{Kind: OpDirToBlob, Path: path, Hash: c.hash, Mode: c.mode}, nil
	case s.kind() == kindBlob && c.kind() == kindTree:
		return &Op{Kind: OpBlobToTree, Path: path}, nil
	default:
		return p.errorOp(path, c, s, w), nil
	}
}

func (p *planner) errorOp(path string, c commitEntry, s stageEntry, w *workdirEntry) *Op {
	wk := kindNone
	if w != nil {
		wk = w.kind()
	}
	return &Op{
		Kind: OpError,
		Path: path,
		Message: fmt.Sprintf("unexpected entry types at %s: stage=%s commit=%s workdir=%s",
			path, s.kind(), c.kind(), wk),
	}
}
