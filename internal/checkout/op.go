package checkout

import (
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
)

// Kind enumerates the plan op alphabet.
type Kind string

const (
	OpMkdir       Kind = "mkdir"
	OpRmdir       Kind = "rmdir"
	OpCreate      Kind = "create"
	OpCreateIndex Kind = "create-index"
	OpUpdate      Kind = "update"
	OpDelete      Kind = "delete"
	OpDeleteIndex Kind = "delete-index"
	OpDirToBlob   Kind = "update-dir-to-blob"
	OpBlobToTree  Kind = "update-blob-to-tree"
	OpConflict    Kind = "conflict"
	OpError       Kind = "error"
)

// Op is a single planned mutation. Ops are immutable once emitted and
// owned exclusively by the plan slice.
type Op struct {
	Kind Kind
	Path string

	// Hash and Mode carry the incoming blob for create/update ops.
	Hash plumbing.Hash
	Mode filemode.FileMode

	// Chmod marks an update whose mode changed, forcing remove-then-create.
	Chmod bool

	// Message carries the diagnostic for error ops.
	Message string
}

// reduceOps folds a directory's op into its children's ops. Directory
// creations must precede their contents and directory removals must follow
// them, so an rmdir parent is appended after its children while every
// other parent is prepended.
func reduceOps(parent *Op, children []Op) []Op {
	if parent == nil {
		return children
	}
	if parent.Kind == OpRmdir {
		return append(children, *parent)
	}
	return append([]Op{*parent}, children...)
}

// conflictPaths collects the paths of all conflict ops in plan order.
func conflictPaths(ops []Op) []string {
	var paths []string
	for _, op := range ops {
		if op.Kind == OpConflict {
			paths = append(paths, op.Path)
		}
	}
	return paths
}

// errorMessages collects the messages of all error ops in plan order.
func errorMessages(ops []Op) []string {
	var msgs []string
	for _, op := range ops {
		if op.Kind == OpError {
			msgs = append(msgs, op.Message)
		}
	}
	return msgs
}
