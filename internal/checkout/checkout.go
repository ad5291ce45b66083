// Package checkout plans and applies the transition of a working tree and
// index to a target ref. Planning is a three-way reconciliation between
// the target commit tree, the index, and the working directory; every
// disagreement with local edits is reported as a conflict and never
// resolved. Application is ordered into four phases; the index is only
// mutated while its exclusive lock is held.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/djencks/isogit/internal/gitconfig"
	"github.com/djencks/isogit/internal/index"
	"github.com/djencks/isogit/internal/object"
	"github.com/djencks/isogit/internal/pathspec"
)

// Options configures a checkout.
type Options struct {
	// FS is the working-tree filesystem.
	FS billy.Filesystem

	// Store is the object store of the repository.
	Store object.Store

	// Index manages the repository index file.
	Index *index.Store

	// Config is the repository configuration, written during
	// remote-tracking bootstrap.
	Config gitconfig.Config

	// Ref is the branch or commit-ish to check out. Required.
	Ref string

	// Filepaths restricts the checkout to the given prefixes. Empty means
	// the whole tree.
	Filepaths []string

	// Pattern further restricts leaf paths with a glob rooted at its
	// literal directory prefix.
	Pattern string

	// Remote names the remote consulted when Ref only resolves as a
	// remote-tracking branch. Defaults to origin.
	Remote string

	// NoCheckout updates HEAD without touching the working tree or index.
	NoCheckout bool

	// DryRun returns the plan without any side effect.
	DryRun bool

	// Emitter receives progress events; may be nil.
	Emitter Emitter

	// EmitterPrefix is prepended to emitted event names.
	EmitterPrefix string
}

// Result reports what a checkout did or, for dry runs, would do.
type Result struct {
	// Hash is the commit the checkout targeted.
	Hash plumbing.Hash

	// Ref is the full ref HEAD points at, empty when HEAD is detached.
	Ref string

	// Plan is the op list; populated only on dry runs.
	Plan []Op

	// Warnings collects non-fatal diagnostics: submodule skips, skipped
	// rmdirs, and best-effort write failures.
	Warnings []string
}

// Checkout moves the working tree and index to the given ref. All errors
// are tagged with the checkout caller identity.
func Checkout(ctx context.Context, opts Options) (*Result, error) {
	res, err := run(ctx, opts)
	if err != nil {
		return res, fmt.Errorf("checkout: %w", err)
	}
	return res, nil
}

func run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Ref == "" {
		return nil, ErrMissingRef
	}
	if opts.Remote == "" {
		opts.Remote = "origin"
	}

	oid, err := resolveTarget(opts)
	if err != nil {
		return nil, err
	}
	res := &Result{Hash: oid}

	if opts.NoCheckout {
		if err := updateHead(opts, res, oid); err != nil {
			return res, err
		}
		return res, nil
	}

	tree, err := targetTree(opts.Store, oid)
	if err != nil {
		return res, err
	}

	matcher, err := pathspec.New(opts.Filepaths, opts.Pattern)
	if err != nil {
		return res, err
	}

	idx, err := opts.Index.Load()
	if err != nil {
		return res, err
	}

	patterns, err := gitignore.ReadPatterns(opts.FS, nil)
	if err != nil {
		return res, fmt.Errorf("failed to read ignore rules: %w", err)
	}

	pl := newPlanner(matcher)
	w := &walker{
		store:    opts.Store,
		fs:       opts.FS,
		matcher:  matcher,
		ignore:   gitignore.NewMatcher(patterns),
		stage:    newStageView(idx),
		planner:  pl,
		progress: newProgressCounter(opts.Emitter, opts.EmitterPrefix, PhaseAnalyzing, 0),
	}

	ops, err := w.run(tree)
	if err != nil {
		return res, err
	}
	res.Warnings = append(res.Warnings, pl.warnings...)

	// Conflicts and errors fail the whole operation before the working tree
	// or index is touched, carrying every offending path rather than just
	// the first.
	if paths := conflictPaths(ops); len(paths) > 0 {
		return res, &ConflictError{Paths: paths}
	}
	if msgs := errorMessages(ops); len(msgs) > 0 {
		return res, &InternalError{Messages: msgs}
	}

	if opts.DryRun {
		res.Plan = ops
		return res, nil
	}

	a := &applier{
		fs:       opts.FS,
		store:    opts.Store,
		index:    opts.Index,
		progress: newProgressCounter(opts.Emitter, opts.EmitterPrefix, PhaseUpdating, len(ops)),
	}
	if err := a.apply(ctx, ops); err != nil {
		return res, err
	}
	res.Warnings = append(res.Warnings, a.warnings...)

	if err := updateHead(opts, res, oid); err != nil {
		return res, err
	}
	return res, nil
}

// resolveTarget resolves the ref locally, falling back to the remote's
// tracking branch. A successful fallback bootstraps the local branch:
// branch.<ref>.remote and .merge are configured and refs/heads/<ref> is
// created at the remote head. Dry runs resolve without the side effects.
func resolveTarget(opts Options) (plumbing.Hash, error) {
	oid, err := opts.Store.ResolveRef(opts.Ref)
	if err == nil {
		return oid, nil
	}
	if !errors.Is(err, object.ErrRefNotFound) {
		return plumbing.ZeroHash, err
	}

	oid, remoteErr := opts.Store.ResolveRef(opts.Remote + "/" + opts.Ref)
	if remoteErr != nil {
		return plumbing.ZeroHash, err
	}
	if opts.DryRun {
		return oid, nil
	}

	if err := opts.Config.Set("branch."+opts.Ref+".remote", opts.Remote); err != nil {
		return plumbing.ZeroHash, err
	}
	if err := opts.Config.Set("branch."+opts.Ref+".merge", "refs/heads/"+opts.Ref); err != nil {
		return plumbing.ZeroHash, err
	}
	if err := opts.Store.WriteRef("refs/heads/"+opts.Ref, oid); err != nil {
		return plumbing.ZeroHash, err
	}
	return oid, nil
}

// targetTree reads the target commit and returns its root tree. A missing
// object here means the commit was resolved from a ref but never fetched.
func targetTree(store object.Store, oid plumbing.Hash) (plumbing.Hash, error) {
	obj, err := store.ReadObject(oid)
	if err != nil {
		if errors.Is(err, object.ErrObjectNotFound) {
			return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrCommitNotFetched, oid)
		}
		return plumbing.ZeroHash, err
	}

	switch obj.Type {
	case object.CommitObject:
		return object.CommitTree(obj.Data)
	case object.TreeObject:
		return oid, nil
	default:
		return plumbing.ZeroHash, fmt.Errorf("cannot checkout %s object %s", obj.Type, oid)
	}
}

// updateHead writes HEAD as a symbolic ref for branches and as a detached
// oid for everything else, and is a content no-op when nothing changed.
func updateHead(opts Options, res *Result, oid plumbing.Hash) error {
	full, err := opts.Store.ExpandRef(opts.Ref)
	if err == nil && strings.HasPrefix(full, "refs/heads/") {
		res.Ref = full
		return opts.Store.WriteSymbolicRef("HEAD", full)
	}
	return opts.Store.WriteRef("HEAD", oid)
}
