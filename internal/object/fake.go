package object

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
)

// FakeStore implements Store in memory for testing. Objects are added
// through AddBlob/AddTree/AddCommit, which content-address them exactly
// like the real store so hashes line up with on-disk repositories.
type FakeStore struct {
	objects map[plumbing.Hash]*Object
	refs    map[string]plumbing.Hash
	symrefs map[string]string
}

// NewFakeStore creates an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		objects: make(map[plumbing.Hash]*Object),
		refs:    make(map[string]plumbing.Hash),
		symrefs: make(map[string]string),
	}
}

// AddBlob stores a blob and returns its oid.
func (s *FakeStore) AddBlob(data []byte) plumbing.Hash {
	return s.add(BlobObject, data)
}

// AddTree serializes and stores a tree from the given entries.
func (s *FakeStore) AddTree(entries []TreeEntry) plumbing.Hash {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return treeEntrySortKey(sorted[i]) < treeEntrySortKey(sorted[j])
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		fmt.Fprintf(&buf, "%o %s", uint32(e.Mode), e.Name)
		buf.WriteByte(0)
		buf.Write(e.Hash[:])
	}
	return s.add(TreeObject, buf.Bytes())
}

// AddCommit stores a minimal commit object pointing at the given tree.
func (s *FakeStore) AddCommit(tree plumbing.Hash) plumbing.Hash {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", tree)
	buf.WriteString("author t <t@t> 0 +0000\n")
	buf.WriteString("committer t <t@t> 0 +0000\n\ntest\n")
	return s.add(CommitObject, buf.Bytes())
}

// SetRef points a full ref name at an oid.
func (s *FakeStore) SetRef(ref string, h plumbing.Hash) {
	s.refs[ref] = h
}

// DeleteObject removes an object, simulating a not-fetched commit.
func (s *FakeStore) DeleteObject(h plumbing.Hash) {
	delete(s.objects, h)
}

func (s *FakeStore) add(t Type, data []byte) plumbing.Hash {
	h := Hash(t, data)
	s.objects[h] = &Object{Type: t, Data: data}
	return h
}

// ResolveRef resolves against the in-memory ref table using the standard
// expansion order.
func (s *FakeStore) ResolveRef(ref string) (plumbing.Hash, error) {
	if plumbing.IsHash(ref) {
		return plumbing.NewHash(ref), nil
	}
	for _, prefix := range refSearchPrefixes {
		full := fmt.Sprintf(prefix, ref)
		if target, ok := s.symrefs[full]; ok {
			return s.ResolveRef(target)
		}
		if h, ok := s.refs[full]; ok {
			return h, nil
		}
	}
	return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrRefNotFound, ref)
}

// ExpandRef expands a short ref against the in-memory ref table.
func (s *FakeStore) ExpandRef(ref string) (string, error) {
	for _, prefix := range refSearchPrefixes {
		full := fmt.Sprintf(prefix, ref)
		if _, ok := s.symrefs[full]; ok {
			return full, nil
		}
		if _, ok := s.refs[full]; ok {
			return full, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrRefNotFound, ref)
}

// ReadObject returns a stored object.
func (s *FakeStore) ReadObject(h plumbing.Hash) (*Object, error) {
	obj, ok := s.objects[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, h)
	}
	return obj, nil
}

// WriteRef records a ref write.
func (s *FakeStore) WriteRef(ref string, h plumbing.Hash) error {
	s.refs[ref] = h
	return nil
}

// WriteSymbolicRef records a symbolic ref write.
func (s *FakeStore) WriteSymbolicRef(ref, target string) error {
	s.symrefs[ref] = target
	return nil
}

// Ref returns the current target of a ref, for assertions.
func (s *FakeStore) Ref(ref string) (plumbing.Hash, bool) {
	h, ok := s.refs[ref]
	return h, ok
}

// SymbolicRef returns the current target of a symbolic ref, for assertions.
func (s *FakeStore) SymbolicRef(ref string) (string, bool) {
	t, ok := s.symrefs[ref]
	return t, ok
}

// treeEntrySortKey reproduces git's tree ordering, where directories sort
// as if their name had a trailing slash.
func treeEntrySortKey(e TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}
