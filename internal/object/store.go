package object

import (
	"bufio"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"
)

var (
	// ErrObjectNotFound indicates an oid that is not present in the store.
	ErrObjectNotFound = errors.New("object not found")

	// ErrRefNotFound indicates a ref that could not be resolved.
	ErrRefNotFound = errors.New("ref not found")
)

// refSearchPrefixes is the expansion order for short refs, mirroring
// git rev-parse: exact, refs/, tags, heads, remotes, remote HEAD.
var refSearchPrefixes = []string{
	"%s",
	"refs/%s",
	"refs/tags/%s",
	"refs/heads/%s",
	"refs/remotes/%s",
	"refs/remotes/%s/HEAD",
}

// maxSymrefDepth bounds symbolic ref chains during resolution.
const maxSymrefDepth = 5

// Store is the object-store collaborator consumed by the checkout engine.
type Store interface {
	// ResolveRef resolves a short or full ref (or a raw 40-hex oid) to an
	// object id, following symbolic refs.
	ResolveRef(ref string) (plumbing.Hash, error)

	// ExpandRef expands a short ref to its full refs/... name.
	ExpandRef(ref string) (string, error)

	// ReadObject reads and decodes the object with the given id.
	ReadObject(h plumbing.Hash) (*Object, error)

	// WriteRef writes a loose ref pointing at the given oid.
	WriteRef(ref string, h plumbing.Hash) error

	// WriteSymbolicRef writes a symbolic ref (used for HEAD).
	WriteSymbolicRef(ref, target string) error
}

// LooseStore reads loose objects and refs from a gitdir-rooted filesystem.
// Packed refs are consulted when a loose ref file is absent; packfiles are
// not supported.
type LooseStore struct {
	fs billy.Filesystem
}

// NewLooseStore creates a LooseStore over the given gitdir filesystem.
func NewLooseStore(fs billy.Filesystem) *LooseStore {
	return &LooseStore{fs: fs}
}

// ReadObject reads a zlib-compressed loose object and splits off its
// "<type> <len>\x00" header.
func (s *LooseStore) ReadObject(h plumbing.Hash) (*Object, error) {
	hex := h.String()
	path := s.fs.Join("objects", hex[:2], hex[2:])

	f, err := s.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, hex)
		}
		return nil, fmt.Errorf("failed to open object %s: %w", hex, err)
	}
	defer func() {
		_ = f.Close()
	}()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to inflate object %s: %w", hex, err)
	}
	defer func() {
		_ = zr.Close()
	}()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", hex, err)
	}

	nul := strings.IndexByte(string(raw), 0)
	if nul < 0 {
		return nil, fmt.Errorf("malformed object %s: missing header", hex)
	}
	header := string(raw[:nul])
	typ, _, ok := strings.Cut(header, " ")
	if !ok {
		return nil, fmt.Errorf("malformed object %s: header %q", hex, header)
	}

	return &Object{Type: Type(typ), Data: raw[nul+1:]}, nil
}

// WriteObject zlib-compresses and stores an object, returning its id.
// Used by repository plumbing and test fixtures; checkout only reads.
func (s *LooseStore) WriteObject(t Type, data []byte) (plumbing.Hash, error) {
	h := Hash(t, data)
	hex := h.String()
	path := s.fs.Join("objects", hex[:2], hex[2:])

	if _, err := s.fs.Stat(path); err == nil {
		return h, nil
	}
	if err := s.fs.MkdirAll(s.fs.Join("objects", hex[:2]), 0o755); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to create object directory: %w", err)
	}

	f, err := s.fs.Create(path)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to create object %s: %w", hex, err)
	}
	zw := zlib.NewWriter(f)
	if _, err := fmt.Fprintf(zw, "%s %d", t, len(data)); err != nil {
		_ = f.Close()
		return plumbing.ZeroHash, fmt.Errorf("failed to write object header: %w", err)
	}
	if _, err := zw.Write([]byte{0}); err != nil {
		_ = f.Close()
		return plumbing.ZeroHash, fmt.Errorf("failed to write object header: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		_ = f.Close()
		return plumbing.ZeroHash, fmt.Errorf("failed to write object payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return plumbing.ZeroHash, fmt.Errorf("failed to finish object %s: %w", hex, err)
	}
	if err := f.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to close object %s: %w", hex, err)
	}
	return h, nil
}

// ResolveRef resolves a ref name to an oid, trying the standard expansion
// order and following symbolic refs.
func (s *LooseStore) ResolveRef(ref string) (plumbing.Hash, error) {
	return s.resolve(ref, maxSymrefDepth)
}

func (s *LooseStore) resolve(ref string, depth int) (plumbing.Hash, error) {
	if depth < 0 {
		return plumbing.ZeroHash, fmt.Errorf("%w: symbolic ref chain too deep at %s", ErrRefNotFound, ref)
	}
	if plumbing.IsHash(ref) {
		return plumbing.NewHash(ref), nil
	}

	for _, prefix := range refSearchPrefixes {
		full := fmt.Sprintf(prefix, ref)
		content, err := s.readRefFile(full)
		if err != nil {
			continue
		}
		if target, ok := strings.CutPrefix(content, "ref: "); ok {
			return s.resolve(strings.TrimSpace(target), depth-1)
		}
		if plumbing.IsHash(content) {
			return plumbing.NewHash(content), nil
		}
		return plumbing.ZeroHash, fmt.Errorf("invalid ref contents in %s: %q", full, content)
	}

	packed, err := s.packedRefs()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	for _, prefix := range refSearchPrefixes {
		full := fmt.Sprintf(prefix, ref)
		if h, ok := packed[full]; ok {
			return h, nil
		}
	}

	return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrRefNotFound, ref)
}

// ExpandRef expands a short ref to its full name using the same search
// order as ResolveRef, without following symbolic refs.
func (s *LooseStore) ExpandRef(ref string) (string, error) {
	for _, prefix := range refSearchPrefixes {
		full := fmt.Sprintf(prefix, ref)
		if _, err := s.readRefFile(full); err == nil {
			return full, nil
		}
	}

	packed, err := s.packedRefs()
	if err != nil {
		return "", err
	}
	for _, prefix := range refSearchPrefixes {
		full := fmt.Sprintf(prefix, ref)
		if _, ok := packed[full]; ok {
			return full, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrRefNotFound, ref)
}

// WriteRef writes a loose ref file containing the oid.
func (s *LooseStore) WriteRef(ref string, h plumbing.Hash) error {
	if dir := path.Dir(ref); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create ref directory: %w", err)
		}
	}
	if err := util.WriteFile(s.fs, ref, []byte(h.String()+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write ref %s: %w", ref, err)
	}
	return nil
}

// WriteSymbolicRef writes a "ref: <target>" pointer, typically HEAD.
func (s *LooseStore) WriteSymbolicRef(ref, target string) error {
	if err := util.WriteFile(s.fs, ref, []byte("ref: "+target+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write symbolic ref %s: %w", ref, err)
	}
	return nil
}

func (s *LooseStore) readRefFile(ref string) (string, error) {
	data, err := util.ReadFile(s.fs, ref)
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return "", fmt.Errorf("empty ref file %s", ref)
	}
	return content, nil
}

// packedRefs parses the packed-refs file into a name→oid map. A missing
// file yields an empty map. Peeled "^" lines are skipped.
func (s *LooseStore) packedRefs() (map[string]plumbing.Hash, error) {
	refs := make(map[string]plumbing.Hash)

	f, err := s.fs.Open("packed-refs")
	if err != nil {
		if os.IsNotExist(err) {
			return refs, nil
		}
		return nil, fmt.Errorf("failed to open packed-refs: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "^") {
			continue
		}
		hex, name, ok := strings.Cut(line, " ")
		if !ok || !plumbing.IsHash(hex) {
			continue
		}
		refs[name] = plumbing.NewHash(hex)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read packed-refs: %w", err)
	}
	return refs, nil
}
