// Package object provides the git object model consumed by the checkout
// engine: loose-object reads, ref resolution, tree parsing, and blob
// hashing. The engine itself only sees the Store interface; the concrete
// implementations live here so they can be tested in isolation.
package object

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"strconv"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
)

// Type identifies the kind of a git object.
type Type string

const (
	BlobObject   Type = "blob"
	TreeObject   Type = "tree"
	CommitObject Type = "commit"
	TagObject    Type = "tag"
)

// Object is a decoded loose object: its type and raw payload (without the
// "<type> <len>\x00" header).
type Object struct {
	Type Type
	Data []byte
}

// TreeEntry is one (mode, name, oid) row of a tree object.
type TreeEntry struct {
	Name string
	Mode filemode.FileMode
	Hash plumbing.Hash
}

// Hash computes the content address of an object of the given type, i.e.
// sha1("<type> <len>\x00" + data).
func Hash(t Type, data []byte) plumbing.Hash {
	h := sha1.New()
	fmt.Fprintf(h, "%s %d", t, len(data))
	h.Write([]byte{0})
	h.Write(data)
	var sum plumbing.Hash
	copy(sum[:], h.Sum(nil))
	return sum
}

// HashBlob computes the blob address of raw file contents.
func HashBlob(data []byte) plumbing.Hash {
	return Hash(BlobObject, data)
}

// ParseTree decodes a tree object payload into its entries. Entries are
// returned in the order they appear, which git guarantees to be sorted.
func ParseTree(data []byte) ([]TreeEntry, error) {
	var entries []TreeEntry
	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("malformed tree entry: missing mode separator")
		}
		modeNum, err := strconv.ParseUint(string(data[:sp]), 8, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed tree entry mode %q: %w", data[:sp], err)
		}
		data = data[sp+1:]

		nul := bytes.IndexByte(data, 0)
		if nul < 0 {
			return nil, fmt.Errorf("malformed tree entry: unterminated name")
		}
		name := string(data[:nul])
		data = data[nul+1:]

		if len(data) < 20 {
			return nil, fmt.Errorf("malformed tree entry %q: truncated oid", name)
		}
		var h plumbing.Hash
		copy(h[:], data[:20])
		data = data[20:]

		entries = append(entries, TreeEntry{
			Name: name,
			Mode: filemode.FileMode(modeNum),
			Hash: h,
		})
	}
	return entries, nil
}

// CommitTree extracts the root tree oid from a commit object payload. The
// tree line is required to be the first header line.
func CommitTree(data []byte) (plumbing.Hash, error) {
	line := data
	if nl := bytes.IndexByte(data, '\n'); nl >= 0 {
		line = data[:nl]
	}
	if !bytes.HasPrefix(line, []byte("tree ")) {
		return plumbing.ZeroHash, fmt.Errorf("malformed commit: missing tree header")
	}
	hex := string(bytes.TrimPrefix(line, []byte("tree ")))
	if !plumbing.IsHash(hex) {
		return plumbing.ZeroHash, fmt.Errorf("malformed commit: invalid tree oid %q", hex)
	}
	return plumbing.NewHash(hex), nil
}
