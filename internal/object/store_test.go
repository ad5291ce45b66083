package object

import (
	"errors"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"
)

func newTestStore(t *testing.T) (*LooseStore, billy.Filesystem) {
	t.Helper()
	fs := memfs.New()
	return NewLooseStore(fs), fs
}

func TestLooseStore_WriteReadObject(t *testing.T) {
	s, _ := newTestStore(t)

	h, err := s.WriteObject(BlobObject, []byte("hello\n"))
	if err != nil {
		t.Fatalf("WriteObject failed: %v", err)
	}
	if h.String() != "ce013625030ba8dba906f756967f9e9ca394464a" {
		t.Errorf("unexpected oid %s", h)
	}

	obj, err := s.ReadObject(h)
	if err != nil {
		t.Fatalf("ReadObject failed: %v", err)
	}
	if obj.Type != BlobObject {
		t.Errorf("expected blob, got %s", obj.Type)
	}
	if string(obj.Data) != "hello\n" {
		t.Errorf("unexpected payload %q", obj.Data)
	}
}

func TestLooseStore_ReadObject_NotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.ReadObject(HashBlob([]byte("missing")))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLooseStore_ResolveRef_LooseAndSymbolic(t *testing.T) {
	s, fs := newTestStore(t)
	oid := plumbing.NewHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	if err := s.WriteRef("refs/heads/master", oid); err != nil {
		t.Fatalf("WriteRef failed: %v", err)
	}
	if err := s.WriteSymbolicRef("HEAD", "refs/heads/master"); err != nil {
		t.Fatalf("WriteSymbolicRef failed: %v", err)
	}

	data, err := util.ReadFile(fs, "refs/heads/master")
	if err != nil {
		t.Fatalf("reading ref file: %v", err)
	}
	if string(data) != oid.String()+"\n" {
		t.Errorf("unexpected ref file contents %q", data)
	}

	for _, ref := range []string{"master", "heads/master", "refs/heads/master", "HEAD"} {
		got, err := s.ResolveRef(ref)
		if err != nil {
			t.Fatalf("ResolveRef(%s) failed: %v", ref, err)
		}
		if got != oid {
			t.Errorf("ResolveRef(%s) = %s, want %s", ref, got, oid)
		}
	}
}

func TestLooseStore_ResolveRef_RawHash(t *testing.T) {
	s, _ := newTestStore(t)
	hex := "ce013625030ba8dba906f756967f9e9ca394464a"

	got, err := s.ResolveRef(hex)
	if err != nil {
		t.Fatalf("ResolveRef failed: %v", err)
	}
	if got.String() != hex {
		t.Errorf("ResolveRef = %s, want %s", got, hex)
	}
}

func TestLooseStore_ResolveRef_Packed(t *testing.T) {
	s, fs := newTestStore(t)
	packed := "# pack-refs with: peeled fully-peeled sorted\n" +
		"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb refs/heads/packed\n" +
		"^cccccccccccccccccccccccccccccccccccccccc\n"
	if err := util.WriteFile(fs, "packed-refs", []byte(packed), 0o644); err != nil {
		t.Fatalf("writing packed-refs: %v", err)
	}

	got, err := s.ResolveRef("packed")
	if err != nil {
		t.Fatalf("ResolveRef failed: %v", err)
	}
	if got.String() != "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb" {
		t.Errorf("unexpected oid %s", got)
	}

	full, err := s.ExpandRef("packed")
	if err != nil {
		t.Fatalf("ExpandRef failed: %v", err)
	}
	if full != "refs/heads/packed" {
		t.Errorf("ExpandRef = %s, want refs/heads/packed", full)
	}
}

func TestLooseStore_ResolveRef_NotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.ResolveRef("no-such-branch")
	if !errors.Is(err, ErrRefNotFound) {
		t.Errorf("expected ErrRefNotFound, got %v", err)
	}
	_, err = s.ExpandRef("no-such-branch")
	if !errors.Is(err, ErrRefNotFound) {
		t.Errorf("expected ErrRefNotFound from ExpandRef, got %v", err)
	}
}

func TestLooseStore_ExpandRef_RemoteTracking(t *testing.T) {
	s, _ := newTestStore(t)
	oid := plumbing.NewHash("dddddddddddddddddddddddddddddddddddddddd")
	if err := s.WriteRef("refs/remotes/origin/feature", oid); err != nil {
		t.Fatalf("WriteRef failed: %v", err)
	}

	got, err := s.ResolveRef("origin/feature")
	if err != nil {
		t.Fatalf("ResolveRef failed: %v", err)
	}
	if got != oid {
		t.Errorf("ResolveRef = %s, want %s", got, oid)
	}

	full, err := s.ExpandRef("origin/feature")
	if err != nil {
		t.Fatalf("ExpandRef failed: %v", err)
	}
	if full != "refs/remotes/origin/feature" {
		t.Errorf("ExpandRef = %s", full)
	}
}
