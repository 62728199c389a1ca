package store

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/chazu/datex/compiler"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "templates.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := openTemp(t)
	tpl, err := compiler.Precompile("[?, 1]", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PutTemplate(tpl); err != nil {
		t.Fatalf("PutTemplate failed: %v", err)
	}

	got, ok, err := s.GetTemplate(compiler.SourceKey("[?, 1]"))
	if err != nil || !ok {
		t.Fatalf("GetTemplate = %v, %v", ok, err)
	}
	if got.Source() != "[?, 1]" {
		t.Errorf("Source() = %q, want %q", got.Source(), "[?, 1]")
	}
	a, _ := tpl.Instantiate([]any{"x"}, nil)
	b, err := got.Instantiate([]any{"x"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("stored template = % x, want % x", b, a)
	}
}

func TestPutGet_OptionVariants(t *testing.T) {
	s := openTemp(t)
	open := &compiler.Options{KeepScopeOpen: true}
	closed, _ := compiler.Precompile("1 + ?", nil)
	kept, err := compiler.Precompile("1 + ?", open)
	if err != nil {
		t.Fatal(err)
	}
	for _, tpl := range []*compiler.Template{closed, kept} {
		if err := s.PutTemplate(tpl); err != nil {
			t.Fatalf("PutTemplate failed: %v", err)
		}
	}

	got, ok, err := s.GetTemplate(compiler.TemplateKey("1 + ?", open))
	if err != nil || !ok {
		t.Fatalf("GetTemplate = %v, %v", ok, err)
	}
	if got.Key() != kept.Key() {
		t.Errorf("Key() = %x, want %x", got.Key(), kept.Key())
	}
	a, _ := kept.Instantiate([]any{2}, open)
	b, _ := got.Instantiate([]any{2}, open)
	if !bytes.Equal(a, b) {
		t.Errorf("stored keep-open template = % x, want % x", b, a)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTemp(t)
	if _, err := s.Get(42); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
	_, ok, err := s.GetTemplate(42)
	if ok || err != nil {
		t.Errorf("GetTemplate = %v, %v, want false, nil", ok, err)
	}
}

func TestListDelete(t *testing.T) {
	s := openTemp(t)
	for _, src := range []string{"?", "? + 1"} {
		tpl, err := compiler.Precompile(src, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.PutTemplate(tpl); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("List() = %d entries, want 2", len(entries))
	}

	key := compiler.SourceKey("?")
	if err := s.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(key); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
	entries, _ = s.List()
	if len(entries) != 1 || entries[0].Source != "? + 1" {
		t.Errorf("List() after Delete = %v", entries)
	}
}

func TestCacheWithStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := compiler.NewTemplateCache(s).Get("{a: ?}", nil); err != nil {
		t.Fatal(err)
	}
	s.Close()

	// reopened store serves the template to a fresh cache
	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok, _ := s.GetTemplate(compiler.SourceKey("{a: ?}")); !ok {
		t.Fatal("template not persisted")
	}
	c := compiler.NewTemplateCache(s)
	tpl, err := c.Get("{a: ?}", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := tpl.Slots(); len(got) != 1 || got[0] != 0 {
		t.Errorf("Slots() = %v, want [0]", got)
	}
}
