package compiler

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chazu/datex/dist"
	"github.com/chazu/datex/pkg/dxb"
)

func TestPrecompile_MatchesDirectCompile(t *testing.T) {
	tests := []struct {
		src  string
		data []any
	}{
		{"? + 1", []any{2}},
		{"[?, ?]", []any{1, "x"}},
		{"(?, 'x')", []any{3}},
		{"?, 1", []any{"a"}},
		{"a = ?; a", []any{4}},
		{"{a: ?, b: ?1}", []any{5, 6}},
	}
	for _, tt := range tests {
		tpl, err := Precompile(tt.src, nil)
		if err != nil {
			t.Errorf("Precompile(%q) error: %v", tt.src, err)
			continue
		}
		got, err := tpl.Instantiate(tt.data, nil)
		if err != nil {
			t.Errorf("Instantiate(%q) error: %v", tt.src, err)
			continue
		}
		want := mustBody(t, tt.src, tt.data...)
		if !bytes.Equal(got, want) {
			t.Errorf("Instantiate(%q) = % x, want % x", tt.src, got, want)
		}
	}
}

func TestTemplate_Slots(t *testing.T) {
	tpl, err := Precompile("[?, ?2, ?]", nil)
	if err != nil {
		t.Fatal(err)
	}
	got := tpl.Slots()
	want := []int{0, 2, 1}
	if len(got) != len(want) {
		t.Fatalf("Slots() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Slots() = %v, want %v", got, want)
			break
		}
	}
}

func TestTemplate_MissingData(t *testing.T) {
	tpl, err := Precompile("?", nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = tpl.Instantiate(nil, nil)
	var ce *CompilerError
	if !errors.As(err, &ce) {
		t.Errorf("error = %v, want *CompilerError", err)
	}
}

func TestTemplate_Combine(t *testing.T) {
	a, err := Precompile("?", nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Precompile("? + 1", nil)
	if err != nil {
		t.Fatal(err)
	}
	c := a.Combine(b)
	if got := c.Source(); got != "?\n? + 1" {
		t.Errorf("Source() = %q", got)
	}
	got, err := c.Instantiate([]any{2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := ops(dxb.OpInt8, 2, dxb.OpCloseAndStore, dxb.OpInt8, 2, dxb.OpAdd, dxb.OpInt8, 1, dxb.OpCloseAndStore)
	if !bytes.Equal(got, want) {
		t.Errorf("Instantiate = % x, want % x", got, want)
	}
}

func TestTemplate_Record(t *testing.T) {
	tpl, err := Precompile("[?, 2]", nil)
	if err != nil {
		t.Fatal(err)
	}
	data, err := dist.MarshalTemplate(tpl.ToRecord())
	if err != nil {
		t.Fatal(err)
	}
	rec, err := dist.UnmarshalTemplate(data)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Key != SourceKey("[?, 2]") {
		t.Errorf("Key = %x, want %x", rec.Key, SourceKey("[?, 2]"))
	}
	restored := FromRecord(rec)
	a, _ := tpl.Instantiate([]any{1}, nil)
	b, err := restored.Instantiate([]any{1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("restored template = % x, want % x", b, a)
	}
}

func TestCompileTemplate(t *testing.T) {
	tpl, err := Precompile("? * 2", nil)
	if err != nil {
		t.Fatal(err)
	}
	blocks, err := New(nil).CompileTemplate(context.Background(), tpl, []any{3}, nil)
	if err != nil {
		t.Fatal(err)
	}
	info, err := dist.ParseHeader(blocks[0])
	if err != nil {
		t.Fatal(err)
	}
	if want := mustBody(t, "? * 2", 3); !bytes.Equal(info.Body, want) {
		t.Errorf("body = % x, want % x", info.Body, want)
	}
}

// ---------------------------------------------------------------------------
// Cache
// ---------------------------------------------------------------------------

type memStore struct {
	mu   sync.Mutex
	recs map[uint64][]byte
	puts int
}

func newMemStore() *memStore { return &memStore{recs: make(map[uint64][]byte)} }

func (m *memStore) GetTemplate(key uint64) (*Template, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.recs[key]
	if !ok {
		return nil, false, nil
	}
	rec, err := dist.UnmarshalTemplate(data)
	if err != nil {
		return nil, false, err
	}
	return FromRecord(rec), true, nil
}

func (m *memStore) PutTemplate(t *Template) error {
	data, err := dist.MarshalTemplate(t.ToRecord())
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[t.Key()] = data
	m.puts++
	return nil
}

func TestTemplateCache(t *testing.T) {
	store := newMemStore()
	c := NewTemplateCache(store)

	first, err := c.Get("? + 1", nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Get("? + 1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("second Get did not return the cached template")
	}
	if store.puts != 1 {
		t.Errorf("puts = %d, want 1", store.puts)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	// a fresh cache finds the template in the store
	other := NewTemplateCache(store)
	loaded, err := other.Get("? + 1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if store.puts != 1 {
		t.Errorf("puts = %d after store hit, want 1", store.puts)
	}
	a, _ := first.Instantiate([]any{5}, nil)
	b, _ := loaded.Instantiate([]any{5}, nil)
	if !bytes.Equal(a, b) {
		t.Errorf("stored template = % x, want % x", b, a)
	}

	c.Forget("? + 1", nil)
	if c.Len() != 0 {
		t.Errorf("Len() after Forget = %d, want 0", c.Len())
	}
}

func TestTemplateCache_Options(t *testing.T) {
	c := NewTemplateCache(nil)
	if _, err := c.Get("1 + ?", nil); err != nil {
		t.Fatal(err)
	}
	open := &Options{KeepScopeOpen: true}
	tpl, err := c.Get("1 + ?", open)
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	got, err := tpl.Instantiate([]any{2}, open)
	if err != nil {
		t.Fatal(err)
	}
	want, err := CompileBody("1 + ?", []any{2}, open)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("keep-open template = % x, want % x", got, want)
	}
	if TemplateKey("1 + ?", open) == TemplateKey("1 + ?", nil) {
		t.Error("TemplateKey ignores KeepScopeOpen")
	}
	if TemplateKey("1 + ?", &Options{}) != SourceKey("1 + ?") {
		t.Error("TemplateKey without options differs from SourceKey")
	}
}

func TestCompileCached(t *testing.T) {
	comp := New(nil)
	comp.Cache = NewTemplateCache(nil)
	for _, v := range []int{1, 2} {
		blocks, err := comp.CompileCached(context.Background(), "[?]", []any{v}, nil)
		if err != nil {
			t.Fatal(err)
		}
		info, err := dist.ParseHeader(blocks[0])
		if err != nil {
			t.Fatal(err)
		}
		if want := mustBody(t, "[?]", v); !bytes.Equal(info.Body, want) {
			t.Errorf("body = % x, want % x", info.Body, want)
		}
	}
	if comp.Cache.Len() != 1 {
		t.Errorf("cache Len() = %d, want 1", comp.Cache.Len())
	}
}
