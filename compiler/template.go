package compiler

import (
	"strings"

	"github.com/chazu/datex/dist"
	"github.com/chazu/datex/pkg/dxb"
	"github.com/chazu/datex/pkg/dxerr"
)

// ---------------------------------------------------------------------------
// Precompiled templates
// ---------------------------------------------------------------------------

// Template is a script compiled once with holes where '?' placeholders
// stood. Instantiate fills the holes with encoded values, skipping the
// parser entirely.
//
// A Template is immutable once returned by Precompile or Combine and may
// be shared between goroutines.
type Template struct {
	key      uint64
	source   string
	parts    []templatePart
	appended []*Template
	frozen   bool
}

// templatePart is a literal body slice or, if slot is set, the index of
// an injected value.
type templatePart struct {
	bytes []byte
	slot  bool
	index int
}

// slot is a placeholder byte written while precompiling. It keeps the
// place of the injected value when bytes are inserted in front of it.
type slot struct {
	at    *Handle
	index int
}

func newTemplate(source string) *Template {
	return &Template{key: SourceKey(source), source: source}
}

// Key returns the cache key of the template: its source and the options
// it was precompiled with.
func (t *Template) Key() uint64 { return t.key }

func (t *Template) appendBytes(b []byte) {
	if t.frozen {
		panic("compiler: modifying a frozen template")
	}
	t.parts = append(t.parts, templatePart{bytes: b})
}

func (t *Template) appendSlot(index int) {
	if t.frozen {
		panic("compiler: modifying a frozen template")
	}
	t.parts = append(t.parts, templatePart{slot: true, index: index})
}

func (t *Template) freeze() { t.frozen = true }

// Source returns the script text, including that of appended templates
// separated by newlines.
func (t *Template) Source() string {
	var parts []string
	if t.source != "" || len(t.appended) == 0 {
		parts = append(parts, t.source)
	}
	for _, a := range t.appended {
		if a == t {
			parts = append(parts, a.source)
			continue
		}
		parts = append(parts, a.Source())
	}
	return strings.Join(parts, "\n")
}

// Combine returns a new template consisting of the given templates in
// order.
func Combine(templates ...*Template) *Template {
	c := &Template{appended: templates}
	c.freeze()
	return c
}

// Combine returns a template of t followed by others.
func (t *Template) Combine(others ...*Template) *Template {
	return Combine(append([]*Template{t}, others...)...)
}

// each calls fn for every part, descending into appended templates. A
// template appended to itself contributes its own parts once.
func (t *Template) each(fn func(templatePart) error) error {
	for _, p := range t.parts {
		if err := fn(p); err != nil {
			return err
		}
	}
	for _, a := range t.appended {
		if a == t {
			for _, p := range a.parts {
				if err := fn(p); err != nil {
					return err
				}
			}
			continue
		}
		if err := a.each(fn); err != nil {
			return err
		}
	}
	return nil
}

// Slots returns the data indices referenced by the template, in order.
func (t *Template) Slots() []int {
	var slots []int
	t.each(func(p templatePart) error {
		if p.slot {
			slots = append(slots, p.index)
		}
		return nil
	})
	return slots
}

// Instantiate builds the body for data. Each slot is encoded with
// CompileValue, without a trailing ';'; a value used by several slots is
// encoded once.
func (t *Template) Instantiate(data []any, opts *Options) ([]byte, error) {
	if opts == nil {
		opts = &Options{}
	}
	compiled := make(map[int][]byte)
	var body []byte
	err := t.each(func(p templatePart) error {
		if !p.slot {
			body = append(body, p.bytes...)
			return nil
		}
		if p.index < 0 || p.index >= len(data) {
			return dxerr.Compiler("Missing data value for precompiled dxb")
		}
		enc, ok := compiled[p.index]
		if !ok {
			var err error
			if enc, err = compileValue(data[p.index], opts, false); err != nil {
				return err
			}
			compiled[p.index] = enc
		}
		body = append(body, enc...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// ToRecord flattens the template for persistence.
func (t *Template) ToRecord() *dist.TemplateRecord {
	r := &dist.TemplateRecord{Key: t.key, Source: t.Source()}
	t.each(func(p templatePart) error {
		r.Parts = append(r.Parts, dist.TemplatePart{Bytes: p.bytes, Slot: p.slot, Index: p.index})
		return nil
	})
	return r
}

// FromRecord restores a template saved with ToRecord.
func FromRecord(r *dist.TemplateRecord) *Template {
	t := newTemplate(r.Source)
	t.key = r.Key
	for _, p := range r.Parts {
		if p.Slot {
			t.appendSlot(p.Index)
		} else {
			t.appendBytes(p.Bytes)
		}
	}
	t.freeze()
	return t
}

// ---- precompilation bookkeeping ----

// precompileSlot writes a placeholder for data index i.
func (s *state) precompileSlot(i int) {
	s.slots = append(s.slots, slot{at: s.b.Handle(s.b.Len()), index: i})
	s.b.Emit(dxb.OpEnd)
}

// finishTemplate splits the final body at the placeholders.
func (s *state) finishTemplate(body []byte) {
	from := 0
	for _, sl := range s.slots {
		at := sl.at.Pos()
		if at > from {
			s.template.appendBytes(append([]byte(nil), body[from:at]...))
		}
		s.template.appendSlot(sl.index)
		from = at + 1
	}
	if from < len(body) {
		s.template.appendBytes(append([]byte(nil), body[from:]...))
	}
}
