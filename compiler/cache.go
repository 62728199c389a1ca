package compiler

import (
	"sync"
)

// TemplateStore persists templates across processes.
type TemplateStore interface {
	GetTemplate(key uint64) (*Template, bool, error)
	PutTemplate(t *Template) error
}

// TemplateCache maps script texts to their precompiled templates. It is
// safe for concurrent use.
type TemplateCache struct {
	mu        sync.RWMutex
	templates map[uint64]*Template
	store     TemplateStore
}

// NewTemplateCache creates a cache. store may be nil for a purely in
// memory cache.
func NewTemplateCache(store TemplateStore) *TemplateCache {
	return &TemplateCache{
		templates: make(map[uint64]*Template),
		store:     store,
	}
}

// Get returns the template for source and opts, precompiling and storing
// it on a miss.
func (c *TemplateCache) Get(source string, opts *Options) (*Template, error) {
	key := TemplateKey(source, opts)

	c.mu.RLock()
	t, ok := c.templates[key]
	c.mu.RUnlock()
	if ok && t.Source() == source {
		return t, nil
	}

	if c.store != nil {
		st, found, err := c.store.GetTemplate(key)
		if err != nil {
			return nil, err
		}
		if found && st.Source() == source {
			log.Debugf("template %016x loaded from store", key)
			c.put(key, st)
			return st, nil
		}
	}

	t, err := Precompile(source, opts)
	if err != nil {
		return nil, err
	}
	c.put(key, t)
	if c.store != nil {
		if err := c.store.PutTemplate(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (c *TemplateCache) put(key uint64, t *Template) {
	c.mu.Lock()
	c.templates[key] = t
	c.mu.Unlock()
}

// Len returns the number of cached templates.
func (c *TemplateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.templates)
}

// Forget drops the template for source and opts from memory.
func (c *TemplateCache) Forget(source string, opts *Options) {
	c.mu.Lock()
	delete(c.templates, TemplateKey(source, opts))
	c.mu.Unlock()
}
