package dist

import (
	"math/rand/v2"
	"sync"

	"github.com/chazu/datex/pkg/addr"
	"github.com/chazu/datex/pkg/dxb"
	"github.com/chazu/datex/pkg/dxerr"
)

// scopeCounters tracks the counters of one locally generated scope id.
type scopeCounters struct {
	returnIndex int
	inc         int
}

type remoteKey struct {
	endpoint *addr.Endpoint
	sid      uint32
}

// Counters allocates scope ids and hands out return indices and block
// increments. All methods are safe for concurrent use.
type Counters struct {
	mu     sync.Mutex
	sids   map[uint32]*scopeCounters
	remote map[remoteKey]int
	rand   func() uint32
}

// NewCounters creates an empty counter service.
func NewCounters() *Counters {
	return &Counters{
		sids:   make(map[uint32]*scopeCounters),
		remote: make(map[remoteKey]int),
		rand:   rand.Uint32,
	}
}

// getOrCreate returns the counters for sid, creating them if needed.
// Caller must hold the lock.
func (c *Counters) getOrCreate(sid uint32) *scopeCounters {
	s, ok := c.sids[sid]
	if !ok {
		s = &scopeCounters{}
		c.sids[sid] = s
	}
	return s
}

// GenerateSID returns a random scope id that is not in use and resets its
// return index and block increment.
func (c *Counters) GenerateSID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		sid := c.rand()
		if _, used := c.sids[sid]; used {
			continue
		}
		c.sids[sid] = &scopeCounters{}
		return sid
	}
}

// RemoveSID releases a scope id.
func (c *Counters) RemoveSID(sid uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sids, sid)
}

// InUse reports whether sid was generated and not yet removed.
func (c *Counters) InUse(sid uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sids[sid]
	return ok
}

// NextReturnIndex returns the next return index for sid, wrapping to 0
// after MaxBlockCounter.
func (c *Counters) NextReturnIndex(sid uint32) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.getOrCreate(sid)
	n := s.returnIndex
	if n > dxb.MaxBlockCounter {
		n = 0
	}
	s.returnIndex = n + 1
	return uint16(n)
}

// BlockInc returns the next block increment for a locally generated sid,
// wrapping to 0 after MaxBlockCounter.
func (c *Counters) BlockInc(sid uint32) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.getOrCreate(sid)
	n := s.inc
	if n > dxb.MaxBlockCounter {
		n = 0
	}
	s.inc = n + 1
	return uint16(n)
}

// BlockIncForRemote returns the next block increment of a response to
// endpoint for sid. When reset is set (end of scope) the counter restarts
// at 0 for the next response sequence.
func (c *Counters) BlockIncForRemote(sid uint32, endpoint *addr.Endpoint, reset bool) (uint16, error) {
	if endpoint == nil {
		return 0, dxerr.Compiler("Can only send datex responses to endpoint targets")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	k := remoteKey{endpoint, sid}
	n, ok := c.remote[k]
	if !ok && reset {
		return 0, nil
	}
	if n > dxb.MaxBlockCounter {
		n = 0
	}
	c.remote[k] = n + 1
	if reset {
		c.remote[k] = 0
	}
	return uint16(n), nil
}
