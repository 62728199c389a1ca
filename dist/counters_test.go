package dist

import (
	"testing"

	"github.com/chazu/datex/pkg/addr"
)

func TestCounters_GenerateSID(t *testing.T) {
	c := NewCounters()
	seq := []uint32{7, 7, 7, 9}
	c.rand = func() uint32 {
		v := seq[0]
		seq = seq[1:]
		return v
	}
	if got := c.GenerateSID(); got != 7 {
		t.Errorf("first sid: got %d, want 7", got)
	}
	if got := c.GenerateSID(); got != 9 {
		t.Errorf("second sid: got %d, want 9 (7 is in use)", got)
	}
	if !c.InUse(7) || !c.InUse(9) {
		t.Error("generated sids should be in use")
	}
	c.RemoveSID(7)
	if c.InUse(7) {
		t.Error("sid 7 should be released")
	}
}

func TestCounters_BlockInc(t *testing.T) {
	c := NewCounters()
	sid := c.GenerateSID()
	for want := uint16(0); want < 3; want++ {
		if got := c.BlockInc(sid); got != want {
			t.Errorf("BlockInc: got %d, want %d", got, want)
		}
	}
	if got := c.NextReturnIndex(sid); got != 0 {
		t.Errorf("NextReturnIndex: got %d, want 0", got)
	}
	if got := c.NextReturnIndex(sid); got != 1 {
		t.Errorf("NextReturnIndex: got %d, want 1", got)
	}
}

func TestCounters_BlockIncWraps(t *testing.T) {
	c := NewCounters()
	c.sids[5] = &scopeCounters{inc: 65535, returnIndex: 65536}
	if got := c.BlockInc(5); got != 65535 {
		t.Errorf("BlockInc: got %d, want 65535", got)
	}
	if got := c.BlockInc(5); got != 0 {
		t.Errorf("BlockInc after max: got %d, want 0", got)
	}
	if got := c.NextReturnIndex(5); got != 0 {
		t.Errorf("NextReturnIndex after max: got %d, want 0", got)
	}
}

func TestCounters_BlockIncForRemote(t *testing.T) {
	c := NewCounters()
	bob := addr.MustParse("@bob")

	// a single block response never stores a counter
	for i := 0; i < 2; i++ {
		got, err := c.BlockIncForRemote(42, bob, true)
		if err != nil {
			t.Fatal(err)
		}
		if got != 0 {
			t.Errorf("single response %d: got inc %d, want 0", i, got)
		}
	}

	// a multi block response counts up and resets at end of scope
	for i, eos := range []bool{false, false, true} {
		got, _ := c.BlockIncForRemote(42, bob, eos)
		if int(got) != i {
			t.Errorf("block %d: got inc %d, want %d", i, got, i)
		}
	}
	if got, _ := c.BlockIncForRemote(42, bob, false); got != 0 {
		t.Errorf("after reset: got inc %d, want 0", got)
	}

	// counters are kept per endpoint
	if got, _ := c.BlockIncForRemote(42, addr.MustParse("@carol"), false); got != 0 {
		t.Errorf("other endpoint: got inc %d, want 0", got)
	}

	if _, err := c.BlockIncForRemote(42, nil, false); err == nil {
		t.Error("expected error for missing endpoint")
	}
}
