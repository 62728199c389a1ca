package dist

import (
	"bytes"
	"context"
	"testing"

	"github.com/chazu/datex/pkg/addr"
	"github.com/chazu/datex/pkg/dxb"
)

func TestSplitBody(t *testing.T) {
	tests := []struct {
		n, max int
		want   []int
	}{
		{0, 10, []int{0}},
		{10, 10, []int{10}},
		{25, 10, []int{10, 10, 5}},
	}
	for _, tt := range tests {
		chunks := SplitBody(make([]byte, tt.n), tt.max)
		var got []int
		for _, c := range chunks {
			got = append(got, len(c))
		}
		if len(got) != len(tt.want) {
			t.Errorf("SplitBody(%d, %d): got %v, want %v", tt.n, tt.max, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("SplitBody(%d, %d): got %v, want %v", tt.n, tt.max, got, tt.want)
				break
			}
		}
	}
}

func TestFrame_SingleBlock(t *testing.T) {
	f := newTestFramer(nil)
	blocks, err := f.FrameAll(context.Background(), []byte{1, 2, 3}, Header{Type: dxb.ProtocolRequest, EndOfScope: true}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 1 {
		t.Fatalf("blocks: got %d, want 1", len(blocks))
	}
}

func TestFrame_SplitExplicitInc(t *testing.T) {
	f := newTestFramer(nil)
	inc := uint16(5)
	blocks, err := f.FrameAll(context.Background(), make([]byte, 300), Header{
		Type:       dxb.ProtocolRequest,
		Inc:        &inc,
		EndOfScope: true,
	}, 200)
	if err != nil {
		t.Fatal(err)
	}
	want := uint16(5)
	n := 0
	for i, b := range blocks {
		if len(b) == 0 {
			continue
		}
		info, err := ParseHeader(b)
		if err != nil {
			t.Fatal(err)
		}
		if info.Inc != want {
			t.Errorf("block %d: inc %d, want %d", i, info.Inc, want)
		}
		want++
		n++
	}
	if n < 2 {
		t.Fatalf("blocks = %d, want a split body", n)
	}
}

func TestFrame_Split(t *testing.T) {
	f := newTestFramer(nil)
	body := make([]byte, 300)
	for i := range body {
		body[i] = byte(i)
	}
	const maxSize = 100

	blocks, err := f.FrameAll(context.Background(), body, Header{
		Sender:     addr.MustParse("@alice"),
		Type:       dxb.ProtocolRequest,
		EndOfScope: true,
	}, maxSize)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) < 3 {
		t.Fatalf("blocks: got %d, want at least 3", len(blocks))
	}
	if len(blocks[len(blocks)-2]) != 0 {
		t.Error("a zero length block must precede the last block")
	}

	var joined []byte
	var sid uint32
	lastInc := -1
	for i, b := range blocks {
		if len(b) == 0 {
			if i != len(blocks)-2 {
				t.Errorf("unexpected empty block at %d", i)
			}
			continue
		}
		if len(b) > maxSize {
			t.Errorf("block %d: got %d bytes, max %d", i, len(b), maxSize)
		}
		info, err := ParseHeader(b)
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			sid = info.SID
		} else if info.SID != sid {
			t.Errorf("block %d: sid %d, want %d", i, info.SID, sid)
		}
		if int(info.Inc) <= lastInc {
			t.Errorf("block %d: inc %d not increasing", i, info.Inc)
		}
		lastInc = int(info.Inc)
		if last := i == len(blocks)-1; info.EndOfScope != last {
			t.Errorf("block %d: EndOfScope = %v, want %v", i, info.EndOfScope, last)
		}
		joined = append(joined, info.Body...)
	}
	if !bytes.Equal(joined, body) {
		t.Error("joined bodies differ from the original body")
	}
}

func TestFrame_ResponseIncrements(t *testing.T) {
	f := newTestFramer(nil)
	bob := addr.MustParse("@bob")
	blocks, err := f.FrameAll(context.Background(), make([]byte, 200), Header{
		Type:      dxb.ProtocolResponse,
		SID:       u32(5),
		Receivers: addr.NewFilter(bob),
	}, 100)
	if err != nil {
		t.Fatal(err)
	}
	want := 0
	for _, b := range blocks {
		if len(b) == 0 {
			continue
		}
		info, _ := ParseHeader(b)
		if int(info.Inc) != want {
			t.Errorf("inc: got %d, want %d", info.Inc, want)
		}
		want++
	}
	// the sequence ended, the next response starts at 0 again
	if got, _ := f.Counters.BlockIncForRemote(5, bob, true); got != 0 {
		t.Errorf("inc after sequence: got %d, want 0", got)
	}
}

func TestFrame_TooSmall(t *testing.T) {
	f := newTestFramer(nil)
	if _, err := f.FrameAll(context.Background(), make([]byte, 100), Header{SID: u32(1)}, 20); err == nil {
		t.Error("expected error when the header does not fit")
	}
}
