package reader

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/datex/compiler"
	"github.com/chazu/datex/pkg/addr"
	"github.com/chazu/datex/pkg/dxb"
	"github.com/chazu/datex/pkg/dxerr"
	"github.com/chazu/datex/pkg/logic"
	"github.com/chazu/datex/pkg/value"
)

func roundTrip(t *testing.T, v any) any {
	t.Helper()
	body, err := compiler.CompileValue(v, nil)
	if err != nil {
		t.Fatalf("CompileValue(%v) error: %v", v, err)
	}
	got, err := DecodeValue(body)
	if err != nil {
		t.Fatalf("DecodeValue(% x) error: %v", body, err)
	}
	return got
}

func TestDecodeScalars(t *testing.T) {
	long := strings.Repeat("x", 300)
	tests := []struct {
		in   any
		want any
	}{
		{1, int64(1)},
		{-300, int64(-300)},
		{70000, int64(70000)},
		{int64(1) << 40, int64(1) << 40},
		{1.5, 1.5},
		{2.0, 2.0},
		{"hi", "hi"},
		{long, long},
		{true, true},
		{false, false},
		{nil, nil},
		{value.Void, value.Void},
		{value.Unit(2.5), value.Unit(2.5)},
		{[]byte{1, 2}, []byte{1, 2}},
	}
	for _, tt := range tests {
		got := roundTrip(t, tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("round trip of %v = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestDecodeContainers(t *testing.T) {
	arr := roundTrip(t, value.NewArray(1, "a"))
	if want := value.NewArray(int64(1), "a"); !reflect.DeepEqual(arr, want) {
		t.Errorf("array = %#v, want %#v", arr, want)
	}

	tup := roundTrip(t, value.NewTuple(true, nil))
	if want := value.NewTuple(true, nil); !reflect.DeepEqual(tup, want) {
		t.Errorf("tuple = %#v, want %#v", tup, want)
	}

	obj := value.NewObject()
	obj.Set("a", 1)
	obj.Set("b", "x")
	gotObj, ok := roundTrip(t, obj).(*value.Object)
	if !ok {
		t.Fatalf("object decoded as %T", gotObj)
	}
	if keys := gotObj.Keys(); !reflect.DeepEqual(keys, []string{"a", "b"}) {
		t.Errorf("object keys = %v", keys)
	}
	if v, _ := gotObj.Get("a"); v != int64(1) {
		t.Errorf("object a = %v, want 1", v)
	}

	rec := value.NewRecord()
	rec.Set("k", 2)
	gotRec, ok := roundTrip(t, rec).(*value.Record)
	if !ok {
		t.Fatalf("record decoded as %T", gotRec)
	}
	if v, _ := gotRec.Get("k"); v != int64(2) {
		t.Errorf("record k = %v, want 2", v)
	}
}

func TestDecodeSharedValue(t *testing.T) {
	obj := value.NewObject()
	obj.Set("x", 1)
	got, ok := roundTrip(t, value.NewArray(obj, obj)).(*value.Array)
	if !ok || len(got.Items) != 2 {
		t.Fatalf("decoded %#v", got)
	}
	if got.Items[0] != got.Items[1] {
		t.Error("shared object decoded as two values")
	}
}

func TestDecodeCycle(t *testing.T) {
	obj := value.NewObject()
	obj.Set("self", obj)
	got, ok := roundTrip(t, obj).(*value.Object)
	if !ok {
		t.Fatalf("decoded %T", got)
	}
	self, _ := got.Get("self")
	if self != got {
		t.Errorf("self = %v, want the object itself", self)
	}
}

func TestDecodeFilter(t *testing.T) {
	a, b, c := addr.MustParse("@alice"), addr.MustParse("@bob"), addr.MustParse("@carol")
	f := addr.NewFilter(logic.And(logic.Or(a, logic.Not(b)), c))
	got, ok := roundTrip(t, f).(*addr.Filter)
	if !ok {
		t.Fatalf("decoded %T, want *addr.Filter", got)
	}
	if got.Normalize().String() != f.Normalize().String() {
		t.Errorf("filter = %s, want %s", got.Normalize(), f.Normalize())
	}
	if ok, _ := got.Matches(a); ok {
		t.Error("filter matched @alice without @carol")
	}
}

func TestDecodeReferences(t *testing.T) {
	p := roundTrip(t, &value.Pointer{ID: []byte{0xab, 0xcd}})
	if ptr, ok := p.(*value.Pointer); !ok || ptr.IDString() != "ABCD" {
		t.Errorf("pointer = %v", p)
	}

	e := roundTrip(t, addr.MustParse("@alice"))
	if ep, ok := e.(*addr.Endpoint); !ok || ep.String() != "@alice" {
		t.Errorf("endpoint = %v", e)
	}

	typ := roundTrip(t, value.StdType("Int"))
	if want := value.StdType("Int"); !reflect.DeepEqual(typ, want) {
		t.Errorf("std type = %v, want %v", typ, want)
	}

	custom := roundTrip(t, &value.Type{Namespace: "app", Name: "Point", Variation: "v2"})
	if ct, ok := custom.(*value.Type); !ok || ct.String() != "<app:Point/v2>" {
		t.Errorf("type = %v", custom)
	}
}

func TestDecodeScript(t *testing.T) {
	body, err := compiler.CompileBody("1; 'two'; [3]", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(body)
	if err != nil {
		t.Fatal(err)
	}
	want := []any{int64(1), "two", value.NewArray(int64(3))}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Decode = %#v, want %#v", got, want)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"truncated int", []byte{byte(dxb.OpInt16), 1}},
		{"unclosed array", []byte{byte(dxb.OpArrayStart), byte(dxb.OpElement), byte(dxb.OpTrue)}},
		{"operator", []byte{byte(dxb.OpInt8), 1, byte(dxb.OpAdd), byte(dxb.OpInt8), 2}},
		{"undefined variable", []byte{byte(dxb.OpInternalVar), 0, 5, 0}},
	}
	for _, tt := range tests {
		_, err := Decode(tt.body)
		var re *dxerr.RuntimeError
		if !errors.As(err, &re) {
			t.Errorf("%s: error = %v, want *RuntimeError", tt.name, err)
		}
	}

	if _, err := DecodeValue([]byte{byte(dxb.OpTrue), byte(dxb.OpCloseAndStore), byte(dxb.OpFalse)}); err == nil {
		t.Error("DecodeValue of two values succeeded")
	}
}
