package compiler

import (
	"math"
	"net/url"
	"reflect"
	"sort"

	"github.com/chazu/datex/pkg/addr"
	"github.com/chazu/datex/pkg/dxb"
	"github.com/chazu/datex/pkg/dxerr"
	"github.com/chazu/datex/pkg/value"
)

// ---------------------------------------------------------------------------
// Value insertion
// ---------------------------------------------------------------------------

// childAssignment is a cyclic reference left out of a container and
// assigned after it is complete: #parent.key = #child.
type childAssignment struct {
	parent int
	key    any
	child  int
}

// insertion carries the containment chain while a value is written.
type insertion struct {
	root       bool
	parents    map[any]bool
	unassigned *[]childAssignment
	start      *Handle
}

// containerRef identifies a native slice or map by its backing storage.
type containerRef struct {
	kind reflect.Kind
	ptr  uintptr
	n    int
}

// identity returns the key under which v is tracked for reuse, if any.
// Small scalars are cheaper to repeat than to reference.
func identity(v any) (any, bool) {
	switch x := v.(type) {
	case nil, bool, value.VoidType:
		return nil, false
	case int:
		return x, x < math.MinInt32 || x > math.MaxInt32
	case int64:
		return x, x < math.MinInt32 || x > math.MaxInt32
	case int32, int16, int8, uint8, uint16:
		return nil, false
	case float64:
		return x, math.IsNaN(x) || x < math.MinInt32 || x > math.MaxInt32
	case float32:
		f := float64(x)
		return f, math.IsNaN(f) || f < math.MinInt32 || f > math.MaxInt32
	case []any:
		if len(x) == 0 {
			return nil, false
		}
		return containerRef{reflect.Slice, reflect.ValueOf(x).Pointer(), len(x)}, true
	case map[string]any:
		if x == nil {
			return nil, false
		}
		return containerRef{reflect.Map, reflect.ValueOf(x).Pointer(), 0}, true
	}
	t := reflect.TypeOf(v)
	if !t.Comparable() {
		return nil, false
	}
	return v, true
}

// insert writes any supported native value.
func (s *state) insert(v any) error {
	return s.insertValue(v, insertion{root: true}, true)
}

func (s *state) insertValue(v any, ins insertion, track bool) error {
	key, hashable := identity(v)

	if track && hashable {
		if h, ok := s.inserted[key]; ok {
			n, err := s.createInternalVariableAt(h, key)
			if err != nil {
				return err
			}
			return s.insertVariable(n, dxb.ActionGet, 0, dxb.OpInternalVar, -1)
		}
	}

	if st, ok := v.(*value.Stream); ok && s.b.Len() > 0 && s.b.At(s.b.Len()-1) == byte(dxb.OpStream) {
		s.streaming = st
		return nil
	}

	start := s.b.Handle(s.b.Len())
	if hashable {
		s.inserted[key] = start
	}

	if p, ok := v.(*value.Pointer); ok && (s.opts.CollapsePointers || s.collapseFirst) {
		if s.opts.CollapsePointers && !s.opts.NoCreatePointers {
			s.op(dxb.OpCreatePointer)
		}
		s.collapseFirst = false
		v = p.Value
		if k, ok := identity(v); ok {
			key = k
			s.inserted[k] = start
		}
	}

	switch x := v.(type) {
	case value.Unit:
		s.addUnit(float64(x))
	case value.VoidType:
		s.addVoid()
	case nil:
		s.addNull()
	case int:
		s.addInt(int64(x))
	case int8:
		s.addInt(int64(x))
	case int16:
		s.addInt(int64(x))
	case int32:
		s.addInt(int64(x))
	case int64:
		s.addInt(x)
	case uint8:
		s.addInt(int64(x))
	case uint16:
		s.addInt(int64(x))
	case uint32:
		s.addInt(int64(x))
	case float32:
		s.addFloat(float64(x))
	case float64:
		s.addFloat(x)
	case string:
		s.addString(x)
	case bool:
		s.addBoolean(x)
	case *url.URL:
		s.addURL(x.String())
	case *value.PointerProperty:
		return s.insertPointerProperty(x)
	case *value.Pointer:
		return s.insertPointer(x)
	case *addr.Endpoint:
		return s.addEndpoint(x)
	case *addr.Filter:
		return s.addFilter(x)
	case *value.Type:
		return s.insertType(x)
	case []byte:
		s.addBuffer(x)
	case *value.Function:
		return s.insertFunction(x)
	case *value.Scope:
		for _, variable := range x.Vars {
			if err := s.insert(variable); err != nil {
				return err
			}
		}
		s.addScopeBody(x.Body)
	case *value.Array:
		return s.addArray(x.Items, dxb.OpArrayStart, dxb.OpArrayEnd, s.descend(ins, key, start))
	case *value.Tuple:
		return s.addArray(x.Items, dxb.OpTupleStart, dxb.OpTupleEnd, s.descend(ins, key, start))
	case *value.Object:
		return s.addObject(&x.Fields, dxb.OpObjectStart, dxb.OpObjectEnd, s.descend(ins, key, start))
	case *value.Record:
		return s.addObject(&x.Fields, dxb.OpRecordStart, dxb.OpRecordEnd, s.descend(ins, key, start))
	case []any:
		return s.addArray(x, dxb.OpArrayStart, dxb.OpArrayEnd, s.descend(ins, key, start))
	case map[string]any:
		var f value.Fields
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			f.Set(k, x[k])
		}
		return s.addObject(&f, dxb.OpObjectStart, dxb.OpObjectEnd, s.descend(ins, key, start))
	default:
		return dxerr.Value("Failed to compile an unsupported native type")
	}
	return nil
}

// descend adds the container tracked under key to the containment chain.
func (s *state) descend(ins insertion, key any, start *Handle) insertion {
	parents := make(map[any]bool, len(ins.parents)+1)
	for p := range ins.parents {
		parents[p] = true
	}
	if key != nil {
		parents[key] = true
	}
	if ins.unassigned == nil {
		ins.unassigned = new([]childAssignment)
	}
	ins.parents = parents
	ins.start = start
	return ins
}

func (s *state) insertPointerProperty(pp *value.PointerProperty) error {
	if err := s.insertPointerRef(pp.Pointer, dxb.ActionGet, 0); err != nil {
		return err
	}
	target := s
	if s.extractMode >= extractLabels && s.extract != nil {
		target = s.extract
	}
	target.inner().pathInfo = target.b.Len()
	target.op(dxb.OpChildGetRef)
	return target.insert(pp.Key)
}

// insertPointer writes a pointer. When the script continues with an
// assignment operator the pointer is written as its target.
func (s *state) insertPointer(p *value.Pointer) error {
	action, spec := dxb.ActionGet, dxb.Opcode(0)
	if s.inner().pathInfo == -1 && s.src != nil {
		s.pos += skipSpace(s.rest())
		rest := s.rest()
		switch {
		case len(rest) > 1 && rest[0] == '=' && rest[1] != '=':
			action = dxb.ActionSet
			s.pos++
		case len(rest) == 1 && rest[0] == '=':
			action = dxb.ActionSet
			s.pos++
		case len(rest) > 1 && rest[1] == '=':
			if a, sp := assignmentAction(string(rest[:2])); a == dxb.ActionOther {
				action, spec = a, sp
				s.pos += 2
			}
		}
	}
	return s.insertPointerRef(p, action, spec)
}

func (s *state) insertPointerRef(p *value.Pointer, action dxb.ActionType, spec dxb.Opcode) error {
	if s.extractMode == extractPointers && action == dxb.ActionGet {
		isNew, err := s.insertExtracted(dxb.OpPointer, p.IDString())
		if err != nil || !isNew {
			return err
		}
		return s.extract.addPointerByID(p.ID, action, spec)
	}
	return s.addPointerByID(p.ID, action, spec)
}

func (s *state) insertType(t *value.Type) error {
	if err := s.addType(t.Namespace, t.Name, t.Variation, t.Params != nil); err != nil {
		return err
	}
	if t.Params != nil {
		return s.insert(t.Params)
	}
	return nil
}

func (s *state) insertFunction(f *value.Function) error {
	var params any = value.Void
	if f.Params != nil {
		params = f.Params
	}
	if err := s.insert(params); err != nil {
		return err
	}
	s.op(dxb.OpFunction)
	for _, variable := range f.Vars {
		if err := s.insert(variable); err != nil {
			return err
		}
	}
	s.addScopeBody(f.Body)
	return nil
}

func (s *state) addScopeBody(body []byte) {
	s.op(dxb.OpScopeBlock)
	s.b.EmitUint32(uint32(len(body)))
	s.b.EmitRaw(body...)
}

// cyclic reports whether v is an ancestor in the containment chain, and
// so must be assigned after its container is complete.
func (s *state) cyclic(v any, ins insertion) (any, *Handle, bool) {
	key, ok := identity(v)
	if !ok || !ins.parents[key] {
		return nil, nil, false
	}
	h, ok := s.inserted[key]
	return key, h, ok
}

func (s *state) addArray(items []any, open, close dxb.Opcode, ins insertion) error {
	s.valueIndex()
	s.op(open)
	self := s.selfOf(ins)
	parentVar := -1
	for i, item := range items {
		if key, h, ok := s.cyclic(item, ins); ok {
			var err error
			if parentVar, err = s.parentVar(parentVar, ins.start, self); err != nil {
				return err
			}
			childVar := parentVar
			if key != self {
				if childVar, err = s.createInternalVariableAt(h, key); err != nil {
					return err
				}
			}
			*ins.unassigned = append(*ins.unassigned, childAssignment{parentVar, int64(i), childVar})
			item = value.Void
		}
		s.op(dxb.OpElement)
		if err := s.insertValue(item, insertion{parents: ins.parents, unassigned: ins.unassigned}, true); err != nil {
			return err
		}
	}
	s.op(close)
	if ins.root && len(*ins.unassigned) > 0 {
		return s.addChildrenAssignments(*ins.unassigned, ins.start)
	}
	return nil
}

func (s *state) addObject(f *value.Fields, open, close dxb.Opcode, ins insertion) error {
	s.valueIndex()
	s.op(open)
	self := s.selfOf(ins)
	parentVar := -1
	for _, k := range f.Keys() {
		item, _ := f.Get(k)
		if key, h, ok := s.cyclic(item, ins); ok {
			var err error
			if parentVar, err = s.parentVar(parentVar, ins.start, self); err != nil {
				return err
			}
			childVar := parentVar
			if key != self {
				if childVar, err = s.createInternalVariableAt(h, key); err != nil {
					return err
				}
			}
			*ins.unassigned = append(*ins.unassigned, childAssignment{parentVar, k, childVar})
			continue
		}
		if err := s.addKey(k); err != nil {
			return err
		}
		if err := s.insertValue(item, insertion{parents: ins.parents, unassigned: ins.unassigned}, true); err != nil {
			return err
		}
	}
	s.op(close)
	if ins.root && len(*ins.unassigned) > 0 {
		return s.addChildrenAssignments(*ins.unassigned, ins.start)
	}
	return nil
}

// selfOf returns the container whose start is ins.start.
func (s *state) selfOf(ins insertion) any {
	for k, h := range s.inserted {
		if h == ins.start && ins.parents[k] {
			return k
		}
	}
	return nil
}

func (s *state) parentVar(current int, start *Handle, self any) (int, error) {
	if current != -1 {
		return current, nil
	}
	return s.createInternalVariableAt(start, self)
}

// addChildrenAssignments wraps the root container in a subscope and
// appends the deferred cyclic assignments:
// (#p = <container>; #p.key = #c; ...)
func (s *state) addChildrenAssignments(children []childAssignment, rootStart *Handle) error {
	s.insertByteAt(dxb.OpSubscopeStart, rootStart.Pos())
	for _, c := range children {
		s.op(dxb.OpCloseAndStore)
		if err := s.insertVariable(c.parent, dxb.ActionGet, 0, dxb.OpInternalVar, -1); err != nil {
			return err
		}
		s.op(dxb.OpChildSet)
		if err := s.insertValue(c.key, insertion{root: true}, false); err != nil {
			return err
		}
		if err := s.insertVariable(c.child, dxb.ActionGet, 0, dxb.OpInternalVar, -1); err != nil {
			return err
		}
	}
	s.op(dxb.OpSubscopeEnd)
	return nil
}
