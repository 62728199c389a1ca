// Package addr models addressable DATEX targets (endpoints) and filters
// over them, and implements their binary encodings.
package addr

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/chazu/datex/pkg/dxb"
	"github.com/chazu/datex/pkg/dxerr"
)

// BroadcastID is the id of the broadcast endpoint @*.
var BroadcastID = bytes.Repeat([]byte{0xff}, 16)

// Endpoint is an addressable target: a person (@name), institution
// (@+name), bot (*name) or id endpoint (@@hex), optionally narrowed to
// subspaces and an instance and scoped to an appspace.
//
// Endpoints are interned: Get returns the same pointer for equal parts,
// so pointer equality is value equality.
type Endpoint struct {
	Type dxb.Opcode
	// Name is the alias name. For id endpoints it is the upper-case hex id.
	Name string
	// ID is the binary id of an id endpoint.
	ID        []byte
	Subspaces []string
	// Instance is empty for no instance, "*" for any instance.
	Instance string
	Appspace *Endpoint
}

var (
	internMu sync.Mutex
	interned = make(map[string]*Endpoint)
)

// Get returns the interned endpoint for the given parts. For id endpoints
// name is the hex id.
func Get(typ dxb.Opcode, name string, subspaces []string, instance string, appspace *Endpoint) (*Endpoint, error) {
	e := &Endpoint{
		Type:      baseType(typ),
		Name:      name,
		Subspaces: subspaces,
		Instance:  instance,
		Appspace:  appspace,
	}
	switch e.Type {
	case dxb.OpPersonAlias, dxb.OpInstitutionAlias, dxb.OpBot:
		if name == "" {
			return nil, dxerr.Value("Endpoint name must not be empty")
		}
	case dxb.OpEndpoint:
		id, err := hex.DecodeString(strings.NewReplacer("_", "", "-", "").Replace(name))
		if err != nil {
			return nil, dxerr.Value("Invalid endpoint id %q", name)
		}
		e.ID = id
		e.Name = strings.ToUpper(hex.EncodeToString(id))
	default:
		return nil, dxerr.Value("Invalid endpoint type %s", typ)
	}
	return intern(e), nil
}

// FromID returns the interned id endpoint for a binary id.
func FromID(id []byte, subspaces []string, instance string, appspace *Endpoint) *Endpoint {
	e := &Endpoint{
		Type:      dxb.OpEndpoint,
		Name:      strings.ToUpper(hex.EncodeToString(id)),
		ID:        append([]byte(nil), id...),
		Subspaces: subspaces,
		Instance:  instance,
		Appspace:  appspace,
	}
	return intern(e)
}

func intern(e *Endpoint) *Endpoint {
	k := e.key()
	internMu.Lock()
	defer internMu.Unlock()
	if existing, ok := interned[k]; ok {
		return existing
	}
	interned[k] = e
	return e
}

func (e *Endpoint) key() string {
	k := fmt.Sprintf("%02x:%s", byte(e.Type), e.String())
	if e.Appspace != nil {
		k += "|" + e.Appspace.key()
	}
	return k
}

// baseType maps wildcard type variants to their base type.
func baseType(t dxb.Opcode) dxb.Opcode {
	if t.IsEndpoint() && (t-dxb.OpPersonAlias)%2 == 1 {
		return t - 1
	}
	return t
}

// Parse parses @name, @+name, *name, @@hex and @* forms with optional
// .subspace parts and a /instance suffix.
func Parse(s string) (*Endpoint, error) {
	var typ dxb.Opcode
	var rest string
	switch {
	case strings.HasPrefix(s, "@@"):
		typ, rest = dxb.OpEndpoint, s[2:]
	case strings.HasPrefix(s, "@+"):
		typ, rest = dxb.OpInstitutionAlias, s[2:]
	case strings.HasPrefix(s, "@*"):
		typ, rest = dxb.OpEndpoint, strings.ToUpper(hex.EncodeToString(BroadcastID))+s[2:]
	case strings.HasPrefix(s, "@"):
		typ, rest = dxb.OpPersonAlias, s[1:]
	case strings.HasPrefix(s, "*"):
		typ, rest = dxb.OpBot, s[1:]
	default:
		return nil, dxerr.Value("Invalid endpoint %q", s)
	}

	var instance string
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		instance = rest[i+1:]
		rest = rest[:i]
		if instance == "" {
			return nil, dxerr.Value("Invalid endpoint %q: empty instance", s)
		}
	}
	parts := strings.Split(rest, ".")
	var subspaces []string
	if len(parts) > 1 {
		subspaces = parts[1:]
	}
	return Get(typ, parts[0], subspaces, instance, nil)
}

// MustParse is like Parse but panics on error.
func MustParse(s string) *Endpoint {
	e, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return e
}

// IsBroadcast reports whether e is the broadcast endpoint.
func (e *Endpoint) IsBroadcast() bool {
	return e.Type == dxb.OpEndpoint && bytes.Equal(e.ID, BroadcastID)
}

// HasWildcard reports whether the instance or a subspace is "*".
func (e *Endpoint) HasWildcard() bool {
	if e.Instance == "*" {
		return true
	}
	for _, s := range e.Subspaces {
		if s == "*" {
			return true
		}
	}
	return false
}

// NameBytes returns the name as written on the wire: the binary id for id
// endpoints, UTF-8 otherwise.
func (e *Endpoint) NameBytes() []byte {
	if e.Type == dxb.OpEndpoint {
		return e.ID
	}
	return []byte(e.Name)
}

// WithInstance returns the interned endpoint with a different instance.
func (e *Endpoint) WithInstance(instance string) *Endpoint {
	c := *e
	c.Instance = instance
	return intern(&c)
}

// Main returns the endpoint without subspaces, instance and appspace.
func (e *Endpoint) Main() *Endpoint {
	c := *e
	c.Subspaces, c.Instance, c.Appspace = nil, "", nil
	return intern(&c)
}

func (e *Endpoint) String() string {
	var sb strings.Builder
	switch {
	case e.IsBroadcast():
		sb.WriteString("@*")
	case e.Type == dxb.OpEndpoint:
		sb.WriteString("@@")
		sb.WriteString(e.Name)
	case e.Type == dxb.OpInstitutionAlias:
		sb.WriteString("@+")
		sb.WriteString(e.Name)
	case e.Type == dxb.OpBot:
		sb.WriteString("*")
		sb.WriteString(e.Name)
	default:
		sb.WriteString("@")
		sb.WriteString(e.Name)
	}
	for _, s := range e.Subspaces {
		sb.WriteByte('.')
		sb.WriteString(s)
	}
	if e.Instance != "" {
		sb.WriteByte('/')
		sb.WriteString(e.Instance)
	}
	return sb.String()
}

// Matches reports whether e satisfies the requirement against: same main
// endpoint and subspaces, and an instance that is unspecified, "*" or
// equal in against.
func (e *Endpoint) Matches(against *Endpoint) bool {
	if e == against {
		return true
	}
	if e.Type != against.Type || e.Name != against.Name {
		return false
	}
	if len(against.Subspaces) != 0 {
		if len(e.Subspaces) != len(against.Subspaces) {
			return false
		}
		for i, s := range against.Subspaces {
			if s != "*" && s != e.Subspaces[i] {
				return false
			}
		}
	}
	return against.Instance == "" || against.Instance == "*" || against.Instance == e.Instance
}
