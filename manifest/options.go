package manifest

import (
	"fmt"

	"github.com/chazu/datex/compiler"
	"github.com/chazu/datex/pkg/addr"
	"github.com/chazu/datex/pkg/dxb"
	"github.com/chazu/datex/pkg/logic"
)

var protocolTypes = map[string]dxb.ProtocolType{
	"":              dxb.ProtocolRequest,
	"request":       dxb.ProtocolRequest,
	"response":      dxb.ProtocolResponse,
	"data":          dxb.ProtocolData,
	"local-request": dxb.ProtocolLocalRequest,
	"hello":         dxb.ProtocolHello,
}

// Options returns the compile options configured by the manifest.
// Receivers are combined into a filter matching any of them.
func (m *Manifest) Options() (*compiler.Options, error) {
	typ, ok := protocolTypes[m.Routing.Type]
	if !ok {
		return nil, fmt.Errorf("unknown protocol type %q", m.Routing.Type)
	}
	opts := &compiler.Options{MaxBlockSize: m.Routing.MaxBlockSize}
	h := &opts.Header
	h.Type = typ
	h.TTL = byte(m.Routing.TTL)
	h.Prio = byte(m.Routing.Prio)
	h.Device = byte(m.Endpoint.Device)
	h.Flood = m.Routing.Flood
	h.Sign = m.Security.Sign
	h.Encrypt = m.Security.Encrypt
	h.SendSymKey = m.Security.SendKey

	if m.Endpoint.ID != "" {
		e, err := addr.Parse(m.Endpoint.ID)
		if err != nil {
			return nil, fmt.Errorf("endpoint id: %w", err)
		}
		h.Sender = e
	}
	if len(m.Routing.Receivers) > 0 {
		parts := make([]any, 0, len(m.Routing.Receivers))
		for _, r := range m.Routing.Receivers {
			e, err := addr.Parse(r)
			if err != nil {
				return nil, fmt.Errorf("receiver %q: %w", r, err)
			}
			parts = append(parts, e)
		}
		h.Receivers = addr.NewFilter(logic.Or(parts...))
	}
	return opts, nil
}
