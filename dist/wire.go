package dist

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical encoding so equal records encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// TemplatePart is one part of a stored template: either literal body
// bytes or, if Slot is set, the index of an injected value.
type TemplatePart struct {
	Bytes []byte `cbor:"1,keyasint,omitempty"`
	Slot  bool   `cbor:"2,keyasint,omitempty"`
	Index int    `cbor:"3,keyasint,omitempty"`
}

// TemplateRecord is the persisted form of a precompiled template.
type TemplateRecord struct {
	Key     uint64         `cbor:"1,keyasint"`
	Source  string         `cbor:"2,keyasint"`
	Parts   []TemplatePart `cbor:"3,keyasint"`
	Created int64          `cbor:"4,keyasint"` // unix ms
}

// MarshalTemplate serializes a TemplateRecord to CBOR bytes.
func MarshalTemplate(r *TemplateRecord) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalTemplate deserializes a TemplateRecord from CBOR bytes.
func UnmarshalTemplate(data []byte) (*TemplateRecord, error) {
	var r TemplateRecord
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("dist: unmarshal template: %w", err)
	}
	return &r, nil
}

// blockSummary is the CBOR form of a BlockInfo.
type blockSummary struct {
	Version     byte     `cbor:"1,keyasint"`
	Size        int      `cbor:"2,keyasint"`
	TTL         byte     `cbor:"3,keyasint"`
	Prio        byte     `cbor:"4,keyasint"`
	Sender      string   `cbor:"5,keyasint,omitempty"`
	Receivers   string   `cbor:"6,keyasint,omitempty"`
	Flood       bool     `cbor:"7,keyasint,omitempty"`
	Signed      bool     `cbor:"8,keyasint,omitempty"`
	SID         uint32   `cbor:"9,keyasint"`
	ReturnIndex uint16   `cbor:"10,keyasint"`
	Inc         uint16   `cbor:"11,keyasint"`
	Type        string   `cbor:"12,keyasint"`
	Flags       []string `cbor:"13,keyasint,omitempty"`
	Device      byte     `cbor:"14,keyasint"`
	Timestamp   int64    `cbor:"15,keyasint"`
	BodySize    int      `cbor:"16,keyasint"`
}

// MarshalBlockInfo serializes the header fields of a block to CBOR for
// tools that inspect traffic.
func MarshalBlockInfo(b *BlockInfo) ([]byte, error) {
	s := blockSummary{
		Version:     b.Version,
		Size:        b.Size,
		TTL:         b.TTL,
		Prio:        b.Prio,
		Flood:       b.Flood,
		Signed:      b.Signature != nil,
		SID:         b.SID,
		ReturnIndex: b.ReturnIndex,
		Inc:         b.Inc,
		Type:        b.Type.String(),
		Device:      b.Device,
		Timestamp:   b.Timestamp.UnixMilli(),
		BodySize:    len(b.Body),
	}
	if b.Sender != nil {
		s.Sender = b.Sender.String()
	}
	if b.Receivers != nil {
		s.Receivers = b.Receivers.String()
	}
	if b.Encrypted {
		s.Flags = append(s.Flags, "encrypted")
	}
	if b.Executable {
		s.Flags = append(s.Flags, "executable")
	}
	if b.EndOfScope {
		s.Flags = append(s.Flags, "end_of_scope")
	}
	return cborEncMode.Marshal(&s)
}
