package reader

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/chazu/datex/pkg/addr"
	"github.com/chazu/datex/pkg/dxb"
	"github.com/chazu/datex/pkg/dxerr"
)

// Disassemble returns a listing of body with one instruction per line:
// the offset, the opcode name and its decoded operand. Scope blocks are
// listed indented below their header.
func Disassemble(body []byte) (string, error) {
	var sb strings.Builder
	if err := disassemble(&sb, body, ""); err != nil {
		return sb.String(), err
	}
	return sb.String(), nil
}

func disassemble(sb *strings.Builder, body []byte, indent string) error {
	offset := 0
	for offset < len(body) {
		line, n, nested, err := instruction(body, offset)
		if err != nil {
			return err
		}
		fmt.Fprintf(sb, "%s%04X  %s\n", indent, offset, line)
		if nested != nil {
			if err := disassemble(sb, nested, indent+"    "); err != nil {
				return err
			}
		}
		offset += n
	}
	return nil
}

// instruction decodes the instruction at offset. It returns the text,
// the encoded length and, for scope blocks, the nested body.
func instruction(b []byte, offset int) (string, int, []byte, error) {
	op := dxb.Opcode(b[offset])
	name := op.String()
	rest := b[offset+1:]
	short := func() error {
		return dxerr.Runtime("Truncated %s at %04X", name, offset)
	}

	switch op {
	case dxb.OpInt8:
		if len(rest) < 1 {
			return "", 0, nil, short()
		}
		return fmt.Sprintf("%s %d", name, int8(rest[0])), 2, nil, nil
	case dxb.OpInt16:
		if len(rest) < 2 {
			return "", 0, nil, short()
		}
		return fmt.Sprintf("%s %d", name, int16(binary.LittleEndian.Uint16(rest))), 3, nil, nil
	case dxb.OpInt32, dxb.OpFloatAsInt:
		if len(rest) < 4 {
			return "", 0, nil, short()
		}
		return fmt.Sprintf("%s %d", name, int32(binary.LittleEndian.Uint32(rest))), 5, nil, nil
	case dxb.OpInt64:
		if len(rest) < 8 {
			return "", 0, nil, short()
		}
		return fmt.Sprintf("%s %d", name, int64(binary.LittleEndian.Uint64(rest))), 9, nil, nil
	case dxb.OpFloat64, dxb.OpUnit:
		if len(rest) < 8 {
			return "", 0, nil, short()
		}
		return fmt.Sprintf("%s %g", name, math.Float64frombits(binary.LittleEndian.Uint64(rest))), 9, nil, nil
	case dxb.OpShortString, dxb.OpElementWithKey:
		if len(rest) < 1 || len(rest) < 1+int(rest[0]) {
			return "", 0, nil, short()
		}
		n := int(rest[0])
		return fmt.Sprintf("%s %q", name, rest[1:1+n]), 2 + n, nil, nil
	case dxb.OpString, dxb.OpURL, dxb.OpBuffer, dxb.OpScopeBlock:
		if len(rest) < 4 {
			return "", 0, nil, short()
		}
		n := int(binary.LittleEndian.Uint32(rest))
		if len(rest) < 4+n {
			return "", 0, nil, short()
		}
		data := rest[4 : 4+n]
		switch op {
		case dxb.OpBuffer:
			return fmt.Sprintf("%s <%s>", name, hex.EncodeToString(data)), 5 + n, nil, nil
		case dxb.OpScopeBlock:
			return fmt.Sprintf("%s %d", name, n), 5 + n, data, nil
		}
		return fmt.Sprintf("%s %q", name, data), 5 + n, nil, nil
	case dxb.OpType, dxb.OpExtendedType:
		return typeInstruction(b, offset)
	case dxb.OpFilter:
		f, _, next, err := addr.DecodeFilter(b, offset+1, false)
		if err != nil {
			return "", 0, nil, err
		}
		return fmt.Sprintf("%s %s", name, f), next - offset, nil, nil
	}

	if op.IsJump() {
		if len(rest) < 4 {
			return "", 0, nil, short()
		}
		return fmt.Sprintf("%s -> %04X", name, binary.LittleEndian.Uint32(rest)), 5, nil, nil
	}
	if op.IsEndpoint() {
		e, next, err := addr.DecodeValueTarget(b, offset)
		if err != nil {
			return "", 0, nil, err
		}
		return fmt.Sprintf("%s %s", name, e), next - offset, nil, nil
	}
	if base, action, ok := variableFamily(op); ok {
		return variableInstruction(b, offset, base, action)
	}
	if op >= dxb.OpPointer && op <= dxb.OpPointerAction {
		n := op.OperandLen()
		if len(rest) < n {
			return "", 0, nil, short()
		}
		text := name
		if op == dxb.OpPointerAction {
			text += " " + dxb.Opcode(rest[0]).String()
			rest = rest[1:]
		}
		id := strings.ToUpper(hex.EncodeToString(trimID(rest[:dxb.MaxPointerIDSize])))
		return text + " $" + id, 1 + n, nil, nil
	}

	// fixed operands: action specifiers and bare opcodes
	n := op.OperandLen()
	if n < 0 {
		n = 0
	}
	if len(rest) < n {
		return "", 0, nil, short()
	}
	if n == 1 {
		return fmt.Sprintf("%s %s", name, dxb.Opcode(rest[0])), 2, nil, nil
	}
	return name, 1 + n, nil, nil
}

// variableFamily reports whether op reads a named or numbered variable.
func variableFamily(op dxb.Opcode) (dxb.Opcode, dxb.ActionType, bool) {
	for _, base := range []dxb.Opcode{dxb.OpVar, dxb.OpInternalVar, dxb.OpLabel} {
		if op >= base && op <= base+2 {
			return base, dxb.ActionType(op - base), true
		}
	}
	return 0, 0, false
}

func variableInstruction(b []byte, offset int, base dxb.Opcode, action dxb.ActionType) (string, int, []byte, error) {
	op := dxb.Opcode(b[offset])
	i := offset + 1
	text := op.String()
	if action == dxb.ActionOther {
		if i >= len(b) {
			return "", 0, nil, dxerr.Runtime("Truncated %s at %04X", op, offset)
		}
		text += " " + dxb.Opcode(b[i]).String()
		i++
	}
	if i >= len(b) {
		return "", 0, nil, dxerr.Runtime("Truncated %s at %04X", op, offset)
	}
	n := int(b[i])
	i++
	if n == 0 {
		if i+2 > len(b) {
			return "", 0, nil, dxerr.Runtime("Truncated %s at %04X", op, offset)
		}
		id := int(b[i]) | int(b[i+1])<<8
		i += 2
		prefix := "#"
		if base == dxb.OpVar {
			prefix = "%"
		}
		return fmt.Sprintf("%s %s%d", text, prefix, id), i - offset, nil, nil
	}
	if i+n > len(b) {
		return "", 0, nil, dxerr.Runtime("Truncated %s at %04X", op, offset)
	}
	return fmt.Sprintf("%s %s", text, b[i:i+n]), i + n - offset, nil, nil
}

func typeInstruction(b []byte, offset int) (string, int, []byte, error) {
	op := dxb.Opcode(b[offset])
	head := 2
	if op == dxb.OpExtendedType {
		head = 4
	}
	i := offset + 1
	if i+head > len(b) {
		return "", 0, nil, dxerr.Runtime("Truncated %s at %04X", op, offset)
	}
	nsLen, nameLen, varLen := int(b[i]), int(b[i+1]), 0
	params := false
	if op == dxb.OpExtendedType {
		varLen = int(b[i+2])
		params = b[i+3] == 1
	}
	i += head
	if i+nsLen+nameLen+varLen > len(b) {
		return "", 0, nil, dxerr.Runtime("Truncated %s at %04X", op, offset)
	}
	ns := string(b[i : i+nsLen])
	i += nsLen
	name := string(b[i : i+nameLen])
	i += nameLen
	variation := string(b[i : i+varLen])
	i += varLen

	text := fmt.Sprintf("%s <%s:%s", op, ns, name)
	if variation != "" {
		text += "/" + variation
	}
	text += ">"
	if params {
		text += " (params)"
	}
	return text, i - offset, nil, nil
}

func trimID(id []byte) []byte {
	n := len(id)
	for n > 0 && id[n-1] == 0 {
		n--
	}
	return id[:n]
}
