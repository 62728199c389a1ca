package dxb

import "fmt"

// Opcode is a single DXB instruction byte.
// The numeric values are the wire format shared with the interpreter and
// are grouped into bands by category.
type Opcode byte

const (
	OpEnd Opcode = 0x00 // End of a sequence / statement list

	// ========================================================================
	// Standard type shorthands (0x10-0x2F)
	// ========================================================================

	OpStdTypeString    Opcode = 0x10
	OpStdTypeInt       Opcode = 0x11
	OpStdTypeFloat     Opcode = 0x12
	OpStdTypeBoolean   Opcode = 0x13
	OpStdTypeNull      Opcode = 0x14
	OpStdTypeVoid      Opcode = 0x15
	OpStdTypeBuffer    Opcode = 0x16
	OpStdTypeCodeBlock Opcode = 0x17
	OpStdTypeUnit      Opcode = 0x18
	OpStdTypeFilter    Opcode = 0x19
	OpStdTypeArray     Opcode = 0x1a
	OpStdTypeObject    Opcode = 0x1b
	OpStdTypeSet       Opcode = 0x1c
	OpStdTypeMap       Opcode = 0x1d
	OpStdTypeTuple     Opcode = 0x1e
	OpStdTypeRecord    Opcode = 0x1f
	OpStdTypeFunction  Opcode = 0x20
	OpStdTypeStream    Opcode = 0x21
	OpStdTypeAny       Opcode = 0x22
	OpStdTypeAssertion Opcode = 0x23
	OpStdTypeTask      Opcode = 0x24
	OpStdTypeIterator  Opcode = 0x25

	// ========================================================================
	// Internal / control variables (0x30-0x4F)
	// GET, SET and ACTION variants are consecutive: base+ActionType.
	// ========================================================================

	OpVarResult          Opcode = 0x30
	OpSetVarResult       Opcode = 0x31
	OpVarResultAction    Opcode = 0x32
	OpVarSubResult       Opcode = 0x33
	OpSetVarSubResult    Opcode = 0x34
	OpVarSubResultAction Opcode = 0x35
	OpVarRoot            Opcode = 0x36
	OpSetVarRoot         Opcode = 0x37
	OpVarRootAction      Opcode = 0x38
	OpVarOrigin          Opcode = 0x39
	OpSetVarOrigin       Opcode = 0x3a
	OpVarOriginAction    Opcode = 0x3b
	OpVarSender          Opcode = 0x3c
	OpVarCurrent         Opcode = 0x3d
	OpVarEncrypted       Opcode = 0x3e
	OpVarSigned          Opcode = 0x3f
	OpVarTimestamp       Opcode = 0x40
	OpVarMeta            Opcode = 0x41
	OpVarStatic          Opcode = 0x42
	OpVarThis            Opcode = 0x43
	OpVarRemote          Opcode = 0x44
	OpSetVarRemote       Opcode = 0x45
	OpVarRemoteAction    Opcode = 0x46
	OpVarIt              Opcode = 0x47
	OpSetVarIt           Opcode = 0x48
	OpVarItAction        Opcode = 0x49
	OpVarIter            Opcode = 0x4a
	OpSetVarIter         Opcode = 0x4b
	OpVarIterAction      Opcode = 0x4c

	// ========================================================================
	// Structural / control (0x50-0x9F)
	// ========================================================================

	OpCachePoint Opcode = 0x50
	OpCacheReset Opcode = 0x51
	OpURL        Opcode = 0x52 // URL <len:u32> <utf8>
	OpTemplate   Opcode = 0x53
	OpExtends    Opcode = 0x54
	OpImplements Opcode = 0x55
	OpMatches    Opcode = 0x56
	OpDebug      Opcode = 0x57
	OpRequest    Opcode = 0x58
	OpAssert     Opcode = 0x59
	OpIterator   Opcode = 0x5a
	OpIteration  Opcode = 0x5b
	OpFreeze     Opcode = 0x60
	OpSeal       Opcode = 0x61
	OpHas        Opcode = 0x62
	OpKeys       Opcode = 0x63
	OpJfa        Opcode = 0x66 // Jump if false: JFA <target:u32>
	OpTransform  Opcode = 0x67
	OpObserve    Opcode = 0x68
	OpDo         Opcode = 0x69
	OpAwait      Opcode = 0x70
	OpHold       Opcode = 0x71
	OpFunction   Opcode = 0x72

	// ========================================================================
	// Core operators and literals (0xA0-0xFF)
	// ========================================================================

	OpCloseAndStore Opcode = 0xa0 // ;
	OpSubscopeStart Opcode = 0xa1 // (
	OpSubscopeEnd   Opcode = 0xa2 // )
	OpEqual         Opcode = 0xa3 // ===
	OpReturn        Opcode = 0xa4
	OpJmp           Opcode = 0xa5 // JMP <target:u32>
	OpJtr           Opcode = 0xa6 // Jump if true: JTR <target:u32>
	OpEqualValue    Opcode = 0xa7 // ==
	OpNotEqualValue Opcode = 0xa8 // ~=
	OpGreater       Opcode = 0xa9
	OpLess          Opcode = 0xaa
	OpGreaterEqual  Opcode = 0xab
	OpLessEqual     Opcode = 0xac
	OpCount         Opcode = 0xad
	OpAbout         Opcode = 0xae
	OpWildcard      Opcode = 0xaf

	OpVar               Opcode = 0xb0
	OpSetVar            Opcode = 0xb1
	OpVarAction         Opcode = 0xb2
	OpInternalVar       Opcode = 0xb3
	OpSetInternalVar    Opcode = 0xb4
	OpInternalVarAction Opcode = 0xb5
	OpPointer           Opcode = 0xb6
	OpSetPointer        Opcode = 0xb7
	OpPointerAction     Opcode = 0xb8
	OpCreatePointer     Opcode = 0xb9
	OpDeletePointer     Opcode = 0xba
	OpSubscribe         Opcode = 0xbb
	OpUnsubscribe       Opcode = 0xbc
	OpValue             Opcode = 0xbd
	OpGetOrigin         Opcode = 0xbe
	OpGetSubscribers    Opcode = 0xbf

	OpString      Opcode = 0xc0 // STRING <len:u32> <utf8>
	OpInt8        Opcode = 0xc1
	OpInt16       Opcode = 0xc2
	OpInt32       Opcode = 0xc3
	OpInt64       Opcode = 0xc4
	OpFloat64     Opcode = 0xc5
	OpTrue        Opcode = 0xc6
	OpFalse       Opcode = 0xc7
	OpNull        Opcode = 0xc8
	OpVoid        Opcode = 0xc9
	OpBuffer      Opcode = 0xca // BUFFER <len:u32> <bytes>
	OpScopeBlock  Opcode = 0xcb // SCOPE_BLOCK <len:u32> <dxb>
	OpUnit        Opcode = 0xcc
	OpFloatAsInt  Opcode = 0xcd
	OpShortString Opcode = 0xce // SHORT_STRING <len:u8> <utf8>

	OpPersonAlias              Opcode = 0xd0
	OpPersonAliasWildcard      Opcode = 0xd1
	OpInstitutionAlias         Opcode = 0xd2
	OpInstitutionAliasWildcard Opcode = 0xd3
	OpBot                      Opcode = 0xd4
	OpBotWildcard              Opcode = 0xd5
	OpEndpoint                 Opcode = 0xd6
	OpEndpointWildcard         Opcode = 0xd7

	OpSync        Opcode = 0xd8
	OpStopSync    Opcode = 0xd9
	OpLabel       Opcode = 0xda
	OpSetLabel    Opcode = 0xdb
	OpLabelAction Opcode = 0xdc
	OpStopStream  Opcode = 0xdd
	OpFilter      Opcode = 0xde
	OpNotEqual    Opcode = 0xdf
	OpArrayStart  Opcode = 0xe0
	OpArrayEnd    Opcode = 0xe1
	OpObjectStart Opcode = 0xe2
	OpObjectEnd   Opcode = 0xe3
	OpTupleStart  Opcode = 0xe4
	OpTupleEnd    Opcode = 0xe5
	OpRecordStart Opcode = 0xe6
	OpRecordEnd   Opcode = 0xe7

	OpElementWithKey Opcode = 0xe8 // ELEMENT_WITH_KEY <len:u8> <utf8>

	OpElement      Opcode = 0xe9
	OpAnd          Opcode = 0xea
	OpOr           Opcode = 0xeb
	OpNot          Opcode = 0xec
	OpStream       Opcode = 0xed
	OpExtendedType Opcode = 0xee
	OpChildGetRef  Opcode = 0xef
	OpChildGet     Opcode = 0xf0
	OpChildSet     Opcode = 0xf1
	OpChildAction  Opcode = 0xf2
	OpThrowError   Opcode = 0xf4
	OpGetType      Opcode = 0xf5
	OpRemote       Opcode = 0xf6

	OpKeyPermission Opcode = 0xf7

	OpAdd      Opcode = 0xf8
	OpSubtract Opcode = 0xfa
	OpMultiply Opcode = 0xfb
	OpDivide   Opcode = 0xfc
	OpRange    Opcode = 0xfd
	OpExtend   Opcode = 0xfe
	OpType     Opcode = 0xff
)

// ActionType selects the GET/SET/ACTION variant of a variable opcode.
// The emitted byte is base+ActionType.
type ActionType byte

const (
	ActionGet   ActionType = 0
	ActionSet   ActionType = 1
	ActionOther ActionType = 2
)

// OpcodeInfo provides metadata about each opcode for disassembly and validation.
type OpcodeInfo struct {
	Name string
	// OperandLen is the fixed operand length following the opcode, or -1
	// when the operand layout is self-describing (length prefixed, nested).
	OperandLen int
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpEnd: {"END", 0},

	OpStdTypeString:    {"STD_TYPE_STRING", 0},
	OpStdTypeInt:       {"STD_TYPE_INT", 0},
	OpStdTypeFloat:     {"STD_TYPE_FLOAT", 0},
	OpStdTypeBoolean:   {"STD_TYPE_BOOLEAN", 0},
	OpStdTypeNull:      {"STD_TYPE_NULL", 0},
	OpStdTypeVoid:      {"STD_TYPE_VOID", 0},
	OpStdTypeBuffer:    {"STD_TYPE_BUFFER", 0},
	OpStdTypeCodeBlock: {"STD_TYPE_CODE_BLOCK", 0},
	OpStdTypeUnit:      {"STD_TYPE_UNIT", 0},
	OpStdTypeFilter:    {"STD_TYPE_FILTER", 0},
	OpStdTypeArray:     {"STD_TYPE_ARRAY", 0},
	OpStdTypeObject:    {"STD_TYPE_OBJECT", 0},
	OpStdTypeSet:       {"STD_TYPE_SET", 0},
	OpStdTypeMap:       {"STD_TYPE_MAP", 0},
	OpStdTypeTuple:     {"STD_TYPE_TUPLE", 0},
	OpStdTypeRecord:    {"STD_TYPE_RECORD", 0},
	OpStdTypeFunction:  {"STD_TYPE_FUNCTION", 0},
	OpStdTypeStream:    {"STD_TYPE_STREAM", 0},
	OpStdTypeAny:       {"STD_TYPE_ANY", 0},
	OpStdTypeAssertion: {"STD_TYPE_ASSERTION", 0},
	OpStdTypeTask:      {"STD_TYPE_TASK", 0},
	OpStdTypeIterator:  {"STD_TYPE_ITERATOR", 0},

	OpVarResult:          {"VAR_RESULT", 0},
	OpSetVarResult:       {"SET_VAR_RESULT", 0},
	OpVarResultAction:    {"VAR_RESULT_ACTION", 1},
	OpVarSubResult:       {"VAR_SUB_RESULT", 0},
	OpSetVarSubResult:    {"SET_VAR_SUB_RESULT", 0},
	OpVarSubResultAction: {"VAR_SUB_RESULT_ACTION", 1},
	OpVarRoot:            {"VAR_ROOT", 0},
	OpSetVarRoot:         {"SET_VAR_ROOT", 0},
	OpVarRootAction:      {"VAR_ROOT_ACTION", 1},
	OpVarOrigin:          {"VAR_ORIGIN", 0},
	OpSetVarOrigin:       {"SET_VAR_ORIGIN", 0},
	OpVarOriginAction:    {"VAR_ORIGIN_ACTION", 1},
	OpVarSender:          {"VAR_SENDER", 0},
	OpVarCurrent:         {"VAR_CURRENT", 0},
	OpVarEncrypted:       {"VAR_ENCRYPTED", 0},
	OpVarSigned:          {"VAR_SIGNED", 0},
	OpVarTimestamp:       {"VAR_TIMESTAMP", 0},
	OpVarMeta:            {"VAR_META", 0},
	OpVarStatic:          {"VAR_STATIC", 0},
	OpVarThis:            {"VAR_THIS", 0},
	OpVarRemote:          {"VAR_REMOTE", 0},
	OpSetVarRemote:       {"SET_VAR_REMOTE", 0},
	OpVarRemoteAction:    {"VAR_REMOTE_ACTION", 1},
	OpVarIt:              {"VAR_IT", 0},
	OpSetVarIt:           {"SET_VAR_IT", 0},
	OpVarItAction:        {"VAR_IT_ACTION", 1},
	OpVarIter:            {"VAR_ITER", 0},
	OpSetVarIter:         {"SET_VAR_ITER", 0},
	OpVarIterAction:      {"VAR_ITER_ACTION", 1},

	OpCachePoint: {"CACHE_POINT", 0},
	OpCacheReset: {"CACHE_RESET", 0},
	OpURL:        {"URL", -1},
	OpTemplate:   {"TEMPLATE", 0},
	OpExtends:    {"EXTENDS", 0},
	OpImplements: {"IMPLEMENTS", 0},
	OpMatches:    {"MATCHES", 0},
	OpDebug:      {"DEBUG", 0},
	OpRequest:    {"REQUEST", 0},
	OpAssert:     {"ASSERT", -1},
	OpIterator:   {"ITERATOR", 0},
	OpIteration:  {"ITERATION", 0},
	OpFreeze:     {"FREEZE", 0},
	OpSeal:       {"SEAL", 0},
	OpHas:        {"HAS", 0},
	OpKeys:       {"KEYS", 0},
	OpJfa:        {"JFA", 4},
	OpTransform:  {"TRANSFORM", -1},
	OpObserve:    {"OBSERVE", 0},
	OpDo:         {"DO", -1},
	OpAwait:      {"AWAIT", 0},
	OpHold:       {"HOLD", -1},
	OpFunction:   {"FUNCTION", -1},

	OpCloseAndStore: {"CLOSE_AND_STORE", 0},
	OpSubscopeStart: {"SUBSCOPE_START", 0},
	OpSubscopeEnd:   {"SUBSCOPE_END", 0},
	OpEqual:         {"EQUAL", 0},
	OpReturn:        {"RETURN", 0},
	OpJmp:           {"JMP", 4},
	OpJtr:           {"JTR", 4},
	OpEqualValue:    {"EQUAL_VALUE", 0},
	OpNotEqualValue: {"NOT_EQUAL_VALUE", 0},
	OpGreater:       {"GREATER", 0},
	OpLess:          {"LESS", 0},
	OpGreaterEqual:  {"GREATER_EQUAL", 0},
	OpLessEqual:     {"LESS_EQUAL", 0},
	OpCount:         {"COUNT", 0},
	OpAbout:         {"ABOUT", 0},
	OpWildcard:      {"WILDCARD", 0},

	OpVar:               {"VAR", -1},
	OpSetVar:            {"SET_VAR", -1},
	OpVarAction:         {"VAR_ACTION", -1},
	OpInternalVar:       {"INTERNAL_VAR", -1},
	OpSetInternalVar:    {"SET_INTERNAL_VAR", -1},
	OpInternalVarAction: {"INTERNAL_VAR_ACTION", -1},
	OpPointer:           {"POINTER", 26},
	OpSetPointer:        {"SET_POINTER", 26},
	OpPointerAction:     {"POINTER_ACTION", 27},
	OpCreatePointer:     {"CREATE_POINTER", 0},
	OpDeletePointer:     {"DELETE_POINTER", 0},
	OpSubscribe:         {"SUBSCRIBE", 0},
	OpUnsubscribe:       {"UNSUBSCRIBE", 0},
	OpValue:             {"VALUE", 0},
	OpGetOrigin:         {"GET_ORIGIN", 0},
	OpGetSubscribers:    {"GET_SUBSCRIBERS", 0},

	OpString:      {"STRING", -1},
	OpInt8:        {"INT_8", 1},
	OpInt16:       {"INT_16", 2},
	OpInt32:       {"INT_32", 4},
	OpInt64:       {"INT_64", 8},
	OpFloat64:     {"FLOAT_64", 8},
	OpTrue:        {"TRUE", 0},
	OpFalse:       {"FALSE", 0},
	OpNull:        {"NULL", 0},
	OpVoid:        {"VOID", 0},
	OpBuffer:      {"BUFFER", -1},
	OpScopeBlock:  {"SCOPE_BLOCK", -1},
	OpUnit:        {"UNIT", 8},
	OpFloatAsInt:  {"FLOAT_AS_INT", 4},
	OpShortString: {"SHORT_STRING", -1},

	OpPersonAlias:              {"PERSON_ALIAS", -1},
	OpPersonAliasWildcard:      {"PERSON_ALIAS_WILDCARD", -1},
	OpInstitutionAlias:         {"INSTITUTION_ALIAS", -1},
	OpInstitutionAliasWildcard: {"INSTITUTION_ALIAS_WILDCARD", -1},
	OpBot:                      {"BOT", -1},
	OpBotWildcard:              {"BOT_WILDCARD", -1},
	OpEndpoint:                 {"ENDPOINT", -1},
	OpEndpointWildcard:         {"ENDPOINT_WILDCARD", -1},

	OpSync:           {"SYNC", 0},
	OpStopSync:       {"STOP_SYNC", 0},
	OpLabel:          {"LABEL", -1},
	OpSetLabel:       {"SET_LABEL", -1},
	OpLabelAction:    {"LABEL_ACTION", -1},
	OpStopStream:     {"STOP_STREAM", 0},
	OpFilter:         {"FILTER", -1},
	OpNotEqual:       {"NOT_EQUAL", 0},
	OpArrayStart:     {"ARRAY_START", 0},
	OpArrayEnd:       {"ARRAY_END", 0},
	OpObjectStart:    {"OBJECT_START", 0},
	OpObjectEnd:      {"OBJECT_END", 0},
	OpTupleStart:     {"TUPLE_START", 0},
	OpTupleEnd:       {"TUPLE_END", 0},
	OpRecordStart:    {"RECORD_START", 0},
	OpRecordEnd:      {"RECORD_END", 0},
	OpElementWithKey: {"ELEMENT_WITH_KEY", -1},
	OpElement:        {"ELEMENT", 0},
	OpAnd:            {"AND", 0},
	OpOr:             {"OR", 0},
	OpNot:            {"NOT", 0},
	OpStream:         {"STREAM", 0},
	OpExtendedType:   {"EXTENDED_TYPE", -1},
	OpChildGetRef:    {"CHILD_GET_REF", 0},
	OpChildGet:       {"CHILD_GET", 0},
	OpChildSet:       {"CHILD_SET", 0},
	OpChildAction:    {"CHILD_ACTION", 1},
	OpThrowError:     {"THROW_ERROR", 0},
	OpGetType:        {"GET_TYPE", 0},
	OpRemote:         {"REMOTE", -1},
	OpKeyPermission:  {"KEY_PERMISSION", 0},
	OpAdd:            {"ADD", 0},
	OpSubtract:       {"SUBTRACT", 0},
	OpMultiply:       {"MULTIPLY", 0},
	OpDivide:         {"DIVIDE", 0},
	OpRange:          {"RANGE", 0},
	OpExtend:         {"EXTEND", 0},
	OpType:           {"TYPE", -1},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns an OpcodeInfo named "UNKNOWN(0x..)" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op)), OperandLen: 0}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the fixed number of operand bytes, or -1 for
// self-describing operands.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// IsJump reports whether the opcode carries a u32 jump target.
func (op Opcode) IsJump() bool {
	return op == OpJmp || op == OpJtr || op == OpJfa
}

// IsEndpoint reports whether the opcode starts an endpoint target.
func (op Opcode) IsEndpoint() bool {
	return op >= OpPersonAlias && op <= OpEndpointWildcard
}

// IsStdType reports whether the opcode is a std type shorthand.
func (op Opcode) IsStdType() bool {
	return op >= OpStdTypeString && op <= OpStdTypeIterator
}

// WithAction returns base+action for variable opcode families.
func (op Opcode) WithAction(action ActionType) Opcode {
	return op + Opcode(action)
}

// AllOpcodes returns a slice of all defined opcodes.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
