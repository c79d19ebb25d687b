// Package avm2 holds the static AVM2 instruction set table: for every defined
// opcode byte, its mnemonic and the shapes of the operands that follow it.
package avm2

import "fmt"

// Op is a single AVM2 opcode byte.
type Op uint8

// Operand is the encoding shape of one instruction operand.
type Operand uint8

const (
	U30     Operand = iota // variable-length unsigned integer
	S24                    // signed 24-bit little-endian branch offset
	Byte                   // single raw byte
	Dynamic                // opcode-specific block, see the disassembler
)

func (o Operand) String() string {
	switch o {
	case U30:
		return "u30"
	case S24:
		return "s24"
	case Byte:
		return "u8"
	case Dynamic:
		return "dynamic"
	}
	return fmt.Sprintf("operand(%d)", uint8(o))
}

// Descriptor describes one opcode.
type Descriptor struct {
	Name     string
	Operands []Operand
}

const (
	OpBkpt           Op = 0x01
	OpNop            Op = 0x02
	OpThrow          Op = 0x03
	OpGetSuper       Op = 0x04
	OpSetSuper       Op = 0x05
	OpDxns           Op = 0x06
	OpDxnsLate       Op = 0x07
	OpKill           Op = 0x08
	OpLabel          Op = 0x09
	OpIfNlt          Op = 0x0C
	OpIfNle          Op = 0x0D
	OpIfNgt          Op = 0x0E
	OpIfNge          Op = 0x0F
	OpJump           Op = 0x10
	OpIfTrue         Op = 0x11
	OpIfFalse        Op = 0x12
	OpIfEq           Op = 0x13
	OpIfNe           Op = 0x14
	OpIfLt           Op = 0x15
	OpIfLe           Op = 0x16
	OpIfGt           Op = 0x17
	OpIfGe           Op = 0x18
	OpIfStrictEq     Op = 0x19
	OpIfStrictNe     Op = 0x1A
	OpLookupSwitch   Op = 0x1B
	OpPushWith       Op = 0x1C
	OpPopScope       Op = 0x1D
	OpNextName       Op = 0x1E
	OpHasNext        Op = 0x1F
	OpPushNull       Op = 0x20
	OpPushUndefined  Op = 0x21
	OpNextValue      Op = 0x23
	OpPushByte       Op = 0x24
	OpPushShort      Op = 0x25
	OpPushTrue       Op = 0x26
	OpPushFalse      Op = 0x27
	OpPushNaN        Op = 0x28
	OpPop            Op = 0x29
	OpDup            Op = 0x2A
	OpSwap           Op = 0x2B
	OpPushString     Op = 0x2C
	OpPushInt        Op = 0x2D
	OpPushUint       Op = 0x2E
	OpPushDouble     Op = 0x2F
	OpPushScope      Op = 0x30
	OpPushNamespace  Op = 0x31
	OpHasNext2       Op = 0x32
	OpLi8            Op = 0x35
	OpLi16           Op = 0x36
	OpLi32           Op = 0x37
	OpLf32           Op = 0x38
	OpLf64           Op = 0x39
	OpSi8            Op = 0x3A
	OpSi16           Op = 0x3B
	OpSi32           Op = 0x3C
	OpSf32           Op = 0x3D
	OpSf64           Op = 0x3E
	OpNewFunction    Op = 0x40
	OpCall           Op = 0x41
	OpConstruct      Op = 0x42
	OpCallMethod     Op = 0x43
	OpCallStatic     Op = 0x44
	OpCallSuper      Op = 0x45
	OpCallProperty   Op = 0x46
	OpReturnVoid     Op = 0x47
	OpReturnValue    Op = 0x48
	OpConstructSuper Op = 0x49
	OpConstructProp  Op = 0x4A
	OpCallPropLex    Op = 0x4C
	OpCallSuperVoid  Op = 0x4E
	OpCallPropVoid   Op = 0x4F
	OpSxi1           Op = 0x50
	OpSxi8           Op = 0x51
	OpSxi16          Op = 0x52
	OpApplyType      Op = 0x53
	OpNewObject      Op = 0x55
	OpNewArray       Op = 0x56
	OpNewActivation  Op = 0x57
	OpNewClass       Op = 0x58
	OpGetDescendants Op = 0x59
	OpNewCatch       Op = 0x5A
	OpFindPropStrict Op = 0x5D
	OpFindProperty   Op = 0x5E
	OpFindDef        Op = 0x5F
	OpGetLex         Op = 0x60
	OpSetProperty    Op = 0x61
	OpGetLocal       Op = 0x62
	OpSetLocal       Op = 0x63
	OpGetGlobalScope Op = 0x64
	OpGetScopeObject Op = 0x65
	OpGetProperty    Op = 0x66
	OpGetOuterScope  Op = 0x67
	OpInitProperty   Op = 0x68
	OpDeleteProperty Op = 0x6A
	OpGetSlot        Op = 0x6C
	OpSetSlot        Op = 0x6D
	OpGetGlobalSlot  Op = 0x6E
	OpSetGlobalSlot  Op = 0x6F
	OpConvertS       Op = 0x70
	OpEscXElem       Op = 0x71
	OpEscXAttr       Op = 0x72
	OpConvertI       Op = 0x73
	OpConvertU       Op = 0x74
	OpConvertD       Op = 0x75
	OpConvertB       Op = 0x76
	OpConvertO       Op = 0x77
	OpCheckFilter    Op = 0x78
	OpCoerce         Op = 0x80
	OpCoerceB        Op = 0x81
	OpCoerceA        Op = 0x82
	OpCoerceI        Op = 0x83
	OpCoerceD        Op = 0x84
	OpCoerceS        Op = 0x85
	OpAsType         Op = 0x86
	OpAsTypeLate     Op = 0x87
	OpCoerceU        Op = 0x88
	OpCoerceO        Op = 0x89
	OpNegate         Op = 0x90
	OpIncrement      Op = 0x91
	OpIncLocal       Op = 0x92
	OpDecrement      Op = 0x93
	OpDecLocal       Op = 0x94
	OpTypeOf         Op = 0x95
	OpNot            Op = 0x96
	OpBitNot         Op = 0x97
	OpAdd            Op = 0xA0
	OpSubtract       Op = 0xA1
	OpMultiply       Op = 0xA2
	OpDivide         Op = 0xA3
	OpModulo         Op = 0xA4
	OpLShift         Op = 0xA5
	OpRShift         Op = 0xA6
	OpURShift        Op = 0xA7
	OpBitAnd         Op = 0xA8
	OpBitOr          Op = 0xA9
	OpBitXor         Op = 0xAA
	OpEquals         Op = 0xAB
	OpStrictEquals   Op = 0xAC
	OpLessThan       Op = 0xAD
	OpLessEquals     Op = 0xAE
	OpGreaterThan    Op = 0xAF
	OpGreaterEquals  Op = 0xB0
	OpInstanceOf     Op = 0xB1
	OpIsType         Op = 0xB2
	OpIsTypeLate     Op = 0xB3
	OpIn             Op = 0xB4
	OpIncrementI     Op = 0xC0
	OpDecrementI     Op = 0xC1
	OpIncLocalI      Op = 0xC2
	OpDecLocalI      Op = 0xC3
	OpNegateI        Op = 0xC4
	OpAddI           Op = 0xC5
	OpSubtractI      Op = 0xC6
	OpMultiplyI      Op = 0xC7
	OpGetLocal0      Op = 0xD0
	OpGetLocal1      Op = 0xD1
	OpGetLocal2      Op = 0xD2
	OpGetLocal3      Op = 0xD3
	OpSetLocal0      Op = 0xD4
	OpSetLocal1      Op = 0xD5
	OpSetLocal2      Op = 0xD6
	OpSetLocal3      Op = 0xD7
	OpDebug          Op = 0xEF
	OpDebugLine      Op = 0xF0
	OpDebugFile      Op = 0xF1
	OpBkptLine       Op = 0xF2
	OpTimestamp      Op = 0xF3
)

func d(name string, operands ...Operand) *Descriptor {
	return &Descriptor{Name: name, Operands: operands}
}

// table is indexed by opcode byte; nil entries are undefined opcodes.
// It is filled once at init and never written afterwards.
var table = [256]*Descriptor{
	OpBkpt:           d("bkpt"),
	OpNop:            d("nop"),
	OpThrow:          d("throw"),
	OpGetSuper:       d("getsuper", U30),
	OpSetSuper:       d("setsuper", U30),
	OpDxns:           d("dxns", U30),
	OpDxnsLate:       d("dxnslate"),
	OpKill:           d("kill", U30),
	OpLabel:          d("label"),
	OpIfNlt:          d("ifnlt", S24),
	OpIfNle:          d("ifnle", S24),
	OpIfNgt:          d("ifngt", S24),
	OpIfNge:          d("ifnge", S24),
	OpJump:           d("jump", S24),
	OpIfTrue:         d("iftrue", S24),
	OpIfFalse:        d("iffalse", S24),
	OpIfEq:           d("ifeq", S24),
	OpIfNe:           d("ifne", S24),
	OpIfLt:           d("iflt", S24),
	OpIfLe:           d("ifle", S24),
	OpIfGt:           d("ifgt", S24),
	OpIfGe:           d("ifge", S24),
	OpIfStrictEq:     d("ifstricteq", S24),
	OpIfStrictNe:     d("ifstrictne", S24),
	OpLookupSwitch:   d("lookupswitch", S24, Dynamic),
	OpPushWith:       d("pushwith"),
	OpPopScope:       d("popscope"),
	OpNextName:       d("nextname"),
	OpHasNext:        d("hasnext"),
	OpPushNull:       d("pushnull"),
	OpPushUndefined:  d("pushundefined"),
	OpNextValue:      d("nextvalue"),
	OpPushByte:       d("pushbyte", Byte),
	OpPushShort:      d("pushshort", U30),
	OpPushTrue:       d("pushtrue"),
	OpPushFalse:      d("pushfalse"),
	OpPushNaN:        d("pushnan"),
	OpPop:            d("pop"),
	OpDup:            d("dup"),
	OpSwap:           d("swap"),
	OpPushString:     d("pushstring", U30),
	OpPushInt:        d("pushint", U30),
	OpPushUint:       d("pushuint", U30),
	OpPushDouble:     d("pushdouble", U30),
	OpPushScope:      d("pushscope"),
	OpPushNamespace:  d("pushnamespace", U30),
	OpHasNext2:       d("hasnext2", U30, U30),
	OpLi8:            d("li8"),
	OpLi16:           d("li16"),
	OpLi32:           d("li32"),
	OpLf32:           d("lf32"),
	OpLf64:           d("lf64"),
	OpSi8:            d("si8"),
	OpSi16:           d("si16"),
	OpSi32:           d("si32"),
	OpSf32:           d("sf32"),
	OpSf64:           d("sf64"),
	OpNewFunction:    d("newfunction", U30),
	OpCall:           d("call", U30),
	OpConstruct:      d("construct", U30),
	OpCallMethod:     d("callmethod", U30, U30),
	OpCallStatic:     d("callstatic", U30, U30),
	OpCallSuper:      d("callsuper", U30, U30),
	OpCallProperty:   d("callproperty", U30, U30),
	OpReturnVoid:     d("returnvoid"),
	OpReturnValue:    d("returnvalue"),
	OpConstructSuper: d("constructsuper", U30),
	OpConstructProp:  d("constructprop", U30, U30),
	OpCallPropLex:    d("callproplex", U30, U30),
	OpCallSuperVoid:  d("callsupervoid", U30, U30),
	OpCallPropVoid:   d("callpropvoid", U30, U30),
	OpSxi1:           d("sxi1"),
	OpSxi8:           d("sxi8"),
	OpSxi16:          d("sxi16"),
	OpApplyType:      d("applytype", U30),
	OpNewObject:      d("newobject", U30),
	OpNewArray:       d("newarray", U30),
	OpNewActivation:  d("newactivation"),
	OpNewClass:       d("newclass", U30),
	OpGetDescendants: d("getdescendants", U30),
	OpNewCatch:       d("newcatch", U30),
	OpFindPropStrict: d("findpropstrict", U30),
	OpFindProperty:   d("findproperty", U30),
	OpFindDef:        d("finddef", U30),
	OpGetLex:         d("getlex", U30),
	OpSetProperty:    d("setproperty", U30),
	OpGetLocal:       d("getlocal", U30),
	OpSetLocal:       d("setlocal", U30),
	OpGetGlobalScope: d("getglobalscope"),
	OpGetScopeObject: d("getscopeobject", Byte),
	OpGetProperty:    d("getproperty", U30),
	OpGetOuterScope:  d("getouterscope", U30),
	OpInitProperty:   d("initproperty", U30),
	OpDeleteProperty: d("deleteproperty", U30),
	OpGetSlot:        d("getslot", U30),
	OpSetSlot:        d("setslot", U30),
	OpGetGlobalSlot:  d("getglobalslot", U30),
	OpSetGlobalSlot:  d("setglobalslot", U30),
	OpConvertS:       d("convert_s"),
	OpEscXElem:       d("esc_xelem"),
	OpEscXAttr:       d("esc_xattr"),
	OpConvertI:       d("convert_i"),
	OpConvertU:       d("convert_u"),
	OpConvertD:       d("convert_d"),
	OpConvertB:       d("convert_b"),
	OpConvertO:       d("convert_o"),
	OpCheckFilter:    d("checkfilter"),
	OpCoerce:         d("coerce", U30),
	OpCoerceB:        d("coerce_b"),
	OpCoerceA:        d("coerce_a"),
	OpCoerceI:        d("coerce_i"),
	OpCoerceD:        d("coerce_d"),
	OpCoerceS:        d("coerce_s"),
	OpAsType:         d("astype", U30),
	OpAsTypeLate:     d("astypelate"),
	OpCoerceU:        d("coerce_u"),
	OpCoerceO:        d("coerce_o"),
	OpNegate:         d("negate"),
	OpIncrement:      d("increment"),
	OpIncLocal:       d("inclocal", U30),
	OpDecrement:      d("decrement"),
	OpDecLocal:       d("declocal", U30),
	OpTypeOf:         d("typeof"),
	OpNot:            d("not"),
	OpBitNot:         d("bitnot"),
	OpAdd:            d("add"),
	OpSubtract:       d("subtract"),
	OpMultiply:       d("multiply"),
	OpDivide:         d("divide"),
	OpModulo:         d("modulo"),
	OpLShift:         d("lshift"),
	OpRShift:         d("rshift"),
	OpURShift:        d("urshift"),
	OpBitAnd:         d("bitand"),
	OpBitOr:          d("bitor"),
	OpBitXor:         d("bitxor"),
	OpEquals:         d("equals"),
	OpStrictEquals:   d("strictequals"),
	OpLessThan:       d("lessthan"),
	OpLessEquals:     d("lessequals"),
	OpGreaterThan:    d("greaterthan"),
	OpGreaterEquals:  d("greaterequals"),
	OpInstanceOf:     d("instanceof"),
	OpIsType:         d("istype", U30),
	OpIsTypeLate:     d("istypelate"),
	OpIn:             d("in"),
	OpIncrementI:     d("increment_i"),
	OpDecrementI:     d("decrement_i"),
	OpIncLocalI:      d("inclocal_i", U30),
	OpDecLocalI:      d("declocal_i", U30),
	OpNegateI:        d("negate_i"),
	OpAddI:           d("add_i"),
	OpSubtractI:      d("subtract_i"),
	OpMultiplyI:      d("multiply_i"),
	OpGetLocal0:      d("getlocal0"),
	OpGetLocal1:      d("getlocal1"),
	OpGetLocal2:      d("getlocal2"),
	OpGetLocal3:      d("getlocal3"),
	OpSetLocal0:      d("setlocal0"),
	OpSetLocal1:      d("setlocal1"),
	OpSetLocal2:      d("setlocal2"),
	OpSetLocal3:      d("setlocal3"),
	OpDebug:          d("debug", Byte, U30, Byte, U30),
	OpDebugLine:      d("debugline", U30),
	OpDebugFile:      d("debugfile", U30),
	OpBkptLine:       d("bkptline", U30),
	OpTimestamp:      d("timestamp"),
}

// Lookup returns the descriptor for op. ok is false for undefined opcodes.
// The returned descriptor is shared and must not be modified.
func Lookup(op Op) (desc *Descriptor, ok bool) {
	desc = table[op]
	return desc, desc != nil
}

// Known reports whether op has a descriptor.
func Known(op Op) bool {
	return table[op] != nil
}

// String returns the mnemonic of op, or "op_XX" for undefined opcodes.
func (op Op) String() string {
	if desc := table[op]; desc != nil {
		return desc.Name
	}
	return fmt.Sprintf("op_%02x", uint8(op))
}

// Count returns the number of defined opcodes.
func Count() int {
	n := 0
	for _, desc := range table {
		if desc != nil {
			n++
		}
	}
	return n
}
