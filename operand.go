package lunify

// OperandLayout is a (size, position, bit_mask) bit field inside a packed
// instruction word, ported from
// original_source/src/function/instruction/operand/layout.rs.
type OperandLayout struct {
	size    uint64
	position uint64
	bitMask  uint64
}

func newOperandLayout(size, position uint64) OperandLayout {
	return OperandLayout{size: size, position: position, bitMask: ^uint64(0) >> (64 - size)}
}

func (l OperandLayout) get(word uint64) uint64 {
	return (word >> l.position) & l.bitMask
}

func (l OperandLayout) put(value uint64) (uint64, error) {
	maxValue := uint64(1)<<l.size - 1
	if value > maxValue {
		return 0, errKind(ErrValueTooBigForOperand)
	}
	return (value & l.bitMask) << l.position, nil
}

// OperandType names one of the four bit-field kinds a caller supplies to
// InstructionLayout.FromSpecification, each carrying its width in bits.
type OperandType struct {
	kind byte // 'o'=opcode, 'a'=A, 'b'=B, 'c'=C
	size uint64
}

func OpcodeOperand(size uint64) OperandType { return OperandType{kind: 'o', size: size} }
func AOperand(size uint64) OperandType      { return OperandType{kind: 'a', size: size} }
func BOperand(size uint64) OperandType      { return OperandType{kind: 'b', size: size} }
func COperand(size uint64) OperandType      { return OperandType{kind: 'c', size: size} }

// InstructionLayout is the per-version memory layout of a 32-bit (or wider)
// instruction word: where each of opcode/A/B/C live, and the derived Bx
// field and its signed bias.
type InstructionLayout struct {
	Opcode       OperandLayout
	A            OperandLayout
	B            OperandLayout
	C            OperandLayout
	Bx           OperandLayout
	SignedOffset int64
}

// FromSpecification builds a layout from exactly one Opcode/A/B/C entry
// each, validating the size bounds and adjacency rules spec.md §3 and §4.3
// describe.
func FromSpecification(specification [4]OperandType) (InstructionLayout, error) {
	var opcode, a, b, c *OperandLayout
	var offset uint64

	for _, operand := range specification {
		switch operand.kind {
		case 'o':
			if !(operand.size >= 6 && operand.size < 32) || opcode != nil {
				return InstructionLayout{}, errKind(ErrInvalidInstructionLayout)
			}
			l := newOperandLayout(operand.size, offset)
			opcode = &l
			offset += operand.size
		case 'a':
			if !(operand.size >= 7 && operand.size < 32) || a != nil {
				return InstructionLayout{}, errKind(ErrInvalidInstructionLayout)
			}
			l := newOperandLayout(operand.size, offset)
			a = &l
			offset += operand.size
		case 'b':
			if !(operand.size >= 8 && operand.size < 32) || b != nil {
				return InstructionLayout{}, errKind(ErrInvalidInstructionLayout)
			}
			l := newOperandLayout(operand.size, offset)
			b = &l
			offset += operand.size
		case 'c':
			if !(operand.size >= 8 && operand.size < 32) || c != nil {
				return InstructionLayout{}, errKind(ErrInvalidInstructionLayout)
			}
			l := newOperandLayout(operand.size, offset)
			c = &l
			offset += operand.size
		}
	}

	if opcode == nil || a == nil || b == nil || c == nil {
		return InstructionLayout{}, errKind(ErrInvalidInstructionLayout)
	}

	// B and C must be bit-adjacent so that Bx can span both.
	if c.position+c.size != b.position && b.position+b.size != c.position {
		return InstructionLayout{}, errKind(ErrInvalidInstructionLayout)
	}

	bxSize := b.size + c.size
	bxPosition := b.position
	if c.position < bxPosition {
		bxPosition = c.position
	}
	bx := newOperandLayout(bxSize, bxPosition)
	signedOffset := int64(^uint64(0) >> (64 - bxSize + 1))

	return InstructionLayout{
		Opcode:       *opcode,
		A:            *a,
		B:            *b,
		C:            *c,
		Bx:           bx,
		SignedOffset: signedOffset,
	}, nil
}

// getOpcode / getA / getBx read the opcode/A/Bx fields of a raw word.
func (l InstructionLayout) getOpcode(word uint64) uint64 { return l.Opcode.get(word) }
func (l InstructionLayout) getA(word uint64) uint64      { return l.A.get(word) }
func (l InstructionLayout) getBx(word uint64) uint64     { return l.Bx.get(word) }
func (l InstructionLayout) getSignedBx(word uint64) int64 {
	return int64(l.getBx(word)) - l.SignedOffset
}
func (l InstructionLayout) getB(word uint64) uint64 { return l.B.get(word) }
func (l InstructionLayout) getC(word uint64) uint64 { return l.C.get(word) }

// constantBit is the high bit of the B/C field that flags "this is a
// constant-pool index, not a register" under the Lua 5.1 encoding.
func (l InstructionLayout) constantBit() uint64 {
	return uint64(1) << (l.B.size - 1)
}

// maxConstantIndex is the largest constant index a B/C operand can encode
// once the constant bit is reserved.
func (l InstructionLayout) maxConstantIndex() uint64 {
	return l.constantBit() - 1
}

func (l InstructionLayout) putOpcode(word uint64, value uint64) (uint64, error) {
	bits, err := l.Opcode.put(value)
	if err != nil {
		return 0, err
	}
	return word | bits, nil
}

func (l InstructionLayout) putA(word uint64, value uint64) (uint64, error) {
	bits, err := l.A.put(value)
	if err != nil {
		return 0, err
	}
	return word | bits, nil
}

func (l InstructionLayout) putB(word uint64, value uint64) (uint64, error) {
	bits, err := l.B.put(value)
	if err != nil {
		return 0, err
	}
	return word | bits, nil
}

func (l InstructionLayout) putC(word uint64, value uint64) (uint64, error) {
	bits, err := l.C.put(value)
	if err != nil {
		return 0, err
	}
	return word | bits, nil
}

func (l InstructionLayout) putBx(word uint64, value uint64) (uint64, error) {
	bits, err := l.Bx.put(value)
	if err != nil {
		return 0, err
	}
	return word | bits, nil
}

func (l InstructionLayout) putSignedBx(word uint64, value int64) (uint64, error) {
	return l.putBx(word, uint64(value+l.SignedOffset))
}

// lua51InstructionLayout and lua50InstructionLayout are the default layouts
// spec.md §6 names. Lua 5.1 packs A adjacent to the opcode with C, B
// following; Lua 5.0 instead packs C, B before A.
var lua51InstructionLayout = mustLayout([4]OperandType{OpcodeOperand(6), AOperand(8), COperand(9), BOperand(9)})
var lua50InstructionLayout = mustLayout([4]OperandType{OpcodeOperand(6), COperand(9), BOperand(9), AOperand(8)})

func mustLayout(spec [4]OperandType) InstructionLayout {
	layout, err := FromSpecification(spec)
	if err != nil {
		panic(err)
	}
	return layout
}
