package lunify

// Operand is a single B or C field once decoded: either a plain register
// slot or a constant-pool index, per spec.md §4.3's ConstantRegister mode.
// Generic and Unused fields are represented the same way with IsConstant
// always false; what distinguishes them is simply whether the rewriter
// ever calls offset on that particular field for that particular opcode.
type Operand struct {
	Value      uint64
	IsConstant bool
}

func registerOperand(value uint64) Operand { return Operand{Value: value} }

// decodeConstantRegister interprets a raw B/C bit-field value under the
// source settings' encoding. Lua 5.0 flags a constant by the raw value
// being >= stackLimit; Lua 5.1 flags it via the high bit of the field.
func decodeConstantRegister50(raw uint64, stackLimit uint64) Operand {
	if raw >= stackLimit {
		return Operand{Value: raw - stackLimit, IsConstant: true}
	}
	return Operand{Value: raw}
}

func decodeConstantRegister51(raw uint64, constantBit uint64) Operand {
	if raw&constantBit != 0 {
		return Operand{Value: raw ^ constantBit, IsConstant: true}
	}
	return Operand{Value: raw}
}

// encode produces the raw bit-field value for writing this operand under
// the Lua 5.1 output encoding, failing if a constant index doesn't fit in
// the remaining bits once the constant bit is reserved.
func (o Operand) encode(layout InstructionLayout) (uint64, error) {
	if !o.IsConstant {
		return o.Value, nil
	}
	if o.Value > layout.maxConstantIndex() {
		return 0, errKind(ErrValueTooBigForOperand)
	}
	return o.Value | layout.constantBit(), nil
}

// offset shifts a register operand's slot by delta when it refers to a
// stack position at or above stackStart. Constant operands, and fields the
// caller never marks Register for a given opcode, are left untouched by
// simply never calling this.
func (o Operand) offset(stackStart uint64, delta int64) Operand {
	if o.IsConstant || o.Value < stackStart {
		return o
	}
	return Operand{Value: uint64(int64(o.Value) + delta)}
}
