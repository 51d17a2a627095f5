package lunify

// instructionContext is one element the builder tracks alongside each
// instruction: lineWeight distinguishes copied-through instructions (0)
// from ones the rewriter synthesized (1, decremented on removal);
// finalOffset is a post-remap landing-PC correction; isFixed marks a jump
// whose Bx already refers to the final program counter and must not be
// remapped at all. Ported from
// original_source/src/function/builder.rs's InstructionContext.
type instructionContext struct {
	instruction Lua51Instruction
	lineWeight  int64
	finalOffset int64
	isFixed     bool
}

// instructionBuilder is the mutable buffer the upcaster and converter
// build Lua 5.1 instructions into. It owns the instructions and line
// numbers for the duration of one function's rewrite and is consumed by
// finalize.
type instructionBuilder struct {
	instructions []instructionContext
	lineInfo     []int64
	lineNumber   int64
}

func newInstructionBuilder() *instructionBuilder {
	return &instructionBuilder{}
}

func (b *instructionBuilder) setLineNumber(lineNumber int64) {
	b.lineNumber = lineNumber
}

// appendInstruction appends a copied-through instruction (lineWeight 0).
func (b *instructionBuilder) appendInstruction(inst Lua51Instruction) {
	b.instructions = append(b.instructions, instructionContext{instruction: inst})
	b.lineInfo = append(b.lineInfo, b.lineNumber)
}

// extraInstruction appends a rewriter-synthesized instruction
// (lineWeight 1): it did not exist in the source and other jumps must
// treat it as invisible until finalize walks the weights.
func (b *instructionBuilder) extraInstruction(inst Lua51Instruction) {
	b.instructions = append(b.instructions, instructionContext{instruction: inst, lineWeight: 1})
	b.lineInfo = append(b.lineInfo, b.lineNumber)
}

// insertExtraInstruction inserts a synthesized instruction at index,
// inheriting the line number already recorded at that index.
func (b *instructionBuilder) insertExtraInstruction(index int, inst Lua51Instruction) {
	lineNumber := b.lineInfo[index]

	b.instructions = append(b.instructions, instructionContext{})
	copy(b.instructions[index+1:], b.instructions[index:])
	b.instructions[index] = instructionContext{instruction: inst, lineWeight: 1}

	b.lineInfo = append(b.lineInfo, 0)
	copy(b.lineInfo[index+1:], b.lineInfo[index:])
	b.lineInfo[index] = lineNumber
}

// removeInstruction deletes the instruction at index, folding its
// lineWeight (minus one, for the removal itself) into whatever now
// occupies that index.
func (b *instructionBuilder) removeInstruction(index int) {
	removed := b.instructions[index]
	b.instructions = append(b.instructions[:index], b.instructions[index+1:]...)
	b.lineInfo = append(b.lineInfo[:index], b.lineInfo[index+1:]...)
	if index < len(b.instructions) {
		b.instructions[index].lineWeight += removed.lineWeight - 1
	}
}

func (b *instructionBuilder) getInstruction(index int) *Lua51Instruction {
	return &b.instructions[index].instruction
}

func (b *instructionBuilder) getProgramCounter() int {
	return len(b.instructions)
}

// lastInstructionOffset sets finalOffset on the most recently appended
// instruction.
func (b *instructionBuilder) lastInstructionOffset(offset int64) {
	b.instructions[len(b.instructions)-1].finalOffset = offset
}

// lastInstructionFixed marks the most recently appended instruction's Bx
// as already final.
func (b *instructionBuilder) lastInstructionFixed() {
	b.instructions[len(b.instructions)-1].isFixed = true
}

// walkJump is the shared line-weight walk spec.md §4.6 describes: starting
// at instructionIndex and heading in the direction sign(offset), accumulate
// each stepped-over instruction's lineWeight into the running offset until
// the step budget (the original magnitude, corrected for weights already
// walked) is exhausted. When applyFinalOffset is set, the jumping
// instruction's own finalOffset (the one at instructionIndex) is folded in
// once the walk completes — used by finalize, not by
// adjustedJumpDestination.
func (b *instructionBuilder) walkJump(instructionIndex int, offset int64, applyFinalOffset bool) int64 {
	direction := offset
	sign := int64(1)
	if direction < 0 {
		sign = -1
	}

	var steps, step int64
	if direction > 0 {
		steps = direction + 1
		step = 1
	} else {
		steps = -direction
		step = 0
	}

	for steps != 0 {
		var index int64
		if direction > 0 {
			index = int64(instructionIndex) + step
		} else {
			index = int64(instructionIndex) - step
		}
		ctx := b.instructions[index]

		direction += ctx.lineWeight * sign
		steps += ctx.lineWeight - 1
		step++

		if steps == 0 && applyFinalOffset {
			direction += b.instructions[instructionIndex].finalOffset
		}
	}

	return direction
}

// adjustedJumpDestination returns the *current* (post-insert/remove, but
// pre-finalize) instruction index a backward jump with the given signed
// offset lands on. Only valid for backward jumps — the rewriter only ever
// needs this to locate a Lua 5.0 FORLOOP's own back-edge target so it can
// insert a restore instruction there.
func (b *instructionBuilder) adjustedJumpDestination(offset int64) (int, error) {
	if offset > 0 {
		return 0, errKind(ErrUnexpectedForwardJump)
	}
	instructionIndex := b.getProgramCounter() - 1
	direction := b.walkJump(instructionIndex, offset, false)
	return instructionIndex + 1 + int(direction), nil
}

// finalize consumes the builder, remapping every Jump/ForLoop/ForPrep's Bx
// to account for every instruction inserted or removed since it was
// emitted, and growing maxStackSize to cover every instruction's
// stackDestination. It is the terminal step of both the upcaster and the
// converter.
func (b *instructionBuilder) finalize(maxStackSize *byte, settings Settings) ([]Lua51Instruction, []int64, error) {
	for i := range b.instructions {
		inst := &b.instructions[i].instruction

		if _, end, ok := inst.stackDestination(); ok {
			newSize := end + 1
			if newSize > settings.Lua51.StackLimit {
				return nil, nil, errValue(ErrStackTooLarge, newSize)
			}
			if newSize > uint64(*maxStackSize) {
				*maxStackSize = byte(newSize)
			}
		}

		switch inst.Opcode {
		case Op51Jump, Op51ForLoop, Op51ForPrep:
			if b.instructions[i].isFixed {
				continue
			}
			inst.SBx = b.walkJump(i, inst.SBx, true)
		}
	}

	instructions := make([]Lua51Instruction, len(b.instructions))
	for i, ctx := range b.instructions {
		instructions[i] = ctx.instruction
	}
	return instructions, b.lineInfo, nil
}
