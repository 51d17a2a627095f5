package lunify

import "testing"

// TestBuilderFinalizeNoOp checks that a builder with only copied-through
// instructions (lineWeight 0 throughout) leaves every jump's SBx untouched.
func TestBuilderFinalizeNoOp(t *testing.T) {
	b := newInstructionBuilder()
	b.appendInstruction(Lua51Instruction{Opcode: Op51Jump, SBx: 2})
	b.appendInstruction(Lua51Instruction{Opcode: Op51Move, A: 0, B: registerOperand(1)})
	b.appendInstruction(Lua51Instruction{Opcode: Op51Move, A: 1, B: registerOperand(2)})
	b.appendInstruction(Lua51Instruction{Opcode: Op51Return, A: 0, B: Operand{Value: 1}}) // the jump's landing instruction

	maxStack := byte(0)
	instructions, lineInfo, err := b.finalize(&maxStack, DefaultSettings())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(lineInfo) != len(instructions) {
		t.Fatalf("lineInfo length %d != instructions length %d", len(lineInfo), len(instructions))
	}
	if instructions[0].SBx != 2 {
		t.Errorf("SBx = %d, want 2 (unchanged, no insertions)", instructions[0].SBx)
	}
}

// TestBuilderFinalizeRetargetsPastInsertion exercises the line-weight walk:
// a jump that originally skipped one instruction must skip two once an
// extra instruction is inserted in between.
func TestBuilderFinalizeRetargetsPastInsertion(t *testing.T) {
	b := newInstructionBuilder()
	b.appendInstruction(Lua51Instruction{Opcode: Op51Jump, SBx: 1}) // jumps past the next instruction
	b.appendInstruction(Lua51Instruction{Opcode: Op51Move, A: 0, B: registerOperand(1)})
	b.extraInstruction(Lua51Instruction{Opcode: Op51Move, A: 2, B: registerOperand(3)})
	b.appendInstruction(Lua51Instruction{Opcode: Op51Move, A: 4, B: registerOperand(5)})

	maxStack := byte(0)
	instructions, _, err := b.finalize(&maxStack, DefaultSettings())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// The jump must now land past both the original and the inserted
	// instruction, i.e. SBx grows from 1 to 2.
	if instructions[0].SBx != 2 {
		t.Errorf("SBx = %d, want 2", instructions[0].SBx)
	}
}

// TestBuilderFixedJumpNotRemapped checks that isFixed suppresses the walk
// entirely, per spec.md §4.6.
func TestBuilderFixedJumpNotRemapped(t *testing.T) {
	b := newInstructionBuilder()
	b.appendInstruction(Lua51Instruction{Opcode: Op51Jump, SBx: 2})
	b.lastInstructionFixed()
	b.extraInstruction(Lua51Instruction{Opcode: Op51Move})
	b.extraInstruction(Lua51Instruction{Opcode: Op51Move})

	maxStack := byte(0)
	instructions, _, err := b.finalize(&maxStack, DefaultSettings())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if instructions[0].SBx != 2 {
		t.Errorf("fixed jump SBx = %d, want unchanged 2", instructions[0].SBx)
	}
}

// TestBuilderStackTooLarge checks finalize rejects an instruction whose
// stackDestination exceeds the configured stack limit.
func TestBuilderStackTooLarge(t *testing.T) {
	settings := DefaultSettings()
	b := newInstructionBuilder()
	b.appendInstruction(Lua51Instruction{Opcode: Op51Move, A: settings.Lua51.StackLimit, B: registerOperand(0)})

	maxStack := byte(0)
	_, _, err := b.finalize(&maxStack, settings)
	lerr, ok := err.(*Error)
	if !ok || lerr.Kind != ErrStackTooLarge {
		t.Fatalf("want StackTooLarge, got %#v", err)
	}
}

// TestBuilderInsertExtraInstructionInheritsLine checks the inherited line
// number at the insertion point, per insertExtraInstruction's doc comment.
func TestBuilderInsertExtraInstructionInheritsLine(t *testing.T) {
	b := newInstructionBuilder()
	b.setLineNumber(10)
	b.appendInstruction(Lua51Instruction{Opcode: Op51Move})
	b.setLineNumber(20)
	b.appendInstruction(Lua51Instruction{Opcode: Op51Move})

	b.insertExtraInstruction(1, Lua51Instruction{Opcode: Op51LoadNil})

	if got := b.lineInfo[1]; got != 20 {
		t.Errorf("inserted line = %d, want 20 (inherited)", got)
	}
	if got := b.lineInfo[2]; got != 20 {
		t.Errorf("shifted line = %d, want 20", got)
	}
}
