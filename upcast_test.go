package lunify

import "testing"

// TestUpcastForLoop exercises spec.md §8 scenario 6's FORLOOP rule on a
// realistic generic numeric-for shape (a forward JMP over the loop body,
// landing on the back edge): the induction variable Lua 5.1's FORLOOP
// writes to A+3 on every iteration must be stashed and restored through a
// freshly minted global, adding exactly one SETGLOBAL and one GETGLOBAL
// around the original FORLOOP.
func TestUpcastForLoop(t *testing.T) {
	settings := DefaultSettings()
	var constants []Constant
	maxStack := byte(4)

	instructions := []Lua50Instruction{
		{Opcode: Op50Jump, SBx: 1},                         // skip the body on entry
		{Opcode: Op50Move, A: 3, B: registerOperand(0)},    // loop body
		{Opcode: Op50ForLoop, A: 0, SBx: -2},                // back edge to the body
	}
	lineInfo := []int64{1, 1, 1}

	out, outLineInfo, err := upcast(instructions, lineInfo, &constants, &maxStack, 0, false, settings)
	if err != nil {
		t.Fatalf("upcast: %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("len(out) = %d, want 5 (3 original + SETGLOBAL + GETGLOBAL)", len(out))
	}
	if len(outLineInfo) != len(out) {
		t.Fatalf("lineInfo length %d != instructions length %d", len(outLineInfo), len(out))
	}
	if len(constants) != 1 || !constants[0].isString {
		t.Fatalf("expected exactly one freshly minted string constant, got %+v", constants)
	}

	var sawSetGlobal, sawGetGlobal, sawForLoop bool
	var setGlobalBx, getGlobalBx uint64
	for _, inst := range out {
		switch inst.Opcode {
		case Op51SetGlobal:
			if inst.A == 3 {
				sawSetGlobal = true
				setGlobalBx = inst.Bx
			}
		case Op51GetGlobal:
			if inst.A == 3 {
				sawGetGlobal = true
				getGlobalBx = inst.Bx
			}
		case Op51ForLoop:
			sawForLoop = true
			if inst.A != 0 {
				t.Errorf("ForLoop A = %d, want 0", inst.A)
			}
		}
	}
	if !sawSetGlobal || !sawGetGlobal || !sawForLoop {
		t.Fatalf("want SetGlobal(A=3), GetGlobal(A=3) and ForLoop in output, got %+v", out)
	}
	if setGlobalBx != getGlobalBx {
		t.Errorf("SetGlobal/GetGlobal reference different constants: %d vs %d", setGlobalBx, getGlobalBx)
	}
}

// TestUpcastTForLoopSingleVariable checks the C==0 direct retag path.
func TestUpcastTForLoopSingleVariable(t *testing.T) {
	settings := DefaultSettings()
	var constants []Constant
	maxStack := byte(4)

	instructions := []Lua50Instruction{
		{Opcode: Op50TForLoop, A: 0, C: Operand{Value: 0}},
		{Opcode: Op50Jump, SBx: -2},
	}
	lineInfo := []int64{1, 1}

	out, _, err := upcast(instructions, lineInfo, &constants, &maxStack, 0, false, settings)
	if err != nil {
		t.Fatalf("upcast: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].Opcode != Op51TForLoop || out[0].C.Value != 1 {
		t.Errorf("out[0] = %+v, want TForLoop with C=1", out[0])
	}
}

// TestUpcastSetListFastPath checks the unchanged fast path when input and
// output page sizes agree on a small batch.
func TestUpcastSetListFastPath(t *testing.T) {
	settings := DefaultSettings()
	var constants []Constant
	maxStack := byte(4)

	instructions := []Lua50Instruction{
		{Opcode: Op50NewTable, A: 0},
		{Opcode: Op50LoadK, A: 1, Bx: 0},
		{Opcode: Op50SetList, A: 0, Bx: 0}, // flat_index = 1
	}
	lineInfo := []int64{1, 1, 1}

	out, _, err := upcast(instructions, lineInfo, &constants, &maxStack, 0, false, settings)
	if err != nil {
		t.Fatalf("upcast: %v", err)
	}
	last := out[len(out)-1]
	if last.Opcode != Op51SetList || last.B.Value != 1 || last.C.Value != 1 {
		t.Errorf("last = %+v, want SetList B=1 C=1", last)
	}
}

// TestUpcastSetListRepaging matches spec.md §8 scenario 5: six elements
// batched as 5+1 under LFIELDS_PER_FLUSH=5 on input must be re-paged into
// one batch of six under LFIELDS_PER_FLUSH=8 on output.
func TestUpcastSetListRepaging(t *testing.T) {
	settings := DefaultSettings()
	settings.Lua50.FieldsPerFlush = 5
	settings.Lua51.FieldsPerFlush = 8
	var constants []Constant
	maxStack := byte(8)

	instructions := []Lua50Instruction{
		{Opcode: Op50NewTable, A: 0},
		{Opcode: Op50LoadK, A: 1, Bx: 0},
		{Opcode: Op50LoadK, A: 2, Bx: 0},
		{Opcode: Op50LoadK, A: 3, Bx: 0},
		{Opcode: Op50LoadK, A: 4, Bx: 0},
		{Opcode: Op50LoadK, A: 5, Bx: 0},
		{Opcode: Op50SetList, A: 0, Bx: 4}, // flat_index = 5, page 0 full batch of 5
		{Opcode: Op50LoadK, A: 1, Bx: 0},
		{Opcode: Op50SetList, A: 0, Bx: 5}, // flat_index = 6, second page, one element
	}
	lineInfo := make([]int64, len(instructions))
	for i := range lineInfo {
		lineInfo[i] = 1
	}

	out, outLineInfo, err := upcast(instructions, lineInfo, &constants, &maxStack, 0, false, settings)
	if err != nil {
		t.Fatalf("upcast: %v", err)
	}
	if len(out) != len(outLineInfo) {
		t.Fatalf("lineInfo length mismatch: %d vs %d", len(outLineInfo), len(out))
	}

	var setLists []Lua51Instruction
	for _, inst := range out {
		if inst.Opcode == Op51SetList {
			setLists = append(setLists, inst)
		}
	}
	if len(setLists) != 1 {
		t.Fatalf("want exactly one SETLIST after re-paging, got %d: %+v", len(setLists), setLists)
	}
	if setLists[0].B.Value != 6 || setLists[0].C.Value != 1 {
		t.Errorf("SETLIST = %+v, want B=6 C=1 (six elements, one page of eight)", setLists[0])
	}
}

// TestUpcastVariadicPrologue checks the NewTable/VarArg/SetList/Move
// sequence spec.md §4.7 prepends for a variadic function.
func TestUpcastVariadicPrologue(t *testing.T) {
	settings := DefaultSettings()
	var constants []Constant
	maxStack := byte(4)

	instructions := []Lua50Instruction{
		{Opcode: Op50Return, A: 0, B: Operand{Value: 1}},
	}
	lineInfo := []int64{1}

	out, _, err := upcast(instructions, lineInfo, &constants, &maxStack, 1, true, settings)
	if err != nil {
		t.Fatalf("upcast: %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("len(out) = %d, want 5 (4 prologue + 1 body)", len(out))
	}
	if out[0].Opcode != Op51NewTable || out[0].A != 2 {
		t.Errorf("out[0] = %+v, want NewTable A=2", out[0])
	}
	if out[1].Opcode != Op51VarArg || out[1].A != 3 {
		t.Errorf("out[1] = %+v, want VarArg A=3", out[1])
	}
	if out[2].Opcode != Op51SetList || out[2].A != 2 {
		t.Errorf("out[2] = %+v, want SetList A=2", out[2])
	}
	if out[3].Opcode != Op51Move || out[3].A != 1 {
		t.Errorf("out[3] = %+v, want Move A=1", out[3])
	}
}
