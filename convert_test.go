package lunify

import "testing"

// TestConvertNoOpSameFieldsPerFlush checks the short-circuit: when the
// input and requested output LFIELDS_PER_FLUSH agree, convert must not
// touch the instruction stream at all.
func TestConvertNoOpSameFieldsPerFlush(t *testing.T) {
	settings := DefaultSettings()
	settings.Lua51.FieldsPerFlush = 5
	maxStack := byte(4)

	instructions := []Lua51Instruction{
		{Opcode: Op51NewTable, A: 0},
		{Opcode: Op51LoadK, A: 1, Bx: 0},
		{Opcode: Op51SetList, A: 0, B: Operand{Value: 1}, C: Operand{Value: 1}},
	}
	lineInfo := []int64{1, 1, 1}

	out, outLineInfo, err := convert(instructions, lineInfo, &maxStack, settings, 5)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(out) != len(instructions) {
		t.Fatalf("len(out) = %d, want %d (unchanged)", len(out), len(instructions))
	}
	for i := range instructions {
		if out[i] != instructions[i] {
			t.Errorf("out[%d] = %+v, want unchanged %+v", i, out[i], instructions[i])
		}
	}
	if len(outLineInfo) != len(lineInfo) {
		t.Errorf("lineInfo changed: got %v, want %v", outLineInfo, lineInfo)
	}
}

// TestConvertRepagesSetList matches spec.md §8 scenario 5, but for the
// same-version re-pager instead of the upcaster: six elements batched as
// 5+1 under an input LFIELDS_PER_FLUSH of 5 must be merged into one
// SETLIST under an output LFIELDS_PER_FLUSH of 8.
func TestConvertRepagesSetList(t *testing.T) {
	settings := DefaultSettings()
	settings.Lua51.FieldsPerFlush = 8
	maxStack := byte(8)

	instructions := []Lua51Instruction{
		{Opcode: Op51NewTable, A: 0},
		{Opcode: Op51LoadK, A: 1, Bx: 0},
		{Opcode: Op51LoadK, A: 2, Bx: 0},
		{Opcode: Op51LoadK, A: 3, Bx: 0},
		{Opcode: Op51LoadK, A: 4, Bx: 0},
		{Opcode: Op51LoadK, A: 5, Bx: 0},
		{Opcode: Op51SetList, A: 0, B: Operand{Value: 5}, C: Operand{Value: 1}}, // flat_index = 5, full input page
		{Opcode: Op51LoadK, A: 1, Bx: 0},
		{Opcode: Op51SetList, A: 0, B: Operand{Value: 6}, C: Operand{Value: 2}}, // flat_index = 6
	}
	lineInfo := make([]int64, len(instructions))
	for i := range lineInfo {
		lineInfo[i] = 1
	}

	out, outLineInfo, err := convert(instructions, lineInfo, &maxStack, settings, 5)
	if err != nil {
		t.Fatalf("convert: %v", err)
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
