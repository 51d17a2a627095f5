package lunify

// convert rewrites one function's Lua 5.1 instruction stream when the
// input and output formats differ only in LFIELDS_PER_FLUSH: SETLIST is
// re-paged with the same algorithm the upcaster uses (spec.md §4.8), and
// every other opcode is copied through, except that the instructions
// following a removed SETLIST have their registers shifted by
// moveStackAccesses and jumps are retargeted by finalize. Ported from
// original_source/src/function/convert.rs.
func convert(
	instructions []Lua51Instruction,
	lineInfo []int64,
	maxStackSize *byte,
	settings Settings,
	inputFieldsPerFlush uint64,
) ([]Lua51Instruction, []int64, error) {
	if inputFieldsPerFlush == settings.Lua51.FieldsPerFlush {
		return instructions, lineInfo, nil
	}

	builder := newInstructionBuilder()

	for i, inst := range instructions {
		builder.setLineNumber(lineInfo[i])

		if inst.Opcode != Op51SetList {
			builder.appendInstruction(inst)
			continue
		}

		a := inst.A
		flatIndex := inst.B.Value
		if flatIndex == 0 {
			flatIndex = inputFieldsPerFlush
		}

		fpfOut := settings.Lua51.FieldsPerFlush
		page := flatIndex / fpfOut
		offsetInPage := flatIndex % fpfOut

		minFPF := inputFieldsPerFlush
		if fpfOut < minFPF {
			minFPF = fpfOut
		}
		if page == 0 && flatIndex <= minFPF {
			builder.appendInstruction(Lua51Instruction{
				Opcode: Op51SetList,
				A:      a,
				B:      Operand{Value: offsetInPage},
				C:      Operand{Value: 1},
			})
			continue
		}

		for instructionIndex := builder.getProgramCounter() - 1; instructionIndex >= 0; instructionIndex-- {
			prior := builder.getInstruction(instructionIndex)
			start, _, ok := prior.stackDestination()

			if (ok && start == a) || instructionIndex == 0 {
				if prior.Opcode == Op51SetList {
					offset := int64(prior.B.Value)
					pageSoFar := prior.C.Value

					builder.removeInstruction(instructionIndex)

					for walk := instructionIndex; walk < builder.getProgramCounter(); walk++ {
						walkInst := builder.getInstruction(walk)
						walkStart, ok := func() (uint64, bool) {
							s, _, ok := walkInst.stackDestination()
							return s, ok
						}()
						if ok && offset+int64(walkStart)-1 == int64(a+fpfOut) {
							builder.insertExtraInstruction(walk, Lua51Instruction{
								Opcode: Op51SetList,
								A:      a,
								B:      Operand{Value: fpfOut},
								C:      Operand{Value: pageSoFar},
							})
							offset -= int64(fpfOut)
							pageSoFar++
							walk++
							continue
						}
						builder.getInstruction(walk).moveStackAccesses(a, offset)
					}
				}
				break
			}
		}

		builder.appendInstruction(Lua51Instruction{
			Opcode: Op51SetList,
			A:      a,
			B:      Operand{Value: offsetInPage},
			C:      Operand{Value: page + 1},
		})
	}

	return builder.finalize(maxStackSize, settings)
}
