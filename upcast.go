package lunify

// upcast rewrites one function's Lua 5.0 instruction stream into the
// equivalent Lua 5.1 stream, per spec.md §4.7. Ported from
// original_source/src/function/upcast.rs.
func upcast(
	instructions []Lua50Instruction,
	lineInfo []int64,
	constants *[]Constant,
	maxStackSize *byte,
	parameterCount uint64,
	isVariadic bool,
	settings Settings,
) ([]Lua51Instruction, []int64, error) {
	builder := newInstructionBuilder()
	manager := newConstantManager(constants, settings.Lua51.Layout.maxConstantIndex())

	for i, inst := range instructions {
		builder.setLineNumber(lineInfo[i])

		switch inst.Opcode {
		case Op50Move:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51Move, A: inst.A, B: inst.B})
		case Op50LoadK:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51LoadK, A: inst.A, Bx: inst.Bx})
		case Op50LoadBool:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51LoadBool, A: inst.A, B: inst.B, C: inst.C})
		case Op50LoadNil:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51LoadNil, A: inst.A, B: inst.B})
		case Op50GetUpValue:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51GetUpValue, A: inst.A, B: inst.B})
		case Op50GetGlobal:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51GetGlobal, A: inst.A, Bx: inst.Bx})
		case Op50GetTable:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51GetTable, A: inst.A, B: inst.B, C: inst.C})
		case Op50SetGlobal:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51SetGlobal, A: inst.A, Bx: inst.Bx})
		case Op50SetUpValue:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51SetUpValue, A: inst.A, B: inst.B})
		case Op50SetTable:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51SetTable, A: inst.A, B: inst.B, C: inst.C})
		case Op50NewTable:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51NewTable, A: inst.A, B: inst.B, C: inst.C})
		case Op50Self:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51Self, A: inst.A, B: inst.B, C: inst.C})
		case Op50Add:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51Add, A: inst.A, B: inst.B, C: inst.C})
		case Op50Sub:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51Sub, A: inst.A, B: inst.B, C: inst.C})
		case Op50Mul:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51Mul, A: inst.A, B: inst.B, C: inst.C})
		case Op50Div:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51Div, A: inst.A, B: inst.B, C: inst.C})
		case Op50Pow:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51Pow, A: inst.A, B: inst.B, C: inst.C})
		case Op50Unary:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51Unary, A: inst.A, B: inst.B})
		case Op50Not:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51Not, A: inst.A, B: inst.B})
		case Op50Concat:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51Concat, A: inst.A, B: inst.B, C: inst.C})
		case Op50Jump:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51Jump, A: inst.A, SBx: inst.SBx})
		case Op50Eq:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51Eq, A: inst.A, B: inst.B, C: inst.C})
		case Op50LT:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51LT, A: inst.A, B: inst.B, C: inst.C})
		case Op50LE:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51LE, A: inst.A, B: inst.B, C: inst.C})
		case Op50Test:
			// Lua 5.0 Test maps onto Lua 5.1 TestSet.
			builder.appendInstruction(Lua51Instruction{Opcode: Op51TestSet, A: inst.A, B: inst.B, C: inst.C})
		case Op50Call:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51Call, A: inst.A, B: inst.B, C: inst.C})
		case Op50TailCall:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51TailCall, A: inst.A, B: inst.B, C: inst.C})
		case Op50Return:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51Return, A: inst.A, B: inst.B})
		case Op50Close:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51Close, A: inst.A})
		case Op50Closure:
			builder.appendInstruction(Lua51Instruction{Opcode: Op51Closure, A: inst.A, Bx: inst.Bx})

		case Op50ForLoop:
			if err := upcastForLoop(builder, manager, inst); err != nil {
				return nil, nil, err
			}

		case Op50TForLoop:
			upcastTForLoop(builder, manager, inst)

		case Op50TForPrep:
			if err := upcastTForPrep(builder, manager, inst); err != nil {
				return nil, nil, err
			}

		case Op50SetList, Op50SetListO:
			if err := upcastSetList(builder, inst, settings); err != nil {
				return nil, nil, err
			}
		}
	}

	if isVariadic {
		if err := prependVariadicPrologue(builder, parameterCount); err != nil {
			return nil, nil, err
		}
	}

	return builder.finalize(maxStackSize, settings)
}

// upcastForLoop handles spec.md §4.7's FORLOOP lowering: Lua 5.1 writes the
// loop induction variable to A+3 on every iteration, which Lua 5.0 does
// not, so we stash and restore it through a freshly minted global.
func upcastForLoop(builder *instructionBuilder, manager *constantManager, inst Lua50Instruction) error {
	globalConstant, err := manager.createUnique(builder.getProgramCounter())
	if err != nil {
		return err
	}

	builder.appendInstruction(Lua51Instruction{Opcode: Op51SetGlobal, A: inst.A + 3, Bx: globalConstant})

	builder.extraInstruction(Lua51Instruction{Opcode: Op51ForLoop, A: inst.A, SBx: inst.SBx})
	builder.lastInstructionOffset(-1)

	position, err := builder.adjustedJumpDestination(inst.SBx)
	if err != nil {
		return err
	}

	builder.insertExtraInstruction(position, Lua51Instruction{Opcode: Op51GetGlobal, A: inst.A + 3, Bx: globalConstant})
	return nil
}

// upcastTForLoop handles spec.md §4.7's TFORLOOP lowering. With a single
// loop variable it retags directly; with more it must synthesize the
// multi-result call sequence Lua 5.1's single-result TFORLOOP can't
// express.
func upcastTForLoop(builder *instructionBuilder, manager *constantManager, inst Lua50Instruction) {
	c := inst.C.Value

	if c == 0 {
		builder.appendInstruction(Lua51Instruction{
			Opcode: Op51TForLoop,
			A:      inst.A,
			C:      Operand{Value: c + 1},
		})
		return
	}

	variableCount := c + 1
	callBase := inst.A + variableCount + 2
	constantNil, _ := manager.constantNil()

	builder.appendInstruction(Lua51Instruction{Opcode: Op51Move, A: callBase, B: registerOperand(inst.A)})
	builder.extraInstruction(Lua51Instruction{Opcode: Op51Move, A: callBase + 1, B: registerOperand(inst.A + 1)})
	builder.extraInstruction(Lua51Instruction{Opcode: Op51Move, A: callBase + 2, B: registerOperand(inst.A + 2)})

	builder.extraInstruction(Lua51Instruction{
		Opcode: Op51Call,
		A:      callBase,
		B:      Operand{Value: 3},
		C:      Operand{Value: variableCount + 1},
	})

	for offset := variableCount; offset > 0; offset-- {
		i := offset - 1
		builder.extraInstruction(Lua51Instruction{
			Opcode: Op51Move,
			A:      inst.A + i + 2,
			B:      registerOperand(callBase + i),
		})
	}

	builder.extraInstruction(Lua51Instruction{
		Opcode: Op51Eq,
		A:      0,
		B:      Operand{Value: inst.A + 2},
		C:      Operand{Value: constantNil, IsConstant: true},
	})
	// The JMP instruction immediately following the source TFORLOOP is
	// copied through unchanged by the main loop and retargeted by the
	// builder automatically.
}

// upcastTForPrep handles spec.md §4.7's TFORPREP lowering, bootstrapping
// Lua 5.0's table-iteration convention via explicit type/table/next global
// lookups since Lua 5.1 has no equivalent instruction.
func upcastTForPrep(builder *instructionBuilder, manager *constantManager, inst Lua50Instruction) error {
	ra1, err := manager.createUnique(builder.getProgramCounter())
	if err != nil {
		return err
	}
	ra2, err := manager.createUnique(builder.getProgramCounter() + 1)
	if err != nil {
		return err
	}
	typeConstant, err := manager.constantForStr("type")
	if err != nil {
		return err
	}
	tableConstant, err := manager.constantForStr("table")
	if err != nil {
		return err
	}
	nextConstant, err := manager.constantForStr("next")
	if err != nil {
		return err
	}

	a := inst.A

	builder.appendInstruction(Lua51Instruction{Opcode: Op51SetGlobal, A: a + 1, Bx: ra1})
	builder.extraInstruction(Lua51Instruction{Opcode: Op51SetGlobal, A: a + 2, Bx: ra2})

	builder.extraInstruction(Lua51Instruction{Opcode: Op51GetGlobal, A: a + 1, Bx: typeConstant})
	builder.extraInstruction(Lua51Instruction{Opcode: Op51Move, A: a + 2, B: registerOperand(a)})
	builder.extraInstruction(Lua51Instruction{Opcode: Op51Call, A: a + 1, B: Operand{Value: 2}, C: Operand{Value: 2}})

	builder.extraInstruction(Lua51Instruction{Opcode: Op51LoadK, A: a + 2, Bx: tableConstant})

	builder.extraInstruction(Lua51Instruction{
		Opcode: Op51Eq,
		A:      0,
		B:      Operand{Value: a + 1},
		C:      Operand{Value: a + 2},
	})
	// Literal jump over the two fallback instructions below: the builder
	// must not remap this one, since its destination is already expressed
	// relative to the rewritten stream.
	builder.extraInstruction(Lua51Instruction{Opcode: Op51Jump, A: a, SBx: 2})
	builder.lastInstructionFixed()

	builder.extraInstruction(Lua51Instruction{Opcode: Op51SetGlobal, A: a, Bx: ra1})
	builder.extraInstruction(Lua51Instruction{Opcode: Op51GetGlobal, A: a, Bx: nextConstant})

	builder.extraInstruction(Lua51Instruction{Opcode: Op51GetGlobal, A: a + 1, Bx: ra1})
	builder.extraInstruction(Lua51Instruction{Opcode: Op51GetGlobal, A: a + 2, Bx: ra2})

	builder.extraInstruction(Lua51Instruction{Opcode: Op51Jump, A: a, SBx: inst.SBx})
	return nil
}

// upcastSetList handles spec.md §4.7's SETLIST/SETLISTO re-paging, needed
// whenever the input and output LFIELDS_PER_FLUSH differ.
func upcastSetList(builder *instructionBuilder, inst Lua50Instruction, settings Settings) error {
	a := inst.A
	bx := inst.Bx
	flatIndex := bx + 1
	fpf51 := settings.Lua51.FieldsPerFlush
	page := flatIndex / fpf51
	offsetInPage := flatIndex % fpf51

	b := offsetInPage
	if inst.Opcode == Op50SetListO {
		b = 0
	}

	minFPF := settings.Lua50.FieldsPerFlush
	if fpf51 < minFPF {
		minFPF = fpf51
	}
	if page == 0 && flatIndex <= minFPF {
		builder.appendInstruction(Lua51Instruction{
			Opcode: Op51SetList,
			A:      a,
			B:      Operand{Value: b},
			C:      Operand{Value: 1},
		})
		return nil
	}

	for instructionIndex := builder.getProgramCounter() - 1; instructionIndex >= 0; instructionIndex-- {
		inst := builder.getInstruction(instructionIndex)
		start, _, ok := inst.stackDestination()

		if (ok && start == a) || instructionIndex == 0 {
			if inst.Opcode == Op51SetList {
				offset := int64(inst.B.Value)
				pageSoFar := inst.C.Value

				builder.removeInstruction(instructionIndex)

				for walk := instructionIndex; walk < builder.getProgramCounter(); walk++ {
					walkInst := builder.getInstruction(walk)
					if start, ok := func() (uint64, bool) {
						s, _, ok := walkInst.stackDestination()
						return s, ok
					}(); ok && offset+int64(start)-1 == int64(a+fpf51) {
						builder.insertExtraInstruction(walk, Lua51Instruction{
							Opcode: Op51SetList,
							A:      a,
							B:      Operand{Value: fpf51},
							C:      Operand{Value: pageSoFar},
						})
						offset -= int64(fpf51)
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
		B:      Operand{Value: b},
		C:      Operand{Value: page + 1},
	})
	return nil
}

// prependVariadicPrologue materialises Lua 5.0's implicit "arg" table at
// the start of a variadic function's body, since Lua 5.1 collects varargs
// differently (spec.md §4.7).
func prependVariadicPrologue(builder *instructionBuilder, parameterCount uint64) error {
	argStackPosition := parameterCount

	builder.insertExtraInstruction(0, Lua51Instruction{
		Opcode: Op51NewTable,
		A:      argStackPosition + 1,
	})
	builder.insertExtraInstruction(1, Lua51Instruction{
		Opcode: Op51VarArg,
		A:      argStackPosition + 2,
	})
	builder.insertExtraInstruction(2, Lua51Instruction{
		Opcode: Op51SetList,
		A:      argStackPosition + 1,
		C:      Operand{Value: 1},
	})
	builder.insertExtraInstruction(3, Lua51Instruction{
		Opcode: Op51Move,
		A:      argStackPosition,
		B:      registerOperand(argStackPosition + 1),
	})
	return nil
}
