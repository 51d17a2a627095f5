package lunify

// LocalVariable is a (name, start_pc, end_pc) debug-info entry, preserved
// verbatim across rewrites (spec.md §3).
type LocalVariable struct {
	Name    string
	StartPC int64
	EndPC   int64
}

// Function is a parsed (and, for Lua 5.0 input, already-upcast) function
// prototype: spec.md §3's "Function prototype" in full.
type Function struct {
	Source          string
	LineDefined     int64
	LastLineDefined int64
	ParameterCount  uint64
	IsVariadic      uint64
	MaxStackSize    byte
	Instructions    []Lua51Instruction
	Constants       []Constant
	Prototypes      []*Function
	LineInfo        []int64
	Locals          []LocalVariable
	UpvalueNames    []string
}

func readCountPrefixed(s *byteStream) (int64, error) {
	return s.integer()
}

func readInstructionsLua50(s *byteStream, settings Settings) ([]Lua50Instruction, error) {
	n, err := readCountPrefixed(s)
	if err != nil {
		return nil, err
	}
	instructions := make([]Lua50Instruction, n)
	for i := range instructions {
		word, err := s.instructionWord()
		if err != nil {
			return nil, err
		}
		if instructions[i], err = decodeLua50Instruction(word, settings); err != nil {
			return nil, err
		}
	}
	return instructions, nil
}

func readInstructionsLua51(s *byteStream, settings Settings) ([]Lua51Instruction, error) {
	n, err := readCountPrefixed(s)
	if err != nil {
		return nil, err
	}
	instructions := make([]Lua51Instruction, n)
	for i := range instructions {
		word, err := s.instructionWord()
		if err != nil {
			return nil, err
		}
		if instructions[i], err = decodeLua51Instruction(word, settings); err != nil {
			return nil, err
		}
	}
	return instructions, nil
}

func readConstants(s *byteStream) ([]Constant, error) {
	n, err := readCountPrefixed(s)
	if err != nil {
		return nil, err
	}
	constants := make([]Constant, n)
	for i := range constants {
		tag, err := s.byte()
		if err != nil {
			return nil, err
		}
		switch tag {
		case 0:
			constants[i] = nilConstant()
		case 1:
			b, err := s.byte()
			if err != nil {
				return nil, err
			}
			constants[i] = boolConstant(b != 0)
		case 3:
			n, err := s.number(s.format)
			if err != nil {
				return nil, err
			}
			constants[i] = numberConstant(n)
		case 4:
			str, err := s.str()
			if err != nil {
				return nil, err
			}
			constants[i] = stringConstant(str)
		default:
			return nil, errByte(ErrInvalidConstantType, tag)
		}
	}
	return constants, nil
}

func readSubfunctions(s *byteStream, version byte, settings Settings) ([]*Function, error) {
	n, err := readCountPrefixed(s)
	if err != nil {
		return nil, err
	}
	prototypes := make([]*Function, n)
	for i := range prototypes {
		if prototypes[i], err = parseFunction(s, version, settings); err != nil {
			return nil, err
		}
	}
	return prototypes, nil
}

func readLineInfo(s *byteStream) ([]int64, error) {
	n, err := readCountPrefixed(s)
	if err != nil {
		return nil, err
	}
	lineInfo := make([]int64, n)
	for i := range lineInfo {
		if lineInfo[i], err = s.integer(); err != nil {
			return nil, err
		}
	}
	return lineInfo, nil
}

func readLocals(s *byteStream) ([]LocalVariable, error) {
	n, err := readCountPrefixed(s)
	if err != nil {
		return nil, err
	}
	locals := make([]LocalVariable, n)
	for i := range locals {
		if locals[i].Name, err = s.str(); err != nil {
			return nil, err
		}
		if locals[i].StartPC, err = s.integer(); err != nil {
			return nil, err
		}
		if locals[i].EndPC, err = s.integer(); err != nil {
			return nil, err
		}
	}
	return locals, nil
}

func readUpvalueNames(s *byteStream, count uint64) ([]string, error) {
	names := make([]string, count)
	var err error
	for i := range names {
		if names[i], err = s.str(); err != nil {
			return nil, err
		}
	}
	return names, nil
}

// parseFunction reads one function prototype, in the field order spec.md
// §6 prescribes for the stream's version, upcasting Lua 5.0 instructions to
// Lua 5.1 on the way in.
func parseFunction(s *byteStream, version byte, settings Settings) (*Function, error) {
	f := &Function{}
	var err error

	if f.Source, err = s.str(); err != nil {
		return nil, err
	}
	if f.LineDefined, err = s.integer(); err != nil {
		return nil, err
	}
	if version == 0x51 {
		if f.LastLineDefined, err = s.integer(); err != nil {
			return nil, err
		}
	} else {
		f.LastLineDefined = f.LineDefined
	}

	upvalueCountByte, err := s.byte()
	if err != nil {
		return nil, err
	}
	upvalueCount := uint64(upvalueCountByte)

	parameterCountByte, err := s.byte()
	if err != nil {
		return nil, err
	}
	f.ParameterCount = uint64(parameterCountByte)

	isVariadicByte, err := s.byte()
	if err != nil {
		return nil, err
	}
	f.IsVariadic = uint64(isVariadicByte)

	maxStackSizeByte, err := s.byte()
	if err != nil {
		return nil, err
	}
	f.MaxStackSize = maxStackSizeByte

	if version == 0x51 {
		if f.Instructions, err = readInstructionsLua51(s, settings); err != nil {
			return nil, err
		}
		if f.Constants, err = readConstants(s); err != nil {
			return nil, err
		}
		if f.Prototypes, err = readSubfunctions(s, version, settings); err != nil {
			return nil, err
		}
		if f.LineInfo, err = readLineInfo(s); err != nil {
			return nil, err
		}
		if f.Locals, err = readLocals(s); err != nil {
			return nil, err
		}
		if f.UpvalueNames, err = readUpvalueNames(s, upvalueCount); err != nil {
			return nil, err
		}
		return f, nil
	}

	if f.LineInfo, err = readLineInfo(s); err != nil {
		return nil, err
	}
	if f.Locals, err = readLocals(s); err != nil {
		return nil, err
	}
	if f.UpvalueNames, err = readUpvalueNames(s, upvalueCount); err != nil {
		return nil, err
	}
	if f.Constants, err = readConstants(s); err != nil {
		return nil, err
	}
	if f.Prototypes, err = readSubfunctions(s, version, settings); err != nil {
		return nil, err
	}
	lua50Instructions, err := readInstructionsLua50(s, settings)
	if err != nil {
		return nil, err
	}

	isVariadic := f.IsVariadic != 0
	f.Instructions, f.LineInfo, err = upcast(lua50Instructions, f.LineInfo, &f.Constants, &f.MaxStackSize, f.ParameterCount, isVariadic, settings)
	if err != nil {
		return nil, err
	}
	if isVariadic {
		f.IsVariadic |= 2
	}
	return f, nil
}

// write serializes f in Lua 5.1 field order, the only order the writer
// ever produces (spec.md §6).
func (f *Function) write(w *byteWriter, settings Settings) error {
	w.str(f.Source)
	w.integer(f.LineDefined)
	w.integer(f.LastLineDefined)
	w.byte(byte(len(f.UpvalueNames)))
	w.byte(byte(f.ParameterCount))
	w.byte(byte(f.IsVariadic))
	w.byte(f.MaxStackSize)

	w.integer(int64(len(f.Instructions)))
	for _, inst := range f.Instructions {
		word, err := inst.encode(settings.Lua51.Layout)
		if err != nil {
			return err
		}
		w.instructionWord(word)
	}

	w.integer(int64(len(f.Constants)))
	for _, c := range f.Constants {
		if err := writeConstant(w, c); err != nil {
			return err
		}
	}

	w.integer(int64(len(f.Prototypes)))
	for _, p := range f.Prototypes {
		if err := p.write(w, settings); err != nil {
			return err
		}
	}

	w.integer(int64(len(f.LineInfo)))
	for _, l := range f.LineInfo {
		w.integer(l)
	}

	w.integer(int64(len(f.Locals)))
	for _, l := range f.Locals {
		w.str(l.Name)
		w.integer(l.StartPC)
		w.integer(l.EndPC)
	}

	for _, name := range f.UpvalueNames {
		w.str(name)
	}

	return nil
}

func writeConstant(w *byteWriter, c Constant) error {
	switch {
	case c.isNil:
		w.byte(0)
	case c.isBool:
		w.byte(1)
		if c.boolean {
			w.byte(1)
		} else {
			w.byte(0)
		}
	case c.isNumber:
		w.byte(3)
		return w.number(c.num)
	case c.isString:
		w.byte(4)
		w.str(c.str)
	}
	return nil
}
