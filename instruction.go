package lunify

// Lua50Opcode enumerates the Lua 5.0 instruction set (spec.md §4.4): the
// Lua 5.1 set minus Mod, Length, TestSet, ForPrep, VarArg, plus the two
// Lua-5.0-only instructions TForPrep and SetListO.
type Lua50Opcode byte

const (
	Op50Move Lua50Opcode = iota
	Op50LoadK
	Op50LoadBool
	Op50LoadNil
	Op50GetUpValue
	Op50GetGlobal
	Op50GetTable
	Op50SetGlobal
	Op50SetUpValue
	Op50SetTable
	Op50NewTable
	Op50Self
	Op50Add
	Op50Sub
	Op50Mul
	Op50Div
	Op50Pow
	Op50Unary
	Op50Not
	Op50Concat
	Op50Jump
	Op50Eq
	Op50LT
	Op50LE
	Op50Test
	Op50Call
	Op50TailCall
	Op50Return
	Op50ForLoop
	Op50TForLoop
	Op50TForPrep
	Op50SetList
	Op50SetListO
	Op50Close
	Op50Closure
	lua50OpcodeCount
)

// Lua51Opcode enumerates the full Lua 5.1 instruction set (spec.md §4.4),
// the target of every upcast and the only set the converter and builder
// operate on.
type Lua51Opcode byte

const (
	Op51Move Lua51Opcode = iota
	Op51LoadK
	Op51LoadBool
	Op51LoadNil
	Op51GetUpValue
	Op51GetGlobal
	Op51GetTable
	Op51SetGlobal
	Op51SetUpValue
	Op51SetTable
	Op51NewTable
	Op51Self
	Op51Add
	Op51Sub
	Op51Mul
	Op51Div
	Op51Mod
	Op51Pow
	Op51Unary
	Op51Not
	Op51Length
	Op51Concat
	Op51Jump
	Op51Eq
	Op51LT
	Op51LE
	Op51Test
	Op51TestSet
	Op51Call
	Op51TailCall
	Op51Return
	Op51ForLoop
	Op51ForPrep
	Op51TForLoop
	Op51SetList
	Op51Close
	Op51Closure
	Op51VarArg
	lua51OpcodeCount
)

type opcodeShape int

const (
	shapeBC opcodeShape = iota
	shapeBx
	shapeSBx
)

type fieldKind int

const (
	fieldNone fieldKind = iota
	fieldValue
	fieldRegister
	fieldRK
)

type opcodeInfo struct {
	shape opcodeShape
	bKind fieldKind
	cKind fieldKind
}

var lua51OpcodeInfo = [lua51OpcodeCount]opcodeInfo{
	Op51Move:       {shapeBC, fieldRegister, fieldNone},
	Op51LoadK:      {shapeBx, fieldNone, fieldNone},
	Op51LoadBool:   {shapeBC, fieldValue, fieldValue},
	Op51LoadNil:    {shapeBC, fieldRegister, fieldNone},
	Op51GetUpValue: {shapeBC, fieldValue, fieldNone},
	Op51GetGlobal:  {shapeBx, fieldNone, fieldNone},
	Op51GetTable:   {shapeBC, fieldRegister, fieldRK},
	Op51SetGlobal:  {shapeBx, fieldNone, fieldNone},
	Op51SetUpValue: {shapeBC, fieldValue, fieldNone},
	Op51SetTable:   {shapeBC, fieldRK, fieldRK},
	Op51NewTable:   {shapeBC, fieldValue, fieldValue},
	Op51Self:       {shapeBC, fieldRegister, fieldRK},
	Op51Add:        {shapeBC, fieldRK, fieldRK},
	Op51Sub:        {shapeBC, fieldRK, fieldRK},
	Op51Mul:        {shapeBC, fieldRK, fieldRK},
	Op51Div:        {shapeBC, fieldRK, fieldRK},
	Op51Mod:        {shapeBC, fieldRK, fieldRK},
	Op51Pow:        {shapeBC, fieldRK, fieldRK},
	Op51Unary:      {shapeBC, fieldRegister, fieldNone},
	Op51Not:        {shapeBC, fieldRegister, fieldNone},
	Op51Length:     {shapeBC, fieldRegister, fieldNone},
	Op51Concat:     {shapeBC, fieldRegister, fieldRegister},
	Op51Jump:       {shapeSBx, fieldNone, fieldNone},
	Op51Eq:         {shapeBC, fieldRK, fieldRK},
	Op51LT:         {shapeBC, fieldRK, fieldRK},
	Op51LE:         {shapeBC, fieldRK, fieldRK},
	Op51Test:       {shapeBC, fieldNone, fieldValue},
	Op51TestSet:    {shapeBC, fieldRegister, fieldValue},
	Op51Call:       {shapeBC, fieldValue, fieldValue},
	Op51TailCall:   {shapeBC, fieldValue, fieldValue},
	Op51Return:     {shapeBC, fieldValue, fieldNone},
	Op51ForLoop:    {shapeSBx, fieldNone, fieldNone},
	Op51ForPrep:    {shapeSBx, fieldNone, fieldNone},
	Op51TForLoop:   {shapeBC, fieldNone, fieldValue},
	Op51SetList:    {shapeBC, fieldValue, fieldValue},
	Op51Close:      {shapeBC, fieldNone, fieldNone},
	Op51Closure:    {shapeBx, fieldNone, fieldNone},
	Op51VarArg:     {shapeBC, fieldValue, fieldNone},
}

var lua50OpcodeInfo = [lua50OpcodeCount]opcodeInfo{
	Op50Move:       {shapeBC, fieldRegister, fieldNone},
	Op50LoadK:      {shapeBx, fieldNone, fieldNone},
	Op50LoadBool:   {shapeBC, fieldValue, fieldValue},
	Op50LoadNil:    {shapeBC, fieldValue, fieldNone},
	Op50GetUpValue: {shapeBC, fieldValue, fieldNone},
	Op50GetGlobal:  {shapeBx, fieldNone, fieldNone},
	Op50GetTable:   {shapeBC, fieldRegister, fieldRK},
	Op50SetGlobal:  {shapeBx, fieldNone, fieldNone},
	Op50SetUpValue: {shapeBC, fieldValue, fieldNone},
	Op50SetTable:   {shapeBC, fieldRK, fieldRK},
	Op50NewTable:   {shapeBC, fieldValue, fieldValue},
	Op50Self:       {shapeBC, fieldRegister, fieldRK},
	Op50Add:        {shapeBC, fieldRK, fieldRK},
	Op50Sub:        {shapeBC, fieldRK, fieldRK},
	Op50Mul:        {shapeBC, fieldRK, fieldRK},
	Op50Div:        {shapeBC, fieldRK, fieldRK},
	Op50Pow:        {shapeBC, fieldRK, fieldRK},
	Op50Unary:      {shapeBC, fieldRegister, fieldNone},
	Op50Not:        {shapeBC, fieldRegister, fieldNone},
	Op50Concat:     {shapeBC, fieldValue, fieldValue},
	Op50Jump:       {shapeSBx, fieldNone, fieldNone},
	Op50Eq:         {shapeBC, fieldRK, fieldRK},
	Op50LT:         {shapeBC, fieldRK, fieldRK},
	Op50LE:         {shapeBC, fieldRK, fieldRK},
	Op50Test:       {shapeBC, fieldRegister, fieldValue},
	Op50Call:       {shapeBC, fieldValue, fieldValue},
	Op50TailCall:   {shapeBC, fieldValue, fieldValue},
	Op50Return:     {shapeBC, fieldValue, fieldNone},
	Op50ForLoop:    {shapeSBx, fieldNone, fieldNone},
	Op50TForLoop:   {shapeBC, fieldNone, fieldValue},
	Op50TForPrep:   {shapeSBx, fieldNone, fieldNone},
	Op50SetList:    {shapeBx, fieldNone, fieldNone},
	Op50SetListO:   {shapeBx, fieldNone, fieldNone},
	Op50Close:      {shapeBC, fieldNone, fieldNone},
	Op50Closure:    {shapeBx, fieldNone, fieldNone},
}

// Lua51Instruction is one decoded (or rewriter-synthesized) Lua 5.1
// instruction. Which of B/C/Bx/SBx is meaningful is determined by Opcode,
// per lua51OpcodeInfo.
type Lua51Instruction struct {
	Opcode Lua51Opcode
	A      uint64
	B      Operand
	C      Operand
	Bx     uint64
	SBx    int64
}

// Lua50Instruction is one decoded Lua 5.0 instruction, read-only input to
// the upcaster.
type Lua50Instruction struct {
	Opcode Lua50Opcode
	A      uint64
	B      Operand
	C      Operand
	Bx     uint64
	SBx    int64
}

func decodeField(kind fieldKind, raw uint64, version byte, settings Settings, layout InstructionLayout) Operand {
	switch kind {
	case fieldRK:
		if version == 0x50 {
			return decodeConstantRegister50(raw, settings.Lua50.StackLimit)
		}
		return decodeConstantRegister51(raw, layout.constantBit())
	default:
		return registerOperand(raw)
	}
}

// decodeLua50Instruction unpacks one raw instruction word of a Lua 5.0
// byte-code stream.
func decodeLua50Instruction(word uint64, settings Settings) (Lua50Instruction, error) {
	layout := settings.Lua50.Layout
	opcode := Lua50Opcode(layout.getOpcode(word))
	if opcode >= lua50OpcodeCount {
		return Lua50Instruction{}, errValue(ErrInvalidOpcode, uint64(opcode))
	}
	info := lua50OpcodeInfo[opcode]
	inst := Lua50Instruction{Opcode: opcode, A: layout.getA(word)}

	switch info.shape {
	case shapeBx:
		inst.Bx = layout.getBx(word)
	case shapeSBx:
		inst.SBx = layout.getSignedBx(word)
	default:
		inst.B = decodeField(info.bKind, layout.getB(word), 0x50, settings, layout)
		inst.C = decodeField(info.cKind, layout.getC(word), 0x50, settings, layout)
	}
	return inst, nil
}

// decodeLua51Instruction unpacks one raw instruction word of a Lua 5.1
// byte-code stream (used when the input is already 5.1, for the
// converter).
func decodeLua51Instruction(word uint64, settings Settings) (Lua51Instruction, error) {
	layout := settings.Lua51.Layout
	opcode := Lua51Opcode(layout.getOpcode(word))
	if opcode >= lua51OpcodeCount {
		return Lua51Instruction{}, errValue(ErrInvalidOpcode, uint64(opcode))
	}
	info := lua51OpcodeInfo[opcode]
	inst := Lua51Instruction{Opcode: opcode, A: layout.getA(word)}

	switch info.shape {
	case shapeBx:
		inst.Bx = layout.getBx(word)
	case shapeSBx:
		inst.SBx = layout.getSignedBx(word)
	default:
		inst.B = decodeField(info.bKind, layout.getB(word), 0x51, settings, layout)
		inst.C = decodeField(info.cKind, layout.getC(word), 0x51, settings, layout)
	}
	return inst, nil
}

// encode packs a Lua51Instruction back into a raw word under the given
// output layout.
func (i Lua51Instruction) encode(layout InstructionLayout) (uint64, error) {
	if i.Opcode >= lua51OpcodeCount {
		return 0, errValue(ErrInvalidOpcode, uint64(i.Opcode))
	}
	info := lua51OpcodeInfo[i.Opcode]

	word, err := layout.putOpcode(0, uint64(i.Opcode))
	if err != nil {
		return 0, err
	}
	aBits, err := layout.putA(0, i.A)
	if err != nil {
		return 0, err
	}
	word |= aBits

	switch info.shape {
	case shapeBx:
		bits, err := layout.putBx(0, i.Bx)
		if err != nil {
			return 0, err
		}
		word |= bits
	case shapeSBx:
		bits, err := layout.putSignedBx(0, i.SBx)
		if err != nil {
			return 0, err
		}
		word |= bits
	default:
		bValue, err := i.B.encode(layout)
		if err != nil {
			return 0, err
		}
		bBits, err := layout.putB(0, bValue)
		if err != nil {
			return 0, err
		}
		cValue, err := i.C.encode(layout)
		if err != nil {
			return 0, err
		}
		cBits, err := layout.putC(0, cValue)
		if err != nil {
			return 0, err
		}
		word |= bBits | cBits
	}
	return word, nil
}

// stackDestination returns the inclusive range of stack slots this
// instruction writes, or ok=false if it writes none. Used by the builder
// to grow maximum_stack_size and by the upcaster's SetList repaging to
// locate the start of a table's setup instructions (spec.md §4.6, §4.7).
func (i Lua51Instruction) stackDestination() (start, end uint64, ok bool) {
	switch i.Opcode {
	case Op51LoadNil:
		// LOADNIL A B clears R(A)..R(B) inclusive; B is an absolute
		// register index, not a count.
		return i.A, i.B.Value, true
	case Op51Call, Op51TailCall:
		if i.C.Value == 0 {
			return i.A, i.A, true
		}
		return i.A, i.A + i.C.Value - 2, true
	case Op51TForLoop:
		return i.A + 2, i.A + 2 + i.C.Value, true
	case Op51VarArg:
		if i.B.Value == 0 {
			return i.A, i.A, true
		}
		return i.A, i.A + i.B.Value - 2, true
	case Op51Self:
		// SELF A B C writes R(A) and R(A+1).
		return i.A, i.A + 1, true
	case Op51ForLoop:
		return i.A, i.A + 3, true
	case Op51ForPrep:
		return i.A, i.A + 2, true
	case Op51Move, Op51LoadK, Op51LoadBool, Op51GetUpValue, Op51GetGlobal,
		Op51GetTable, Op51SetTable, Op51NewTable, Op51Add, Op51Sub, Op51Mul,
		Op51Div, Op51Mod, Op51Pow, Op51Unary, Op51Not, Op51Length, Op51Concat,
		Op51TestSet, Op51Closure, Op51SetList:
		return i.A, i.A, true
	default:
		return 0, 0, false
	}
}

// moveStackAccesses shifts every register-kind operand of this instruction
// that refers to a stack slot at or above stackStart by delta, in place.
// Mirrors lua51::Instruction::move_stack_accesses.
func (i *Lua51Instruction) moveStackAccesses(stackStart uint64, delta int64) {
	if i.A >= stackStart {
		i.A = uint64(int64(i.A) + delta)
	}
	info := lua51OpcodeInfo[i.Opcode]
	if info.bKind == fieldRegister || info.bKind == fieldRK {
		i.B = i.B.offset(stackStart, delta)
	}
	if info.cKind == fieldRegister || info.cKind == fieldRK {
		i.C = i.C.offset(stackStart, delta)
	}
}
