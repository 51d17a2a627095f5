package lunify

// byteStream is a positional cursor over an immutable byte slice, the Go
// analogue of the teacher's loadState (undump.go) generalized to a
// configurable, run-time-chosen Format instead of a single fixed layout.
// Unlike loadState it does not read from an io.Reader: widths can change
// mid-parse (the header itself is read before the Format it describes is
// known), so a plain slice cursor is simpler than layering on
// encoding/binary's Read over a stream.
type byteStream struct {
	data   []byte
	pos    int
	format Format
}

func newByteStream(data []byte) *byteStream {
	return &byteStream{data: data}
}

func (s *byteStream) setFormat(f Format) error {
	s.format = f
	return nil
}

func (s *byteStream) isEmpty() bool {
	return s.pos >= len(s.data)
}

func (s *byteStream) byte() (byte, error) {
	if s.pos >= len(s.data) {
		return 0, errKind(ErrInputTooShort)
	}
	b := s.data[s.pos]
	s.pos++
	return b, nil
}

func (s *byteStream) slice(n int) ([]byte, error) {
	if s.pos+n > len(s.data) {
		return nil, errKind(ErrInputTooShort)
	}
	b := s.data[s.pos : s.pos+n]
	s.pos += n
	return b, nil
}

// removeSignature consumes exactly len(prefix) bytes and requires them to
// equal prefix, failing IncorrectSignature otherwise.
func (s *byteStream) removeSignature(prefix []byte) error {
	got, err := s.slice(len(prefix))
	if err != nil {
		return errKind(ErrIncorrectSignature)
	}
	for i := range prefix {
		if got[i] != prefix[i] {
			return errKind(ErrIncorrectSignature)
		}
	}
	return nil
}

// removeAnySignature consumes the next 4 bytes once and accepts them if
// they match any of the given candidate signatures, failing
// IncorrectSignature only if none of them do (spec.md §4.9 step 1: "try
// each configured candidate").
func (s *byteStream) removeAnySignature(candidates ...[4]byte) error {
	got, err := s.slice(4)
	if err != nil {
		return errKind(ErrIncorrectSignature)
	}
	for _, candidate := range candidates {
		if got[0] == candidate[0] && got[1] == candidate[1] && got[2] == candidate[2] && got[3] == candidate[3] {
			return nil
		}
	}
	return errKind(ErrIncorrectSignature)
}

func (s *byteStream) readWidth(width Width) (uint64, error) {
	raw, err := s.slice(int(width))
	if err != nil {
		return 0, err
	}
	order := s.format.Endianness.byteOrder()
	if width == Width64 {
		return order.Uint64(raw), nil
	}
	return uint64(order.Uint32(raw)), nil
}

// integer reads a signed, sign-extended integer of the format's integer
// width.
func (s *byteStream) integer() (int64, error) {
	raw, err := s.readWidth(s.format.IntegerWidth)
	if err != nil {
		return 0, err
	}
	if s.format.IntegerWidth == Width32 {
		return int64(int32(raw)), nil
	}
	return int64(raw), nil
}

// sizeT reads an unsigned value of the format's size_t width.
func (s *byteStream) sizeT() (uint64, error) {
	return s.readWidth(s.format.SizeTWidth)
}

// instructionWord reads one unsigned instruction word.
func (s *byteStream) instructionWord() (uint64, error) {
	return s.readWidth(s.format.InstructionWidth)
}

// number reads a number (integer or float, per the given format's
// IsNumberIntegral) of the format's number width.
func (s *byteStream) number(f Format) (number, error) {
	raw, err := s.readWidth(f.NumberWidth)
	if err != nil {
		return number{}, err
	}
	if f.IsNumberIntegral {
		if f.NumberWidth == Width32 {
			return integerNumber(int64(int32(raw))), nil
		}
		return integerNumber(int64(raw)), nil
	}
	if f.NumberWidth == Width32 {
		return floatNumber(float64(rawToFloat32(uint32(raw)))), nil
	}
	return floatNumber(rawToFloat64(raw)), nil
}

// str reads a size_t-length-prefixed byte string. Lua strings carry a
// trailing NUL and the length includes it; a length of zero means "no
// string" (nil), matching the teacher's readString convention in
// undump.go.
func (s *byteStream) str() (string, error) {
	size, err := s.sizeT()
	if err != nil {
		return "", err
	}
	if size == 0 {
		return "", nil
	}
	raw, err := s.slice(int(size))
	if err != nil {
		return "", err
	}
	return string(raw[:len(raw)-1]), nil
}
