package lunify

import "encoding/binary"

// Endianness mirrors the single byte a Lua byte-code header uses to record
// the word order it was produced with: 1 means little-endian, 0 means
// big-endian, matching the convention the reference Lua compiler writes.
type Endianness byte

const (
	BigEndian    Endianness = 0
	LittleEndian Endianness = 1
)

func endiannessFromByte(b byte) (Endianness, error) {
	switch b {
	case 0:
		return BigEndian, nil
	case 1:
		return LittleEndian, nil
	default:
		return 0, errByte(ErrInvalidEndianness, b)
	}
}

func (e Endianness) byteOrder() binary.ByteOrder {
	if e == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// Width is the size in bytes of one of the four configurable scalar widths
// a Format carries. Only 4 and 8 are valid.
type Width byte

const (
	Width32 Width = 4
	Width64 Width = 8
)

func widthFromByte(b byte, kind ErrorKind) (Width, error) {
	switch b {
	case 4:
		return Width32, nil
	case 8:
		return Width64, nil
	default:
		return 0, errByte(kind, b)
	}
}

// luaInstructionFormat is the only instruction-format descriptor Lua 5.0
// byte code is accepted with: [opcode=6, A=8, B=9, C=9] bits, the field
// sizes of the default Lua 5.0 instruction layout.
var luaInstructionFormat = [4]byte{6, 8, 9, 9}

// luaMagicNumber is the Lua 5.0 heuristic for detecting whether the host
// compiler represented lua_Number as an integral type: the header embeds
// this exact constant and the reader compares the decoded bits for equality.
// Not re-derived, per spec.md §9.
const luaMagicNumber = 3.14159265358979e7

// Format is the negotiated binary layout of one byte-code stream: how wide
// its integers, size_t's, instruction words and numbers are, which way
// round their bytes go, and whether "number" means integer or float.
type Format struct {
	CompilerFormat    byte
	Endianness        Endianness
	IntegerWidth      Width
	SizeTWidth        Width
	InstructionWidth  Width
	NumberWidth       Width
	IsNumberIntegral  bool
}

// DefaultFormatWithSizeT returns the Lua 5.1 default format: little-endian,
// 4-byte integers and instructions, 8-byte float numbers, and size_t set
// to the given width. Ported from original_source/src/lib.rs's own test
// helper Format::default_with_size_t, used by the CLI's subcommands and by
// round-trip tests that only want to vary size_t.
func DefaultFormatWithSizeT(sizeT Width) Format {
	return Format{
		CompilerFormat:   0,
		Endianness:       LittleEndian,
		IntegerWidth:     Width32,
		SizeTWidth:       sizeT,
		InstructionWidth: Width32,
		NumberWidth:      Width64,
		IsNumberIntegral: false,
	}
}

// formatFromByteStream reads a Format from s. The header shape differs
// between Lua 5.0 and Lua 5.1 per spec.md §4.2 / §6.
func formatFromByteStream(s *byteStream, version byte) (Format, error) {
	var f Format

	if version == 0x51 {
		compilerFormat, err := s.byte()
		if err != nil {
			return f, err
		}
		f.CompilerFormat = compilerFormat
	}

	endiannessByte, err := s.byte()
	if err != nil {
		return f, err
	}
	if f.Endianness, err = endiannessFromByte(endiannessByte); err != nil {
		return f, err
	}

	intByte, err := s.byte()
	if err != nil {
		return f, err
	}
	if f.IntegerWidth, err = widthFromByte(intByte, ErrUnsupportedIntegerWidth); err != nil {
		return f, err
	}

	sizeTByte, err := s.byte()
	if err != nil {
		return f, err
	}
	if f.SizeTWidth, err = widthFromByte(sizeTByte, ErrUnsupportedSizeTWidth); err != nil {
		return f, err
	}

	instructionByte, err := s.byte()
	if err != nil {
		return f, err
	}
	if f.InstructionWidth, err = widthFromByte(instructionByte, ErrUnsupportedInstructionWidth); err != nil {
		return f, err
	}

	if version == 0x50 {
		var descriptor [4]byte
		raw, err := s.slice(4)
		if err != nil {
			return f, err
		}
		copy(descriptor[:], raw)
		if descriptor != luaInstructionFormat {
			return f, errFormat(descriptor)
		}
	}

	numberByte, err := s.byte()
	if err != nil {
		return f, err
	}
	if f.NumberWidth, err = widthFromByte(numberByte, ErrUnsupportedNumberWidth); err != nil {
		return f, err
	}

	if version == 0x51 {
		integralByte, err := s.byte()
		if err != nil {
			return f, err
		}
		f.IsNumberIntegral = integralByte != 0
	} else {
		// Lua 5.0 has no explicit flag: it writes a known magic float and we
		// infer integral-ness from whether the bits decode back to it.
		s.setFormat(f)
		magic, err := s.number(f)
		if err != nil {
			return f, err
		}
		value, _ := magic.asFloat()
		f.IsNumberIntegral = value != luaMagicNumber
	}

	return f, nil
}

func (f Format) write(w *byteWriter) {
	w.byte(f.CompilerFormat)
	w.byte(byte(f.Endianness))
	w.byte(byte(f.IntegerWidth))
	w.byte(byte(f.SizeTWidth))
	w.byte(byte(f.InstructionWidth))
	w.byte(byte(f.NumberWidth))
	if f.IsNumberIntegral {
		w.byte(1)
	} else {
		w.byte(0)
	}
}
