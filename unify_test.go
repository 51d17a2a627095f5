package lunify

import (
	"bytes"
	"testing"
)

// buildEmptyLua51Chunk hand-assembles a complete, minimal Lua 5.1 chunk
// (signature, version, format header, one parameterless non-variadic
// function with no body) under the given format, without going through
// the writer — so scenario 1 in spec.md §8 has an independent oracle for
// "bytes in == bytes out".
func buildEmptyLua51Chunk(f Format) []byte {
	var buf bytes.Buffer
	buf.Write(luaSignature[:])
	buf.WriteByte(0x51)
	buf.WriteByte(f.CompilerFormat)
	buf.WriteByte(byte(f.Endianness))
	buf.WriteByte(byte(f.IntegerWidth))
	buf.WriteByte(byte(f.SizeTWidth))
	buf.WriteByte(byte(f.InstructionWidth))
	buf.WriteByte(byte(f.NumberWidth))
	if f.IsNumberIntegral {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	writeSizeT := func(v uint64) {
		if f.SizeTWidth == Width64 {
			var b [8]byte
			putWidthBytes(b[:], v, f.Endianness)
			buf.Write(b[:])
			return
		}
		var b [4]byte
		putWidthBytes(b[:], v, f.Endianness)
		buf.Write(b[:])
	}
	writeInt := func(v uint64) {
		if f.IntegerWidth == Width64 {
			var b [8]byte
			putWidthBytes(b[:], v, f.Endianness)
			buf.Write(b[:])
			return
		}
		var b [4]byte
		putWidthBytes(b[:], v, f.Endianness)
		buf.Write(b[:])
	}

	writeSizeT(0) // source name: empty string
	writeInt(0)   // line_defined
	writeInt(0)   // last_line_defined
	buf.WriteByte(0) // upvalue_count
	buf.WriteByte(0) // parameter_count
	buf.WriteByte(0) // is_variadic
	buf.WriteByte(2) // max_stack_size
	writeInt(0)      // instruction count
	writeInt(0)      // constant count
	writeInt(0)      // sub-function count
	writeInt(0)      // line_info count
	writeInt(0)      // locals count
	// no upvalue names: upvalue_count is 0

	return buf.Bytes()
}

func putWidthBytes(dst []byte, v uint64, e Endianness) {
	order := e.byteOrder()
	if len(dst) == 8 {
		order.PutUint64(dst, v)
		return
	}
	order.PutUint32(dst, uint32(v))
}

// TestUnifySameFormatPassThrough matches spec.md §8 scenario 1: a Lua 5.1
// chunk whose format already equals the requested output format is
// returned unchanged, byte for byte.
func TestUnifySameFormatPassThrough(t *testing.T) {
	format := DefaultFormatWithSizeT(Width32)
	input := buildEmptyLua51Chunk(format)

	out, err := Unify(input, format, DefaultSettings())
	if err != nil {
		t.Fatalf("Unify: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Errorf("Unify(same format) changed the bytes:\n got  %x\n want %x", out, input)
	}
}

// TestUnifyForcedRewriteIsIdempotent checks the same input through the
// internal forced-rewrite path (spec.md §8's idempotence property):
// rewriting a Lua 5.1 chunk to its own format must reproduce the same
// bytes even when the rewrite machinery actually runs instead of taking
// the fast path.
func TestUnifyForcedRewriteIsIdempotent(t *testing.T) {
	format := DefaultFormatWithSizeT(Width32)
	input := buildEmptyLua51Chunk(format)

	out, err := unify(input, format, DefaultSettings(), true)
	if err != nil {
		t.Fatalf("unify(forceRewrite): %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Errorf("forced rewrite changed the bytes:\n got  %x\n want %x", out, input)
	}
}

// TestUnifyWidthUpgrade matches spec.md §8 scenario 2: widening size_t
// from 32 to 64 bits grows every length-prefixed string field from 4 to 8
// bytes while leaving the string payloads themselves unchanged.
func TestUnifyWidthUpgrade(t *testing.T) {
	inputFormat := DefaultFormatWithSizeT(Width32)
	outputFormat := DefaultFormatWithSizeT(Width64)
	input := buildEmptyLua51Chunk(inputFormat)

	out, err := Unify(input, outputFormat, DefaultSettings())
	if err != nil {
		t.Fatalf("Unify: %v", err)
	}

	s := newByteStream(out)
	if err := s.removeSignature(luaSignature[:]); err != nil {
		t.Fatalf("output signature: %v", err)
	}
	version, err := s.byte()
	if err != nil || version != 0x51 {
		t.Fatalf("output version = %d, err = %v", version, err)
	}
	gotFormat, err := formatFromByteStream(s, 0x51)
	if err != nil {
		t.Fatalf("output format: %v", err)
	}
	if gotFormat.SizeTWidth != Width64 {
		t.Errorf("output SizeTWidth = %v, want Width64", gotFormat.SizeTWidth)
	}
	if err := s.setFormat(gotFormat); err != nil {
		t.Fatal(err)
	}
	root, err := parseFunction(s, 0x51, DefaultSettings())
	if err != nil {
		t.Fatalf("parseFunction on round-tripped output: %v", err)
	}
	if root.Source != "" {
		t.Errorf("Source = %q, want empty", root.Source)
	}
	if !s.isEmpty() {
		t.Error("expected output stream fully consumed")
	}
}

// TestUnifyIncorrectSignature checks the header-signature guard.
func TestUnifyIncorrectSignature(t *testing.T) {
	input := []byte{0, 0, 0, 0, 0x51}
	_, err := Unify(input, DefaultFormatWithSizeT(Width32), DefaultSettings())
	lerr, ok := err.(*Error)
	if !ok || lerr.Kind != ErrIncorrectSignature {
		t.Fatalf("want IncorrectSignature, got %#v", err)
	}
}

// TestUnifyUnsupportedVersion checks the version-byte guard.
func TestUnifyUnsupportedVersion(t *testing.T) {
	input := append(append([]byte{}, luaSignature[:]...), 0x52)
	_, err := Unify(input, DefaultFormatWithSizeT(Width32), DefaultSettings())
	lerr, ok := err.(*Error)
	if !ok || lerr.Kind != ErrUnsupportedVersion || lerr.Byte != 0x52 {
		t.Fatalf("want UnsupportedVersion(0x52), got %#v", err)
	}
}

// TestUnifyInputTooLong matches spec.md §4.9 step 5: trailing garbage
// after a fully parsed root prototype is rejected.
func TestUnifyInputTooLong(t *testing.T) {
	format := DefaultFormatWithSizeT(Width32)
	input := buildEmptyLua51Chunk(format)
	input = append(input, 0xFF, 0xFF, 0xFF)

	_, err := unify(input, format, DefaultSettings(), true)
	lerr, ok := err.(*Error)
	if !ok || lerr.Kind != ErrInputTooLong {
		t.Fatalf("want InputTooLong, got %#v", err)
	}
}
