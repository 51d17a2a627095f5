package lunify

// byteWriter is the dual of byteStream: an append-only buffer that encodes
// every scalar according to its configured Format, the Go analogue of the
// teacher's dumpState (dump.go) generalized the same way byteStream is.
type byteWriter struct {
	buf    []byte
	format Format
}

func newByteWriter(format Format) *byteWriter {
	return &byteWriter{format: format}
}

func (w *byteWriter) finalize() []byte {
	return w.buf
}

func (w *byteWriter) byte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *byteWriter) slice(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *byteWriter) writeWidth(value uint64, width Width) {
	order := w.format.Endianness.byteOrder()
	if width == Width64 {
		var b [8]byte
		order.PutUint64(b[:], value)
		w.slice(b[:])
		return
	}
	var b [4]byte
	order.PutUint32(b[:], uint32(value))
	w.slice(b[:])
}

func (w *byteWriter) integer(i int64) {
	w.writeWidth(uint64(i), w.format.IntegerWidth)
}

func (w *byteWriter) sizeT(v uint64) {
	w.writeWidth(v, w.format.SizeTWidth)
}

func (w *byteWriter) instructionWord(v uint64) {
	w.writeWidth(v, w.format.InstructionWidth)
}

// number writes n according to the writer's format, failing
// IntegerOverflow or FloatPrecisionLoss if n's representation does not fit.
func (w *byteWriter) number(n number) error {
	if w.format.IsNumberIntegral {
		i, ok := n.asInteger()
		if !ok {
			return errKind(ErrFloatPrecisionLoss)
		}
		if w.format.NumberWidth == Width32 && (i > math32Max || i < math32Min) {
			return errKind(ErrIntegerOverflow)
		}
		w.writeWidth(uint64(i), w.format.NumberWidth)
		return nil
	}

	f, ok := n.asFloat()
	if !ok {
		return errKind(ErrIntegerOverflow)
	}
	if w.format.NumberWidth == Width32 {
		if float64(float32(f)) != f {
			return errKind(ErrFloatPrecisionLoss)
		}
		w.writeWidth(uint64(float32ToRaw(float32(f))), Width32)
		return nil
	}
	w.writeWidth(float64ToRaw(f), Width64)
	return nil
}

const (
	math32Max = int64(1<<31 - 1)
	math32Min = -int64(1 << 31)
)

// str writes a size_t-length-prefixed byte string, using the NUL-inclusive
// length convention real Lua byte code uses.
func (w *byteWriter) str(s string) {
	if s == "" {
		w.sizeT(0)
		return
	}
	w.sizeT(uint64(len(s) + 1))
	w.slice([]byte(s))
	w.byte(0)
}
