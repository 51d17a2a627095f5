package lunify

// Unify reads one Lua byte-code chunk and re-encodes it in outputFormat,
// upcasting Lua 5.0 prototypes to Lua 5.1 (spec.md §4.9). A Lua 5.1 input
// is re-encoded with its instructions as they are: its SETLIST batches are
// not repaged, since input and output share settings.Lua51. Convert is
// the entry point that repages a Lua 5.1 chunk.
func Unify(input []byte, outputFormat Format, settings Settings) ([]byte, error) {
	return unify(input, outputFormat, settings, false)
}

// unify is Unify's internal form: forceRewrite, when set, walks every
// function and re-emits its instructions even when the input format
// already equals outputFormat, instead of taking the verbatim-copy fast
// path. Tests use this to exercise the rewrite machinery on inputs whose
// format happens to match the requested output (spec.md §9's "matching
// format" open question: production callers never need it, since a
// matching format with matching settings is, by construction, already a
// no-op rewrite, but forcing it is the only way to assert that a no-op
// rewrite really is one).
func unify(input []byte, outputFormat Format, settings Settings, forceRewrite bool) ([]byte, error) {
	s := newByteStream(input)

	if err := s.removeAnySignature(settings.Lua50.BinarySignature, settings.Lua51.BinarySignature); err != nil {
		return nil, err
	}
	version, err := s.byte()
	if err != nil {
		return nil, err
	}
	if version != 0x50 && version != 0x51 {
		return nil, errByte(ErrUnsupportedVersion, version)
	}

	inputFormat, err := formatFromByteStream(s, version)
	if err != nil {
		return nil, err
	}
	if err := s.setFormat(inputFormat); err != nil {
		return nil, err
	}

	if version == 0x51 && inputFormat == outputFormat && !forceRewrite {
		return input, nil
	}

	root, err := parseFunction(s, version, settings)
	if err != nil {
		return nil, err
	}
	if !s.isEmpty() {
		return nil, errKind(ErrInputTooLong)
	}

	w := newByteWriter(outputFormat)
	w.slice(settings.Lua51.BinarySignature[:])
	w.byte(0x51)
	outputFormat.write(w)
	if err := root.write(w, settings); err != nil {
		return nil, err
	}

	return w.finalize(), nil
}

// Convert re-pages every SETLIST batch in an already-Lua-5.1 chunk from
// inputFieldsPerFlush to settings.Lua51.FieldsPerFlush. Other opcodes are
// kept, except that instructions feeding a re-paged SETLIST have their
// registers shifted and jumps are retargeted. Exposed separately from Unify because a chunk's
// LFIELDS_PER_FLUSH is a compile-time constant of whatever produced it and
// is never recorded in the byte code itself (spec.md §4.8): Unify alone
// has no way to learn it differs from settings.Lua51.FieldsPerFlush, so a
// caller that knows the two differ must say so explicitly here.
func Convert(input []byte, outputFormat Format, settings Settings, inputFieldsPerFlush uint64) ([]byte, error) {
	s := newByteStream(input)

	if err := s.removeAnySignature(settings.Lua50.BinarySignature, settings.Lua51.BinarySignature); err != nil {
		return nil, err
	}
	version, err := s.byte()
	if err != nil {
		return nil, err
	}
	if version != 0x51 {
		return nil, errByte(ErrUnsupportedVersion, version)
	}

	inputFormat, err := formatFromByteStream(s, version)
	if err != nil {
		return nil, err
	}
	if err := s.setFormat(inputFormat); err != nil {
		return nil, err
	}

	root, err := parseFunction(s, version, settings)
	if err != nil {
		return nil, err
	}
	if !s.isEmpty() {
		return nil, errKind(ErrInputTooLong)
	}

	if err := convertTree(root, settings, inputFieldsPerFlush); err != nil {
		return nil, err
	}

	w := newByteWriter(outputFormat)
	w.slice(settings.Lua51.BinarySignature[:])
	w.byte(0x51)
	outputFormat.write(w)
	if err := root.write(w, settings); err != nil {
		return nil, err
	}

	return w.finalize(), nil
}

// convertTree applies convert to f and every descendant prototype.
func convertTree(f *Function, settings Settings, inputFieldsPerFlush uint64) error {
	instructions, lineInfo, err := convert(f.Instructions, f.LineInfo, &f.MaxStackSize, settings, inputFieldsPerFlush)
	if err != nil {
		return err
	}
	f.Instructions, f.LineInfo = instructions, lineInfo

	for _, p := range f.Prototypes {
		if err := convertTree(p, settings, inputFieldsPerFlush); err != nil {
			return err
		}
	}
	return nil
}
