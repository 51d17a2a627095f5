package lunify

// VersionSettings bundles the per-version constants spec.md §6 lists under
// "Settings": the stack limit, the SETLIST batching factor, the four-byte
// binary signature, and the instruction bit layout.
type VersionSettings struct {
	StackLimit      uint64
	FieldsPerFlush  uint64
	BinarySignature [4]byte
	Layout          InstructionLayout
}

var luaSignature = [4]byte{0x1B, 'L', 'u', 'a'}

func defaultLua50Settings() VersionSettings {
	return VersionSettings{
		StackLimit:      250,
		FieldsPerFlush:  32,
		BinarySignature: luaSignature,
		Layout:          lua50InstructionLayout,
	}
}

func defaultLua51Settings() VersionSettings {
	return VersionSettings{
		StackLimit:      250,
		FieldsPerFlush:  50,
		BinarySignature: luaSignature,
		Layout:          lua51InstructionLayout,
	}
}

// Settings groups two version-specific settings records: Lua50 for Lua 5.0
// input, and Lua51, which is shared by Lua 5.1 input and Lua 5.1 output.
// There is no separate record for Lua 5.1 input; an input
// LFIELDS_PER_FLUSH that differs from Lua51.FieldsPerFlush can only be
// given through Convert's inputFieldsPerFlush parameter.
type Settings struct {
	Lua50 VersionSettings
	Lua51 VersionSettings
}

// DefaultSettings returns the Lua reference-compiler defaults for both
// settings records.
func DefaultSettings() Settings {
	return Settings{
		Lua50: defaultLua50Settings(),
		Lua51: defaultLua51Settings(),
	}
}
