// Package lunify upcasts Lua 5.0 byte code to Lua 5.1 byte code and
// re-serializes Lua 5.1 byte code into a caller-chosen binary layout
// (endianness, integer/size_t/instruction/number widths, integral-vs-float
// number representation), without compiling or executing any Lua program.
package lunify
