package lunify

import (
	"fmt"
)

// Constant is one entry of a function prototype's constant pool
// (spec.md §3): nil, a boolean, a number, or a string.
type Constant struct {
	isNil    bool
	boolean  bool
	isBool   bool
	num      number
	isNumber bool
	str      string
	isString bool
}

func nilConstant() Constant             { return Constant{isNil: true} }
func boolConstant(b bool) Constant      { return Constant{isBool: true, boolean: b} }
func numberConstant(n number) Constant  { return Constant{isNumber: true, num: n} }
func stringConstant(s string) Constant  { return Constant{isString: true, str: s} }

func (c Constant) equal(other Constant) bool {
	switch {
	case c.isNil:
		return other.isNil
	case c.isBool:
		return other.isBool && c.boolean == other.boolean
	case c.isString:
		return other.isString && c.str == other.str
	case c.isNumber:
		return other.isNumber && c.num == other.num
	default:
		return false
	}
}

// constantManager adds or reuses nil and string constants and mints unique
// sentinel string constants, ported from
// original_source/src/function/constant.rs.
type constantManager struct {
	constants        *[]Constant
	maxConstantIndex uint64
}

func newConstantManager(constants *[]Constant, maxConstantIndex uint64) *constantManager {
	return &constantManager{constants: constants, maxConstantIndex: maxConstantIndex}
}

func (m *constantManager) allocate(c Constant) (uint64, error) {
	for i, existing := range *m.constants {
		if existing.equal(c) {
			return uint64(i), nil
		}
	}
	newIndex := uint64(len(*m.constants))
	if newIndex > m.maxConstantIndex {
		return 0, errValue(ErrTooManyConstants, newIndex)
	}
	*m.constants = append(*m.constants, c)
	return newIndex, nil
}

func (m *constantManager) constantNil() (uint64, error) {
	return m.allocate(nilConstant())
}

func (m *constantManager) constantForStr(s string) (uint64, error) {
	return m.allocate(stringConstant(s))
}

// createUnique mints a sentinel string constant of the form
// "__%lunify%__temp{pc}_{k}" with the smallest k that is not already
// present in the pool, guaranteeing it cannot collide with a Lua source
// identifier. The trailing NUL every Lua string carries on the wire is
// added by writer.go's str, the same as for every other constant — it is
// not embedded here.
func (m *constantManager) createUnique(programCounter int) (uint64, error) {
	for k := 0; ; k++ {
		candidate := fmt.Sprintf("__%%lunify%%__temp%d_%d", programCounter, k)
		found := false
		for _, existing := range *m.constants {
			if existing.isString && existing.str == candidate {
				found = true
				break
			}
		}
		if !found {
			return m.allocate(stringConstant(candidate))
		}
	}
}
