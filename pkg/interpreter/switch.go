package interpreter

import "github.com/jacobin-core/jvmcore/pkg/frame"

// padSwitch advances fr.PC to the next 4-byte boundary measured from
// the start of the method's code array (spec.md §4.9 "Switch": "pad to
// a 4-byte boundary past the opcode"), then returns the instruction's
// own start pc (needed to compute the eventual jump target).
func padSwitch(fr *frame.Frame) int {
	instrPC := fr.PC - 1
	for fr.PC%4 != 0 {
		fr.PC++
	}
	return instrPC
}

// execTableswitch implements JVMS tableswitch: a dense jump table over
// [low, high].
func (vm *VM) execTableswitch(fr *frame.Frame) {
	instrPC := padSwitch(fr)
	defaultOff := fr.ReadI32()
	low := fr.ReadI32()
	high := fr.ReadI32()
	key := fr.Pop().Int()
	if key < low || key > high {
		fr.PC = instrPC + int(defaultOff)
		return
	}
	// skip to the matching entry rather than reading sequentially, since
	// ReadI32 already advanced past low/high onto entry 0.
	entryIndex := key - low
	fr.PC += int(entryIndex) * 4
	off := fr.ReadI32()
	fr.PC = instrPC + int(off)
}

// execLookupswitch implements JVMS lookupswitch: an (ordered) match/jump
// table, linearly searched (the table is sorted by key but this reader
// does not assume the class file honors that, matching JVMS's "the
// table may, in principle, be searched in any way" note).
func (vm *VM) execLookupswitch(fr *frame.Frame) {
	instrPC := padSwitch(fr)
	defaultOff := fr.ReadI32()
	npairs := fr.ReadI32()
	key := fr.Pop().Int()
	for i := int32(0); i < npairs; i++ {
		match := fr.ReadI32()
		off := fr.ReadI32()
		if match == key {
			fr.PC = instrPC + int(off)
			return
		}
	}
	fr.PC = instrPC + int(defaultOff)
}
