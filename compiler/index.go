package compiler

import "fmt"

// Index is where a lowered expression's value lives. It is a closed sum:
// ConstIndex, RegIndex or NoIndex.
type Index interface {
	index()
}

// ConstIndex refers to a constant-pool slot.
type ConstIndex struct{ Slot int }

// RegIndex refers to a register, typically an active local.
type RegIndex struct{ Slot int }

// NoIndex means the value has no storage yet. It is produced directly by
// an instruction when materialized: nil, booleans and runtime arithmetic.
type NoIndex struct{}

func (ConstIndex) index() {}
func (RegIndex) index()   {}
func (NoIndex) index()    {}

func (i ConstIndex) String() string { return fmt.Sprintf("K(%d)", i.Slot) }
func (i RegIndex) String() string   { return fmt.Sprintf("R(%d)", i.Slot) }
func (NoIndex) String() string      { return "none" }

func unhandledIndex(idx Index) string {
	return fmt.Sprintf("compiler: unhandled index %T", idx)
}
