package model

// SlotNode is the shared shape of the three slot-tree variants (instance,
// submission, assessment). The trees of one participation are positionally
// isomorphic, so a node in any of them can be addressed by the chain of slot
// numbers from its base slot down.
type SlotNode interface {
	GetID() uint
	GetParentID() *uint
	GetSlotNumber() int
}
