package common

import "fmt"

// RID is a record identifier: the page the tuple lives on plus the slot
// within the page. RID is a comparable value type so it can key maps in the
// lock manager and the transaction lock sets.
type RID struct {
	PageID PageID
	Slot   uint32
}

// NewRID initializes a record identifier
func NewRID(pid PageID, slot uint32) RID {
	return RID{PageID: pid, Slot: slot}
}

// IsValid checks whether the rid points at an existing slot
func (r RID) IsValid() bool {
	return r.PageID.IsValid()
}

func (r RID) String() string {
	return fmt.Sprintf("(%d,%d)", r.PageID, r.Slot)
}
