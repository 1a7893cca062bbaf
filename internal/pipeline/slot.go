package pipeline

import (
	"errors"
	"sync"
)

// SlotFile is the fixed remote file every capture writes.
const SlotFile = "out.pdf"

// ErrSlotBusy is returned when the slot is claimed twice.
var ErrSlotBusy = errors.New("remote slot " + SlotFile + " is already claimed")

// Slot guards the fixed remote capture file. Every capture needs a claim,
// and the claim must be released once the slot file has been moved out of
// the way, so one page can never be mistaken for the next.
type Slot struct {
	mu      sync.Mutex
	claimed bool
	gen     int
}

// NewSlot creates an unclaimed slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Claim takes ownership of the slot.
func (s *Slot) Claim() (*SlotClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed {
		return nil, ErrSlotBusy
	}
	s.claimed = true
	s.gen++
	return &SlotClaim{slot: s, gen: s.gen}, nil
}

// Claimed reports whether a claim is outstanding.
func (s *Slot) Claimed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claimed
}

// reset drops an outstanding claim once the slot file is known to be gone.
func (s *Slot) reset() {
	s.mu.Lock()
	s.claimed = false
	s.mu.Unlock()
}

// SlotClaim is the ownership token for the slot.
type SlotClaim struct {
	slot     *Slot
	gen      int
	released bool
}

// Path returns the remote path of the slot file.
func (c *SlotClaim) Path() string {
	return SlotFile
}

// Release gives the slot back. Releasing twice is a no-op.
func (c *SlotClaim) Release() {
	if c == nil || c.released {
		return
	}
	c.released = true
	c.slot.mu.Lock()
	if c.slot.gen == c.gen {
		c.slot.claimed = false
	}
	c.slot.mu.Unlock()
}
