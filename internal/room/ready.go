package room

// readyCursor enforces the strict seat-index order for match-start
// confirmations. A confirmation arriving before its turn is queued, never
// rejected, and drained once the cursor reaches it.
type readyCursor struct {
	next      int
	count     int
	confirmed map[int]bool
	early     map[int]bool
}

func newReadyCursor(count int) *readyCursor {
	return &readyCursor{
		count:     count,
		confirmed: make(map[int]bool),
		early:     make(map[int]bool),
	}
}

// confirm records one seat's confirmation. Out-of-range seats and duplicate
// confirmations are ignored, so every seat counts exactly once.
func (c *readyCursor) confirm(seat int) {
	if seat < 0 || seat >= c.count || c.confirmed[seat] {
		return
	}
	if seat != c.next {
		c.early[seat] = true
		return
	}
	c.confirmed[seat] = true
	c.next++
	for c.early[c.next] {
		delete(c.early, c.next)
		c.confirmed[c.next] = true
		c.next++
	}
}

// cursor is the next expected seat index.
func (c *readyCursor) cursor() int { return c.next }

// done reports whether every seat has confirmed.
func (c *readyCursor) done() bool { return c.next >= c.count }
