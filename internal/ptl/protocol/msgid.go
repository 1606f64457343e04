package protocol

import (
	"fmt"
	"sync"
)

// maxMessageID is the exclusive upper bound of the message id range.
const maxMessageID = 251

// MessageIDGenerator hands out the ids used to match display acks. Ids run
// from 001 to 250 and wrap back to 001. Each device link owns one generator.
type MessageIDGenerator struct {
	mu sync.Mutex
	n  int
}

// Next returns the next zero-padded message id.
func (g *MessageIDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.n++
	if g.n%maxMessageID == 0 {
		g.n = 1
	} else {
		g.n %= maxMessageID
	}
	return fmt.Sprintf("%03d", g.n)
}
