package refresh

import "context"

// Gate is a counting admission gate. At most n holders are admitted at once;
// blocked callers are admitted in arrival order.
type Gate struct {
	slots chan struct{}
}

func NewGate(n int) *Gate {
	if n <= 0 {
		n = 1
	}
	return &Gate{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (g *Gate) Release() { <-g.slots }

// Cap is the number of holders admitted at once.
func (g *Gate) Cap() int { return cap(g.slots) }
