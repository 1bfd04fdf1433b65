package sim

import "sync"

// Core models the single CPU shared by task code and interrupt handlers.
//
// Holding the core (Lock) is the equivalent of running with interrupts
// masked: an interrupt raised meanwhile stays pending and is serviced, on the
// holder's goroutine, when the core is released. Handlers are never re-entered
// and never run while a task holds the core.
type Core struct {
	mu      sync.Mutex
	cond    *sync.Cond
	busy    bool // a handler is running or a task masked interrupts
	pending bool

	dispatch func()
}

func newCore(dispatch func()) *Core {
	c := &Core{dispatch: dispatch}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Lock masks interrupts, waiting for a running handler to finish.
// It must not be called from an interrupt handler.
func (c *Core) Lock() {
	c.mu.Lock()
	for c.busy {
		c.cond.Wait()
	}
	c.busy = true
	c.mu.Unlock()
}

// Unlock unmasks interrupts and services whatever became pending.
func (c *Core) Unlock() {
	c.release()
}

// Raise requests interrupt service. It never blocks: if the core is held the
// request is left for the holder.
func (c *Core) Raise() {
	c.mu.Lock()
	if c.busy {
		c.pending = true
		c.mu.Unlock()
		return
	}
	c.busy = true
	c.mu.Unlock()
	c.release()
}

func (c *Core) release() {
	for {
		c.dispatch()
		c.mu.Lock()
		if !c.pending {
			c.busy = false
			c.cond.Broadcast()
			c.mu.Unlock()
			return
		}
		c.pending = false
		c.mu.Unlock()
	}
}
