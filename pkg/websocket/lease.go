package websocket

import (
	"context"
	"sync"

	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/logger"
)

// Bindings maps events to the handlers a lease holder wants.
type Bindings map[Event]Handler

// Lease is one holder's claim on the channel. The connection stays up while
// at least one lease is held.
type Lease interface {
	Release()
}

type lease struct {
	c    *Channel
	offs []func()
	once sync.Once
}

// Acquire registers b, takes a lease and connects if needed. Handlers are
// in place before the connection starts, so the first connect event is
// never missed.
func (c *Channel) Acquire(ctx context.Context, b Bindings) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := &lease{c: c}
	for event, fn := range b {
		l.offs = append(l.offs, c.On(event, fn))
	}

	c.leaseMu.Lock()
	c.leases++
	held := c.leases
	c.leaseMu.Unlock()

	logger.Debug("Realtime lease acquired", "leases", held)
	c.Connect(ctx)
	return l, nil
}

// Release drops the lease and its handlers. The last release tears the
// connection down. Calling Release more than once has no further effect.
func (l *lease) Release() {
	l.once.Do(func() {
		for _, off := range l.offs {
			off()
		}

		c := l.c
		c.leaseMu.Lock()
		c.leases--
		held := c.leases
		c.leaseMu.Unlock()

		logger.Debug("Realtime lease released", "leases", held)
		if held == 0 {
			c.Disconnect()
		}
	})
}

// Leases returns the number of leases currently held.
func (c *Channel) Leases() int {
	c.leaseMu.Lock()
	defer c.leaseMu.Unlock()
	return c.leases
}
