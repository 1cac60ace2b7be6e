// Copyright (C) 2024 Nativexec Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package arbiter tracks a shared memory budget across concurrently
// running partitioning consumers (typically one per shuffle writer
// operator instance sharing a task's memory pool). When a growth
// request does not fit, the other registered consumers are asked to
// spill before the request is granted or denied. The requesting
// consumer itself is not asked to spill, and a request never waits
// for capacity that is released later.
package arbiter

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Consumer is the narrow view the Arbiter holds of a registered
// memory user. It exists so the Arbiter and its registered consumers
// can reference each other without an import cycle: the owner of a
// Consumer (the shuffle package's Repartitioner) holds a concrete
// *Arbiter, while the Arbiter holds registrants only behind this
// interface.
type Consumer interface {
	// Spill asks the consumer to write out buffered data and report
	// how many bytes it released back to the arbiter.
	Spill(ctx context.Context) (int64, error)
	// MemUsed reports the consumer's current granted reservation.
	MemUsed() int64
	// Name identifies the consumer in error messages and logs.
	Name() string
}

// DeniedError is returned by TryGrow when a request cannot be
// satisfied even after every registered consumer has been asked to
// spill.
type DeniedError struct {
	Requested int64
	Available int64
	// Consumers lists, sorted by name, every consumer that was asked
	// to spill before the request was denied.
	Consumers []string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("arbiter: cannot grant %d bytes, only %d available after asking %v to spill",
		e.Requested, e.Available, e.Consumers)
}

// Arbiter grants and reclaims byte quota from a fixed capacity pool,
// asking registered consumers to spill when a request would
// otherwise exceed capacity.
type Arbiter struct {
	capacity int64

	mu      sync.Mutex
	cond    *sync.Cond
	granted int64
	byID    map[uuid.UUID]Consumer
	order   []uuid.UUID
}

// New returns an Arbiter with the given byte capacity.
func New(capacity int64) *Arbiter {
	a := &Arbiter{
		capacity: capacity,
		byID:     make(map[uuid.UUID]Consumer),
	}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// RegisterRequester associates id with c so the arbiter can ask c to
// spill when capacity is tight. The caller retains ownership of c;
// the arbiter only ever calls back through the Consumer interface.
func (a *Arbiter) RegisterRequester(id uuid.UUID, c Consumer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byID[id] = c
	a.order = append(a.order, id)
}

// DropConsumer deregisters id, releasing the arbiter's reference to
// its Consumer and breaking the reference cycle between the arbiter
// and its registrants. Any bytes still granted to id are reclaimed.
func (a *Arbiter) DropConsumer(id uuid.UUID, granted int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.byID, id)
	for i, o := range a.order {
		if o == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	if granted > 0 {
		a.granted -= granted
		if a.granted < 0 {
			a.granted = 0
		}
	}
	a.cond.Broadcast()
}

// TryGrow requests n additional bytes on behalf of id. If the pool
// lacks capacity, every other registered consumer is asked, in
// registration order, to spill until either enough room is freed or
// every consumer has been exhausted, at which point TryGrow returns
// a *DeniedError.
func (a *Arbiter) TryGrow(ctx context.Context, id uuid.UUID, n int64) error {
	if n <= 0 {
		return nil
	}
	a.mu.Lock()
	if a.granted+n <= a.capacity {
		a.granted += n
		a.mu.Unlock()
		return nil
	}
	victims := make([]uuid.UUID, 0, len(a.order))
	for _, o := range a.order {
		if o != id {
			victims = append(victims, o)
		}
	}
	a.mu.Unlock()

	asked := make(map[string]struct{}, len(victims))
	for _, v := range victims {
		a.mu.Lock()
		c, ok := a.byID[v]
		a.mu.Unlock()
		if !ok {
			continue
		}
		asked[c.Name()] = struct{}{}
		freed, err := c.Spill(ctx)
		if err != nil {
			return fmt.Errorf("arbiter: spilling consumer %s to satisfy growth request: %w", c.Name(), err)
		}
		a.mu.Lock()
		a.granted -= freed
		if a.granted < 0 {
			a.granted = 0
		}
		fits := a.granted+n <= a.capacity
		a.mu.Unlock()
		if fits {
			break
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.granted+n > a.capacity {
		names := maps.Keys(asked)
		slices.Sort(names)
		return &DeniedError{Requested: n, Available: a.capacity - a.granted, Consumers: names}
	}
	a.granted += n
	return nil
}

// Shrink releases n previously granted bytes back to the pool.
func (a *Arbiter) Shrink(n int64) {
	if n <= 0 {
		return
	}
	a.mu.Lock()
	a.granted -= n
	if a.granted < 0 {
		a.granted = 0
	}
	a.cond.Broadcast()
	a.mu.Unlock()
}

// Granted reports the arbiter's current total granted bytes.
func (a *Arbiter) Granted() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.granted
}

// Capacity reports the arbiter's fixed byte budget.
func (a *Arbiter) Capacity() int64 {
	return a.capacity
}
