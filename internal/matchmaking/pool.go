// internal/matchmaking/pool.go

package matchmaking

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matchroom-gg/matchroom/internal/clock"
)

// Ticket is one player waiting in the pool.
type Ticket struct {
	UserID      uuid.UUID
	Username    string
	Rating      int
	Ephemeral   bool
	TimeControl clock.TimeControl
	EnqueuedAt  time.Time
}

// MatchFn is invoked (outside the pool lock) when two tickets are paired.
// The first ticket is the one that waited longer.
type MatchFn func(a, b *Ticket, tc clock.TimeControl)

// Pool pairs waiting players who asked for the same time control. Within a
// queue the longest-waiting ticket is matched against the waiter closest in
// rating, so queues drain FIFO but pairings stay reasonable.
type Pool struct {
	mu      sync.Mutex
	waiting map[string][]*Ticket // time-control string -> FIFO queue

	// OnMatch receives every pairing. While nil, tickets queue without
	// pairing.
	OnMatch MatchFn
}

// NewPool creates an empty matchmaking pool.
func NewPool() *Pool {
	return &Pool{
		waiting: make(map[string][]*Ticket),
	}
}

// Enqueue adds a ticket to the pool, pairing immediately when an opponent is
// already waiting for the same time control. The same user cannot hold two
// tickets; re-enqueueing replaces the earlier one.
//
// Returns true if the ticket was matched right away.
func (p *Pool) Enqueue(t *Ticket) bool {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	key := t.TimeControl.String()

	p.mu.Lock()
	p.removeLocked(t.UserID)

	queue := p.waiting[key]
	if len(queue) == 0 || p.OnMatch == nil {
		p.waiting[key] = append(queue, t)
		p.mu.Unlock()
		return false
	}

	// Head of the queue waited longest; it picks the closest-rated opponent,
	// which here is the incoming ticket vs. nothing else only when the queue
	// is length one. With more waiters the incoming ticket joins and the head
	// still pairs with its nearest rating.
	head := queue[0]
	best := t
	bestGap := gap(head.Rating, t.Rating)
	bestIdx := -1
	for i := 1; i < len(queue); i++ {
		if g := gap(head.Rating, queue[i].Rating); g < bestGap {
			bestGap = g
			best = queue[i]
			bestIdx = i
		}
	}

	if bestIdx >= 0 {
		// Head pairs with another waiter; incoming ticket stays queued.
		queue = append(queue[:bestIdx], queue[bestIdx+1:]...)
		p.waiting[key] = append(queue[1:], t)
	} else {
		p.waiting[key] = queue[1:]
	}
	if len(p.waiting[key]) == 0 {
		delete(p.waiting, key)
	}

	onMatch := p.OnMatch
	p.mu.Unlock()

	if onMatch != nil {
		onMatch(head, best, head.TimeControl)
	}
	return best == t
}

// Cancel removes a user's ticket if one is still waiting.
func (p *Pool) Cancel(userID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(userID)
}

// Waiting reports how many tickets are queued for the given time control.
func (p *Pool) Waiting(tc clock.TimeControl) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiting[tc.String()])
}

func (p *Pool) removeLocked(userID uuid.UUID) bool {
	for key, queue := range p.waiting {
		for i, t := range queue {
			if t.UserID == userID {
				p.waiting[key] = append(queue[:i], queue[i+1:]...)
				if len(p.waiting[key]) == 0 {
					delete(p.waiting, key)
				}
				return true
			}
		}
	}
	return false
}

func gap(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
